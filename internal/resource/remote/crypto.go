package remote

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"

	apperrors "github.com/alexjbarnes/marksync/internal/errors"
	"github.com/tidwall/gjson"
	"golang.org/x/crypto/scrypt"
	"golang.org/x/text/unicode/norm"
)

const (
	// scryptN is the CPU/memory cost parameter for scrypt key derivation (2^15).
	scryptN = 32768

	// scryptR is the block size parameter for scrypt key derivation.
	scryptR = 8

	// scryptP is the parallelization parameter for scrypt key derivation.
	scryptP = 1

	// scryptKeyLen is the derived key length in bytes.
	scryptKeyLen = 32

	// saltLen is the number of random bytes in a fresh salt.
	saltLen = 32
)

// envelope is the JSON document an encrypted bookmarks file consists of.
type envelope struct {
	// Ciphertext is base64 of [nonce][ciphertext+tag].
	Ciphertext string `json:"ciphertext"`
	// Salt is hex encoded.
	Salt string `json:"salt"`
}

// deriveKey derives a 32-byte key from passphrase and salt using scrypt.
// Both inputs are normalized to NFKC before hashing.
func deriveKey(passphrase, salt string) ([]byte, error) {
	passphrase = norm.NFKC.String(passphrase)
	salt = norm.NFKC.String(salt)

	key, err := scrypt.Key([]byte(passphrase), []byte(salt), scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}

	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	return gcm, nil
}

// zeroKey overwrites key material once the cipher holds it.
func zeroKey(key []byte) {
	for i := range key {
		key[i] = 0
	}
}

// encrypt seals plaintext under a key derived from passphrase and a fresh
// random salt and returns the JSON envelope.
func encrypt(passphrase string, plaintext []byte) ([]byte, error) {
	saltBytes := make([]byte, saltLen)
	if _, err := rand.Read(saltBytes); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}

	salt := hex.EncodeToString(saltBytes)

	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(key)
	zeroKey(key)

	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)

	return json.Marshal(envelope{
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
		Salt:       salt,
	})
}

// decrypt opens an envelope produced by encrypt. Files that are not an
// envelope but look like a plain bookmarks document are returned as they
// are, so a passphrase can be added to an existing account.
func decrypt(passphrase string, data []byte) ([]byte, error) {
	if !gjson.ValidBytes(data) {
		if looksPlain(data) {
			return data, nil
		}

		return nil, apperrors.ErrDecryption
	}

	fields := gjson.GetManyBytes(data, "ciphertext", "salt")
	if !fields[0].Exists() || !fields[1].Exists() {
		return nil, fmt.Errorf("%w: missing ciphertext or salt", apperrors.ErrDecryption)
	}

	sealed, err := base64.StdEncoding.DecodeString(fields[0].String())
	if err != nil {
		return nil, fmt.Errorf("%w: decoding ciphertext: %w", apperrors.ErrDecryption, err)
	}

	key, err := deriveKey(passphrase, fields[1].String())
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(key)
	zeroKey(key)

	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("%w: ciphertext too short: %d bytes", apperrors.ErrDecryption, len(sealed))
	}

	plaintext, err := gcm.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrDecryption, err)
	}

	return plaintext, nil
}

// looksPlain reports whether data starts like an XBEL or Netscape HTML
// document.
func looksPlain(data []byte) bool {
	head := bytes.TrimSpace(data)
	if len(head) > 512 {
		head = head[:512]
	}

	return bytes.HasPrefix(head, []byte("<?xml")) || bytes.Contains(bytes.ToUpper(head), []byte("<!DOCTYPE NETSCAPE-BOOKMARK-FILE-1>"))
}
