// Package auth protects the control server with static API keys passed as
// Bearer tokens. Keys are configured per user and only their SHA-256
// digests are kept in memory.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

const (
	// APIKeyPrefix marks marksync API keys.
	APIKeyPrefix = "ms_"

	// apiKeyBytes is the number of random bytes in a generated key.
	apiKeyBytes = 32

	// APIKeyMinLen is the minimum accepted key length, prefix included.
	APIKeyMinLen = len(APIKeyPrefix) + 32
)

// Keys validates API keys.
type Keys struct {
	// digests maps the SHA-256 of a key to its user.
	digests map[[sha256.Size]byte]string
}

// NewKeys builds a key set from user to key pairs.
func NewKeys(userKeys map[string]string) *Keys {
	k := &Keys{digests: make(map[[sha256.Size]byte]string, len(userKeys))}
	for user, key := range userKeys {
		k.digests[sha256.Sum256([]byte(key))] = user
	}

	return k
}

// Len returns the number of configured keys.
func (k *Keys) Len() int {
	return len(k.digests)
}

// Validate returns the user owning key.
func (k *Keys) Validate(key string) (string, bool) {
	sum := sha256.Sum256([]byte(key))

	for digest, user := range k.digests {
		if subtle.ConstantTimeCompare(digest[:], sum[:]) == 1 {
			return user, true
		}
	}

	return "", false
}

// GenerateAPIKey returns a fresh random key.
func GenerateAPIKey() string {
	return APIKeyPrefix + RandomHex(apiKeyBytes)
}

// RandomHex generates a cryptographically random hex string of the given byte length.
func RandomHex(byteLen int) string {
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}

	return hex.EncodeToString(b)
}
