package state

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/alexjbarnes/marksync/internal/mapping"
	"github.com/alexjbarnes/marksync/internal/serializer"
	"github.com/alexjbarnes/marksync/internal/tree"
	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory (~/.marksync/).
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

const accountBucketPrefix = "account:"

var (
	mappingsKey = []byte("mappings")
	cacheKey    = []byte("cache")
	dataKey     = []byte("data")
)

func accountBucket(accountID string) []byte {
	return []byte(accountBucketPrefix + accountID)
}

// AccountData is the runtime status of an account that survives restarts.
type AccountData struct {
	Strategy string    `json:"strategy,omitempty"`
	LastSync time.Time `json:"lastSync,omitzero"`
	// Syncing is the progress of the running pass in 0..1, 0 when idle.
	Syncing float64 `json:"syncing"`
	Error   string  `json:"error,omitempty"`
	// Outcome of the last finished pass: success, error or cancelled.
	Outcome string `json:"outcome,omitempty"`
}

// State wraps a bbolt database holding the mappings, cache tree and status
// of every account, each in its own bucket.
type State struct {
	db *bolt.DB
}

// Load opens the state database at ~/.marksync/state.db, creating it if it
// does not exist.
func Load() (*State, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}

	return LoadAt(path)
}

// LoadAt opens a state database at the given path, creating it if it does
// not exist. Useful for tests that need an isolated database.
func LoadAt(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	return &State{db: db}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// InitAccount creates the bucket of an account together with empty
// mappings and an empty cache when they do not exist yet.
func (s *State) InitAccount(accountID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(accountBucket(accountID))
		if err != nil {
			return err
		}

		if b.Get(mappingsKey) == nil {
			if err := putJSON(b, mappingsKey, mapping.NewData()); err != nil {
				return err
			}
		}

		if b.Get(cacheKey) == nil {
			return putCache(b, emptyCache())
		}

		return nil
	})
}

// ResetAccount replaces mappings and cache with empty values, forcing the
// next pass to merge.
func (s *State) ResetAccount(accountID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(accountBucket(accountID))
		if err != nil {
			return err
		}

		if err := putJSON(b, mappingsKey, mapping.NewData()); err != nil {
			return err
		}

		return putCache(b, emptyCache())
	})
}

// DeleteAccount removes everything stored for an account.
func (s *State) DeleteAccount(accountID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket(accountBucket(accountID))
		if err == bolt.ErrBucketNotFound {
			return nil
		}

		return err
	})
}

// Accounts returns the ids of all accounts with stored state, sorted.
func (s *State) Accounts() ([]string, error) {
	var ids []string

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			if id, ok := strings.CutPrefix(string(name), accountBucketPrefix); ok {
				ids = append(ids, id)
			}

			return nil
		})
	})

	sort.Strings(ids)

	return ids, err
}

// GetMappings returns the stored mappings, empty tables if none.
func (s *State) GetMappings(accountID string) (mapping.Data, error) {
	data := mapping.NewData()

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(accountBucket(accountID))
		if b == nil {
			return nil
		}

		v := b.Get(mappingsKey)
		if v == nil {
			return nil
		}

		return json.Unmarshal(v, &data)
	})
	if err != nil {
		return mapping.Data{}, fmt.Errorf("reading mappings of %s: %w", accountID, err)
	}

	return data, nil
}

// SetMappings persists the mappings of an account.
func (s *State) SetMappings(accountID string, data mapping.Data) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(accountBucket(accountID))
		if err != nil {
			return err
		}

		return putJSON(b, mappingsKey, data)
	})
}

// GetCache returns the cache tree of the last successful pass. A missing
// cache is returned as an empty local root.
func (s *State) GetCache(accountID string) (*tree.Folder, error) {
	var raw []byte

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(accountBucket(accountID))
		if b == nil {
			return nil
		}

		if v := b.Get(cacheKey); v != nil {
			raw = append([]byte(nil), v...)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if raw == nil {
		return emptyCache(), nil
	}

	root, err := serializer.Unmarshal(serializer.FormatJSON, raw, tree.Local)
	if err != nil {
		return nil, fmt.Errorf("reading cache of %s: %w", accountID, err)
	}

	return root, nil
}

// SetCache replaces the cache tree of an account.
func (s *State) SetCache(accountID string, root *tree.Folder) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(accountBucket(accountID))
		if err != nil {
			return err
		}

		return putCache(b, root)
	})
}

// GetAccountData returns the stored status, zero value if none.
func (s *State) GetAccountData(accountID string) (AccountData, error) {
	var data AccountData

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(accountBucket(accountID))
		if b == nil {
			return nil
		}

		v := b.Get(dataKey)
		if v == nil {
			return nil
		}

		return json.Unmarshal(v, &data)
	})

	return data, err
}

// SetAccountData persists the status of an account.
func (s *State) SetAccountData(accountID string, data AccountData) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(accountBucket(accountID))
		if err != nil {
			return err
		}

		return putJSON(b, dataKey, data)
	})
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return b.Put(key, data)
}

func putCache(b *bolt.Bucket, root *tree.Folder) error {
	data, err := serializer.MarshalJSON(root)
	if err != nil {
		return err
	}

	return b.Put(cacheKey, data)
}

func emptyCache() *tree.Folder {
	return tree.NewRoot(tree.Local, "")
}

// DefaultPath returns ~/.marksync/state.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".marksync", "state.db"), nil
}
