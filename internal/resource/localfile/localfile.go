// Package localfile keeps the local side of a sync in a JSON bookmarks file
// on disk. Items get random ids that stay stable across restarts.
package localfile

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/alexjbarnes/marksync/internal/resource/memory"
	"github.com/alexjbarnes/marksync/internal/serializer"
	"github.com/alexjbarnes/marksync/internal/tree"
	"github.com/google/uuid"
)

const (
	dirPerm  = fs.FileMode(0o700)
	filePerm = fs.FileMode(0o600)
)

// Replica is a resource.Resource stored in a single file. Mutations apply
// to memory; Flush writes them out.
type Replica struct {
	*memory.Tree

	path   string
	logger *slog.Logger

	mu sync.Mutex
	// saved is the tree revision last read from or written to disk.
	saved uint64
	// digest is the checksum of the file content last read or written.
	digest [sha256.Size]byte
	// passes counts sync passes currently running against the replica.
	passes int
}

// Open loads the file at path. A missing file starts an empty tree with a
// fresh root id; the file is created on the first Flush.
func Open(path string, logger *slog.Logger) (*Replica, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}

	r := &Replica{
		Tree:   memory.New(tree.Local, tree.NewRoot(tree.Local, uuid.NewString()), memory.WithIDGenerator(uuid.NewString)),
		path:   abs,
		logger: logger.With(slog.String("file", abs)),
	}
	r.saved = r.Revision()

	if _, err := r.Reload(); err != nil {
		return nil, err
	}

	return r, nil
}

// Path returns the absolute path of the file.
func (r *Replica) Path() string {
	return r.path
}

// Reload reads the file again when its content differs from what was last
// read or written. It reports whether the tree changed. Unflushed changes
// are discarded.
func (r *Replica) Reload() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.reloadLocked()
}

func (r *Replica) reloadLocked() (bool, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("reading %s: %w", r.path, err)
	}

	sum := sha256.Sum256(data)
	if sum == r.digest {
		return false, nil
	}

	root, err := serializer.Unmarshal(serializer.FormatJSON, data, tree.Local)
	if err != nil {
		return false, fmt.Errorf("loading %s: %w", r.path, err)
	}

	r.Replace(root)
	r.saved = r.Revision()
	r.digest = sum

	r.logger.Debug("localfile: loaded", slog.Int("items", root.Count()))

	return true, nil
}

// BeginPass marks a sync pass as running against the replica until the
// returned function is called.
func (r *Replica) BeginPass() func() {
	r.mu.Lock()
	r.passes++
	r.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			r.mu.Lock()
			r.passes--
			r.mu.Unlock()
		})
	}
}

// Refresh implements the pass start hook of the account package. The file
// is left alone while another pass is running or mutations are unflushed;
// the next pass picks the change up.
func (r *Replica) Refresh(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.passes > 1 || r.Revision() != r.saved {
		r.logger.Debug("localfile: reload deferred, replica in use", slog.Int("passes", r.passes))
		return nil
	}

	_, err := r.reloadLocked()

	return err
}

// Flush writes the tree when it changed since the last load or flush.
func (r *Replica) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rev := r.Revision()
	if rev == r.saved {
		return nil
	}

	root, _ := r.GetBookmarksTree(ctx)

	data, err := serializer.MarshalJSON(root)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", r.path, err)
	}

	if err := writeAtomic(r.path, data); err != nil {
		return err
	}

	r.saved = rev
	r.digest = sha256.Sum256(data)

	r.logger.Debug("localfile: saved", slog.Int("bytes", len(data)))

	return nil
}

// isOwnWrite reports whether data is what the replica last read or wrote.
func (r *Replica) isOwnWrite(data []byte) bool {
	sum := sha256.Sum256(data)

	r.mu.Lock()
	defer r.mu.Unlock()

	return sum == r.digest
}

// writeAtomic writes through a temp file in the same directory followed by
// a rename, so a crash never leaves a truncated file behind.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".marksync-write-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("syncing temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tmpName, filePerm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming into %s: %w", path, err)
	}

	return nil
}
