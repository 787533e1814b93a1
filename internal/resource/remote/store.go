package remote

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// errNotFound is returned by stores when the named blob does not exist.
var errNotFound = errors.New("not found")

// Store reads and writes whole files on a remote backend.
type Store interface {
	// Get returns the content and last modification time of name.
	Get(ctx context.Context, name string) ([]byte, time.Time, error)
	Put(ctx context.Context, name string, data []byte, contentType string) error
	// Delete removes name. A missing file is not an error.
	Delete(ctx context.Context, name string) error
	// Location describes where files live, for logs.
	Location() string
}

const (
	dirPerm  = fs.FileMode(0o700)
	filePerm = fs.FileMode(0o600)
)

// Dir stores files in a local directory, typically one that another tool
// such as a file sharing client keeps in sync between machines.
type Dir struct {
	root string
}

// NewDir returns a store rooted at dir.
func NewDir(dir string) *Dir {
	return &Dir{root: dir}
}

func (d *Dir) path(name string) (string, error) {
	p := filepath.Join(d.root, filepath.FromSlash(name))

	rel, err := filepath.Rel(d.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes %s", name, d.root)
	}

	return p, nil
}

func (d *Dir) Get(_ context.Context, name string) ([]byte, time.Time, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, time.Time{}, err
	}

	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, time.Time{}, errNotFound
	}

	if err != nil {
		return nil, time.Time{}, fmt.Errorf("stat %s: %w", p, err)
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("reading %s: %w", p, err)
	}

	return data, info.ModTime(), nil
}

// Put writes through a temporary file and a rename so readers never see a
// partial file.
func (d *Dir) Put(_ context.Context, name string, data []byte, _ string) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(p), dirPerm); err != nil {
		return fmt.Errorf("creating directory for %s: %w", p, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".marksync-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("writing %s: %w", p, err)
	}

	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("chmod %s: %w", p, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", p, err)
	}

	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming into %s: %w", p, err)
	}

	return nil
}

func (d *Dir) Delete(_ context.Context, name string) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}

	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", p, err)
	}

	return nil
}

func (d *Dir) Location() string {
	return d.root
}
