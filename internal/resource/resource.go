// Package resource defines the contract every bookmark backend implements,
// for the local replica as well as for servers.
package resource

//go:generate mockgen -destination=resourcemock/resource.go -package=resourcemock . Resource,Adapter,SyncHooks

import (
	"context"
	"sync"

	"github.com/alexjbarnes/marksync/internal/tree"
)

// Resource is a bookmark tree that can be read and mutated item by item.
// Create calls return the id assigned by the backend. The parent of a new
// or updated item is its ParentID; that folder must exist.
type Resource interface {
	GetBookmarksTree(ctx context.Context) (*tree.Folder, error)

	CreateBookmark(ctx context.Context, b *tree.Bookmark) (string, error)
	UpdateBookmark(ctx context.Context, b *tree.Bookmark) error
	RemoveBookmark(ctx context.Context, b *tree.Bookmark) error

	CreateFolder(ctx context.Context, f *tree.Folder) (string, error)
	UpdateFolder(ctx context.Context, f *tree.Folder) error
	// OrderFolder sets the order of every child of the folder.
	OrderFolder(ctx context.Context, id string, order []tree.Ref) error
	RemoveFolder(ctx context.Context, f *tree.Folder) error
}

// Adapter is a server side resource.
type Adapter interface {
	Resource

	// Label is a human readable description of the backend, for logs.
	Label() string
	// AcceptsBookmark reports whether the backend can store b.
	AcceptsBookmark(b *tree.Bookmark) bool
}

// SyncHooks is implemented by adapters that need to prepare or finalize a
// pass, such as file based backends that lock and upload a whole file.
type SyncHooks interface {
	// OnSyncStart is called before the server tree is loaded. Returning
	// false tells the caller the server state is gone and the account must
	// be reset.
	OnSyncStart(ctx context.Context) (bool, error)
	OnSyncComplete(ctx context.Context) error
	OnSyncFail(ctx context.Context) error
}

// OrderPreserver is implemented by backends that may not keep the order of
// children. Backends that do not implement it are assumed to preserve it.
type OrderPreserver interface {
	PreservesOrder() bool
}

// PreservesOrder reports whether r keeps the order of children.
func PreservesOrder(r Resource) bool {
	if p, ok := r.(OrderPreserver); ok {
		return p.PreservesOrder()
	}

	return true
}

// RootLocks serializes structural mutations per local root folder, so two
// accounts sharing one local tree never interleave their changes.
type RootLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRootLocks returns an empty lock set.
func NewRootLocks() *RootLocks {
	return &RootLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock blocks until the lock of rootID is held and returns its release
// function.
func (r *RootLocks) Lock(rootID string) func() {
	r.mu.Lock()

	l, ok := r.locks[rootID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[rootID] = l
	}

	r.mu.Unlock()

	l.Lock()

	return l.Unlock
}
