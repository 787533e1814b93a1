// Package memory implements the resource contract on an in-memory tree. It
// backs the file based adapters and serves as a fake backend in tests.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	apperrors "github.com/alexjbarnes/marksync/internal/errors"
	"github.com/alexjbarnes/marksync/internal/tree"
)

// Option configures a Tree.
type Option func(*Tree)

// WithIDGenerator replaces the default sequential numeric ids.
func WithIDGenerator(fn func() string) Option {
	return func(t *Tree) { t.newID = fn }
}

// WithoutOrder makes the tree report that it does not preserve the order of
// children. OrderFolder still applies the order.
func WithoutOrder() Option {
	return func(t *Tree) { t.unordered = true }
}

// Tree is a concurrency safe bookmark tree. Every mutation builds a new
// root with the copy-on-write helpers of the tree package, so trees
// returned by GetBookmarksTree are stable snapshots that callers must not
// modify.
type Tree struct {
	mu        sync.Mutex
	loc       tree.Location
	root      *tree.Folder
	highest   int
	revision  uint64
	newID     func() string
	unordered bool
}

// New returns a tree on side loc holding root. A nil root starts empty
// with root id "0".
func New(loc tree.Location, root *tree.Folder, opts ...Option) *Tree {
	t := &Tree{loc: loc}
	for _, opt := range opts {
		opt(t)
	}

	t.Replace(root)

	return t
}

// Replace swaps in a new root, for example after loading a file. The id
// high-water mark only grows, so ids freed by deletes are not handed out
// again by this tree.
func (t *Tree) Replace(root *tree.Folder) {
	if root == nil {
		root = tree.NewRoot(t.loc, "0")
	}

	root = root.Clone(t.loc)
	root.IsRoot = true

	t.mu.Lock()
	defer t.mu.Unlock()

	t.root = root
	t.highest = max(t.highest, tree.HighestNumericID(root))
	t.revision++
}

// Highest returns the highest numeric id the tree has seen or handed out.
func (t *Tree) Highest() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.highest
}

// SeedHighest raises the id high-water mark to at least n. Lower values
// are ignored.
func (t *Tree) SeedHighest(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.highest = max(t.highest, n)
}

// Revision increases with every change of the tree.
func (t *Tree) Revision() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.revision
}

// PreservesOrder implements resource.OrderPreserver.
func (t *Tree) PreservesOrder() bool {
	return !t.unordered
}

// GetBookmarksTree returns the current snapshot.
func (t *Tree) GetBookmarksTree(context.Context) (*tree.Folder, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.root, nil
}

func (t *Tree) CreateBookmark(_ context.Context, b *tree.Bookmark) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := b.Copy(t.loc).(*tree.Bookmark)
	c.ID = t.nextID()

	if err := t.apply(func(root *tree.Folder) (*tree.Folder, error) {
		return tree.InsertItem(root, c.ParentID, c, -1)
	}); err != nil {
		return "", fmt.Errorf("creating bookmark %q: %w", b.Title, err)
	}

	return c.ID, nil
}

func (t *Tree) UpdateBookmark(_ context.Context, b *tree.Bookmark) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.root.FindBookmark(b.ID) == nil {
		return fmt.Errorf("updating bookmark %s: %w", b.ID, apperrors.ErrUnknownItem)
	}

	c := b.Copy(t.loc).(*tree.Bookmark)

	err := t.apply(func(root *tree.Folder) (*tree.Folder, error) {
		return moveAndReplace(root, c)
	})
	if err != nil {
		return fmt.Errorf("updating bookmark %s: %w", b.ID, err)
	}

	return nil
}

func (t *Tree) RemoveBookmark(_ context.Context, b *tree.Bookmark) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	err := t.apply(func(root *tree.Folder) (*tree.Folder, error) {
		return tree.RemoveItem(root, b.Ref())
	})
	if err != nil {
		return fmt.Errorf("removing bookmark %s: %w", b.ID, err)
	}

	return nil
}

func (t *Tree) CreateFolder(_ context.Context, f *tree.Folder) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := tree.NewFolder(t.loc, t.nextID(), f.ParentID, f.Title)

	if err := t.apply(func(root *tree.Folder) (*tree.Folder, error) {
		return tree.InsertItem(root, c.ParentID, c, -1)
	}); err != nil {
		return "", fmt.Errorf("creating folder %q: %w", f.Title, err)
	}

	return c.ID, nil
}

// UpdateFolder changes the title and parent of a folder. Children are kept.
func (t *Tree) UpdateFolder(_ context.Context, f *tree.Folder) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if f.ID == t.root.ID {
		return fmt.Errorf("updating folder %s: %w", f.ID, apperrors.ErrRootModification)
	}

	existing := t.root.FindFolder(f.ID)
	if existing == nil {
		return fmt.Errorf("updating folder %s: %w", f.ID, apperrors.ErrUnknownItem)
	}

	c := tree.NewFolder(t.loc, f.ID, f.ParentID, f.Title, existing.Children...)

	err := t.apply(func(root *tree.Folder) (*tree.Folder, error) {
		return moveAndReplace(root, c)
	})
	if err != nil {
		return fmt.Errorf("updating folder %s: %w", f.ID, err)
	}

	return nil
}

func (t *Tree) OrderFolder(_ context.Context, id string, order []tree.Ref) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	err := t.apply(func(root *tree.Folder) (*tree.Folder, error) {
		return tree.ReorderChildren(root, id, order)
	})
	if err != nil {
		return fmt.Errorf("ordering folder %s: %w", id, err)
	}

	return nil
}

func (t *Tree) RemoveFolder(_ context.Context, f *tree.Folder) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	err := t.apply(func(root *tree.Folder) (*tree.Folder, error) {
		return tree.RemoveItem(root, f.Ref())
	})
	if err != nil {
		return fmt.Errorf("removing folder %s: %w", f.ID, err)
	}

	return nil
}

// apply replaces the root with the result of fn. Callers hold t.mu.
func (t *Tree) apply(fn func(root *tree.Folder) (*tree.Folder, error)) error {
	root, err := fn(t.root)
	if err != nil {
		return err
	}

	t.root = root
	t.revision++

	return nil
}

func (t *Tree) nextID() string {
	if t.newID != nil {
		return t.newID()
	}

	t.highest++

	return strconv.Itoa(t.highest)
}

// moveAndReplace moves item to its ParentID when that changed and then
// swaps in the new content.
func moveAndReplace(root *tree.Folder, item tree.Item) (*tree.Folder, error) {
	idx, _ := tree.NewIndex(root)

	parent, ok := idx.Parent(item.Ref())
	if !ok {
		return nil, apperrors.ErrUnknownItem
	}

	if parent.ID != item.GetParentID() {
		var err error

		root, err = tree.MoveItem(root, item.Ref(), item.GetParentID(), -1)
		if err != nil {
			return nil, err
		}
	}

	return tree.ReplaceItem(root, item)
}
