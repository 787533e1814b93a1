// Package scoped narrows a local resource to one of its folders, so several
// accounts can share one local tree and each sync its own sub-folder.
package scoped

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	apperrors "github.com/alexjbarnes/marksync/internal/errors"
	"github.com/alexjbarnes/marksync/internal/resource"
	"github.com/alexjbarnes/marksync/internal/tree"
)

// Option configures a Resource.
type Option func(*Resource)

// WithExcluded names the root folders of other accounts on the same local
// tree. Folders found inside this scope are hidden from it.
func WithExcluded(paths ...string) Option {
	return func(r *Resource) {
		for _, p := range paths {
			r.excluded = append(r.excluded, SplitPath(p))
		}
	}
}

// WithNestedSync keeps the root folders of other accounts visible.
func WithNestedSync(nested bool) Option {
	return func(r *Resource) { r.nested = nested }
}

// Resource exposes the folder at a title path of the inner resource as a
// root. Writes pass through unchanged; they already carry real ids.
type Resource struct {
	resource.Resource

	path     []string
	excluded [][]string
	nested   bool

	mu sync.Mutex
	// hidden lists the refs left out of each folder of the last view.
	hidden map[string][]tree.Ref
	// guarded holds folders of the last view that contain a hidden root.
	guarded map[string]bool
}

// New scopes inner to the folder at path, a "/" separated list of folder
// titles below the root. An empty path scopes to the whole tree.
func New(inner resource.Resource, path string, opts ...Option) *Resource {
	r := &Resource{Resource: inner, path: SplitPath(path)}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// SplitPath splits a folder path into titles, dropping empty segments.
func SplitPath(path string) []string {
	var out []string

	for _, seg := range strings.Split(path, "/") {
		if seg = strings.TrimSpace(seg); seg != "" {
			out = append(out, seg)
		}
	}

	return out
}

// Path returns the folder path the resource is scoped to.
func (r *Resource) Path() string {
	return strings.Join(r.path, "/")
}

// GetBookmarksTree returns the scoped folder as a root, without the root
// folders of other accounts unless nested sync is on. The folder must
// exist; Refresh creates it.
func (r *Resource) GetBookmarksTree(ctx context.Context) (*tree.Folder, error) {
	full, err := r.Resource.GetBookmarksTree(ctx)
	if err != nil {
		return nil, err
	}

	scope := lookup(full, r.path)
	if scope == nil {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrMissingLocalRoot, r.Path())
	}

	view := scope.Clone("")
	view.IsRoot = true
	view.ParentID = ""
	view.Title = ""

	hidden := make(map[string][]tree.Ref)
	guarded := make(map[string]bool)

	if !r.nested {
		foreign := r.foreignRoots(full, view.ID)
		prune(view, foreign, nil, hidden, guarded)
	}

	view.CreateIndex()

	r.mu.Lock()
	r.hidden = hidden
	r.guarded = guarded
	r.mu.Unlock()

	return view, nil
}

// foreignRoots returns the ids of the excluded folders that exist, other
// than the scope itself.
func (r *Resource) foreignRoots(full *tree.Folder, scopeID string) map[string]bool {
	ids := make(map[string]bool)

	for _, p := range r.excluded {
		if f := lookup(full, p); f != nil && f.ID != scopeID {
			ids[f.ID] = true
		}
	}

	return ids
}

// prune drops foreign folders from f in place. f must be a private copy.
func prune(f *tree.Folder, foreign map[string]bool, ancestors []string, hidden map[string][]tree.Ref, guarded map[string]bool) {
	kept := f.Children[:0]

	for _, child := range f.Children {
		sub, ok := child.(*tree.Folder)
		if !ok {
			kept = append(kept, child)
			continue
		}

		if foreign[sub.ID] {
			hidden[f.ID] = append(hidden[f.ID], sub.Ref())

			for _, id := range append(ancestors, f.ID) {
				guarded[id] = true
			}

			continue
		}

		prune(sub, foreign, append(slices.Clone(ancestors), f.ID), hidden, guarded)
		kept = append(kept, sub)
	}

	f.Children = kept
}

// OrderFolder keeps hidden folders after the ordered children.
func (r *Resource) OrderFolder(ctx context.Context, id string, order []tree.Ref) error {
	r.mu.Lock()
	extra := r.hidden[id]
	r.mu.Unlock()

	if len(extra) > 0 {
		order = append(slices.Clone(order), extra...)
	}

	return r.Resource.OrderFolder(ctx, id, order)
}

// RemoveFolder refuses folders that hold another account's root.
func (r *Resource) RemoveFolder(ctx context.Context, f *tree.Folder) error {
	r.mu.Lock()
	guarded := r.guarded[f.ID]
	r.mu.Unlock()

	if guarded {
		return fmt.Errorf("removing folder %s: %w", f.ID, apperrors.ErrForeignRoot)
	}

	return r.Resource.RemoveFolder(ctx, f)
}

// Refresh reloads the inner resource when it supports it and creates the
// scoped folder when it is missing.
func (r *Resource) Refresh(ctx context.Context) error {
	if rf, ok := r.Resource.(interface{ Refresh(context.Context) error }); ok {
		if err := rf.Refresh(ctx); err != nil {
			return err
		}
	}

	return r.ensure(ctx)
}

func (r *Resource) ensure(ctx context.Context) error {
	full, err := r.Resource.GetBookmarksTree(ctx)
	if err != nil {
		return err
	}

	parentID := full.ID

	for _, title := range r.path {
		parent := full.FindFolder(parentID)
		if parent == nil {
			return fmt.Errorf("%w: %s", apperrors.ErrUnknownParent, parentID)
		}

		if f := childFolder(parent, title); f != nil {
			parentID = f.ID
			continue
		}

		id, err := r.Resource.CreateFolder(ctx, tree.NewFolder(tree.Local, "", parentID, title))
		if err != nil {
			return fmt.Errorf("creating local root folder %q: %w", title, err)
		}

		if full, err = r.Resource.GetBookmarksTree(ctx); err != nil {
			return err
		}

		parentID = id
	}

	return nil
}

// Flush writes the inner resource when it buffers mutations.
func (r *Resource) Flush(ctx context.Context) error {
	if f, ok := r.Resource.(interface{ Flush(context.Context) error }); ok {
		return f.Flush(ctx)
	}

	return nil
}

// BeginPass forwards pass tracking to the inner resource.
func (r *Resource) BeginPass() func() {
	if t, ok := r.Resource.(interface{ BeginPass() func() }); ok {
		return t.BeginPass()
	}

	return func() {}
}

// PreservesOrder implements resource.OrderPreserver.
func (r *Resource) PreservesOrder() bool {
	return resource.PreservesOrder(r.Resource)
}

// lookup follows path from root. It returns nil when a segment is missing.
func lookup(root *tree.Folder, path []string) *tree.Folder {
	f := root
	for _, title := range path {
		if f = childFolder(f, title); f == nil {
			return nil
		}
	}

	return f
}

func childFolder(f *tree.Folder, title string) *tree.Folder {
	want := tree.NormalizeTitle(title)

	for _, child := range f.Children {
		if sub, ok := child.(*tree.Folder); ok && tree.NormalizeTitle(sub.Title) == want {
			return sub
		}
	}

	return nil
}
