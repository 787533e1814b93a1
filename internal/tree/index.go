package tree

import (
	"fmt"

	apperrors "github.com/alexjbarnes/marksync/internal/errors"
)

// Index maps ids to items and items to their containing folder. It is a
// snapshot: after a mutation a new index must be built.
type Index struct {
	Folders   map[string]*Folder
	Bookmarks map[string]*Bookmark

	parents map[Ref]*Folder
	depths  map[Ref]int
}

// NewIndex indexes the subtree rooted at root. Duplicate ids of the same
// kind are reported as ErrDuplicateID.
func NewIndex(root *Folder) (*Index, error) {
	idx := &Index{
		Folders:   map[string]*Folder{root.ID: root},
		Bookmarks: make(map[string]*Bookmark),
		parents:   make(map[Ref]*Folder),
		depths:    map[Ref]int{root.Ref(): 0},
	}

	var dup error

	root.Traverse(func(item Item, parent *Folder) {
		ref := item.Ref()
		if _, exists := idx.parents[ref]; exists || ref == root.Ref() {
			if dup == nil {
				dup = fmt.Errorf("%w: %s %s", apperrors.ErrDuplicateID, ref.Kind, ref.ID)
			}

			return
		}

		idx.parents[ref] = parent
		idx.depths[ref] = idx.depths[parent.Ref()] + 1

		switch it := item.(type) {
		case *Folder:
			idx.Folders[it.ID] = it
		case *Bookmark:
			idx.Bookmarks[it.ID] = it
		}
	})

	return idx, dup
}

// CreateIndex builds and attaches an index to f so later lookups are
// constant time. Duplicate ids keep the first occurrence.
func (f *Folder) CreateIndex() *Index {
	idx, _ := NewIndex(f)
	f.index = idx

	return idx
}

// Get returns the item with the given ref.
func (idx *Index) Get(ref Ref) (Item, bool) {
	switch ref.Kind {
	case KindFolder:
		f, ok := idx.Folders[ref.ID]
		return f, ok
	case KindBookmark:
		b, ok := idx.Bookmarks[ref.ID]
		return b, ok
	}

	return nil, false
}

// Parent returns the folder that contains the referenced item.
func (idx *Index) Parent(ref Ref) (*Folder, bool) {
	p, ok := idx.parents[ref]
	return p, ok
}

// Depth returns the distance from the indexed root, 0 for the root.
func (idx *Index) Depth(ref Ref) int {
	return idx.depths[ref]
}

// Ancestors returns the folders containing ref, nearest first, ending with
// the root.
func (idx *Index) Ancestors(ref Ref) []*Folder {
	var chain []*Folder

	for {
		p, ok := idx.parents[ref]
		if !ok {
			return chain
		}

		chain = append(chain, p)
		ref = p.Ref()
	}
}

// IsAncestor reports whether folder id is ref itself or one of its ancestors.
func (idx *Index) IsAncestor(folderID string, ref Ref) bool {
	if ref.Kind == KindFolder && ref.ID == folderID {
		return true
	}

	for _, a := range idx.Ancestors(ref) {
		if a.ID == folderID {
			return true
		}
	}

	return false
}

// FindItem looks up an item of the given kind in the subtree.
func (f *Folder) FindItem(kind Kind, id string) Item {
	if f.index != nil {
		if item, ok := f.index.Get(Ref{Kind: kind, ID: id}); ok {
			return item
		}

		return nil
	}

	return f.FindItemFilter(kind, func(item Item) bool { return item.GetID() == id })
}

// FindFolder looks up a folder by id, including f itself.
func (f *Folder) FindFolder(id string) *Folder {
	if f.ID == id {
		return f
	}

	if folder, ok := f.FindItem(KindFolder, id).(*Folder); ok {
		return folder
	}

	return nil
}

// FindBookmark looks up a bookmark by id.
func (f *Folder) FindBookmark(id string) *Bookmark {
	if b, ok := f.FindItem(KindBookmark, id).(*Bookmark); ok {
		return b
	}

	return nil
}

// FindItemFilter returns the first item of kind in pre-order for which fn
// returns true.
func (f *Folder) FindItemFilter(kind Kind, fn func(Item) bool) Item {
	if kind == KindFolder && fn(f) {
		return f
	}

	for _, child := range f.Children {
		if child.Kind() == kind && fn(child) {
			return child
		}

		if sub, ok := child.(*Folder); ok {
			if found := sub.FindItemFilter(kind, fn); found != nil {
				return found
			}
		}
	}

	return nil
}
