package tree

import (
	"fmt"

	apperrors "github.com/alexjbarnes/marksync/internal/errors"
)

// The helpers below never modify their input. They copy the path from the
// root to the edited folder and share every untouched subtree, so snapshots
// handed out earlier stay valid.

// InsertItem adds item to the folder parentID at index. A negative or out
// of range index appends.
func InsertItem(root *Folder, parentID string, item Item, index int) (*Folder, error) {
	return updateFolder(root, parentID, func(f *Folder) error {
		child := item.withParent(f.ID)
		if index < 0 || index > len(f.Children) {
			index = len(f.Children)
		}

		f.Children = append(f.Children, nil)
		copy(f.Children[index+1:], f.Children[index:])
		f.Children[index] = child

		return nil
	})
}

// RemoveItem deletes the referenced item and its subtree.
func RemoveItem(root *Folder, ref Ref) (*Folder, error) {
	if ref.Kind == KindFolder && ref.ID == root.ID {
		return nil, apperrors.ErrRootModification
	}

	parent, _ := findContainer(root, ref)
	if parent == nil {
		return nil, fmt.Errorf("%w: %s %s", apperrors.ErrUnknownItem, ref.Kind, ref.ID)
	}

	return updateFolder(root, parent.ID, func(f *Folder) error {
		i := childIndex(f, ref)
		f.Children = append(f.Children[:i], f.Children[i+1:]...)

		return nil
	})
}

// ReplaceItem swaps the item with the same ref for item, keeping its place.
// Replacing the root returns item as the new root.
func ReplaceItem(root *Folder, item Item) (*Folder, error) {
	ref := item.Ref()
	if ref.Kind == KindFolder && ref.ID == root.ID {
		f, _ := item.(*Folder)
		return f, nil
	}

	parent, _ := findContainer(root, ref)
	if parent == nil {
		return nil, fmt.Errorf("%w: %s %s", apperrors.ErrUnknownItem, ref.Kind, ref.ID)
	}

	return updateFolder(root, parent.ID, func(f *Folder) error {
		f.Children[childIndex(f, ref)] = item.withParent(f.ID)
		return nil
	})
}

// MoveItem moves the referenced item into newParentID at index. Moving a
// folder into itself or one of its descendants is refused.
func MoveItem(root *Folder, ref Ref, newParentID string, index int) (*Folder, error) {
	_, item := findContainer(root, ref)
	if item == nil {
		return nil, fmt.Errorf("%w: %s %s", apperrors.ErrUnknownItem, ref.Kind, ref.ID)
	}

	if f, ok := item.(*Folder); ok && f.FindFolder(newParentID) != nil {
		return nil, &apperrors.CycleError{ItemID: f.ID, Title: f.Title, TargetID: newParentID}
	}

	if root.FindFolder(newParentID) == nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownParent, newParentID)
	}

	without, err := RemoveItem(root, ref)
	if err != nil {
		return nil, err
	}

	return InsertItem(without, newParentID, item, index)
}

// ReorderChildren sets the order of a folder's children. order must name
// every child exactly once.
func ReorderChildren(root *Folder, folderID string, order []Ref) (*Folder, error) {
	return updateFolder(root, folderID, func(f *Folder) error {
		if len(order) != len(f.Children) {
			return fmt.Errorf("%w: folder %s has %d children, order has %d",
				apperrors.ErrMissingOrderItem, folderID, len(f.Children), len(order))
		}

		byRef := make(map[Ref]Item, len(f.Children))
		for _, child := range f.Children {
			byRef[child.Ref()] = child
		}

		children := make([]Item, 0, len(order))

		for _, ref := range order {
			child, ok := byRef[ref]
			if !ok {
				return fmt.Errorf("%w: %s %s", apperrors.ErrUnknownOrderItem, ref.Kind, ref.ID)
			}

			delete(byRef, ref)
			children = append(children, child)
		}

		f.Children = children

		return nil
	})
}

// updateFolder applies fn to a copy of the folder folderID and rebuilds the
// path up to the root.
func updateFolder(root *Folder, folderID string, fn func(f *Folder) error) (*Folder, error) {
	path := folderPath(root, folderID)
	if path == nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownParent, folderID)
	}

	updated := path[len(path)-1].shallow()
	if err := fn(updated); err != nil {
		return nil, err
	}

	for i := len(path) - 2; i >= 0; i-- {
		parent := path[i].shallow()
		parent.Children[childIndex(parent, updated.Ref())] = updated
		updated = parent
	}

	return updated, nil
}

// folderPath returns the folders from root down to folderID inclusive.
func folderPath(root *Folder, folderID string) []*Folder {
	if root.ID == folderID {
		return []*Folder{root}
	}

	for _, child := range root.Children {
		sub, ok := child.(*Folder)
		if !ok {
			continue
		}

		if rest := folderPath(sub, folderID); rest != nil {
			return append([]*Folder{root}, rest...)
		}
	}

	return nil
}

// findContainer returns the folder holding ref and the item itself.
func findContainer(root *Folder, ref Ref) (*Folder, Item) {
	for _, child := range root.Children {
		if child.Ref() == ref {
			return root, child
		}

		if sub, ok := child.(*Folder); ok {
			if parent, item := findContainer(sub, ref); parent != nil {
				return parent, item
			}
		}
	}

	return nil, nil
}

func childIndex(f *Folder, ref Ref) int {
	for i, child := range f.Children {
		if child.Ref() == ref {
			return i
		}
	}

	return -1
}
