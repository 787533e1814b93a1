// Package tree holds the bookmark tree model shared by every adapter and the
// sync engine: bookmarks, folders, content hashes, lookup indexes and
// copy-on-write edits.
package tree

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Location identifies which side of a sync pass an item belongs to. Item ids
// are only meaningful within their location.
type Location string

const (
	Local  Location = "local"
	Server Location = "server"
)

// Other returns the opposite side.
func (l Location) Other() Location {
	if l == Local {
		return Server
	}

	return Local
}

// Kind discriminates the two item variants.
type Kind string

const (
	KindBookmark Kind = "bookmark"
	KindFolder   Kind = "folder"
)

// Ref names an item without holding it. Ids of different kinds may collide,
// so the kind is part of the identity.
type Ref struct {
	Kind Kind   `json:"type"`
	ID   string `json:"id"`
}

// Item is either a *Bookmark or a *Folder.
type Item interface {
	Kind() Kind
	GetID() string
	GetParentID() string
	GetTitle() string
	GetLocation() Location
	Ref() Ref

	// Hash returns the id independent content hash. For folders the order
	// of children is only part of the hash when preserveOrder is set.
	Hash(preserveOrder bool) string

	// Copy returns a deep copy moved to loc. An empty loc keeps the
	// current location.
	Copy(loc Location) Item

	withParent(parentID string) Item
}

// Bookmark is a leaf of the tree.
type Bookmark struct {
	ID       string   `json:"id"`
	ParentID string   `json:"parentId"`
	Title    string   `json:"title"`
	URL      string   `json:"url"`
	Location Location `json:"location"`
}

// NewBookmark builds a bookmark on the given side.
func NewBookmark(loc Location, id, parentID, title, url string) *Bookmark {
	return &Bookmark{ID: id, ParentID: parentID, Title: title, URL: url, Location: loc}
}

func (b *Bookmark) Kind() Kind            { return KindBookmark }
func (b *Bookmark) GetID() string         { return b.ID }
func (b *Bookmark) GetParentID() string   { return b.ParentID }
func (b *Bookmark) GetTitle() string      { return b.Title }
func (b *Bookmark) GetLocation() Location { return b.Location }
func (b *Bookmark) Ref() Ref              { return Ref{Kind: KindBookmark, ID: b.ID} }

func (b *Bookmark) Hash(bool) string {
	return hashBookmark(b)
}

func (b *Bookmark) Copy(loc Location) Item {
	c := *b
	if loc != "" {
		c.Location = loc
	}

	return &c
}

func (b *Bookmark) withParent(parentID string) Item {
	c := *b
	c.ParentID = parentID

	return &c
}

// Folder is an ordered container of items. Folders are treated as immutable
// once they are shared; edits go through the copy-on-write helpers in
// edit.go.
type Folder struct {
	ID       string   `json:"id"`
	ParentID string   `json:"parentId"`
	Title    string   `json:"title"`
	Children []Item   `json:"children"`
	IsRoot   bool     `json:"isRoot,omitempty"`
	Location Location `json:"location"`

	index *Index
}

// NewFolder builds a folder on the given side.
func NewFolder(loc Location, id, parentID, title string, children ...Item) *Folder {
	return &Folder{ID: id, ParentID: parentID, Title: title, Children: children, Location: loc}
}

// NewRoot builds a root folder.
func NewRoot(loc Location, id string, children ...Item) *Folder {
	f := NewFolder(loc, id, "", "", children...)
	f.IsRoot = true

	return f
}

func (f *Folder) Kind() Kind            { return KindFolder }
func (f *Folder) GetID() string         { return f.ID }
func (f *Folder) GetParentID() string   { return f.ParentID }
func (f *Folder) GetTitle() string      { return f.Title }
func (f *Folder) GetLocation() Location { return f.Location }
func (f *Folder) Ref() Ref              { return Ref{Kind: KindFolder, ID: f.ID} }

func (f *Folder) Hash(preserveOrder bool) string {
	return NewHasher(preserveOrder).Hash(f)
}

func (f *Folder) Copy(loc Location) Item {
	return f.Clone(loc)
}

// Clone deep copies the folder and its subtree. An empty loc keeps the
// current location.
func (f *Folder) Clone(loc Location) *Folder {
	c := &Folder{
		ID:       f.ID,
		ParentID: f.ParentID,
		Title:    f.Title,
		IsRoot:   f.IsRoot,
		Location: f.Location,
	}
	if loc != "" {
		c.Location = loc
	}

	c.Children = make([]Item, len(f.Children))
	for i, child := range f.Children {
		c.Children[i] = child.Copy(loc)
	}

	return c
}

func (f *Folder) withParent(parentID string) Item {
	c := f.shallow()
	c.ParentID = parentID

	return c
}

// shallow copies the folder struct and its children slice. Child items are
// shared.
func (f *Folder) shallow() *Folder {
	c := *f
	c.Children = append([]Item(nil), f.Children...)
	c.index = nil

	return &c
}

// Count returns the number of bookmarks in the subtree.
func (f *Folder) Count() int {
	n := 0
	f.Traverse(func(item Item, _ *Folder) {
		if item.Kind() == KindBookmark {
			n++
		}
	})

	return n
}

// CountFolders returns the number of folders below f.
func (f *Folder) CountFolders() int {
	n := 0
	f.Traverse(func(item Item, _ *Folder) {
		if item.Kind() == KindFolder {
			n++
		}
	})

	return n
}

// CountItems returns the number of bookmarks and folders below f.
func (f *Folder) CountItems() int {
	n := 0
	f.Traverse(func(Item, *Folder) { n++ })

	return n
}

// Traverse calls fn for every item below f in pre-order, together with the
// folder that contains it. f itself is not visited.
func (f *Folder) Traverse(fn func(item Item, parent *Folder)) {
	for _, child := range f.Children {
		fn(child, f)

		if sub, ok := child.(*Folder); ok {
			sub.Traverse(fn)
		}
	}
}

// NormalizeTitle trims and NFC normalizes a title for comparisons.
func NormalizeTitle(title string) string {
	return norm.NFC.String(strings.TrimSpace(title))
}

// Signature is the content key used to recognize an item created
// independently on both sides.
func Signature(item Item) string {
	sig := string(item.Kind()) + "\x00" + NormalizeTitle(item.GetTitle())
	if b, ok := item.(*Bookmark); ok {
		sig += "\x00" + NormalizeURL(b.URL)
	}

	return sig
}

// ChildrenSimilarity returns the share of child signatures the two folders
// have in common, relative to the larger folder.
func ChildrenSimilarity(a, b *Folder) float64 {
	larger := max(len(a.Children), len(b.Children))
	if larger == 0 {
		return 1
	}

	seen := make(map[string]int, len(a.Children))
	for _, child := range a.Children {
		seen[Signature(child)]++
	}

	common := 0

	for _, child := range b.Children {
		sig := Signature(child)
		if seen[sig] > 0 {
			seen[sig]--
			common++
		}
	}

	return float64(common) / float64(larger)
}

// HighestNumericID returns the largest id in the subtree that parses as an
// integer, 0 if there is none. Backends with sequential ids continue after
// it.
func HighestNumericID(root *Folder) int {
	highest := 0
	if n, err := strconv.Atoi(root.ID); err == nil {
		highest = n
	}

	root.Traverse(func(item Item, _ *Folder) {
		if n, err := strconv.Atoi(item.GetID()); err == nil && n > highest {
			highest = n
		}
	})

	return highest
}
