package tree

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spaolacci/murmur3"
)

// Hasher computes content hashes and memoizes folder results. A Hasher is
// only valid for trees that are not mutated while it is in use; create one
// per sync pass.
type Hasher struct {
	preserveOrder bool
	folders       map[*Folder]string
}

// NewHasher returns a hasher. With preserveOrder the order of children is
// part of a folder's hash.
func NewHasher(preserveOrder bool) *Hasher {
	return &Hasher{preserveOrder: preserveOrder, folders: make(map[*Folder]string)}
}

// Hash returns the content hash of item.
func (h *Hasher) Hash(item Item) string {
	switch it := item.(type) {
	case *Bookmark:
		return hashBookmark(it)
	case *Folder:
		return h.hashFolder(it)
	default:
		return ""
	}
}

func (h *Hasher) hashFolder(f *Folder) string {
	if sum, ok := h.folders[f]; ok {
		return sum
	}

	children := make([]string, len(f.Children))
	for i, child := range f.Children {
		children[i] = h.Hash(child)
	}

	if !h.preserveOrder {
		sort.Strings(children)
	}

	var b strings.Builder

	b.WriteString("folder\x00")
	b.WriteString(NormalizeTitle(f.Title))

	for _, c := range children {
		b.WriteByte(0)
		b.WriteString(c)
	}

	sum := digest(b.String())
	h.folders[f] = sum

	return sum
}

func hashBookmark(b *Bookmark) string {
	return digest("bookmark\x00" + NormalizeTitle(b.Title) + "\x00" + NormalizeURL(b.URL))
}

func digest(s string) string {
	h1, h2 := murmur3.Sum128([]byte(s))

	return fmt.Sprintf("%016x%016x", h1, h2)
}
