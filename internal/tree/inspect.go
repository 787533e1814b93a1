package tree

import (
	"fmt"
	"strings"
)

// Inspect renders the subtree as an indented outline, one item per line.
// With withIDs each line carries the item id, which makes the output useful
// for debugging but not for comparing trees of different locations.
func Inspect(item Item, withIDs bool) string {
	var b strings.Builder
	inspect(&b, item, 0, withIDs)

	return b.String()
}

func inspect(b *strings.Builder, item Item, depth int, withIDs bool) {
	b.WriteString(strings.Repeat("  ", depth))

	switch it := item.(type) {
	case *Folder:
		title := it.Title
		if it.IsRoot {
			title = "(root)"
		}

		fmt.Fprintf(b, "+ %s", title)

		if withIDs {
			fmt.Fprintf(b, " [%s]", it.ID)
		}

		b.WriteByte('\n')

		for _, child := range it.Children {
			inspect(b, child, depth+1, withIDs)
		}
	case *Bookmark:
		fmt.Fprintf(b, "- %s <%s>", it.Title, it.URL)

		if withIDs {
			fmt.Fprintf(b, " [%s]", it.ID)
		}

		b.WriteByte('\n')
	}
}
