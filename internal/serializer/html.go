package serializer

import (
	"bytes"
	"html"
	"strings"

	"github.com/alexjbarnes/marksync/internal/tree"
	nethtml "golang.org/x/net/html"
)

const htmlHeader = `<!DOCTYPE NETSCAPE-Bookmark-file-1>
<META HTTP-EQUIV="Content-Type" CONTENT="text/html; charset=UTF-8">
<TITLE>Bookmarks</TITLE>
<H1>Bookmarks</H1>
`

// MarshalHTML encodes root in the Netscape bookmark file format understood
// by every browser's import dialog. Item ids are kept in ID attributes.
func MarshalHTML(root *tree.Folder) []byte {
	return encodeHTML(root, 0)
}

func encodeHTML(root *tree.Folder, highest int) []byte {
	var buf bytes.Buffer

	buf.WriteString(htmlHeader)

	if highest > 0 {
		buf.WriteString("<!--" + highestMarker(highest) + "-->\n")
	}

	buf.WriteString("<DL><p>\n")
	writeHTMLFolder(&buf, root, "    ")
	buf.WriteString("</DL><p>\n")

	return buf.Bytes()
}

func writeHTMLFolder(buf *bytes.Buffer, folder *tree.Folder, indent string) {
	for _, child := range folder.Children {
		switch it := child.(type) {
		case *tree.Bookmark:
			buf.WriteString(indent)
			buf.WriteString(`<DT><A HREF="`)
			buf.WriteString(html.EscapeString(it.URL))
			buf.WriteString(`" ID="`)
			buf.WriteString(html.EscapeString(it.ID))
			buf.WriteString(`">`)
			buf.WriteString(html.EscapeString(it.Title))
			buf.WriteString("</A>\n")
		case *tree.Folder:
			buf.WriteString(indent)
			buf.WriteString(`<DT><H3 ID="`)
			buf.WriteString(html.EscapeString(it.ID))
			buf.WriteString(`">`)
			buf.WriteString(html.EscapeString(it.Title))
			buf.WriteString("</H3>\n")
			buf.WriteString(indent)
			buf.WriteString("<DL><p>\n")
			writeHTMLFolder(buf, it, indent+"    ")
			buf.WriteString(indent)
			buf.WriteString("</DL><p>\n")
		}
	}
}

// UnmarshalHTML decodes a Netscape bookmark file. Folders are <H3> headers
// followed by a <DL> list; bookmarks are <A> elements.
func UnmarshalHTML(data []byte) (*tree.Folder, error) {
	doc, err := nethtml.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, parseError(FormatHTML, err)
	}

	root := tree.NewRoot("", RootID)
	stack := []*tree.Folder{root}

	// A folder header opens a folder that is only closed when the <DL>
	// that follows it ends. pending tracks headers still waiting for it.
	var pending *tree.Folder

	var walk func(n *nethtml.Node)

	walk = func(n *nethtml.Node) {
		opened := false

		if n.Type == nethtml.ElementNode {
			switch n.Data {
			case "h3":
				f := tree.NewFolder("", attr(n, "id"), "", textContent(n))
				current := stack[len(stack)-1]
				current.Children = append(current.Children, f)
				pending = f
			case "a":
				if href := attr(n, "href"); href != "" {
					b := tree.NewBookmark("", attr(n, "id"), "", textContent(n), href)
					current := stack[len(stack)-1]
					current.Children = append(current.Children, b)
				}
			case "dl":
				if pending != nil {
					stack = append(stack, pending)
					pending = nil
					opened = true
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if opened {
			stack = stack[:len(stack)-1]
		}
	}

	walk(doc)

	return root, nil
}

func attr(n *nethtml.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}

	return ""
}

func textContent(n *nethtml.Node) string {
	var b strings.Builder

	var collect func(*nethtml.Node)

	collect = func(n *nethtml.Node) {
		if n.Type == nethtml.TextNode {
			b.WriteString(n.Data)
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}

	collect(n)

	return strings.TrimSpace(b.String())
}
