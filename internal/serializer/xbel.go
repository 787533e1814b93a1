package serializer

import (
	"bytes"
	"encoding/xml"
	"errors"

	"github.com/alexjbarnes/marksync/internal/tree"
)

const xbelHeader = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE xbel PUBLIC "+//IDN python.org//DTD XML Bookmark Exchange Language 1.0//EN//XML" "http://pyxml.sourceforge.net/topics/dtds/xbel.dtd">
`

type xbelDocument struct {
	XMLName xml.Name    `xml:"xbel"`
	Version string      `xml:"version,attr"`
	Marker  xml.Comment `xml:",comment"`
	Nodes   []xbelNode  `xml:",any"`
}

// xbelNode is a <folder> or <bookmark>. Other elements such as <separator>
// or <info> are decoded but skipped.
type xbelNode struct {
	XMLName xml.Name
	ID      string     `xml:"id,attr,omitempty"`
	Href    string     `xml:"href,attr,omitempty"`
	Title   string     `xml:"title"`
	Nodes   []xbelNode `xml:",any"`
}

// MarshalXBEL encodes root as an XBEL 1.0 document.
func MarshalXBEL(root *tree.Folder) ([]byte, error) {
	return encodeXBEL(root, 0)
}

func encodeXBEL(root *tree.Folder, highest int) ([]byte, error) {
	doc := xbelDocument{Version: "1.0", Nodes: toXBEL(root.Children)}
	if highest > 0 {
		doc.Marker = xml.Comment(highestMarker(highest))
	}

	var buf bytes.Buffer

	buf.WriteString(xbelHeader)

	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	if err := enc.Encode(doc); err != nil {
		return nil, err
	}

	buf.WriteByte('\n')

	return buf.Bytes(), nil
}

func toXBEL(items []tree.Item) []xbelNode {
	nodes := make([]xbelNode, 0, len(items))

	for _, item := range items {
		switch it := item.(type) {
		case *tree.Bookmark:
			nodes = append(nodes, xbelNode{
				XMLName: xml.Name{Local: "bookmark"},
				ID:      it.ID,
				Href:    it.URL,
				Title:   it.Title,
			})
		case *tree.Folder:
			nodes = append(nodes, xbelNode{
				XMLName: xml.Name{Local: "folder"},
				ID:      it.ID,
				Title:   it.Title,
				Nodes:   toXBEL(it.Children),
			})
		}
	}

	return nodes
}

// UnmarshalXBEL decodes an XBEL document. Ids are taken from the id
// attributes when present.
func UnmarshalXBEL(data []byte) (*tree.Folder, error) {
	var doc xbelDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, parseError(FormatXBEL, err)
	}

	if doc.XMLName.Local != "xbel" {
		return nil, parseError(FormatXBEL, errors.New("missing xbel element"))
	}

	root := tree.NewRoot("", RootID)
	root.Children = fromXBEL(doc.Nodes)

	return root, nil
}

func fromXBEL(nodes []xbelNode) []tree.Item {
	items := make([]tree.Item, 0, len(nodes))

	for _, n := range nodes {
		switch n.XMLName.Local {
		case "bookmark":
			items = append(items, tree.NewBookmark("", n.ID, "", n.Title, n.Href))
		case "folder":
			items = append(items, tree.NewFolder("", n.ID, "", n.Title, fromXBEL(n.Nodes)...))
		}
	}

	return items
}
