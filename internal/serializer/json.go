package serializer

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alexjbarnes/marksync/internal/tree"
	"github.com/tidwall/gjson"
)

type jsonNode struct {
	Type     string     `json:"type"`
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	URL      string     `json:"url,omitempty"`
	Children []jsonNode `json:"children,omitempty"`

	// HighestID is only set on the root node.
	HighestID int `json:"highestId,omitempty"`
}

// MarshalJSON encodes root, including the root folder itself.
func MarshalJSON(root *tree.Folder) ([]byte, error) {
	return encodeJSON(root, 0)
}

func encodeJSON(root *tree.Folder, highest int) ([]byte, error) {
	n := toJSON(root)
	n.HighestID = highest

	return json.MarshalIndent(n, "", "  ")
}

func toJSON(item tree.Item) jsonNode {
	switch it := item.(type) {
	case *tree.Bookmark:
		return jsonNode{Type: string(tree.KindBookmark), ID: it.ID, Title: it.Title, URL: it.URL}
	case *tree.Folder:
		n := jsonNode{Type: string(tree.KindFolder), ID: it.ID, Title: it.Title, Children: []jsonNode{}}
		for _, child := range it.Children {
			n.Children = append(n.Children, toJSON(child))
		}

		return n
	}

	return jsonNode{}
}

// UnmarshalJSON decodes a document produced by MarshalJSON.
func UnmarshalJSON(data []byte) (*tree.Folder, error) {
	if !gjson.ValidBytes(data) {
		return nil, parseError(FormatJSON, errors.New("invalid json"))
	}

	doc := gjson.ParseBytes(data)
	if doc.Get("type").String() != string(tree.KindFolder) {
		return nil, parseError(FormatJSON, errors.New("top level value is not a folder"))
	}

	root, err := fromJSON(doc)
	if err != nil {
		return nil, parseError(FormatJSON, err)
	}

	f := root.(*tree.Folder)
	f.IsRoot = true

	return f, nil
}

func fromJSON(v gjson.Result) (tree.Item, error) {
	id := v.Get("id").String()
	title := v.Get("title").String()

	switch kind := v.Get("type").String(); kind {
	case string(tree.KindBookmark):
		return tree.NewBookmark("", id, "", title, v.Get("url").String()), nil
	case string(tree.KindFolder):
		f := tree.NewFolder("", id, "", title)

		var err error

		v.Get("children").ForEach(func(_, child gjson.Result) bool {
			var item tree.Item

			item, err = fromJSON(child)
			if err != nil {
				return false
			}

			f.Children = append(f.Children, item)

			return true
		})

		return f, err
	default:
		return nil, fmt.Errorf("unknown item type %q", kind)
	}
}
