// Package serializer converts bookmark trees to and from the file formats
// understood by file based backends: XBEL, Netscape HTML and JSON.
package serializer

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/alexjbarnes/marksync/internal/errors"
	"github.com/alexjbarnes/marksync/internal/tree"
	"github.com/tidwall/gjson"
)

// Format names a file encoding.
type Format string

const (
	FormatXBEL Format = "xbel"
	FormatHTML Format = "html"
	FormatJSON Format = "json"
)

// RootID is the id given to the root folder of a decoded file.
const RootID = "0"

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	switch f {
	case FormatXBEL, FormatHTML, FormatJSON:
		return true
	}

	return false
}

// Detect guesses the format of data from its first bytes. Anything that is
// neither XML nor JSON is treated as Netscape HTML.
func Detect(data []byte) Format {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	data = bytes.TrimLeft(data, " \t\r\n")

	switch {
	case bytes.HasPrefix(data, []byte("<?xml")), bytes.HasPrefix(data, []byte("<xbel")):
		return FormatXBEL
	case bytes.HasPrefix(data, []byte("{")), bytes.HasPrefix(data, []byte("[")):
		return FormatJSON
	default:
		return FormatHTML
	}
}

// FromPath returns the format implied by the extension of path, or "".
func FromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xbel", ".xml":
		return FormatXBEL
	case ".html", ".htm":
		return FormatHTML
	case ".json":
		return FormatJSON
	}

	return ""
}

// Marshal encodes the children of root in the given format.
func Marshal(format Format, root *tree.Folder) ([]byte, error) {
	switch format {
	case FormatXBEL:
		return MarshalXBEL(root)
	case FormatHTML:
		return MarshalHTML(root), nil
	case FormatJSON:
		return MarshalJSON(root)
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// Document is a decoded bookmarks file together with the highest numeric
// id ever handed out in it. Ids of deleted items stay below HighestID so
// they are never given to a new item.
type Document struct {
	Root      *tree.Folder
	HighestID int
}

// Encode is Marshal plus the highest id marker. XBEL and HTML carry it in
// a comment, JSON in a top-level highestId field. A zero HighestID writes
// no marker.
func Encode(format Format, doc Document) ([]byte, error) {
	switch format {
	case FormatXBEL:
		return encodeXBEL(doc.Root, doc.HighestID)
	case FormatHTML:
		return encodeHTML(doc.Root, doc.HighestID), nil
	case FormatJSON:
		return encodeJSON(doc.Root, doc.HighestID)
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// Decode is Unmarshal plus the highest id marker. HighestID is never below
// the highest numeric id in the tree, so files without a marker still
// decode to a usable high-water mark.
func Decode(format Format, data []byte, loc tree.Location) (*Document, error) {
	root, err := Unmarshal(format, data, loc)
	if err != nil {
		return nil, err
	}

	return &Document{
		Root:      root,
		HighestID: max(HighestID(format, data), tree.HighestNumericID(root)),
	}, nil
}

var highestPattern = regexp.MustCompile(`highestId :(\d+):`)

// HighestID returns the value of the highest id marker in data, or 0 when
// there is none.
func HighestID(format Format, data []byte) int {
	if format == FormatJSON {
		return int(gjson.GetBytes(data, "highestId").Int())
	}

	m := highestPattern.FindSubmatch(data)
	if m == nil {
		return 0
	}

	n, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return 0
	}

	return n
}

// highestMarker is the comment body. The leading dash gives the "<!---"
// opening other sync clients look for.
func highestMarker(n int) string {
	return "- highestId :" + strconv.Itoa(n) + ": for marksync bookmark sync "
}

// Unmarshal decodes data into a tree on side loc. Items without ids in the
// file get fresh numeric ids above the highest id present.
func Unmarshal(format Format, data []byte, loc tree.Location) (*tree.Folder, error) {
	var (
		root *tree.Folder
		err  error
	)

	switch format {
	case FormatXBEL:
		root, err = UnmarshalXBEL(data)
	case FormatHTML:
		root, err = UnmarshalHTML(data)
	case FormatJSON:
		root, err = UnmarshalJSON(data)
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}

	if err != nil {
		return nil, err
	}

	assignIDs(root)

	return root.Clone(loc), nil
}

// assignIDs fills empty ids and fixes parent ids to match containment.
func assignIDs(root *tree.Folder) {
	next := tree.HighestNumericID(root) + 1
	if root.ID == "" {
		root.ID = RootID
	}

	root.IsRoot = true
	root.ParentID = ""

	var walk func(f *tree.Folder)

	walk = func(f *tree.Folder) {
		for _, child := range f.Children {
			switch it := child.(type) {
			case *tree.Bookmark:
				if it.ID == "" {
					it.ID = strconv.Itoa(next)
					next++
				}

				it.ParentID = f.ID
			case *tree.Folder:
				if it.ID == "" {
					it.ID = strconv.Itoa(next)
					next++
				}

				it.ParentID = f.ID
				walk(it)
			}
		}
	}

	walk(root)
}

func parseError(format Format, err error) error {
	return fmt.Errorf("%w: %s: %v", apperrors.ErrParse, format, err)
}
