package engine

import (
	"fmt"

	"github.com/alexjbarnes/marksync/internal/mapping"
	"github.com/alexjbarnes/marksync/internal/tree"
)

// key is the identity of an item across the three trees of a pass. Items
// known locally use their local id; server items without a local
// counterpart use their server id and have server set.
type key struct {
	kind   tree.Kind
	id     string
	server bool
}

func (k key) String() string {
	if k.server {
		return fmt.Sprintf("%s:server:%s", k.kind, k.id)
	}

	return fmt.Sprintf("%s:%s", k.kind, k.id)
}

// side is one tree of a pass with every item translated to its key.
type side struct {
	loc    tree.Location
	root   *tree.Folder
	idx    *tree.Index
	keys   []key // pre-order, root excluded
	items  map[key]tree.Item
	parent map[key]key
	keyOf  map[tree.Ref]key
}

func newSide(loc tree.Location, root *tree.Folder, rootKey key) (*side, error) {
	idx, err := tree.NewIndex(root)
	if err != nil {
		return nil, fmt.Errorf("indexing %s tree: %w", loc, err)
	}

	return &side{
		loc:    loc,
		root:   root,
		idx:    idx,
		items:  map[key]tree.Item{rootKey: root},
		parent: make(map[key]key),
		keyOf:  map[tree.Ref]key{root.Ref(): rootKey},
	}, nil
}

func (s *side) add(k key, item tree.Item, parent key) {
	s.keys = append(s.keys, k)
	s.items[k] = item
	s.parent[k] = parent
	s.keyOf[item.Ref()] = k
}

func (s *side) has(k key) bool {
	_, ok := s.items[k]
	return ok
}

// localSide keys a tree whose ids are local ids: the local tree or the
// cache.
func localSide(loc tree.Location, root *tree.Folder, rootKey key) (*side, error) {
	s, err := newSide(loc, root, rootKey)
	if err != nil {
		return nil, err
	}

	root.Traverse(func(item tree.Item, parent *tree.Folder) {
		s.add(key{kind: item.Kind(), id: item.GetID()}, item, s.keyOf[parent.Ref()])
	})

	return s, nil
}

// scanServer keys the server tree. Mapped items whose local id is still
// known take that key. Unmapped items are paired with unmapped local items
// of the same signature under the same parent; such pairs get a new
// mapping instead of being created twice.
func scanServer(root *tree.Folder, rootKey key, local, cache *side, m *mapping.Mappings) (*side, error) {
	s, err := newSide(tree.Server, root, rootKey)
	if err != nil {
		return nil, err
	}

	known := func(k key) bool {
		return local.has(k) || cache.has(k)
	}

	matched := make(map[key]bool)
	candidates := newCandidates(local, cache, m, s.idx)

	root.Traverse(func(item tree.Item, parent *tree.Folder) {
		parentKey := s.keyOf[parent.Ref()]

		if localID, ok := m.Get(item.Kind(), tree.Server, item.GetID()); ok {
			k := key{kind: item.Kind(), id: localID}
			if known(k) && !matched[k] {
				matched[k] = true
				s.add(k, item, parentKey)

				return
			}
		}

		if k, ok := candidates.take(parentKey, item); ok {
			m.Add(item.Kind(), k.id, item.GetID())
			matched[k] = true
			s.add(k, item, parentKey)

			return
		}

		s.add(key{kind: item.Kind(), id: item.GetID(), server: true}, item, parentKey)
	})

	return s, nil
}

// candidates indexes local items that have no server counterpart yet by
// parent and signature, in declaration order. Items mapped to a server id
// that no longer exists count as unmapped.
type candidates struct {
	bySignature map[candidateKey][]key
	local       *side
	used        map[key]bool
}

type candidateKey struct {
	parent    key
	signature string
}

func newCandidates(local, cache *side, m *mapping.Mappings, server *tree.Index) *candidates {
	c := &candidates{
		bySignature: make(map[candidateKey][]key),
		local:       local,
		used:        make(map[key]bool),
	}

	for _, k := range local.keys {
		if cache.has(k) {
			continue
		}

		if serverID, mapped := m.Get(k.kind, tree.Local, k.id); mapped {
			if _, present := server.Get(tree.Ref{Kind: k.kind, ID: serverID}); present {
				continue
			}
		}

		ck := candidateKey{parent: local.parent[k], signature: tree.Signature(local.items[k])}
		c.bySignature[ck] = append(c.bySignature[ck], k)
	}

	return c
}

// take returns the best unused local candidate for a server item. Folders
// with several candidates prefer the one whose children are most similar;
// otherwise declaration order decides.
func (c *candidates) take(parent key, item tree.Item) (key, bool) {
	list := c.bySignature[candidateKey{parent: parent, signature: tree.Signature(item)}]

	var (
		best      key
		found     bool
		bestScore = -1.0
	)

	for _, k := range list {
		if c.used[k] {
			continue
		}

		score := 0.0

		if f, ok := item.(*tree.Folder); ok {
			if lf, ok := c.local.items[k].(*tree.Folder); ok {
				score = tree.ChildrenSimilarity(lf, f)
			}
		}

		if !found || score > bestScore {
			best, bestScore, found = k, score, true
		}

		if item.Kind() == tree.KindBookmark {
			break
		}
	}

	if found {
		c.used[best] = true
	}

	return best, found
}
