package engine

import (
	"log/slog"

	apperrors "github.com/alexjbarnes/marksync/internal/errors"
	"github.com/alexjbarnes/marksync/internal/tree"
)

// node is one item of the desired tree.
type node struct {
	key      key
	title    string
	url      string
	parent   key
	children []key
}

// desired is the tree both sides should look like after the pass, in key
// space.
type desired struct {
	root  key
	nodes map[key]*node
}

func (d *desired) has(k key) bool {
	_, ok := d.nodes[k]
	return ok
}

// walk visits every node below the root in pre-order with its depth.
func (d *desired) walk(fn func(n *node, depth int)) {
	var visit func(k key, depth int)

	visit = func(k key, depth int) {
		for _, c := range d.nodes[k].children {
			fn(d.nodes[c], depth)
			visit(c, depth+1)
		}
	}

	visit(d.root, 1)
}

// isAncestor reports whether a is b or one of b's ancestors in the desired
// tree.
func (d *desired) isAncestor(a, b key) bool {
	for steps := 0; steps <= len(d.nodes); steps++ {
		if a == b {
			return true
		}

		n, ok := d.nodes[b]
		if !ok || b == d.root {
			return false
		}

		b = n.parent
	}

	return true
}

// toFolder renders the desired tree with keys as ids, for previews.
func (d *desired) toFolder() *tree.Folder {
	var build func(k key) []tree.Item

	build = func(k key) []tree.Item {
		items := make([]tree.Item, 0, len(d.nodes[k].children))

		for _, c := range d.nodes[k].children {
			n := d.nodes[c]
			if c.kind == tree.KindFolder {
				items = append(items, tree.NewFolder("", c.String(), k.String(), n.title, build(c)...))
			} else {
				items = append(items, tree.NewBookmark("", c.String(), k.String(), n.title, n.url))
			}
		}

		return items
	}

	return tree.NewRoot("", d.root.String(), build(d.root)...)
}

// merger computes the desired tree of a pass.
type merger struct {
	policy policy
	root   key
	cache  *side
	local  *side
	server *side
	hasher *tree.Hasher
	logger *slog.Logger

	// errs collects refused moves.
	errs []error
}

func (m *merger) sideOf(loc tree.Location) *side {
	if loc == tree.Local {
		return m.local
	}

	return m.server
}

// order lists every key once: master side pre-order first, then the items
// only known to the other side.
func (m *merger) order() []key {
	master := m.sideOf(m.policy.master)
	other := m.sideOf(m.policy.master.Other())

	seen := make(map[key]bool, len(master.keys)+len(other.keys))
	keys := make([]key, 0, len(master.keys)+len(other.keys))

	for _, list := range [][]key{master.keys, other.keys} {
		for _, k := range list {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}

	return keys
}

// changed reports whether s changed k since the cache: a different hash
// (for folders, anywhere in the subtree) or a different parent.
func (m *merger) changed(s *side, k key) bool {
	c, ok := m.cache.items[k]
	if !ok {
		return true
	}

	if m.hasher.Hash(s.items[k]) != m.hasher.Hash(c) {
		return true
	}

	return s.parent[k] != m.cache.parent[k]
}

// contentChanged compares only the fields of the item itself.
func (m *merger) contentChanged(s *side, k key) bool {
	c, ok := m.cache.items[k]
	if !ok {
		return true
	}

	return !sameContent(s.items[k], c)
}

func sameContent(a, b tree.Item) bool {
	if a.GetTitle() != b.GetTitle() {
		return false
	}

	ab, aok := a.(*tree.Bookmark)
	bb, bok := b.(*tree.Bookmark)

	if aok && bok {
		return tree.NormalizeURL(ab.URL) == tree.NormalizeURL(bb.URL)
	}

	return aok == bok
}

// build computes the desired tree.
func (m *merger) build() *desired {
	keys := m.order()
	alive := m.existing(keys)

	d := &desired{root: m.root, nodes: map[key]*node{m.root: {key: m.root}}}

	for _, k := range keys {
		if alive[k] {
			d.nodes[k] = m.content(k)
		}
	}

	pending := m.assignParents(d, keys)
	m.applyMoves(d, pending)
	m.breakCycles(d, keys)

	for _, k := range keys {
		if n, ok := d.nodes[k]; ok {
			d.nodes[n.parent].children = append(d.nodes[n.parent].children, k)
		}
	}

	return d
}

// existing decides which keys survive the pass, before parents are
// checked.
func (m *merger) existing(keys []key) map[key]bool {
	master := m.policy.master
	alive := make(map[key]bool, len(keys))

	var resurrect []struct {
		k key
		s *side
	}

	for _, k := range keys {
		inL, inS := m.local.has(k), m.server.has(k)

		switch {
		case m.policy.mirror:
			alive[k] = m.sideOf(master).has(k)
		case !m.policy.threeWay:
			alive[k] = true
		case inL && inS:
			alive[k] = true
		case !m.cache.has(k):
			// New on one side.
			alive[k] = true
		default:
			// Removed on one side since the cache. A change on the
			// other side only survives when that side is the master.
			present := m.local
			if inS {
				present = m.server
			}

			if present.loc == master && m.changed(present, k) {
				alive[k] = true

				resurrect = append(resurrect, struct {
					k key
					s *side
				}{k, present})
			}
		}
	}

	// A kept item brings its whole subtree along, including unchanged
	// descendants the other side removed with it.
	for _, r := range resurrect {
		f, ok := r.s.items[r.k].(*tree.Folder)
		if !ok {
			continue
		}

		f.Traverse(func(item tree.Item, _ *tree.Folder) {
			alive[r.s.keyOf[item.Ref()]] = true
		})
	}

	return alive
}

// content picks title and url for k. The side that changed the item wins;
// the master wins when both did.
func (m *merger) content(k key) *node {
	masterSide := m.sideOf(m.policy.master)
	otherSide := m.sideOf(m.policy.master.Other())

	src := masterSide
	if !masterSide.has(k) {
		src = otherSide
	} else if otherSide.has(k) && m.policy.threeWay &&
		m.contentChanged(otherSide, k) && !m.contentChanged(masterSide, k) {
		src = otherSide
	}

	n := &node{key: k, title: src.items[k].GetTitle()}
	if b, ok := src.items[k].(*tree.Bookmark); ok {
		n.url = b.URL
	}

	return n
}

type move struct {
	key    key
	target key
}

// assignParents places every node under its master parent when it can and
// returns the moves made on the other side that still need a cycle check.
// Nodes without any surviving parent are dropped with their subtrees.
func (m *merger) assignParents(d *desired, keys []key) []move {
	masterSide := m.sideOf(m.policy.master)
	otherSide := m.sideOf(m.policy.master.Other())

	candidatesOf := func(k key) []key {
		var list []key
		if p, ok := masterSide.parent[k]; ok {
			list = append(list, p)
		}

		if p, ok := otherSide.parent[k]; ok {
			list = append(list, p)
		}

		return list
	}

	for changed := true; changed; {
		changed = false

		for _, k := range keys {
			n, ok := d.nodes[k]
			if !ok {
				continue
			}

			placed := false

			for _, p := range candidatesOf(k) {
				if d.has(p) {
					n.parent = p
					placed = true

					break
				}
			}

			if !placed {
				delete(d.nodes, k)

				changed = true
			}
		}
	}

	if !m.policy.threeWay {
		return nil
	}

	var pending []move

	for _, k := range otherSide.keys {
		n, ok := d.nodes[k]
		if !ok || !masterSide.has(k) || !m.cache.has(k) {
			continue
		}

		target := otherSide.parent[k]
		if target == n.parent || !m.movedSince(otherSide, k) || m.movedSince(masterSide, k) {
			continue
		}

		pending = append(pending, move{key: k, target: target})
	}

	return pending
}

func (m *merger) movedSince(s *side, k key) bool {
	return s.parent[k] != m.cache.parent[k]
}

// applyMoves adopts moves of the non-master side one at a time against the
// evolving desired tree. A move into a folder that does not survive is
// dropped; a move that would make a folder its own ancestor is refused and
// reported.
func (m *merger) applyMoves(d *desired, pending []move) {
	otherSide := m.sideOf(m.policy.master.Other())

	for _, mv := range pending {
		if !d.has(mv.target) {
			m.logger.Debug("merge: dropping move into removed folder",
				slog.String("item", mv.key.String()),
				slog.String("target", mv.target.String()),
			)

			continue
		}

		if mv.key.kind == tree.KindFolder && d.isAncestor(mv.key, mv.target) {
			item := otherSide.items[mv.key]
			target := otherSide.items[mv.target]
			err := &apperrors.CycleError{ItemID: item.GetID(), Title: item.GetTitle(), TargetID: target.GetID()}

			m.logger.Warn("merge: refusing move", slog.String("error", err.Error()))
			m.errs = append(m.errs, err)

			continue
		}

		d.nodes[mv.key].parent = mv.target
	}
}

// breakCycles is a last line of defense for structures no single side
// had: any folder that is its own ancestor is put at the root.
func (m *merger) breakCycles(d *desired, keys []key) {
	for _, k := range keys {
		n, ok := d.nodes[k]
		if !ok || k.kind != tree.KindFolder {
			continue
		}

		if d.isAncestor(k, n.parent) {
			m.errs = append(m.errs, &apperrors.CycleError{ItemID: k.id, Title: n.title, TargetID: n.parent.id})
			n.parent = d.root
		}
	}
}
