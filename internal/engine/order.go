package engine

import (
	"context"
	"log/slog"
	"slices"
	"sort"

	apperrors "github.com/alexjbarnes/marksync/internal/errors"
	"github.com/alexjbarnes/marksync/internal/mapping"
	"github.com/alexjbarnes/marksync/internal/resource"
	"github.com/alexjbarnes/marksync/internal/tree"
)

// orderer aligns the order of children once both sides hold the same
// items. Identities are local refs; server children are translated through
// the mappings.
type orderer struct {
	policy        policy
	mappings      *mapping.Mappings
	resources     map[tree.Location]resource.Resource
	serverOrdered bool
	cache         *tree.Folder
	cacheIdx      *tree.Index
	placed        map[tree.Location]map[string]bool
	logger        *slog.Logger
	cancelled     func() bool

	// reorders counts OrderFolder calls per side.
	reorders map[tree.Location]int
}

// children lists a folder's children as identities, remembering the native
// ref behind each.
type children struct {
	ids    []tree.Ref
	native map[tree.Ref]tree.Ref
}

func (o *orderer) identify(loc tree.Location, f *tree.Folder) children {
	c := children{ids: make([]tree.Ref, 0, len(f.Children)), native: make(map[tree.Ref]tree.Ref, len(f.Children))}

	for _, child := range f.Children {
		ref := child.Ref()
		id := ref

		if loc == tree.Server {
			if localID, ok := o.mappings.Get(ref.Kind, tree.Server, ref.ID); ok {
				id = tree.Ref{Kind: ref.Kind, ID: localID}
			} else {
				id = tree.Ref{Kind: ref.Kind, ID: "server:" + ref.ID}
			}
		}

		c.ids = append(c.ids, id)
		c.native[id] = ref
	}

	return c
}

// reconcile walks every local folder that has a server counterpart.
func (o *orderer) reconcile(ctx context.Context, local, server *tree.Folder) error {
	serverIdx, _ := tree.NewIndex(server)

	folders := []*tree.Folder{local}
	local.Traverse(func(item tree.Item, _ *tree.Folder) {
		if f, ok := item.(*tree.Folder); ok {
			folders = append(folders, f)
		}
	})

	for _, lf := range folders {
		if o.cancelled() {
			return apperrors.ErrCancelled
		}

		sid, ok := o.mappings.Get(tree.KindFolder, tree.Local, lf.ID)
		if !ok {
			continue
		}

		sf, ok := serverIdx.Folders[sid]
		if !ok {
			continue
		}

		if err := o.folder(ctx, lf, sf); err != nil {
			return err
		}
	}

	return nil
}

func (o *orderer) folder(ctx context.Context, lf, sf *tree.Folder) error {
	sides := map[tree.Location]children{
		tree.Local:  o.identify(tree.Local, lf),
		tree.Server: o.identify(tree.Server, sf),
	}
	folderIDs := map[tree.Location]string{tree.Local: lf.ID, tree.Server: sf.ID}

	common := make(map[tree.Ref]bool)
	inLocal := make(map[tree.Ref]bool, len(sides[tree.Local].ids))

	for _, id := range sides[tree.Local].ids {
		inLocal[id] = true
	}

	for _, id := range sides[tree.Server].ids {
		if inLocal[id] {
			common[id] = true
		}
	}

	if len(common) < 2 {
		return nil
	}

	winner := o.winner(lf, sides, common)
	target := mergeOrder(sides[winner].ids, sides[winner.Other()].ids, common, o.placed[winner])

	for _, loc := range []tree.Location{tree.Server, tree.Local} {
		if !o.policy.targets[loc] || (loc == tree.Server && !o.serverOrdered) {
			continue
		}

		cur := sides[loc].ids

		next := minimalReorder(cur, target)
		if slices.Equal(cur, next) {
			continue
		}

		order := make([]tree.Ref, len(next))
		for i, id := range next {
			order[i] = sides[loc].native[id]
		}

		o.logger.Debug("order: reordering folder",
			slog.String("side", string(loc)),
			slog.String("folder", folderIDs[loc]),
			slog.Int("children", len(order)),
		)

		if err := o.resources[loc].OrderFolder(context.WithoutCancel(ctx), folderIDs[loc], order); err != nil {
			return &apperrors.AdapterError{Op: "order folder", Location: string(loc), Err: err}
		}

		o.reorders[loc]++
	}

	return nil
}

// winner picks the side whose order is kept: the side that reordered since
// the cache, the master when both or neither did.
func (o *orderer) winner(lf *tree.Folder, sides map[tree.Location]children, common map[tree.Ref]bool) tree.Location {
	if !o.policy.threeWay {
		return o.policy.master
	}

	if !o.serverOrdered {
		return tree.Local
	}

	var cached []tree.Ref

	cf, ok := o.cacheIdx.Folders[lf.ID]
	if lf.IsRoot {
		cf, ok = o.cache, true
	}

	if ok {
		for _, child := range cf.Children {
			cached = append(cached, child.Ref())
		}
	}

	lr := reordered(sides[tree.Local].ids, cached, common, o.placed[tree.Local])
	sr := reordered(sides[tree.Server].ids, cached, common, o.placed[tree.Server])

	switch {
	case sr && !lr:
		return tree.Server
	case lr && !sr:
		return tree.Local
	default:
		return o.policy.master
	}
}

// reordered reports whether the relative order of the cached items that
// were not placed during this pass differs from the cache.
func reordered(order, cached []tree.Ref, common map[tree.Ref]bool, placed map[string]bool) bool {
	inCache := make(map[tree.Ref]bool, len(cached))
	for _, id := range cached {
		inCache[id] = true
	}

	relevant := func(id tree.Ref) bool {
		return common[id] && inCache[id] && !placed[id.ID]
	}

	var now, before []tree.Ref

	for _, id := range order {
		if relevant(id) {
			now = append(now, id)
		}
	}

	keep := make(map[tree.Ref]bool, len(now))
	for _, id := range now {
		keep[id] = true
	}

	for _, id := range cached {
		if keep[id] {
			before = append(before, id)
		}
	}

	return !slices.Equal(now, before)
}

// mergeOrder computes the target relative order of the common items. The
// winner's order is the base; items the pass placed on the winner side
// (created or moved there) take the position they have on the other side,
// right after their nearest predecessor.
func mergeOrder(winner, other []tree.Ref, common map[tree.Ref]bool, placed map[string]bool) []tree.Ref {
	var base []tree.Ref

	for _, id := range winner {
		if common[id] && !placed[id.ID] {
			base = append(base, id)
		}
	}

	for i, id := range other {
		if !common[id] || !placed[id.ID] {
			continue
		}

		at := 0

		for j := i - 1; j >= 0; j-- {
			if pos := slices.Index(base, other[j]); pos >= 0 {
				at = pos + 1
				break
			}
		}

		base = slices.Insert(base, at, id)
	}

	return base
}

// minimalReorder returns cur rearranged so the items of target appear in
// target order. Items on the longest increasing subsequence stay where
// they are; only the others move. Items not in target keep their place
// relative to the stationary ones.
func minimalReorder(cur, target []tree.Ref) []tree.Ref {
	rank := make(map[tree.Ref]int, len(target))
	for i, id := range target {
		rank[id] = i
	}

	var seq []tree.Ref

	for _, id := range cur {
		if _, ok := rank[id]; ok {
			seq = append(seq, id)
		}
	}

	ranks := make([]int, len(seq))
	for i, id := range seq {
		ranks[i] = rank[id]
	}

	stay := make(map[tree.Ref]bool, len(seq))
	for _, i := range longestIncreasing(ranks) {
		stay[seq[i]] = true
	}

	list := make([]tree.Ref, 0, len(cur))

	for _, id := range cur {
		if _, inTarget := rank[id]; inTarget && !stay[id] {
			continue
		}

		list = append(list, id)
	}

	for i, id := range target {
		if stay[id] {
			continue
		}

		if i > 0 {
			list = slices.Insert(list, slices.Index(list, target[i-1])+1, id)
			continue
		}

		at := len(list)

		for pos, other := range list {
			if _, ok := rank[other]; ok {
				at = pos
				break
			}
		}

		list = slices.Insert(list, at, id)
	}

	return list
}

// longestIncreasing returns the indexes of one longest strictly increasing
// subsequence of values.
func longestIncreasing(values []int) []int {
	if len(values) == 0 {
		return nil
	}

	// tails[l] is the index of the smallest tail of an increasing run of
	// length l+1.
	tails := []int{}
	prev := make([]int, len(values))

	for i, v := range values {
		pos := sort.Search(len(tails), func(j int) bool { return values[tails[j]] >= v })

		if pos > 0 {
			prev[i] = tails[pos-1]
		} else {
			prev[i] = -1
		}

		if pos == len(tails) {
			tails = append(tails, i)
		} else {
			tails[pos] = i
		}
	}

	out := make([]int, len(tails))
	for i, k := len(tails)-1, tails[len(tails)-1]; i >= 0; i, k = i-1, prev[k] {
		out[i] = k
	}

	return out
}
