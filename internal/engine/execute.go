package engine

import (
	"context"
	"log/slog"
	"sync"

	apperrors "github.com/alexjbarnes/marksync/internal/errors"
	"github.com/alexjbarnes/marksync/internal/mapping"
	"github.com/alexjbarnes/marksync/internal/resource"
	"github.com/alexjbarnes/marksync/internal/tree"
	"golang.org/x/sync/errgroup"
)

// executor applies the plan of one side. Every confirmed mutation is
// written to the mappings before the next dependent step runs.
type executor struct {
	loc         tree.Location
	res         resource.Resource
	mappings    *mapping.Mappings
	rootKey     key
	rootID      string
	concurrency int
	logger      *slog.Logger
	cancelled   func() bool
	step        func()

	mu      sync.Mutex
	created map[key]string
	// placed holds the local ids of items this executor created or moved,
	// so the ordering pass knows their position on this side is arbitrary.
	placed map[string]bool
}

// id resolves k to an id on the executor's side.
func (e *executor) id(k key) (string, bool) {
	if k == e.rootKey {
		return e.rootID, true
	}

	e.mu.Lock()
	id, ok := e.created[k]
	e.mu.Unlock()

	if ok {
		return id, true
	}

	switch {
	case e.loc == tree.Local && !k.server:
		return k.id, true
	case e.loc == tree.Server && k.server:
		return k.id, true
	default:
		return e.mappings.Get(k.kind, e.loc.Other(), k.id)
	}
}

// localID resolves k to a local id, if it has one yet.
func (e *executor) localID(k key) (string, bool) {
	if !k.server {
		return k.id, true
	}

	if e.loc == tree.Local {
		return e.id(k)
	}

	return e.mappings.Get(k.kind, tree.Server, k.id)
}

func (e *executor) markPlaced(k key) {
	if id, ok := e.localID(k); ok {
		e.mu.Lock()
		e.placed[id] = true
		e.mu.Unlock()
	}
}

// run executes the plan: updates, creates level by level, moves in an
// order that never creates a cycle, then removes deepest first.
func (e *executor) run(ctx context.Context, p *Plan, current *side) error {
	if err := e.parallel(ctx, p.Updates, e.update); err != nil {
		return err
	}

	for _, level := range byDepth(p.Creates) {
		if err := e.parallel(ctx, level, e.create); err != nil {
			return err
		}
	}

	if err := e.moves(ctx, p, current); err != nil {
		return err
	}

	for _, level := range byDepth(p.Removes) {
		if err := e.parallel(ctx, level, e.remove); err != nil {
			return err
		}
	}

	return nil
}

// parallel runs fn for every action with at most e.concurrency calls in
// flight. Adapter calls are detached from ctx so an in-flight call always
// finishes; cancellation is checked before each call starts.
func (e *executor) parallel(ctx context.Context, actions []Action, fn func(context.Context, Action) error) error {
	if len(actions) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.concurrency, 1))

	callCtx := context.WithoutCancel(ctx)

	for _, a := range actions {
		if e.cancelled() {
			break
		}

		g.Go(func() error {
			if gctx.Err() != nil || e.cancelled() {
				return nil
			}

			if err := fn(callCtx, a); err != nil {
				return &apperrors.AdapterError{Op: opName(a), Location: string(e.loc), Err: err}
			}

			e.step()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if e.cancelled() {
		return apperrors.ErrCancelled
	}

	return nil
}

func opName(a Action) string {
	switch a.Type {
	case ActionCreate:
		return "create " + string(a.Kind)
	case ActionUpdate:
		return "update " + string(a.Kind)
	case ActionMove:
		return "move " + string(a.Kind)
	case ActionRemove:
		return "remove " + string(a.Kind)
	default:
		return string(a.Type)
	}
}

func (e *executor) update(ctx context.Context, a Action) error {
	parentID, ok := e.id(a.parent)
	if !ok {
		return apperrors.ErrUnknownParent
	}

	e.logger.Debug("execute: update",
		slog.String("side", string(e.loc)),
		slog.String("kind", string(a.Kind)),
		slog.String("id", a.ID),
	)

	return e.write(ctx, a, a.ID, parentID)
}

func (e *executor) write(ctx context.Context, a Action, id, parentID string) error {
	if a.Kind == tree.KindFolder {
		return e.res.UpdateFolder(ctx, tree.NewFolder(e.loc, id, parentID, a.Title))
	}

	return e.res.UpdateBookmark(ctx, tree.NewBookmark(e.loc, id, parentID, a.Title, a.URL))
}

func (e *executor) create(ctx context.Context, a Action) error {
	parentID, ok := e.id(a.parent)
	if !ok {
		return apperrors.ErrUnknownParent
	}

	var (
		id  string
		err error
	)

	if a.Kind == tree.KindFolder {
		id, err = e.res.CreateFolder(ctx, tree.NewFolder(e.loc, "", parentID, a.Title))
	} else {
		id, err = e.res.CreateBookmark(ctx, tree.NewBookmark(e.loc, "", parentID, a.Title, a.URL))
	}

	if err != nil {
		return err
	}

	e.logger.Debug("execute: created",
		slog.String("side", string(e.loc)),
		slog.String("kind", string(a.Kind)),
		slog.String("id", id),
		slog.String("title", a.Title),
	)

	e.mu.Lock()
	e.created[a.key] = id
	e.mu.Unlock()

	otherID, ok := e.otherID(a.key)
	if ok {
		if e.loc == tree.Local {
			e.mappings.Add(a.Kind, id, otherID)
		} else {
			e.mappings.Add(a.Kind, otherID, id)
		}
	}

	e.markPlaced(a.key)

	return nil
}

// otherID resolves k on the opposite side. Keys always exist on at least
// one side, so a create can always be linked.
func (e *executor) otherID(k key) (string, bool) {
	switch {
	case e.loc == tree.Local && k.server:
		return k.id, true
	case e.loc == tree.Server && !k.server:
		return k.id, true
	default:
		return e.mappings.Get(k.kind, e.loc, k.id)
	}
}

func (e *executor) remove(ctx context.Context, a Action) error {
	var err error
	if a.Kind == tree.KindFolder {
		err = e.res.RemoveFolder(ctx, tree.NewFolder(e.loc, a.ID, "", a.Title))
	} else {
		err = e.res.RemoveBookmark(ctx, tree.NewBookmark(e.loc, a.ID, "", a.Title, ""))
	}

	if err != nil {
		return err
	}

	if e.loc == tree.Local {
		e.mappings.Remove(a.Kind, a.ID, "")
	} else {
		e.mappings.Remove(a.Kind, "", a.ID)
	}

	return nil
}

// moves applies moves one at a time. A move is only issued once its target
// is not inside the moved folder on the side as it is at that moment, so
// swaps such as "A into B, B out of A" are ordered correctly.
func (e *executor) moves(ctx context.Context, p *Plan, current *side) error {
	if len(p.Moves) == 0 {
		return nil
	}

	parent := make(map[key]key, len(current.parent)+len(p.Creates))
	for k, pk := range current.parent {
		parent[k] = pk
	}

	for _, a := range p.Creates {
		parent[a.key] = a.parent
	}

	insideOf := func(folder, k key) bool {
		for steps := 0; steps <= len(parent); steps++ {
			if k == folder {
				return true
			}

			p, ok := parent[k]
			if !ok {
				return false
			}

			k = p
		}

		return true
	}

	callCtx := context.WithoutCancel(ctx)
	pending := p.Moves

	for len(pending) > 0 {
		var rest []Action

		progressed := false

		for _, a := range pending {
			if e.cancelled() {
				return apperrors.ErrCancelled
			}

			if a.Kind == tree.KindFolder && insideOf(a.key, a.parent) {
				rest = append(rest, a)
				continue
			}

			parentID, ok := e.id(a.parent)
			if !ok {
				return &apperrors.AdapterError{Op: opName(a), Location: string(e.loc), Err: apperrors.ErrUnknownParent}
			}

			if err := e.write(callCtx, a, a.ID, parentID); err != nil {
				return &apperrors.AdapterError{Op: opName(a), Location: string(e.loc), Err: err}
			}

			parent[a.key] = a.parent
			progressed = true

			e.markPlaced(a.key)
			e.step()
		}

		if !progressed {
			errs := make([]error, 0, len(rest))
			for _, a := range rest {
				errs = append(errs, &apperrors.CycleError{ItemID: a.ID, Title: a.Title, TargetID: a.parent.id})
			}

			return apperrors.Combine(errs)
		}

		pending = rest
	}

	return nil
}

// byDepth splits sorted actions into runs of equal depth.
func byDepth(actions []Action) [][]Action {
	var levels [][]Action

	for i := 0; i < len(actions); {
		j := i
		for j < len(actions) && actions[j].Depth == actions[i].Depth {
			j++
		}

		levels = append(levels, actions[i:j])
		i = j
	}

	return levels
}
