// Package engine reconciles a local bookmark tree with a server tree using
// the cache of the last successful pass as the common ancestor.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	apperrors "github.com/alexjbarnes/marksync/internal/errors"
	"github.com/alexjbarnes/marksync/internal/mapping"
	"github.com/alexjbarnes/marksync/internal/resource"
	"github.com/alexjbarnes/marksync/internal/tree"
)

const (
	// DefaultConcurrency is the number of server calls in flight within one
	// dependency level.
	DefaultConcurrency = 10

	// DefaultFailsafeThreshold is the share of the larger tree a pass may
	// remove before it is refused.
	DefaultFailsafeThreshold = 0.5
)

// Progress milestones reported through Config.Progress.
const (
	progressLoaded  = 0.1
	progressPlanned = 0.3
	// ProgressApplied is reported once every planned action ran and
	// ordering starts.
	ProgressApplied = 0.9
	progressOrdered = 0.95
)

// Config tunes one pass.
type Config struct {
	Strategy    Strategy
	Concurrency int
	// Failsafe enables the mass deletion check.
	Failsafe          bool
	FailsafeThreshold float64
	// Locks serializes local mutations with other passes on the same
	// local root. Nil uses a private lock set.
	Locks    *resource.RootLocks
	Logger   *slog.Logger
	Progress func(float64)
}

// Result describes a finished pass.
type Result struct {
	Mode   Mode
	Local  Summary
	Server Summary
	// Cache is the local tree after the pass, without bookmarks the server
	// does not accept. It becomes the cache of the next pass.
	Cache *tree.Folder
	// Errors are the per-item problems that did not stop the pass.
	Errors []error
}

// Process is one sync pass between a local resource and a server adapter.
type Process struct {
	cfg      Config
	mode     Mode
	local    resource.Resource
	server   resource.Adapter
	cache    *tree.Folder
	mappings *mapping.Mappings
	logger   *slog.Logger

	cancelled atomic.Bool
	done      atomic.Int64
	total     atomic.Int64
}

// NewProcess prepares a pass. The mode follows from the strategy and
// whether cache holds anything.
func NewProcess(cfg Config, local resource.Resource, server resource.Adapter, cache *tree.Folder, m *mapping.Mappings) *Process {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}

	if cfg.FailsafeThreshold <= 0 {
		cfg.FailsafeThreshold = DefaultFailsafeThreshold
	}

	if cfg.Locks == nil {
		cfg.Locks = resource.NewRootLocks()
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	if cache == nil {
		cache = tree.NewRoot(tree.Local, "")
	}

	return &Process{
		cfg:      cfg,
		mode:     SelectMode(cfg.Strategy, cache.CountItems() == 0),
		local:    local,
		server:   server,
		cache:    cache,
		mappings: m,
		logger:   cfg.Logger,
	}
}

// Mode returns the mode the pass runs in.
func (p *Process) Mode() Mode {
	return p.mode
}

// Cancel asks the pass to stop before its next action. Calls already sent
// to an adapter finish.
func (p *Process) Cancel() {
	p.cancelled.Store(true)
}

func (p *Process) progress(v float64) {
	if p.cfg.Progress != nil {
		p.cfg.Progress(v)
	}
}

func (p *Process) step() {
	done := p.done.Add(1)

	total := p.total.Load()
	if total > 0 {
		p.progress(progressPlanned + (ProgressApplied-progressPlanned)*float64(done)/float64(total))
	}
}

// pass holds everything computed before the first mutation.
type pass struct {
	policy  policy
	local   *tree.Folder
	server  *tree.Folder
	rootKey key
	sides   map[tree.Location]*side
	desired *desired
	plans   map[tree.Location]*Plan
	errs    []error
}

// plan loads both trees and computes the desired tree and one plan per
// target side. m receives the links found by deduplication.
func (p *Process) plan(ctx context.Context, m *mapping.Mappings) (*pass, error) {
	local, err := p.local.GetBookmarksTree(ctx)
	if err != nil {
		return nil, &apperrors.AdapterError{Op: "load tree", Location: string(tree.Local), Err: err}
	}

	server, err := p.server.GetBookmarksTree(ctx)
	if err != nil {
		return nil, &apperrors.AdapterError{Op: "load tree", Location: string(tree.Server), Err: err}
	}

	p.progress(progressLoaded)

	local = filterBookmarks(local, p.server.AcceptsBookmark)
	cache := filterBookmarks(p.cache, p.server.AcceptsBookmark)
	server = filterBookmarks(server, func(b *tree.Bookmark) bool { return b.URL != "" })

	m.AddFolder(local.ID, server.ID)

	rootKey := key{kind: tree.KindFolder, id: local.ID}

	cacheSide, err := localSide(tree.Local, cache, rootKey)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}

	localTree, err := localSide(tree.Local, local, rootKey)
	if err != nil {
		return nil, err
	}

	serverTree, err := scanServer(server, rootKey, localTree, cacheSide, m)
	if err != nil {
		return nil, err
	}

	pol := p.mode.policy()

	mg := &merger{
		policy: pol,
		root:   rootKey,
		cache:  cacheSide,
		local:  localTree,
		server: serverTree,
		hasher: tree.NewHasher(false),
		logger: p.logger,
	}

	d := mg.build()

	ps := &pass{
		policy:  pol,
		local:   local,
		server:  server,
		rootKey: rootKey,
		sides:   map[tree.Location]*side{tree.Local: localTree, tree.Server: serverTree},
		desired: d,
		plans:   make(map[tree.Location]*Plan),
		errs:    mg.errs,
	}

	for _, loc := range []tree.Location{tree.Server, tree.Local} {
		if pol.targets[loc] {
			ps.plans[loc] = buildPlan(ps.sides[loc], d, pol.removals)
		} else {
			ps.plans[loc] = &Plan{Location: loc}
		}
	}

	return ps, nil
}

// Sync runs the pass. A returned error aborts the pass; actions applied
// before it are kept. The mappings hold every link confirmed so far either
// way, and persisting them is left to the caller.
func (p *Process) Sync(ctx context.Context) (*Result, error) {
	stop := context.AfterFunc(ctx, p.Cancel)
	defer stop()

	p.logger.Info("sync: starting pass",
		slog.String("mode", string(p.mode)),
		slog.String("server", p.server.Label()),
	)

	ps, err := p.plan(ctx, p.mappings)
	if err != nil {
		return nil, err
	}

	if p.cancelled.Load() {
		return nil, apperrors.ErrCancelled
	}

	if p.cfg.Failsafe {
		localCount, serverCount := ps.local.CountItems(), ps.server.CountItems()

		for _, loc := range []tree.Location{tree.Server, tree.Local} {
			if err := checkFailsafe(ps.plans[loc], localCount, serverCount, p.cfg.FailsafeThreshold); err != nil {
				p.logger.Warn("sync: failsafe tripped", slog.String("error", err.Error()))
				return nil, err
			}
		}
	}

	p.total.Store(int64(ps.plans[tree.Local].Len() + ps.plans[tree.Server].Len()))
	p.progress(progressPlanned)

	for _, loc := range []tree.Location{tree.Server, tree.Local} {
		for _, a := range ps.plans[loc].Actions() {
			p.logger.Debug("sync: planned", slog.String("side", string(loc)), slog.String("action", a.String()))
		}
	}

	res := &Result{
		Mode:   p.mode,
		Local:  ps.plans[tree.Local].Summary(),
		Server: ps.plans[tree.Server].Summary(),
		Errors: ps.errs,
	}

	placed, err := p.apply(ctx, ps)
	if err != nil {
		return res, err
	}

	p.progress(ProgressApplied)

	local, server, err := p.reconcileOrder(ctx, ps, placed, res)
	if err != nil {
		return res, err
	}

	p.progress(progressOrdered)

	p.retainMappings(local, server)

	res.Cache = filterBookmarks(local, p.server.AcceptsBookmark)

	p.logger.Info("sync: pass finished",
		slog.String("mode", string(p.mode)),
		slog.Int("local_actions", ps.plans[tree.Local].Len()),
		slog.Int("server_actions", ps.plans[tree.Server].Len()),
		slog.Int("reorders", res.Local.Reorders+res.Server.Reorders),
		slog.Int("errors", len(res.Errors)),
	)

	return res, nil
}

// apply runs the server plan, then the local plan under the local root
// lock. It returns the local ids each side placed.
func (p *Process) apply(ctx context.Context, ps *pass) (map[tree.Location]map[string]bool, error) {
	cancelled := func() bool { return p.cancelled.Load() }

	newExecutor := func(loc tree.Location, res resource.Resource, rootID string, concurrency int) *executor {
		return &executor{
			loc:         loc,
			res:         res,
			mappings:    p.mappings,
			rootKey:     ps.rootKey,
			rootID:      rootID,
			concurrency: concurrency,
			logger:      p.logger,
			cancelled:   cancelled,
			step:        p.step,
			created:     make(map[key]string),
			placed:      make(map[string]bool),
		}
	}

	serverExec := newExecutor(tree.Server, p.server, ps.server.ID, p.cfg.Concurrency)
	if err := serverExec.run(ctx, ps.plans[tree.Server], ps.sides[tree.Server]); err != nil {
		return nil, err
	}

	// Local ids come from the local store; creating them one at a time
	// keeps them reproducible.
	localExec := newExecutor(tree.Local, p.local, ps.local.ID, 1)

	unlock := p.cfg.Locks.Lock(ps.local.ID)
	err := localExec.run(ctx, ps.plans[tree.Local], ps.sides[tree.Local])

	unlock()

	if err != nil {
		return nil, err
	}

	return map[tree.Location]map[string]bool{
		tree.Local:  localExec.placed,
		tree.Server: serverExec.placed,
	}, nil
}

// reconcileOrder reloads both trees, aligns the order of children and
// returns the trees as they are afterwards.
func (p *Process) reconcileOrder(ctx context.Context, ps *pass, placed map[tree.Location]map[string]bool, res *Result) (*tree.Folder, *tree.Folder, error) {
	local, err := p.local.GetBookmarksTree(ctx)
	if err != nil {
		return nil, nil, &apperrors.AdapterError{Op: "load tree", Location: string(tree.Local), Err: err}
	}

	server, err := p.server.GetBookmarksTree(ctx)
	if err != nil {
		return nil, nil, &apperrors.AdapterError{Op: "load tree", Location: string(tree.Server), Err: err}
	}

	cacheIdx, _ := tree.NewIndex(p.cache)

	o := &orderer{
		policy:        ps.policy,
		mappings:      p.mappings,
		resources:     map[tree.Location]resource.Resource{tree.Local: p.local, tree.Server: p.server},
		serverOrdered: resource.PreservesOrder(p.server),
		cache:         p.cache,
		cacheIdx:      cacheIdx,
		placed:        placed,
		logger:        p.logger,
		cancelled:     func() bool { return p.cancelled.Load() },
		reorders:      make(map[tree.Location]int),
	}

	unlock := p.cfg.Locks.Lock(local.ID)
	err = o.reconcile(ctx, local, server)

	unlock()

	res.Local.Reorders = o.reorders[tree.Local]
	res.Server.Reorders = o.reorders[tree.Server]

	if err != nil {
		return nil, nil, err
	}

	if o.reorders[tree.Local] > 0 {
		if local, err = p.local.GetBookmarksTree(ctx); err != nil {
			return nil, nil, &apperrors.AdapterError{Op: "load tree", Location: string(tree.Local), Err: err}
		}
	}

	return local, server, nil
}

// retainMappings drops links to items that no longer exist on either side.
func (p *Process) retainMappings(local, server *tree.Folder) {
	localIdx, _ := tree.NewIndex(local)
	serverIdx, _ := tree.NewIndex(server)

	removed := 0

	for _, kind := range []tree.Kind{tree.KindBookmark, tree.KindFolder} {
		removed += p.mappings.Retain(kind,
			func(id string) bool {
				_, ok := localIdx.Get(tree.Ref{Kind: kind, ID: id})
				return ok
			},
			func(id string) bool {
				_, ok := serverIdx.Get(tree.Ref{Kind: kind, ID: id})
				return ok
			},
		)
	}

	if removed > 0 {
		p.logger.Debug("sync: dropped stale mappings", slog.Int("count", removed))
	}
}

// filterBookmarks returns a copy of root without the bookmarks keep
// rejects. Items are shared with root.
func filterBookmarks(root *tree.Folder, keep func(*tree.Bookmark) bool) *tree.Folder {
	var copyFolder func(f *tree.Folder) *tree.Folder

	copyFolder = func(f *tree.Folder) *tree.Folder {
		out := &tree.Folder{
			ID:       f.ID,
			ParentID: f.ParentID,
			Title:    f.Title,
			IsRoot:   f.IsRoot,
			Location: f.Location,
			Children: make([]tree.Item, 0, len(f.Children)),
		}

		for _, child := range f.Children {
			switch c := child.(type) {
			case *tree.Folder:
				out.Children = append(out.Children, copyFolder(c))
			case *tree.Bookmark:
				if keep(c) {
					out.Children = append(out.Children, c)
				}
			}
		}

		return out
	}

	return copyFolder(root)
}
