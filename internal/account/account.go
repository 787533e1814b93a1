// Package account runs sync passes for configured accounts. An Account
// wraps one local resource, one server adapter and the persisted state of
// the pair; a Runner schedules its passes.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alexjbarnes/marksync/internal/engine"
	apperrors "github.com/alexjbarnes/marksync/internal/errors"
	"github.com/alexjbarnes/marksync/internal/mapping"
	"github.com/alexjbarnes/marksync/internal/resource"
	"github.com/alexjbarnes/marksync/internal/state"
	"github.com/alexjbarnes/marksync/internal/tree"
)

// Phase is the step a pass is in.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseInitializing  Phase = "initializing"
	PhaseLoading       Phase = "loading"
	PhaseMerging       Phase = "merging"
	PhaseApplyingOrder Phase = "applying-order"
	PhasePersisting    Phase = "persisting"
	PhaseError         Phase = "error"
)

// Outcome is how a pass ended.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeError     Outcome = "error"
	OutcomeCancelled Outcome = "cancelled"
)

// progressStep is the smallest progress change written to the store.
const progressStep = 0.05

// Store is the persistence an account needs. *state.State implements it.
type Store interface {
	mapping.Store

	InitAccount(accountID string) error
	ResetAccount(accountID string) error
	GetMappings(accountID string) (mapping.Data, error)
	GetCache(accountID string) (*tree.Folder, error)
	SetCache(accountID string, root *tree.Folder) error
	GetAccountData(accountID string) (state.AccountData, error)
	SetAccountData(accountID string, data state.AccountData) error
}

// Refresher is implemented by local resources that reload their backing
// storage before a pass.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// PassTracker is implemented by local resources shared between accounts
// that need to know when passes run against them.
type PassTracker interface {
	BeginPass() (release func())
}

// Flusher is implemented by local resources that buffer mutations and
// write them out after a pass.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Options configures an account.
type Options struct {
	ID       string
	Label    string
	Strategy engine.Strategy
	// Failsafe enables the mass deletion check.
	Failsafe          bool
	FailsafeThreshold float64
	Concurrency       int
}

// Account owns the sync lifecycle of one local and server pair.
type Account struct {
	opts   Options
	local  resource.Resource
	server resource.Adapter
	store  Store
	locks  *resource.RootLocks
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	phase       Phase
	syncing     bool
	cancel      context.CancelFunc
	initialized bool
	progress    float64
}

// Report describes a finished pass.
type Report struct {
	Outcome  Outcome
	Mode     engine.Mode
	Result   *engine.Result
	Duration time.Duration
	// Reset is set when the server state was gone and the account started
	// over with an empty cache.
	Reset bool
}

// Status is a point in time view of an account.
type Status struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	Strategy string    `json:"strategy"`
	Server   string    `json:"server"`
	Phase    Phase     `json:"phase"`
	Syncing  float64   `json:"syncing"`
	LastSync time.Time `json:"lastSync,omitzero"`
	Error    string    `json:"error,omitempty"`
	Outcome  string    `json:"outcome,omitempty"`
}

// New builds an account. locks may be shared between accounts on the same
// local resource.
func New(opts Options, local resource.Resource, server resource.Adapter, store Store, locks *resource.RootLocks, logger *slog.Logger) *Account {
	if opts.Strategy == "" {
		opts.Strategy = engine.StrategyDefault
	}

	if opts.Label == "" {
		opts.Label = opts.ID
	}

	if locks == nil {
		locks = resource.NewRootLocks()
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Account{
		opts:   opts,
		local:  local,
		server: server,
		store:  store,
		locks:  locks,
		logger: logger.With(slog.String("account", opts.ID)),
		now:    time.Now,
		phase:  PhaseIdle,
	}
}

func (a *Account) ID() string    { return a.opts.ID }
func (a *Account) Label() string { return a.opts.Label }

// Phase returns the current phase.
func (a *Account) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.phase
}

// Syncing reports whether a pass is running.
func (a *Account) Syncing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.syncing
}

func (a *Account) setPhase(p Phase) {
	a.mu.Lock()
	a.phase = p
	a.mu.Unlock()

	a.logger.Debug("account: phase", slog.String("phase", string(p)))
}

// Cancel stops the running pass before its next action. It reports
// whether a pass was running.
func (a *Account) Cancel() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel == nil {
		return false
	}

	a.cancel()

	return true
}

// Status reads the persisted account data and adds the live phase.
func (a *Account) Status() (Status, error) {
	data, err := a.store.GetAccountData(a.opts.ID)
	if err != nil {
		return Status{}, fmt.Errorf("reading account data: %w", err)
	}

	strategy := data.Strategy
	if strategy == "" {
		strategy = string(a.opts.Strategy)
	}

	return Status{
		ID:       a.opts.ID,
		Label:    a.opts.Label,
		Strategy: strategy,
		Server:   a.server.Label(),
		Phase:    a.Phase(),
		Syncing:  data.Syncing,
		LastSync: data.LastSync,
		Error:    data.Error,
		Outcome:  data.Outcome,
	}, nil
}

// TracksBookmark reports whether the local bookmark with localID takes
// part in this account's passes: it lies inside the account's local root,
// outside the roots of other accounts, and the server accepts it.
func (a *Account) TracksBookmark(ctx context.Context, localID string) (bool, error) {
	b, err := a.localBookmark(ctx, localID)
	if err != nil || b == nil {
		return false, err
	}

	return a.server.AcceptsBookmark(b), nil
}

// Counterpart is where a local bookmark lives on the server.
type Counterpart struct {
	ServerID       string `json:"serverId"`
	ServerFolderID string `json:"serverFolderId,omitempty"`
}

// Counterpart looks up the server bookmark linked to the local bookmark
// localID by the last pass. It reports false when the bookmark is not
// tracked or not synced yet.
func (a *Account) Counterpart(ctx context.Context, localID string) (Counterpart, bool, error) {
	b, err := a.localBookmark(ctx, localID)
	if err != nil || b == nil {
		return Counterpart{}, false, err
	}

	data, err := a.store.GetMappings(a.opts.ID)
	if err != nil {
		return Counterpart{}, false, fmt.Errorf("loading mappings: %w", err)
	}

	snap := mapping.New(nil, a.opts.ID, data).Snapshot()

	id, ok := snap.MapItemID(b, tree.Server)
	if !ok {
		return Counterpart{}, false, nil
	}

	c := Counterpart{ServerID: id}
	c.ServerFolderID, _ = snap.MapParentID(b, tree.Server)

	return c, true, nil
}

// localBookmark finds localID in the account's view of the local tree. A
// local root folder that does not exist yet holds nothing.
func (a *Account) localBookmark(ctx context.Context, localID string) (*tree.Bookmark, error) {
	root, err := a.local.GetBookmarksTree(ctx)
	if errors.Is(err, apperrors.ErrMissingLocalRoot) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("loading local tree: %w", err)
	}

	return root.FindBookmark(localID), nil
}

// Reset drops the cache and mappings so the next pass merges from scratch.
func (a *Account) Reset() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.syncing {
		return apperrors.ErrAlreadySyncing
	}

	return a.store.ResetAccount(a.opts.ID)
}

func (a *Account) begin(ctx context.Context) (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.syncing {
		return nil, apperrors.ErrAlreadySyncing
	}

	passCtx, cancel := context.WithCancel(ctx)
	a.syncing = true
	a.cancel = cancel
	a.progress = 0

	return passCtx, nil
}

func (a *Account) end(phase Phase) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		a.cancel()
	}

	a.syncing = false
	a.cancel = nil
	a.phase = phase
}

// engineConfig builds the configuration of one pass.
func (a *Account) engineConfig() engine.Config {
	return engine.Config{
		Strategy:          a.opts.Strategy,
		Concurrency:       a.opts.Concurrency,
		Failsafe:          a.opts.Failsafe,
		FailsafeThreshold: a.opts.FailsafeThreshold,
		Locks:             a.locks,
		Logger:            a.logger,
		Progress:          a.reportProgress,
	}
}

// reportProgress records progress on the account data, skipping updates
// smaller than progressStep.
func (a *Account) reportProgress(v float64) {
	if v >= engine.ProgressApplied {
		a.setPhase(PhaseApplyingOrder)
	}

	a.mu.Lock()
	if v-a.progress < progressStep && v < 1 {
		a.mu.Unlock()
		return
	}

	a.progress = v
	a.mu.Unlock()

	a.updateData(func(d *state.AccountData) { d.Syncing = v })
}

func (a *Account) updateData(fn func(d *state.AccountData)) {
	data, err := a.store.GetAccountData(a.opts.ID)
	if err != nil {
		a.logger.Warn("account: reading account data failed", slog.String("error", err.Error()))
		return
	}

	fn(&data)

	if err := a.store.SetAccountData(a.opts.ID, data); err != nil {
		a.logger.Warn("account: writing account data failed", slog.String("error", err.Error()))
	}
}

// pass is the state of one running pass, filled phase by phase.
type pass struct {
	mappings *mapping.Mappings
	hooks    resource.SyncHooks
	started  bool
	reset    bool
}

// Sync runs one pass. It returns ErrAlreadySyncing when a pass is running.
// Every other outcome, including failures, is recorded on the account data
// before Sync returns; the error is returned as well.
func (a *Account) Sync(ctx context.Context) (*Report, error) {
	passCtx, err := a.begin(ctx)
	if err != nil {
		return nil, err
	}

	if t, ok := a.local.(PassTracker); ok {
		defer t.BeginPass()()
	}

	start := a.now()
	report := &Report{}
	p := &pass{}

	a.logger.Info("account: sync starting", slog.String("server", a.server.Label()))

	err = a.run(passCtx, p, report)
	report.Duration = a.now().Sub(start)

	if err == nil {
		a.end(PhaseIdle)
		report.Outcome = OutcomeSuccess

		a.logger.Info("account: sync finished",
			slog.String("mode", string(report.Mode)),
			slog.String("duration", report.Duration.Round(time.Millisecond).String()),
		)

		return report, nil
	}

	report.Outcome = a.fail(ctx, p, err)

	if report.Outcome == OutcomeCancelled {
		a.end(PhaseIdle)
		return report, apperrors.ErrCancelled
	}

	a.end(PhaseError)

	return report, err
}

func (a *Account) run(ctx context.Context, p *pass, report *Report) error {
	a.setPhase(PhaseInitializing)

	if err := a.initialize(); err != nil {
		return err
	}

	a.updateData(func(d *state.AccountData) {
		d.Strategy = string(a.opts.Strategy)
		d.Syncing = 0.01
	})

	a.setPhase(PhaseLoading)

	if r, ok := a.local.(Refresher); ok {
		if err := r.Refresh(ctx); err != nil {
			return fmt.Errorf("refreshing local tree: %w", err)
		}
	}

	if hooks, ok := a.server.(resource.SyncHooks); ok {
		p.hooks = hooks

		found, err := hooks.OnSyncStart(context.WithoutCancel(ctx))
		if err != nil {
			return fmt.Errorf("starting sync on %s: %w", a.server.Label(), err)
		}

		p.started = true

		if !found {
			a.logger.Info("account: server state missing, resetting cache and mappings")

			if err := a.store.ResetAccount(a.opts.ID); err != nil {
				return fmt.Errorf("resetting account: %w", err)
			}

			p.reset = true
			report.Reset = true
		}
	}

	if ctx.Err() != nil {
		return apperrors.ErrCancelled
	}

	cache, err := a.store.GetCache(a.opts.ID)
	if err != nil {
		return fmt.Errorf("loading cache: %w", err)
	}

	data, err := a.store.GetMappings(a.opts.ID)
	if err != nil {
		return fmt.Errorf("loading mappings: %w", err)
	}

	p.mappings = mapping.New(a.store, a.opts.ID, data)

	a.setPhase(PhaseMerging)

	proc := engine.NewProcess(a.engineConfig(), a.local, a.server, cache, p.mappings)
	report.Mode = proc.Mode()

	res, err := proc.Sync(ctx)
	report.Result = res

	if err != nil {
		return err
	}

	a.setPhase(PhasePersisting)

	return a.persist(ctx, p, res)
}

func (a *Account) initialize() error {
	a.mu.Lock()
	done := a.initialized
	a.mu.Unlock()

	if done {
		return nil
	}

	if err := a.store.InitAccount(a.opts.ID); err != nil {
		return fmt.Errorf("initializing account: %w", err)
	}

	a.mu.Lock()
	a.initialized = true
	a.mu.Unlock()

	return nil
}

// persist finishes a successful pass: flush the local side, complete the
// server side, then store cache, mappings and status.
func (a *Account) persist(ctx context.Context, p *pass, res *engine.Result) error {
	ctx = context.WithoutCancel(ctx)

	if f, ok := a.local.(Flusher); ok {
		if err := f.Flush(ctx); err != nil {
			return fmt.Errorf("saving local tree: %w", err)
		}
	}

	if p.hooks != nil {
		p.started = false

		if err := p.hooks.OnSyncComplete(ctx); err != nil {
			return fmt.Errorf("completing sync on %s: %w", a.server.Label(), err)
		}
	}

	if err := a.store.SetCache(a.opts.ID, res.Cache); err != nil {
		return fmt.Errorf("saving cache: %w", err)
	}

	if err := p.mappings.Persist(); err != nil {
		return err
	}

	a.updateData(func(d *state.AccountData) {
		d.LastSync = a.now()
		d.Syncing = 0
		d.Error = apperrors.Stringify(apperrors.Combine(res.Errors))
		d.Outcome = string(OutcomeSuccess)
	})

	for _, e := range res.Errors {
		a.logger.Warn("account: item skipped", slog.String("error", e.Error()))
	}

	return nil
}

// fail records a failed or cancelled pass. Changes already applied are
// kept: the local side is flushed and the mappings persisted best effort.
func (a *Account) fail(ctx context.Context, p *pass, err error) Outcome {
	ctx = context.WithoutCancel(ctx)

	outcome := OutcomeError
	if errors.Is(err, apperrors.ErrCancelled) || errors.Is(err, context.Canceled) {
		outcome = OutcomeCancelled
	}

	if f, ok := a.local.(Flusher); ok {
		if ferr := f.Flush(ctx); ferr != nil {
			a.logger.Warn("account: saving local tree failed", slog.String("error", ferr.Error()))
		}
	}

	if p.mappings != nil {
		if perr := p.mappings.Persist(); perr != nil {
			a.logger.Warn("account: persisting mappings failed", slog.String("error", perr.Error()))
		}
	}

	if p.hooks != nil && p.started {
		if herr := p.hooks.OnSyncFail(ctx); herr != nil {
			a.logger.Warn("account: sync fail hook failed", slog.String("error", herr.Error()))
		}
	}

	a.updateData(func(d *state.AccountData) {
		d.Syncing = 0
		d.Outcome = string(outcome)

		if outcome == OutcomeError {
			d.Error = apperrors.Stringify(err)
		}
	})

	if outcome == OutcomeCancelled {
		a.logger.Info("account: sync cancelled")
	} else {
		a.logger.Error("account: sync failed", slog.String("error", err.Error()))
	}

	return outcome
}

// Preview computes the pass without applying it. Server hooks run so file
// based servers load their current content; nothing is uploaded.
func (a *Account) Preview(ctx context.Context) (*engine.Preview, error) {
	passCtx, err := a.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer a.end(PhaseIdle)

	if err := a.initialize(); err != nil {
		return nil, err
	}

	if r, ok := a.local.(Refresher); ok {
		if err := r.Refresh(passCtx); err != nil {
			return nil, fmt.Errorf("refreshing local tree: %w", err)
		}
	}

	cache, err := a.store.GetCache(a.opts.ID)
	if err != nil {
		return nil, fmt.Errorf("loading cache: %w", err)
	}

	data, err := a.store.GetMappings(a.opts.ID)
	if err != nil {
		return nil, fmt.Errorf("loading mappings: %w", err)
	}

	if hooks, ok := a.server.(resource.SyncHooks); ok {
		found, err := hooks.OnSyncStart(passCtx)
		if err != nil {
			return nil, fmt.Errorf("starting sync on %s: %w", a.server.Label(), err)
		}

		defer func() {
			if err := hooks.OnSyncFail(context.WithoutCancel(passCtx)); err != nil {
				a.logger.Warn("account: releasing server failed", slog.String("error", err.Error()))
			}
		}()

		if !found {
			cache, data = nil, mapping.NewData()
		}
	}

	cfg := a.engineConfig()
	cfg.Progress = nil

	proc := engine.NewProcess(cfg, a.local, a.server, cache, mapping.New(nil, a.opts.ID, data))

	return proc.Preview(passCtx)
}
