package account

import (
	"context"
	"fmt"
	"log/slog"

	apperrors "github.com/alexjbarnes/marksync/internal/errors"
	"golang.org/x/sync/errgroup"
)

// Controller holds every configured account and its runner.
type Controller struct {
	logger  *slog.Logger
	order   []string
	entries map[string]*entry
}

type entry struct {
	acct   *Account
	runner *Runner
}

// NewController returns an empty controller.
func NewController(logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Controller{logger: logger, entries: make(map[string]*entry)}
}

// Add registers an account. runner may be nil for one-shot use.
func (c *Controller) Add(acct *Account, runner *Runner) error {
	if _, ok := c.entries[acct.ID()]; ok {
		return fmt.Errorf("account %q: %w", acct.ID(), apperrors.ErrDuplicateID)
	}

	c.order = append(c.order, acct.ID())
	c.entries[acct.ID()] = &entry{acct: acct, runner: runner}

	return nil
}

// Accounts returns the accounts in the order they were added.
func (c *Controller) Accounts() []*Account {
	out := make([]*Account, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.entries[id].acct)
	}

	return out
}

// Get returns the account with id.
func (c *Controller) Get(id string) (*Account, error) {
	e, ok := c.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrAccountNotFound, id)
	}

	return e.acct, nil
}

// Trigger asks the runner of id for a pass right away. Without a runner
// the pass runs in the background.
func (c *Controller) Trigger(ctx context.Context, id string) error {
	e, ok := c.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrAccountNotFound, id)
	}

	if e.acct.Syncing() {
		return apperrors.ErrAlreadySyncing
	}

	if e.runner != nil {
		e.runner.SyncNow()
		return nil
	}

	go func() {
		if _, err := e.acct.Sync(context.WithoutCancel(ctx)); err != nil {
			c.logger.Debug("controller: pass ended with error", slog.String("account", id), slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Changed notifies the runners of ids that their local tree changed. No
// ids notifies every runner.
func (c *Controller) Changed(ids ...string) {
	if len(ids) == 0 {
		ids = c.order
	}

	for _, id := range ids {
		e, ok := c.entries[id]
		if ok && e.runner != nil {
			e.runner.Trigger()
		}
	}
}

// Cancel stops the running pass of id. It reports whether one was running.
func (c *Controller) Cancel(id string) (bool, error) {
	acct, err := c.Get(id)
	if err != nil {
		return false, err
	}

	return acct.Cancel(), nil
}

// TracksBookmark returns the ids of the accounts syncing the local
// bookmark localID.
func (c *Controller) TracksBookmark(ctx context.Context, localID string) ([]string, error) {
	var ids []string

	for _, acct := range c.Accounts() {
		ok, err := acct.TracksBookmark(ctx, localID)
		if err != nil {
			return nil, err
		}

		if ok {
			ids = append(ids, acct.ID())
		}
	}

	return ids, nil
}

// Run starts every runner and blocks until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, id := range c.order {
		r := c.entries[id].runner
		if r == nil {
			continue
		}

		g.Go(func() error {
			return r.Run(gctx)
		})
	}

	return g.Wait()
}
