package account

import (
	"context"
	"errors"
	"log/slog"
	"time"

	apperrors "github.com/alexjbarnes/marksync/internal/errors"
)

// Syncer is the part of an Account a Runner drives.
type Syncer interface {
	ID() string
	Sync(ctx context.Context) (*Report, error)
}

// Runner schedules the passes of one account. It owns the interval
// ticker and the debounce timer; other goroutines only send it messages.
type Runner struct {
	acct     Syncer
	interval time.Duration
	debounce time.Duration
	logger   *slog.Logger

	trigger chan struct{}
	now     chan struct{}
}

// NewRunner returns a runner that syncs every interval (never when zero)
// and debounce after the last Trigger.
func NewRunner(acct Syncer, interval, debounce time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Runner{
		acct:     acct,
		interval: interval,
		debounce: debounce,
		logger:   logger.With(slog.String("account", acct.ID())),
		trigger:  make(chan struct{}, 1),
		now:      make(chan struct{}, 1),
	}
}

// Trigger requests a pass after the debounce delay. Triggers arriving
// during the delay restart it.
func (r *Runner) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// SyncNow requests a pass without waiting for the debounce delay.
func (r *Runner) SyncNow() {
	select {
	case r.now <- struct{}{}:
	default:
	}
}

// Run performs a first pass and then handles messages until ctx is
// cancelled. A request arriving while a pass runs queues exactly one more
// pass.
func (r *Runner) Run(ctx context.Context) error {
	var tick <-chan time.Time

	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		tick = ticker.C
	}

	debounce := time.NewTimer(r.debounce)
	debounce.Stop()

	defer debounce.Stop()

	var (
		done    chan struct{}
		pending bool
	)

	start := func() {
		if done != nil {
			pending = true
			return
		}

		done = make(chan struct{})

		go func(done chan struct{}) {
			defer close(done)
			r.syncOnce(ctx)
		}(done)
	}

	start()

	for {
		select {
		case <-ctx.Done():
			if done != nil {
				<-done
			}

			return ctx.Err()

		case <-r.trigger:
			debounce.Reset(r.debounce)

		case <-debounce.C:
			start()

		case <-r.now:
			start()

		case <-tick:
			start()

		case <-done:
			done = nil

			if pending {
				pending = false

				start()
			}
		}
	}
}

func (r *Runner) syncOnce(ctx context.Context) {
	_, err := r.acct.Sync(ctx)

	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrAlreadySyncing):
		r.logger.Debug("runner: pass already running")
	case errors.Is(err, apperrors.ErrCancelled):
		r.logger.Debug("runner: pass cancelled")
	default:
		// Recorded on the account; retried on the next trigger or tick.
		r.logger.Debug("runner: pass failed", slog.String("error", err.Error()))
	}
}
