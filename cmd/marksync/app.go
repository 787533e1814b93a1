package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alexjbarnes/marksync/internal/account"
	"github.com/alexjbarnes/marksync/internal/config"
	"github.com/alexjbarnes/marksync/internal/logging"
	"github.com/alexjbarnes/marksync/internal/resource"
	"github.com/alexjbarnes/marksync/internal/resource/localfile"
	"github.com/alexjbarnes/marksync/internal/resource/remote"
	"github.com/alexjbarnes/marksync/internal/resource/scoped"
	"github.com/alexjbarnes/marksync/internal/state"
)

// app holds everything a command needs: configuration, the state database
// and one account per entry of the accounts file.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *state.State
	controller *account.Controller
	// replicas are shared by accounts using the same local file.
	replicas map[string]*localfile.Replica
	// users maps a local file to the accounts syncing it.
	users map[string][]string
	// locals maps an account id to its local tree, scoped to the
	// account's root folder when it has one.
	locals map[string]localSide
}

// localSide is the local tree of an account as commands see it.
type localSide interface {
	resource.Resource
	Refresh(ctx context.Context) error
	Flush(ctx context.Context) error
}

// openApp loads configuration and accounts. Runners are only built for the
// long running daemon.
func openApp(withRunners bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogFile)

	accounts, err := config.LoadAccounts(cfg.AccountsFile)
	if err != nil {
		return nil, err
	}

	if len(accounts) == 0 {
		return nil, fmt.Errorf("no accounts configured in %s", cfg.AccountsFile)
	}

	store, err := state.LoadAt(cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}

	a := &app{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		controller: account.NewController(logger),
		replicas:   make(map[string]*localfile.Replica),
		users:      make(map[string][]string),
		locals:     make(map[string]localSide),
	}

	if err := a.addAccounts(accounts, withRunners); err != nil {
		store.Close()
		return nil, err
	}

	return a, nil
}

func (a *app) addAccounts(accounts []config.Account, withRunners bool) error {
	locks := resource.NewRootLocks()

	for i := range accounts {
		ac := &accounts[i]
		logger := a.logger.With(slog.String("account", ac.ID))

		replica, err := a.replica(ac.Local.Path)
		if err != nil {
			return fmt.Errorf("account %s: %w", ac.ID, err)
		}

		server, err := remote.New(ac.RemoteConfig(), logger, nil)
		if err != nil {
			return fmt.Errorf("account %s: %w", ac.ID, err)
		}

		var local localSide = replica

		others := ac.OtherRoots(accounts)
		if ac.Local.Root != "" || len(others) > 0 {
			local = scoped.New(replica, ac.Local.Root,
				scoped.WithExcluded(others...),
				scoped.WithNestedSync(ac.Local.NestedSync),
			)
		}

		acct := account.New(account.Options{
			ID:                ac.ID,
			Label:             ac.Label,
			Strategy:          ac.SyncStrategy(),
			Failsafe:          ac.FailsafeEnabled(),
			FailsafeThreshold: a.cfg.FailsafeThreshold,
			Concurrency:       a.cfg.Concurrency,
		}, local, server, a.store, locks, logger)

		var runner *account.Runner
		if withRunners {
			runner = account.NewRunner(acct, ac.Interval, a.cfg.Debounce, logger)
		}

		if err := a.controller.Add(acct, runner); err != nil {
			return err
		}

		a.users[replica.Path()] = append(a.users[replica.Path()], ac.ID)
		a.locals[ac.ID] = local

		logger.Debug("account loaded",
			slog.String("local", replica.Path()),
			slog.String("root", ac.Local.Root),
			slog.String("server", server.Label()),
			slog.String("strategy", string(ac.SyncStrategy())),
		)
	}

	return nil
}

func (a *app) replica(path string) (*localfile.Replica, error) {
	if r, ok := a.replicas[path]; ok {
		return r, nil
	}

	r, err := localfile.Open(path, a.logger.With(slog.String("local", path)))
	if err != nil {
		return nil, err
	}

	a.replicas[path] = r

	return r, nil
}

// accounts returns the accounts named by ids, or all of them.
func (a *app) accounts(ids []string) ([]*account.Account, error) {
	if len(ids) == 0 {
		return a.controller.Accounts(), nil
	}

	out := make([]*account.Account, 0, len(ids))

	for _, id := range ids {
		acct, err := a.controller.Get(id)
		if err != nil {
			return nil, err
		}

		out = append(out, acct)
	}

	return out, nil
}

// local returns the local tree of the account id.
func (a *app) local(id string) (localSide, error) {
	if _, err := a.controller.Get(id); err != nil {
		return nil, err
	}

	return a.locals[id], nil
}

func (a *app) Close() error {
	return a.store.Close()
}
