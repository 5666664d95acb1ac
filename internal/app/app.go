// Package app wires the sync engine together for the marketsync binary:
// config, store, backend clients, lifecycle engine, thread manager, sync
// coordinator and the ops HTTP listener.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"marketsync/internal/retention"
	"marketsync/pkg/backend"
	"marketsync/pkg/config"
	"marketsync/pkg/lifecycle"
	"marketsync/pkg/logger"
	"marketsync/pkg/market"
	"marketsync/pkg/store"
	"marketsync/pkg/syncer"
	"marketsync/pkg/threads"
)

// App encapsulates the engine components and their lifecycle.
type App struct {
	cfg   *config.Config
	addr  string
	store *store.Store

	engine  *lifecycle.Engine
	threads *threads.Manager
	coord   *syncer.Coordinator
	views   *market.Views
	usage   *market.UsageTracker
	pruner  *retention.Pruner

	srv             *http.Server
	cancelSync      context.CancelFunc
	cancelRetention context.CancelFunc
}

// New opens the store and builds the engine components. It does not start
// the scheduler or the HTTP listener; call Run for that.
func New(cfg *config.Config, addr, dbPath string) (*App, error) {
	if cfg.Session.Scope == "" {
		cfg.Session.Scope = "GLOBAL"
	}
	if cfg.Backend.BaseURL == "" {
		return nil, fmt.Errorf("backend base_url is required")
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", dbPath, err)
	}

	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Token,
		cfg.Backend.RateRPS, cfg.Backend.RateBurst)

	scope := cfg.Session.Scope
	identity := cfg.Session.Identity
	undoWindow := time.Duration(cfg.Undo.WindowMS) * time.Millisecond

	tm := threads.NewManager(st, client, scope)
	a := &App{
		cfg:     cfg,
		addr:    addr,
		store:   st,
		threads: tm,
		engine:  lifecycle.New(st, client, tm, scope, identity, undoWindow),
		coord:   syncer.New(st, client, scope),
		views:   market.NewViews(st, scope),
		usage:   market.NewUsageTracker(st, client, scope),
	}
	if cfg.Retention.Enabled {
		days := cfg.Retention.MaxAgeDays
		if days <= 0 {
			days = 30
		}
		a.pruner = retention.NewPruner(st, scope, time.Duration(days)*24*time.Hour)
	}
	return a, nil
}

// Run starts the sync scheduler and the ops HTTP listener and blocks until
// ctx is canceled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.Sync.OnStart {
		// eager sweep: catch offers created while the backend was down
		if _, err := a.coord.Sweep(ctx); err != nil {
			logger.Error("initial_sweep_failed", "error", err)
		}
	}

	cancel, err := a.coord.Start(ctx, a.cfg.Sync.Cron)
	if err != nil {
		return err
	}
	a.cancelSync = cancel

	if a.pruner != nil {
		cancel, err := a.pruner.Start(ctx, a.cfg.Retention.Cron)
		if err != nil {
			return err
		}
		a.cancelRetention = cancel
	}

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Close stops the scheduler, the HTTP listener and the store.
func (a *App) Close() {
	if a.cancelSync != nil {
		a.cancelSync()
	}
	if a.cancelRetention != nil {
		a.cancelRetention()
	}
	if a.srv != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.srv.Shutdown(shutCtx)
	}
	if err := a.store.Close(); err != nil {
		logger.Error("store_close_failed", "error", err)
	}
}
