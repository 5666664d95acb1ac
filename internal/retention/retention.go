// Package retention prunes the local cache on a schedule: resolved offers
// (cancelled or accepted) and usage-log entries older than the configured
// age are dropped. Active offers and threads are never touched; pruning is
// a local eviction only and makes no backend calls.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"marketsync/pkg/logger"
	"marketsync/pkg/models"
	"marketsync/pkg/store"
)

// DefaultCron runs the prune daily at 02:00.
const DefaultCron = "0 2 * * *"

// Pruner evicts stale resolved records from one campus scope.
type Pruner struct {
	store  *store.Store
	scope  string
	maxAge time.Duration
}

func NewPruner(st *store.Store, scope string, maxAge time.Duration) *Pruner {
	return &Pruner{store: st, scope: scope, maxAge: maxAge}
}

// RunOnce performs a single prune pass and returns how many records were
// dropped.
func (p *Pruner) RunOnce() (int, error) {
	cutoff := time.Now().UTC().Add(-p.maxAge).UnixNano()
	dropped := 0

	for _, kind := range []models.Kind{models.KindMeal, models.KindItem} {
		err := p.store.MutateOffers(p.scope, kind, func(list []models.Offer) ([]models.Offer, bool) {
			kept := list[:0]
			for _, o := range list {
				if o.Status != models.StatusActive && o.CreatedTS < cutoff {
					dropped++
					continue
				}
				kept = append(kept, o)
			}
			return kept, len(kept) != len(list)
		})
		if err != nil {
			return dropped, fmt.Errorf("prune %s offers: %w", kind, err)
		}
	}

	err := p.store.MutateUsage(p.scope, func(log []models.UsageEntry) ([]models.UsageEntry, bool) {
		kept := log[:0]
		for _, e := range log {
			if e.TS < cutoff {
				dropped++
				continue
			}
			kept = append(kept, e)
		}
		return kept, len(kept) != len(log)
	})
	if err != nil {
		return dropped, fmt.Errorf("prune usage log: %w", err)
	}

	if dropped > 0 {
		logger.Info("retention_pruned", "scope", p.scope, "dropped", dropped)
	}
	return dropped, nil
}

// Start launches the prune scheduler. An empty cron maps to the daily
// default. Returns a cancel func; on an invalid expression nothing is
// started.
func (p *Pruner) Start(ctx context.Context, cronExpr string) (context.CancelFunc, error) {
	if cronExpr == "" {
		cronExpr = DefaultCron
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid retention cron expression: %s", cronExpr)
	}
	ctx2, cancel := context.WithCancel(ctx)
	go p.runScheduler(ctx2, cronExpr)
	logger.Info("retention_scheduler_started", "cron", cronExpr, "max_age", p.maxAge.String())
	return cancel, nil
}

// runScheduler sleeps until each next cron tick and triggers a prune pass.
func (p *Pruner) runScheduler(ctx context.Context, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if _, err := p.RunOnce(); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}
