package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"marketsync/pkg/logger"
)

// Start runs periodic sweeps on a cron schedule and returns a cancel func.
// Sync pressure is purely event-driven; there is no backoff or bounded
// retry count beyond waiting for the next tick.
func (c *Coordinator) Start(ctx context.Context, cronExpr string) (context.CancelFunc, error) {
	if cronExpr == "" {
		cronExpr = "*/5 * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid sync cron expression: %s", cronExpr)
	}
	ctx2, cancel := context.WithCancel(ctx)
	go c.runScheduler(ctx2, cronExpr)
	logger.Info("sync_scheduler_started", "cron", cronExpr, "scope", c.scope)
	return cancel, nil
}

func (c *Coordinator) runScheduler(ctx context.Context, cronExpr string) {
	for {
		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("sync_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		select {
		case <-time.After(time.Until(next)):
			if _, err := c.Sweep(ctx); err != nil {
				logger.Error("sync_sweep_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("sync_scheduler_stopping")
			return
		}
	}
}
