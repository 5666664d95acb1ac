// Package syncer reconciles locally created offers with the backend. A
// sweep pushes every record that lacks a remote id and patches the backend
// answer back onto the record. Sweeps are idempotent: a record that already
// carries a remote id is never touched again, so repeated or concurrent
// sweeps cannot double-post the same logical offer.
package syncer

import (
	"context"

	"marketsync/pkg/backend"
	"marketsync/pkg/logger"
	"marketsync/pkg/metrics"
	"marketsync/pkg/models"
	"marketsync/pkg/store"
)

// Coordinator owns sync sweeps for one campus scope.
type Coordinator struct {
	store  *store.Store
	offers backend.OfferBackend
	scope  string
}

func New(st *store.Store, offers backend.OfferBackend, scope string) *Coordinator {
	return &Coordinator{store: st, offers: offers, scope: scope}
}

// SweepStats summarizes one sweep.
type SweepStats struct {
	Scanned int
	Created int
	Failed  int
}

// Sweep runs one pass over both offer collections. For each record without
// a remote id it issues a backend create; on success the remote id and the
// backend's canonical status are recorded, on failure the record is left
// unchanged and remains a candidate for the next sweep. Safe to call
// repeatedly and concurrently: the patch is a read-modify-write through the
// serialized store, and a record another sweep already patched is skipped.
func (c *Coordinator) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	for _, kind := range []models.Kind{models.KindMeal, models.KindItem} {
		list, err := c.store.Offers(c.scope, kind)
		if err != nil {
			return stats, err
		}
		stats.Scanned += len(list)
		for _, o := range list {
			if o.RemoteID != "" {
				continue
			}
			res, err := c.offers.Create(ctx, o)
			if err != nil {
				// non-fatal: the record stays a sync candidate
				logger.Warn("sync_create_failed", "kind", kind, "id", o.ID, "error", err)
				metrics.SyncFailures.Inc()
				stats.Failed++
				continue
			}
			if err := c.apply(kind, o.ID, res); err != nil {
				return stats, err
			}
			metrics.SyncCreates.Inc()
			stats.Created++
		}
	}
	metrics.SyncSweeps.Inc()
	logger.Info("sync_sweep_done", "scope", c.scope,
		"scanned", stats.Scanned, "created", stats.Created, "failed", stats.Failed)
	return stats, nil
}

// apply patches the create result onto the local record. The remote id is
// write-once and the status overwrite never regresses a record that has
// moved past active while the create call was in flight.
func (c *Coordinator) apply(kind models.Kind, localID string, res backend.CreateResult) error {
	return c.store.MutateOffers(c.scope, kind, func(list []models.Offer) ([]models.Offer, bool) {
		for i := range list {
			if list[i].ID != localID || list[i].RemoteID != "" {
				continue
			}
			list[i].RemoteID = res.ID
			if list[i].Status == models.StatusActive && res.Status != "" {
				list[i].Status = res.Status
			}
			return list, true
		}
		return list, false
	})
}
