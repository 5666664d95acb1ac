// Package metrics exposes Prometheus collectors for the sync engine.
// Everything here is best-effort observability; no engine path depends on it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncSweeps counts completed sync coordinator sweeps.
	SyncSweeps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketsync_sync_sweeps_total",
		Help: "Completed sync sweeps.",
	})

	// SyncCreates counts offers successfully pushed to the backend by sweeps.
	SyncCreates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketsync_sync_creates_total",
		Help: "Offers assigned a remote id by a sync sweep.",
	})

	// SyncFailures counts create calls that failed during sweeps.
	SyncFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketsync_sync_failures_total",
		Help: "Failed backend create calls during sync sweeps.",
	})

	// OffersPosted counts locally posted offers by kind.
	OffersPosted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketsync_offers_posted_total",
		Help: "Locally posted offers.",
	}, []string{"kind"})

	// UnreadMessages tracks the most recently computed global unread count.
	UnreadMessages = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketsync_unread_messages",
		Help: "Unread messages across all threads for the active identity.",
	})
)
