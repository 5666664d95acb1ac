package market

import (
	"context"
	"time"

	"marketsync/pkg/backend"
	"marketsync/pkg/logger"
	"marketsync/pkg/models"
	"marketsync/pkg/store"
)

// UsageTracker records meal-plan usage in the per-scope usage log and
// mirrors each entry to the backend, best-effort.
type UsageTracker struct {
	store  *store.Store
	remote backend.OfferBackend
	scope  string

	runAsync func(func())
}

func NewUsageTracker(st *store.Store, remote backend.OfferBackend, scope string) *UsageTracker {
	return &UsageTracker{
		store:    st,
		remote:   remote,
		scope:    scope,
		runAsync: func(fn func()) { go fn() },
	}
}

// Record appends a usage entry locally and then reports the delta to the
// backend as a negative adjustment. A failed report is logged and dropped;
// the local log is kept either way.
func (u *UsageTracker) Record(ctx context.Context, user string, meals int, note string) error {
	entry := models.UsageEntry{
		User:  user,
		Meals: meals,
		TS:    time.Now().UTC().UnixNano(),
		Note:  note,
	}
	if err := u.store.AppendUsage(u.scope, entry); err != nil {
		return err
	}
	bg := context.WithoutCancel(ctx)
	u.runAsync(func() {
		if err := u.remote.AdjustUsage(bg, -meals, note); err != nil {
			logger.Warn("usage_adjust_failed", "user", user, "error", err)
		}
	})
	return nil
}

// UsageStats summarizes a user's logged meal usage.
type UsageStats struct {
	Total    int
	ThisWeek int
	LastWeek int
}

// Stats recomputes usage totals for a user from the log. Weeks start on
// Monday in the supplied reference time's location.
func (u *UsageTracker) Stats(user string, now time.Time) (UsageStats, error) {
	log, err := u.store.Usage(u.scope)
	if err != nil {
		return UsageStats{}, err
	}
	cur := weekStart(now)
	next := cur.AddDate(0, 0, 7)
	prev := cur.AddDate(0, 0, -7)

	var stats UsageStats
	for _, e := range log {
		if e.User != user {
			continue
		}
		ts := time.Unix(0, e.TS).In(now.Location())
		stats.Total += e.Meals
		switch {
		case !ts.Before(cur) && ts.Before(next):
			stats.ThisWeek += e.Meals
		case !ts.Before(prev) && ts.Before(cur):
			stats.LastWeek += e.Meals
		}
	}
	return stats, nil
}

func weekStart(t time.Time) time.Time {
	d := int(t.Weekday())
	if d == 0 {
		d = 7
	}
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return midnight.AddDate(0, 0, 1-d)
}
