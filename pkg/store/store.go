package store

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"marketsync/pkg/logger"
	"marketsync/pkg/models"
)

// Collection names persisted per campus scope.
const (
	CollMealOffers = "meal-offers"
	CollItemOffers = "item-offers"
	CollThreads    = "threads"
	CollUsageLog   = "usage-log"
)

// CollectionFor maps an offer kind to its collection name.
func CollectionFor(kind models.Kind) string {
	if kind == models.KindItem {
		return CollItemOffers
	}
	return CollMealOffers
}

// Store is the local entity store: durable key/value persistence of offer
// lists, thread lists and the usage log, namespaced by (scope, collection).
// Each collection is written as one value, so a Put replaces the whole
// collection atomically from the caller's point of view. All access is
// serialized through one mutex; concurrent sweeps and user events read
// then write without observing partial states.
type Store struct {
	mu sync.Mutex
	db *pebble.DB
}

// Open opens (or creates) a pebble database at the given path.
func Open(path string) (*Store, error) {
	logger.Info("opening_store", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("store_open_failed", "path", path, "error", err)
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database if present.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	s.db = nil
	logger.Info("store_closed")
	return nil
}

// Ready reports whether the store is opened and usable.
func (s *Store) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db != nil
}

func collKey(scope, coll string) []byte {
	return []byte("scope:" + scope + ":coll:" + coll)
}

// Get loads a collection into out, which must be a pointer to a slice.
// A collection that was never written is returned empty.
func (s *Store) Get(scope, coll string, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(scope, coll, out)
}

func (s *Store) getLocked(scope, coll string, out any) error {
	if s.db == nil {
		return fmt.Errorf("store not opened; call store.Open first")
	}
	v, closer, err := s.db.Get(collKey(scope, coll))
	if err == pebble.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, out); err != nil {
		return fmt.Errorf("corrupt collection %s/%s: %w", scope, coll, err)
	}
	return nil
}

// Put replaces the whole collection with records. The write is a single
// synced set, so other in-process readers never observe a partial write.
func (s *Store) Put(scope, coll string, records any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(scope, coll, records)
}

func (s *Store) putLocked(scope, coll string, records any) error {
	if s.db == nil {
		return fmt.Errorf("store not opened; call store.Open first")
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal collection %s/%s: %w", scope, coll, err)
	}
	if err := s.db.Set(collKey(scope, coll), data, pebble.Sync); err != nil {
		logger.Error("collection_put_failed", "scope", scope, "coll", coll, "error", err)
		return err
	}
	logger.Debug("collection_put", "scope", scope, "coll", coll, "len", len(data))
	return nil
}

// Offers returns the offer collection for a kind within a scope.
func (s *Store) Offers(scope string, kind models.Kind) ([]models.Offer, error) {
	var out []models.Offer
	if err := s.Get(scope, CollectionFor(kind), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PutOffers replaces the offer collection for a kind within a scope.
func (s *Store) PutOffers(scope string, kind models.Kind, offers []models.Offer) error {
	return s.Put(scope, CollectionFor(kind), offers)
}

// MutateOffers applies fn to the offer collection under the store lock and
// writes the result back when fn reports a change. The read-modify-write is
// atomic with respect to every other store access.
func (s *Store) MutateOffers(scope string, kind models.Kind, fn func([]models.Offer) ([]models.Offer, bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []models.Offer
	if err := s.getLocked(scope, CollectionFor(kind), &list); err != nil {
		return err
	}
	next, changed := fn(list)
	if !changed {
		return nil
	}
	return s.putLocked(scope, CollectionFor(kind), next)
}

// Threads returns the thread collection for a scope.
func (s *Store) Threads(scope string) ([]models.Thread, error) {
	var out []models.Thread
	if err := s.Get(scope, CollThreads, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PutThreads replaces the thread collection for a scope.
func (s *Store) PutThreads(scope string, threads []models.Thread) error {
	return s.Put(scope, CollThreads, threads)
}

// MutateThreads applies fn to the thread collection under the store lock
// and writes the result back when fn reports a change.
func (s *Store) MutateThreads(scope string, fn func([]models.Thread) ([]models.Thread, bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []models.Thread
	if err := s.getLocked(scope, CollThreads, &list); err != nil {
		return err
	}
	next, changed := fn(list)
	if !changed {
		return nil
	}
	return s.putLocked(scope, CollThreads, next)
}

// Usage returns the usage log for a scope.
func (s *Store) Usage(scope string) ([]models.UsageEntry, error) {
	var out []models.UsageEntry
	if err := s.Get(scope, CollUsageLog, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PutUsage replaces the whole usage log for a scope.
func (s *Store) PutUsage(scope string, entries []models.UsageEntry) error {
	return s.Put(scope, CollUsageLog, entries)
}

// AppendUsage appends one entry to the scope's usage log.
func (s *Store) AppendUsage(scope string, entry models.UsageEntry) error {
	return s.MutateUsage(scope, func(list []models.UsageEntry) ([]models.UsageEntry, bool) {
		return append(list, entry), true
	})
}

// MutateUsage applies fn to the usage log under the store lock and writes
// the result back when fn reports a change.
func (s *Store) MutateUsage(scope string, fn func([]models.UsageEntry) ([]models.UsageEntry, bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []models.UsageEntry
	if err := s.getLocked(scope, CollUsageLog, &list); err != nil {
		return err
	}
	next, changed := fn(list)
	if !changed {
		return nil
	}
	return s.putLocked(scope, CollUsageLog, next)
}
