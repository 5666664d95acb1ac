// Package lifecycle implements the offer state machine: post, accept,
// cancel, restore and hard removal. Every mutation commits to the local
// store first and fires its backend call afterwards; a failed or delayed
// call only leaves supplementary fields (remote id, canonical status)
// unset, it never rolls the local mutation back.
package lifecycle

import (
	"context"
	"errors"
	"time"

	"marketsync/pkg/backend"
	"marketsync/pkg/logger"
	"marketsync/pkg/metrics"
	"marketsync/pkg/models"
	"marketsync/pkg/store"
	"marketsync/pkg/threads"
	"marketsync/pkg/utils"
)

// ErrNotAvailable signals a stale-state conflict: the record is gone or no
// longer active, typically because another device acted first. Callers
// should surface it and refresh their views from the current cache.
var ErrNotAvailable = errors.New("offer is no longer available")

// ErrNotSeller is returned when a party other than the seller attempts to
// cancel an offer.
var ErrNotSeller = errors.New("only the seller can cancel an offer")

// ErrStillActive is returned when a hard removal targets an active record;
// active offers must be cancelled first.
var ErrStillActive = errors.New("offer is still active")

// DefaultUndoWindow is how long a cancellation stays reversible.
const DefaultUndoWindow = 5 * time.Second

// Engine drives offer lifecycle transitions for one identity within one
// campus scope.
type Engine struct {
	store    *store.Store
	offers   backend.OfferBackend
	threads  *threads.Manager
	undo     *UndoBuffer
	scope    string
	identity string

	// runAsync dispatches best-effort backend calls after the local commit.
	// Tests replace it to run inline.
	runAsync func(func())
}

func New(st *store.Store, offers backend.OfferBackend, tm *threads.Manager, scope, identity string, undoWindow time.Duration) *Engine {
	if undoWindow <= 0 {
		undoWindow = DefaultUndoWindow
	}
	return &Engine{
		store:    st,
		offers:   offers,
		threads:  tm,
		undo:     NewUndoBuffer(undoWindow),
		scope:    scope,
		identity: identity,
		runAsync: func(fn func()) { go fn() },
	}
}

// Post creates a new active offer with a fresh local id and commits it to
// the store, then attempts an immediate backend create. The record is
// visible locally whether or not the create succeeds; a failed create
// leaves it as a candidate for the next sync sweep.
func (e *Engine) Post(ctx context.Context, offer models.Offer) (models.Offer, error) {
	offer.ID = utils.GenOfferID()
	offer.RemoteID = ""
	offer.Status = models.StatusActive
	offer.Seller = e.identity
	offer.Scope = e.scope
	offer.CreatedTS = time.Now().UTC().UnixNano()
	if offer.Kind == models.KindItem && offer.Baseline == 0 {
		offer.Baseline = models.DefaultBaseline(offer.Category)
	}
	if err := offer.Validate(); err != nil {
		return models.Offer{}, err
	}
	err := e.store.MutateOffers(e.scope, offer.Kind, func(list []models.Offer) ([]models.Offer, bool) {
		return append(list, offer), true
	})
	if err != nil {
		return models.Offer{}, err
	}
	metrics.OffersPosted.WithLabelValues(string(offer.Kind)).Inc()
	logger.Info("offer_posted", "kind", offer.Kind, "id", offer.ID, "scope", e.scope)

	// the backend call outlives the caller's request context
	bg := context.WithoutCancel(ctx)
	posted := offer
	e.runAsync(func() {
		res, err := e.offers.Create(bg, posted)
		if err != nil {
			logger.Warn("offer_create_failed", "id", posted.ID, "error", err)
			return
		}
		e.recordRemote(posted.Kind, posted.ID, res)
	})
	return offer, nil
}

// recordRemote patches the backend-assigned id and canonical status onto a
// local record. The remote id is write-once; the status overwrite never
// regresses a record that has already moved past active.
func (e *Engine) recordRemote(kind models.Kind, localID string, res backend.CreateResult) {
	err := e.store.MutateOffers(e.scope, kind, func(list []models.Offer) ([]models.Offer, bool) {
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
	if err != nil {
		logger.Warn("record_remote_failed", "id", localID, "error", err)
	}
}

// Accept transitions an active offer to accepted for the acting identity,
// creates (or locates) its conversation thread with the acceptance message
// as the first entry, and then, in the background, notifies the backend and
// tries to discover the remote thread id. A non-active record is rejected
// with ErrNotAvailable.
func (e *Engine) Accept(ctx context.Context, kind models.Kind, offerID, message string) error {
	if message == "" {
		message = "Accepted"
	}
	var accepted models.Offer
	found := false
	err := e.store.MutateOffers(e.scope, kind, func(list []models.Offer) ([]models.Offer, bool) {
		for i := range list {
			if list[i].ID != offerID {
				continue
			}
			if list[i].Status != models.StatusActive {
				return list, false
			}
			list[i].Status = models.StatusAccepted
			list[i].AcceptedBy = e.identity
			list[i].BuyerMessage = message
			accepted = list[i]
			found = true
			return list, true
		}
		return list, false
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrNotAvailable
	}

	t, err := e.threads.Ensure(kind, accepted, e.identity)
	if err != nil {
		return err
	}
	if err := e.threads.AddMessage(ctx, t.ID, e.identity, message); err != nil {
		return err
	}
	logger.Info("offer_accepted", "kind", kind, "id", offerID, "thread", t.ID)

	// The backend's thread is a side effect of acceptance and its id is not
	// returned synchronously, so discovery happens after the accept call.
	remoteID := accepted.RemoteID
	if remoteID == "" {
		remoteID = accepted.ID
	}
	tid := t.ID
	bg := context.WithoutCancel(ctx)
	e.runAsync(func() {
		if err := e.offers.Accept(bg, kind, remoteID, message); err != nil {
			logger.Warn("offer_accept_remote_failed", "id", offerID, "error", err)
		}
		if err := e.threads.DiscoverRemote(bg, tid, kind, remoteID); err != nil {
			logger.Warn("remote_thread_discovery_failed", "thread", tid, "error", err)
		}
	})
	return nil
}

// Cancel transitions an active offer owned by the acting identity to
// cancelled, arms the undo buffer with the pre-cancellation snapshot, and
// fires a best-effort backend cancel.
func (e *Engine) Cancel(ctx context.Context, kind models.Kind, offerID string) error {
	var snapshot models.Offer
	found := false
	wrongSeller := false
	err := e.store.MutateOffers(e.scope, kind, func(list []models.Offer) ([]models.Offer, bool) {
		for i := range list {
			if list[i].ID != offerID {
				continue
			}
			if list[i].Status != models.StatusActive {
				return list, false
			}
			if list[i].Seller != e.identity {
				wrongSeller = true
				return list, false
			}
			snapshot = list[i]
			list[i].Status = models.StatusCancelled
			found = true
			return list, true
		}
		return list, false
	})
	if err != nil {
		return err
	}
	if wrongSeller {
		return ErrNotSeller
	}
	if !found {
		return ErrNotAvailable
	}

	e.undo.Arm(kind, snapshot)
	logger.Info("offer_cancelled", "kind", kind, "id", offerID)

	remoteID := snapshot.RemoteID
	if remoteID == "" {
		remoteID = snapshot.ID
	}
	bg := context.WithoutCancel(ctx)
	e.runAsync(func() {
		if err := e.offers.Cancel(bg, kind, remoteID); err != nil {
			logger.Warn("offer_cancel_remote_failed", "id", offerID, "error", err)
		}
	})
	return nil
}

// Restore reverses the last cancellation if the undo window has not
// expired, returning the record to active. Restore is local-only: the
// backend-side cancellation is not reversed. It reports whether a record
// was restored.
func (e *Engine) Restore() (bool, error) {
	kind, snap, ok := e.undo.Consume()
	if !ok {
		return false, nil
	}
	restored := false
	err := e.store.MutateOffers(e.scope, kind, func(list []models.Offer) ([]models.Offer, bool) {
		for i := range list {
			if list[i].ID == snap.ID && list[i].Status == models.StatusCancelled {
				list[i].Status = models.StatusActive
				restored = true
				return list, true
			}
		}
		return list, false
	})
	if err != nil {
		return false, err
	}
	if restored {
		logger.Info("offer_restored", "kind", kind, "id", snap.ID)
	}
	return restored, nil
}

// HardRemove permanently drops a non-active record from local storage. No
// backend call is made; this is a pure cache eviction used to clear
// resolved listings from view.
func (e *Engine) HardRemove(kind models.Kind, offerID string) error {
	stillActive := false
	found := false
	err := e.store.MutateOffers(e.scope, kind, func(list []models.Offer) ([]models.Offer, bool) {
		for i := range list {
			if list[i].ID != offerID {
				continue
			}
			if list[i].Status == models.StatusActive {
				stillActive = true
				return list, false
			}
			found = true
			return append(list[:i], list[i+1:]...), true
		}
		return list, false
	})
	if err != nil {
		return err
	}
	if stillActive {
		return ErrStillActive
	}
	if !found {
		return ErrNotAvailable
	}
	return nil
}

// ClearListings cancels every active offer owned by the acting identity,
// locally and best-effort remotely. Bulk cancellation deliberately bypasses
// the single-slot undo buffer.
func (e *Engine) ClearListings(ctx context.Context) error {
	bg := context.WithoutCancel(ctx)
	for _, kind := range []models.Kind{models.KindMeal, models.KindItem} {
		var remoteIDs []string
		err := e.store.MutateOffers(e.scope, kind, func(list []models.Offer) ([]models.Offer, bool) {
			changed := false
			for i := range list {
				if list[i].Seller != e.identity || list[i].Status != models.StatusActive {
					continue
				}
				rid := list[i].RemoteID
				if rid == "" {
					rid = list[i].ID
				}
				remoteIDs = append(remoteIDs, rid)
				list[i].Status = models.StatusCancelled
				changed = true
			}
			return list, changed
		})
		if err != nil {
			return err
		}
		k := kind
		for _, rid := range remoteIDs {
			id := rid
			e.runAsync(func() {
				if err := e.offers.Cancel(bg, k, id); err != nil {
					logger.Warn("offer_cancel_remote_failed", "id", id, "error", err)
				}
			})
		}
	}
	logger.Info("listings_cleared", "scope", e.scope, "seller", e.identity)
	return nil
}
