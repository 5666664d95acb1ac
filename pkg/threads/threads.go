// Package threads manages conversation threads tied to marketplace offers.
// Thread identity is a pure function of the offer, so a conversation can be
// created and used before the backend has confirmed the acceptance that
// caused it; the remote thread id is attached whenever it is discovered.
package threads

import (
	"context"
	"fmt"
	"time"

	"marketsync/pkg/backend"
	"marketsync/pkg/logger"
	"marketsync/pkg/metrics"
	"marketsync/pkg/models"
	"marketsync/pkg/store"
)

// ThreadID derives the deterministic local thread id for an offer. The
// derivation is stable across reloads and needs no server input.
func ThreadID(kind models.Kind, listingID string) string {
	return "t_" + string(kind) + "_" + listingID
}

// Manager owns the thread collection of one campus scope.
type Manager struct {
	store  *store.Store
	remote backend.ThreadBackend
	scope  string

	// runAsync dispatches fire-and-forget side effects after the local
	// commit. Tests replace it to run inline.
	runAsync func(func())
}

func NewManager(st *store.Store, remote backend.ThreadBackend, scope string) *Manager {
	return &Manager{
		store:    st,
		remote:   remote,
		scope:    scope,
		runAsync: func(fn func()) { go fn() },
	}
}

// Ensure returns the thread for (kind, offer), creating and persisting it
// with an empty message list when absent. Idempotent: a second call with
// the same offer returns the same record and never creates a duplicate.
func (m *Manager) Ensure(kind models.Kind, offer models.Offer, buyer string) (models.Thread, error) {
	tid := ThreadID(kind, offer.ID)
	var out models.Thread
	err := m.store.MutateThreads(m.scope, func(list []models.Thread) ([]models.Thread, bool) {
		for _, t := range list {
			if t.ID == tid {
				out = t
				return list, false
			}
		}
		out = models.Thread{
			ID:        tid,
			Kind:      kind,
			ListingID: offer.ID,
			Seller:    offer.Seller,
			Buyer:     buyer,
			Status:    "open",
			CreatedTS: time.Now().UTC().UnixNano(),
			Messages:  []models.Message{},
		}
		return append([]models.Thread{out}, list...), true
	})
	if err != nil {
		return models.Thread{}, err
	}
	return out, nil
}

// AddMessage appends a message to a thread. The sender's own role is marked
// read immediately; the counterpart's is not. If the thread already has a
// remote id the message is mirrored to the backend after the local commit,
// fire-and-forget: a mirror failure never rolls back the local append.
func (m *Manager) AddMessage(ctx context.Context, threadID, from, body string) error {
	var remoteID string
	err := m.store.MutateThreads(m.scope, func(list []models.Thread) ([]models.Thread, bool) {
		for i := range list {
			if list[i].ID != threadID {
				continue
			}
			t := &list[i]
			t.Messages = append(t.Messages, models.Message{
				From: from,
				Body: body,
				TS:   time.Now().UTC().UnixNano(),
				ReadBy: models.ReadBy{
					Seller: from == t.Seller,
					Buyer:  from == t.Buyer,
				},
			})
			remoteID = t.RemoteID
			return list, true
		}
		return list, false
	})
	if err != nil {
		return err
	}
	if remoteID != "" {
		// the mirror call outlives the caller's request context
		bg := context.WithoutCancel(ctx)
		rid := remoteID
		m.runAsync(func() {
			_ = m.remote.AppendMessage(bg, rid, body)
		})
	}
	return nil
}

// MarkRead flags every message in the thread as read for the reader's role.
// Monotonic: flags are only ever set, never cleared.
func (m *Manager) MarkRead(threadID, reader string) error {
	return m.store.MutateThreads(m.scope, func(list []models.Thread) ([]models.Thread, bool) {
		changed := false
		for i := range list {
			if list[i].ID != threadID {
				continue
			}
			t := &list[i]
			for j := range t.Messages {
				rb := &t.Messages[j].ReadBy
				if reader == t.Seller && !rb.Seller {
					rb.Seller = true
					changed = true
				}
				if reader == t.Buyer && !rb.Buyer {
					rb.Buyer = true
					changed = true
				}
			}
		}
		return list, changed
	})
}

// AttachRemote records the backend-assigned thread id. Write-once: a thread
// that already has a remote id is left untouched.
func (m *Manager) AttachRemote(threadID, remoteThreadID string) error {
	return m.store.MutateThreads(m.scope, func(list []models.Thread) ([]models.Thread, bool) {
		for i := range list {
			if list[i].ID == threadID && list[i].RemoteID == "" {
				list[i].RemoteID = remoteThreadID
				return list, true
			}
		}
		return list, false
	})
}

// DiscoverRemote queries the backend's thread listing and, on a match
// against (kind, remote listing id), attaches the remote thread id to the
// local thread. The backend creates its thread as a side effect of
// acceptance, so the id is never available synchronously.
func (m *Manager) DiscoverRemote(ctx context.Context, threadID string, kind models.Kind, remoteListingID string) error {
	remote, err := m.remote.ListThreads(ctx)
	if err != nil {
		return fmt.Errorf("list remote threads: %w", err)
	}
	for _, rt := range remote {
		if rt.Kind == kind && rt.ListingID == remoteListingID {
			return m.AttachRemote(threadID, rt.ID)
		}
	}
	logger.Debug("remote_thread_not_found", "thread", threadID, "listing", remoteListingID)
	return nil
}

// DeleteMessage removes one message by index. Local-only cache edit with no
// backend effect.
func (m *Manager) DeleteMessage(threadID string, index int) error {
	return m.store.MutateThreads(m.scope, func(list []models.Thread) ([]models.Thread, bool) {
		for i := range list {
			if list[i].ID != threadID {
				continue
			}
			msgs := list[i].Messages
			if index < 0 || index >= len(msgs) {
				return list, false
			}
			list[i].Messages = append(msgs[:index], msgs[index+1:]...)
			return list, true
		}
		return list, false
	})
}

// DeleteThread removes a whole thread. Local-only cache edit.
func (m *Manager) DeleteThread(threadID string) error {
	return m.store.MutateThreads(m.scope, func(list []models.Thread) ([]models.Thread, bool) {
		for i := range list {
			if list[i].ID == threadID {
				return append(list[:i], list[i+1:]...), true
			}
		}
		return list, false
	})
}

// List returns the threads in which identity participates, in stored order.
func (m *Manager) List(identity string) ([]models.Thread, error) {
	all, err := m.store.Threads(m.scope)
	if err != nil {
		return nil, err
	}
	var out []models.Thread
	for _, t := range all {
		if t.Participant(identity) {
			out = append(out, t)
		}
	}
	return out, nil
}

// UnreadCount recomputes the global unread counter for identity: across all
// threads where identity is a participant, messages whose read flag for
// identity's role is false. Derived from the store on every call, never
// persisted separately.
func (m *Manager) UnreadCount(identity string) (int, error) {
	all, err := m.store.Threads(m.scope)
	if err != nil {
		return 0, err
	}
	unread := 0
	for _, t := range all {
		for _, msg := range t.Messages {
			switch identity {
			case t.Seller:
				if !msg.ReadBy.Seller {
					unread++
				}
			case t.Buyer:
				if !msg.ReadBy.Buyer {
					unread++
				}
			}
		}
	}
	metrics.UnreadMessages.Set(float64(unread))
	return unread, nil
}
