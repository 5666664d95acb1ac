package lifecycle

import (
	"sync"
	"time"

	"marketsync/pkg/models"
)

// UndoBuffer is a single mutable slot remembering the last cancelled offer
// for a fixed window. A second cancellation before the window elapses
// replaces the slot and silently forfeits the first undo; this is a
// deliberate simplicity trade-off, not a bug.
type UndoBuffer struct {
	mu     sync.Mutex
	window time.Duration
	gen    uint64
	entry  *models.Offer
	kind   models.Kind
	timer  *time.Timer
}

func NewUndoBuffer(window time.Duration) *UndoBuffer {
	return &UndoBuffer{window: window}
}

// Arm stores a pre-cancellation snapshot, replacing any prior entry and
// restarting the expiry timer. On expiry the slot clears itself with no
// further effect.
func (u *UndoBuffer) Arm(kind models.Kind, snapshot models.Offer) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.timer != nil {
		u.timer.Stop()
	}
	u.gen++
	gen := u.gen
	u.kind = kind
	u.entry = &snapshot
	u.timer = time.AfterFunc(u.window, func() {
		u.mu.Lock()
		defer u.mu.Unlock()
		// a newer Arm or Consume may have raced the expiry
		if u.gen == gen {
			u.entry = nil
			u.timer = nil
		}
	})
}

// Consume returns the armed snapshot and clears the slot. The second return
// is false when the slot is empty or the window has expired.
func (u *UndoBuffer) Consume() (models.Kind, models.Offer, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.entry == nil {
		return "", models.Offer{}, false
	}
	kind, snap := u.kind, *u.entry
	u.gen++
	u.entry = nil
	if u.timer != nil {
		u.timer.Stop()
		u.timer = nil
	}
	return kind, snap, true
}
