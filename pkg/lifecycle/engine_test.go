package lifecycle

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"marketsync/pkg/backend"
	"marketsync/pkg/models"
	"marketsync/pkg/store"
	"marketsync/pkg/threads"
)

type fakeBackend struct {
	down    bool
	nextID  int
	status  models.Status
	creates int
	accepts []string
	cancels []string
	threads []backend.RemoteThread
}

func (f *fakeBackend) Create(ctx context.Context, offer models.Offer) (backend.CreateResult, error) {
	if f.down {
		return backend.CreateResult{}, errors.New("backend unreachable")
	}
	f.creates++
	f.nextID++
	st := f.status
	if st == "" {
		st = models.StatusActive
	}
	return backend.CreateResult{ID: "r" + strconv.Itoa(f.nextID), Status: st}, nil
}

func (f *fakeBackend) Accept(ctx context.Context, kind models.Kind, remoteID, message string) error {
	if f.down {
		return errors.New("backend unreachable")
	}
	f.accepts = append(f.accepts, remoteID)
	return nil
}

func (f *fakeBackend) Cancel(ctx context.Context, kind models.Kind, remoteID string) error {
	if f.down {
		return errors.New("backend unreachable")
	}
	f.cancels = append(f.cancels, remoteID)
	return nil
}

func (f *fakeBackend) AdjustUsage(ctx context.Context, mealsDelta int, note string) error {
	return nil
}

func (f *fakeBackend) ListThreads(ctx context.Context) ([]backend.RemoteThread, error) {
	if f.down {
		return nil, errors.New("backend unreachable")
	}
	return f.threads, nil
}

func (f *fakeBackend) AppendMessage(ctx context.Context, remoteThreadID, body string) error {
	if f.down {
		return errors.New("backend unreachable")
	}
	return nil
}

func newTestEngine(t *testing.T, identity string, window time.Duration) (*Engine, *fakeBackend, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	fb := &fakeBackend{}
	tm := threads.NewManager(st, fb, "StateU")
	e := New(st, fb, tm, "StateU", identity, window)
	e.runAsync = func(fn func()) { fn() }
	return e, fb, st
}

func itemOffer() models.Offer {
	return models.Offer{Kind: models.KindItem, Name: "Lamp", Category: "Other", Price: 12}
}

func TestPostAssignsRemoteIDWhenBackendUp(t *testing.T) {
	e, fb, st := newTestEngine(t, "seller@x", 0)

	posted, err := e.Post(context.Background(), itemOffer())
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if posted.ID == "" || posted.Status != models.StatusActive {
		t.Fatalf("bad posted record: %+v", posted)
	}
	if posted.Baseline != 40 {
		t.Fatalf("category baseline not applied: %v", posted.Baseline)
	}
	if fb.creates != 1 {
		t.Fatalf("expected one create call, got %d", fb.creates)
	}
	list, _ := st.Offers("StateU", models.KindItem)
	if len(list) != 1 || list[0].RemoteID == "" {
		t.Fatalf("remote id not recorded: %+v", list)
	}
}

func TestPostSurvivesBackendOutage(t *testing.T) {
	e, fb, st := newTestEngine(t, "seller@x", 0)
	fb.down = true

	posted, err := e.Post(context.Background(), itemOffer())
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	list, _ := st.Offers("StateU", models.KindItem)
	if len(list) != 1 || list[0].ID != posted.ID {
		t.Fatalf("local record missing after outage: %+v", list)
	}
	if list[0].RemoteID != "" {
		t.Fatalf("remote id set while backend down: %q", list[0].RemoteID)
	}
}

func TestPostRejectsInvalidOffer(t *testing.T) {
	e, _, st := newTestEngine(t, "seller@x", 0)

	bad := itemOffer()
	bad.Price = -1
	if _, err := e.Post(context.Background(), bad); err == nil {
		t.Fatal("expected validation error")
	}
	list, _ := st.Offers("StateU", models.KindItem)
	if len(list) != 0 {
		t.Fatalf("invalid offer was persisted: %+v", list)
	}
}

func TestAcceptCreatesThreadWithMessage(t *testing.T) {
	e, fb, st := newTestEngine(t, "seller@x", 0)
	posted, _ := e.Post(context.Background(), itemOffer())

	e.identity = "buyer@x"
	if err := e.Accept(context.Background(), models.KindItem, posted.ID, ""); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	list, _ := st.Offers("StateU", models.KindItem)
	got := list[0]
	if got.Status != models.StatusAccepted || got.AcceptedBy != "buyer@x" {
		t.Fatalf("accept not applied: %+v", got)
	}
	if got.BuyerMessage != "Accepted" {
		t.Fatalf("default message not applied: %q", got.BuyerMessage)
	}

	ths, _ := st.Threads("StateU")
	if len(ths) != 1 {
		t.Fatalf("expected one thread, got %d", len(ths))
	}
	th := ths[0]
	if th.ID != threads.ThreadID(models.KindItem, posted.ID) {
		t.Fatalf("unexpected thread id: %q", th.ID)
	}
	if len(th.Messages) != 1 || th.Messages[0].Body != "Accepted" {
		t.Fatalf("acceptance message missing: %+v", th.Messages)
	}
	if len(fb.accepts) != 1 {
		t.Fatalf("backend accept not fired: %v", fb.accepts)
	}
}

func TestAcceptTwiceReturnsNotAvailable(t *testing.T) {
	e, _, _ := newTestEngine(t, "seller@x", 0)
	posted, _ := e.Post(context.Background(), itemOffer())

	if err := e.Accept(context.Background(), models.KindItem, posted.ID, "mine"); err != nil {
		t.Fatalf("first Accept: %v", err)
	}
	if err := e.Accept(context.Background(), models.KindItem, posted.ID, "mine too"); !errors.Is(err, ErrNotAvailable) {
		t.Fatalf("expected ErrNotAvailable, got %v", err)
	}
}

func TestAcceptDiscoversRemoteThread(t *testing.T) {
	e, fb, st := newTestEngine(t, "seller@x", 0)
	posted, _ := e.Post(context.Background(), itemOffer())
	list, _ := st.Offers("StateU", models.KindItem)
	fb.threads = []backend.RemoteThread{
		{ID: "rt1", Kind: models.KindItem, ListingID: list[0].RemoteID},
	}

	if err := e.Accept(context.Background(), models.KindItem, posted.ID, ""); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	ths, _ := st.Threads("StateU")
	if ths[0].RemoteID != "rt1" {
		t.Fatalf("remote thread id not attached: %+v", ths[0])
	}
}

func TestCancelRequiresSeller(t *testing.T) {
	e, _, _ := newTestEngine(t, "seller@x", 0)
	posted, _ := e.Post(context.Background(), itemOffer())

	e.identity = "stranger@x"
	if err := e.Cancel(context.Background(), models.KindItem, posted.ID); !errors.Is(err, ErrNotSeller) {
		t.Fatalf("expected ErrNotSeller, got %v", err)
	}
}

func TestCancelThenRestoreWithinWindow(t *testing.T) {
	e, fb, st := newTestEngine(t, "seller@x", time.Minute)
	posted, _ := e.Post(context.Background(), itemOffer())

	if err := e.Cancel(context.Background(), models.KindItem, posted.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	list, _ := st.Offers("StateU", models.KindItem)
	if list[0].Status != models.StatusCancelled {
		t.Fatalf("cancel not applied: %+v", list[0])
	}
	if len(fb.cancels) != 1 {
		t.Fatalf("backend cancel not fired: %v", fb.cancels)
	}

	ok, err := e.Restore()
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !ok {
		t.Fatal("restore reported nothing to restore")
	}
	list, _ = st.Offers("StateU", models.KindItem)
	if list[0].Status != models.StatusActive {
		t.Fatalf("restore not applied: %+v", list[0])
	}

	// the slot is consumed; a second restore is a no-op
	ok, _ = e.Restore()
	if ok {
		t.Fatal("second restore should find an empty slot")
	}
}

func TestRestoreAfterWindowExpiry(t *testing.T) {
	e, _, st := newTestEngine(t, "seller@x", 20*time.Millisecond)
	posted, _ := e.Post(context.Background(), itemOffer())

	if err := e.Cancel(context.Background(), models.KindItem, posted.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	time.Sleep(60 * time.Millisecond)

	ok, err := e.Restore()
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if ok {
		t.Fatal("restore succeeded after the window expired")
	}
	list, _ := st.Offers("StateU", models.KindItem)
	if list[0].Status != models.StatusCancelled {
		t.Fatalf("record changed after expired restore: %+v", list[0])
	}
}

func TestSecondCancelReplacesUndoSlot(t *testing.T) {
	e, _, st := newTestEngine(t, "seller@x", time.Minute)
	first, _ := e.Post(context.Background(), itemOffer())
	second, _ := e.Post(context.Background(), itemOffer())

	if err := e.Cancel(context.Background(), models.KindItem, first.ID); err != nil {
		t.Fatalf("Cancel first: %v", err)
	}
	if err := e.Cancel(context.Background(), models.KindItem, second.ID); err != nil {
		t.Fatalf("Cancel second: %v", err)
	}

	ok, _ := e.Restore()
	if !ok {
		t.Fatal("restore found nothing")
	}
	list, _ := st.Offers("StateU", models.KindItem)
	byID := map[string]models.Status{}
	for _, o := range list {
		byID[o.ID] = o.Status
	}
	if byID[second.ID] != models.StatusActive {
		t.Fatalf("latest cancellation not restored: %v", byID)
	}
	if byID[first.ID] != models.StatusCancelled {
		t.Fatalf("forfeited cancellation was restored: %v", byID)
	}
}

func TestHardRemoveRefusesActive(t *testing.T) {
	e, _, st := newTestEngine(t, "seller@x", 0)
	posted, _ := e.Post(context.Background(), itemOffer())

	if err := e.HardRemove(models.KindItem, posted.ID); !errors.Is(err, ErrStillActive) {
		t.Fatalf("expected ErrStillActive, got %v", err)
	}

	if err := e.Cancel(context.Background(), models.KindItem, posted.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := e.HardRemove(models.KindItem, posted.ID); err != nil {
		t.Fatalf("HardRemove: %v", err)
	}
	list, _ := st.Offers("StateU", models.KindItem)
	if len(list) != 0 {
		t.Fatalf("record still present: %+v", list)
	}

	if err := e.HardRemove(models.KindItem, posted.ID); !errors.Is(err, ErrNotAvailable) {
		t.Fatalf("expected ErrNotAvailable for missing record, got %v", err)
	}
}

func TestClearListingsBypassesUndo(t *testing.T) {
	e, fb, st := newTestEngine(t, "seller@x", time.Minute)
	_, _ = e.Post(context.Background(), itemOffer())
	_, _ = e.Post(context.Background(), models.Offer{
		Kind: models.KindMeal, Meals: 2, Location: "North Hall", Price: 6, MealType: "dinner",
	})

	if err := e.ClearListings(context.Background()); err != nil {
		t.Fatalf("ClearListings: %v", err)
	}
	for _, kind := range []models.Kind{models.KindMeal, models.KindItem} {
		list, _ := st.Offers("StateU", kind)
		for _, o := range list {
			if o.Status != models.StatusCancelled {
				t.Fatalf("%s offer not cancelled: %+v", kind, o)
			}
		}
	}
	if len(fb.cancels) != 2 {
		t.Fatalf("expected 2 remote cancels, got %d", len(fb.cancels))
	}
	if ok, _ := e.Restore(); ok {
		t.Fatal("bulk clear must not arm the undo buffer")
	}
}

func TestUndoBufferExpiry(t *testing.T) {
	u := NewUndoBuffer(20 * time.Millisecond)
	u.Arm(models.KindItem, models.Offer{ID: "a"})

	time.Sleep(60 * time.Millisecond)
	if _, _, ok := u.Consume(); ok {
		t.Fatal("slot survived past the window")
	}

	// re-arming after expiry works
	u.Arm(models.KindItem, models.Offer{ID: "b"})
	kind, snap, ok := u.Consume()
	if !ok || kind != models.KindItem || snap.ID != "b" {
		t.Fatalf("unexpected slot contents: %v %v %v", kind, snap, ok)
	}
}
