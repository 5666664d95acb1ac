package store

import (
	"testing"

	"marketsync/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestPutGetRoundTrip(t *testing.T) {
	st := openTestStore(t)

	offers := []models.Offer{
		{ID: "a", Kind: models.KindMeal, Status: models.StatusActive, Seller: "s@x", Meals: 2, Price: 4.5},
		{ID: "b", Kind: models.KindMeal, Status: models.StatusCancelled, Seller: "s@x", Meals: 1, Price: 3},
	}
	if err := st.PutOffers("StateU", models.KindMeal, offers); err != nil {
		t.Fatalf("PutOffers: %v", err)
	}
	got, err := st.Offers("StateU", models.KindMeal)
	if err != nil {
		t.Fatalf("Offers: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].Status != models.StatusCancelled {
		t.Fatalf("unexpected round trip: %+v", got)
	}
}

func TestGetMissingCollectionIsEmpty(t *testing.T) {
	st := openTestStore(t)
	got, err := st.Offers("StateU", models.KindItem)
	if err != nil {
		t.Fatalf("Offers: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty collection, got %d records", len(got))
	}
}

func TestPutReplacesWholeCollection(t *testing.T) {
	st := openTestStore(t)
	if err := st.PutOffers("StateU", models.KindMeal, []models.Offer{{ID: "a"}, {ID: "b"}}); err != nil {
		t.Fatalf("PutOffers: %v", err)
	}
	if err := st.PutOffers("StateU", models.KindMeal, []models.Offer{{ID: "c"}}); err != nil {
		t.Fatalf("PutOffers: %v", err)
	}
	got, err := st.Offers("StateU", models.KindMeal)
	if err != nil {
		t.Fatalf("Offers: %v", err)
	}
	if len(got) != 1 || got[0].ID != "c" {
		t.Fatalf("expected replacement, got %+v", got)
	}
}

func TestScopesAreIsolated(t *testing.T) {
	st := openTestStore(t)
	if err := st.PutOffers("StateU", models.KindMeal, []models.Offer{{ID: "a"}}); err != nil {
		t.Fatalf("PutOffers: %v", err)
	}
	got, err := st.Offers("TechU", models.KindMeal)
	if err != nil {
		t.Fatalf("Offers: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("scope leak: %+v", got)
	}
}

func TestMutateOffersSkipsWriteWhenUnchanged(t *testing.T) {
	st := openTestStore(t)
	if err := st.PutOffers("StateU", models.KindMeal, []models.Offer{{ID: "a", Status: models.StatusActive}}); err != nil {
		t.Fatalf("PutOffers: %v", err)
	}
	err := st.MutateOffers("StateU", models.KindMeal, func(list []models.Offer) ([]models.Offer, bool) {
		return nil, false
	})
	if err != nil {
		t.Fatalf("MutateOffers: %v", err)
	}
	got, err := st.Offers("StateU", models.KindMeal)
	if err != nil {
		t.Fatalf("Offers: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("collection should be untouched, got %+v", got)
	}
}

func TestUsageAppend(t *testing.T) {
	st := openTestStore(t)
	if err := st.AppendUsage("StateU", models.UsageEntry{User: "u@x", Meals: 2, TS: 1}); err != nil {
		t.Fatalf("AppendUsage: %v", err)
	}
	if err := st.AppendUsage("StateU", models.UsageEntry{User: "u@x", Meals: 1, TS: 2}); err != nil {
		t.Fatalf("AppendUsage: %v", err)
	}
	log, err := st.Usage("StateU")
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if len(log) != 2 || log[1].Meals != 1 {
		t.Fatalf("unexpected usage log: %+v", log)
	}
}

func TestClosedStoreReportsError(t *testing.T) {
	st := openTestStore(t)
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if st.Ready() {
		t.Fatal("closed store reports ready")
	}
	if err := st.PutOffers("StateU", models.KindMeal, nil); err == nil {
		t.Fatal("expected error writing to closed store")
	}
}
