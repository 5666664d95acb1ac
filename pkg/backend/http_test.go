package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"marketsync/pkg/models"
)

type recordedRequest struct {
	method string
	path   string
	auth   string
	body   map[string]any
}

func newBackendServer(t *testing.T, status int, respBody string) (*Client, *[]recordedRequest) {
	t.Helper()
	var reqs []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization")}
		if r.Body != nil {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			rec.body = body
		}
		reqs = append(reqs, rec)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(respBody))
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "tok-123", 0, 0), &reqs
}

func TestCreateMealOffer(t *testing.T) {
	c, reqs := newBackendServer(t, http.StatusOK, `{"id": 311, "status": "active"}`)

	res, err := c.Create(context.Background(), models.Offer{
		Kind: models.KindMeal, Meals: 3, Location: "North Hall", Price: 5.5, MealType: "lunch",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.ID != "311" || res.Status != models.StatusActive {
		t.Fatalf("unexpected result: %+v", res)
	}
	got := (*reqs)[0]
	if got.method != http.MethodPost || got.path != "/offers/meals" {
		t.Fatalf("unexpected request: %s %s", got.method, got.path)
	}
	if got.auth != "Bearer tok-123" {
		t.Fatalf("missing bearer token: %q", got.auth)
	}
	if got.body["meals"] != float64(3) || got.body["location"] != "North Hall" || got.body["meal_type"] != "lunch" {
		t.Fatalf("unexpected payload: %v", got.body)
	}
}

func TestCreateItemOffer(t *testing.T) {
	c, reqs := newBackendServer(t, http.StatusCreated, `{"id": "it-9", "status": "active"}`)

	res, err := c.Create(context.Background(), models.Offer{
		Kind: models.KindItem, Name: "Desk", Category: "Furniture", Price: 30, Baseline: 120,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.ID != "it-9" {
		t.Fatalf("string ids must pass through unchanged: %q", res.ID)
	}
	got := (*reqs)[0]
	if got.path != "/offers/items" {
		t.Fatalf("unexpected path: %s", got.path)
	}
	if got.body["name"] != "Desk" || got.body["baseline"] != float64(120) {
		t.Fatalf("unexpected payload: %v", got.body)
	}
}

func TestAcceptAndCancelPaths(t *testing.T) {
	c, reqs := newBackendServer(t, http.StatusOK, `{}`)

	if err := c.Accept(context.Background(), models.KindItem, "42", "mine please"); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if err := c.Cancel(context.Background(), models.KindMeal, "7"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if len(*reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(*reqs))
	}
	accept, cancel := (*reqs)[0], (*reqs)[1]
	if accept.method != http.MethodPost || accept.path != "/offers/items/42/accept" {
		t.Fatalf("unexpected accept request: %s %s", accept.method, accept.path)
	}
	if accept.body["message"] != "mine please" {
		t.Fatalf("unexpected accept payload: %v", accept.body)
	}
	if cancel.method != http.MethodDelete || cancel.path != "/offers/meals/7" {
		t.Fatalf("unexpected cancel request: %s %s", cancel.method, cancel.path)
	}
}

func TestAdjustUsagePayload(t *testing.T) {
	c, reqs := newBackendServer(t, http.StatusOK, `{}`)

	if err := c.AdjustUsage(context.Background(), -2, "guest swipe"); err != nil {
		t.Fatalf("AdjustUsage: %v", err)
	}
	got := (*reqs)[0]
	if got.path != "/usage/adjust" {
		t.Fatalf("unexpected path: %s", got.path)
	}
	if got.body["meals_used_delta"] != float64(-2) || got.body["note"] != "guest swipe" {
		t.Fatalf("unexpected payload: %v", got.body)
	}
}

func TestListThreadsCoercesNumericIDs(t *testing.T) {
	c, _ := newBackendServer(t, http.StatusOK,
		`[{"id": 5, "kind": "item", "listing_id": 311}, {"id": "t9", "kind": "meal", "listing_id": "m2"}]`)

	got, err := c.ListThreads(context.Background())
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 threads, got %d", len(got))
	}
	if got[0].ID != "5" || got[0].Kind != models.KindItem || got[0].ListingID != "311" {
		t.Fatalf("numeric ids mishandled: %+v", got[0])
	}
	if got[1].ID != "t9" || got[1].ListingID != "m2" {
		t.Fatalf("string ids mishandled: %+v", got[1])
	}
}

func TestAppendMessagePath(t *testing.T) {
	c, reqs := newBackendServer(t, http.StatusOK, `{}`)

	if err := c.AppendMessage(context.Background(), "t9", "see you at 5"); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	got := (*reqs)[0]
	if got.method != http.MethodPost || got.path != "/inbox/threads/t9/messages" {
		t.Fatalf("unexpected request: %s %s", got.method, got.path)
	}
	if got.body["body"] != "see you at 5" {
		t.Fatalf("unexpected payload: %v", got.body)
	}
}

func TestNon2xxIsAnError(t *testing.T) {
	c, _ := newBackendServer(t, http.StatusForbidden, `{"error": "bad token"}`)

	if _, err := c.Create(context.Background(), models.Offer{Kind: models.KindItem, Name: "x", Category: "Other", Price: 1}); err == nil {
		t.Fatal("expected error on 403")
	}
	if err := c.Cancel(context.Background(), models.KindItem, "42"); err == nil {
		t.Fatal("expected error on 403")
	}
}
