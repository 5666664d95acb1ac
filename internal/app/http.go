package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"marketsync/pkg/lifecycle"
	"marketsync/pkg/logger"
	"marketsync/pkg/models"
	"marketsync/pkg/utils"
)

// router builds the local HTTP surface: health, metrics, the engine's
// lifecycle operations and read-only queries. Nothing here renders; views
// are exposed as JSON for external clients.
func (a *App) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", a.healthzHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/v1/offers", a.listOffersHandler).Methods(http.MethodGet)
	r.HandleFunc("/v1/offers", a.postOfferHandler).Methods(http.MethodPost)
	r.HandleFunc("/v1/offers/{kind}/{id}/accept", a.acceptOfferHandler).Methods(http.MethodPost)
	r.HandleFunc("/v1/offers/{kind}/{id}", a.cancelOfferHandler).Methods(http.MethodDelete)
	r.HandleFunc("/v1/offers/{kind}/{id}/remove", a.removeOfferHandler).Methods(http.MethodPost)
	r.HandleFunc("/v1/offers/deals", a.dealsHandler).Methods(http.MethodGet)
	r.HandleFunc("/v1/listings", a.myListingsHandler).Methods(http.MethodGet)
	r.HandleFunc("/v1/listings/clear", a.clearListingsHandler).Methods(http.MethodPost)
	r.HandleFunc("/v1/undo", a.undoHandler).Methods(http.MethodPost)

	r.HandleFunc("/v1/threads", a.listThreadsHandler).Methods(http.MethodGet)
	r.HandleFunc("/v1/threads/{id}/messages", a.postMessageHandler).Methods(http.MethodPost)
	r.HandleFunc("/v1/threads/{id}/read", a.markReadHandler).Methods(http.MethodPost)
	r.HandleFunc("/v1/threads/unread", a.unreadHandler).Methods(http.MethodGet)

	r.HandleFunc("/v1/usage", a.recordUsageHandler).Methods(http.MethodPost)
	r.HandleFunc("/v1/usage/stats", a.usageStatsHandler).Methods(http.MethodGet)

	r.HandleFunc("/v1/sync", a.syncHandler).Methods(http.MethodPost)
	return r
}

func (a *App) startHTTP(ctx context.Context) <-chan error {
	a.srv = &http.Server{
		Addr:         a.addr,
		Handler:      a.router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("ops_http_listening", "addr", a.addr)
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

func kindVar(r *http.Request) (models.Kind, bool) {
	k := models.Kind(mux.Vars(r)["kind"])
	return k, k.Valid()
}

// lifecycleStatus maps engine errors onto HTTP statuses. Stale-state
// conflicts are 409 so clients know to refresh, not retry.
func lifecycleStatus(err error) int {
	switch {
	case errors.Is(err, lifecycle.ErrNotAvailable):
		return http.StatusConflict
	case errors.Is(err, lifecycle.ErrNotSeller), errors.Is(err, lifecycle.ErrStillActive):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (a *App) healthzHandler(w http.ResponseWriter, r *http.Request) {
	if !a.store.Ready() {
		utils.JSONError(w, http.StatusServiceUnavailable, "store not ready")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) listOffersHandler(w http.ResponseWriter, r *http.Request) {
	kind := models.Kind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = models.KindMeal
	}
	if !kind.Valid() {
		utils.JSONError(w, http.StatusBadRequest, "unknown kind")
		return
	}
	offers, err := a.views.Search(kind, r.URL.Query().Get("q"))
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if offers == nil {
		offers = []models.Offer{}
	}
	_ = utils.JSONWrite(w, http.StatusOK, offers)
}

func (a *App) postOfferHandler(w http.ResponseWriter, r *http.Request) {
	var offer models.Offer
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid offer payload")
		return
	}
	posted, err := a.engine.Post(r.Context(), offer)
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, posted)
}

func (a *App) acceptOfferHandler(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindVar(r)
	if !ok {
		utils.JSONError(w, http.StatusBadRequest, "unknown kind")
		return
	}
	var body struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if err := a.engine.Accept(r.Context(), kind, mux.Vars(r)["id"], body.Message); err != nil {
		utils.JSONError(w, lifecycleStatus(err), err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (a *App) cancelOfferHandler(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindVar(r)
	if !ok {
		utils.JSONError(w, http.StatusBadRequest, "unknown kind")
		return
	}
	if err := a.engine.Cancel(r.Context(), kind, mux.Vars(r)["id"]); err != nil {
		utils.JSONError(w, lifecycleStatus(err), err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (a *App) removeOfferHandler(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindVar(r)
	if !ok {
		utils.JSONError(w, http.StatusBadRequest, "unknown kind")
		return
	}
	if err := a.engine.HardRemove(kind, mux.Vars(r)["id"]); err != nil {
		utils.JSONError(w, lifecycleStatus(err), err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (a *App) dealsHandler(w http.ResponseWriter, r *http.Request) {
	meals, err := a.views.BestMealDeals(0)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	items, err := a.views.BestItemDeals(0)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string][]models.Offer{
		"meals": meals, "items": items,
	})
}

func (a *App) myListingsHandler(w http.ResponseWriter, r *http.Request) {
	list, err := a.views.MyListings(a.cfg.Session.Identity)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []models.Offer{}
	}
	_ = utils.JSONWrite(w, http.StatusOK, list)
}

func (a *App) clearListingsHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.ClearListings(r.Context()); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (a *App) undoHandler(w http.ResponseWriter, r *http.Request) {
	restored, err := a.engine.Restore()
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]bool{"restored": restored})
}

func (a *App) listThreadsHandler(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get("identity")
	if identity == "" {
		identity = a.cfg.Session.Identity
	}
	list, err := a.threads.List(identity)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []models.Thread{}
	}
	_ = utils.JSONWrite(w, http.StatusOK, list)
}

func (a *App) postMessageHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Body == "" {
		utils.JSONError(w, http.StatusBadRequest, "message body is required")
		return
	}
	if err := a.threads.AddMessage(r.Context(), mux.Vars(r)["id"], a.cfg.Session.Identity, body.Body); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, map[string]string{"status": "sent"})
}

func (a *App) markReadHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.threads.MarkRead(mux.Vars(r)["id"], a.cfg.Session.Identity); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "read"})
}

func (a *App) unreadHandler(w http.ResponseWriter, r *http.Request) {
	n, err := a.threads.UnreadCount(a.cfg.Session.Identity)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]int{"unread": n})
}

func (a *App) recordUsageHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Meals int    `json:"meals"`
		Note  string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Meals <= 0 {
		utils.JSONError(w, http.StatusBadRequest, "a positive meal count is required")
		return
	}
	if err := a.usage.Record(r.Context(), a.cfg.Session.Identity, body.Meals, body.Note); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

func (a *App) usageStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := a.usage.Stats(a.cfg.Session.Identity, time.Now())
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]int{
		"total":     stats.Total,
		"this_week": stats.ThisWeek,
		"last_week": stats.LastWeek,
	})
}

func (a *App) syncHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := a.coord.Sweep(r.Context())
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]int{
		"scanned": stats.Scanned,
		"created": stats.Created,
		"failed":  stats.Failed,
	})
}
