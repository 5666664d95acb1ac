// Package backend holds the two remote collaborator interfaces the sync
// engine consumes: the offer backend (create/accept/cancel) and the thread
// backend (thread listing and message mirroring). All calls are best-effort
// from the engine's point of view; the local cache is committed first and a
// failed call never rolls it back.
package backend

import (
	"context"

	"marketsync/pkg/models"
)

// CreateResult is the backend's answer to an offer create call. The backend
// is authoritative for the canonical status string at creation time.
type CreateResult struct {
	ID     string
	Status models.Status
}

// OfferBackend is the authoritative service for offer lifecycle records.
type OfferBackend interface {
	// Create posts a locally created offer and returns its remote id and
	// canonical status.
	Create(ctx context.Context, offer models.Offer) (CreateResult, error)
	// Accept marks a remote offer accepted, carrying the buyer's optional
	// message. Fire-once, best-effort.
	Accept(ctx context.Context, kind models.Kind, remoteID, message string) error
	// Cancel cancels a remote offer. Fire-once, best-effort.
	Cancel(ctx context.Context, kind models.Kind, remoteID string) error
	// AdjustUsage reports a meal-plan usage delta.
	AdjustUsage(ctx context.Context, mealsDelta int, note string) error
}

// RemoteThread is one entry of the backend's thread listing.
type RemoteThread struct {
	ID        string
	Kind      models.Kind
	ListingID string
}

// ThreadBackend lists remote conversation threads and mirrors messages to
// them once their remote ids are known.
type ThreadBackend interface {
	ListThreads(ctx context.Context) ([]RemoteThread, error)
	AppendMessage(ctx context.Context, remoteThreadID, body string) error
}
