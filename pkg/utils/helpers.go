package utils

import "github.com/google/uuid"

// GenOfferID generates a client-local offer identifier. Local ids are
// stable for the lifetime of the record and never reused.
func GenOfferID() string {
	return uuid.NewString()
}
