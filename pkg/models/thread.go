package models

// Thread is a conversation tied 1:1 to an accepted (or being-accepted)
// offer. ID is derived deterministically from the offer (see
// threads.ThreadID) so the conversation can be located before the backend
// confirms acceptance; RemoteID is discovered asynchronously afterwards.
type Thread struct {
	ID        string `json:"id"`
	RemoteID  string `json:"remote_thread_id,omitempty"`
	Kind      Kind   `json:"kind"`
	ListingID string `json:"listing_id"`
	Seller    string `json:"seller"`
	Buyer     string `json:"buyer"`
	Status    string `json:"status"`
	// Created timestamp (ns)
	CreatedTS int64 `json:"created_ts,omitempty"`
	// Messages is append-only from the local perspective; deletion is a
	// local-only cache edit.
	Messages []Message `json:"messages"`
}

// Participant reports whether identity is one of the thread's two parties.
func (t *Thread) Participant(identity string) bool {
	return identity == t.Seller || identity == t.Buyer
}
