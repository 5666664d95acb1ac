package models

// ReadBy tracks per-role read receipts for one message. Flags are
// monotonic: once true they never revert.
type ReadBy struct {
	Seller bool `json:"seller"`
	Buyer  bool `json:"buyer"`
}

type Message struct {
	From string `json:"from"`
	Body string `json:"body"`
	TS   int64  `json:"ts"`
	// ReadBy is seeded at creation time: the sender's own role is marked
	// read immediately.
	ReadBy ReadBy `json:"read_by"`
}
