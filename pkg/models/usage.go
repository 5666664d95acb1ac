package models

// UsageEntry records a meal-plan usage event in the per-scope usage log.
type UsageEntry struct {
	User  string `json:"user"`
	Meals int    `json:"meals"`
	// Timestamp (ns)
	TS   int64  `json:"ts"`
	Note string `json:"note,omitempty"`
}
