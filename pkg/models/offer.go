package models

import "fmt"

// Kind distinguishes the two tradeable offer types.
type Kind string

const (
	KindMeal Kind = "meal"
	KindItem Kind = "item"
)

// Valid reports whether k is a known offer kind.
func (k Kind) Valid() bool { return k == KindMeal || k == KindItem }

// Status is the lifecycle state of an offer. Transitions are monotonic
// except for the single cancelled->active restore performed from the
// undo buffer.
type Status string

const (
	StatusActive    Status = "active"
	StatusAccepted  Status = "accepted"
	StatusCancelled Status = "cancelled"
)

// CategoryBaselines maps item categories to reference prices used to
// compute discount percentages when the seller does not supply one.
var CategoryBaselines = map[string]float64{
	"Books":       60,
	"Furniture":   120,
	"Electronics": 200,
	"Other":       40,
}

// DefaultBaseline returns the reference price for a category, falling back
// to the "Other" baseline for unknown categories.
func DefaultBaseline(category string) float64 {
	if b, ok := CategoryBaselines[category]; ok {
		return b
	}
	return CategoryBaselines["Other"]
}

// Offer is a tradeable unit (meal lot or marketplace item). ID is the
// client-generated local identifier; RemoteID is assigned by the backend
// and is write-once. Attribute fields are kind-specific and stored flat,
// matching the persisted record shape.
type Offer struct {
	ID           string `json:"id"`
	RemoteID     string `json:"remote_id,omitempty"`
	Kind         Kind   `json:"kind"`
	Status       Status `json:"status"`
	Seller       string `json:"seller"`
	AcceptedBy   string `json:"accepted_by,omitempty"`
	BuyerMessage string `json:"buyer_message,omitempty"`
	Scope        string `json:"scope,omitempty"`
	// Created timestamp (ns)
	CreatedTS int64 `json:"ts"`

	// meal attributes
	Meals    int    `json:"meals,omitempty"`
	Location string `json:"location,omitempty"`
	MealType string `json:"meal_type,omitempty"`

	// item attributes
	Name     string  `json:"name,omitempty"`
	Category string  `json:"category,omitempty"`
	Img      string  `json:"img,omitempty"`
	Note     string  `json:"note,omitempty"`
	Baseline float64 `json:"baseline,omitempty"`

	// shared
	Price float64 `json:"price"`
}

// Validate checks the kind-specific attribute payload of a new offer.
func (o *Offer) Validate() error {
	switch o.Kind {
	case KindMeal:
		if o.Meals <= 0 {
			return fmt.Errorf("meal offer requires a positive meal count")
		}
		if o.Location == "" {
			return fmt.Errorf("meal offer requires a location")
		}
		if o.MealType == "" {
			return fmt.Errorf("meal offer requires a meal type")
		}
	case KindItem:
		if o.Name == "" {
			return fmt.Errorf("item offer requires a name")
		}
		if o.Category == "" {
			return fmt.Errorf("item offer requires a category")
		}
	default:
		return fmt.Errorf("unknown offer kind: %q", o.Kind)
	}
	if o.Price <= 0 {
		return fmt.Errorf("offer requires a positive price")
	}
	return nil
}

// DiscountPct returns the rounded discount percentage of an item offer
// against its baseline price. Zero when no baseline is known.
func (o *Offer) DiscountPct() int {
	if o.Baseline <= 0 {
		return 0
	}
	d := (1 - o.Price/o.Baseline) * 100
	if d < 0 {
		d = 0
	}
	return int(d + 0.5)
}
