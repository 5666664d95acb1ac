// Package market exposes derived, read-only views over the local entity
// store: deal rankings, listing summaries and usage statistics. Views are
// recomputed from the store on every call; nothing here is persisted
// separately, and rendering is left to the caller.
package market

import (
	"sort"
	"strings"

	"marketsync/pkg/models"
	"marketsync/pkg/store"
)

// Views answers read queries for one campus scope.
type Views struct {
	store *store.Store
	scope string
}

func NewViews(st *store.Store, scope string) *Views {
	return &Views{store: st, scope: scope}
}

// BestMealDeals returns the cheapest active meal offers, ascending by
// price. A limit of zero means the default of five.
func (v *Views) BestMealDeals(limit int) ([]models.Offer, error) {
	if limit <= 0 {
		limit = 5
	}
	list, err := v.store.Offers(v.scope, models.KindMeal)
	if err != nil {
		return nil, err
	}
	active := filterActive(list)
	sort.SliceStable(active, func(i, j int) bool { return active[i].Price < active[j].Price })
	if len(active) > limit {
		active = active[:limit]
	}
	return active, nil
}

// BestItemDeals returns the active item offers with the steepest discount
// against their category baseline, descending. A limit of zero means the
// default of five.
func (v *Views) BestItemDeals(limit int) ([]models.Offer, error) {
	if limit <= 0 {
		limit = 5
	}
	list, err := v.store.Offers(v.scope, models.KindItem)
	if err != nil {
		return nil, err
	}
	active := filterActive(list)
	sort.SliceStable(active, func(i, j int) bool { return active[i].DiscountPct() > active[j].DiscountPct() })
	if len(active) > limit {
		active = active[:limit]
	}
	return active, nil
}

// Search returns active offers of a kind matching the query, newest first.
// Meal offers match on location; item offers on name or category. An empty
// query matches everything.
func (v *Views) Search(kind models.Kind, query string) ([]models.Offer, error) {
	list, err := v.store.Offers(v.scope, kind)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var out []models.Offer
	for _, o := range filterActive(list) {
		if q != "" && !matches(o, q) {
			continue
		}
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedTS > out[j].CreatedTS })
	return out, nil
}

// MyListings returns all offers of both kinds posted by identity, any
// status, newest first.
func (v *Views) MyListings(identity string) ([]models.Offer, error) {
	var out []models.Offer
	for _, kind := range []models.Kind{models.KindMeal, models.KindItem} {
		list, err := v.store.Offers(v.scope, kind)
		if err != nil {
			return nil, err
		}
		for _, o := range list {
			if o.Seller == identity {
				out = append(out, o)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedTS > out[j].CreatedTS })
	return out, nil
}

func filterActive(list []models.Offer) []models.Offer {
	var out []models.Offer
	for _, o := range list {
		if o.Status == models.StatusActive {
			out = append(out, o)
		}
	}
	return out
}

func matches(o models.Offer, q string) bool {
	switch o.Kind {
	case models.KindMeal:
		return strings.Contains(strings.ToLower(o.Location), q)
	case models.KindItem:
		return strings.Contains(strings.ToLower(o.Name), q) ||
			strings.Contains(strings.ToLower(o.Category), q)
	}
	return false
}
