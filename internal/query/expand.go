// Package query maps free-text interest phrases to canonical POI categories.
package query

import (
	"strings"
	"time"

	"github.com/minh/wayloop/config"
	"github.com/minh/wayloop/internal/model"
	"github.com/minh/wayloop/internal/timewin"
)

// Expansion is the result of expanding a raw interest query.
type Expansion struct {
	Categories []string
	// MealAnchor is set when a Restaurant was injected because the planning
	// window overlaps lunch or dinner; the builder then forces the
	// Restaurant stop into the first meal-overlapping arrival slot.
	MealAnchor bool
}

var canonical = map[string]string{
	strings.ToLower(model.CategoryRestaurant):    model.CategoryRestaurant,
	strings.ToLower(model.CategoryCafeBakery):    model.CategoryCafeBakery,
	strings.ToLower(model.CategoryCulture):       model.CategoryCulture,
	strings.ToLower(model.CategoryNature):        model.CategoryNature,
	strings.ToLower(model.CategoryEntertainment): model.CategoryEntertainment,
	strings.ToLower(model.CategoryShopping):      model.CategoryShopping,
	strings.ToLower(model.CategoryBar):           model.CategoryBar,
	strings.ToLower(model.CategoryFoodAlias):     model.CategoryFoodAlias,
}

// Expand splits the raw query on commas, canonicalizes each token, expands
// the food alias, optionally appends Culture & heritage for food-only
// queries from liked customers, and injects a meal-anchored Restaurant when
// the planning window [now, now+budget] overlaps lunch or dinner.
func Expand(raw string, customerLike bool, now *time.Time, budgetMinutes float64, cfg *config.RoutingConfig) Expansion {
	var out Expansion
	seen := make(map[string]bool)
	add := func(cat string) {
		if cat != "" && !seen[cat] {
			seen[cat] = true
			out.Categories = append(out.Categories, cat)
		}
	}

	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		cat, ok := canonical[strings.ToLower(token)]
		if !ok {
			// Unknown phrases go to the vector index as-is.
			add(token)
			continue
		}
		if cat == model.CategoryFoodAlias {
			add(model.CategoryCafeBakery)
			add(model.CategoryRestaurant)
			continue
		}
		add(cat)
	}

	if customerLike && isFoodOnly(out.Categories) {
		add(model.CategoryCulture)
	}

	if now != nil && budgetMinutes > 0 {
		end := now.Add(time.Duration(budgetMinutes * float64(time.Minute)))
		overLunch := timewin.ClockWindowOverlap(*now, end, cfg.LunchStart, cfg.LunchEnd)
		overDinner := timewin.ClockWindowOverlap(*now, end, cfg.DinnerStart, cfg.DinnerEnd)
		if (overLunch || overDinner) && !seen[model.CategoryRestaurant] {
			add(model.CategoryRestaurant)
			out.MealAnchor = true
		}
	}

	return out
}

func isFoodOnly(cats []string) bool {
	if len(cats) != 2 {
		return false
	}
	hasCafe, hasRestaurant := false, false
	for _, c := range cats {
		switch c {
		case model.CategoryCafeBakery:
			hasCafe = true
		case model.CategoryRestaurant:
			hasRestaurant = true
		}
	}
	return hasCafe && hasRestaurant
}
