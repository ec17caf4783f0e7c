package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/minh/wayloop/config"
	"github.com/minh/wayloop/internal/model"
)

func testCfg() *config.RoutingConfig {
	return &config.RoutingConfig{
		LunchStart:  "11:30",
		LunchEnd:    "13:30",
		DinnerStart: "18:00",
		DinnerEnd:   "20:00",
	}
}

func TestExpand_SplitAndCanonicalize(t *testing.T) {
	e := Expand("culture & heritage,  Shopping ", false, nil, 0, testCfg())
	assert.Equal(t, []string{model.CategoryCulture, model.CategoryShopping}, e.Categories)
	assert.False(t, e.MealAnchor)
}

func TestExpand_FoodAlias(t *testing.T) {
	e := Expand("Food & Local Flavours", false, nil, 0, testCfg())
	assert.Equal(t, []string{model.CategoryCafeBakery, model.CategoryRestaurant}, e.Categories)
}

func TestExpand_CustomerLikeAppendsCulture(t *testing.T) {
	e := Expand("Food & Local Flavours", true, nil, 0, testCfg())
	assert.Equal(t,
		[]string{model.CategoryCafeBakery, model.CategoryRestaurant, model.CategoryCulture},
		e.Categories)
}

func TestExpand_CustomerLikeIgnoredForNonFoodQueries(t *testing.T) {
	e := Expand("Nature & View", true, nil, 0, testCfg())
	assert.Equal(t, []string{model.CategoryNature}, e.Categories)
}

func TestExpand_MealInjection(t *testing.T) {
	// 11:00 with a 3-hour budget overlaps the 11:30-13:30 lunch window.
	now := time.Date(2026, 2, 5, 11, 0, 0, 0, time.UTC)

	e := Expand(model.CategoryCulture, false, &now, 180, testCfg())
	assert.Contains(t, e.Categories, model.CategoryRestaurant)
	assert.True(t, e.MealAnchor)
}

func TestExpand_MealInjectionAtWindowBoundary(t *testing.T) {
	// A plan ending exactly at 11:30 touches the lunch window.
	now := time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC)

	e := Expand(model.CategoryCulture, false, &now, 90, testCfg())
	assert.Contains(t, e.Categories, model.CategoryRestaurant)
	assert.True(t, e.MealAnchor)
}

func TestExpand_NoMealInjectionOutsideWindows(t *testing.T) {
	// 14:00 with a 2-hour budget touches neither lunch nor dinner.
	now := time.Date(2026, 2, 5, 14, 0, 0, 0, time.UTC)

	e := Expand(model.CategoryCulture, false, &now, 120, testCfg())
	assert.NotContains(t, e.Categories, model.CategoryRestaurant)
	assert.False(t, e.MealAnchor)
}

func TestExpand_NoAnchorWhenRestaurantAlreadyRequested(t *testing.T) {
	now := time.Date(2026, 2, 5, 11, 0, 0, 0, time.UTC)

	e := Expand("Restaurant", false, &now, 180, testCfg())
	assert.Equal(t, []string{model.CategoryRestaurant}, e.Categories)
	assert.False(t, e.MealAnchor, "explicitly requested Restaurant is not anchored")
}

func TestExpand_UnknownPhrasePassedThrough(t *testing.T) {
	e := Expand("rooftop jazz bars", false, nil, 0, testCfg())
	assert.Equal(t, []string{"rooftop jazz bars"}, e.Categories)
}

func TestExpand_Deduplicates(t *testing.T) {
	e := Expand("Shopping, shopping, SHOPPING", false, nil, 0, testCfg())
	assert.Equal(t, []string{model.CategoryShopping}, e.Categories)
}
