// Package model contains domain models for the itinerary planning service.
// POI records mirror the PostgreSQL `poi_clean` table; the cache entry
// structs define the exact JSON layout stored in Redis.
package model

import "time"

// ─── Enums ──────────────────────────────────────────────────

// TransportMode is a closed enumeration; each mode maps to a fixed average
// speed and an H3 k-ring via the config lookup table.
type TransportMode string

const (
	ModeWalking   TransportMode = "WALKING"
	ModeBicycling TransportMode = "BICYCLING"
	ModeTransit   TransportMode = "TRANSIT"
	ModeFlexible  TransportMode = "FLEXIBLE"
	ModeDriving   TransportMode = "DRIVING"
)

// Valid reports whether m is one of the known transport modes.
func (m TransportMode) Valid() bool {
	switch m {
	case ModeWalking, ModeBicycling, ModeTransit, ModeFlexible, ModeDriving:
		return true
	}
	return false
}

// Canonical POI categories. The vocabulary is fixed by the ingestion
// pipeline; anything else is carried through verbatim.
const (
	CategoryRestaurant    = "Restaurant"
	CategoryCafeBakery    = "Cafe & Bakery"
	CategoryCulture       = "Culture & heritage"
	CategoryNature        = "Nature & View"
	CategoryEntertainment = "Entertainment"
	CategoryShopping      = "Shopping"
	CategoryBar           = "Bar"

	// CategoryFoodAlias is the UI alias that expands to Cafe & Bakery +
	// Restaurant during query expansion.
	CategoryFoodAlias = "Food & Local Flavours"
)

// ─── Location ───────────────────────────────────────────────

// Location represents a WGS-84 geographic point (EPSG:4326).
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ─── Opening hours ──────────────────────────────────────────

// TimeRange is a single open interval in local wall-clock time, "HH:MM"
// strings. End before or equal to Start means the interval crosses
// midnight into the following day.
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// DayHours is the set of open intervals for one day of the week.
// An empty Hours slice means closed that day.
type DayHours struct {
	Day   string      `json:"day"`
	Hours []TimeRange `json:"hours"`
}

// OpenHours is the full weekly schedule, ordered Monday..Sunday as stored.
// A nil or empty schedule is treated as "always open".
type OpenHours []DayHours

// DaySummary annotates an arrival date with that day's schedule.
type DaySummary struct {
	Day    string      `json:"day"`
	Date   string      `json:"date"`
	IsOpen bool        `json:"is_open"`
	Hours  []TimeRange `json:"hours"`
	Note   string      `json:"note,omitempty"`
}

// ─── POI ────────────────────────────────────────────────────

// POI is a point of interest hydrated from the store. Similarity is only
// populated after a semantic search pass; Category is the expanded query
// category the POI was retrieved under.
type POI struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Address    string    `json:"address"`
	POIType    string    `json:"poi_type"`
	Rating     float64   `json:"rating"` // normalized [0,1] from reviews
	OpenHours  OpenHours `json:"open_hours"`
	Category   string    `json:"category,omitempty"`
	Similarity float64   `json:"similarity,omitempty"`

	// DistanceMeters is set by the spatial source relative to the query
	// point. Not persisted.
	DistanceMeters float64 `json:"distance_meters,omitempty"`
}

// Loc returns the POI position as a Location.
func (p *POI) Loc() Location { return Location{Lat: p.Lat, Lon: p.Lon} }

// ─── Route ──────────────────────────────────────────────────

// Stop is one visited POI inside a built route.
type Stop struct {
	POIID         string      `json:"poi_id"`
	Name          string      `json:"name"`
	Category      string      `json:"category"`
	POIType       string      `json:"poi_type"`
	Address       string      `json:"address"`
	Lat           float64     `json:"lat"`
	Lon           float64     `json:"lon"`
	Order         int         `json:"order"`
	Similarity    float64     `json:"similarity"`
	Rating        float64     `json:"rating"`
	CombinedScore float64     `json:"combined_score"`
	TravelMinutes float64     `json:"travel_time_minutes"` // from previous stop (or user for the first)
	StayMinutes   float64     `json:"stay_time_minutes"`
	ArrivalTime   *time.Time  `json:"arrival_time,omitempty"`
	OpenSummary   *DaySummary `json:"open_hours_summary,omitempty"`
	OpenHours     OpenHours   `json:"open_hours,omitempty"`
}

// Route is an ordered tour of stops starting and ending near the user.
// TravelMinutes includes the closing leg back to the user.
type Route struct {
	Stops         []Stop   `json:"places"`
	TravelMinutes float64  `json:"travel_time_minutes"`
	StayMinutes   float64  `json:"stay_time_minutes"`
	ReturnMinutes float64  `json:"return_time_minutes"`
	TotalMinutes  float64  `json:"total_time_minutes"`
	TotalScore    float64  `json:"total_score"`
	AvgScore      float64  `json:"avg_score"`
	Efficiency    float64  `json:"efficiency"`
	Direction     string   `json:"direction,omitempty"` // circular lock: "right" or "left"
	Warnings      []string `json:"warnings,omitempty"`
	ValidTiming   bool     `json:"is_valid_timing"`
}

// POIIDs returns the ordered stop ids.
func (r *Route) POIIDs() []string {
	ids := make([]string, len(r.Stops))
	for i := range r.Stops {
		ids[i] = r.Stops[i].POIID
	}
	return ids
}

// ─── Per-user route cache ───────────────────────────────────

// CachedPOI is the minimal stop record kept in the per-user cache.
type CachedPOI struct {
	POIID    string `json:"poi_id"`
	Category string `json:"category"`
}

// CachedRoute is one cached route: the ordered (poi_id, category) pairs.
type CachedRoute struct {
	POIs []CachedPOI `json:"pois"`
}

// UserRouteCache is the single Redis object kept per user under
// "user:<user_id>". Route ids are stringified integers assigned in
// planning order. Invariants: a POI present in any route is absent from
// Available for its category, and ids in Substituted never reappear as
// substitution candidates.
type UserRouteCache struct {
	UserID      string                 `json:"user_id"`
	Mode        TransportMode          `json:"transportation_mode"`
	Routes      map[string]CachedRoute `json:"routes"`
	Available   map[string][]string    `json:"available_pois_by_category"`
	Substituted map[string][]string    `json:"substituted_pois_by_category"`
}

// RouteMembers returns the set of every POI id currently in any cached route.
func (c *UserRouteCache) RouteMembers() map[string]bool {
	members := make(map[string]bool)
	for _, rt := range c.Routes {
		for _, p := range rt.POIs {
			members[p.POIID] = true
		}
	}
	return members
}

// ─── Cell cache ─────────────────────────────────────────────

// CellPOI is the POI summary cached per H3 cell under
// "h3:<resolution>:<cell_id>".
type CellPOI struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	POIType   string    `json:"poi_type"`
	Address   string    `json:"address"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Rating    float64   `json:"rating"`
	OpenHours OpenHours `json:"open_hours"`
}

// AsPOI converts the cached summary to a full POI record.
func (c *CellPOI) AsPOI() POI {
	return POI{
		ID:        c.ID,
		Name:      c.Name,
		POIType:   c.POIType,
		Address:   c.Address,
		Lat:       c.Lat,
		Lon:       c.Lon,
		Rating:    c.Rating,
		OpenHours: c.OpenHours,
	}
}
