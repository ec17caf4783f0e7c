package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/minh/wayloop/config"
	"github.com/minh/wayloop/internal/model"
	"github.com/minh/wayloop/internal/semantic"
	"github.com/minh/wayloop/internal/spatial"
	"github.com/minh/wayloop/internal/timewin"
	"github.com/minh/wayloop/pkg/geo"
)

// Substituter swaps single stops inside cached routes (C9).
type Substituter struct {
	store POIStore
	cache RouteCache
	cfg   *config.RoutingConfig
}

// NewSubstituter creates a Substituter.
func NewSubstituter(store POIStore, cache RouteCache, cfg *config.RoutingConfig) *Substituter {
	return &Substituter{store: store, cache: cache, cfg: cfg}
}

// SubstituteRequest asks for ranked replacements of one stop.
type SubstituteRequest struct {
	UserID       string
	RouteID      string
	OldPOIID     string
	UserLocation model.Location
	Mode         model.TransportMode
	TopK         int
	CurrentTime  *time.Time
}

// Substitute is one ranked replacement candidate with the distance and time
// deltas its two incident legs would incur.
type Substitute struct {
	POI                 model.POI  `json:"poi"`
	Score               float64    `json:"score"`
	DistanceDeltaMeters float64    `json:"distance_delta_meters"`
	TimeDeltaMinutes    float64    `json:"time_delta_minutes"`
	ProjectedArrival    *time.Time `json:"projected_arrival,omitempty"`
}

// ReplacePOI returns up to TopK replacement candidates for the old stop,
// drawn from the same category's available pool minus already-substituted
// ids and every POI currently held by any of the user's routes.
func (s *Substituter) ReplacePOI(ctx context.Context, req SubstituteRequest) ([]Substitute, error) {
	profile, ok := s.cfg.Profile(req.Mode)
	if !ok {
		return nil, fmt.Errorf("%w: %q", spatial.ErrUnknownMode, req.Mode)
	}
	if req.TopK <= 0 {
		return nil, fmt.Errorf("%w: %d", semantic.ErrInvalidTopK, req.TopK)
	}

	entry, err := s.cache.Get(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	route, ok := entry.Routes[req.RouteID]
	if !ok {
		return nil, fmt.Errorf("%w: route %s", ErrRouteNotFound, req.RouteID)
	}

	idx := -1
	for i, p := range route.POIs {
		if p.POIID == req.OldPOIID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s in route %s", ErrPOINotInRoute, req.OldPOIID, req.RouteID)
	}
	category := route.POIs[idx].Category

	// Substitution pool: available minus substituted minus route members.
	members := entry.RouteMembers()
	substituted := map[string]bool{}
	for _, id := range entry.Substituted[category] {
		substituted[id] = true
	}
	var poolIDs []string
	for _, id := range entry.Available[category] {
		if !members[id] && !substituted[id] {
			poolIDs = append(poolIDs, id)
		}
	}
	if len(poolIDs) == 0 {
		return nil, fmt.Errorf("%w: available pool for %q empty after route and substitution exclusions", ErrNoSubstitutes, category)
	}

	// Hydrate the candidates plus every route stop: the stop records give
	// the leg geometry and the arrival walk.
	routeIDs := make([]string, len(route.POIs))
	for i, p := range route.POIs {
		routeIDs[i] = p.POIID
	}
	records, err := s.hydrate(ctx, append(append([]string{}, poolIDs...), routeIDs...))
	if err != nil {
		return nil, err
	}
	old, ok := records[req.OldPOIID]
	if !ok {
		return nil, fmt.Errorf("hydrate old poi %s: record missing", req.OldPOIID)
	}

	prevLoc, nextLoc := s.neighborLocations(route, idx, req.UserLocation, records)

	oldLegs := geo.HaversineM(prevLoc, old.Loc()) + geo.HaversineM(old.Loc(), nextLoc)
	stay := s.cfg.DefaultStayMinutes
	metersPerMinute := profile.SpeedKmph * 1000.0 / 60.0

	var (
		candidates []Substitute
		closedOut  int
	)
	for _, id := range poolIDs {
		cand, ok := records[id]
		if !ok {
			continue
		}

		var arrival *time.Time
		if req.CurrentTime != nil {
			t := s.projectedArrival(route, idx, req.UserLocation, records, cand, profile.SpeedKmph, stay, *req.CurrentTime)
			arrival = &t
			if !timewin.IsOpenAt(cand.OpenHours, t) {
				closedOut++
				continue
			}
		}

		distPrev := geo.HaversineM(prevLoc, cand.Loc())
		distNext := geo.HaversineM(cand.Loc(), nextLoc)
		refDist := (distPrev + distNext) / 2.0
		norm := refDist / profile.RadiusMeters
		if norm > 1 {
			norm = 1
		}

		newLegs := distPrev + distNext
		candidates = append(candidates, Substitute{
			POI:                 cand,
			Score:               0.6*cand.Rating + 0.4*(1.0-norm),
			DistanceDeltaMeters: newLegs - oldLegs,
			TimeDeltaMinutes:    (newLegs - oldLegs) / metersPerMinute,
			ProjectedArrival:    arrival,
		})
	}
	if len(candidates) == 0 {
		if closedOut > 0 {
			return nil, fmt.Errorf("%w: all %d candidates closed at projected arrival", ErrNoSubstitutes, closedOut)
		}
		return nil, fmt.Errorf("%w: no hydratable candidates for %q", ErrNoSubstitutes, category)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].POI.Rating != candidates[j].POI.Rating {
			return candidates[i].POI.Rating > candidates[j].POI.Rating
		}
		return candidates[i].POI.ID < candidates[j].POI.ID
	})
	if len(candidates) > req.TopK {
		candidates = candidates[:req.TopK]
	}
	return candidates, nil
}

// ConfirmRequest commits one substitution.
type ConfirmRequest struct {
	UserID   string
	RouteID  string
	OldPOIID string
	NewPOIID string
}

// ConfirmReplace re-reads the entry, verifies the old POI still sits in the
// route and the new one is still available, then writes the swap back with
// a fresh TTL. A concurrent confirm that moved the old POI surfaces as
// ErrConflict.
func (s *Substituter) ConfirmReplace(ctx context.Context, req ConfirmRequest) (*model.CachedRoute, error) {
	entry, err := s.cache.Get(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	route, ok := entry.Routes[req.RouteID]
	if !ok {
		return nil, fmt.Errorf("%w: route %s", ErrRouteNotFound, req.RouteID)
	}

	idx := -1
	for i, p := range route.POIs {
		if p.POIID == req.OldPOIID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s no longer in route %s", ErrConflict, req.OldPOIID, req.RouteID)
	}
	category := route.POIs[idx].Category

	if !s.stillAvailable(entry, category, req.NewPOIID) {
		return nil, fmt.Errorf("%w: %s", ErrSubstituteUnavailable, req.NewPOIID)
	}

	route.POIs[idx] = model.CachedPOI{POIID: req.NewPOIID, Category: category}
	entry.Routes[req.RouteID] = route

	kept := entry.Available[category][:0]
	for _, id := range entry.Available[category] {
		if id != req.NewPOIID {
			kept = append(kept, id)
		}
	}
	entry.Available[category] = kept
	entry.Substituted[category] = append(entry.Substituted[category], req.OldPOIID)

	if err := s.cache.Put(ctx, entry); err != nil {
		return nil, err
	}
	return &route, nil
}

// ─── Helpers ────────────────────────────────────────────────

func (s *Substituter) stillAvailable(entry *model.UserRouteCache, category, id string) bool {
	if entry.RouteMembers()[id] {
		return false
	}
	for _, sub := range entry.Substituted[category] {
		if sub == id {
			return false
		}
	}
	for _, avail := range entry.Available[category] {
		if avail == id {
			return true
		}
	}
	return false
}

// hydrate resolves POI records through the hydration cache, falling back to
// the store for misses and refilling the cache.
func (s *Substituter) hydrate(ctx context.Context, ids []string) (map[string]model.POI, error) {
	hits, missing, err := s.cache.GetPOIs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if hits == nil {
		hits = map[string]model.POI{}
	}
	if len(missing) > 0 {
		fresh, err := s.store.ByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, p := range fresh {
			hits[p.ID] = p
		}
		s.cache.PutPOIs(ctx, fresh)
	}
	return hits, nil
}

// neighborLocations returns the positions flanking the target index; the
// user stands in for the missing neighbor at either end of the route.
func (s *Substituter) neighborLocations(route model.CachedRoute, idx int, user model.Location, records map[string]model.POI) (model.Location, model.Location) {
	prev, next := user, user
	if idx > 0 {
		if p, ok := records[route.POIs[idx-1].POIID]; ok {
			prev = p.Loc()
		}
	}
	if idx < len(route.POIs)-1 {
		if p, ok := records[route.POIs[idx+1].POIID]; ok {
			next = p.Loc()
		}
	}
	return prev, next
}

// projectedArrival walks the route from the user with the candidate swapped
// in at the target index and returns the candidate's arrival time.
func (s *Substituter) projectedArrival(route model.CachedRoute, idx int, user model.Location, records map[string]model.POI, cand model.POI, speedKmph, stayMinutes float64, start time.Time) time.Time {
	t := start
	cur := user
	for i := 0; i < idx; i++ {
		p, ok := records[route.POIs[i].POIID]
		if !ok {
			continue
		}
		t = t.Add(time.Duration(geo.TravelMinutes(cur, p.Loc(), speedKmph) * float64(time.Minute)))
		t = t.Add(time.Duration(stayMinutes * float64(time.Minute)))
		cur = p.Loc()
	}
	return t.Add(time.Duration(geo.TravelMinutes(cur, cand.Loc(), speedKmph) * float64(time.Minute)))
}
