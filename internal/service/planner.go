// Package service orchestrates the planning pipeline and the substitution
// protocol on top of the candidate sources, the route builder, and the
// caches.
package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/minh/wayloop/config"
	"github.com/minh/wayloop/internal/model"
	"github.com/minh/wayloop/internal/query"
	"github.com/minh/wayloop/internal/routing"
	"github.com/minh/wayloop/internal/semantic"
	"github.com/minh/wayloop/internal/spatial"
)

// ─── Collaborator contracts ─────────────────────────────────

// SpatialSource produces POIs around a point (C3).
type SpatialSource interface {
	Candidates(ctx context.Context, loc model.Location, mode model.TransportMode, window *spatial.Window) ([]model.POI, float64, error)
}

// SemanticSource produces similarity hits for a query string (C4).
type SemanticSource interface {
	Search(ctx context.Context, text string, topK int, idFilter []string) ([]semantic.Hit, error)
}

// POIStore hydrates POI records and lists visited ids.
type POIStore interface {
	ByIDs(ctx context.Context, ids []string) ([]model.POI, error)
	VisitedIDs(ctx context.Context, userID string) ([]string, error)
}

// RouteCache is the per-user entry store plus the POI hydration cache (C8).
type RouteCache interface {
	Get(ctx context.Context, userID string) (*model.UserRouteCache, error)
	Put(ctx context.Context, entry *model.UserRouteCache) error
	Delete(ctx context.Context, userID string) error
	GetPOIs(ctx context.Context, ids []string) (map[string]model.POI, []string, error)
	PutPOIs(ctx context.Context, pois []model.POI)
}

// RouteBuilder runs tour construction, normally on the worker pool.
type RouteBuilder interface {
	Build(ctx context.Context, in routing.Input) ([]model.Route, error)
}

// ─── Planner ────────────────────────────────────────────────

// Planner is the end-to-end orchestrator (C10).
type Planner struct {
	spatial  SpatialSource
	semantic SemanticSource
	store    POIStore
	cache    RouteCache
	builder  RouteBuilder
	cfg      *config.RoutingConfig
}

// NewPlanner wires the pipeline.
func NewPlanner(sp SpatialSource, se SemanticSource, store POIStore, cache RouteCache, builder RouteBuilder, cfg *config.RoutingConfig) *Planner {
	return &Planner{spatial: sp, semantic: se, store: store, cache: cache, builder: builder, cfg: cfg}
}

// PlanRequest is a planning call.
type PlanRequest struct {
	UserID         string
	Lat            float64
	Lon            float64
	Mode           model.TransportMode
	Query          string
	CurrentTime    *time.Time
	MaxTimeMinutes float64
	TargetPlaces   int
	MaxRoutes      int
	TopKSemantic   int
	CustomerLike   bool
	DeleteCache    bool
	ReplaceRoute   int // when > 0, rebuild only that route id
}

// PlanResponse is the planning result.
type PlanResponse struct {
	Routes          []model.Route      `json:"routes"`
	EffectiveRadius float64            `json:"effective_radius_meters"`
	Timing          map[string]float64 `json:"timing_breakdown_ms"`
	Warnings        []string           `json:"warnings,omitempty"`
}

// Plan runs the full pipeline: expansion, candidate acquisition, building,
// validation, and finally the cache write. The cache is only touched after
// everything else succeeded, so failures never leave half-written state.
func (p *Planner) Plan(ctx context.Context, req PlanRequest) (*PlanResponse, error) {
	if err := p.validate(&req); err != nil {
		return nil, err
	}

	if req.DeleteCache && req.UserID != "" {
		if err := p.cache.Delete(ctx, req.UserID); err != nil {
			return nil, err
		}
	}

	if req.ReplaceRoute > 0 {
		return p.replaceRouteN(ctx, req)
	}

	timing := map[string]float64{}
	total := time.Now()

	pool, radius, expansion, err := p.candidatePool(ctx, req, nil, timing)
	if err != nil {
		return nil, err
	}

	routes, err := p.buildAndValidate(ctx, req, pool, expansion, timing)
	if err != nil {
		return nil, err
	}

	if req.UserID != "" {
		entry := newEntry(req.UserID, req.Mode, routes, pool)
		if err := p.cache.Put(ctx, entry); err != nil {
			return nil, err
		}
	}

	timing["total_ms"] = msSince(total)
	return &PlanResponse{
		Routes:          routes,
		EffectiveRadius: radius,
		Timing:          timing,
	}, nil
}

// VisitedPOIs lists the POI ids previously marked visited for the user.
func (p *Planner) VisitedPOIs(ctx context.Context, userID string) ([]string, error) {
	return p.store.VisitedIDs(ctx, userID)
}

// ─── Candidate acquisition ──────────────────────────────────

// candidatePool expands the query, gathers spatial candidates, runs one
// semantic search per category constrained to the spatial ids, and keeps
// the intersection. A POI matched by several categories lands under the
// one that scored it highest.
func (p *Planner) candidatePool(ctx context.Context, req PlanRequest, exclude map[string]bool, timing map[string]float64) ([]model.POI, float64, query.Expansion, error) {
	expansion := query.Expand(req.Query, req.CustomerLike, req.CurrentTime, req.MaxTimeMinutes, p.cfg)
	if len(expansion.Categories) == 0 {
		return nil, 0, expansion, fmt.Errorf("%w: empty query", ErrInvalidInput)
	}

	var window *spatial.Window
	if req.CurrentTime != nil {
		window = &spatial.Window{
			Start: *req.CurrentTime,
			End:   req.CurrentTime.Add(time.Duration(req.MaxTimeMinutes * float64(time.Minute))),
		}
	}

	phase := time.Now()
	loc := model.Location{Lat: req.Lat, Lon: req.Lon}
	spatialPOIs, radius, err := p.spatial.Candidates(ctx, loc, req.Mode, window)
	timing["spatial_ms"] = msSince(phase)
	if err != nil {
		return nil, 0, expansion, err
	}

	if req.UserID != "" {
		visited, err := p.store.VisitedIDs(ctx, req.UserID)
		if err != nil {
			return nil, 0, expansion, err
		}
		for _, id := range visited {
			if exclude == nil {
				exclude = map[string]bool{}
			}
			exclude[id] = true
		}
	}

	byID := make(map[string]*model.POI, len(spatialPOIs))
	idFilter := make([]string, 0, len(spatialPOIs))
	for i := range spatialPOIs {
		if exclude[spatialPOIs[i].ID] {
			continue
		}
		byID[spatialPOIs[i].ID] = &spatialPOIs[i]
		idFilter = append(idFilter, spatialPOIs[i].ID)
	}
	if len(idFilter) == 0 {
		return nil, 0, expansion, fmt.Errorf("%w: spatial search found nothing within %.0fm", ErrNoCandidates, radius)
	}

	// One semantic pass per category, all against the same spatial ids.
	phase = time.Now()
	type catHit struct {
		category string
		hits     []semantic.Hit
	}
	var (
		mu      sync.Mutex
		results []catHit
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, cat := range expansion.Categories {
		cat := cat
		g.Go(func() error {
			hits, err := p.semantic.Search(gctx, cat, req.TopKSemantic, idFilter)
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, catHit{category: cat, hits: hits})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		timing["semantic_ms"] = msSince(phase)
		return nil, 0, expansion, err
	}
	timing["semantic_ms"] = msSince(phase)

	type best struct {
		sim float64
		cat string
	}
	bestByID := map[string]best{}
	for _, r := range results {
		for _, h := range r.hits {
			if cur, ok := bestByID[h.POIID]; !ok || h.Similarity > cur.sim {
				bestByID[h.POIID] = best{sim: h.Similarity, cat: r.category}
			}
		}
	}

	pool := make([]model.POI, 0, len(bestByID))
	for id, b := range bestByID {
		src, ok := byID[id]
		if !ok {
			continue
		}
		poi := *src
		poi.Similarity = b.sim
		poi.Category = b.cat
		pool = append(pool, poi)
	}
	if len(pool) == 0 {
		return nil, 0, expansion, fmt.Errorf("%w: semantic search matched none of the %d spatial candidates", ErrNoCandidates, len(idFilter))
	}

	p.cache.PutPOIs(ctx, pool)
	return pool, radius, expansion, nil
}

// ─── Construction and validation ────────────────────────────

func (p *Planner) buildAndValidate(ctx context.Context, req PlanRequest, pool []model.POI, expansion query.Expansion, timing map[string]float64) ([]model.Route, error) {
	profile, _ := p.cfg.Profile(req.Mode)

	phase := time.Now()
	routes, err := p.builder.Build(ctx, routing.Input{
		User:          model.Location{Lat: req.Lat, Lon: req.Lon},
		Pool:          pool,
		Profile:       profile,
		BudgetMinutes: req.MaxTimeMinutes,
		TargetStops:   req.TargetPlaces,
		MaxRoutes:     req.MaxRoutes,
		CurrentTime:   req.CurrentTime,
		StayMinutes:   p.cfg.DefaultStayMinutes,
		MealAnchor:    expansion.MealAnchor,
		Lunch:         routing.ClockWindow{Start: p.cfg.LunchStart, End: p.cfg.LunchEnd},
		Dinner:        routing.ClockWindow{Start: p.cfg.DinnerStart, End: p.cfg.DinnerEnd},
		Circular: routing.CircularOptions{
			Enabled:      p.cfg.UseCircularRouting,
			ToleranceDeg: p.cfg.CircularToleranceDeg,
			Preference:   p.cfg.DirectionPreference,
		},
	})
	timing["build_ms"] = msSince(phase)
	if err != nil {
		return nil, err
	}

	if req.CurrentTime != nil {
		phase = time.Now()
		routing.ValidateAll(routes, *req.CurrentTime)
		timing["validate_ms"] = msSince(phase)
	}
	return routes, nil
}

// ─── replace_route N ────────────────────────────────────────

// replaceRouteN rebuilds exactly one route id in the user's existing entry,
// excluding the POIs held by the other routes so disjointness survives. The
// prior route at that id is discarded, bounding memory.
func (p *Planner) replaceRouteN(ctx context.Context, req PlanRequest) (*PlanResponse, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: replace_route requires a user_id", ErrInvalidInput)
	}
	entry, err := p.cache.Get(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	routeID := strconv.Itoa(req.ReplaceRoute)
	exclude := map[string]bool{}
	for id, rt := range entry.Routes {
		if id == routeID {
			continue
		}
		for _, s := range rt.POIs {
			exclude[s.POIID] = true
		}
	}

	timing := map[string]float64{}
	total := time.Now()

	pool, radius, expansion, err := p.candidatePool(ctx, req, exclude, timing)
	if err != nil {
		return nil, err
	}

	req.MaxRoutes = 1
	routes, err := p.buildAndValidate(ctx, req, pool, expansion, timing)
	if err != nil {
		return nil, err
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("%w: time budget too small for a replacement route", ErrNoCandidates)
	}

	entry.Routes[routeID] = toCachedRoute(routes[0])
	entry.Mode = req.Mode
	mergeAvailable(entry, pool)
	if err := p.cache.Put(ctx, entry); err != nil {
		return nil, err
	}

	timing["total_ms"] = msSince(total)
	return &PlanResponse{
		Routes:          routes,
		EffectiveRadius: radius,
		Timing:          timing,
	}, nil
}

// ─── replace_full_route ─────────────────────────────────────

// FullReplaceRequest rebuilds one existing route from a brand-new query.
type FullReplaceRequest struct {
	UserID         string
	RouteID        string
	NewQuery       string
	Lat            float64
	Lon            float64
	Mode           model.TransportMode
	MaxTimeMinutes float64
	TargetPlaces   int
	TopKSemantic   int
	CurrentTime    *time.Time
}

// ReplaceFullRoute runs the whole pipeline with the new query and
// overwrites the named route in the user's entry; every other route is
// untouched.
func (p *Planner) ReplaceFullRoute(ctx context.Context, req FullReplaceRequest) (*model.Route, error) {
	planReq := PlanRequest{
		UserID:         req.UserID,
		Lat:            req.Lat,
		Lon:            req.Lon,
		Mode:           req.Mode,
		Query:          req.NewQuery,
		CurrentTime:    req.CurrentTime,
		MaxTimeMinutes: req.MaxTimeMinutes,
		TargetPlaces:   req.TargetPlaces,
		MaxRoutes:      1,
		TopKSemantic:   req.TopKSemantic,
	}
	if err := p.validate(&planReq); err != nil {
		return nil, err
	}

	entry, err := p.cache.Get(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if _, ok := entry.Routes[req.RouteID]; !ok {
		return nil, fmt.Errorf("%w: route %s", ErrRouteNotFound, req.RouteID)
	}

	exclude := map[string]bool{}
	for id, rt := range entry.Routes {
		if id == req.RouteID {
			continue
		}
		for _, s := range rt.POIs {
			exclude[s.POIID] = true
		}
	}

	timing := map[string]float64{}
	pool, _, expansion, err := p.candidatePool(ctx, planReq, exclude, timing)
	if err != nil {
		return nil, err
	}
	routes, err := p.buildAndValidate(ctx, planReq, pool, expansion, timing)
	if err != nil {
		return nil, err
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("%w: time budget too small for a replacement route", ErrNoCandidates)
	}

	entry.Routes[req.RouteID] = toCachedRoute(routes[0])
	entry.Mode = req.Mode
	mergeAvailable(entry, pool)
	if err := p.cache.Put(ctx, entry); err != nil {
		return nil, err
	}
	return &routes[0], nil
}

// ─── Entry assembly ─────────────────────────────────────────

// newEntry builds a fresh per-user cache entry: route ids start at "1", the
// leftovers of the pool become the available sets, and any POI used by a
// route is kept out of them.
func newEntry(userID string, mode model.TransportMode, routes []model.Route, pool []model.POI) *model.UserRouteCache {
	entry := &model.UserRouteCache{
		UserID:      userID,
		Mode:        mode,
		Routes:      map[string]model.CachedRoute{},
		Available:   map[string][]string{},
		Substituted: map[string][]string{},
	}
	for i, rt := range routes {
		entry.Routes[strconv.Itoa(i+1)] = toCachedRoute(rt)
	}
	members := entry.RouteMembers()
	for _, p := range pool {
		if members[p.ID] {
			continue
		}
		cat := p.Category
		if cat == "" {
			cat = p.POIType
		}
		entry.Available[cat] = append(entry.Available[cat], p.ID)
	}
	return entry
}

func toCachedRoute(rt model.Route) model.CachedRoute {
	cr := model.CachedRoute{POIs: make([]model.CachedPOI, 0, len(rt.Stops))}
	for _, s := range rt.Stops {
		cr.POIs = append(cr.POIs, model.CachedPOI{POIID: s.POIID, Category: s.Category})
	}
	return cr
}

// mergeAvailable folds a replacement search's leftover pool into the
// entry's available sets, keeping route members out.
func mergeAvailable(entry *model.UserRouteCache, pool []model.POI) {
	members := entry.RouteMembers()
	present := map[string]bool{}
	for cat, ids := range entry.Available {
		kept := ids[:0]
		for _, id := range ids {
			if !members[id] {
				kept = append(kept, id)
				present[id] = true
			}
		}
		entry.Available[cat] = kept
	}
	for _, p := range pool {
		if members[p.ID] || present[p.ID] {
			continue
		}
		cat := p.Category
		if cat == "" {
			cat = p.POIType
		}
		entry.Available[cat] = append(entry.Available[cat], p.ID)
	}
}

// ─── Validation and helpers ─────────────────────────────────

func (p *Planner) validate(req *PlanRequest) error {
	if req.Lat < -90 || req.Lat > 90 || req.Lon < -180 || req.Lon > 180 {
		return fmt.Errorf("%w: (%f, %f)", ErrInvalidCoordinates, req.Lat, req.Lon)
	}
	if !req.Mode.Valid() {
		return fmt.Errorf("%w: %q", spatial.ErrUnknownMode, req.Mode)
	}
	if req.TopKSemantic <= 0 {
		return fmt.Errorf("%w: %d", semantic.ErrInvalidTopK, req.TopKSemantic)
	}
	if req.TargetPlaces <= 0 {
		return fmt.Errorf("%w: target_places must be positive", ErrInvalidInput)
	}
	if req.MaxRoutes <= 0 {
		req.MaxRoutes = 1
	}
	if req.MaxTimeMinutes < 0 {
		return fmt.Errorf("%w: max_time_minutes must not be negative", ErrInvalidInput)
	}
	return nil
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t)) / float64(time.Millisecond)
}
