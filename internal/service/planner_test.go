package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minh/wayloop/config"
	routecache "github.com/minh/wayloop/internal/cache"
	"github.com/minh/wayloop/internal/model"
	"github.com/minh/wayloop/internal/routing"
	"github.com/minh/wayloop/internal/semantic"
	"github.com/minh/wayloop/internal/spatial"
)

// ─── Fakes ──────────────────────────────────────────────────

type fakeSpatial struct {
	pois   []model.POI
	radius float64
}

func (f *fakeSpatial) Candidates(_ context.Context, _ model.Location, _ model.TransportMode, _ *spatial.Window) ([]model.POI, float64, error) {
	out := make([]model.POI, len(f.pois))
	copy(out, f.pois)
	return out, f.radius, nil
}

// fakeSemantic serves canned similarities per query string.
type fakeSemantic struct {
	sims map[string]map[string]float64 // query → poi id → similarity
}

func (f *fakeSemantic) Search(_ context.Context, text string, topK int, idFilter []string) ([]semantic.Hit, error) {
	allowed := map[string]bool{}
	for _, id := range idFilter {
		allowed[id] = true
	}
	var hits []semantic.Hit
	for id, sim := range f.sims[text] {
		if len(idFilter) > 0 && !allowed[id] {
			continue
		}
		hits = append(hits, semantic.Hit{POIID: id, Similarity: sim})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].POIID < hits[j].POIID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

type fakeStore struct {
	pois    map[string]model.POI
	visited map[string][]string
}

func (f *fakeStore) ByIDs(_ context.Context, ids []string) ([]model.POI, error) {
	var out []model.POI
	for _, id := range ids {
		if p, ok := f.pois[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) VisitedIDs(_ context.Context, userID string) ([]string, error) {
	return f.visited[userID], nil
}

// fakeCache round-trips entries through JSON so tests exercise the same
// serialization the Redis store uses.
type fakeCache struct {
	entries map[string][]byte
	pois    map[string]model.POI
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string][]byte{}, pois: map[string]model.POI{}}
}

func (f *fakeCache) Get(_ context.Context, userID string) (*model.UserRouteCache, error) {
	raw, ok := f.entries[userID]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", routecache.ErrMiss, userID)
	}
	var entry model.UserRouteCache
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (f *fakeCache) Put(_ context.Context, entry *model.UserRouteCache) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	f.entries[entry.UserID] = raw
	return nil
}

func (f *fakeCache) Delete(_ context.Context, userID string) error {
	delete(f.entries, userID)
	return nil
}

func (f *fakeCache) GetPOIs(_ context.Context, ids []string) (map[string]model.POI, []string, error) {
	hits := map[string]model.POI{}
	var missing []string
	for _, id := range ids {
		if p, ok := f.pois[id]; ok {
			hits[id] = p
		} else {
			missing = append(missing, id)
		}
	}
	return hits, missing, nil
}

func (f *fakeCache) PutPOIs(_ context.Context, pois []model.POI) {
	for _, p := range pois {
		f.pois[p.ID] = p
	}
}

// ─── Fixtures ───────────────────────────────────────────────

var svcUser = model.Location{Lat: 10.80, Lon: 106.77}

func svcOffset(base model.Location, northKm, eastKm float64) model.Location {
	dLat := northKm / 111.195
	dLon := eastKm / (111.195 * math.Cos(base.Lat*math.Pi/180))
	return model.Location{Lat: base.Lat + dLat, Lon: base.Lon + dLon}
}

func svcPOI(id, category string, loc model.Location, rating float64) model.POI {
	return model.POI{
		ID: id, Name: id, POIType: category,
		Lat: loc.Lat, Lon: loc.Lon, Rating: rating,
	}
}

func testRoutingCfg() *config.RoutingConfig {
	return &config.RoutingConfig{
		H3Resolution: 9,
		Modes: map[model.TransportMode]config.ModeProfile{
			model.ModeWalking: {SpeedKmph: 5, KRing: 2, RadiusMeters: 2000},
		},
		UseCircularRouting:   false,
		CircularToleranceDeg: 10,
		DirectionPreference:  "auto",
		DefaultStayMinutes:   30,
		LunchStart:           "11:30",
		LunchEnd:             "13:30",
		DinnerStart:          "18:00",
		DinnerEnd:            "20:00",
		UserCacheTTL:         time.Hour,
		MaxCandidatesFloor:   50,
		MaxKRingExpansion:    12,
		BuilderWorkers:       2,
	}
}

// newTestPlanner wires a planner over six culture/shopping POIs scattered
// around the user.
func newTestPlanner() (*Planner, *fakeCache, *fakeStore) {
	pois := []model.POI{
		svcPOI("c1", "Culture & heritage", svcOffset(svcUser, 0.4, 0), 0.8),
		svcPOI("c2", "Culture & heritage", svcOffset(svcUser, 0, 0.4), 0.7),
		svcPOI("c3", "Culture & heritage", svcOffset(svcUser, -0.4, 0), 0.6),
		svcPOI("s1", "Shopping", svcOffset(svcUser, 0, -0.4), 0.8),
		svcPOI("s2", "Shopping", svcOffset(svcUser, 0.3, 0.3), 0.7),
		svcPOI("s3", "Shopping", svcOffset(svcUser, -0.3, -0.3), 0.6),
	}
	sims := map[string]map[string]float64{
		"Culture & heritage": {"c1": 0.9, "c2": 0.85, "c3": 0.8, "s1": 0.3, "s2": 0.25, "s3": 0.2},
		"Shopping":           {"s1": 0.9, "s2": 0.85, "s3": 0.8, "c1": 0.3, "c2": 0.25, "c3": 0.2},
	}

	store := &fakeStore{pois: map[string]model.POI{}, visited: map[string][]string{}}
	for _, p := range pois {
		store.pois[p.ID] = p
	}
	cache := newFakeCache()
	cfg := testRoutingCfg()

	planner := NewPlanner(
		&fakeSpatial{pois: pois, radius: 2000},
		&fakeSemantic{sims: sims},
		store, cache, routing.NewPool(cfg.BuilderWorkers), cfg,
	)
	return planner, cache, store
}

func basePlanRequest() PlanRequest {
	return PlanRequest{
		UserID:         "11111111-1111-1111-1111-111111111111",
		Lat:            svcUser.Lat,
		Lon:            svcUser.Lon,
		Mode:           model.ModeWalking,
		Query:          "Culture & heritage, Shopping",
		MaxTimeMinutes: 300,
		TargetPlaces:   2,
		MaxRoutes:      1,
		TopKSemantic:   10,
	}
}

// ─── Tests ──────────────────────────────────────────────────

func TestPlan_EndToEnd(t *testing.T) {
	planner, cache, _ := newTestPlanner()

	resp, err := planner.Plan(context.Background(), basePlanRequest())
	require.NoError(t, err)
	require.Len(t, resp.Routes, 1)
	assert.Len(t, resp.Routes[0].Stops, 2)
	assert.Contains(t, resp.Timing, "spatial_ms")
	assert.Contains(t, resp.Timing, "semantic_ms")
	assert.Contains(t, resp.Timing, "build_ms")
	assert.Equal(t, 2000.0, resp.EffectiveRadius)

	entry, err := cache.Get(context.Background(), basePlanRequest().UserID)
	require.NoError(t, err)
	require.Contains(t, entry.Routes, "1")
	assert.Equal(t, model.ModeWalking, entry.Mode)

	// Route members never appear in the available pools.
	members := entry.RouteMembers()
	for cat, ids := range entry.Available {
		for _, id := range ids {
			assert.False(t, members[id], "route member %s listed available under %s", id, cat)
		}
	}
}

func TestPlan_VisitedPOIsExcluded(t *testing.T) {
	planner, _, store := newTestPlanner()
	req := basePlanRequest()
	store.visited[req.UserID] = []string{"c1", "s1"}

	resp, err := planner.Plan(context.Background(), req)
	require.NoError(t, err)
	for _, rt := range resp.Routes {
		for _, s := range rt.Stops {
			assert.NotContains(t, []string{"c1", "s1"}, s.POIID)
		}
	}
}

func TestPlan_DeleteCacheStartsFresh(t *testing.T) {
	planner, cache, _ := newTestPlanner()
	req := basePlanRequest()

	_, err := planner.Plan(context.Background(), req)
	require.NoError(t, err)

	req.DeleteCache = true
	_, err = planner.Plan(context.Background(), req)
	require.NoError(t, err)

	entry, err := cache.Get(context.Background(), req.UserID)
	require.NoError(t, err)
	assert.Contains(t, entry.Routes, "1")
	assert.NotContains(t, entry.Routes, "2")
}

func TestPlan_ReplaceRouteNBoundsMemory(t *testing.T) {
	planner, cache, _ := newTestPlanner()
	req := basePlanRequest()
	req.MaxRoutes = 3

	_, err := planner.Plan(context.Background(), req)
	require.NoError(t, err)

	before, err := cache.Get(context.Background(), req.UserID)
	require.NoError(t, err)
	require.Len(t, before.Routes, 3)
	route1 := before.Routes["1"]
	route3 := before.Routes["3"]

	req.ReplaceRoute = 2
	resp, err := planner.Plan(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Routes, 1)

	after, err := cache.Get(context.Background(), req.UserID)
	require.NoError(t, err)
	assert.Len(t, after.Routes, 3, "replace keeps exactly one route per id")
	assert.Equal(t, route1, after.Routes["1"], "untouched routes survive")
	assert.Equal(t, route3, after.Routes["3"])

	// The replacement stays disjoint from the kept routes.
	kept := map[string]bool{}
	for _, p := range route1.POIs {
		kept[p.POIID] = true
	}
	for _, p := range route3.POIs {
		kept[p.POIID] = true
	}
	for _, p := range after.Routes["2"].POIs {
		assert.False(t, kept[p.POIID], "replacement reuses poi %s from a kept route", p.POIID)
	}
}

func TestPlan_InputErrors(t *testing.T) {
	planner, _, _ := newTestPlanner()
	ctx := context.Background()

	req := basePlanRequest()
	req.Lat = 91
	_, err := planner.Plan(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidCoordinates)

	req = basePlanRequest()
	req.Mode = "TELEPORT"
	_, err = planner.Plan(ctx, req)
	assert.ErrorIs(t, err, spatial.ErrUnknownMode)

	req = basePlanRequest()
	req.TopKSemantic = 0
	_, err = planner.Plan(ctx, req)
	assert.ErrorIs(t, err, semantic.ErrInvalidTopK)

	req = basePlanRequest()
	req.TargetPlaces = 0
	_, err = planner.Plan(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPlan_NoSemanticMatches(t *testing.T) {
	planner, _, _ := newTestPlanner()
	req := basePlanRequest()
	req.Query = "rooftop jazz bars" // no canned sims for this query

	_, err := planner.Plan(context.Background(), req)
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestPlan_ZeroBudgetNoRoutesNoError(t *testing.T) {
	planner, _, _ := newTestPlanner()
	req := basePlanRequest()
	req.MaxTimeMinutes = 0

	resp, err := planner.Plan(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, resp.Routes)
}

func TestReplaceFullRoute(t *testing.T) {
	planner, cache, _ := newTestPlanner()
	req := basePlanRequest()
	req.MaxRoutes = 2
	req.Query = "Culture & heritage"

	_, err := planner.Plan(context.Background(), req)
	require.NoError(t, err)

	before, err := cache.Get(context.Background(), req.UserID)
	require.NoError(t, err)
	route1 := before.Routes["1"]

	rt, err := planner.ReplaceFullRoute(context.Background(), FullReplaceRequest{
		UserID:         req.UserID,
		RouteID:        "2",
		NewQuery:       "Shopping",
		Lat:            req.Lat,
		Lon:            req.Lon,
		Mode:           model.ModeWalking,
		MaxTimeMinutes: 300,
		TargetPlaces:   2,
		TopKSemantic:   10,
	})
	require.NoError(t, err)
	require.NotNil(t, rt)

	after, err := cache.Get(context.Background(), req.UserID)
	require.NoError(t, err)
	assert.Equal(t, route1, after.Routes["1"], "other routes untouched")
	for _, p := range after.Routes["2"].POIs {
		assert.Equal(t, "Shopping", p.Category)
	}
}

func TestReplaceFullRoute_UnknownRoute(t *testing.T) {
	planner, _, _ := newTestPlanner()
	req := basePlanRequest()
	_, err := planner.Plan(context.Background(), req)
	require.NoError(t, err)

	_, err = planner.ReplaceFullRoute(context.Background(), FullReplaceRequest{
		UserID:         req.UserID,
		RouteID:        "9",
		NewQuery:       "Shopping",
		Lat:            req.Lat,
		Lon:            req.Lon,
		Mode:           model.ModeWalking,
		MaxTimeMinutes: 300,
		TargetPlaces:   2,
		TopKSemantic:   10,
	})
	assert.ErrorIs(t, err, ErrRouteNotFound)
}
