// Package routing builds time-constrained POI tours and validates their
// arrival times against opening hours.
//
// The builder is a greedy constructor: stops are chosen one at a time by a
// blended score of proximity, semantic similarity, rating, and turn angle.
// Circular routing locks each route to one turn direction so tours loop back
// toward the user instead of zigzagging outward.
package routing

import (
	"fmt"
	"math"
	"time"

	"github.com/minh/wayloop/config"
	"github.com/minh/wayloop/internal/model"
	"github.com/minh/wayloop/internal/timewin"
	"github.com/minh/wayloop/pkg/geo"
)

// closingThresholds are the widening fractions of the mode radius tried when
// selecting a closing stop near the user.
var closingThresholds = []float64{0.2, 0.4, 0.6, 0.8, 1.0}

// ClockWindow is a recurring daily wall-clock interval, "HH:MM" bounds.
type ClockWindow struct {
	Start string
	End   string
}

// CircularOptions controls the direction-lock behavior.
type CircularOptions struct {
	Enabled      bool
	ToleranceDeg float64
	Preference   string // right | left | auto
}

// Input is everything the builder needs; it is self-contained so route
// construction can run on the worker pool without touching I/O.
type Input struct {
	User          model.Location
	Pool          []model.POI
	Profile       config.ModeProfile
	BudgetMinutes float64
	TargetStops   int
	MaxRoutes     int
	CurrentTime   *time.Time
	StayMinutes   float64
	MealAnchor    bool
	Lunch         ClockWindow
	Dinner        ClockWindow
	Circular      CircularOptions
}

// BuildRoutes constructs up to MaxRoutes routes of up to TargetStops stops
// each. Routes are disjoint in POIs while the pool lasts; once exhausted,
// later routes may reuse earlier selections rather than come up short.
//
// Complexity: O(P²) for the matrix plus O(R·N·P) for selection.
func BuildRoutes(in Input) []model.Route {
	if in.TargetStops <= 0 || in.MaxRoutes <= 0 || in.BudgetMinutes <= 0 || len(in.Pool) == 0 {
		return nil
	}

	points := make([]model.Location, 0, len(in.Pool)+1)
	points = append(points, in.User)
	for i := range in.Pool {
		points = append(points, in.Pool[i].Loc())
	}

	b := &builder{
		in:     in,
		points: points,
		times:  geo.TimeMatrix(geo.DistanceMatrix(points), in.Profile.SpeedKmph),
		taken:  make([]bool, len(in.Pool)),
	}

	var routes []model.Route
	for r := 0; r < in.MaxRoutes; r++ {
		rt, ok := b.buildOne()
		if !ok {
			break
		}
		routes = append(routes, rt)
	}
	return routes
}

// ─── Builder state ──────────────────────────────────────────

type builder struct {
	in     Input
	points []model.Location // index 0 is the user; pool POI i is at i+1
	times  [][]float64      // minutes, same indexing
	taken  []bool           // chosen in any earlier route
}

type routeState struct {
	inRoute      []bool
	cur          int // matrix index of current position
	prevBearing  float64
	haveBearing  bool
	direction    string
	elapsed      float64
	lastCategory string
	mealPlaced   bool
	warnings     []string
}

// travel returns minutes from matrix index a to pool candidate i.
func (b *builder) travel(from, poolIdx int) float64 {
	return b.times[from][poolIdx+1]
}

func (b *builder) returnLeg(poolIdx int) float64 {
	return b.times[poolIdx+1][0]
}

func (b *builder) distMeters(from, poolIdx int) float64 {
	return geo.HaversineM(b.points[from], b.points[poolIdx+1])
}

func (b *builder) buildOne() (model.Route, bool) {
	st := &routeState{
		inRoute: make([]bool, len(b.in.Pool)),
		cur:     0,
	}
	if b.in.Circular.Enabled {
		switch b.in.Circular.Preference {
		case "right", "left":
			st.direction = b.in.Circular.Preference
		}
	}

	var rt model.Route
	for i := 1; i <= b.in.TargetStops; i++ {
		pos := posMiddle
		switch {
		case i == 1:
			pos = posFirst
		case i == b.in.TargetStops && b.in.TargetStops > 1:
			pos = posLast
		}

		idx, score, anchored, ok := b.pickNext(st, pos)
		if !ok {
			if i == 1 {
				return model.Route{}, false
			}
			st.warnings = append(st.warnings,
				fmt.Sprintf("route truncated at %d stops: remaining budget too small", i-1))
			break
		}

		p := &b.in.Pool[idx]
		travel := b.travel(st.cur, idx)
		rt.Stops = append(rt.Stops, model.Stop{
			POIID:         p.ID,
			Name:          p.Name,
			Category:      categoryOf(p),
			POIType:       p.POIType,
			Address:       p.Address,
			Lat:           p.Lat,
			Lon:           p.Lon,
			Order:         i,
			Similarity:    p.Similarity,
			Rating:        p.Rating,
			CombinedScore: score,
			TravelMinutes: travel,
			StayMinutes:   b.in.StayMinutes,
			OpenHours:     p.OpenHours,
		})

		st.prevBearing = geo.Bearing(b.points[st.cur], b.points[idx+1])
		st.haveBearing = true
		st.elapsed += travel + b.in.StayMinutes
		st.lastCategory = categoryOf(p)
		st.inRoute[idx] = true
		b.taken[idx] = true
		st.cur = idx + 1
		if anchored {
			st.mealPlaced = true
		}
	}

	if len(rt.Stops) == 0 {
		return model.Route{}, false
	}

	rt.ReturnMinutes = b.times[st.cur][0]
	for _, s := range rt.Stops {
		rt.TravelMinutes += s.TravelMinutes
		rt.StayMinutes += s.StayMinutes
		rt.TotalScore += s.CombinedScore
	}
	rt.TravelMinutes += rt.ReturnMinutes
	rt.TotalMinutes = rt.TravelMinutes + rt.StayMinutes
	rt.AvgScore = rt.TotalScore / float64(len(rt.Stops))
	if rt.TotalMinutes > 0 {
		rt.Efficiency = rt.TotalScore / (rt.TotalMinutes / 100.0)
	}
	rt.Direction = st.direction
	rt.Warnings = st.warnings
	rt.ValidTiming = true
	return rt, true
}

// ─── Selection ──────────────────────────────────────────────

// pickNext selects the stop for the given position, applying (in order)
// pool exclusion, the meal anchor, category interleaving, the circular
// direction cone, closing-stop proximity, opening-hours preference, and the
// time budget. Returns the pool index, its combined score, and whether the
// pick was a meal-anchored Restaurant.
func (b *builder) pickNext(st *routeState, pos position) (int, float64, bool, bool) {
	eligible := b.eligible(st)
	if len(eligible) == 0 {
		return 0, 0, false, false
	}

	// Meal anchor: force one Restaurant into the first arrival slot that
	// lands inside a meal window, bypassing interleaving.
	if b.in.MealAnchor && !st.mealPlaced && b.in.CurrentTime != nil {
		var anchorSet []int
		for _, idx := range eligible {
			if categoryOf(&b.in.Pool[idx]) != model.CategoryRestaurant {
				continue
			}
			arrival := b.in.CurrentTime.Add(minutesDur(st.elapsed + b.travel(st.cur, idx)))
			if b.inMealWindow(arrival) {
				anchorSet = append(anchorSet, idx)
			}
		}
		if len(anchorSet) > 0 {
			if idx, score, ok := b.selectBest(st, pos, anchorSet); ok {
				return idx, score, true, true
			}
		}
	}

	// Category interleaving: no two consecutive stops share a category
	// unless nothing else remains.
	if pos != posFirst && st.lastCategory != "" {
		mixed := filterIdx(eligible, func(idx int) bool {
			return categoryOf(&b.in.Pool[idx]) != st.lastCategory
		})
		if len(mixed) > 0 {
			eligible = mixed
		}
	}

	// Circular direction cone for middle stops.
	if pos == posMiddle && b.in.Circular.Enabled && st.haveBearing {
		if st.direction == "" {
			st.direction = b.lockDirection(st, eligible)
		}
		cone := filterIdx(eligible, func(idx int) bool {
			return b.inCone(st, idx)
		})
		if len(cone) > 0 {
			eligible = cone
		} else {
			st.warnings = append(st.warnings,
				fmt.Sprintf("no %s-turn candidate at stop %d, direction constraint relaxed", st.direction, len(stopsSoFar(st))+1))
		}
	}

	// Closing stop must land near the user; widen the threshold until
	// someone qualifies.
	if pos == posLast {
		for _, rho := range closingThresholds {
			limit := rho * b.in.Profile.RadiusMeters
			near := filterIdx(eligible, func(idx int) bool {
				return b.returnDistMeters(idx) <= limit
			})
			if len(near) > 0 {
				eligible = near
				break
			}
		}
	}

	// Prefer candidates the traveler can fully visit before closing time;
	// if everything is closed, keep them and let validation flag it.
	if b.in.CurrentTime != nil {
		open := filterIdx(eligible, func(idx int) bool {
			arrival := b.in.CurrentTime.Add(minutesDur(st.elapsed + b.travel(st.cur, idx)))
			return timewin.HasEnoughStay(b.in.Pool[idx].OpenHours, arrival, b.in.StayMinutes)
		})
		if len(open) > 0 {
			eligible = open
		}
	}

	idx, score, ok := b.selectBest(st, pos, eligible)
	return idx, score, false, ok
}

// eligible returns pool indices not in this route, preferring POIs unused by
// earlier routes and falling back to repetition when the pool runs dry.
func (b *builder) eligible(st *routeState) []int {
	var fresh, reusable []int
	for i := range b.in.Pool {
		if st.inRoute[i] {
			continue
		}
		if b.taken[i] {
			reusable = append(reusable, i)
		} else {
			fresh = append(fresh, i)
		}
	}
	if len(fresh) > 0 {
		return fresh
	}
	return reusable
}

// selectBest applies the budget check and the position's score table over
// the candidate set.
func (b *builder) selectBest(st *routeState, pos position, candidates []int) (int, float64, bool) {
	bestIdx, bestScore, found := -1, 0.0, false
	for _, idx := range candidates {
		cost := b.travel(st.cur, idx) + b.in.StayMinutes + b.returnLeg(idx)
		if st.elapsed+cost > b.in.BudgetMinutes {
			continue
		}
		score := b.scoreCandidate(st, pos, idx)
		if !found || better(b.in.Pool[idx], score, b.in.Pool[bestIdx], bestScore) {
			bestIdx, bestScore, found = idx, score, true
		}
	}
	if !found {
		return 0, 0, false
	}
	return bestIdx, bestScore, true
}

func (b *builder) scoreCandidate(st *routeState, pos position, idx int) float64 {
	p := &b.in.Pool[idx]
	w := weightsFor(pos, b.in.Circular.Enabled, p.Similarity)

	distScore := 1.0 - clamp01(b.distMeters(st.cur, idx)/b.in.Profile.RadiusMeters)

	bearingScore := 0.0
	if w.bearing > 0 && st.haveBearing {
		newBearing := geo.Bearing(b.points[st.cur], b.points[idx+1])
		switch {
		case b.in.Circular.Enabled && st.direction != "":
			// Once a direction is locked, rank by closeness to the locked
			// target bearing. This holds outside the strict cone too: a 90°
			// turn to the wrong side never scores like one to the locked
			// side.
			bearingScore = 1.0 - geo.BearingDiff(newBearing, b.lockedTarget(st))/180.0
		case b.in.Circular.Enabled:
			bearingScore = geo.CircularScore(st.prevBearing, newBearing)
		default:
			bearingScore = geo.ZigzagScore(st.prevBearing, newBearing)
		}
	}
	return combined(w, distScore, p.Similarity, p.Rating, bearingScore)
}

// ─── Direction lock ─────────────────────────────────────────

// lockDirection resolves the auto preference at the first middle-stop
// selection: the cone with more candidates wins, ties go right.
func (b *builder) lockDirection(st *routeState, eligible []int) string {
	right, left := 0, 0
	for _, idx := range eligible {
		newBearing := geo.Bearing(b.points[st.cur], b.points[idx+1])
		if geo.BearingDiff(newBearing, math.Mod(st.prevBearing+90, 360)) <= b.in.Circular.ToleranceDeg {
			right++
		}
		if geo.BearingDiff(newBearing, math.Mod(st.prevBearing+270, 360)) <= b.in.Circular.ToleranceDeg {
			left++
		}
	}
	if left > right {
		return "left"
	}
	return "right"
}

// lockedTarget is the ideal bearing of the next leg under the locked turn
// direction: 90° clockwise of the previous leg for right, 90° counter-
// clockwise for left.
func (b *builder) lockedTarget(st *routeState) float64 {
	if st.direction == "left" {
		return math.Mod(st.prevBearing+270, 360)
	}
	return math.Mod(st.prevBearing+90, 360)
}

// inCone reports whether the candidate's bearing from the current position
// falls within tolerance of the locked turn direction.
func (b *builder) inCone(st *routeState, idx int) bool {
	newBearing := geo.Bearing(b.points[st.cur], b.points[idx+1])
	return geo.BearingDiff(newBearing, b.lockedTarget(st)) <= b.in.Circular.ToleranceDeg
}

// ─── Helpers ────────────────────────────────────────────────

func (b *builder) returnDistMeters(poolIdx int) float64 {
	return geo.HaversineM(b.points[poolIdx+1], b.points[0])
}

func (b *builder) inMealWindow(t time.Time) bool {
	return clockContains(t, b.in.Lunch) || clockContains(t, b.in.Dinner)
}

func clockContains(t time.Time, w ClockWindow) bool {
	start, err1 := timewin.ParseHHMM(w.Start)
	end, err2 := timewin.ParseHHMM(w.End)
	if err1 != nil || err2 != nil {
		return false
	}
	m := t.Hour()*60 + t.Minute()
	return m >= start && m <= end
}

func minutesDur(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

func filterIdx(in []int, keep func(int) bool) []int {
	var out []int
	for _, idx := range in {
		if keep(idx) {
			out = append(out, idx)
		}
	}
	return out
}

func stopsSoFar(st *routeState) []int {
	var out []int
	for i, used := range st.inRoute {
		if used {
			out = append(out, i)
		}
	}
	return out
}
