// Package spatial produces POI candidates around a geographic point using
// H3 hexagonal cells.
//
// Cells are the caching unit: each cell's POI list is cached in Redis under
// "h3:<resolution>:<cell_id>" and filled from Postgres on miss. The k-ring
// for a query is mode-dependent; when the ring yields fewer candidates than
// the configured floor, the ring widens progressively up to a cap.
package spatial

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	h3 "github.com/uber/h3-go/v4"

	"github.com/minh/wayloop/config"
	"github.com/minh/wayloop/internal/model"
	"github.com/minh/wayloop/internal/repository"
	"github.com/minh/wayloop/internal/timewin"
	"github.com/minh/wayloop/pkg/geo"
)

// ErrUnknownMode is returned when the transportation mode has no profile.
var ErrUnknownMode = errors.New("unknown transportation mode")

// Window optionally restricts candidates to POIs whose opening hours
// intersect [Start, End].
type Window struct {
	Start time.Time
	End   time.Time
}

// Source is the spatial candidate producer.
type Source struct {
	store     *repository.POIRepository
	rdb       *redis.Client
	cfg       *config.RoutingConfig
	opTimeout time.Duration
}

// NewSource creates a spatial Source.
func NewSource(store *repository.POIRepository, rdb *redis.Client, cfg *config.RoutingConfig, opTimeout time.Duration) *Source {
	return &Source{store: store, rdb: rdb, cfg: cfg, opTimeout: opTimeout}
}

// Candidates returns POIs within the mode's radius of (lat, lon), sorted by
// distance ascending and deduplicated by id, together with the effective
// radius in meters actually applied.
//
// Complexity: O(C·P) over ring cells C and their POIs P, plus the sort.
func (s *Source) Candidates(ctx context.Context, loc model.Location, mode model.TransportMode, window *Window) ([]model.POI, float64, error) {
	profile, ok := s.cfg.Profile(mode)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	origin, err := h3.LatLngToCell(h3.LatLng{Lat: loc.Lat, Lng: loc.Lon}, s.cfg.H3Resolution)
	if err != nil {
		return nil, 0, fmt.Errorf("h3 cell for (%f, %f): %w", loc.Lat, loc.Lon, err)
	}

	k := profile.KRing
	effRadius := profile.RadiusMeters
	var result []model.POI

	for {
		cells, err := h3.GridDisk(origin, k)
		if err != nil {
			return nil, 0, fmt.Errorf("h3 grid disk k=%d: %w", k, err)
		}

		pois, err := s.ringPOIs(ctx, cells)
		if err != nil {
			return nil, 0, err
		}

		result = result[:0]
		seen := make(map[string]bool, len(pois))
		for _, p := range pois {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true

			d := geo.HaversineM(loc, p.Loc())
			if d > effRadius {
				continue
			}
			if window != nil && !timewin.OverlapsWindow(p.OpenHours, window.Start, window.End) {
				continue
			}
			p.DistanceMeters = d
			result = append(result, p)
		}

		if len(result) >= s.cfg.MaxCandidatesFloor || k >= s.cfg.MaxKRingExpansion {
			break
		}
		// Widen the ring; the radius cutoff grows in proportion so the
		// extra cells are not filtered straight back out.
		k++
		effRadius = profile.RadiusMeters * float64(k) / float64(profile.KRing)
		log.Printf("[spatial] expanding ring to k=%d (have %d, floor %d)", k, len(result), s.cfg.MaxCandidatesFloor)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].DistanceMeters != result[j].DistanceMeters {
			return result[i].DistanceMeters < result[j].DistanceMeters
		}
		return result[i].ID < result[j].ID
	})
	return result, effRadius, nil
}

// ─── Cell cache ─────────────────────────────────────────────

func (s *Source) cellKey(cell h3.Cell) string {
	return fmt.Sprintf("h3:%d:%s", s.cfg.H3Resolution, cell.String())
}

// ringPOIs returns the POIs of every cell, reading the cell cache in one
// MGET and filling misses from the store. Empty cells are cached too, so
// empty hexagons stop hitting Postgres.
func (s *Source) ringPOIs(ctx context.Context, cells []h3.Cell) ([]model.POI, error) {
	keys := make([]string, len(cells))
	for i, c := range cells {
		keys[i] = s.cellKey(c)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	vals, err := s.rdb.MGet(opCtx, keys...).Result()
	cancel()
	if err != nil {
		// Degrade to store-only reads rather than failing the request.
		log.Printf("[spatial] cell cache read failed, falling back to store: %v", err)
		vals = make([]interface{}, len(cells))
	}

	var pois []model.POI
	for i, c := range cells {
		if raw, ok := vals[i].(string); ok {
			var cached []model.CellPOI
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				for j := range cached {
					pois = append(pois, cached[j].AsPOI())
				}
				continue
			}
			log.Printf("[spatial] corrupt cell cache entry %s, refilling", keys[i])
		}

		fresh, err := s.fillCell(ctx, c)
		if err != nil {
			return nil, err
		}
		pois = append(pois, fresh...)
	}
	return pois, nil
}

// fillCell queries the store for the cell's POIs and writes the cache entry.
func (s *Source) fillCell(ctx context.Context, cell h3.Cell) ([]model.POI, error) {
	boundary, err := h3.CellToBoundary(cell)
	if err != nil {
		return nil, fmt.Errorf("h3 boundary for %s: %w", cell.String(), err)
	}

	minLat, maxLat := boundary[0].Lat, boundary[0].Lat
	minLon, maxLon := boundary[0].Lng, boundary[0].Lng
	for _, v := range boundary[1:] {
		if v.Lat < minLat {
			minLat = v.Lat
		}
		if v.Lat > maxLat {
			maxLat = v.Lat
		}
		if v.Lng < minLon {
			minLon = v.Lng
		}
		if v.Lng > maxLon {
			maxLon = v.Lng
		}
	}

	pois, err := s.store.InBoundingBox(ctx, minLat, maxLat, minLon, maxLon)
	if err != nil {
		return nil, err
	}

	cached := make([]model.CellPOI, 0, len(pois))
	for _, p := range pois {
		cached = append(cached, model.CellPOI{
			ID:        p.ID,
			Name:      p.Name,
			POIType:   p.POIType,
			Address:   p.Address,
			Lat:       p.Lat,
			Lon:       p.Lon,
			Rating:    p.Rating,
			OpenHours: p.OpenHours,
		})
	}
	payload, err := json.Marshal(cached)
	if err != nil {
		return pois, nil
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.rdb.Set(opCtx, s.cellKey(cell), payload, s.cfg.CellCacheTTL).Err(); err != nil {
		log.Printf("[spatial] cell cache write failed for %s: %v", cell.String(), err)
	}
	return pois, nil
}
