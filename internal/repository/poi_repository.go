// Package repository contains the PostgreSQL data access layer.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/minh/wayloop/internal/model"
)

const poiColumns = `id, name, lat, lon, address, poi_type, normalize_stars_reviews, open_hours`

// POIRepository reads POI records from the poi_clean table. Queries are
// retried with jittered backoff; each attempt runs under the configured
// query timeout.
type POIRepository struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

// NewPOIRepository creates a POIRepository backed by the given pool.
func NewPOIRepository(pool *pgxpool.Pool, queryTimeout time.Duration) *POIRepository {
	return &POIRepository{pool: pool, queryTimeout: queryTimeout}
}

// InBoundingBox returns every POI inside the lat/lon box. Used by the
// spatial source to fill H3 cells on cache miss; the box is the cell's
// boundary envelope, so a strict polygon test is unnecessary.
func (r *POIRepository) InBoundingBox(ctx context.Context, minLat, maxLat, minLon, maxLon float64) ([]model.POI, error) {
	const q = `
		SELECT ` + poiColumns + `
		FROM poi_clean
		WHERE lat BETWEEN $1 AND $2
		  AND lon BETWEEN $3 AND $4`

	var pois []model.POI
	err := r.withRetry(ctx, "poi bbox query", func(qctx context.Context) error {
		rows, err := r.pool.Query(qctx, q, minLat, maxLat, minLon, maxLon)
		if err != nil {
			return err
		}
		defer rows.Close()
		pois, err = scanPOIs(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("poi bbox query: %w", err)
	}
	return pois, nil
}

// ByIDs hydrates full POI records for the given id list, preserving the
// input order. Unknown ids are silently skipped.
func (r *POIRepository) ByIDs(ctx context.Context, ids []string) ([]model.POI, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const q = `
		SELECT ` + poiColumns + `
		FROM poi_clean
		WHERE id = ANY($1)`

	var pois []model.POI
	err := r.withRetry(ctx, "poi hydrate query", func(qctx context.Context) error {
		rows, err := r.pool.Query(qctx, q, ids)
		if err != nil {
			return err
		}
		defer rows.Close()
		pois, err = scanPOIs(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("poi hydrate query: %w", err)
	}

	byID := make(map[string]model.POI, len(pois))
	for _, p := range pois {
		byID[p.ID] = p
	}
	ordered := make([]model.POI, 0, len(pois))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			ordered = append(ordered, p)
		}
	}
	return ordered, nil
}

// VisitedIDs returns the POI ids the user has previously visited. Visits
// are recorded by an external collaborator; the planner only excludes them.
func (r *POIRepository) VisitedIDs(ctx context.Context, userID string) ([]string, error) {
	const q = `
		SELECT poi_id
		FROM user_visited_pois
		WHERE user_id = $1`

	var ids []string
	err := r.withRetry(ctx, "visited pois query", func(qctx context.Context) error {
		rows, err := r.pool.Query(qctx, q, userID)
		if err != nil {
			return err
		}
		defer rows.Close()

		ids = ids[:0]
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("visited pois query: %w", err)
	}
	return ids, nil
}

// ─── Helpers ────────────────────────────────────────────────

func scanPOIs(rows pgx.Rows) ([]model.POI, error) {
	var pois []model.POI
	for rows.Next() {
		var (
			p        model.POI
			hoursRaw []byte
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Lat, &p.Lon, &p.Address, &p.POIType, &p.Rating, &hoursRaw); err != nil {
			return nil, err
		}
		if len(hoursRaw) > 0 {
			// Malformed hours stay nil, which downstream treats as
			// always open.
			if err := json.Unmarshal(hoursRaw, &p.OpenHours); err != nil {
				log.Printf("[store] unparseable open_hours for poi %s: %v", p.ID, err)
				p.OpenHours = nil
			}
		}
		pois = append(pois, p)
	}
	return pois, rows.Err()
}

func (r *POIRepository) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	return retry.Do(
		func() error {
			qctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
			defer cancel()
			return fn(qctx)
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.MaxDelay(2*time.Second),
		retry.DelayType(retry.FullJitterBackoffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("[store] retrying %s (attempt %d): %v", op, n+1, err)
		}),
	)
}
