// Package cache implements the per-user route cache and the POI hydration
// cache on Redis.
//
// Each user owns exactly one entry under "user:<user_id>": the planned
// routes, the unused alternatives grouped by category, and the ids already
// swapped out. Writes are last-write-wins and renew the TTL. Individual POI
// records are cached under "location:<poi_id>" for substitution hydration.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/minh/wayloop/internal/model"
)

// ErrMiss is returned when the user has no cache entry.
var ErrMiss = errors.New("user cache entry not found")

// Store wraps the Redis client with the cache key scheme and TTLs.
type Store struct {
	rdb       *redis.Client
	userTTL   time.Duration
	poiTTL    time.Duration
	opTimeout time.Duration
}

// NewStore creates a Store.
func NewStore(rdb *redis.Client, userTTL, poiTTL, opTimeout time.Duration) *Store {
	return &Store{rdb: rdb, userTTL: userTTL, poiTTL: poiTTL, opTimeout: opTimeout}
}

func userKey(userID string) string { return "user:" + userID }
func poiKey(poiID string) string   { return "location:" + poiID }

// ─── Per-user entry ─────────────────────────────────────────

// Get returns the user's entry or ErrMiss.
func (s *Store) Get(ctx context.Context, userID string) (*model.UserRouteCache, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	raw, err := s.rdb.Get(opCtx, userKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: user %s", ErrMiss, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("read user cache: %w", err)
	}

	var entry model.UserRouteCache
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode user cache for %s: %w", userID, err)
	}
	return &entry, nil
}

// Put overwrites the user's entry atomically and renews the TTL.
func (s *Store) Put(ctx context.Context, entry *model.UserRouteCache) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode user cache for %s: %w", entry.UserID, err)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.rdb.Set(opCtx, userKey(entry.UserID), payload, s.userTTL).Err(); err != nil {
		return fmt.Errorf("write user cache: %w", err)
	}
	return nil
}

// Delete drops the user's entry. Deleting a missing entry is not an error.
func (s *Store) Delete(ctx context.Context, userID string) error {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.rdb.Del(opCtx, userKey(userID)).Err(); err != nil {
		return fmt.Errorf("delete user cache: %w", err)
	}
	return nil
}

// ─── POI hydration cache ────────────────────────────────────

// GetPOIs reads cached POI records for the given ids in one MGET. Returns
// the hits keyed by id and the ids that must be hydrated from the store.
func (s *Store) GetPOIs(ctx context.Context, ids []string) (map[string]model.POI, []string, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = poiKey(id)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	vals, err := s.rdb.MGet(opCtx, keys...).Result()
	if err != nil {
		// Treat a cache outage as a full miss.
		log.Printf("[cache] poi cache read failed: %v", err)
		return nil, ids, nil
	}

	hits := make(map[string]model.POI)
	var missing []string
	for i, id := range ids {
		raw, ok := vals[i].(string)
		if !ok {
			missing = append(missing, id)
			continue
		}
		var p model.POI
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			missing = append(missing, id)
			continue
		}
		hits[id] = p
	}
	return hits, missing, nil
}

// PutPOIs caches POI records under their individual keys in one pipeline.
// Failures are logged and swallowed: the hydration cache is best effort.
func (s *Store) PutPOIs(ctx context.Context, pois []model.POI) {
	if len(pois) == 0 {
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	pipe := s.rdb.Pipeline()
	for i := range pois {
		payload, err := json.Marshal(&pois[i])
		if err != nil {
			continue
		}
		pipe.Set(opCtx, poiKey(pois[i].ID), payload, s.poiTTL)
	}
	if _, err := pipe.Exec(opCtx); err != nil {
		log.Printf("[cache] poi cache write failed: %v", err)
	}
}
