// Package semantic produces POI candidates by vector similarity: query
// strings are embedded by the external embedding service and matched against
// the Qdrant collection whose point ids equal POI ids.
package semantic

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/qdrant/go-client/qdrant"
)

// ErrInvalidTopK is returned when top_k is not positive.
var ErrInvalidTopK = errors.New("top_k must be positive")

// Hit is one similarity match before hydration.
type Hit struct {
	POIID      string
	Similarity float64
}

// Source is the semantic candidate producer. Hits carry ids and scores
// only; callers hydrate full records from their own POI source.
type Source struct {
	embed      *Embedder
	qd         *qdrant.Client
	collection string
	timeout    time.Duration
}

// NewSource creates a semantic Source.
func NewSource(embed *Embedder, qd *qdrant.Client, collection string, timeout time.Duration) *Source {
	return &Source{embed: embed, qd: qd, collection: collection, timeout: timeout}
}

// Search returns the raw top-k hits for one query string, optionally
// constrained to idFilter, sorted by similarity descending.
func (s *Source) Search(ctx context.Context, text string, topK int, idFilter []string) ([]Hit, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTopK, topK)
	}

	vector, err := s.embed.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}

	query := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(false),
	}
	if len(idFilter) > 0 {
		ids := make([]*qdrant.PointId, len(idFilter))
		for i, id := range idFilter {
			ids[i] = qdrant.NewIDUUID(id)
		}
		query.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewHasID(ids...)},
		}
	}

	var points []*qdrant.ScoredPoint
	err = retry.Do(
		func() error {
			qctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			var qerr error
			points, qerr = s.qd.Query(qctx, query)
			return qerr
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.MaxDelay(2*time.Second),
		retry.DelayType(retry.FullJitterBackoffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("[semantic] retrying vector query (attempt %d): %v", n+1, err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		id := pointIDString(p.GetId())
		if id == "" {
			continue
		}
		hits = append(hits, Hit{POIID: id, Similarity: float64(p.GetScore())})
	}
	return hits, nil
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	if n := id.GetNum(); n != 0 {
		return fmt.Sprintf("%d", n)
	}
	return ""
}
