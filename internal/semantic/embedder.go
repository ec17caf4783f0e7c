package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// Embedder calls the external embedding service over HTTP. The service
// returns unit-norm vectors; asymmetric models expect "query:" / "passage:"
// prefixes, added here so callers never see them.
type Embedder struct {
	url        string
	client     *http.Client
	asymmetric bool
}

// NewEmbedder creates an Embedder for the given endpoint.
func NewEmbedder(url string, timeout time.Duration, asymmetric bool) *Embedder {
	return &Embedder{
		url:        url,
		client:     &http.Client{Timeout: timeout},
		asymmetric: asymmetric,
	}
}

type embedRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// EmbedQueries encodes the given query strings, one vector per input,
// in input order.
func (e *Embedder) EmbedQueries(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	prefixed := make([]string, len(texts))
	for i, t := range texts {
		if e.asymmetric {
			prefixed[i] = "query: " + t
		} else {
			prefixed[i] = t
		}
	}

	body, err := json.Marshal(embedRequest{Texts: prefixed})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	var vectors [][]float32
	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := e.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
				err := fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, snippet)
				if resp.StatusCode >= 400 && resp.StatusCode < 500 {
					return retry.Unrecoverable(err)
				}
				return err
			}

			var out embedResponse
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return err
			}
			if len(out.Embeddings) != len(texts) {
				return retry.Unrecoverable(fmt.Errorf(
					"embedding count mismatch: sent %d, got %d", len(texts), len(out.Embeddings)))
			}
			vectors = out.Embeddings
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.MaxDelay(2*time.Second),
		retry.DelayType(retry.FullJitterBackoffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("[semantic] retrying embed call (attempt %d): %v", n+1, err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("embed queries: %w", err)
	}
	return vectors, nil
}

// EmbedQuery encodes a single query string.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedQueries(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}
