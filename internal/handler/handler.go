// Package handler contains HTTP request handlers for the itinerary API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	routecache "github.com/minh/wayloop/internal/cache"
	"github.com/minh/wayloop/internal/semantic"
	"github.com/minh/wayloop/internal/service"
	"github.com/minh/wayloop/internal/spatial"
)

// writeJSON is a helper that writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps service errors to HTTP status codes through errors.Is.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCoordinates),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, spatial.ErrUnknownMode),
		errors.Is(err, semantic.ErrInvalidTopK):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "bad_request", "message": err.Error(),
		})
	case errors.Is(err, routecache.ErrMiss),
		errors.Is(err, service.ErrRouteNotFound),
		errors.Is(err, service.ErrPOINotInRoute):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "not_found", "message": err.Error(),
		})
	case errors.Is(err, service.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "conflict", "message": err.Error(),
		})
	case errors.Is(err, service.ErrNoCandidates),
		errors.Is(err, service.ErrNoSubstitutes),
		errors.Is(err, service.ErrSubstituteUnavailable):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": "exhausted", "message": err.Error(),
		})
	default:
		log.Printf("[handler] internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal_error",
		})
	}
}

// parseTime accepts RFC3339 or a bare local timestamp.
func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: unparseable current_time %q", service.ErrInvalidInput, s)
}

// ─── Health ─────────────────────────────────────────────────

// HealthHandler probes the process dependencies.
type HealthHandler struct {
	probes map[string]func(context.Context) error
}

// NewHealthHandler creates a health handler over named dependency probes.
func NewHealthHandler(probes map[string]func(context.Context) error) *HealthHandler {
	return &HealthHandler{probes: probes}
}

// Health handles GET /health. Returns 200 when every dependency answers,
// 503 otherwise, with a per-dependency breakdown either way.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := map[string]string{}
	for name, probe := range h.probes {
		if err := probe(ctx); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			deps[name] = "ok"
		}
	}
	writeJSON(w, status, map[string]interface{}{
		"status":       http.StatusText(status),
		"dependencies": deps,
	})
}
