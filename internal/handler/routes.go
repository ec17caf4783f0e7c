package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/minh/wayloop/internal/model"
	"github.com/minh/wayloop/internal/service"
)

// RouteHandler handles planning and substitution HTTP requests.
type RouteHandler struct {
	planner     *service.Planner
	substituter *service.Substituter
}

// NewRouteHandler creates a handler wired to the planner and substituter.
func NewRouteHandler(planner *service.Planner, substituter *service.Substituter) *RouteHandler {
	return &RouteHandler{planner: planner, substituter: substituter}
}

// Register mounts every route on the router.
func (h *RouteHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/v1/routes/search", h.SearchRoutes).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/routes/replace-poi", h.ReplacePOI).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/routes/confirm-replace", h.ConfirmReplace).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/routes/replace-full", h.ReplaceFullRoute).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/users/{user_id}/visited-pois", h.VisitedPOIs).Methods(http.MethodGet)
}

type locationDTO struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ─── search_routes ──────────────────────────────────────────

type searchRoutesRequest struct {
	UserID         string  `json:"user_id,omitempty"`
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	Mode           string  `json:"mode"`
	Query          string  `json:"query"`
	CurrentTime    string  `json:"current_time,omitempty"`
	MaxTimeMinutes float64 `json:"max_time_minutes"`
	TargetPlaces   int     `json:"target_places"`
	MaxRoutes      int     `json:"max_routes"`
	TopKSemantic   int     `json:"top_k_semantic"`
	CustomerLike   bool    `json:"customer_like,omitempty"`
	DeleteCache    bool    `json:"delete_cache,omitempty"`
	ReplaceRoute   int     `json:"replace_route,omitempty"`
}

// SearchRoutes handles POST /api/v1/routes/search
//
// Runs the full planning pipeline and returns up to max_routes tours plus
// the per-phase timing breakdown.
func (h *RouteHandler) SearchRoutes(w http.ResponseWriter, r *http.Request) {
	var req searchRoutesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "bad_request", "message": "invalid JSON body",
		})
		return
	}
	if req.UserID != "" {
		if _, err := uuid.Parse(req.UserID); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "bad_request", "message": "user_id must be a UUID",
			})
			return
		}
	}
	currentTime, err := parseTime(req.CurrentTime)
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.planner.Plan(r.Context(), service.PlanRequest{
		UserID:         req.UserID,
		Lat:            req.Lat,
		Lon:            req.Lon,
		Mode:           model.TransportMode(req.Mode),
		Query:          req.Query,
		CurrentTime:    currentTime,
		MaxTimeMinutes: req.MaxTimeMinutes,
		TargetPlaces:   req.TargetPlaces,
		MaxRoutes:      req.MaxRoutes,
		TopKSemantic:   req.TopKSemantic,
		CustomerLike:   req.CustomerLike,
		DeleteCache:    req.DeleteCache,
		ReplaceRoute:   req.ReplaceRoute,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ─── replace_poi ────────────────────────────────────────────

type replacePOIRequest struct {
	UserID       string      `json:"user_id"`
	RouteID      string      `json:"route_id"`
	OldPOIID     string      `json:"old_poi_id"`
	UserLocation locationDTO `json:"user_location"`
	Mode         string      `json:"mode"`
	TopK         int         `json:"top_k"`
	CurrentTime  string      `json:"current_time,omitempty"`
}

// ReplacePOI handles POST /api/v1/routes/replace-poi
//
// Returns ranked same-category replacement candidates for one stop.
func (h *RouteHandler) ReplacePOI(w http.ResponseWriter, r *http.Request) {
	var req replacePOIRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "bad_request", "message": "invalid JSON body",
		})
		return
	}
	if _, err := uuid.Parse(req.UserID); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "bad_request", "message": "user_id must be a UUID",
		})
		return
	}
	currentTime, err := parseTime(req.CurrentTime)
	if err != nil {
		writeError(w, err)
		return
	}

	candidates, err := h.substituter.ReplacePOI(r.Context(), service.SubstituteRequest{
		UserID:       req.UserID,
		RouteID:      req.RouteID,
		OldPOIID:     req.OldPOIID,
		UserLocation: model.Location{Lat: req.UserLocation.Lat, Lon: req.UserLocation.Lon},
		Mode:         model.TransportMode(req.Mode),
		TopK:         req.TopK,
		CurrentTime:  currentTime,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"candidates": candidates})
}

// ─── confirm_replace ────────────────────────────────────────

type confirmReplaceRequest struct {
	UserID   string `json:"user_id"`
	RouteID  string `json:"route_id"`
	OldPOIID string `json:"old_poi_id"`
	NewPOIID string `json:"new_poi_id"`
}

// ConfirmReplace handles POST /api/v1/routes/confirm-replace
//
// Commits a substitution. Returns 409 when the route changed underneath
// the caller.
func (h *RouteHandler) ConfirmReplace(w http.ResponseWriter, r *http.Request) {
	var req confirmReplaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "bad_request", "message": "invalid JSON body",
		})
		return
	}
	if _, err := uuid.Parse(req.UserID); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "bad_request", "message": "user_id must be a UUID",
		})
		return
	}

	route, err := h.substituter.ConfirmReplace(r.Context(), service.ConfirmRequest{
		UserID:   req.UserID,
		RouteID:  req.RouteID,
		OldPOIID: req.OldPOIID,
		NewPOIID: req.NewPOIID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "replaced",
		"updated_route": route,
	})
}

// ─── replace_full_route ─────────────────────────────────────

type replaceFullRouteRequest struct {
	UserID         string      `json:"user_id"`
	RouteID        string      `json:"route_id"`
	NewQuery       string      `json:"new_query"`
	UserLocation   locationDTO `json:"user_location"`
	Mode           string      `json:"mode"`
	MaxTimeMinutes float64     `json:"max_time_minutes"`
	TargetPlaces   int         `json:"target_places"`
	TopKSemantic   int         `json:"top_k_semantic"`
	CurrentTime    string      `json:"current_time,omitempty"`
}

// ReplaceFullRoute handles POST /api/v1/routes/replace-full
//
// Rebuilds one cached route from a brand-new query, leaving the rest alone.
func (h *RouteHandler) ReplaceFullRoute(w http.ResponseWriter, r *http.Request) {
	var req replaceFullRouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "bad_request", "message": "invalid JSON body",
		})
		return
	}
	if _, err := uuid.Parse(req.UserID); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "bad_request", "message": "user_id must be a UUID",
		})
		return
	}
	currentTime, err := parseTime(req.CurrentTime)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.TopKSemantic == 0 {
		req.TopKSemantic = 20
	}

	route, err := h.planner.ReplaceFullRoute(r.Context(), service.FullReplaceRequest{
		UserID:         req.UserID,
		RouteID:        req.RouteID,
		NewQuery:       req.NewQuery,
		Lat:            req.UserLocation.Lat,
		Lon:            req.UserLocation.Lon,
		Mode:           model.TransportMode(req.Mode),
		MaxTimeMinutes: req.MaxTimeMinutes,
		TargetPlaces:   req.TargetPlaces,
		TopKSemantic:   req.TopKSemantic,
		CurrentTime:    currentTime,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"route": route})
}

// ─── visited_pois ───────────────────────────────────────────

// VisitedPOIs handles GET /api/v1/users/{user_id}/visited-pois
func (h *RouteHandler) VisitedPOIs(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	if _, err := uuid.Parse(userID); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "bad_request", "message": "user_id must be a UUID",
		})
		return
	}

	ids, err := h.planner.VisitedPOIs(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"visited_pois": ids})
}
