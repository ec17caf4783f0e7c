package service

import "errors"

// Sentinel errors; handlers map them to HTTP status codes with errors.Is.
var (
	// ErrInvalidCoordinates flags a latitude/longitude outside WGS-84 range.
	ErrInvalidCoordinates = errors.New("coordinates out of range")

	// ErrInvalidInput flags other malformed request fields.
	ErrInvalidInput = errors.New("invalid request")

	// ErrNoCandidates means the candidate pipeline eliminated everything;
	// the wrapped message names the filter that did it.
	ErrNoCandidates = errors.New("no candidates matched the query")

	// ErrRouteNotFound means the cached entry has no such route id.
	ErrRouteNotFound = errors.New("route not found in user cache")

	// ErrPOINotInRoute means the old poi id is not part of the route.
	ErrPOINotInRoute = errors.New("poi not found in route")

	// ErrNoSubstitutes means the substitution pool is empty after
	// exclusions; the wrapped message names the eliminating filter.
	ErrNoSubstitutes = errors.New("no substitution candidates")

	// ErrSubstituteUnavailable means the chosen replacement left the
	// available pool between candidate listing and confirmation.
	ErrSubstituteUnavailable = errors.New("replacement poi not in available pool")

	// ErrConflict means the route changed between read and confirm.
	ErrConflict = errors.New("route changed since candidates were fetched")
)
