package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/HerbHall/netdash/internal/backend"
	"github.com/HerbHall/netdash/internal/devicestore"
)

// Problem types for RFC 7807 Problem Details responses.
const (
	ProblemTypeNotFound    = "https://netdash.dev/problems/not-found"
	ProblemTypeBadRequest  = "https://netdash.dev/problems/bad-request"
	ProblemTypeInternal    = "https://netdash.dev/problems/internal-error"
	ProblemTypeRateLimited = "https://netdash.dev/problems/rate-limited"
	ProblemTypeConflict    = "https://netdash.dev/problems/conflict"
	ProblemTypeBadGateway  = "https://netdash.dev/problems/bad-gateway"
	ProblemTypeUnavailable = "https://netdash.dev/problems/unavailable"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// WriteProblem writes an RFC 7807 Problem Details JSON response.
func WriteProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NotFound writes a 404 problem response.
func NotFound(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, Problem{
		Type:     ProblemTypeNotFound,
		Title:    "Not Found",
		Status:   http.StatusNotFound,
		Detail:   detail,
		Instance: instance,
	})
}

// BadRequest writes a 400 problem response.
func BadRequest(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, Problem{
		Type:     ProblemTypeBadRequest,
		Title:    "Bad Request",
		Status:   http.StatusBadRequest,
		Detail:   detail,
		Instance: instance,
	})
}

// Conflict writes a 409 problem response.
func Conflict(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, Problem{
		Type:     ProblemTypeConflict,
		Title:    "Conflict",
		Status:   http.StatusConflict,
		Detail:   detail,
		Instance: instance,
	})
}

// BadGateway writes a 502 problem response. detail should carry the
// backend's own message.
func BadGateway(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, Problem{
		Type:     ProblemTypeBadGateway,
		Title:    "Bad Gateway",
		Status:   http.StatusBadGateway,
		Detail:   detail,
		Instance: instance,
	})
}

// Unavailable writes a 503 problem response.
func Unavailable(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, Problem{
		Type:     ProblemTypeUnavailable,
		Title:    "Service Unavailable",
		Status:   http.StatusServiceUnavailable,
		Detail:   detail,
		Instance: instance,
	})
}

// InternalError writes a 500 problem response.
func InternalError(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, Problem{
		Type:     ProblemTypeInternal,
		Title:    "Internal Server Error",
		Status:   http.StatusInternalServerError,
		Detail:   detail,
		Instance: instance,
	})
}

// RateLimited writes a 429 problem response.
func RateLimited(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, Problem{
		Type:     ProblemTypeRateLimited,
		Title:    "Too Many Requests",
		Status:   http.StatusTooManyRequests,
		Detail:   detail,
		Instance: instance,
	})
}

// WriteError maps an engine error to a problem response. User-action
// errors become 400 or 409, a missing backend record 404, a closed store
// 503 and any other backend failure 502.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	instance := r.URL.Path
	switch {
	case errors.Is(err, devicestore.ErrInvalidMethod),
		errors.Is(err, devicestore.ErrInvalidInterval),
		errors.Is(err, devicestore.ErrInvalidIP):
		BadRequest(w, err.Error(), instance)
	case errors.Is(err, devicestore.ErrFallbackMode):
		Conflict(w, err.Error(), instance)
	case errors.Is(err, devicestore.ErrClosed):
		Unavailable(w, err.Error(), instance)
	case errors.Is(err, backend.ErrNoRecord):
		NotFound(w, err.Error(), instance)
	default:
		if code, ok := backend.StatusCode(err); ok && code == http.StatusNotFound {
			NotFound(w, err.Error(), instance)
			return
		}
		BadGateway(w, err.Error(), instance)
	}
}
