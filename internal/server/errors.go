package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	kycgate "github.com/eugener/kycgate/internal"
)

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func errorResponse(status int, msg string) apiError {
	var e apiError
	e.Error.Message = msg
	e.Error.Type = errorType(status)
	return e
}

func errorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request_error"
	case http.StatusUnauthorized:
		return "authentication_error"
	case http.StatusForbidden:
		return "permission_error"
	case http.StatusNotFound:
		return "not_found_error"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusConflict:
		return "conflict_error"
	case http.StatusTooManyRequests:
		return "rate_limit_error"
	case http.StatusBadGateway:
		return "upstream_error"
	case http.StatusServiceUnavailable:
		return "unavailable_error"
	default:
		return "internal_error"
	}
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, kycgate.ErrUnauthorized), errors.Is(err, kycgate.ErrKeyExpired):
		return http.StatusUnauthorized
	case errors.Is(err, kycgate.ErrForbidden), errors.Is(err, kycgate.ErrKeyBlocked):
		return http.StatusForbidden
	case errors.Is(err, kycgate.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, kycgate.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, kycgate.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, kycgate.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, kycgate.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status. Client errors carry their message; 5xx
// errors are logged and answered with the status text only.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		slog.LogAttrs(r.Context(), slog.LevelError, "request failed",
			slog.String("error", err.Error()),
			slog.Int("status", status),
			slog.String("request_id", kycgate.RequestIDFromContext(r.Context())),
		)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse(status, msg))
}

// jsonCT is a pre-allocated header value slice. Direct map assignment
// (w.Header()["Content-Type"] = jsonCT) avoids the []string{v} alloc
// that Header.Set creates on every call.
var jsonCT = []string{"application/json"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
