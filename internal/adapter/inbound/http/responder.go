package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mapwarden/mapwarden/internal/domain/credential"
	"github.com/mapwarden/mapwarden/internal/service"
)

// Client-facing rejection messages. Every credential failure collapses into
// one of two strings so responses never reveal why verification failed.
const (
	msgAuthFailed     = "authentication failed"
	msgSessionExpired = "session expired, please log in again"
)

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error string `json:"error"`
	// Reason is a machine-readable rejection reason, set on login denials.
	Reason string `json:"reason,omitempty"`
	// TimeUntilStartSeconds is set when a login is denied because the
	// session window hasn't opened yet.
	TimeUntilStartSeconds int64 `json:"time_until_start_seconds,omitempty"`
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error envelope.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// clearCredentialCookie tells the client to delete the session cookie.
func clearCredentialCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     credentialCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// writeValidationError collapses a Validate/ValidateRoute failure into the
// two permitted 401 outcomes, plus 403 for route denials. Anything that is
// neither a clean expiry nor a route denial reads as a generic auth failure.
// Every 401 also clears the session cookie: the credential is dead and the
// client must not keep presenting it.
func writeValidationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, credential.ErrTokenExpired),
		errors.Is(err, service.ErrSessionWindowClosed),
		errors.Is(err, service.ErrSessionRevoked):
		clearCredentialCookie(w)
		writeError(w, http.StatusUnauthorized, msgSessionExpired)
	case errors.Is(err, service.ErrRouteForbidden):
		writeError(w, http.StatusForbidden, "route not authorized")
	default:
		clearCredentialCookie(w)
		writeError(w, http.StatusUnauthorized, msgAuthFailed)
	}
}

// validationOutcome labels a validation error for metrics.
func validationOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, credential.ErrTokenExpired),
		errors.Is(err, service.ErrSessionWindowClosed),
		errors.Is(err, service.ErrSessionRevoked):
		return "expired"
	case errors.Is(err, service.ErrRouteForbidden):
		return "forbidden"
	default:
		return "rejected"
	}
}
