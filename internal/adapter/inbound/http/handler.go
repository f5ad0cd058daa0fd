package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/mapwarden/mapwarden/internal/domain/schedule"
	"github.com/mapwarden/mapwarden/internal/domain/window"
	"github.com/mapwarden/mapwarden/internal/service"
)

// maxRequestBodySize is the maximum allowed request body size (5 MB).
// Sync batches for a busy season stay well under this.
const maxRequestBodySize = 5 << 20

// Handler exposes the gate and the reconciler over HTTP.
type Handler struct {
	gate       *service.Gate
	reconciler *schedule.Reconciler
	metrics    *Metrics
}

// NewHandler creates the API handler.
func NewHandler(gate *service.Gate, reconciler *schedule.Reconciler, metrics *Metrics) *Handler {
	return &Handler{gate: gate, reconciler: reconciler, metrics: metrics}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type windowPayload struct {
	Status           string    `json:"status"`
	Progress         float64   `json:"progress"`
	RemainingSeconds int64     `json:"remaining_seconds"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
}

type sessionResponse struct {
	Email   string         `json:"email"`
	Name    string         `json:"name"`
	IsAdmin bool           `json:"is_admin"`
	Routes  []string       `json:"routes"`
	Window  *windowPayload `json:"window,omitempty"`
}

// handleLogin authenticates an email/password pair and sets the session
// cookie on success.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	logger := LoggerFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	result, err := h.gate.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeLoginError(w, r, err)
		return
	}

	outcome := "active"
	if result.Claims.IsAdmin {
		outcome = "admin"
	}
	h.metrics.LoginAttempts.WithLabelValues(outcome).Inc()
	logger.Info("login", "email", result.Claims.Email, "admin", result.Claims.IsAdmin, "ip", realIP(r))

	http.SetCookie(w, &http.Cookie{
		Name:     credentialCookie,
		Value:    result.Token,
		Path:     "/",
		Expires:  result.Claims.ExpiresAt.Time,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	resp := sessionResponse{
		Email:   result.Claims.Email,
		Name:    result.Claims.Name,
		IsAdmin: result.Claims.IsAdmin,
		Routes:  result.Claims.Routes,
	}
	if snap := result.Claims.Window; snap != nil {
		resp.Window = &windowPayload{
			Status:           snap.Status,
			Progress:         snap.Progress,
			RemainingSeconds: snap.RemainingSeconds,
			Start:            result.Claims.SessionStart,
			End:              result.Claims.SessionEnd,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeLoginError maps a Login failure to its response. Window-based denials
// get a reason so the UI can explain; everything else is the generic 401.
func (h *Handler) writeLoginError(w http.ResponseWriter, r *http.Request, err error) {
	logger := LoggerFromContext(r.Context())

	var denied *service.WindowDeniedError
	switch {
	case errors.As(err, &denied):
		resp := errorResponse{Error: denied.Error()}
		switch {
		case errors.Is(err, service.ErrSessionNotYetOpen):
			resp.Reason = string(schedule.ReasonUpcoming)
			resp.TimeUntilStartSeconds = int64(denied.TimeUntilStart / time.Second)
			h.metrics.LoginAttempts.WithLabelValues("upcoming").Inc()
		case errors.Is(err, service.ErrSessionWindowClosed):
			resp.Reason = string(schedule.ReasonExpired)
			h.metrics.LoginAttempts.WithLabelValues("expired").Inc()
		default:
			resp.Reason = string(schedule.ReasonNoSession)
			h.metrics.LoginAttempts.WithLabelValues("no_session").Inc()
		}
		writeJSON(w, http.StatusForbidden, resp)
	case errors.Is(err, service.ErrInvalidCredentials):
		h.metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	default:
		h.metrics.LoginAttempts.WithLabelValues("error").Inc()
		logger.Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// handleSession validates the caller's credential and returns its claims
// with a fresh window classification.
func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	token := credentialFromRequest(r)
	if token == "" {
		h.metrics.Validations.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusUnauthorized, msgAuthFailed)
		return
	}

	result, err := h.gate.Validate(r.Context(), token)
	h.metrics.Validations.WithLabelValues(validationOutcome(err)).Inc()
	if err != nil {
		writeValidationError(w, err)
		return
	}

	resp := sessionResponse{
		Email:   result.Claims.Email,
		Name:    result.Claims.Name,
		IsAdmin: result.Claims.IsAdmin,
		Routes:  result.Claims.Routes,
	}
	if !result.Claims.IsAdmin {
		h.metrics.Classifications.WithLabelValues(string(result.Window.Status)).Inc()
		resp.Window = classificationPayload(result.Window)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleLogout clears the session cookie. The credential itself stays valid
// until expiry; logout is a client-side convenience.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	clearCredentialCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleMap authorizes access to one map route.
func (h *Handler) handleMap(w http.ResponseWriter, r *http.Request) {
	route := r.PathValue("route")

	token := credentialFromRequest(r)
	if token == "" {
		h.metrics.Validations.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusUnauthorized, msgAuthFailed)
		return
	}

	result, err := h.gate.ValidateRoute(r.Context(), token, route)
	h.metrics.Validations.WithLabelValues(validationOutcome(err)).Inc()
	if err != nil {
		writeValidationError(w, err)
		return
	}

	resp := struct {
		Route  string         `json:"route"`
		Email  string         `json:"email"`
		Window *windowPayload `json:"window,omitempty"`
	}{
		Route: route,
		Email: result.Claims.Email,
	}
	if !result.Claims.IsAdmin {
		h.metrics.Classifications.WithLabelValues(string(result.Window.Status)).Inc()
		resp.Window = classificationPayload(result.Window)
	}
	writeJSON(w, http.StatusOK, resp)
}

type syncRequest struct {
	Records []schedule.ImportRecord `json:"records"`
}

type syncResponse struct {
	Inserted    int  `json:"inserted"`
	Updated     int  `json:"updated"`
	Unchanged   int  `json:"unchanged"`
	Deactivated int  `json:"deactivated"`
	Skipped     bool `json:"skipped"`
}

// handleSync applies a full calendar sync batch. Localhost only; the sync
// job runs on the same host.
func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	logger := LoggerFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	var req syncRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	summary, err := h.reconciler.ApplyBatch(r.Context(), req.Records)
	if err != nil {
		if errors.Is(err, schedule.ErrSyncBatch) {
			h.metrics.SyncBatches.WithLabelValues("failed").Inc()
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.metrics.SyncBatches.WithLabelValues("failed").Inc()
		logger.Error("sync batch failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if summary.Skipped {
		h.metrics.SyncBatches.WithLabelValues("skipped").Inc()
	} else {
		h.metrics.SyncBatches.WithLabelValues("applied").Inc()
	}
	h.metrics.SyncRecords.WithLabelValues("inserted").Add(float64(summary.Inserted))
	h.metrics.SyncRecords.WithLabelValues("updated").Add(float64(summary.Updated))
	h.metrics.SyncRecords.WithLabelValues("unchanged").Add(float64(summary.Unchanged))
	h.metrics.SyncRecords.WithLabelValues("deactivated").Add(float64(summary.Deactivated))

	writeJSON(w, http.StatusOK, syncResponse{
		Inserted:    summary.Inserted,
		Updated:     summary.Updated,
		Unchanged:   summary.Unchanged,
		Deactivated: summary.Deactivated,
		Skipped:     summary.Skipped,
	})
}

// handlePrune deactivates records dated before today. Localhost only.
func (h *Handler) handlePrune(w http.ResponseWriter, r *http.Request) {
	n, err := h.reconciler.PruneStale(r.Context())
	if err != nil {
		LoggerFromContext(r.Context()).Error("prune failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"pruned": n})
}

// healthHandler responds 200 OK for liveness checks.
func healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
}

func classificationPayload(c window.Classification) *windowPayload {
	return &windowPayload{
		Status:           string(c.Status),
		Progress:         c.Progress,
		RemainingSeconds: int64(c.Remaining / time.Second),
		Start:            c.BufferedStart,
		End:              c.BufferedEnd,
	}
}
