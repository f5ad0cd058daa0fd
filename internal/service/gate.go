// Package service contains the orchestration layer between the HTTP adapter
// and the domain packages.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mapwarden/mapwarden/internal/clock"
	"github.com/mapwarden/mapwarden/internal/domain/account"
	"github.com/mapwarden/mapwarden/internal/domain/credential"
	"github.com/mapwarden/mapwarden/internal/domain/policy"
	"github.com/mapwarden/mapwarden/internal/domain/schedule"
	"github.com/mapwarden/mapwarden/internal/domain/window"
)

// Gate errors. The HTTP adapter collapses these to exactly two client
// outcomes; the distinctions exist for logging and user-facing messaging.
var (
	// ErrInvalidCredentials is the generic login rejection. It never reveals
	// whether the email exists or which part of the input was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNoSession means no session is scheduled for the email.
	ErrNoSession = errors.New("no session scheduled")
	// ErrSessionNotYetOpen means the nearest session window hasn't opened.
	ErrSessionNotYetOpen = errors.New("session not yet open")
	// ErrSessionWindowClosed means every session window has closed.
	ErrSessionWindowClosed = errors.New("session window closed")
	// ErrSessionRevoked means a verified credential no longer has a live
	// session behind it (deactivated after issuance).
	ErrSessionRevoked = errors.New("session revoked")
	// ErrRouteForbidden means the credential does not authorize the route.
	ErrRouteForbidden = errors.New("route not authorized")
	// ErrConsistency is an internal invariant violation: the reconciler and
	// the window calculator disagreed. Logged, never shown raw to the user.
	ErrConsistency = errors.New("session state inconsistency")
)

// WindowDeniedError wraps a window-status rejection with display detail.
type WindowDeniedError struct {
	Err error
	// TimeUntilStart is set for ErrSessionNotYetOpen.
	TimeUntilStart time.Duration
}

func (e *WindowDeniedError) Error() string { return e.Err.Error() }
func (e *WindowDeniedError) Unwrap() error { return e.Err }

// LoginResult is a successful login: the signed credential and its claims.
type LoginResult struct {
	Token  string
	Claims credential.Claims
}

// ValidationResult is a successful per-request credential validation.
type ValidationResult struct {
	Claims *credential.Claims
	// Window is the live re-classification of the claims' window.
	// Zero for admin credentials, which carry no window.
	Window window.Classification
}

// Gate orchestrates authentication: admin bypass versus regular-user window
// checks at login, and credential verification plus live authorization
// re-checks on every subsequent request. It owns neither store.
type Gate struct {
	accounts       account.AccountStore
	reconciler     *schedule.Reconciler
	issuer         *credential.Issuer
	engine         *policy.Engine
	ref            *clock.Reference
	routes         []string
	passphraseHash string
	logger         *slog.Logger
	tracer         trace.Tracer
}

// GateConfig holds Gate construction parameters.
type GateConfig struct {
	// Routes is the route list embedded in regular-user credentials.
	Routes []string
	// PassphraseHash is the Argon2id hash of the shared regular-user
	// passphrase.
	PassphraseHash string
}

// NewGate creates a Gate.
func NewGate(
	accounts account.AccountStore,
	reconciler *schedule.Reconciler,
	issuer *credential.Issuer,
	engine *policy.Engine,
	ref *clock.Reference,
	cfg GateConfig,
	logger *slog.Logger,
) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		accounts:       accounts,
		reconciler:     reconciler,
		issuer:         issuer,
		engine:         engine,
		ref:            ref,
		routes:         cfg.Routes,
		passphraseHash: cfg.PassphraseHash,
		logger:         logger,
		tracer:         otel.Tracer("mapwarden/gate"),
	}
}

// Login authenticates an email/password pair and mints a credential.
func (g *Gate) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	ctx, span := g.tracer.Start(ctx, "gate.Login")
	defer span.End()

	email = account.NormalizeEmail(email)

	// Admin bypass: direct credential check, no window.
	acct, err := g.accounts.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, account.ErrAccountNotFound) {
		return nil, fmt.Errorf("admin lookup: %w", err)
	}
	if acct != nil && acct.IsActive {
		match, verifyErr := account.VerifyPassword(password, acct.PasswordHash)
		if verifyErr != nil {
			g.logger.Error("admin password hash is unverifiable", "email", email, "error", verifyErr)
		} else if match {
			span.SetAttributes(attribute.String("outcome", "admin"))
			return g.mintAdmin(acct)
		}
		// Fall through: an admin email with a wrong password gets the same
		// treatment as any other email.
	}

	match, err := account.VerifyPassword(password, g.passphraseHash)
	if err != nil || !match {
		span.SetAttributes(attribute.String("outcome", "invalid_credentials"))
		return nil, ErrInvalidCredentials
	}

	check, err := g.reconciler.CanLogin(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("login check: %w", err)
	}
	if !check.Allowed {
		span.SetAttributes(attribute.String("outcome", string(check.Reason)))
		switch check.Reason {
		case schedule.ReasonUpcoming:
			return nil, &WindowDeniedError{Err: ErrSessionNotYetOpen, TimeUntilStart: check.TimeUntilStart}
		case schedule.ReasonExpired:
			return nil, &WindowDeniedError{Err: ErrSessionWindowClosed}
		default:
			return nil, &WindowDeniedError{Err: ErrNoSession}
		}
	}

	c, err := window.Classify(check.Session.OriginalStart, check.Session.OriginalEnd, g.reconciler.Buffer(), g.ref.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConsistency, err)
	}
	switch c.Status {
	case window.StatusExpired:
		// Defensive re-check; IsLive should already have excluded this.
		span.SetAttributes(attribute.String("outcome", "expired"))
		return nil, &WindowDeniedError{Err: ErrSessionWindowClosed}
	case window.StatusWaiting:
		// A live session classifying as waiting means the reconciler and the
		// calculator disagree. Never silently allow it.
		g.logger.Error("live session classified as waiting",
			"email", email,
			"buffered_start", c.BufferedStart,
			"now", g.ref.Now(),
		)
		span.SetAttributes(attribute.String("outcome", "inconsistent"))
		return nil, ErrConsistency
	}

	span.SetAttributes(attribute.String("outcome", "active"))
	return g.mintRegular(check.Session, c)
}

// Validate verifies a credential and re-checks live authorization. Admin
// claims pass on the token's own expiry alone; regular users get both a
// window re-classification from the claims and a reconciler liveness check.
func (g *Gate) Validate(ctx context.Context, token string) (*ValidationResult, error) {
	ctx, span := g.tracer.Start(ctx, "gate.Validate")
	defer span.End()

	claims, err := g.issuer.Verify(token)
	if err != nil {
		span.SetAttributes(attribute.String("outcome", "verify_failed"))
		return nil, err
	}

	if claims.IsAdmin {
		span.SetAttributes(attribute.String("outcome", "admin"))
		return &ValidationResult{Claims: claims}, nil
	}

	// The claims carry the buffered window, so classify with buffer zero:
	// re-applying it would widen the window beyond what was authorized.
	c, err := window.Classify(claims.SessionStart, claims.SessionEnd, 0, g.ref.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: credential window: %v", ErrConsistency, err)
	}
	switch c.Status {
	case window.StatusExpired:
		span.SetAttributes(attribute.String("outcome", "expired"))
		return nil, ErrSessionWindowClosed
	case window.StatusWaiting:
		span.SetAttributes(attribute.String("outcome", "inconsistent"))
		return nil, ErrConsistency
	}

	// Liveness re-check catches sessions deactivated after issuance.
	live, err := g.reconciler.IsLive(ctx, claims.Email)
	if err != nil {
		return nil, fmt.Errorf("liveness check: %w", err)
	}
	if live == nil {
		span.SetAttributes(attribute.String("outcome", "revoked"))
		return nil, ErrSessionRevoked
	}

	span.SetAttributes(attribute.String("outcome", "active"))
	return &ValidationResult{Claims: claims, Window: c}, nil
}

// ValidateRoute validates a credential and checks it authorizes the route.
func (g *Gate) ValidateRoute(ctx context.Context, token, route string) (*ValidationResult, error) {
	result, err := g.Validate(ctx, token)
	if err != nil {
		return nil, err
	}

	decision, err := g.engine.Evaluate(policy.Request{
		Route:   route,
		Email:   result.Claims.Email,
		IsAdmin: result.Claims.IsAdmin,
		Routes:  result.Claims.Routes,
	})
	if err != nil {
		return nil, fmt.Errorf("route policy: %w", err)
	}
	if !decision.Allowed {
		g.logger.Debug("route denied",
			"route", route,
			"email", result.Claims.Email,
			"rule", decision.RuleName,
		)
		return nil, ErrRouteForbidden
	}
	return result, nil
}

func (g *Gate) mintAdmin(acct *account.AdminAccount) (*LoginResult, error) {
	claims := credential.Claims{
		Email:   acct.Email,
		Name:    acct.Name,
		IsAdmin: true,
		Routes:  g.routes,
	}
	token, issued, err := g.issuer.Issue(claims)
	if err != nil {
		return nil, fmt.Errorf("mint admin credential: %w", err)
	}
	g.logger.Info("admin login", "email", acct.Email)
	return &LoginResult{Token: token, Claims: issued}, nil
}

func (g *Gate) mintRegular(sess *schedule.ScheduledSession, c window.Classification) (*LoginResult, error) {
	claims := credential.Claims{
		Email:        sess.Email,
		Name:         sess.Name,
		SessionStart: c.BufferedStart,
		SessionEnd:   c.BufferedEnd,
		Routes:       g.routes,
		Window: &credential.WindowSnapshot{
			Status:           string(c.Status),
			Progress:         c.Progress,
			RemainingSeconds: int64(c.Remaining / time.Second),
		},
	}
	token, issued, err := g.issuer.Issue(claims)
	if err != nil {
		return nil, fmt.Errorf("mint credential: %w", err)
	}
	g.logger.Info("session login",
		"email", sess.Email,
		"window_start", c.BufferedStart,
		"window_end", c.BufferedEnd,
	)
	return &LoginResult{Token: token, Claims: issued}, nil
}
