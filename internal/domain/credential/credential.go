// Package credential issues and verifies the signed session credential.
//
// The credential is a compact HMAC-SHA256 JWT. Verification is stateless: it
// checks signature and expiry only and returns the embedded claims. Deciding
// whether the holder is still authorized is the gate's job, not this package's.
package credential

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAdminTTL is the token lifetime for admin credentials, which are not
// bound to a session window.
const DefaultAdminTTL = 24 * time.Hour

// Verification failure modes. Callers at the HTTP boundary must treat all
// three identically to avoid acting as a verification oracle.
var (
	ErrMalformedToken = errors.New("malformed token")
	ErrBadSignature   = errors.New("bad token signature")
	ErrTokenExpired   = errors.New("token expired")
)

// WindowSnapshot is a display-oriented copy of the window state at issuance.
// It is advisory only; the server always re-derives status from raw bounds.
type WindowSnapshot struct {
	Status           string  `json:"status"`
	Progress         float64 `json:"progress"`
	RemainingSeconds int64   `json:"remaining_seconds"`
}

// Claims is the credential's claim set.
type Claims struct {
	Email        string          `json:"email"`
	Name         string          `json:"name"`
	SessionStart time.Time       `json:"session_start,omitzero"`
	SessionEnd   time.Time       `json:"session_end,omitzero"`
	Routes       []string        `json:"routes"`
	IsAdmin      bool            `json:"is_admin"`
	Window       *WindowSnapshot `json:"window,omitempty"`
	jwt.RegisteredClaims
}

// HasRoute reports whether the claim set authorizes the named route.
func (c *Claims) HasRoute(route string) bool {
	for _, r := range c.Routes {
		if r == route {
			return true
		}
	}
	return false
}

// Issuer mints and verifies credentials with a server-held symmetric secret.
type Issuer struct {
	secret   []byte
	adminTTL time.Duration
	now      func() time.Time
}

// NewIssuer creates an Issuer. adminTTL <= 0 selects DefaultAdminTTL.
func NewIssuer(secret []byte, adminTTL time.Duration) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("credential secret must not be empty")
	}
	if adminTTL <= 0 {
		adminTTL = DefaultAdminTTL
	}
	return &Issuer{secret: secret, adminTTL: adminTTL, now: time.Now}, nil
}

// NewIssuerAt creates an Issuer with an injected time source for tests.
func NewIssuerAt(secret []byte, adminTTL time.Duration, now func() time.Time) (*Issuer, error) {
	iss, err := NewIssuer(secret, adminTTL)
	if err != nil {
		return nil, err
	}
	iss.now = now
	return iss, nil
}

// Issue signs the claim set and returns the token together with the finalized
// claims (ExpiresAt and IssuedAt populated). For non-admin claims the token
// expiry is pinned to SessionEnd so the cryptographic expiry and the
// authorized window can never diverge. Admin claims get the fixed admin TTL
// instead. Note the exp check in verification is exclusive: a token minted at
// the last inclusive window instant is already expired.
func (i *Issuer) Issue(claims Claims) (string, Claims, error) {
	now := i.now()

	if claims.IsAdmin {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(i.adminTTL))
	} else {
		if claims.SessionEnd.IsZero() {
			return "", Claims{}, fmt.Errorf("non-admin credential requires a session window")
		}
		claims.ExpiresAt = jwt.NewNumericDate(claims.SessionEnd)
	}
	claims.IssuedAt = jwt.NewNumericDate(now)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign credential: %w", err)
	}
	return signed, claims, nil
}

// Verify checks signature and expiry and returns the embedded claims.
// Returns ErrMalformedToken, ErrBadSignature or ErrTokenExpired.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature
		default:
			return nil, ErrMalformedToken
		}
	}
	return claims, nil
}
