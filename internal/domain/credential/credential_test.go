package credential

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var testSecret = []byte("test-secret-0123456789abcdef")

func fixedNow() time.Time {
	return time.Date(2025, 7, 1, 14, 0, 0, 0, time.UTC)
}

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	iss, err := NewIssuerAt(testSecret, 0, fixedNow)
	if err != nil {
		t.Fatalf("NewIssuerAt() error = %v", err)
	}
	return iss
}

func regularClaims() Claims {
	return Claims{
		Email:        "guest@example.com",
		Name:         "Guest User",
		SessionStart: time.Date(2025, 7, 1, 13, 45, 0, 0, time.UTC),
		SessionEnd:   time.Date(2025, 7, 1, 15, 15, 0, 0, time.UTC),
		Routes:       []string{"harbour", "old-town"},
		Window:       &WindowSnapshot{Status: "active", Progress: 16.7, RemainingSeconds: 4500},
	}
}

func TestNewIssuer_EmptySecret(t *testing.T) {
	if _, err := NewIssuer(nil, 0); err == nil {
		t.Fatal("NewIssuer(nil secret) expected error")
	}
}

func TestIssuer_RoundTrip(t *testing.T) {
	iss := newTestIssuer(t)

	token, _, err := iss.Issue(regularClaims())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Fatalf("Issue() produced %d segments, want 3", len(parts))
	}

	got, err := iss.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	want := regularClaims()
	if got.Email != want.Email || got.Name != want.Name {
		t.Errorf("Verify() identity = %s/%s, want %s/%s", got.Email, got.Name, want.Email, want.Name)
	}
	if !got.SessionStart.Equal(want.SessionStart) || !got.SessionEnd.Equal(want.SessionEnd) {
		t.Errorf("Verify() window = [%v, %v], want [%v, %v]",
			got.SessionStart, got.SessionEnd, want.SessionStart, want.SessionEnd)
	}
	if len(got.Routes) != 2 || got.Routes[0] != "harbour" {
		t.Errorf("Verify() routes = %v, want %v", got.Routes, want.Routes)
	}
	if got.IsAdmin {
		t.Error("Verify() isAdmin = true for a regular credential")
	}
	if got.Window == nil || got.Window.Status != "active" {
		t.Errorf("Verify() window snapshot = %+v, want active", got.Window)
	}
}

// A regular credential's token expiry must equal its session end exactly.
func TestIssuer_RegularExpiryPinnedToSessionEnd(t *testing.T) {
	iss := newTestIssuer(t)

	token, _, err := iss.Issue(regularClaims())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	got, err := iss.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !got.ExpiresAt.Time.Equal(got.SessionEnd) {
		t.Errorf("expiresAt = %v, want sessionEnd %v", got.ExpiresAt.Time, got.SessionEnd)
	}
}

// The claims Issue hands back carry the expiry it signed; callers (the cookie
// path in particular) read it without re-verifying the token.
func TestIssuer_ReturnsFinalizedClaims(t *testing.T) {
	iss := newTestIssuer(t)

	_, issued, err := iss.Issue(regularClaims())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if issued.ExpiresAt == nil || !issued.ExpiresAt.Time.Equal(issued.SessionEnd) {
		t.Errorf("regular ExpiresAt = %v, want sessionEnd %v", issued.ExpiresAt, issued.SessionEnd)
	}
	if issued.IssuedAt == nil || !issued.IssuedAt.Time.Equal(fixedNow()) {
		t.Errorf("IssuedAt = %v, want %v", issued.IssuedAt, fixedNow())
	}

	_, admin, err := iss.Issue(Claims{Email: "admin@example.com", IsAdmin: true})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if admin.ExpiresAt == nil || !admin.ExpiresAt.Time.Equal(fixedNow().Add(DefaultAdminTTL)) {
		t.Errorf("admin ExpiresAt = %v, want now+24h", admin.ExpiresAt)
	}
}

func TestIssuer_RegularWithoutWindowRejected(t *testing.T) {
	iss := newTestIssuer(t)
	if _, _, err := iss.Issue(Claims{Email: "guest@example.com"}); err == nil {
		t.Fatal("Issue() without session window expected error")
	}
}

func TestIssuer_AdminTTL(t *testing.T) {
	iss := newTestIssuer(t)

	token, _, err := iss.Issue(Claims{Email: "admin@example.com", Name: "Admin", IsAdmin: true})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	got, err := iss.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !got.IsAdmin {
		t.Error("Verify() isAdmin = false")
	}
	wantExpiry := fixedNow().Add(DefaultAdminTTL)
	if !got.ExpiresAt.Time.Equal(wantExpiry) {
		t.Errorf("expiresAt = %v, want now+24h = %v", got.ExpiresAt.Time, wantExpiry)
	}
}

func TestIssuer_VerifyFailures(t *testing.T) {
	iss := newTestIssuer(t)
	token, _, err := iss.Issue(regularClaims())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	otherIssuer, err := NewIssuerAt([]byte("a-completely-different-secret"), 0, fixedNow)
	if err != nil {
		t.Fatalf("NewIssuerAt() error = %v", err)
	}
	foreign, _, err := otherIssuer.Issue(regularClaims())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	afterEnd, err := NewIssuerAt(testSecret, 0, func() time.Time {
		return regularClaims().SessionEnd.Add(time.Second)
	})
	if err != nil {
		t.Fatalf("NewIssuerAt() error = %v", err)
	}

	tests := []struct {
		name    string
		issuer  *Issuer
		token   string
		wantErr error
	}{
		{name: "garbage", issuer: iss, token: "not-a-token", wantErr: ErrMalformedToken},
		{name: "empty", issuer: iss, token: "", wantErr: ErrMalformedToken},
		{name: "wrong secret", issuer: iss, token: foreign, wantErr: ErrBadSignature},
		{name: "expired", issuer: afterEnd, token: token, wantErr: ErrTokenExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.issuer.Verify(tt.token)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestClaims_HasRoute(t *testing.T) {
	c := Claims{Routes: []string{"harbour", "old-town"}}
	if !c.HasRoute("harbour") {
		t.Error("HasRoute(harbour) = false")
	}
	if c.HasRoute("citadel") {
		t.Error("HasRoute(citadel) = true")
	}
}
