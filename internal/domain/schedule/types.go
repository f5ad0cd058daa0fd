// Package schedule maintains the authoritative mapping of user to scheduled
// sessions, derived from imported calendar data. The Reconciler in this
// package has exclusive write access to scheduled session records.
package schedule

import (
	"strings"
	"time"
)

// ScheduledSession is one calendar-derived booking.
// A user may hold multiple sessions across dates; email is not unique.
type ScheduledSession struct {
	// Email is the lowercased booking identity.
	Email string
	// Name is the display name from the calendar entry.
	Name string
	// EventTitle is the calendar event title.
	EventTitle string
	// EventDate is the calendar day the session belongs to, midnight in the
	// reference zone.
	EventDate time.Time
	// OriginalStart and OriginalEnd are the exact scheduled window, the
	// source-of-truth timestamps. Buffered bounds are always derived, never
	// stored.
	OriginalStart time.Time
	OriginalEnd   time.Time
	// IsActive is the soft-delete flag. Deactivated sessions never admit.
	IsActive bool
	// CreatedAt and UpdatedAt track record lifecycle (reference zone).
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key is the composite identity of a scheduled session. Two imports with the
// same key refer to the same upstream calendar event.
type Key struct {
	Email         string
	EventDate     string // YYYY-MM-DD
	OriginalStart int64  // unix seconds
	OriginalEnd   int64  // unix seconds
}

// Key returns the session's composite key.
func (s *ScheduledSession) Key() Key {
	return Key{
		Email:         s.Email,
		EventDate:     s.EventDate.Format("2006-01-02"),
		OriginalStart: s.OriginalStart.Unix(),
		OriginalEnd:   s.OriginalEnd.Unix(),
	}
}

// ImportRecord is one tuple of the sync collaborator's batch contract:
// the current full state of one booking, timestamps already normalized to
// the reference zone by the sync job.
type ImportRecord struct {
	Email         string `json:"email"`
	Name          string `json:"name"`
	Title         string `json:"title"`
	OriginalStart string `json:"original_start"` // ISO-8601
	OriginalEnd   string `json:"original_end"`   // ISO-8601
	Date          string `json:"date"`           // YYYY-MM-DD
}

// LoginReason explains a CanLogin verdict for user-facing messaging.
// The gate, not this reason, decides the actual allow/deny.
type LoginReason string

const (
	// ReasonLive means a session's buffered window currently contains now.
	ReasonLive LoginReason = "live"
	// ReasonNoSession means no session is scheduled for this email at all.
	ReasonNoSession LoginReason = "no_session"
	// ReasonUpcoming means the nearest session hasn't opened yet.
	ReasonUpcoming LoginReason = "upcoming"
	// ReasonExpired means every scheduled session's window has closed.
	ReasonExpired LoginReason = "expired"
)

// LoginCheck is the result of CanLogin.
type LoginCheck struct {
	Allowed bool
	Reason  LoginReason
	// Session is the live session when Allowed.
	Session *ScheduledSession
	// TimeUntilStart is set for ReasonUpcoming: how long until the nearest
	// buffered window opens.
	TimeUntilStart time.Duration
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
