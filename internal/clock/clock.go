// Package clock resolves "current time" in the canonical reference timezone
// and normalizes arbitrary timestamps into it. All session-window math in the
// rest of the codebase goes through this package; comparing instants from
// mixed zones is exactly the bug class this exists to prevent.
package clock

import (
	"errors"
	"fmt"
	"time"
)

// DefaultTimezone is the canonical reference timezone for session windows.
const DefaultTimezone = "Europe/London"

// ErrParse is returned when a timestamp cannot be parsed as ISO-8601.
var ErrParse = errors.New("malformed timestamp")

// acceptedLayouts are the timestamp layouts ToReference will parse.
// RFC 3339 first (the sync contract format), then common fallbacks
// without offset, which are interpreted in the reference zone.
var acceptedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Clock yields the current instant. Implementations other than the reference
// clock exist only for tests.
type Clock interface {
	Now() time.Time
}

// Reference is a Clock pinned to a fixed civil timezone. The host machine's
// local zone is never consulted.
type Reference struct {
	loc *time.Location
	now func() time.Time
}

// NewReference creates a reference clock for the named timezone.
// An empty name selects DefaultTimezone.
func NewReference(timezone string) (*Reference, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load reference timezone %q: %w", timezone, err)
	}
	return &Reference{loc: loc, now: time.Now}, nil
}

// NewReferenceAt creates a reference clock with an injected time source.
// Used by tests to pin "now" to a fixed instant.
func NewReferenceAt(timezone string, now func() time.Time) (*Reference, error) {
	ref, err := NewReference(timezone)
	if err != nil {
		return nil, err
	}
	ref.now = now
	return ref, nil
}

// Now returns the current instant in the reference zone.
func (r *Reference) Now() time.Time {
	return r.now().In(r.loc)
}

// Location returns the reference zone.
func (r *Reference) Location() *time.Location {
	return r.loc
}

// Today returns the current calendar day in the reference zone, truncated to
// midnight. This is the "today" used by stale-session pruning.
func (r *Reference) Today() time.Time {
	return Day(r.Now())
}

// ToReference parses an ISO-8601 timestamp and converts it to the reference
// zone. Timestamps without an explicit offset are interpreted as reference-zone
// civil time. Returns ErrParse (wrapped) for malformed input.
func (r *Reference) ToReference(ts string) (time.Time, error) {
	for i, layout := range acceptedLayouts {
		var t time.Time
		var err error
		if i < 2 {
			t, err = time.Parse(layout, ts)
		} else {
			t, err = time.ParseInLocation(layout, ts, r.loc)
		}
		if err == nil {
			return t.In(r.loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrParse, ts)
}

// ParseDay parses a YYYY-MM-DD calendar day in the reference zone.
func (r *Reference) ParseDay(date string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", date, r.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrParse, date)
	}
	return t, nil
}

// Day truncates an instant to midnight in its own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
