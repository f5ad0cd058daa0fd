// Package window contains the session time-window state machine.
//
// Classification is a pure function of the raw scheduled bounds, the buffer,
// and "now". Callers must re-run it from raw timestamps on every check; a
// cached Classification is only valid for the single request that computed it.
package window

import (
	"errors"
	"time"
)

// DefaultBuffer is the fixed admission buffer applied before the scheduled
// start and after the scheduled end.
const DefaultBuffer = 15 * time.Minute

// ErrInvalidWindow is returned for a zero-length or inverted scheduled window,
// or a negative buffer.
var ErrInvalidWindow = errors.New("invalid session window")

// Status is the position of "now" relative to a buffered session window.
type Status string

const (
	// StatusWaiting means now precedes the buffered start.
	StatusWaiting Status = "waiting"
	// StatusActive means now is inside the buffered window, bounds inclusive.
	StatusActive Status = "active"
	// StatusExpired means now is past the buffered end.
	StatusExpired Status = "expired"
)

// Classification describes a window relative to a single instant.
type Classification struct {
	Status        Status
	BufferedStart time.Time
	BufferedEnd   time.Time

	// Elapsed, Remaining and Progress are populated only for StatusActive.
	// Progress is a percentage of the buffered window, clamped to [0,100].
	Elapsed   time.Duration
	Remaining time.Duration
	Progress  float64

	// TimeUntilStart is populated only for StatusWaiting.
	TimeUntilStart time.Duration
}

// Classify computes the window status for now. The buffered bounds are
// inclusive: now == bufferedStart and now == bufferedEnd both classify active.
func Classify(originalStart, originalEnd time.Time, buffer time.Duration, now time.Time) (Classification, error) {
	if !originalStart.Before(originalEnd) {
		return Classification{}, ErrInvalidWindow
	}
	if buffer < 0 {
		return Classification{}, ErrInvalidWindow
	}

	bufferedStart := originalStart.Add(-buffer)
	bufferedEnd := originalEnd.Add(buffer)
	c := Classification{
		BufferedStart: bufferedStart,
		BufferedEnd:   bufferedEnd,
	}

	switch {
	case now.Before(bufferedStart):
		c.Status = StatusWaiting
		c.TimeUntilStart = bufferedStart.Sub(now)
	case now.After(bufferedEnd):
		c.Status = StatusExpired
	default:
		c.Status = StatusActive
		c.Elapsed = now.Sub(bufferedStart)
		c.Remaining = bufferedEnd.Sub(now)
		c.Progress = clampProgress(float64(c.Elapsed) / float64(bufferedEnd.Sub(bufferedStart)) * 100)
	}
	return c, nil
}

func clampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
