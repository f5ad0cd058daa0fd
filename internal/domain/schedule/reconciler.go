package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/mapwarden/mapwarden/internal/clock"
	"github.com/mapwarden/mapwarden/internal/domain/window"
)

// Reconciler keeps local scheduled session records synchronized with the
// externally supplied "current truth" batches produced by the calendar sync
// job. It is the only component with write access to the schedule store.
type Reconciler struct {
	store  Store
	ref    *clock.Reference
	buffer time.Duration
	logger *slog.Logger

	// lastFingerprint lets identical re-imports short-circuit. Sync jobs
	// typically re-post the same batch every few minutes.
	mu              sync.Mutex
	lastFingerprint uint64
}

// BatchSummary reports what a sync batch changed.
type BatchSummary struct {
	Inserted    int
	Updated     int
	Unchanged   int
	Deactivated int
	// Skipped is true when the batch was byte-identical to the previous
	// successfully applied batch and no store access happened.
	Skipped bool
}

// NewReconciler creates a Reconciler. buffer <= 0 selects window.DefaultBuffer.
func NewReconciler(store Store, ref *clock.Reference, buffer time.Duration, logger *slog.Logger) *Reconciler {
	if buffer <= 0 {
		buffer = window.DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, ref: ref, buffer: buffer, logger: logger}
}

// Buffer returns the admission buffer applied to every session window.
func (r *Reconciler) Buffer() time.Duration {
	return r.buffer
}

// Upsert inserts or updates a single scheduled session from import fields.
func (r *Reconciler) Upsert(ctx context.Context, rec ImportRecord) (UpsertOutcome, error) {
	sess, err := r.parseRecord(rec)
	if err != nil {
		return UpsertUnchanged, err
	}
	return r.store.Upsert(ctx, sess)
}

// ApplyBatch atomically applies a full sync batch: every record is upserted,
// and for each today-or-future date the batch covers, records absent from the
// batch are deactivated (their upstream calendar event was deleted). Past
// dates are never reconciled here; only PruneStale touches them. A batch that
// fails to parse or apply makes no changes at all.
func (r *Reconciler) ApplyBatch(ctx context.Context, records []ImportRecord) (BatchSummary, error) {
	// Parse and validate everything up front so a bad record fails the
	// whole batch before any write happens.
	parsed := make([]*ScheduledSession, 0, len(records))
	for i, rec := range records {
		sess, err := r.parseRecord(rec)
		if err != nil {
			return BatchSummary{}, fmt.Errorf("%w: record %d: %v", ErrSyncBatch, i, err)
		}
		parsed = append(parsed, sess)
	}

	fingerprint := batchFingerprint(parsed)
	r.mu.Lock()
	skip := fingerprint != 0 && fingerprint == r.lastFingerprint
	r.mu.Unlock()
	if skip {
		r.logger.Debug("sync batch identical to previous, skipping", "records", len(parsed))
		return BatchSummary{Unchanged: len(parsed), Skipped: true}, nil
	}

	// Composite keys present per covered date.
	presentByDate := make(map[string]map[Key]struct{})
	dayByDate := make(map[string]time.Time)
	for _, sess := range parsed {
		date := sess.EventDate.Format("2006-01-02")
		if presentByDate[date] == nil {
			presentByDate[date] = make(map[Key]struct{})
			dayByDate[date] = sess.EventDate
		}
		presentByDate[date][sess.Key()] = struct{}{}
	}

	today := r.ref.Today()
	var summary BatchSummary
	err := r.store.InTransaction(ctx, func(tx Store) error {
		for _, sess := range parsed {
			outcome, err := tx.Upsert(ctx, sess)
			if err != nil {
				return err
			}
			switch outcome {
			case UpsertInserted:
				summary.Inserted++
			case UpsertUpdated:
				summary.Updated++
			default:
				summary.Unchanged++
			}
		}
		for date, present := range presentByDate {
			day := dayByDate[date]
			if day.Before(today) {
				continue
			}
			n, err := tx.DeactivateMissing(ctx, day, present)
			if err != nil {
				return err
			}
			summary.Deactivated += n
		}
		return nil
	})
	if err != nil {
		return BatchSummary{}, fmt.Errorf("%w: %v", ErrSyncBatch, err)
	}

	r.mu.Lock()
	r.lastFingerprint = fingerprint
	r.mu.Unlock()

	r.logger.Info("sync batch applied",
		"records", len(parsed),
		"inserted", summary.Inserted,
		"updated", summary.Updated,
		"unchanged", summary.Unchanged,
		"deactivated", summary.Deactivated,
	)
	return summary, nil
}

// PruneStale deactivates every record whose event date is strictly before
// today in the reference zone. Today-or-future records are never pruned.
func (r *Reconciler) PruneStale(ctx context.Context) (int, error) {
	n, err := r.store.PruneBefore(ctx, r.ref.Today())
	if err != nil {
		return 0, fmt.Errorf("prune stale sessions: %w", err)
	}
	if n > 0 {
		r.logger.Info("pruned stale sessions", "count", n)
	}
	return n, nil
}

// IsLive returns the session whose buffered window currently contains now and
// whose active flag is set, or nil if the email has no such session.
func (r *Reconciler) IsLive(ctx context.Context, email string) (*ScheduledSession, error) {
	sessions, err := r.store.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	now := r.ref.Now()
	for _, sess := range sessions {
		if !sess.IsActive {
			continue
		}
		c, err := window.Classify(sess.OriginalStart, sess.OriginalEnd, r.buffer, now)
		if err != nil {
			// A stored window that fails validation is corrupt; skip it
			// rather than blocking every other session for this email.
			r.logger.Error("stored session has invalid window",
				"email", sess.Email, "start", sess.OriginalStart, "end", sess.OriginalEnd)
			continue
		}
		if c.Status == window.StatusActive {
			return sess, nil
		}
	}
	return nil, nil
}

// CanLogin reports whether the email currently has a live session, with a
// reason suitable for user-facing messaging when it does not.
func (r *Reconciler) CanLogin(ctx context.Context, email string) (LoginCheck, error) {
	sessions, err := r.store.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return LoginCheck{}, err
	}

	now := r.ref.Now()
	check := LoginCheck{Reason: ReasonNoSession}
	var nearestStart time.Duration
	for _, sess := range sessions {
		if !sess.IsActive {
			continue
		}
		c, err := window.Classify(sess.OriginalStart, sess.OriginalEnd, r.buffer, now)
		if err != nil {
			continue
		}
		switch c.Status {
		case window.StatusActive:
			return LoginCheck{Allowed: true, Reason: ReasonLive, Session: sess}, nil
		case window.StatusWaiting:
			if check.Reason != ReasonUpcoming || c.TimeUntilStart < nearestStart {
				nearestStart = c.TimeUntilStart
			}
			check.Reason = ReasonUpcoming
			check.TimeUntilStart = nearestStart
		case window.StatusExpired:
			if check.Reason == ReasonNoSession {
				check.Reason = ReasonExpired
			}
		}
	}
	return check, nil
}

// parseRecord validates one import tuple and converts it to a session record.
func (r *Reconciler) parseRecord(rec ImportRecord) (*ScheduledSession, error) {
	email := normalizeEmail(rec.Email)
	if email == "" {
		return nil, fmt.Errorf("empty email")
	}
	day, err := r.ref.ParseDay(rec.Date)
	if err != nil {
		return nil, fmt.Errorf("event date: %w", err)
	}
	start, err := r.ref.ToReference(rec.OriginalStart)
	if err != nil {
		return nil, fmt.Errorf("original start: %w", err)
	}
	end, err := r.ref.ToReference(rec.OriginalEnd)
	if err != nil {
		return nil, fmt.Errorf("original end: %w", err)
	}
	if !start.Before(end) {
		return nil, window.ErrInvalidWindow
	}
	return &ScheduledSession{
		Email:         email,
		Name:          rec.Name,
		EventTitle:    rec.Title,
		EventDate:     day,
		OriginalStart: start,
		OriginalEnd:   end,
		IsActive:      true,
	}, nil
}

// batchFingerprint hashes the canonical form of a parsed batch.
func batchFingerprint(sessions []*ScheduledSession) uint64 {
	lines := make([]string, 0, len(sessions))
	for _, s := range sessions {
		k := s.Key()
		lines = append(lines, k.Email+"|"+k.EventDate+"|"+
			strconv.FormatInt(k.OriginalStart, 10)+"|"+
			strconv.FormatInt(k.OriginalEnd, 10)+"|"+
			s.Name+"|"+s.EventTitle)
	}
	sort.Strings(lines)
	h := xxhash.New()
	for _, line := range lines {
		_, _ = h.WriteString(line)
		_, _ = h.WriteString("\n")
	}
	return h.Sum64()
}
