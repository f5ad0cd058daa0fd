package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mapwarden/mapwarden/internal/clock"
	"github.com/mapwarden/mapwarden/internal/domain/schedule"
)

// ScheduleStore implements schedule.Store on SQLite.
type ScheduleStore struct {
	db  *DB
	q   querier
	ref *clock.Reference
	now func() time.Time
}

// NewScheduleStore creates a schedule store over a connected DB.
func NewScheduleStore(db *DB, ref *clock.Reference) *ScheduleStore {
	return &ScheduleStore{db: db, q: db.db, ref: ref, now: ref.Now}
}

const scheduleColumns = `email, event_date, original_start, original_end, name, event_title, is_active, created_at, updated_at`

// Upsert inserts or updates a session matched by its composite key.
func (s *ScheduleStore) Upsert(ctx context.Context, sess *schedule.ScheduledSession) (schedule.UpsertOutcome, error) {
	key := sess.Key()

	existing, err := s.getByKey(ctx, key)
	if err != nil && !errors.Is(err, schedule.ErrSessionNotFound) {
		return schedule.UpsertUnchanged, err
	}

	now := s.now().Format(time.RFC3339)

	if existing == nil {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO scheduled_sessions (`+scheduleColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
		`,
			key.Email,
			key.EventDate,
			sess.OriginalStart.Format(time.RFC3339),
			sess.OriginalEnd.Format(time.RFC3339),
			sess.Name,
			sess.EventTitle,
			now,
			now,
		)
		if err != nil {
			return schedule.UpsertUnchanged, fmt.Errorf("insert session: %w", err)
		}
		return schedule.UpsertInserted, nil
	}

	if existing.Name == sess.Name && existing.EventTitle == sess.EventTitle && existing.IsActive {
		return schedule.UpsertUnchanged, nil
	}

	_, err = s.q.ExecContext(ctx, `
		UPDATE scheduled_sessions
		SET name = ?, event_title = ?, is_active = 1, updated_at = ?
		WHERE email = ? AND event_date = ? AND original_start = ? AND original_end = ?
	`,
		sess.Name,
		sess.EventTitle,
		now,
		key.Email,
		key.EventDate,
		existing.OriginalStart.Format(time.RFC3339),
		existing.OriginalEnd.Format(time.RFC3339),
	)
	if err != nil {
		return schedule.UpsertUnchanged, fmt.Errorf("update session: %w", err)
	}
	return schedule.UpsertUpdated, nil
}

// DeactivateMissing deactivates active records on the given day whose key is
// absent from present.
func (s *ScheduleStore) DeactivateMissing(ctx context.Context, day time.Time, present map[schedule.Key]struct{}) (int, error) {
	date := clock.Day(day).Format("2006-01-02")

	rows, err := s.q.QueryContext(ctx, `
		SELECT `+scheduleColumns+`
		FROM scheduled_sessions
		WHERE event_date = ? AND is_active = 1
	`, date)
	if err != nil {
		return 0, fmt.Errorf("list sessions for %s: %w", date, err)
	}
	sessions, err := scanSessions(rows, s.ref)
	if err != nil {
		return 0, err
	}

	now := s.now().Format(time.RFC3339)
	n := 0
	for _, sess := range sessions {
		key := sess.Key()
		if _, ok := present[key]; ok {
			continue
		}
		_, err := s.q.ExecContext(ctx, `
			UPDATE scheduled_sessions
			SET is_active = 0, updated_at = ?
			WHERE email = ? AND event_date = ? AND original_start = ? AND original_end = ?
		`,
			now,
			key.Email,
			key.EventDate,
			sess.OriginalStart.Format(time.RFC3339),
			sess.OriginalEnd.Format(time.RFC3339),
		)
		if err != nil {
			return n, fmt.Errorf("deactivate session: %w", err)
		}
		n++
	}
	return n, nil
}

// PruneBefore deactivates every record dated strictly before day.
// Lexicographic comparison works because event_date is YYYY-MM-DD.
func (s *ScheduleStore) PruneBefore(ctx context.Context, day time.Time) (int, error) {
	cutoff := clock.Day(day).Format("2006-01-02")

	result, err := s.q.ExecContext(ctx, `
		UPDATE scheduled_sessions
		SET is_active = 0, updated_at = ?
		WHERE is_active = 1 AND event_date < ?
	`, s.now().Format(time.RFC3339), cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune sessions before %s: %w", cutoff, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// FindByEmail returns all sessions for an email, active and inactive, in
// event date order.
func (s *ScheduleStore) FindByEmail(ctx context.Context, email string) ([]*schedule.ScheduledSession, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+scheduleColumns+`
		FROM scheduled_sessions
		WHERE email = ?
		ORDER BY original_start
	`, email)
	if err != nil {
		return nil, fmt.Errorf("find sessions for %s: %w", email, err)
	}
	return scanSessions(rows, s.ref)
}

// InTransaction runs fn against a transactional view of the store. Nested
// calls run in the enclosing transaction.
func (s *ScheduleStore) InTransaction(ctx context.Context, fn func(tx schedule.Store) error) error {
	if _, inTx := s.q.(*sql.Tx); inTx {
		return fn(s)
	}
	return s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		return fn(&ScheduleStore{db: s.db, q: tx, ref: s.ref, now: s.now})
	})
}

// getByKey fetches one session by composite key.
func (s *ScheduleStore) getByKey(ctx context.Context, key schedule.Key) (*schedule.ScheduledSession, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+scheduleColumns+`
		FROM scheduled_sessions
		WHERE email = ? AND event_date = ?
	`, key.Email, key.EventDate)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	sessions, err := scanSessions(rows, s.ref)
	if err != nil {
		return nil, err
	}
	for _, sess := range sessions {
		if sess.Key() == key {
			return sess, nil
		}
	}
	return nil, schedule.ErrSessionNotFound
}

// scanSessions reads the remaining rows into sessions, normalizing all
// timestamps into the reference zone.
func scanSessions(rows *sql.Rows, ref *clock.Reference) ([]*schedule.ScheduledSession, error) {
	defer rows.Close()

	var sessions []*schedule.ScheduledSession
	for rows.Next() {
		var (
			sess     schedule.ScheduledSession
			date     string
			start    string
			end      string
			isActive int
			created  string
			updated  string
		)
		if err := rows.Scan(&sess.Email, &date, &start, &end, &sess.Name, &sess.EventTitle, &isActive, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}

		var err error
		if sess.EventDate, err = ref.ParseDay(date); err != nil {
			return nil, fmt.Errorf("parse event_date: %w", err)
		}
		if sess.OriginalStart, err = parseStoredTime(start, ref); err != nil {
			return nil, fmt.Errorf("parse original_start: %w", err)
		}
		if sess.OriginalEnd, err = parseStoredTime(end, ref); err != nil {
			return nil, fmt.Errorf("parse original_end: %w", err)
		}
		if sess.CreatedAt, err = parseStoredTime(created, ref); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if sess.UpdatedAt, err = parseStoredTime(updated, ref); err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
		sess.IsActive = isActive != 0
		sessions = append(sessions, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

func parseStoredTime(value string, ref *clock.Reference) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(ref.Location()), nil
}

// Compile-time interface verification.
var _ schedule.Store = (*ScheduleStore)(nil)
