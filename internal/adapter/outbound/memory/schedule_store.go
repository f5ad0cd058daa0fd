// Package memory provides in-memory implementations of outbound ports.
// Thread-safe for concurrent access. For development and testing.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mapwarden/mapwarden/internal/clock"
	"github.com/mapwarden/mapwarden/internal/domain/schedule"
)

// ScheduleStore implements schedule.Store with an in-memory map keyed by the
// session composite key.
type ScheduleStore struct {
	mu       sync.RWMutex
	sessions map[schedule.Key]*schedule.ScheduledSession
	now      func() time.Time
}

// NewScheduleStore creates an empty in-memory schedule store.
func NewScheduleStore() *ScheduleStore {
	return NewScheduleStoreAt(time.Now)
}

// NewScheduleStoreAt creates a store with an injected time source, used by
// tests to make CreatedAt/UpdatedAt deterministic.
func NewScheduleStoreAt(now func() time.Time) *ScheduleStore {
	return &ScheduleStore{
		sessions: make(map[schedule.Key]*schedule.ScheduledSession),
		now:      now,
	}
}

// Upsert inserts or updates a session matched by its composite key.
func (s *ScheduleStore) Upsert(ctx context.Context, sess *schedule.ScheduledSession) (schedule.UpsertOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(sess), nil
}

func (s *ScheduleStore) upsertLocked(sess *schedule.ScheduledSession) schedule.UpsertOutcome {
	key := sess.Key()
	existing, ok := s.sessions[key]
	if !ok {
		stored := copySession(sess)
		stored.IsActive = true
		stored.CreatedAt = s.now()
		stored.UpdatedAt = stored.CreatedAt
		s.sessions[key] = stored
		return schedule.UpsertInserted
	}

	if existing.Name == sess.Name && existing.EventTitle == sess.EventTitle && existing.IsActive {
		return schedule.UpsertUnchanged
	}

	existing.Name = sess.Name
	existing.EventTitle = sess.EventTitle
	existing.IsActive = true
	existing.UpdatedAt = s.now()
	return schedule.UpsertUpdated
}

// DeactivateMissing deactivates active records on the given day whose key is
// absent from present.
func (s *ScheduleStore) DeactivateMissing(ctx context.Context, day time.Time, present map[schedule.Key]struct{}) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deactivateMissingLocked(day, present), nil
}

func (s *ScheduleStore) deactivateMissingLocked(day time.Time, present map[schedule.Key]struct{}) int {
	date := clock.Day(day).Format("2006-01-02")
	n := 0
	for key, sess := range s.sessions {
		if !sess.IsActive || key.EventDate != date {
			continue
		}
		if _, ok := present[key]; ok {
			continue
		}
		sess.IsActive = false
		sess.UpdatedAt = s.now()
		n++
	}
	return n
}

// PruneBefore deactivates every record dated strictly before day.
func (s *ScheduleStore) PruneBefore(ctx context.Context, day time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneBeforeLocked(day), nil
}

func (s *ScheduleStore) pruneBeforeLocked(day time.Time) int {
	cutoff := clock.Day(day)
	n := 0
	for _, sess := range s.sessions {
		if sess.IsActive && sess.EventDate.Before(cutoff) {
			sess.IsActive = false
			sess.UpdatedAt = s.now()
			n++
		}
	}
	return n
}

// FindByEmail returns copies of all sessions for an email in event date order.
func (s *ScheduleStore) FindByEmail(ctx context.Context, email string) ([]*schedule.ScheduledSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findByEmailLocked(email), nil
}

func (s *ScheduleStore) findByEmailLocked(email string) []*schedule.ScheduledSession {
	var result []*schedule.ScheduledSession
	for key, sess := range s.sessions {
		if key.Email == email {
			result = append(result, copySession(sess))
		}
	}
	// Stable order: event date, then start.
	for i := 1; i < len(result); i++ {
		for j := i; j > 0 && result[j].OriginalStart.Before(result[j-1].OriginalStart); j-- {
			result[j], result[j-1] = result[j-1], result[j]
		}
	}
	return result
}

// InTransaction runs fn against a locked view of the store. On error the
// pre-transaction state is restored, so readers never observe a partial batch.
func (s *ScheduleStore) InTransaction(ctx context.Context, fn func(tx schedule.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[schedule.Key]*schedule.ScheduledSession, len(s.sessions))
	for k, v := range s.sessions {
		snapshot[k] = copySession(v)
	}

	if err := fn(&scheduleTx{store: s}); err != nil {
		s.sessions = snapshot
		return err
	}
	return nil
}

// Get returns a copy of the session with the given key, for tests and fixtures.
func (s *ScheduleStore) Get(key schedule.Key) (*schedule.ScheduledSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[key]
	if !ok {
		return nil, false
	}
	return copySession(sess), true
}

// ForceExpire deactivates the session with the given key. Test fixture for
// exercising the deactivation paths; not part of the schedule.Store contract.
func (s *ScheduleStore) ForceExpire(key schedule.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return false
	}
	sess.IsActive = false
	sess.UpdatedAt = s.now()
	return true
}

// Size returns the number of stored records, active and inactive.
func (s *ScheduleStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// scheduleTx is the in-transaction view: the outer store's lock is already
// held, so operations run on the raw map without locking again.
type scheduleTx struct {
	store *ScheduleStore
}

func (t *scheduleTx) Upsert(ctx context.Context, sess *schedule.ScheduledSession) (schedule.UpsertOutcome, error) {
	return t.store.upsertLocked(sess), nil
}

func (t *scheduleTx) DeactivateMissing(ctx context.Context, day time.Time, present map[schedule.Key]struct{}) (int, error) {
	return t.store.deactivateMissingLocked(day, present), nil
}

func (t *scheduleTx) PruneBefore(ctx context.Context, day time.Time) (int, error) {
	return t.store.pruneBeforeLocked(day), nil
}

func (t *scheduleTx) FindByEmail(ctx context.Context, email string) ([]*schedule.ScheduledSession, error) {
	return t.store.findByEmailLocked(email), nil
}

func (t *scheduleTx) InTransaction(ctx context.Context, fn func(tx schedule.Store) error) error {
	// Already inside a transaction.
	return fn(t)
}

func copySession(sess *schedule.ScheduledSession) *schedule.ScheduledSession {
	c := *sess
	return &c
}

// Compile-time interface verification.
var (
	_ schedule.Store = (*ScheduleStore)(nil)
	_ schedule.Store = (*scheduleTx)(nil)
)
