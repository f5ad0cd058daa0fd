package schedule

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for schedule store operations.
var (
	// ErrSessionNotFound is returned when no session matches a key.
	ErrSessionNotFound = errors.New("scheduled session not found")
	// ErrSyncBatch is returned when a sync batch could not be applied.
	// The store is left untouched: existing sessions remain authoritative
	// until the next successful sync.
	ErrSyncBatch = errors.New("sync batch failed")
)

// UpsertOutcome describes what an upsert did.
type UpsertOutcome int

const (
	// UpsertUnchanged means an identical record already existed (no-op,
	// UpdatedAt untouched).
	UpsertUnchanged UpsertOutcome = iota
	// UpsertInserted means a new record was created.
	UpsertInserted
	// UpsertUpdated means an existing record's mutable fields differed and
	// were updated in place, bumping UpdatedAt.
	UpsertUpdated
)

// Store provides scheduled session persistence.
// This interface is defined in the domain to avoid circular imports.
// Implementations: SQLite (prod), in-memory (dev/test).
type Store interface {
	// Upsert inserts or updates a session matched by its composite key.
	// Mutable fields are Name, EventTitle and IsActive; an upsert always
	// reactivates the record (the upstream event exists again).
	Upsert(ctx context.Context, sess *ScheduledSession) (UpsertOutcome, error)

	// DeactivateMissing deactivates every active record on the given day
	// whose composite key is absent from present. Returns the number of
	// records deactivated.
	DeactivateMissing(ctx context.Context, day time.Time, present map[Key]struct{}) (int, error)

	// PruneBefore deactivates every record whose event date is strictly
	// before the given day. Returns the number of records deactivated.
	PruneBefore(ctx context.Context, day time.Time) (int, error)

	// FindByEmail returns all sessions for a normalized email, active and
	// inactive, in event date order.
	FindByEmail(ctx context.Context, email string) ([]*ScheduledSession, error)

	// InTransaction runs fn against a transactional view of the store.
	// Either every write fn performs is applied, or none is; concurrent
	// readers never observe a partially-applied batch.
	InTransaction(ctx context.Context, fn func(tx Store) error) error
}
