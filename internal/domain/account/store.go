package account

import (
	"context"
	"errors"
)

// Sentinel errors for account store operations.
var (
	// ErrAccountNotFound is returned when no account exists for an email.
	ErrAccountNotFound = errors.New("admin account not found")
	// ErrDuplicateEmail is returned when creating an account whose email is taken.
	ErrDuplicateEmail = errors.New("admin email already exists")
)

// AccountStore provides admin account persistence.
// This interface is defined in the domain to avoid circular imports.
// Implementations: SQLite (prod), in-memory (dev/test).
type AccountStore interface {
	// GetByEmail retrieves an account by normalized email.
	// Returns ErrAccountNotFound if the account doesn't exist.
	GetByEmail(ctx context.Context, email string) (*AdminAccount, error)

	// Create stores a new account.
	// Returns ErrDuplicateEmail if the email is already taken.
	Create(ctx context.Context, acct *AdminAccount) error

	// Delete removes an account by normalized email.
	// Returns ErrAccountNotFound if the account doesn't exist.
	Delete(ctx context.Context, email string) error
}
