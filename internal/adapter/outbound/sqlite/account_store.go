package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mapwarden/mapwarden/internal/clock"
	"github.com/mapwarden/mapwarden/internal/domain/account"
)

// AccountStore implements account.AccountStore on SQLite.
type AccountStore struct {
	db  *DB
	ref *clock.Reference
}

// NewAccountStore creates an account store over a connected DB.
func NewAccountStore(db *DB, ref *clock.Reference) *AccountStore {
	return &AccountStore{db: db, ref: ref}
}

// GetByEmail retrieves an account by normalized email.
func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*account.AdminAccount, error) {
	var (
		acct     account.AdminAccount
		isActive int
		created  string
		updated  string
	)
	err := s.db.db.QueryRowContext(ctx, `
		SELECT email, name, password_hash, is_active, created_at, updated_at
		FROM admin_accounts
		WHERE email = ?
	`, account.NormalizeEmail(email)).Scan(
		&acct.Email,
		&acct.Name,
		&acct.PasswordHash,
		&isActive,
		&created,
		&updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, account.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	if acct.CreatedAt, err = parseStoredTime(created, s.ref); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if acct.UpdatedAt, err = parseStoredTime(updated, s.ref); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	acct.IsActive = isActive != 0
	return &acct, nil
}

// Create stores a new account.
func (s *AccountStore) Create(ctx context.Context, acct *account.AdminAccount) error {
	now := s.ref.Now().Format(time.RFC3339)
	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO admin_accounts (email, name, password_hash, is_active, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
	`,
		account.NormalizeEmail(acct.Email),
		acct.Name,
		acct.PasswordHash,
		now,
		now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return account.ErrDuplicateEmail
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// Delete removes an account by normalized email.
func (s *AccountStore) Delete(ctx context.Context, email string) error {
	result, err := s.db.db.ExecContext(ctx, `
		DELETE FROM admin_accounts WHERE email = ?
	`, account.NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return account.ErrAccountNotFound
	}
	return nil
}

// Compile-time interface verification.
var _ account.AccountStore = (*AccountStore)(nil)
