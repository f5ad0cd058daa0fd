package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mapwarden/mapwarden/internal/domain/account"
)

// AccountStore implements account.AccountStore with an in-memory map keyed
// by normalized email.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]*account.AdminAccount
	now      func() time.Time
}

// NewAccountStore creates an empty in-memory account store.
func NewAccountStore() *AccountStore {
	return NewAccountStoreAt(time.Now)
}

// NewAccountStoreAt creates a store with an injected time source for tests.
func NewAccountStoreAt(now func() time.Time) *AccountStore {
	return &AccountStore{
		accounts: make(map[string]*account.AdminAccount),
		now:      now,
	}
}

// GetByEmail retrieves an account by normalized email.
func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*account.AdminAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[account.NormalizeEmail(email)]
	if !ok {
		return nil, account.ErrAccountNotFound
	}
	c := *acct
	return &c, nil
}

// Create stores a new account.
func (s *AccountStore) Create(ctx context.Context, acct *account.AdminAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := account.NormalizeEmail(acct.Email)
	if _, ok := s.accounts[email]; ok {
		return account.ErrDuplicateEmail
	}

	stored := *acct
	stored.Email = email
	stored.IsActive = true
	stored.CreatedAt = s.now()
	stored.UpdatedAt = stored.CreatedAt
	s.accounts[email] = &stored
	return nil
}

// Delete removes an account by normalized email.
func (s *AccountStore) Delete(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := account.NormalizeEmail(email)
	if _, ok := s.accounts[key]; !ok {
		return account.ErrAccountNotFound
	}
	delete(s.accounts, key)
	return nil
}

// Compile-time interface verification.
var _ account.AccountStore = (*AccountStore)(nil)
