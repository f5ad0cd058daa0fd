// Package account contains the domain types and logic for privileged admin
// accounts. Admin accounts authenticate by direct credential check and are
// never subject to a session window.
package account

import (
	"strings"
	"time"
)

// AdminAccount is a privileged identity keyed by unique email.
type AdminAccount struct {
	// Email is the unique, lowercased account identifier.
	Email string
	// Name is the display name.
	Name string
	// PasswordHash is the Argon2id hash of the password in PHC format.
	PasswordHash string
	// IsActive is false for soft-deleted accounts.
	IsActive bool
	// CreatedAt is when the account was created (reference zone).
	CreatedAt time.Time
	// UpdatedAt is when the account was last modified (reference zone).
	UpdatedAt time.Time
}

// NormalizeEmail lowercases and trims an email for use as a store key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
