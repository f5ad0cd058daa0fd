package account

import (
	"fmt"

	"github.com/alexedwards/argon2id"
)

// hashParams defines OWASP minimum parameters for Argon2id.
// Memory: 47 MiB, Iterations: 1, Parallelism: 1
var hashParams = &argon2id.Params{
	Memory:      47 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashPassword returns an Argon2id hash of the password in PHC format.
// Format: $argon2id$v=19$m=48128,t=1,p=1$<salt>$<hash>
func HashPassword(password string) (string, error) {
	return argon2id.CreateHash(password, hashParams)
}

// VerifyPassword verifies a password against a stored Argon2id hash.
// Returns (true, nil) on match and (false, nil) on mismatch.
func VerifyPassword(password, storedHash string) (bool, error) {
	return safeCompare(password, storedHash)
}

// safeCompare wraps argon2id.ComparePasswordAndHash with panic recovery.
// The underlying argon2 library panics on malformed hashes with invalid
// parameters (e.g. t=0 rounds). This converts those panics to errors so
// VerifyPassword never panics on attacker-supplied or corrupted hashes.
func safeCompare(password, storedHash string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid argon2id hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(password, storedHash)
}
