// Package auth implements the PasswordHasher port (spec §6: optional
// HTTP Basic Auth on the WebSocket upgrade) using bcrypt, grounded on
// _examples/original_source/src/auth/password.rs.
package auth

import "golang.org/x/crypto/bcrypt"

// BcryptHasher implements ports.PasswordHasher.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher builds a BcryptHasher. cost <= 0 falls back to
// bcrypt.DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash produces a bcrypt hash for storage alongside a charge point's
// credentials.
func (h *BcryptHasher) Hash(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether plain matches hash. It never returns an error to
// the caller: any mismatch, including a malformed hash, is a failed
// verification.
func (h *BcryptHasher) Verify(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
