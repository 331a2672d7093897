package service

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrMalformedHash is returned when a stored digest cannot be interpreted.
var ErrMalformedHash = errors.New("malformed password hash")

// PasswordHasher hashes and verifies passwords with bcrypt.
// bcrypt embeds a per-hash random salt and compares in constant time.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher returns a hasher using cost, or bcrypt.DefaultCost when cost is out of range.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash returns a salted digest of password.
func (h *PasswordHasher) Hash(password string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether password matches digest. A wrong password is (false, nil);
// only an unreadable digest produces an error.
func (h *PasswordHasher) Verify(password, digest string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
}
