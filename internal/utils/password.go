package utils

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrWeakPassword rejects passwords bcrypt cannot or should not hash.
var ErrWeakPassword = errors.New("password must be 8 to 72 bytes")

// HashPassword returns a bcrypt hash.  Costs outside bcrypt's range are
// clamped.
func HashPassword(plain string, cost int) (string, error) {
	if len(plain) < 8 || len(plain) > 72 {
		return "", ErrWeakPassword
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword compares a bcrypt hash with a plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
