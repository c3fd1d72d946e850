package password

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Bcrypt implementation.
type Bcrypt struct{ Cost int }

func (b Bcrypt) cost() int {
	if b.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return b.Cost
}

func (b Bcrypt) Algo() string { return AlgoBcrypt }

func (b Bcrypt) Hash(_ context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), b.cost())
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(h), nil
}

func (b Bcrypt) Verify(_ context.Context, plaintext, digest string) (bool, error) {
	return verifyDigest(plaintext, digest)
}

// NeedsRehash reports digests from another algorithm or a lower cost.
func (b Bcrypt) NeedsRehash(digest string) bool {
	if !isBcryptDigest(digest) {
		return true
	}
	c, err := bcrypt.Cost([]byte(digest))
	if err != nil {
		return true
	}
	return c < b.cost()
}

func isBcryptDigest(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") || strings.HasPrefix(digest, "$2b$") || strings.HasPrefix(digest, "$2y$")
}

func verifyBcrypt(plaintext, digest string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrHashFormat, err)
	}
}
