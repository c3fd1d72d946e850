// Package password hashes and verifies secrets (account passwords, OTP codes
// and reset tokens). Digests are salted and self-describing, so a digest
// produced under one algorithm stays verifiable after the configured
// algorithm changes.
package password

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	AlgoBcrypt   = "bcrypt"
	AlgoArgon2id = "argon2id"
)

var (
	// ErrHashFormat means a stored digest could not be parsed. It indicates
	// data corruption, never bad user input.
	ErrHashFormat    = errors.New("malformed password digest")
	ErrEmptyPassword = errors.New("password cannot be empty")
)

// Hasher defines the hashing contract shared by passwords and challenge secrets.
type Hasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	// Verify returns (false, nil) on mismatch and ErrHashFormat on a bad digest.
	Verify(ctx context.Context, plaintext, digest string) (bool, error)
	NeedsRehash(digest string) bool
	Algo() string
}

// New builds the configured hasher. cost is the bcrypt cost or the argon2id
// time parameter; zero selects the algorithm default.
func New(algo string, cost int) (Hasher, error) {
	switch strings.ToLower(algo) {
	case "", AlgoBcrypt:
		return Bcrypt{Cost: cost}, nil
	case AlgoArgon2id:
		return Argon2id{Time: uint32(cost)}, nil
	default:
		return nil, fmt.Errorf("unsupported password hash algorithm %q", algo)
	}
}

// verifyDigest dispatches on the digest prefix.
func verifyDigest(plaintext, digest string) (bool, error) {
	switch {
	case isBcryptDigest(digest):
		return verifyBcrypt(plaintext, digest)
	case strings.HasPrefix(digest, "$argon2id$"):
		return verifyArgon2id(plaintext, digest)
	default:
		return false, ErrHashFormat
	}
}
