package password

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argon2DefaultTime    = 1
	argon2DefaultMemory  = 64 * 1024
	argon2DefaultThreads = 4
	argon2SaltLen        = 16
	argon2KeyLen         = 32
)

// Argon2id produces PHC-formatted digests:
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
type Argon2id struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

func (a Argon2id) params() (uint32, uint32, uint8) {
	t, m, p := a.Time, a.Memory, a.Threads
	if t == 0 {
		t = argon2DefaultTime
	}
	if m == 0 {
		m = argon2DefaultMemory
	}
	if p == 0 {
		p = argon2DefaultThreads
	}
	return t, m, p
}

func (a Argon2id) Algo() string { return AlgoArgon2id }

func (a Argon2id) Hash(_ context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("argon2id salt: %w", err)
	}
	t, m, p := a.params()
	key := argon2.IDKey([]byte(plaintext), salt, t, m, p, argon2KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, m, t, p,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (a Argon2id) Verify(_ context.Context, plaintext, digest string) (bool, error) {
	return verifyDigest(plaintext, digest)
}

// NeedsRehash reports digests from another algorithm or with weaker parameters.
func (a Argon2id) NeedsRehash(digest string) bool {
	p, err := parseArgon2id(digest)
	if err != nil {
		return true
	}
	t, m, threads := a.params()
	return p.time < t || p.memory < m || p.threads < threads
}

type argon2Digest struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

func parseArgon2id(digest string) (*argon2Digest, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, ErrHashFormat
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, ErrHashFormat
	}
	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return nil, ErrHashFormat
	}
	if threads == 0 || threads > 255 || time == 0 {
		return nil, ErrHashFormat
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, ErrHashFormat
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 || len(key) > 1024 {
		return nil, ErrHashFormat
	}
	return &argon2Digest{memory: memory, time: time, threads: uint8(threads), salt: salt, key: key}, nil
}

func verifyArgon2id(plaintext, digest string) (bool, error) {
	p, err := parseArgon2id(digest)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(plaintext), p.salt, p.time, p.memory, p.threads, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(computed, p.key) == 1, nil
}
