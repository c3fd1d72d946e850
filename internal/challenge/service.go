// Package challenge issues and consumes single-use secrets bound to a user:
// email verification codes and password reset secrets.
//
// Each (user, purpose) pair has at most one live challenge. Generating a new
// one supersedes the previous one, and a successful verify consumes it.
package challenge

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/challenge/entity"
	challengerepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/challenge/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/password"
	userentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

var (
	ErrNotFound = errors.New("challenge not found")
	ErrExpired  = errors.New("challenge expired")
	ErrMismatch = errors.New("challenge mismatch")
)

// Users is the part of the credential store a manager depends on.
type Users interface {
	FindByID(ctx context.Context, id string) (*userentity.User, error)
	MarkVerified(ctx context.Context, id string) (*userentity.User, error)
}

// Policy parameterises a Manager for one purpose.
type Policy struct {
	Purpose   entity.Purpose
	TTL       time.Duration
	NewSecret func() (string, error)
	// OnVerified runs after the challenge is consumed and returns the user
	// handed back to the caller. Nil returns the user unchanged.
	OnVerified func(ctx context.Context, u *userentity.User) (*userentity.User, error)
}

// Issued is the result of Generate. Secret must only travel out of band.
type Issued struct {
	User      *userentity.User
	Secret    string
	ExpiresAt time.Time
}

type Manager struct {
	store  challengerepo.Store
	users  Users
	hasher password.Hasher
	policy Policy
	now    func() time.Time
}

func NewManager(store challengerepo.Store, users Users, hasher password.Hasher, policy Policy) *Manager {
	return &Manager{store: store, users: users, hasher: hasher, policy: policy, now: time.Now}
}

// NewOTPManager verifies email ownership; success marks the user verified.
func NewOTPManager(store challengerepo.Store, users Users, hasher password.Hasher, ttl time.Duration) *Manager {
	return NewManager(store, users, hasher, Policy{
		Purpose:   entity.PurposeVerifyEmail,
		TTL:       ttl,
		NewSecret: NewOTP,
		OnVerified: func(ctx context.Context, u *userentity.User) (*userentity.User, error) {
			return users.MarkVerified(ctx, u.ID)
		},
	})
}

// NewResetManager guards password resets. The caller stores the new password.
func NewResetManager(store challengerepo.Store, users Users, hasher password.Hasher, ttl time.Duration) *Manager {
	return NewManager(store, users, hasher, Policy{
		Purpose:   entity.PurposeResetPassword,
		TTL:       ttl,
		NewSecret: NewResetSecret,
	})
}

// WithClock replaces the time source; used by tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) TTL() time.Duration { return m.policy.TTL }

// Generate replaces any live challenge of the user with a fresh one and
// returns its plaintext secret.
func (m *Manager) Generate(ctx context.Context, userID string) (*Issued, error) {
	u, err := m.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	secret, err := m.policy.NewSecret()
	if err != nil {
		return nil, oops.Code("CHALLENGE_SECRET_FAILED").With("purpose", string(m.policy.Purpose)).Wrap(err)
	}
	digest, err := m.hasher.Hash(ctx, secret)
	if err != nil {
		return nil, oops.Code("CHALLENGE_HASH_FAILED").With("purpose", string(m.policy.Purpose)).Wrap(err)
	}
	now := m.now()
	c := &entity.Challenge{
		ID:        utilities.NewKSUID(),
		UserID:    u.ID,
		Purpose:   m.policy.Purpose,
		Digest:    digest,
		CreatedAt: now,
		ExpiresAt: now.Add(m.policy.TTL),
	}
	if err := m.store.Replace(ctx, c); err != nil {
		return nil, err
	}
	return &Issued{User: u, Secret: secret, ExpiresAt: c.ExpiresAt}, nil
}

// Verify consumes the live challenge when candidate matches it. A mismatch
// leaves the challenge in place; an expired one is removed.
func (m *Manager) Verify(ctx context.Context, userID, candidate string) (*userentity.User, error) {
	u, err := m.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	c, err := m.store.Get(ctx, u.ID, m.policy.Purpose)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	if c.Expired(m.now()) {
		if _, err := m.store.DeleteIfPresent(ctx, c); err != nil {
			return nil, err
		}
		return nil, ErrExpired
	}
	ok, err := m.hasher.Verify(ctx, candidate, c.Digest)
	if err != nil {
		return nil, oops.Code("CHALLENGE_VERIFY_FAILED").With("challenge_id", c.ID).Wrap(err)
	}
	if !ok {
		return nil, ErrMismatch
	}
	removed, err := m.store.DeleteIfPresent(ctx, c)
	if err != nil {
		return nil, err
	}
	if !removed {
		// consumed or superseded by a concurrent request
		return nil, ErrNotFound
	}
	if m.policy.OnVerified == nil {
		return u, nil
	}
	return m.policy.OnVerified(ctx, u)
}

// PurgeExpired deletes every challenge, of any purpose, that expired before now.
func (m *Manager) PurgeExpired(ctx context.Context) (int64, error) {
	return m.store.DeleteExpired(ctx, m.now())
}
