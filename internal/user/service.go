package user

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/samber/oops"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/password"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrDuplicateEmail = errors.New("user already exists")
)

// Repository is the persistence contract of the credential store.
type Repository interface {
	Create(ctx context.Context, u *entity.User) error
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	GetByID(ctx context.Context, id string) (*entity.User, error)
	UpdatePassword(ctx context.Context, id, hash, algo string, bumpVersion bool) (*entity.User, error)
	MarkVerified(ctx context.Context, id string) (*entity.User, error)
}

var _ Repository = (*userrepo.UserRepo)(nil)

// UserService owns User records: creation, lookup and credential mutation.
type UserService struct {
	repo   Repository
	hasher password.Hasher
	newID  func() string
}

func NewUserService(r Repository, hasher password.Hasher) *UserService {
	return &UserService{repo: r, hasher: hasher, newID: utilities.NewSnowflakeID}
}

// NormalizeEmail applies the case-insensitive email policy.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create hashes the password and inserts a new, unverified user.
func (s *UserService) Create(ctx context.Context, email, plaintext, name string) (*entity.User, error) {
	digest, err := s.hasher.Hash(ctx, plaintext)
	if err != nil {
		return nil, oops.Code("USER_HASH_FAILED").Wrap(err)
	}
	u := &entity.User{
		ID:           s.newID(),
		Email:        NormalizeEmail(email),
		Name:         strings.TrimSpace(name),
		PasswordHash: digest,
		PasswordAlgo: s.hasher.Algo(),
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, userrepo.ErrUniqueViolation) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return u, nil
}

func (s *UserService) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	return notFound(s.repo.GetByEmail(ctx, NormalizeEmail(email)))
}

func (s *UserService) FindByID(ctx context.Context, id string) (*entity.User, error) {
	if id == "" {
		return nil, ErrUserNotFound
	}
	return notFound(s.repo.GetByID(ctx, id))
}

// SetPasswordDigest stores an already-hashed password and starts a new session epoch.
func (s *UserService) SetPasswordDigest(ctx context.Context, id, digest, algo string) (*entity.User, error) {
	return notFound(s.repo.UpdatePassword(ctx, id, digest, algo, true))
}

// MarkVerified flips isVerified to true. Idempotent.
func (s *UserService) MarkVerified(ctx context.Context, id string) (*entity.User, error) {
	return notFound(s.repo.MarkVerified(ctx, id))
}

// Rehash replaces an outdated digest after a successful login without
// touching the session epoch. Failures are reported but never block login.
func (s *UserService) Rehash(ctx context.Context, u *entity.User, plaintext string) error {
	if !s.hasher.NeedsRehash(u.PasswordHash) {
		return nil
	}
	digest, err := s.hasher.Hash(ctx, plaintext)
	if err != nil {
		return oops.Code("USER_REHASH_FAILED").With("user_id", u.ID).Wrap(err)
	}
	_, err = s.repo.UpdatePassword(ctx, u.ID, digest, s.hasher.Algo(), false)
	return err
}

func notFound(u *entity.User, err error) (*entity.User, error) {
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}
