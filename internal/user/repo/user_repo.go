package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/oops"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

// ErrUniqueViolation is returned by Create when the email is already taken.
var ErrUniqueViolation = errors.New("unique constraint violated")

const userColumns = `id, email, name, password_hash, password_algo, password_updated_at,
		is_verified, is_admin, version, created_at, updated_at`

// UserRepo provides data access for users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new user row. Uniqueness of email is enforced by the
// uq_users_email index, so concurrent signups cannot both succeed.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	const q = `INSERT INTO users (id, email, name, password_hash, password_algo, password_updated_at, is_verified, is_admin)
		  VALUES (:id, :email, :name, :password_hash, :password_algo, NOW(), :is_verified, :is_admin)
		  RETURNING version, created_at, updated_at`
	rows, err := r.db.NamedQueryContext(ctx, q, u)
	if err != nil {
		return r.insertError(err, u)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&u.Version, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return oops.Code("USER_CREATE_FAILED").With("user_id", u.ID).Wrap(err)
		}
		return nil
	}
	if err := rows.Err(); err != nil {
		return r.insertError(err, u)
	}
	return oops.Code("USER_CREATE_FAILED").With("user_id", u.ID).Errorf("no row returned")
}

func (r *UserRepo) insertError(err error, u *entity.User) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgerrcode.UniqueViolation {
		return ErrUniqueViolation
	}
	return oops.Code("USER_CREATE_FAILED").With("user_id", u.ID).Wrap(err)
}

// GetByEmail returns a user matched by email (case-insensitive due to citext) or sql.ErrNoRows.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE email=$1`
	return r.get(ctx, "USER_GET_BY_EMAIL_FAILED", q, email)
}

// GetByID fetches a full user row or sql.ErrNoRows.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return r.get(ctx, "USER_GET_BY_ID_FAILED", q, id)
}

// UpdatePassword stores a new digest and optionally bumps version, which
// invalidates sessions that carry the previous epoch.
func (r *UserRepo) UpdatePassword(ctx context.Context, id, hash, algo string, bumpVersion bool) (*entity.User, error) {
	if bumpVersion {
		const q = `UPDATE users SET password_hash=$2, password_algo=$3, password_updated_at=NOW(), version=version+1, updated_at=NOW()
			WHERE id=$1 RETURNING ` + userColumns
		return r.get(ctx, "USER_UPDATE_PASSWORD_FAILED", q, id, hash, algo)
	}
	const q = `UPDATE users SET password_hash=$2, password_algo=$3, password_updated_at=NOW(), updated_at=NOW()
		WHERE id=$1 RETURNING ` + userColumns
	return r.get(ctx, "USER_UPDATE_PASSWORD_FAILED", q, id, hash, algo)
}

// MarkVerified sets is_verified. Idempotent.
func (r *UserRepo) MarkVerified(ctx context.Context, id string) (*entity.User, error) {
	const q = `UPDATE users SET is_verified=true, updated_at=NOW() WHERE id=$1 RETURNING ` + userColumns
	return r.get(ctx, "USER_MARK_VERIFIED_FAILED", q, id)
}

func (r *UserRepo) get(ctx context.Context, code, q string, args ...any) (*entity.User, error) {
	var row entity.User
	if err := r.db.GetContext(ctx, &row, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, oops.Code(code).Wrap(err)
	}
	return &row, nil
}
