package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/oops"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/challenge/entity"
)

// PostgresStore keeps challenges in the challenges table.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore { return &PostgresStore{db: db} }

// Replace upserts on (user_id, purpose), which supersedes any prior challenge
// in one statement.
func (s *PostgresStore) Replace(ctx context.Context, c *entity.Challenge) error {
	const q = `INSERT INTO challenges (id, user_id, purpose, digest, created_at, expires_at)
		VALUES (:id, :user_id, :purpose, :digest, :created_at, :expires_at)
		ON CONFLICT (user_id, purpose) DO UPDATE
		SET id=EXCLUDED.id, digest=EXCLUDED.digest, created_at=EXCLUDED.created_at, expires_at=EXCLUDED.expires_at`
	if _, err := s.db.NamedExecContext(ctx, q, c); err != nil {
		return oops.Code("CHALLENGE_REPLACE_FAILED").
			With("user_id", c.UserID).
			With("purpose", string(c.Purpose)).
			Wrap(err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, userID string, purpose entity.Purpose) (*entity.Challenge, error) {
	const q = `SELECT id, user_id, purpose, digest, created_at, expires_at
		FROM challenges WHERE user_id=$1 AND purpose=$2`
	var c entity.Challenge
	if err := s.db.GetContext(ctx, &c, q, userID, purpose); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, oops.Code("CHALLENGE_GET_FAILED").
			With("user_id", userID).
			With("purpose", string(purpose)).
			Wrap(err)
	}
	return &c, nil
}

func (s *PostgresStore) DeleteIfPresent(ctx context.Context, c *entity.Challenge) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM challenges WHERE id=$1`, c.ID)
	if err != nil {
		return false, oops.Code("CHALLENGE_DELETE_FAILED").With("challenge_id", c.ID).Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, oops.Code("CHALLENGE_DELETE_FAILED").With("challenge_id", c.ID).Wrap(err)
	}
	return n == 1, nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM challenges WHERE expires_at < $1`, before)
	if err != nil {
		return 0, oops.Code("CHALLENGE_PURGE_FAILED").Wrap(err)
	}
	return res.RowsAffected()
}
