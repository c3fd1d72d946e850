package entity

import "time"

// Purpose tags the flow a challenge belongs to.
type Purpose string

const (
	PurposeVerifyEmail   Purpose = "verify-email"
	PurposeResetPassword Purpose = "reset-password"
)

// Challenge is one outstanding single-use secret. Only the digest is stored.
type Challenge struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Purpose   Purpose   `db:"purpose" json:"purpose"`
	Digest    string    `db:"digest" json:"digest"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
}

// Expired reports whether the challenge is past its validity window at now.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
