package entity

import "time"

// User represents an account row in the `users` table.
type User struct {
	ID                string     `db:"id"`
	Email             string     `db:"email"`
	Name              string     `db:"name"`
	PasswordHash      string     `db:"password_hash"`
	PasswordAlgo      string     `db:"password_algo"`
	PasswordUpdatedAt *time.Time `db:"password_updated_at"`
	IsVerified        bool       `db:"is_verified"`
	IsAdmin           bool       `db:"is_admin"`
	// Version is bumped on password change; sessions carry it as their epoch.
	Version   int64     `db:"version"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// PublicUser is the client-safe projection of a User. It has no secret fields.
type PublicUser struct {
	ID         string `json:"_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	IsVerified bool   `json:"isVerified"`
	IsAdmin    bool   `json:"isAdmin"`
}

// Sanitize projects u for the outside world.
func Sanitize(u *User) PublicUser {
	return PublicUser{
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		IsVerified: u.IsVerified,
		IsAdmin:    u.IsAdmin,
	}
}
