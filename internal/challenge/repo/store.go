package repo

import (
	"context"
	"time"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/challenge/entity"
)

// Store persists at most one challenge per (user, purpose).
//
// Get returns (nil, nil) when nothing is stored. DeleteIfPresent removes the
// given challenge only while it is still the stored one and reports whether
// it did; callers rely on that to consume a challenge exactly once.
type Store interface {
	Replace(ctx context.Context, c *entity.Challenge) error
	Get(ctx context.Context, userID string, purpose entity.Purpose) (*entity.Challenge, error)
	DeleteIfPresent(ctx context.Context, c *entity.Challenge) (bool, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
