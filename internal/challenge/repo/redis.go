package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/challenge/entity"
)

// ExpiredRetention keeps a key alive past its challenge expiry so a late
// verify still sees the record and reports it as expired.
const ExpiredRetention = time.Hour

// compareAndDelete removes KEYS[1] only while it still holds challenge ARGV[1].
var compareAndDelete = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if v and string.find(v, ARGV[1], 1, true) then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps one JSON document per (user, purpose) key.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, prefix: "challenge"}
}

func (s *RedisStore) key(userID string, purpose entity.Purpose) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, purpose, userID)
}

// Replace overwrites the key, superseding any prior challenge.
func (s *RedisStore) Replace(ctx context.Context, c *entity.Challenge) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return oops.Code("CHALLENGE_REPLACE_FAILED").With("user_id", c.UserID).Wrap(err)
	}
	ttl := c.ExpiresAt.Sub(c.CreatedAt)
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.key(c.UserID, c.Purpose), raw, ttl+ExpiredRetention).Err(); err != nil {
		return oops.Code("CHALLENGE_REPLACE_FAILED").
			With("user_id", c.UserID).
			With("purpose", string(c.Purpose)).
			Wrap(err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, userID string, purpose entity.Purpose) (*entity.Challenge, error) {
	raw, err := s.client.Get(ctx, s.key(userID, purpose)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, oops.Code("CHALLENGE_GET_FAILED").
			With("user_id", userID).
			With("purpose", string(purpose)).
			Wrap(err)
	}
	var c entity.Challenge
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, oops.Code("CHALLENGE_DECODE_FAILED").With("user_id", userID).Wrap(err)
	}
	return &c, nil
}

func (s *RedisStore) DeleteIfPresent(ctx context.Context, c *entity.Challenge) (bool, error) {
	marker := fmt.Sprintf(`"id":%q`, c.ID)
	n, err := compareAndDelete.Run(ctx, s.client, []string{s.key(c.UserID, c.Purpose)}, marker).Int64()
	if err != nil {
		return false, oops.Code("CHALLENGE_DELETE_FAILED").With("challenge_id", c.ID).Wrap(err)
	}
	return n == 1, nil
}

// DeleteExpired is a no-op: redis evicts keys once their retention elapses.
func (s *RedisStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}
