package repo

import (
	"context"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/challenge/entity"
)

type memKey struct {
	userID  string
	purpose entity.Purpose
}

// MemoryStore is a process-local Store for development and tests.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[memKey]entity.Challenge
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[memKey]entity.Challenge)}
}

func (s *MemoryStore) Replace(_ context.Context, c *entity.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[memKey{c.UserID, c.Purpose}] = *c
	return nil
}

func (s *MemoryStore) Get(_ context.Context, userID string, purpose entity.Purpose) (*entity.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[memKey{userID, purpose}]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *MemoryStore) DeleteIfPresent(_ context.Context, c *entity.Challenge) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memKey{c.UserID, c.Purpose}
	cur, ok := s.rows[k]
	if !ok || cur.ID != c.ID {
		return false, nil
	}
	delete(s.rows, k)
	return true, nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, c := range s.rows {
		if c.ExpiresAt.Before(before) {
			delete(s.rows, k)
			n++
		}
	}
	return n, nil
}

// Len reports how many challenges are stored.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}
