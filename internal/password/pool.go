package password

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many hash computations run at once so a burst of logins
// cannot starve request dispatch of CPU.
type Pool struct {
	inner Hasher
	sem   *semaphore.Weighted
	// Observe, if set, receives the duration of each hash/verify call.
	Observe func(op string, d time.Duration)
}

// NewPool wraps h. workers <= 0 selects GOMAXPROCS.
func NewPool(h Hasher, workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{inner: h, sem: semaphore.NewWeighted(int64(workers))}
}

func (p *Pool) Algo() string { return p.inner.Algo() }

func (p *Pool) NeedsRehash(digest string) bool { return p.inner.NeedsRehash(digest) }

func (p *Pool) Hash(ctx context.Context, plaintext string) (string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer p.sem.Release(1)
	start := time.Now()
	defer p.observe("hash", start)
	return p.inner.Hash(ctx, plaintext)
}

func (p *Pool) Verify(ctx context.Context, plaintext, digest string) (bool, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer p.sem.Release(1)
	start := time.Now()
	defer p.observe("verify", start)
	return p.inner.Verify(ctx, plaintext, digest)
}

func (p *Pool) observe(op string, start time.Time) {
	if p.Observe != nil {
		p.Observe(op, time.Since(start))
	}
}
