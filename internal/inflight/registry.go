// Package inflight keeps correlation tokens unique while their jobs are
// outstanding. A token is reserved before dispatch and released when the
// request completes; the TTL frees tokens whose holder died.
package inflight

import (
	"context"
	"sync"
	"time"
)

type Registry interface {
	// Reserve claims token for ttl. It returns false when the token is
	// already held.
	Reserve(ctx context.Context, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, token string) error
}

// MemoryRegistry is a process-local Registry. Use the Redis one when several
// instances share a reply channel.
type MemoryRegistry struct {
	mu     sync.Mutex
	tokens map[string]time.Time
	now    func() time.Time
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		tokens: make(map[string]time.Time),
		now:    time.Now,
	}
}

func (r *MemoryRegistry) Reserve(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if expires, ok := r.tokens[token]; ok && now.Before(expires) {
		return false, nil
	}
	r.tokens[token] = now.Add(ttl)
	r.sweep(now)
	return true, nil
}

func (r *MemoryRegistry) Release(ctx context.Context, token string) error {
	r.mu.Lock()
	delete(r.tokens, token)
	r.mu.Unlock()
	return nil
}

// sweep drops expired tokens. Must be called with r.mu held.
func (r *MemoryRegistry) sweep(now time.Time) {
	for token, expires := range r.tokens {
		if !now.Before(expires) {
			delete(r.tokens, token)
		}
	}
}
