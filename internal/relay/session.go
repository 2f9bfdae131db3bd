package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// PromptGate limits the router to at most one auto-reply per webhook
// session, preventing prompt loops between two automated responders.
// Sessions are identified by the sid cookie the webhook server issues.
type PromptGate interface {
	// Allow reports whether the session may still send an auto-reply,
	// and consumes the allowance when it does.
	Allow(ctx context.Context, sid string) (bool, error)
}

// RedisGate is a PromptGate backed by Redis INCR with a TTL, so session
// state expires with the session and survives process restarts.
type RedisGate struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisGateOpts holds parameters for creating a RedisGate.
type RedisGateOpts struct {
	Client *redis.Client
	TTL    time.Duration // session lifetime; defaults to 30 minutes
}

// NewRedisGate creates a RedisGate.
func NewRedisGate(opts RedisGateOpts) (*RedisGate, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("relay: redis gate: client is required")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisGate{client: opts.Client, ttl: ttl}, nil
}

// Allow increments the session counter and permits the reply only when
// this call was the first.
func (g *RedisGate) Allow(ctx context.Context, sid string) (bool, error) {
	key := "relay:prompts:" + sid
	n, err := g.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("relay: prompt gate incr: %w", err)
	}
	if n == 1 {
		// First use creates the key; bound its lifetime to the session.
		if err := g.client.Expire(ctx, key, g.ttl).Err(); err != nil {
			return false, fmt.Errorf("relay: prompt gate expire: %w", err)
		}
	}
	return n == 1, nil
}

// MemoryGate is an in-process PromptGate used in tests and in deployments
// without Redis. Same TTL semantics, no cross-process sharing.
type MemoryGate struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	seen  map[string]time.Time
	sweep time.Time
}

// NewMemoryGate creates a MemoryGate with the given session TTL.
func NewMemoryGate(ttl time.Duration) *MemoryGate {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &MemoryGate{
		ttl:  ttl,
		now:  time.Now,
		seen: make(map[string]time.Time),
	}
}

// Allow permits the first reply per sid within the TTL window.
func (g *MemoryGate) Allow(ctx context.Context, sid string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	// Opportunistic sweep of expired sessions, at most once per TTL.
	if now.Sub(g.sweep) > g.ttl {
		for k, at := range g.seen {
			if now.Sub(at) > g.ttl {
				delete(g.seen, k)
			}
		}
		g.sweep = now
	}

	if at, ok := g.seen[sid]; ok && now.Sub(at) <= g.ttl {
		return false, nil
	}
	g.seen[sid] = now
	return true, nil
}
