// Package noncecache provides the replay-guard backends for the signed
// request protocol. A consumed (userHash, nonce) pair is remembered for the
// signature validity window; seeing it again means a captured request is
// being replayed.
//
// The memory backend is sufficient for a single instance. Deployments that
// scale out use the redis backend so all instances share one consumed set.
package noncecache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ─── Memory Backend ─────────────────────────────────────────────────────────

// Memory is an in-process replay guard: a mutex-guarded map of consumed
// nonces with lazy expiry.
type Memory struct {
	mu    sync.Mutex
	seen  map[string]time.Time // key → expiry
	now   func() time.Time
	sweep int
}

// NewMemory creates an in-memory replay guard.
func NewMemory() *Memory {
	return &Memory{seen: make(map[string]time.Time), now: time.Now}
}

// Remember records key for ttl. Returns false when the key is already
// present and unexpired.
func (m *Memory) Remember(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if exp, ok := m.seen[key]; ok && exp.After(now) {
		return false, nil
	}
	m.seen[key] = now.Add(ttl)

	// Amortized expiry: sweep the whole map every 1024 inserts.
	m.sweep++
	if m.sweep >= 1024 {
		m.sweep = 0
		for k, exp := range m.seen {
			if !exp.After(now) {
				delete(m.seen, k)
			}
		}
	}
	return true, nil
}

// Len returns the number of tracked nonces (expired entries included until
// the next sweep).
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

// ─── Redis Backend ──────────────────────────────────────────────────────────

const redisKeyPrefix = "creditd:nonce:"

// Redis is a shared replay guard on top of SET NX with TTL — the write and
// the existence check are one atomic command, so two instances racing on
// the same nonce resolve to exactly one winner.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a redis-backed replay guard.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Remember records key for ttl. Returns false when the key already exists.
func (r *Redis) Remember(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, redisKeyPrefix+key, 1, ttl).Result()
}
