package domain

import (
	"context"
	"time"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// ReplayGuard remembers consumed (userHash, nonce) pairs for the signature
// validity window. Remember returns false when the key was already seen —
// the request is a replay and must be rejected.
type ReplayGuard interface {
	Remember(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RateLimiter is the advisory request throttle. It is best-effort only and
// must never be relied on for correctness: in-process state is reset-prone
// on restart and not shared on scale-out.
type RateLimiter interface {
	Allow(key string) bool
}
