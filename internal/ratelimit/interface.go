package ratelimit

import (
	"context"
	"time"

	"github.com/aman-churiwal/edge-gateway/internal/storage"
)

// Store is the atomic window primitive the limiter needs from the shared store.
type Store interface {
	IncrWindow(ctx context.Context, key string, limit int64, window, grace time.Duration, now time.Time) (storage.Counter, error)
}

// Decision is the outcome of one admission check.
type Decision struct {
	Admitted bool

	// Enforced is false when no counter was consulted: bypass, unknown
	// identity, or store failure. No rate-limit headers are emitted then.
	Enforced bool

	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Policy binds a scope to a (limit, window) pair for one route.
type Policy struct {
	Scope  Scope
	Limit  int
	Window time.Duration
}
