// Package ratelimit throttles proof-gated attempts per caller with fixed windows.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const defaultWindow = time.Minute

// Decision is the outcome of one attempt against a window.
type Decision struct {
	Allowed   bool
	Count     int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts attempts per key.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int) Decision
}

// InMemoryLimiter keeps fixed-window counters in process memory.
type InMemoryLimiter struct {
	mu     sync.Mutex
	window time.Duration
	clock  func() time.Time
	items  map[string]windowEntry
}

type windowEntry struct {
	count   int
	resetAt time.Time
}

// NewInMemory constructs an InMemoryLimiter. A non-positive window defaults to one minute.
func NewInMemory(window time.Duration, clock func() time.Time) *InMemoryLimiter {
	if window <= 0 {
		window = defaultWindow
	}
	if clock == nil {
		clock = time.Now
	}
	return &InMemoryLimiter{
		window: window,
		clock:  clock,
		items:  make(map[string]windowEntry),
	}
}

// Allow counts one attempt for key.
func (l *InMemoryLimiter) Allow(_ context.Context, key string, limit int) Decision {
	if limit <= 0 {
		limit = 1
	}
	now := l.clock().UTC()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evictExpired(now)

	current, ok := l.items[key]
	if !ok || !now.Before(current.resetAt) {
		current = windowEntry{resetAt: now.Add(l.window)}
	}
	current.count++
	l.items[key] = current
	return decide(current.count, limit, current.resetAt)
}

func (l *InMemoryLimiter) evictExpired(now time.Time) {
	for key, value := range l.items {
		if !now.Before(value.resetAt) {
			delete(l.items, key)
		}
	}
}

func decide(count, limit int, resetAt time.Time) Decision {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= limit,
		Count:     count,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
