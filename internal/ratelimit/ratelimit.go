package ratelimit

import (
	"sync"
	"time"
)

// LimitFunc returns the bucket shape (capacity, refill tokens/second) for an
// operation kind.
type LimitFunc func(operation string) (capacity, refillRate float64)

type key struct {
	tenant    string
	operation string
}

// bucket tracks token state for one (tenant, operation) pair. Each bucket has
// its own lock so tenants never contend with each other.
type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	capacity   float64
	refillRate float64
}

// Limiter implements per-tenant, per-operation token buckets. Admission never
// blocks: a denied call reports how long until one token is available and the
// caller decides whether to wait.
type Limiter struct {
	mu       sync.RWMutex // guards the buckets map only
	buckets  map[key]*bucket
	limitFor LimitFunc
	now      func() time.Time // injectable clock for testing
}

// New creates a Limiter. Buckets are created lazily on first admission and
// start full.
func New(limitFor LimitFunc) *Limiter {
	return &Limiter{
		buckets:  make(map[key]*bucket),
		limitFor: limitFor,
		now:      time.Now,
	}
}

func (l *Limiter) bucketFor(k key) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[k]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.buckets[k]; ok {
		return b
	}
	capacity, refillRate := l.limitFor(k.operation)
	b = &bucket{
		tokens:     capacity,
		lastRefill: l.now(),
		capacity:   capacity,
		refillRate: refillRate,
	}
	l.buckets[k] = b
	return b
}

// refill adds tokens based on elapsed time. Must be called with b.mu held.
func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

// Admit consumes one token for (tenant, operation) if available. When denied
// it returns the wait until one token will have accumulated. A token consumed
// here is spent even if the caller later abandons the call.
func (l *Limiter) Admit(tenant, operation string) (ok bool, retryAfter time.Duration) {
	b := l.bucketFor(key{tenant: tenant, operation: operation})

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(l.now())

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}

	deficit := 1 - b.tokens
	return false, time.Duration(deficit / b.refillRate * float64(time.Second))
}
