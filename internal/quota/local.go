package quota

import (
	"context"
	"math"
	"sync"
	"time"
)

// LocalBackend implements Backend with an in-process token bucket per key,
// used standalone in single-process deployments or as the degraded fallback
// FallbackBackend switches to when Redis is unreachable.
type LocalBackend struct {
	mu      sync.Mutex
	buckets map[string]*localBucket
}

type localBucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewLocalBackend builds an empty in-process Backend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{buckets: make(map[string]*localBucket)}
}

// CheckRateLimit refills key's bucket by elapsed time and debits requested
// tokens if available.
func (l *LocalBackend) CheckRateLimit(_ context.Context, key string, maxTokens int, refillRate float64, requested int) (bool, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[key]
	if !ok {
		b = &localBucket{tokens: float64(maxTokens), lastRefill: now}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(float64(maxTokens), b.tokens+elapsed*refillRate)
		b.lastRefill = now
	}

	if b.tokens >= float64(requested) {
		b.tokens -= float64(requested)
		return true, int(b.tokens), nil
	}
	return false, int(b.tokens), nil
}
