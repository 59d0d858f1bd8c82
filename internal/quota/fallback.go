package quota

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oriys/lemonhost/internal/logging"
)

// probeInterval is the minimum time between health probes of the primary
// backend once degraded.
const probeInterval = 5 * time.Second

// FallbackBackend wraps a primary Backend (typically Redis) with an
// in-memory local fallback, so a Redis outage degrades the sliding-window
// extension to per-process limiting instead of taking it out entirely.
type FallbackBackend struct {
	primary       Backend
	local         *LocalBackend
	degraded      atomic.Bool
	probeMu       sync.Mutex
	lastProbeTime atomic.Value
}

// NewFallbackBackend builds a Backend that falls back to an in-process
// token bucket whenever primary returns an error.
func NewFallbackBackend(primary Backend) *FallbackBackend {
	fb := &FallbackBackend{primary: primary, local: NewLocalBackend()}
	fb.lastProbeTime.Store(time.Time{})
	return fb
}

// CheckRateLimit implements Backend, transparently degrading to the local
// bucket on primary error and periodically probing for recovery.
func (f *FallbackBackend) CheckRateLimit(ctx context.Context, key string, maxTokens int, refillRate float64, requested int) (bool, int, error) {
	if f.degraded.Load() {
		if last, ok := f.lastProbeTime.Load().(time.Time); ok && time.Since(last) > probeInterval {
			go f.probeAndRecover(ctx)
		}
		return f.local.CheckRateLimit(ctx, key, maxTokens, refillRate, requested)
	}

	allowed, remaining, err := f.primary.CheckRateLimit(ctx, key, maxTokens, refillRate, requested)
	if err != nil {
		logging.Op().Warn("quota primary backend error, degrading to local", "error", err)
		f.degraded.Store(true)
		f.lastProbeTime.Store(time.Now())
		return f.local.CheckRateLimit(ctx, key, maxTokens, refillRate, requested)
	}
	return allowed, remaining, nil
}

func (f *FallbackBackend) probeAndRecover(ctx context.Context) {
	if !f.probeMu.TryLock() {
		return
	}
	defer f.probeMu.Unlock()

	f.lastProbeTime.Store(time.Now())

	_, _, err := f.primary.CheckRateLimit(ctx, "lemonhost:quota:probe:health", 1000, 1000, 0)
	if err == nil {
		logging.Op().Info("quota primary backend recovered, resuming distributed mode")
		f.degraded.Store(false)
	}
}

// Degraded reports whether the backend is currently serving from the local
// fallback.
func (f *FallbackBackend) Degraded() bool {
	return f.degraded.Load()
}
