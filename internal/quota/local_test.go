package quota

import (
	"context"
	"testing"
)

func TestLocalBackendAllowsWithinBudget(t *testing.T) {
	backend := NewLocalBackend()
	for i := 0; i < 3; i++ {
		allowed, _, err := backend.CheckRateLimit(context.Background(), "k", 3, 0, 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !allowed {
			t.Fatalf("expected request %d to be allowed", i)
		}
	}
}

func TestLocalBackendDeniesOverBudget(t *testing.T) {
	backend := NewLocalBackend()
	for i := 0; i < 2; i++ {
		backend.CheckRateLimit(context.Background(), "k", 2, 0, 1)
	}
	allowed, _, err := backend.CheckRateLimit(context.Background(), "k", 2, 0, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatal("expected third request to be denied with zero refill rate")
	}
}

func TestLimiterAllowDelegatesToBackend(t *testing.T) {
	limiter := New(NewLocalBackend())
	decision, err := limiter.Allow(context.Background(), "key", 1, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("expected first request to be allowed")
	}
	decision, err = limiter.Allow(context.Background(), "key", 1, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected second request to be denied")
	}
}

func TestKeyForToolFormatsScopedKey(t *testing.T) {
	if got := KeyForTool("weather", "http"); got != "lemonhost:quota:weather:http" {
		t.Fatalf("unexpected key: %s", got)
	}
}
