package sandbox

import (
	"testing"

	"github.com/oriys/lemonhost/internal/quota"
)

func TestQuotaAllowNoopWhenUnwired(t *testing.T) {
	SetQuotaLimiter(nil)
	if !quotaAllow("tool", "http", 1000) {
		t.Fatal("expected allow with no limiter wired")
	}
}

func TestQuotaAllowNoopWithoutHourlyCap(t *testing.T) {
	SetQuotaLimiter(quota.New(quota.NewLocalBackend()))
	defer SetQuotaLimiter(nil)

	if !quotaAllow("tool", "http", 0) {
		t.Fatal("expected allow when the policy sets no hourly cap")
	}
}

func TestQuotaAllowEnforcesHourlyBudget(t *testing.T) {
	SetQuotaLimiter(quota.New(quota.NewLocalBackend()))
	defer SetQuotaLimiter(nil)

	if !quotaAllow("tool", "exec", 1) {
		t.Fatal("expected the first request within a 1/hour budget to be allowed")
	}
	if quotaAllow("tool", "exec", 1) {
		t.Fatal("expected the second immediate request to exceed a 1/hour budget")
	}
}
