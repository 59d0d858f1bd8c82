package sandbox

import (
	"context"

	"github.com/oriys/lemonhost/internal/quota"
)

// globalQuota, when wired by the process entry point, layers the opt-in
// sliding-window extension on top of the hard per-invocation counters
// checkAndIncrement* always enforce. Nil means the extension is not
// deployed; every invocation still gets the hard per-call limits regardless.
var globalQuota *quota.Limiter

// SetQuotaLimiter wires the opt-in rate-limit extension into every
// subsequent invocation's http/tool_invoke/exec checks.
func SetQuotaLimiter(l *quota.Limiter) {
	globalQuota = l
}

// quotaAllow checks the shared requests-per-hour budget for tool/class, if
// the extension is deployed and the tool's policy sets an hourly cap.
// Absent either, it reports allowed with no side effects.
func quotaAllow(tool, class string, requestsPerHour int) bool {
	if globalQuota == nil || requestsPerHour <= 0 {
		return true
	}
	decision, err := globalQuota.Allow(context.Background(), quota.KeyForTool(tool, class), requestsPerHour, float64(requestsPerHour)/3600.0)
	if err != nil {
		return true
	}
	return decision.Allowed
}
