package sandbox

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/oriys/lemonhost/internal/metrics"
)

type toolInvokeRequest struct {
	Alias      string `json:"alias"`
	ParamsJSON string `json:"params_json"`
}

// toolInvoke handles a guest's delegated call to another tool by alias. The
// alias-to-tool-name resolution happens here, against the calling tool's own
// policy, before the delegate (the Engine, for a nested invocation, or the
// external caller, for a call requiring a fresh suspend/resume round trip)
// ever sees a concrete tool name.
func toolInvoke(ctx context.Context, inv *invocation, reqJSON string) string {
	start := time.Now()
	out := toolInvokeUnmetered(ctx, inv, reqJSON)
	metrics.Global().RecordHostCall("tool_invoke", float64(time.Since(start).Milliseconds()), strings.Contains(out, `"ok":true`))
	return out
}

func toolInvokeUnmetered(ctx context.Context, inv *invocation, reqJSON string) string {
	var req toolInvokeRequest
	if err := json.Unmarshal([]byte(reqJSON), &req); err != nil {
		return errorEnvelopeString("invalid tool_invoke request: " + err.Error())
	}

	target, ok := inv.policy.ResolveToolAlias(req.Alias)
	if !ok {
		return errorEnvelopeString("tool alias not permitted: " + req.Alias)
	}

	if err := inv.checkAndIncrementToolInvoke(); err != nil {
		return errorEnvelopeString(err.Error())
	}

	if inv.depth+1 > inv.maxDepth {
		return errorEnvelopeString(depthExceeded(inv.depth+1, inv.maxDepth).Error())
	}

	if inv.engine != nil {
		if _, ok := inv.engine.Lookup(target); ok {
			result, err := inv.engine.invoke(ctx, inv.requestID, target, req.ParamsJSON, "{}", inv.depth+1, inv.delegate, inv.workspaceRoot)
			if err != nil {
				return errorEnvelopeString(err.Error())
			}
			return okEnvelope(json.RawMessage(result.OutputJSON))
		}
	}

	if inv.delegate == nil {
		return errorEnvelopeString("tool_invoke capability not wired")
	}

	outputJSON, err := inv.delegate.ToolInvoke(inv.requestID, target, req.ParamsJSON)
	if err != nil {
		return errorEnvelopeString(err.Error())
	}
	return okEnvelope(json.RawMessage(outputJSON))
}
