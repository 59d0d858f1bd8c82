package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"

	"github.com/oriys/lemonhost/internal/metrics"
	"github.com/oriys/lemonhost/internal/observability"
)

// Engine holds every prepared tool and the shared compilation cache every
// per-invocation wazero.Runtime is built against, so that recompiling a
// tool's bytes on each call (required to give every invocation, including a
// self-recursive one, a genuinely fresh store) stays cheap.
type Engine struct {
	cache wazero.CompilationCache

	mu    sync.RWMutex
	tools map[string]*PreparedTool
}

// NewEngine builds an empty Engine ready to receive prepared tools from
// discovery.
func NewEngine() *Engine {
	return &Engine{cache: wazero.NewCompilationCache(), tools: make(map[string]*PreparedTool)}
}

// Register makes a prepared tool available to Invoke.
func (e *Engine) Register(tool *PreparedTool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tools[tool.Name] = tool
}

// Lookup returns a previously registered tool.
func (e *Engine) Lookup(name string) (*PreparedTool, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tools[name]
	return t, ok
}

// Close releases the shared compilation cache.
func (e *Engine) Close(ctx context.Context) error {
	return e.cache.Close(ctx)
}

// Cache exposes the shared compilation cache so discovery's metadata probe
// instantiation reuses it instead of recompiling every artifact twice.
func (e *Engine) Cache() wazero.CompilationCache {
	return e.cache
}

// InvokeResult is the outcome of one guest execution.
type InvokeResult struct {
	OutputJSON string
	Logs       []string
	Details    json.RawMessage
}

type invokeDetails struct {
	Tool     string   `json:"tool"`
	Path     string   `json:"path"`
	Depth    int      `json:"depth"`
	Counters counters `json:"counters"`
}

// Invoke runs tool's execute() against paramsJSON, at the given nesting
// depth, per the seven-step algorithm in §4.4: tool lookup, depth check,
// fresh store construction with the tool's resource limits, host module and
// guest instantiation, the execute() call itself, and error-kind mapping.
func (e *Engine) Invoke(ctx context.Context, requestID, name, paramsJSON, contextJSON string, depth int, delegate Delegate, workspaceRoot string) (InvokeResult, error) {
	ctx, span := observability.StartServerSpan(ctx, "sandbox.Invoke",
		observability.AttrToolName.String(name),
		observability.AttrRequestID.String(requestID),
		observability.AttrInvokeDepth.Int(depth),
	)
	defer span.End()

	start := time.Now()
	result, err := e.invoke(ctx, requestID, name, paramsJSON, contextJSON, depth, delegate, workspaceRoot)
	metrics.Global().RecordInvocation(name, time.Since(start).Milliseconds(), err == nil)
	if err != nil {
		observability.SetSpanError(span, err)
	} else {
		observability.SetSpanOK(span)
	}
	return result, err
}

func (e *Engine) invoke(ctx context.Context, requestID, name, paramsJSON, contextJSON string, depth int, delegate Delegate, workspaceRoot string) (InvokeResult, error) {
	tool, ok := e.Lookup(name)
	if !ok {
		return InvokeResult{}, toolNotFound(name)
	}
	if depth > tool.Limits.MaxDepth {
		return InvokeResult{}, depthExceeded(depth, tool.Limits.MaxDepth)
	}

	inv := newInvocation(requestID, name, tool.Capabilities, delegate, depth, tool.Limits.MaxDepth, workspaceRoot)
	inv.engine = e

	rtConfig := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(MemoryPages(tool.Limits.MemoryBytes)).
		WithCloseOnContextDone(true).
		WithCompilationCache(e.cache)

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	defer rt.Close(ctx)

	httpClient := newHTTPClient()
	execRunner := newExecRunner()

	hostBuilder, err := buildHostModule(rt, inv, httpClient, execRunner)
	if err != nil {
		return InvokeResult{}, instantiationError(err.Error())
	}
	if _, err := hostBuilder.Instantiate(ctx); err != nil {
		return InvokeResult{}, instantiationError(fmt.Sprintf("instantiate host module: %s", err.Error()))
	}

	deadlineCtx, cancel := context.WithTimeout(ctx, effectiveDeadline(tool.Limits))
	defer cancel()

	guestModule, err := rt.InstantiateWithConfig(deadlineCtx, tool.Bytes, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return InvokeResult{}, instantiationError(err.Error())
	}
	defer guestModule.Close(ctx)

	envelope := buildExecuteEnvelope(paramsJSON, contextJSON)
	reqPtr, err := writeGuestString(deadlineCtx, guestModule, envelope)
	if err != nil {
		return InvokeResult{}, instantiationError(err.Error())
	}

	executeFn := guestModule.ExportedFunction("execute")
	if executeFn == nil {
		return InvokeResult{}, instantiationError("guest does not export execute()")
	}

	results, err := executeFn.Call(deadlineCtx, uint64(reqPtr), uint64(len(envelope)))
	if err != nil {
		return InvokeResult{}, mapExecutionError(err)
	}
	if len(results) == 0 {
		return InvokeResult{}, executionError("execute() returned no results")
	}

	ptr, length := unpack(results[0])
	outputJSON, err := readGuestString(guestModule, ptr, length)
	if err != nil {
		return InvokeResult{}, executionError(err.Error())
	}

	detailsJSON, _ := json.Marshal(invokeDetails{Tool: tool.Name, Path: tool.Path, Depth: depth, Counters: inv.counters()})

	return InvokeResult{
		OutputJSON: outputJSON,
		Logs:       inv.logsSnapshot(),
		Details:    detailsJSON,
	}, nil
}

// buildExecuteEnvelope combines the caller's params and context into the
// single JSON string the guest's execute(reqPtr, reqLen) export receives,
// since the packed-pointer ABI passes one string, not two.
func buildExecuteEnvelope(paramsJSON, contextJSON string) string {
	if contextJSON == "" {
		contextJSON = "{}"
	}
	if paramsJSON == "" {
		paramsJSON = "{}"
	}
	return fmt.Sprintf(`{"params":%s,"context":%s}`, paramsJSON, contextJSON)
}

// effectiveDeadline is the tighter of the configured wall-clock timeout and
// the fuel budget's derived timeout (see the Invocation Engine's design note
// on fuel — the chosen guest runtime has no native instruction-metering
// primitive, so fuel is mapped onto a stricter wall-clock budget instead).
func effectiveDeadline(limits ToolLimits) time.Duration {
	configured := time.Duration(limits.TimeoutMs) * time.Millisecond
	fuelDerived := FuelTimeout(limits.Fuel)
	if fuelDerived > 0 && fuelDerived < configured {
		return fuelDerived
	}
	return configured
}

// mapExecutionError classifies a wazero execution error into one of the
// three outcomes §4.4 distinguishes: fuel exhaustion, epoch/deadline
// timeout, or a plain execution failure.
func mapExecutionError(err error) *Error {
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "fuel"):
		return newErr(KindExecution, "fuel exhausted: %s", msg)
	case strings.Contains(lower, "epoch") || strings.Contains(lower, "deadline") || strings.Contains(lower, "context deadline exceeded"):
		return newErr(KindExecution, "execution timed out: %s", msg)
	default:
		return executionError(msg)
	}
}
