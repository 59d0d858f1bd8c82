package sandbox

import (
	"fmt"
	"os"
	"sync"

	"github.com/oriys/lemonhost/internal/capability"
	"github.com/oriys/lemonhost/internal/metrics"
)

const (
	maxLogEntries   = 1000
	maxLogEntryBytes = 4096
	logTruncationMarker = "... (truncated)"
)

// Delegate is how the Invocation Engine reaches back out to whatever
// external caller requested the invocation: resolving secrets it does not
// itself own, and running nested tool_invoke calls.
type Delegate interface {
	SecretExists(name string) (exists bool, ok bool)
	ResolveSecret(name string) (value string, ok bool, err error)
	ToolInvoke(requestID, alias, paramsJSON string) (string, error)
}

// invocation tracks the mutable state of a single guest call: counters used
// for in-process rate limiting, the capped runtime log, and which secret
// values have been resolved into the guest's inputs and so must be redacted
// from its output.
type invocation struct {
	requestID string
	tool      string
	delegate  Delegate
	policy    *capability.Policy

	// engine is set only when this invocation was created by Engine.invoke;
	// it lets tool_invoke re-enter the engine directly for a locally
	// discovered target instead of always round-tripping through delegate.
	// newInvocation leaves it nil; with engine nil, tool_invoke always goes
	// through delegate.
	engine *Engine

	depth    int
	maxDepth int

	workspaceRoot string

	mu             sync.Mutex
	httpCount      int
	toolInvokeCount int
	execCount      int

	logs           []string
	logBytes       int
	logTruncated   bool

	resolvedSecrets []string
}

func newInvocation(requestID, tool string, policy *capability.Policy, delegate Delegate, depth, maxDepth int, workspaceRoot string) *invocation {
	return &invocation{
		requestID:     requestID,
		tool:          tool,
		delegate:      delegate,
		policy:        policy,
		depth:         depth,
		maxDepth:      maxDepth,
		workspaceRoot: workspaceRoot,
	}
}

// recordSecret appends a resolved plaintext value so it can later be
// stripped from the guest's output.
func (inv *invocation) recordSecret(value string) {
	if value == "" {
		return
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.resolvedSecrets = append(inv.resolvedSecrets, value)
}

func (inv *invocation) secretsSnapshot() []string {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := make([]string, len(inv.resolvedSecrets))
	copy(out, inv.resolvedSecrets)
	return out
}

// log appends one runtime log line, truncating an overlong line and
// dropping lines once the 1000-entry cap is hit.
func (inv *invocation) log(line string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if len(inv.logs) >= maxLogEntries {
		inv.logTruncated = true
		return
	}
	if len(line) > maxLogEntryBytes {
		line = line[:maxLogEntryBytes] + logTruncationMarker
	}
	inv.logs = append(inv.logs, line)
	inv.logBytes += len(line)
}

func (inv *invocation) logsSnapshot() []string {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := make([]string, len(inv.logs))
	copy(out, inv.logs)
	if inv.logTruncated {
		out = append(out, logTruncationMarker)
	}
	return out
}

// checkAndIncrementHTTP enforces the http rate limit, returning an error if
// it would be exceeded.
func (inv *invocation) checkAndIncrementHTTP() error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.httpCount >= inv.policy.HTTPLimit() {
		metrics.Global().RecordRateLimitRejection(inv.tool, "http")
		return rateLimited("http")
	}
	if !quotaAllow(inv.tool, "http", inv.httpHourlyLimit()) {
		metrics.Global().RecordRateLimitRejection(inv.tool, "http")
		return rateLimited("http")
	}
	inv.httpCount++
	return nil
}

func (inv *invocation) checkAndIncrementToolInvoke() error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.toolInvokeCount >= inv.policy.ToolInvokeLimit() {
		metrics.Global().RecordRateLimitRejection(inv.tool, "tool_invoke")
		return rateLimited("tool_invoke")
	}
	if !quotaAllow(inv.tool, "tool_invoke", inv.toolInvokeHourlyLimit()) {
		metrics.Global().RecordRateLimitRejection(inv.tool, "tool_invoke")
		return rateLimited("tool_invoke")
	}
	inv.toolInvokeCount++
	return nil
}

func (inv *invocation) checkAndIncrementExec() error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.execCount >= inv.policy.ExecLimit() {
		metrics.Global().RecordRateLimitRejection(inv.tool, "exec")
		return rateLimited("exec")
	}
	if !quotaAllow(inv.tool, "exec", inv.execHourlyLimit()) {
		metrics.Global().RecordRateLimitRejection(inv.tool, "exec")
		return rateLimited("exec")
	}
	inv.execCount++
	return nil
}

func (inv *invocation) httpHourlyLimit() int {
	if inv.policy.HTTP != nil {
		return inv.policy.HTTP.RateLimit.RequestsPerHour
	}
	return 0
}

func (inv *invocation) toolInvokeHourlyLimit() int {
	if inv.policy.ToolInvoke != nil {
		return inv.policy.ToolInvoke.RateLimit.RequestsPerHour
	}
	return 0
}

func (inv *invocation) execHourlyLimit() int {
	if inv.policy.Exec != nil {
		return inv.policy.Exec.RateLimit.RequestsPerHour
	}
	return 0
}

// counters is a snapshot used to populate the response's details payload.
type counters struct {
	HTTPRequests int `json:"http_requests"`
	ToolInvokes  int `json:"tool_invokes"`
	ExecCommands int `json:"exec_commands"`
}

func (inv *invocation) counters() counters {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return counters{HTTPRequests: inv.httpCount, ToolInvokes: inv.toolInvokeCount, ExecCommands: inv.execCount}
}

// resolveSecret resolves a {{SECRET:NAME}}-style placeholder name against
// the policy and delegate, recording the plaintext for later redaction.
func (inv *invocation) resolveSecret(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty secret name in placeholder")
	}
	if !inv.policy.SecretAllowed(name) {
		return "", fmt.Errorf("secret %q not permitted by capability policy", name)
	}
	if inv.delegate != nil {
		if value, ok, err := inv.delegate.ResolveSecret(name); err != nil {
			return "", err
		} else if ok && value != "" {
			inv.recordSecret(value)
			return value, nil
		}
	}
	return "", fmt.Errorf("secret %q could not be resolved", name)
}

// secretExists reports whether name resolves to a non-empty value, first
// through the delegate's own secret store and, on absence or an unavailable
// delegate, by falling back to the process environment.
func (inv *invocation) secretExists(name string) bool {
	if !inv.policy.SecretAllowed(name) {
		return false
	}
	if inv.delegate != nil {
		if exists, ok := inv.delegate.SecretExists(name); ok {
			if exists {
				return true
			}
		}
	}
	value, ok := os.LookupEnv(name)
	return ok && value != ""
}
