package sandbox

import "fmt"

// Kind labels one of the nine error classes in §7 of the specification.
type Kind string

const (
	KindToolNotFound         Kind = "tool_not_found"
	KindInstantiation        Kind = "instantiation"
	KindExecution            Kind = "execution"
	KindPolicyDenied         Kind = "policy_denied"
	KindRateLimited          Kind = "rate_limited"
	KindDepthExceeded        Kind = "depth_exceeded"
	KindHostCallTimeout      Kind = "host_call_timeout"
	KindHostCallChannelClosed Kind = "host_call_channel_closed"
	KindProtocolError        Kind = "protocol_error"
)

// Error is a typed error carrying one of the Kind constants, so callers
// building wire responses can branch on kind instead of matching strings.
type Error struct {
	kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Kind reports which of the nine error classes this error belongs to.
func (e *Error) Kind() Kind { return e.kind }

func newErr(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func toolNotFound(name string) *Error {
	return newErr(KindToolNotFound, "tool not found: %s", name)
}

func instantiationError(msg string) *Error {
	return newErr(KindInstantiation, "%s", msg)
}

func executionError(msg string) *Error {
	return newErr(KindExecution, "%s", msg)
}

func policyDenied(msg string) *Error {
	return newErr(KindPolicyDenied, "%s", msg)
}

func rateLimited(class string) *Error {
	return newErr(KindRateLimited, "%s rate limit exceeded", class)
}

func depthExceeded(depth, max int) *Error {
	return newErr(KindDepthExceeded, "max tool invoke depth exceeded: %d > %d", depth, max)
}
