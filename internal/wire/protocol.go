// Package wire defines the JSON payload shapes exchanged with the sidecar
// and a line-delimited stdio transport for them. The transport itself is a
// thin collaborator; the payload shapes are the contract.
package wire

import "encoding/json"

// DiscoverDefaults are the runtime defaults a discover request may rebind.
type DiscoverDefaults struct {
	DefaultMemoryLimit  int64  `json:"default_memory_limit"`
	DefaultTimeoutMs    int64  `json:"default_timeout_ms"`
	DefaultFuelLimit    int64  `json:"default_fuel_limit"`
	CacheCompiled       bool   `json:"cache_compiled"`
	CacheDir            string `json:"cache_dir,omitempty"`
	MaxToolInvokeDepth  int    `json:"max_tool_invoke_depth"`
}

// DefaultDiscoverDefaults mirrors the process-wide runtime defaults in §3.
func DefaultDiscoverDefaults() DiscoverDefaults {
	return DiscoverDefaults{
		DefaultMemoryLimit: 10 << 20,
		DefaultTimeoutMs:   60_000,
		DefaultFuelLimit:   10_000_000,
		CacheCompiled:      true,
		MaxToolInvokeDepth: 4,
	}
}

// Request is the tagged union of every inbound message. Exactly the fields
// relevant to Type are populated; DecodeRequest (below) only unmarshals, and
// the daemon's main loop dispatches on Type.
type Request struct {
	Type string `json:"type"`

	ID string `json:"id"`

	// hello
	Version int `json:"version,omitempty"`

	// discover
	Paths    []string         `json:"paths,omitempty"`
	Defaults DiscoverDefaults `json:"defaults,omitempty"`

	// invoke
	Tool        string `json:"tool,omitempty"`
	ParamsJSON  string `json:"params_json,omitempty"`
	ContextJSON string `json:"context_json,omitempty"`

	// host_call_result
	CallID     string `json:"call_id,omitempty"`
	OK         bool   `json:"ok,omitempty"`
	OutputJSON string `json:"output_json,omitempty"`
	Error      string `json:"error,omitempty"`
}

const (
	TypeHello           = "hello"
	TypeDiscover        = "discover"
	TypeInvoke          = "invoke"
	TypeHostCallResult  = "host_call_result"
	TypeShutdown        = "shutdown"
)

// DecodeRequest parses one line of inbound JSON into a Request.
func DecodeRequest(line []byte) (Request, error) {
	var r Request
	err := json.Unmarshal(line, &r)
	return r, err
}

// DiscoveredTool is one entry in a discover response's catalogue.
type DiscoveredTool struct {
	Name        string          `json:"name"`
	Path        string          `json:"path"`
	Description string          `json:"description"`
	SchemaJSON  string          `json:"schema_json"`
	Capabilities json.RawMessage `json:"capabilities"`
	Auth        json.RawMessage `json:"auth,omitempty"`
	Warnings    []string        `json:"warnings,omitempty"`
}

// DiscoverResult is the response payload for a discover request.
type DiscoverResult struct {
	Tools    []DiscoveredTool `json:"tools"`
	Warnings []string         `json:"warnings"`
	Errors   []string         `json:"errors"`
}

// RuntimeLog is one entry in an invocation's append-only log buffer.
type RuntimeLog struct {
	Level          string `json:"level"`
	Message        string `json:"message"`
	TimestampMillis int64  `json:"timestamp_millis"`
}

// InvokeResult is the response payload for an invoke request.
type InvokeResult struct {
	OutputJSON *string         `json:"output_json,omitempty"`
	Error      *string         `json:"error,omitempty"`
	Logs       []RuntimeLog    `json:"logs"`
	Details    json.RawMessage `json:"details"`
}

// Response is an outbound response to a request carrying the same id.
type Response struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// OutboundEvent is the host_call notification emitted mid-invocation.
type OutboundEvent struct {
	Type       string `json:"type"`
	Event      string `json:"event"`
	RequestID  string `json:"request_id"`
	CallID     string `json:"call_id"`
	Tool       string `json:"tool"`
	ParamsJSON string `json:"params_json"`
}

// NewResponse marshals result into a successful Response for id.
func NewResponse(id string, result any) (Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return Response{}, err
	}
	return Response{Type: "response", ID: id, OK: true, Result: raw}, nil
}

// NewErrorResponse builds a failed Response for id.
func NewErrorResponse(id, errMsg string) Response {
	return Response{Type: "response", ID: id, OK: false, Error: errMsg}
}
