package sandbox

import (
	"encoding/json"

	"github.com/oriys/lemonhost/internal/capability"
)

// PreparedTool is a policy-bound guest ready to be invoked. The raw module
// bytes are kept (rather than a single persistent wazero.CompiledModule) so
// that every invocation — including a tool recursively invoking itself —
// gets a genuinely fresh runtime and module instance, matching §4.4's "no
// store is reused across invocations". Recompilation cost is amortized by
// the Engine's shared wazero.CompilationCache.
type PreparedTool struct {
	Name         string
	Path         string
	Description  string
	SchemaJSON   string
	Bytes        []byte
	Capabilities *capability.Policy
	Limits       ToolLimits
}

var fallbackSchema = `{"type":"object","properties":{},"required":[]}`

// ValidateSchemaJSON returns schemaJSON if it parses as a JSON object, else
// the canonical fallback schema.
func ValidateSchemaJSON(schemaJSON string) string {
	if schemaJSON == "" {
		return fallbackSchema
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(schemaJSON), &v); err != nil {
		return fallbackSchema
	}
	return schemaJSON
}

// SchemaTitle extracts the schema's "title" field, if a non-empty string.
func SchemaTitle(schemaJSON string) (string, bool) {
	var v struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(schemaJSON), &v); err != nil {
		return "", false
	}
	return v.Title, v.Title != ""
}
