// Package capability implements the declarative, side-effect-free policy
// model that gates every function the host surface exposes to a guest.
package capability

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
)

const (
	defaultHTTPRateLimit       = 50
	defaultToolInvokeRateLimit = 20
	defaultExecRateLimit       = 10

	defaultMaxRequestBytes  = 1 << 20  // 1 MiB
	defaultMaxResponseBytes = 10 << 20 // 10 MiB
	defaultHTTPTimeoutSecs  = 30
	defaultExecTimeoutSecs  = 30
)

// RateLimit configures a per-minute and per-hour request budget. Only
// requests_per_minute is consulted by the core; requests_per_hour is carried
// through for callers that layer a sliding-window limiter on top (see
// internal/quota).
type RateLimit struct {
	RequestsPerMinute int `json:"requests_per_minute,omitempty"`
	RequestsPerHour   int `json:"requests_per_hour,omitempty"`
}

// EndpointPattern describes one allowed HTTP destination.
type EndpointPattern struct {
	Host       string   `json:"host"`
	PathPrefix string   `json:"path_prefix,omitempty"`
	Methods    []string `json:"methods,omitempty"`
}

// CredentialLocation is a tagged union over where an HTTP credential is
// injected. Exactly the fields relevant to Type are populated.
type CredentialLocation struct {
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
}

const (
	LocationBearer     = "bearer"
	LocationBasic      = "basic"
	LocationHeader     = "header"
	LocationQueryParam = "query_param"
	LocationURLPath    = "url_path"
)

// CredentialMapping binds a secret to an HTTP credential location, scoped to
// a set of host patterns (empty means "every host this tool may reach").
type CredentialMapping struct {
	SecretName   string             `json:"secret_name"`
	Location     CredentialLocation `json:"location"`
	HostPatterns []string           `json:"host_patterns,omitempty"`
}

// HTTPCapability is the `http` policy section.
type HTTPCapability struct {
	Allowlist        []EndpointPattern            `json:"allowlist,omitempty"`
	Credentials      map[string]CredentialMapping `json:"credentials,omitempty"`
	RateLimit        RateLimit                    `json:"rate_limit,omitempty"`
	MaxRequestBytes  int64                        `json:"max_request_bytes,omitempty"`
	MaxResponseBytes int64                        `json:"max_response_bytes,omitempty"`
	TimeoutSecs      int                          `json:"timeout_secs,omitempty"`
}

// SecretsCapability is the `secrets` policy section.
type SecretsCapability struct {
	AllowedNames []string `json:"allowed_names,omitempty"`
}

// ToolInvokeCapability is the `tool_invoke` policy section.
type ToolInvokeCapability struct {
	Aliases   map[string]string `json:"aliases,omitempty"`
	RateLimit RateLimit         `json:"rate_limit,omitempty"`
}

// WorkspaceCapability is the `workspace` policy section.
type WorkspaceCapability struct {
	AllowedPrefixes []string `json:"allowed_prefixes,omitempty"`
}

// OAuthConfig describes an OAuth flow a guest advertises for its own
// credential; the core never drives this flow itself.
type OAuthConfig struct {
	AuthorizationURL  string            `json:"authorization_url"`
	TokenURL          string            `json:"token_url"`
	ClientID          string            `json:"client_id,omitempty"`
	ClientIDEnv       string            `json:"client_id_env,omitempty"`
	ClientSecret      string            `json:"client_secret,omitempty"`
	ClientSecretEnv   string            `json:"client_secret_env,omitempty"`
	Scopes            []string          `json:"scopes,omitempty"`
	UsePKCE           *bool             `json:"use_pkce,omitempty"`
	ExtraParams       map[string]string `json:"extra_params,omitempty"`
	AccessTokenField  string            `json:"access_token_field,omitempty"`
}

func (o OAuthConfig) usePKCE() bool {
	if o.UsePKCE == nil {
		return true
	}
	return *o.UsePKCE
}

func (o OAuthConfig) accessTokenField() string {
	if o.AccessTokenField == "" {
		return "access_token"
	}
	return o.AccessTokenField
}

// ValidationEndpoint describes how a guest's advertised credential can be
// checked for validity; informational only.
type ValidationEndpoint struct {
	URL           string `json:"url"`
	Method        string `json:"method,omitempty"`
	SuccessStatus int    `json:"success_status,omitempty"`
}

func (v ValidationEndpoint) method() string {
	if v.Method == "" {
		return "GET"
	}
	return v.Method
}

func (v ValidationEndpoint) successStatus() int {
	if v.SuccessStatus == 0 {
		return 200
	}
	return v.SuccessStatus
}

// AuthCapability is the `auth` policy section: catalogue-only metadata.
type AuthCapability struct {
	SecretName         string              `json:"secret_name"`
	DisplayName        string              `json:"display_name,omitempty"`
	OAuth              *OAuthConfig        `json:"oauth,omitempty"`
	Instructions       string              `json:"instructions,omitempty"`
	SetupURL           string              `json:"setup_url,omitempty"`
	TokenHint          string              `json:"token_hint,omitempty"`
	EnvVar             string              `json:"env_var,omitempty"`
	Provider           string              `json:"provider,omitempty"`
	ValidationEndpoint *ValidationEndpoint `json:"validation_endpoint,omitempty"`
}

// ExecCredentialInjection is a tagged union over how a secret is spliced
// into a subprocess invocation.
type ExecCredentialInjection struct {
	Type         string `json:"type"`
	Flag         string `json:"flag,omitempty"`
	Var          string `json:"var,omitempty"`
	PathTemplate string `json:"path_template,omitempty"`
}

const (
	ExecInjectArg  = "arg"
	ExecInjectEnv  = "env"
	ExecInjectFile = "file"
)

// ExecCredentialMapping binds a secret to an exec credential injection.
type ExecCredentialMapping struct {
	SecretName string                  `json:"secret_name"`
	Injection  ExecCredentialInjection `json:"injection"`
}

// ExecAllowlistEntry gates one program a guest may spawn.
type ExecAllowlistEntry struct {
	Program           string   `json:"program"`
	AllowedSubcommands []string `json:"allowed_subcommands,omitempty"`
	BlockedFlags      []string `json:"blocked_flags,omitempty"`
}

// ExecCapability is the `exec` policy section.
type ExecCapability struct {
	Allowlist   []ExecAllowlistEntry             `json:"allowlist,omitempty"`
	Credentials map[string]ExecCredentialMapping `json:"credentials,omitempty"`
	RateLimit   RateLimit                        `json:"rate_limit,omitempty"`
	TimeoutSecs int                               `json:"timeout_secs,omitempty"`
}

// Policy is the parsed `<tool>.capabilities.json` document. Every section is
// optional; its absence denies the whole class of action it would have
// granted.
type Policy struct {
	HTTP        *HTTPCapability       `json:"http,omitempty"`
	Secrets     *SecretsCapability    `json:"secrets,omitempty"`
	ToolInvoke  *ToolInvokeCapability `json:"tool_invoke,omitempty"`
	Workspace   *WorkspaceCapability  `json:"workspace,omitempty"`
	Auth        *AuthCapability       `json:"auth,omitempty"`
	Exec        *ExecCapability       `json:"exec,omitempty"`
}

// Empty is the policy granted to a tool with no capability file: every
// section absent, every action denied.
func Empty() *Policy { return &Policy{} }

// FromJSONFile loads a policy document from disk. A missing file is returned
// as the os.ReadFile error; callers that want "missing means empty policy"
// semantics check os.IsNotExist themselves (see internal/discovery).
func FromJSONFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse capabilities file %s: %w", path, err)
	}
	return &p, nil
}

// Summary reports which capability classes are enabled, for the discovery
// catalogue.
type Summary struct {
	WorkspaceRead bool `json:"workspace_read"`
	HTTP          bool `json:"http"`
	ToolInvoke    bool `json:"tool_invoke"`
	Secrets       bool `json:"secrets"`
	Auth          bool `json:"auth"`
	Exec          bool `json:"exec"`
}

// Summarize reports which capability classes this policy grants.
func (p *Policy) Summarize() Summary {
	return Summary{
		WorkspaceRead: p.Workspace != nil,
		HTTP:          p.HTTP != nil,
		ToolInvoke:    p.ToolInvoke != nil,
		Secrets:       p.Secrets != nil,
		Auth:          p.Auth != nil,
		Exec:          p.Exec != nil,
	}
}

// HostMatches implements the same host-matching rule as the allowlist check,
// exported so credential-scoping callers (internal/sandbox's HTTP client) can
// reuse it without duplicating the wildcard semantics.
func HostMatches(host, pattern string) bool {
	return hostMatchesPattern(host, pattern)
}

// hostMatchesPattern implements the spec's host-matching rule: exact
// ASCII-case-insensitive equality, or a `*.suffix` wildcard matching strict
// subdomains only (the bare suffix itself is not a match).
func hostMatchesPattern(host, pattern string) bool {
	host = strings.ToLower(host)
	pattern = strings.ToLower(pattern)
	if strings.HasPrefix(pattern, "*.") {
		suffix := pattern[2:]
		if host == suffix {
			return false
		}
		return strings.HasSuffix(host, "."+suffix)
	}
	return host == pattern
}

// matchPattern implements the secrets/exec-style matcher: exact equality or
// a `prefix*` suffix wildcard. No infix wildcards are recognized.
func matchPattern(pattern, value string) bool {
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(value, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == value
}

// SecretAllowed reports whether the secrets section permits a given secret
// name.
func (p *Policy) SecretAllowed(name string) bool {
	if p.Secrets == nil {
		return false
	}
	for _, pattern := range p.Secrets.AllowedNames {
		if matchPattern(pattern, name) {
			return true
		}
	}
	return false
}

// WorkspaceReadAllowed is the first-stage path check described in §4.1: it
// rejects structurally dangerous paths outright, then checks the
// allowed-prefix list. Callers MUST still canonicalize and verify
// containment under the real workspace root before opening the file.
func (p *Policy) WorkspaceReadAllowed(path string) bool {
	if path == "" || strings.HasPrefix(path, "/") || strings.Contains(path, "..") || strings.ContainsRune(path, 0) {
		return false
	}
	if p.Workspace == nil {
		return false
	}
	if len(p.Workspace.AllowedPrefixes) == 0 {
		return true
	}
	for _, prefix := range p.Workspace.AllowedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// ResolveToolAlias maps a guest-visible alias to a concrete tool name.
func (p *Policy) ResolveToolAlias(alias string) (string, bool) {
	if p.ToolInvoke == nil {
		return "", false
	}
	target, ok := p.ToolInvoke.Aliases[alias]
	return target, ok
}

// ToolInvokeLimit returns the per-minute tool-invoke rate limit.
func (p *Policy) ToolInvokeLimit() int {
	if p.ToolInvoke != nil && p.ToolInvoke.RateLimit.RequestsPerMinute > 0 {
		return p.ToolInvoke.RateLimit.RequestsPerMinute
	}
	return defaultToolInvokeRateLimit
}

// HTTPLimit returns the per-minute HTTP rate limit.
func (p *Policy) HTTPLimit() int {
	if p.HTTP != nil && p.HTTP.RateLimit.RequestsPerMinute > 0 {
		return p.HTTP.RateLimit.RequestsPerMinute
	}
	return defaultHTTPRateLimit
}

// ExecLimit returns the per-minute exec rate limit.
func (p *Policy) ExecLimit() int {
	if p.Exec != nil && p.Exec.RateLimit.RequestsPerMinute > 0 {
		return p.Exec.RateLimit.RequestsPerMinute
	}
	return defaultExecRateLimit
}

// HTTPMaxRequestBytes returns the configured request body ceiling.
func (p *Policy) HTTPMaxRequestBytes() int64 {
	if p.HTTP != nil && p.HTTP.MaxRequestBytes > 0 {
		return p.HTTP.MaxRequestBytes
	}
	return defaultMaxRequestBytes
}

// HTTPMaxResponseBytes returns the configured response body ceiling.
func (p *Policy) HTTPMaxResponseBytes() int64 {
	if p.HTTP != nil && p.HTTP.MaxResponseBytes > 0 {
		return p.HTTP.MaxResponseBytes
	}
	return defaultMaxResponseBytes
}

// HTTPTimeoutSecs returns the configured per-request timeout.
func (p *Policy) HTTPTimeoutSecs() int {
	if p.HTTP != nil && p.HTTP.TimeoutSecs > 0 {
		return p.HTTP.TimeoutSecs
	}
	return defaultHTTPTimeoutSecs
}

// ExecTimeoutSecs returns the configured per-command timeout.
func (p *Policy) ExecTimeoutSecs() int {
	if p.Exec != nil && p.Exec.TimeoutSecs > 0 {
		return p.Exec.TimeoutSecs
	}
	return defaultExecTimeoutSecs
}

// HTTPAllowed implements the §4.1 HTTP gating rule.
func (p *Policy) HTTPAllowed(method, rawURL string) bool {
	if p.HTTP == nil {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	method = strings.ToUpper(method)
	for _, entry := range p.HTTP.Allowlist {
		if !hostMatchesPattern(u.Hostname(), entry.Host) {
			continue
		}
		if entry.PathPrefix != "" && !strings.HasPrefix(u.Path, entry.PathPrefix) {
			continue
		}
		if len(entry.Methods) > 0 && !containsFold(entry.Methods, method) {
			continue
		}
		return true
	}
	return false
}

func containsFold(list []string, target string) bool {
	for _, item := range list {
		if strings.EqualFold(item, target) {
			return true
		}
	}
	return false
}

// ExecDecision is the structured result of an exec gating check.
type ExecDecision struct {
	Allowed bool
	Reason  string
}

// ExecAllowed implements the §4.1 exec gating rule.
func (p *Policy) ExecAllowed(program string, args []string) ExecDecision {
	if p.Exec == nil {
		return ExecDecision{Reason: "exec capability not granted"}
	}
	var entry *ExecAllowlistEntry
	for i := range p.Exec.Allowlist {
		if p.Exec.Allowlist[i].Program == program {
			entry = &p.Exec.Allowlist[i]
			break
		}
	}
	if entry == nil {
		return ExecDecision{Reason: fmt.Sprintf("program '%s' not in exec allowlist", program)}
	}
	subcommand := ""
	if len(args) > 0 {
		subcommand = args[0]
	}
	if len(entry.AllowedSubcommands) > 0 && !contains(entry.AllowedSubcommands, subcommand) {
		return ExecDecision{Reason: fmt.Sprintf("subcommand '%s' not allowed for program '%s'", subcommand, program)}
	}
	for _, arg := range args {
		if contains(entry.BlockedFlags, arg) {
			return ExecDecision{Reason: fmt.Sprintf("blocked flag '%s' for program '%s'", arg, program)}
		}
	}
	return ExecDecision{Allowed: true}
}

func contains(list []string, target string) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}
