package sandbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oriys/lemonhost/internal/capability"
	"github.com/oriys/lemonhost/internal/metrics"
	"github.com/oriys/lemonhost/internal/secret"
)

type httpRequestPayload struct {
	Method      string            `json:"method"`
	URL         string            `json:"url"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        string            `json:"body,omitempty"`
	TimeoutSecs int               `json:"timeout_secs,omitempty"`
}

type httpResponsePayload struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// httpClient is the shared transport every invocation's http_request host
// call runs through; it carries no per-call state of its own.
type httpClient struct {
	client *http.Client
}

func newHTTPClient() *httpClient {
	return &httpClient{client: &http.Client{}}
}

// do implements the §4.3 http_request host call: policy gating, placeholder
// resolution in the body, credential injection, and response-size capping.
func (h *httpClient) do(ctx context.Context, inv *invocation, reqJSON string) string {
	start := time.Now()
	out := h.doUnmetered(ctx, inv, reqJSON)
	metrics.Global().RecordHostCall("http_request", float64(time.Since(start).Milliseconds()), strings.Contains(out, `"ok":true`))
	return out
}

func (h *httpClient) doUnmetered(ctx context.Context, inv *invocation, reqJSON string) string {
	var req httpRequestPayload
	if err := json.Unmarshal([]byte(reqJSON), &req); err != nil {
		return errorEnvelopeString("invalid http_request payload: " + err.Error())
	}

	if !inv.policy.HTTPAllowed(req.Method, req.URL) {
		return errorEnvelopeString(fmt.Sprintf("http request to %s %s denied by policy", req.Method, req.URL))
	}
	if err := inv.checkAndIncrementHTTP(); err != nil {
		return errorEnvelopeString(err.Error())
	}

	body, err := resolveBodyPlaceholders(inv, req.Body)
	if err != nil {
		return errorEnvelopeString(err.Error())
	}
	if int64(len(body)) > inv.policy.HTTPMaxRequestBytes() {
		return errorEnvelopeString("request body exceeds max_request_bytes")
	}

	parsedURL, err := injectHTTPCredential(inv, req)
	if err != nil {
		return errorEnvelopeString(err.Error())
	}

	timeout := httpTimeout(inv.policy, req.TimeoutSecs)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, req.Method, parsedURL.url, strings.NewReader(body))
	if err != nil {
		return errorEnvelopeString("build request: " + err.Error())
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range parsedURL.extraHeaders {
		httpReq.Header.Set(k, v)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return errorEnvelopeString("http request failed: " + err.Error())
	}
	defer resp.Body.Close()

	limit := inv.policy.HTTPMaxResponseBytes()
	limited := io.LimitReader(resp.Body, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return errorEnvelopeString("read response body: " + err.Error())
	}
	if int64(len(data)) > limit {
		return errorEnvelopeString("response body exceeds max_response_bytes")
	}

	headers := map[string]string{}
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	out := secret.Sanitize(string(data), inv.secretsSnapshot())
	return okEnvelope(httpResponsePayload{Status: resp.StatusCode, Headers: headers, Body: out})
}

func resolveBodyPlaceholders(inv *invocation, body string) (string, error) {
	resolved, _, err := secret.ResolvePlaceholders(body, inv.resolveSecret)
	return resolved, err
}

func httpTimeout(policy *capability.Policy, requested int) time.Duration {
	if requested > 0 {
		return time.Duration(requested) * time.Second
	}
	return time.Duration(policy.HTTPTimeoutSecs()) * time.Second
}

type injectedURL struct {
	url          string
	extraHeaders map[string]string
}

func (u *injectedURL) setHeader(name, value string) {
	if u.extraHeaders == nil {
		u.extraHeaders = make(map[string]string)
	}
	u.extraHeaders[name] = value
}

// injectHTTPCredential applies every credential mapping configured for this
// tool whose host patterns are empty or match the request URL's host (§4.3).
// A credential whose secret is denied or fails to resolve is silently
// skipped rather than failing the whole request — the guest never sees
// which, if any, credentials were available to auto-attach.
func injectHTTPCredential(inv *invocation, req httpRequestPayload) (injectedURL, error) {
	out := injectedURL{url: req.URL}
	if inv.policy.HTTP == nil {
		return out, nil
	}

	for _, mapping := range inv.policy.HTTP.Credentials {
		u, err := url.Parse(out.url)
		if err != nil {
			return injectedURL{}, fmt.Errorf("parse url: %w", err)
		}
		if len(mapping.HostPatterns) > 0 && !anyHostMatches(mapping.HostPatterns, u.Hostname()) {
			continue
		}
		if !inv.policy.SecretAllowed(mapping.SecretName) {
			continue
		}
		value, err := inv.resolveSecret(mapping.SecretName)
		if err != nil {
			continue
		}

		switch mapping.Location.Type {
		case capability.LocationBearer:
			out.setHeader("Authorization", "Bearer "+value)
		case capability.LocationBasic:
			out.setHeader("Authorization", "Basic "+basicAuthToken(mapping.Location.Username, value))
		case capability.LocationHeader:
			out.setHeader(mapping.Location.Name, mapping.Location.Prefix+value)
		case capability.LocationQueryParam:
			q := u.Query()
			q.Set(mapping.Location.Name, value)
			u.RawQuery = q.Encode()
			out.url = u.String()
		case capability.LocationURLPath:
			out.url = strings.ReplaceAll(out.url, mapping.Location.Placeholder, value)
		}
	}
	return out, nil
}

func anyHostMatches(patterns []string, host string) bool {
	for _, p := range patterns {
		if capability.HostMatches(host, p) {
			return true
		}
	}
	return false
}

func basicAuthToken(username, secretValue string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + secretValue))
}
