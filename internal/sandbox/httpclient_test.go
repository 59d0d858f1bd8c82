package sandbox

import (
	"testing"

	"github.com/oriys/lemonhost/internal/capability"
)

func TestInjectHTTPCredentialBearer(t *testing.T) {
	policy := &capability.Policy{
		Secrets: &capability.SecretsCapability{AllowedNames: []string{"TOKEN"}},
		HTTP: &capability.HTTPCapability{
			Credentials: map[string]capability.CredentialMapping{
				"api": {SecretName: "TOKEN", Location: capability.CredentialLocation{Type: capability.LocationBearer}},
			},
		},
	}
	inv := newInvocation("r1", "tool", policy, fakeDelegate{secrets: map[string]string{"TOKEN": "abc123"}}, 0, 4, "")

	result, err := injectHTTPCredential(inv, httpRequestPayload{URL: "https://api.example.com/x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.extraHeaders["Authorization"] != "Bearer abc123" {
		t.Fatalf("unexpected headers: %v", result.extraHeaders)
	}
}

func TestInjectHTTPCredentialQueryParam(t *testing.T) {
	policy := &capability.Policy{
		Secrets: &capability.SecretsCapability{AllowedNames: []string{"KEY"}},
		HTTP: &capability.HTTPCapability{
			Credentials: map[string]capability.CredentialMapping{
				"api": {SecretName: "KEY", Location: capability.CredentialLocation{Type: capability.LocationQueryParam, Name: "api_key"}},
			},
		},
	}
	inv := newInvocation("r1", "tool", policy, fakeDelegate{secrets: map[string]string{"KEY": "xyz"}}, 0, 4, "")

	result, err := injectHTTPCredential(inv, httpRequestPayload{URL: "https://api.example.com/x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.url != "https://api.example.com/x?api_key=xyz" {
		t.Fatalf("unexpected url: %s", result.url)
	}
}

func TestInjectHTTPCredentialSkipsNonMatchingHost(t *testing.T) {
	policy := &capability.Policy{
		Secrets: &capability.SecretsCapability{AllowedNames: []string{"KEY"}},
		HTTP: &capability.HTTPCapability{
			Credentials: map[string]capability.CredentialMapping{
				"api": {SecretName: "KEY", Location: capability.CredentialLocation{Type: capability.LocationBearer}, HostPatterns: []string{"*.allowed.com"}},
			},
		},
	}
	inv := newInvocation("r1", "tool", policy, fakeDelegate{secrets: map[string]string{"KEY": "xyz"}}, 0, 4, "")

	result, err := injectHTTPCredential(inv, httpRequestPayload{URL: "https://other.com/x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.extraHeaders) != 0 {
		t.Fatalf("expected no credential injected for a non-matching host, got %v", result.extraHeaders)
	}
	if result.url != "https://other.com/x" {
		t.Fatalf("expected url untouched, got %s", result.url)
	}
}

func TestInjectHTTPCredentialSkipsUnresolvedSecret(t *testing.T) {
	policy := &capability.Policy{
		HTTP: &capability.HTTPCapability{
			Credentials: map[string]capability.CredentialMapping{
				"api": {SecretName: "MISSING", Location: capability.CredentialLocation{Type: capability.LocationBearer}},
			},
		},
		Secrets: &capability.SecretsCapability{AllowedNames: []string{"MISSING"}},
	}
	inv := newInvocation("r1", "tool", policy, fakeDelegate{}, 0, 4, "")

	result, err := injectHTTPCredential(inv, httpRequestPayload{URL: "https://x.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.extraHeaders) != 0 {
		t.Fatalf("expected the unresolved secret to be skipped, not surfaced, got %v", result.extraHeaders)
	}
}

func TestHTTPTimeoutPrefersRequestOverPolicy(t *testing.T) {
	policy := &capability.Policy{HTTP: &capability.HTTPCapability{TimeoutSecs: 5}}
	if d := httpTimeout(policy, 15); d.Seconds() != 15 {
		t.Fatalf("expected request timeout to win, got %v", d)
	}
	if d := httpTimeout(policy, 0); d.Seconds() != 5 {
		t.Fatalf("expected policy timeout as fallback, got %v", d)
	}
}
