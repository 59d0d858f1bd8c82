package secret

import (
	"os"
	"testing"
)

type fakePolicy struct{ allowed map[string]bool }

func (f fakePolicy) SecretAllowed(name string) bool { return f.allowed[name] }

type fakeExternal struct {
	values  map[string]string
	present map[string]bool
}

func (f fakeExternal) SecretExists(name string) (bool, bool) {
	exists, ok := f.present[name]
	return exists, ok
}

func (f fakeExternal) ResolveSecret(name string) (string, bool, error) {
	v, ok := f.values[name]
	return v, ok, nil
}

func TestCapabilityResolverDeniedByPolicy(t *testing.T) {
	resolve := CapabilityResolver(fakePolicy{}, fakeExternal{})
	if _, err := resolve("ANY"); err == nil {
		t.Fatal("expected denial error")
	}
}

func TestCapabilityResolverUsesExternalThenEnv(t *testing.T) {
	policy := fakePolicy{allowed: map[string]bool{"FROM_EXTERNAL": true, "FROM_ENV": true}}
	external := fakeExternal{values: map[string]string{"FROM_EXTERNAL": "ext-value"}}
	resolve := CapabilityResolver(policy, external)

	v, err := resolve("FROM_EXTERNAL")
	if err != nil || v != "ext-value" {
		t.Fatalf("got %q, %v", v, err)
	}

	os.Setenv("FROM_ENV", "env-value")
	defer os.Unsetenv("FROM_ENV")
	v, err = resolve("FROM_ENV")
	if err != nil || v != "env-value" {
		t.Fatalf("got %q, %v", v, err)
	}
}

func TestExistsFallsBackToEnv(t *testing.T) {
	policy := fakePolicy{allowed: map[string]bool{"X": true}}
	os.Setenv("X", "present")
	defer os.Unsetenv("X")
	if !Exists(policy, fakeExternal{}, "X") {
		t.Error("expected env fallback to report existence")
	}
	if Exists(fakePolicy{}, fakeExternal{}, "X") {
		t.Error("expected denial by policy to short-circuit to false")
	}
}
