package sandbox

import (
	"os"
	"testing"

	"github.com/oriys/lemonhost/internal/capability"
)

func TestApplyExecCredentialArgInjection(t *testing.T) {
	policy := &capability.Policy{
		Secrets: &capability.SecretsCapability{AllowedNames: []string{"TOKEN"}},
		Exec: &capability.ExecCapability{
			Credentials: map[string]capability.ExecCredentialMapping{
				"gh": {SecretName: "TOKEN", Injection: capability.ExecCredentialInjection{Type: capability.ExecInjectArg, Flag: "--token"}},
			},
		},
	}
	inv := newInvocation("r1", "tool", policy, fakeDelegate{secrets: map[string]string{"TOKEN": "sekrit"}}, 0, 4, "")

	args, _, err := applyExecCredential(inv, "gh", []string{"repo", "list"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"repo", "list", "--token", "sekrit"}
	if len(args) != len(want) {
		t.Fatalf("unexpected args: %v", args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("unexpected args: %v", args)
		}
	}
}

func TestApplyExecCredentialEnvInjection(t *testing.T) {
	policy := &capability.Policy{
		Secrets: &capability.SecretsCapability{AllowedNames: []string{"TOKEN"}},
		Exec: &capability.ExecCapability{
			Credentials: map[string]capability.ExecCredentialMapping{
				"gh": {SecretName: "TOKEN", Injection: capability.ExecCredentialInjection{Type: capability.ExecInjectEnv, Var: "GH_TOKEN"}},
			},
		},
	}
	inv := newInvocation("r1", "tool", policy, fakeDelegate{secrets: map[string]string{"TOKEN": "sekrit"}}, 0, 4, "")

	_, env, err := applyExecCredential(inv, "gh", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env["GH_TOKEN"] != "sekrit" {
		t.Fatalf("unexpected env: %v", env)
	}
}

func TestApplyExecCredentialFileInjection(t *testing.T) {
	policy := &capability.Policy{
		Secrets: &capability.SecretsCapability{AllowedNames: []string{"TOKEN"}},
		Exec: &capability.ExecCapability{
			Credentials: map[string]capability.ExecCredentialMapping{
				"gh": {SecretName: "TOKEN", Injection: capability.ExecCredentialInjection{Type: capability.ExecInjectFile}},
			},
		},
	}
	inv := newInvocation("r1", "tool", policy, fakeDelegate{secrets: map[string]string{"TOKEN": "sekrit"}}, 0, 4, "")

	args, _, err := applyExecCredential(inv, "gh", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(args) != 1 {
		t.Fatalf("expected one path arg, got %v", args)
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		t.Fatalf("expected credential file to exist: %v", err)
	}
	if string(data) != "sekrit" {
		t.Fatalf("unexpected file contents: %s", data)
	}
	os.Remove(args[0])
}

func TestApplyExecCredentialUnknownName(t *testing.T) {
	policy := &capability.Policy{Exec: &capability.ExecCapability{}}
	inv := newInvocation("r1", "tool", policy, nil, 0, 4, "")
	if _, _, err := applyExecCredential(inv, "missing", nil, nil); err == nil {
		t.Fatal("expected error for unknown credential")
	}
}

func TestExecAllowedGatesProgramBeforeRunning(t *testing.T) {
	policy := capability.Empty()
	decision := policy.ExecAllowed("git", []string{"push"})
	if decision.Allowed {
		t.Fatal("expected denial with no exec capability")
	}
}
