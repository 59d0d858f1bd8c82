package sandbox

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/oriys/lemonhost/internal/capability"
)

func TestWorkspaceReadServesAllowedFile(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	policy := &capability.Policy{Workspace: &capability.WorkspaceCapability{}}
	inv := newInvocation("r1", "caller", policy, fakeDelegate{}, 0, 4, root)

	reqJSON, _ := json.Marshal(workspaceReadRequest{Path: "notes.txt"})
	result := workspaceReadUnmetered(inv, string(reqJSON))

	var envelope okEnvelopeBody
	if err := json.Unmarshal([]byte(result), &envelope); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if !envelope.OK {
		t.Fatalf("expected ok envelope, got %s", result)
	}
	var body workspaceReadResponse
	if err := json.Unmarshal(envelope.Result, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.Content != "hello" {
		t.Fatalf("expected content %q, got %q", "hello", body.Content)
	}
}

func TestWorkspaceReadRejectsWithoutCapability(t *testing.T) {
	root := t.TempDir()
	inv := newInvocation("r1", "caller", capability.Empty(), fakeDelegate{}, 0, 4, root)

	reqJSON, _ := json.Marshal(workspaceReadRequest{Path: "notes.txt"})
	result := workspaceReadUnmetered(inv, string(reqJSON))

	var envelope errorEnvelopeBody
	json.Unmarshal([]byte(result), &envelope)
	if envelope.OK {
		t.Fatal("expected denial with no workspace capability")
	}
}

func TestWorkspaceReadRejectsEscapingPath(t *testing.T) {
	root := t.TempDir()
	policy := &capability.Policy{Workspace: &capability.WorkspaceCapability{}}
	inv := newInvocation("r1", "caller", policy, fakeDelegate{}, 0, 4, root)

	reqJSON, _ := json.Marshal(workspaceReadRequest{Path: "../outside.txt"})
	result := workspaceReadUnmetered(inv, string(reqJSON))

	var envelope errorEnvelopeBody
	json.Unmarshal([]byte(result), &envelope)
	if envelope.OK {
		t.Fatal("expected denial for a path containing ..")
	}
}

func TestWorkspaceReadRejectsWithoutConfiguredRoot(t *testing.T) {
	policy := &capability.Policy{Workspace: &capability.WorkspaceCapability{}}
	inv := newInvocation("r1", "caller", policy, fakeDelegate{}, 0, 4, "")

	reqJSON, _ := json.Marshal(workspaceReadRequest{Path: "notes.txt"})
	result := workspaceReadUnmetered(inv, string(reqJSON))

	var envelope errorEnvelopeBody
	json.Unmarshal([]byte(result), &envelope)
	if envelope.OK {
		t.Fatal("expected denial when no workspace root is configured")
	}
}

func TestWorkspaceReadRespectsAllowedPrefixes(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "public"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "public", "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "secret.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	policy := &capability.Policy{Workspace: &capability.WorkspaceCapability{AllowedPrefixes: []string{"public/"}}}
	inv := newInvocation("r1", "caller", policy, fakeDelegate{}, 0, 4, root)

	allowedReq, _ := json.Marshal(workspaceReadRequest{Path: "public/a.txt"})
	allowedResult := workspaceReadUnmetered(inv, string(allowedReq))
	var allowedEnvelope okEnvelopeBody
	if err := json.Unmarshal([]byte(allowedResult), &allowedEnvelope); err != nil || !allowedEnvelope.OK {
		t.Fatalf("expected allowed prefix to succeed, got %s", allowedResult)
	}

	deniedReq, _ := json.Marshal(workspaceReadRequest{Path: "secret.txt"})
	deniedResult := workspaceReadUnmetered(inv, string(deniedReq))
	var deniedEnvelope errorEnvelopeBody
	json.Unmarshal([]byte(deniedResult), &deniedEnvelope)
	if deniedEnvelope.OK {
		t.Fatal("expected path outside allowed prefixes to be denied")
	}
}
