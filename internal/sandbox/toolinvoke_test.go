package sandbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/oriys/lemonhost/internal/capability"
)

func TestToolInvokeResolvesAliasAndDelegates(t *testing.T) {
	policy := &capability.Policy{
		ToolInvoke: &capability.ToolInvokeCapability{Aliases: map[string]string{"helper": "helper-tool"}},
	}
	inv := newInvocation("r1", "caller", policy, fakeDelegate{}, 0, 4, "")

	reqJSON, _ := json.Marshal(toolInvokeRequest{Alias: "helper", ParamsJSON: `{"x":1}`})
	result := toolInvoke(context.Background(), inv, string(reqJSON))

	var envelope okEnvelopeBody
	if err := json.Unmarshal([]byte(result), &envelope); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if !envelope.OK {
		t.Fatalf("expected ok envelope, got %s", result)
	}
}

func TestToolInvokeRejectsUnknownAlias(t *testing.T) {
	policy := &capability.Policy{ToolInvoke: &capability.ToolInvokeCapability{}}
	inv := newInvocation("r1", "caller", policy, fakeDelegate{}, 0, 4, "")

	reqJSON, _ := json.Marshal(toolInvokeRequest{Alias: "nope"})
	result := toolInvoke(context.Background(), inv, string(reqJSON))

	var envelope errorEnvelopeBody
	json.Unmarshal([]byte(result), &envelope)
	if envelope.OK {
		t.Fatal("expected denial for unknown alias")
	}
}

func TestToolInvokeEnforcesDepth(t *testing.T) {
	policy := &capability.Policy{ToolInvoke: &capability.ToolInvokeCapability{Aliases: map[string]string{"helper": "helper-tool"}}}
	inv := newInvocation("r1", "caller", policy, fakeDelegate{}, 4, 4, "")

	reqJSON, _ := json.Marshal(toolInvokeRequest{Alias: "helper"})
	result := toolInvoke(context.Background(), inv, string(reqJSON))

	var envelope errorEnvelopeBody
	json.Unmarshal([]byte(result), &envelope)
	if envelope.OK {
		t.Fatal("expected depth-exceeded denial")
	}
}

func TestToolInvokeRecursesLocallyWhenTargetIsRegistered(t *testing.T) {
	policy := &capability.Policy{
		ToolInvoke: &capability.ToolInvokeCapability{Aliases: map[string]string{"helper": "helper-tool"}},
	}
	inv := newInvocation("r1", "caller", policy, fakeDelegate{}, 0, 4, "")
	inv.engine = NewEngine()
	inv.engine.Register(&PreparedTool{Name: "helper-tool", Capabilities: capability.Empty(), Limits: ToolLimits{MaxDepth: 4}})

	reqJSON, _ := json.Marshal(toolInvokeRequest{Alias: "helper", ParamsJSON: `{"x":1}`})
	result := toolInvoke(context.Background(), inv, string(reqJSON))

	var envelope errorEnvelopeBody
	json.Unmarshal([]byte(result), &envelope)
	if envelope.OK {
		t.Fatalf("expected an instantiation error from the unwired recursive invoke, got ok envelope %s", result)
	}
	if envelope.Error == "tool_invoke capability not wired" {
		t.Fatal("expected the engine.Lookup branch to be taken instead of falling through to the external delegate")
	}
}

func TestToolInvokeRejectsWithoutToolInvokeCapability(t *testing.T) {
	inv := newInvocation("r1", "caller", capability.Empty(), fakeDelegate{}, 0, 4, "")
	reqJSON, _ := json.Marshal(toolInvokeRequest{Alias: "helper"})
	result := toolInvoke(context.Background(), inv, string(reqJSON))

	var envelope errorEnvelopeBody
	json.Unmarshal([]byte(result), &envelope)
	if envelope.OK {
		t.Fatal("expected denial with no tool_invoke capability")
	}
}
