package sandbox

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestEffectiveDeadlinePrefersTighterFuelBudget(t *testing.T) {
	limits := ToolLimits{TimeoutMs: 60_000, Fuel: 1_000} // fuel/50000ms -> 1ms, min 1ms
	d := effectiveDeadline(limits)
	if d != time.Millisecond {
		t.Fatalf("expected fuel-derived 1ms deadline, got %v", d)
	}
}

func TestEffectiveDeadlinePrefersConfiguredTimeoutWhenTighter(t *testing.T) {
	limits := ToolLimits{TimeoutMs: 5, Fuel: 10_000_000} // fuel/50000 = 200ms
	d := effectiveDeadline(limits)
	if d != 5*time.Millisecond {
		t.Fatalf("expected configured 5ms deadline, got %v", d)
	}
}

func TestMapExecutionErrorClassifiesFuel(t *testing.T) {
	err := mapExecutionError(errors.New("wasm error: out of fuel"))
	if err.Kind() != KindExecution {
		t.Fatalf("unexpected kind: %v", err.Kind())
	}
	if !strings.Contains(err.Error(), "fuel exhausted") {
		t.Fatalf("expected fuel-exhausted message, got %q", err.Error())
	}
}

func TestMapExecutionErrorClassifiesDeadline(t *testing.T) {
	err := mapExecutionError(errors.New("module closed with context deadline exceeded"))
	if !strings.Contains(err.Error(), "execution timed out") {
		t.Fatalf("expected timeout message, got %q", err.Error())
	}
}

func TestMapExecutionErrorDefaultsToExecution(t *testing.T) {
	err := mapExecutionError(errors.New("trap: unreachable"))
	if err.Kind() != KindExecution {
		t.Fatalf("unexpected kind: %v", err.Kind())
	}
}

func TestBuildExecuteEnvelopeDefaultsEmptyFields(t *testing.T) {
	env := buildExecuteEnvelope("", "")
	if env != `{"params":{},"context":{}}` {
		t.Fatalf("unexpected envelope: %s", env)
	}
}

func TestBuildExecuteEnvelopeCarriesBothFields(t *testing.T) {
	env := buildExecuteEnvelope(`{"a":1}`, `{"request_id":"r1"}`)
	if env != `{"params":{"a":1},"context":{"request_id":"r1"}}` {
		t.Fatalf("unexpected envelope: %s", env)
	}
}
