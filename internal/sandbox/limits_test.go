package sandbox

import "testing"

func TestEpochDeadlineTicksMinimumOne(t *testing.T) {
	if got := EpochDeadlineTicks(0); got != 1 {
		t.Fatalf("expected minimum 1 tick, got %d", got)
	}
	if got := EpochDeadlineTicks(5); got != 1 {
		t.Fatalf("expected 1 tick for sub-interval timeout, got %d", got)
	}
	if got := EpochDeadlineTicks(100); got != 10 {
		t.Fatalf("expected 10 ticks for 100ms/10ms, got %d", got)
	}
}

func TestFuelTimeoutMinimumOneMillisecond(t *testing.T) {
	if got := FuelTimeout(1); got.Milliseconds() != 1 {
		t.Fatalf("expected 1ms minimum, got %v", got)
	}
	if got := FuelTimeout(0); got != 0 {
		t.Fatalf("expected zero fuel to produce zero duration, got %v", got)
	}
}

func TestMemoryPagesRoundsUp(t *testing.T) {
	if got := MemoryPages(1); got != 1 {
		t.Fatalf("expected 1 page for 1 byte, got %d", got)
	}
	if got := MemoryPages(65536); got != 1 {
		t.Fatalf("expected exactly 1 page for 65536 bytes, got %d", got)
	}
	if got := MemoryPages(65537); got != 2 {
		t.Fatalf("expected 2 pages for 65537 bytes, got %d", got)
	}
	if got := MemoryPages(0); got != 1 {
		t.Fatalf("expected minimum 1 page, got %d", got)
	}
}

func TestFromDefaultsCopiesAllFields(t *testing.T) {
	d := Defaults{MemoryBytes: 123, TimeoutMs: 456, Fuel: 789, MaxInvokeDepth: 3}
	limits := FromDefaults(d)
	if limits.MemoryBytes != 123 || limits.Fuel != 789 || limits.TimeoutMs != 456 || limits.MaxDepth != 3 {
		t.Fatalf("unexpected limits: %+v", limits)
	}
}
