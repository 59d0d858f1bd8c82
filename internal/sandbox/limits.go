package sandbox

import "time"

// EpochTickInterval is how often the background epoch ticker advances; the
// epoch deadline for an invocation is expressed in ticks of this duration.
const EpochTickInterval = 10 * time.Millisecond

// FuelUnitsPerMillisecond is the fixed conversion this codebase uses to turn
// a configured fuel budget into a derived wall-clock budget, since the
// chosen guest runtime has no native instruction-metering primitive (see
// the Invocation Engine's design note on fuel).
const FuelUnitsPerMillisecond = 50_000

const (
	MaxInstances = 16
	MaxTables    = 16
	MaxMemories  = 16
	MaxTableGrowthEntries = 10_000
)

// Defaults are the process-wide runtime defaults (§3), rebindable per
// discover request.
type Defaults struct {
	MemoryBytes    int64
	TimeoutMs      int64
	Fuel           int64
	MaxInvokeDepth int
}

// DefaultDefaults mirrors the spec's literal constants.
func DefaultDefaults() Defaults {
	return Defaults{
		MemoryBytes:    10 << 20,
		TimeoutMs:      60_000,
		Fuel:           10_000_000,
		MaxInvokeDepth: 4,
	}
}

// ToolLimits are the resource limits baked into one prepared tool at
// discovery time.
type ToolLimits struct {
	MemoryBytes int64
	Fuel        int64
	TimeoutMs   int64
	MaxDepth    int
}

// FromDefaults builds ToolLimits from the process defaults.
func FromDefaults(d Defaults) ToolLimits {
	return ToolLimits{
		MemoryBytes: d.MemoryBytes,
		Fuel:        d.Fuel,
		TimeoutMs:   d.TimeoutMs,
		MaxDepth:    d.MaxInvokeDepth,
	}
}

// EpochDeadlineTicks computes max(1, timeout_ms / tick_interval_ms).
func EpochDeadlineTicks(timeoutMs int64) uint64 {
	ticks := timeoutMs / EpochTickInterval.Milliseconds()
	if ticks < 1 {
		ticks = 1
	}
	return uint64(ticks)
}

// FuelTimeout derives the tighter wall-clock budget fuel maps onto.
func FuelTimeout(fuel int64) time.Duration {
	if fuel <= 0 {
		return 0
	}
	ms := fuel / FuelUnitsPerMillisecond
	if ms < 1 {
		ms = 1
	}
	return time.Duration(ms) * time.Millisecond
}

// MemoryPages converts a byte ceiling to wazero's 64 KiB page unit,
// rounding up.
func MemoryPages(bytes int64) uint32 {
	const pageSize = 65536
	if bytes <= 0 {
		return 1
	}
	pages := (bytes + pageSize - 1) / pageSize
	return uint32(pages)
}
