// Package metrics collects and exposes lemonhost runtime observability data.
//
// # Design rationale
//
// Two metric stores coexist in this package:
//
//  1. The in-process Metrics struct (per-tool counters + time series) for
//     the lightweight JSON /metrics.json endpoint served on the daemon's loopback
//     address.
//  2. A Prometheus registry (prometheus.go) for scraping by external
//     monitoring systems.
//
// # Concurrency — hot path
//
// RecordInvocation is called from the engine on every guest invocation and
// must be as fast as possible. It uses atomic increments for global counters
// and dispatches a lightweight event onto a buffered channel (tsChan) for
// the time-series worker to process asynchronously. This avoids holding any
// lock on the hot path.
//
// The per-tool ToolMetrics struct also uses atomic operations exclusively;
// the sync.Map that stores the per-tool entries is read-heavy and
// write-once-per-new-tool, which is the ideal use case for sync.Map.
//
// # Invariants
//
//   - TotalInvocations == SuccessInvocations + FailedInvocations.
//   - The time-series ring buffer holds at most timeSeriesBucketCount buckets
//     (24 * 60 = 1440 for the last 24 hours at 1-minute granularity).
//   - tsChan capacity is 8192 events; events dropped when full are counted
//     in tsDroppedEvents for observability.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

const (
	timeSeriesBucketDuration = time.Minute
	timeSeriesBucketCount    = 24 * 60
)

// TimeSeriesBucket stores metrics for a single time bucket.
type TimeSeriesBucket struct {
	Timestamp    time.Time
	Invocations  int64
	Errors       int64
	TotalLatency int64
	Count        int64 // for calculating avg
}

// Metrics collects and exposes lemonhost runtime metrics.
type Metrics struct {
	// Invocation metrics
	TotalInvocations   atomic.Int64
	SuccessInvocations atomic.Int64
	FailedInvocations  atomic.Int64

	// Latency metrics (in milliseconds)
	TotalLatencyMs atomic.Int64
	MinLatencyMs   atomic.Int64
	MaxLatencyMs   atomic.Int64

	// Discovery and quota metrics
	DiscoveryRuns       atomic.Int64
	DiscoveryToolsFound atomic.Int64
	RateLimitRejections atomic.Int64

	// Per-tool metrics
	toolMetrics sync.Map // tool name -> *ToolMetrics

	// Time-series data (minute buckets for last 24 hours)
	timeSeriesMu    sync.RWMutex
	timeSeries      []*TimeSeriesBucket
	tsChan          chan timeSeriesEvent
	tsDroppedEvents atomic.Int64

	startTime time.Time
}

// timeSeriesEvent is sent over a channel to avoid write-lock contention on the hot path.
type timeSeriesEvent struct {
	durationMs int64
	isError    bool
}

// ToolMetrics tracks metrics for a single guest tool.
type ToolMetrics struct {
	Invocations atomic.Int64
	Successes   atomic.Int64
	Failures    atomic.Int64
	TotalMs     atomic.Int64
	MinMs       atomic.Int64
	MaxMs       atomic.Int64
}

// Global metrics instance
var global = &Metrics{startTime: time.Now()}

func init() {
	global.MinLatencyMs.Store(int64(^uint64(0) >> 1)) // Max int64
	global.tsChan = make(chan timeSeriesEvent, 8192)
	global.initTimeSeries()
	go global.processTimeSeriesLoop()
}

// initTimeSeries initializes minute-level buckets for the last 24 hours.
func (m *Metrics) initTimeSeries() {
	m.timeSeriesMu.Lock()
	defer m.timeSeriesMu.Unlock()

	now := time.Now().Truncate(timeSeriesBucketDuration)
	m.timeSeries = make([]*TimeSeriesBucket, timeSeriesBucketCount)
	for i := 0; i < timeSeriesBucketCount; i++ {
		m.timeSeries[i] = &TimeSeriesBucket{
			Timestamp: now.Add(time.Duration(i-(timeSeriesBucketCount-1)) * timeSeriesBucketDuration),
		}
	}
}

// Global returns the global metrics instance.
func Global() *Metrics {
	return global
}

// StartTime returns the time the metrics system was initialized.
func StartTime() time.Time {
	return global.startTime
}

// RecordInvocation records a completed guest tool invocation.
func (m *Metrics) RecordInvocation(tool string, durationMs int64, success bool) {
	m.TotalInvocations.Add(1)

	if success {
		m.SuccessInvocations.Add(1)
	} else {
		m.FailedInvocations.Add(1)
	}

	m.TotalLatencyMs.Add(durationMs)
	updateMin(&m.MinLatencyMs, durationMs)
	updateMax(&m.MaxLatencyMs, durationMs)

	tm := m.getToolMetrics(tool)
	tm.Invocations.Add(1)
	if success {
		tm.Successes.Add(1)
	} else {
		tm.Failures.Add(1)
	}
	tm.TotalMs.Add(durationMs)
	updateMin(&tm.MinMs, durationMs)
	updateMax(&tm.MaxMs, durationMs)

	m.recordTimeSeries(durationMs, !success)

	status := "success"
	if !success {
		status = "failed"
	}
	RecordPrometheusInvocation(tool, status, durationMs)
}

// recordTimeSeries enqueues a time-series event for async processing,
// avoiding a write-lock on the hot invocation path.
func (m *Metrics) recordTimeSeries(durationMs int64, isError bool) {
	select {
	case m.tsChan <- timeSeriesEvent{durationMs: durationMs, isError: isError}:
	default:
		m.tsDroppedEvents.Add(1)
	}
}

// processTimeSeriesLoop drains tsChan and applies events under a write lock.
func (m *Metrics) processTimeSeriesLoop() {
	for evt := range m.tsChan {
		m.applyTimeSeriesEvent(evt.durationMs, evt.isError)
	}
}

// applyTimeSeriesEvent updates the time-series buckets (must be called from a single goroutine).
func (m *Metrics) applyTimeSeriesEvent(durationMs int64, isError bool) {
	m.timeSeriesMu.Lock()
	defer m.timeSeriesMu.Unlock()

	now := time.Now().Truncate(timeSeriesBucketDuration)

	if len(m.timeSeries) > 0 {
		lastBucket := m.timeSeries[len(m.timeSeries)-1]
		bucketsDiff := int(now.Sub(lastBucket.Timestamp) / timeSeriesBucketDuration)

		if bucketsDiff > 0 {
			if bucketsDiff >= timeSeriesBucketCount {
				m.timeSeries = make([]*TimeSeriesBucket, timeSeriesBucketCount)
				for i := 0; i < timeSeriesBucketCount; i++ {
					m.timeSeries[i] = &TimeSeriesBucket{
						Timestamp: now.Add(time.Duration(i-(timeSeriesBucketCount-1)) * timeSeriesBucketDuration),
					}
				}
			} else {
				m.timeSeries = m.timeSeries[bucketsDiff:]
				for i := 0; i < bucketsDiff; i++ {
					m.timeSeries = append(m.timeSeries, &TimeSeriesBucket{
						Timestamp: lastBucket.Timestamp.Add(time.Duration(i+1) * timeSeriesBucketDuration),
					})
				}
			}
		}
	}

	if len(m.timeSeries) > 0 {
		bucket := m.timeSeries[len(m.timeSeries)-1]
		bucket.Invocations++
		bucket.TotalLatency += durationMs
		bucket.Count++
		if isError {
			bucket.Errors++
		}
	}
}

// RecordDiscoveryRun records a completed discovery scan.
func (m *Metrics) RecordDiscoveryRun(toolsFound int, durationMs int64) {
	m.DiscoveryRuns.Add(1)
	m.DiscoveryToolsFound.Add(int64(toolsFound))
	RecordPrometheusDiscoveryRun(toolsFound, durationMs)
}

// RecordHostCall records the latency of a host-surface call (http_request,
// exec_command, tool_invoke, workspace_read) as seen from the engine.
func (m *Metrics) RecordHostCall(operation string, durationMs float64, success bool) {
	RecordPrometheusHostCall(operation, durationMs, success)
}

// RecordRateLimitRejection records a per-invocation or sliding-window quota
// rejection for a tool/class pair (http, exec, tool_invoke).
func (m *Metrics) RecordRateLimitRejection(tool, class string) {
	m.RateLimitRejections.Add(1)
	RecordPrometheusRateLimitRejection(tool, class)
}

func (m *Metrics) getToolMetrics(tool string) *ToolMetrics {
	if v, ok := m.toolMetrics.Load(tool); ok {
		return v.(*ToolMetrics)
	}

	tm := &ToolMetrics{}
	tm.MinMs.Store(int64(^uint64(0) >> 1))
	actual, _ := m.toolMetrics.LoadOrStore(tool, tm)
	return actual.(*ToolMetrics)
}

// GetToolMetrics returns the metrics for a specific tool (or nil if none recorded yet).
func (m *Metrics) GetToolMetrics(tool string) *ToolMetrics {
	if v, ok := m.toolMetrics.Load(tool); ok {
		return v.(*ToolMetrics)
	}
	return nil
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (m *Metrics) Snapshot() map[string]interface{} {
	total := m.TotalInvocations.Load()
	avgLatency := float64(0)
	if total > 0 {
		avgLatency = float64(m.TotalLatencyMs.Load()) / float64(total)
	}

	minLatency := m.MinLatencyMs.Load()
	if minLatency == int64(^uint64(0)>>1) {
		minLatency = 0
	}

	return map[string]interface{}{
		"uptime_seconds": int64(time.Since(m.startTime).Seconds()),
		"invocations": map[string]interface{}{
			"total":   total,
			"success": m.SuccessInvocations.Load(),
			"failed":  m.FailedInvocations.Load(),
		},
		"latency_ms": map[string]interface{}{
			"avg": avgLatency,
			"min": minLatency,
			"max": m.MaxLatencyMs.Load(),
		},
		"discovery": map[string]interface{}{
			"runs":        m.DiscoveryRuns.Load(),
			"tools_found": m.DiscoveryToolsFound.Load(),
		},
		"rate_limit_rejections": m.RateLimitRejections.Load(),
		"ts_dropped_events":     m.tsDroppedEvents.Load(),
	}
}

// ToolStats returns per-tool metrics.
func (m *Metrics) ToolStats() map[string]interface{} {
	result := make(map[string]interface{})

	m.toolMetrics.Range(func(key, value interface{}) bool {
		tool := key.(string)
		tm := value.(*ToolMetrics)

		total := tm.Invocations.Load()
		avgMs := float64(0)
		if total > 0 {
			avgMs = float64(tm.TotalMs.Load()) / float64(total)
		}

		minMs := tm.MinMs.Load()
		if minMs == int64(^uint64(0)>>1) {
			minMs = 0
		}

		result[tool] = map[string]interface{}{
			"invocations": total,
			"successes":   tm.Successes.Load(),
			"failures":    tm.Failures.Load(),
			"avg_ms":      avgMs,
			"min_ms":      minMs,
			"max_ms":      tm.MaxMs.Load(),
		}
		return true
	})

	return result
}

// JSONHandler returns an HTTP handler that exposes metrics in JSON format.
func (m *Metrics) JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		result := m.Snapshot()
		result["tools"] = m.ToolStats()
		json.NewEncoder(w).Encode(result)
	})
}

// TimeSeries returns minute-level time-series data for the last 24 hours.
func (m *Metrics) TimeSeries() []map[string]interface{} {
	m.timeSeriesMu.RLock()
	defer m.timeSeriesMu.RUnlock()

	result := make([]map[string]interface{}, len(m.timeSeries))
	for i, bucket := range m.timeSeries {
		avgDuration := float64(0)
		if bucket.Count > 0 {
			avgDuration = float64(bucket.TotalLatency) / float64(bucket.Count)
		}
		result[i] = map[string]interface{}{
			"timestamp":    bucket.Timestamp.Format(time.RFC3339),
			"invocations":  bucket.Invocations,
			"errors":       bucket.Errors,
			"avg_duration": avgDuration,
		}
	}
	return result
}

// TimeSeriesHandler returns an HTTP handler for time-series metrics.
func (m *Metrics) TimeSeriesHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.TimeSeries())
	})
}

func updateMin(target *atomic.Int64, value int64) {
	for {
		old := target.Load()
		if value >= old {
			return
		}
		if target.CompareAndSwap(old, value) {
			return
		}
	}
}

func updateMax(target *atomic.Int64, value int64) {
	for {
		old := target.Load()
		if value <= old {
			return
		}
		if target.CompareAndSwap(old, value) {
			return
		}
	}
}
