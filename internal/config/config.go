package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DiscoveryConfig holds the guest-module scan settings.
type DiscoveryConfig struct {
	Paths              []string `yaml:"paths"`
	DefaultMemoryLimit int64    `yaml:"default_memory_limit"` // bytes, default 10MiB
	DefaultTimeoutMs   int64    `yaml:"default_timeout_ms"`   // default 60000
	DefaultFuelLimit   int64    `yaml:"default_fuel_limit"`   // default 10,000,000
	CacheCompiled      bool     `yaml:"cache_compiled"`       // default true
	CacheDir           string   `yaml:"cache_dir,omitempty"`
	MaxToolInvokeDepth int      `yaml:"max_tool_invoke_depth"` // default 4
}

// DaemonConfig holds process-level settings.
type DaemonConfig struct {
	LogLevel string `yaml:"log_level"`
	// MetricsAddr, when non-empty, serves the /metrics loopback endpoint
	// described in §6; this is operator-facing only and never part of the
	// guest-facing wire contract.
	MetricsAddr string `yaml:"metrics_addr"`
	// WorkspaceRoot is the directory workspace_read requests are resolved
	// against. Empty disables the workspace capability entirely regardless
	// of what a tool's capability file grants.
	WorkspaceRoot string `yaml:"workspace_root,omitempty"`
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"` // otlp-http (or otlp), stdout
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled          bool      `yaml:"enabled"`
	Namespace        string    `yaml:"namespace"`
	HistogramBuckets []float64 `yaml:"histogram_buckets"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level          string `yaml:"level"`
	Format         string `yaml:"format"` // text, json
	IncludeTraceID bool   `yaml:"include_trace_id"`
}

// ObservabilityConfig groups the ambient logging/metrics/tracing settings.
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// QuotaConfig configures the opt-in sliding-window rate-limit extension
// (internal/quota); the core per-invocation counters run regardless.
type QuotaConfig struct {
	Enabled  bool   `yaml:"enabled"`
	RedisURL string `yaml:"redis_url,omitempty"`
}

// Config is the central configuration struct for the sidecar process.
type Config struct {
	Discovery     DiscoveryConfig     `yaml:"discovery"`
	Daemon        DaemonConfig        `yaml:"daemon"`
	Observability ObservabilityConfig `yaml:"observability"`
	Quota         QuotaConfig         `yaml:"quota"`
}

// DefaultConfig returns a Config with the process-wide defaults from §3.
func DefaultConfig() *Config {
	return &Config{
		Discovery: DiscoveryConfig{
			DefaultMemoryLimit: 10 << 20,
			DefaultTimeoutMs:   60_000,
			DefaultFuelLimit:   10_000_000,
			CacheCompiled:      true,
			MaxToolInvokeDepth: 4,
		},
		Daemon: DaemonConfig{
			LogLevel: "info",
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:     false,
				Exporter:    "otlp-http",
				Endpoint:    "localhost:4318",
				ServiceName: "lemonhost",
				SampleRate:  1.0,
			},
			Metrics: MetricsConfig{
				Enabled:          true,
				Namespace:        "lemonhost",
				HistogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
			},
			Logging: LoggingConfig{
				Level:          "info",
				Format:         "text",
				IncludeTraceID: true,
			},
		},
		Quota: QuotaConfig{
			Enabled: false,
		},
	}
}

// LoadFromFile loads configuration from a YAML file, starting from
// DefaultConfig so unset fields keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv applies LEMONHOST_*-prefixed environment variable overrides.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("LEMONHOST_LOG_LEVEL"); v != "" {
		cfg.Daemon.LogLevel = v
	}
	if v := os.Getenv("LEMONHOST_METRICS_ADDR"); v != "" {
		cfg.Daemon.MetricsAddr = v
	}
	if v := os.Getenv("LEMONHOST_WORKSPACE_ROOT"); v != "" {
		cfg.Daemon.WorkspaceRoot = v
	}

	if v := os.Getenv("LEMONHOST_DEFAULT_MEMORY_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Discovery.DefaultMemoryLimit = n
		}
	}
	if v := os.Getenv("LEMONHOST_DEFAULT_TIMEOUT_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Discovery.DefaultTimeoutMs = n
		}
	}
	if v := os.Getenv("LEMONHOST_DEFAULT_FUEL_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Discovery.DefaultFuelLimit = n
		}
	}
	if v := os.Getenv("LEMONHOST_CACHE_COMPILED"); v != "" {
		cfg.Discovery.CacheCompiled = parseBool(v)
	}
	if v := os.Getenv("LEMONHOST_CACHE_DIR"); v != "" {
		cfg.Discovery.CacheDir = v
	}
	if v := os.Getenv("LEMONHOST_MAX_TOOL_INVOKE_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Discovery.MaxToolInvokeDepth = n
		}
	}
	if v := os.Getenv("LEMONHOST_TOOL_PATHS"); v != "" {
		cfg.Discovery.Paths = strings.Split(v, string(os.PathListSeparator))
	}

	if v := os.Getenv("LEMONHOST_TRACING_ENABLED"); v != "" {
		cfg.Observability.Tracing.Enabled = parseBool(v)
	}
	if v := os.Getenv("LEMONHOST_TRACING_ENDPOINT"); v != "" {
		cfg.Observability.Tracing.Endpoint = v
	}
	if v := os.Getenv("LEMONHOST_TRACING_EXPORTER"); v != "" {
		cfg.Observability.Tracing.Exporter = v
	}
	if v := os.Getenv("LEMONHOST_TRACING_SERVICE_NAME"); v != "" {
		cfg.Observability.Tracing.ServiceName = v
	}
	if v := os.Getenv("LEMONHOST_TRACING_SAMPLE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Observability.Tracing.SampleRate = f
		}
	}
	if v := os.Getenv("LEMONHOST_METRICS_ENABLED"); v != "" {
		cfg.Observability.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("LEMONHOST_METRICS_NAMESPACE"); v != "" {
		cfg.Observability.Metrics.Namespace = v
	}
	if v := os.Getenv("LEMONHOST_LOG_FORMAT"); v != "" {
		cfg.Observability.Logging.Format = v
	}
	if v := os.Getenv("LEMONHOST_LOG_INCLUDE_TRACE_ID"); v != "" {
		cfg.Observability.Logging.IncludeTraceID = parseBool(v)
	}

	if v := os.Getenv("LEMONHOST_QUOTA_ENABLED"); v != "" {
		cfg.Quota.Enabled = parseBool(v)
	}
	if v := os.Getenv("LEMONHOST_QUOTA_REDIS_URL"); v != "" {
		cfg.Quota.RedisURL = v
		cfg.Quota.Enabled = true
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes"
}
