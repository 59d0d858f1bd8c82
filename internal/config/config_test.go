package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigMatchesProcessDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Discovery.DefaultMemoryLimit != 10<<20 {
		t.Fatalf("unexpected memory default: %d", cfg.Discovery.DefaultMemoryLimit)
	}
	if cfg.Discovery.MaxToolInvokeDepth != 4 {
		t.Fatalf("unexpected depth default: %d", cfg.Discovery.MaxToolInvokeDepth)
	}
	if !cfg.Discovery.CacheCompiled {
		t.Fatal("expected cache_compiled default true")
	}
}

func TestLoadFromFileMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("discovery:\n  max_tool_invoke_depth: 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Discovery.MaxToolInvokeDepth != 7 {
		t.Fatalf("expected override to apply, got %d", cfg.Discovery.MaxToolInvokeDepth)
	}
	if cfg.Discovery.DefaultMemoryLimit != 10<<20 {
		t.Fatal("expected unrelated default to survive merge")
	}
}

func TestLoadFromEnvOverridesLogLevel(t *testing.T) {
	t.Setenv("LEMONHOST_LOG_LEVEL", "debug")
	cfg := DefaultConfig()
	LoadFromEnv(cfg)
	if cfg.Daemon.LogLevel != "debug" {
		t.Fatalf("expected env override, got %s", cfg.Daemon.LogLevel)
	}
}

func TestLoadFromEnvQuotaRedisURLImpliesEnabled(t *testing.T) {
	t.Setenv("LEMONHOST_QUOTA_REDIS_URL", "redis://localhost:6379")
	cfg := DefaultConfig()
	LoadFromEnv(cfg)
	if !cfg.Quota.Enabled {
		t.Fatal("expected quota enabled implied by redis url")
	}
}
