package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/oriys/lemonhost/internal/sandbox"
	"github.com/tetratelabs/wazero"
)

func TestScanRecordsErrorForMissingDirectory(t *testing.T) {
	cache := wazero.NewCompilationCache()
	defer cache.Close(context.Background())

	result := Scan(context.Background(), cache, sandbox.DefaultDefaults(), []string{"/no/such/directory"})
	if len(result.Errors) != 1 {
		t.Fatalf("expected one scan error, got %v", result.Errors)
	}
}

func TestScanDeduplicatesStemsFirstSeenWins(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	writeFakeWasm(t, filepath.Join(dirA, "tool.wasm"))
	writeFakeWasm(t, filepath.Join(dirB, "tool.wasm"))

	cache := wazero.NewCompilationCache()
	defer cache.Close(context.Background())

	result := Scan(context.Background(), cache, sandbox.DefaultDefaults(), []string{dirA, dirB})
	foundDuplicateWarning := false
	for _, w := range result.Warnings {
		if w != "" {
			foundDuplicateWarning = true
		}
	}
	if !foundDuplicateWarning {
		t.Fatal("expected a warning for the duplicate stem")
	}
}

func TestScanIgnoresNonWasmFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	cache := wazero.NewCompilationCache()
	defer cache.Close(context.Background())

	result := Scan(context.Background(), cache, sandbox.DefaultDefaults(), []string{dir})
	if len(result.Tools) != 0 {
		t.Fatalf("expected no tools from a non-wasm file, got %v", result.Tools)
	}
}

func TestLoadCapabilitiesFallsBackToEmptyWhenMissing(t *testing.T) {
	dir := t.TempDir()
	policy, err := loadCapabilities(filepath.Join(dir, "tool.wasm"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if policy.Secrets != nil || policy.HTTP != nil {
		t.Fatal("expected empty policy when capabilities file absent")
	}
}

func TestLoadCapabilitiesErrorsOnMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	capPath := filepath.Join(dir, "tool.capabilities.json")
	if err := os.WriteFile(capPath, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadCapabilities(filepath.Join(dir, "tool.wasm")); err == nil {
		t.Fatal("expected error for malformed capabilities file")
	}
}

func writeFakeWasm(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("not a real wasm module"), 0o644); err != nil {
		t.Fatal(err)
	}
}
