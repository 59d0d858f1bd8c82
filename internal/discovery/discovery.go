// Package discovery scans a directory for guest WebAssembly modules, loads
// each one's sibling capability file, instantiates it just long enough to
// read its description and schema, and assembles the sorted catalogue a
// discover request returns.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oriys/lemonhost/internal/capability"
	"github.com/oriys/lemonhost/internal/metrics"
	"github.com/oriys/lemonhost/internal/sandbox"
	"github.com/tetratelabs/wazero"
)

// Result is the full outcome of scanning a set of paths: the sorted,
// de-duplicated tool catalogue, plus any non-fatal warnings and per-artifact
// errors collected along the way.
type Result struct {
	Tools    []Tool
	Warnings []string
	Errors   []string
}

// Tool is one discovered, prepared guest ready to register with an Engine.
type Tool struct {
	Name         string
	Path         string
	Description  string
	SchemaJSON   string
	Capabilities *capability.Policy
	Auth         json.RawMessage
	Bytes        []byte
}

// Scan walks paths (non-recursively, one level per entry) looking for
// `*.wasm` files, loading each artifact's sibling `<stem>.capabilities.json`
// if present, and instantiating it once to read description()/schema().
// Stems that repeat across paths are resolved first-seen-wins, with a
// warning recorded for the dropped duplicate.
func Scan(ctx context.Context, cache wazero.CompilationCache, defaults sandbox.Defaults, paths []string) Result {
	start := time.Now()
	result := scan(ctx, cache, defaults, paths)
	metrics.Global().RecordDiscoveryRun(len(result.Tools), time.Since(start).Milliseconds())
	return result
}

func scan(ctx context.Context, cache wazero.CompilationCache, defaults sandbox.Defaults, paths []string) Result {
	var result Result
	seen := map[string]bool{}

	type candidate struct {
		stem string
		path string
	}
	var candidates []candidate

	for _, dir := range paths {
		entries, err := os.ReadDir(dir)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("scan %s: %s", dir, err))
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".wasm") {
				continue
			}
			stem := strings.TrimSuffix(entry.Name(), ".wasm")
			fullPath := filepath.Join(dir, entry.Name())
			if seen[stem] {
				result.Warnings = append(result.Warnings, fmt.Sprintf("duplicate tool stem %q at %s ignored; first occurrence wins", stem, fullPath))
				continue
			}
			seen[stem] = true
			candidates = append(candidates, candidate{stem: stem, path: fullPath})
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].stem < candidates[j].stem })

	names := map[string]bool{}
	for _, c := range candidates {
		tool, warnings, err := loadOne(ctx, cache, c.path, c.stem)
		result.Warnings = append(result.Warnings, warnings...)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", c.path, err))
			continue
		}
		if names[tool.Name] {
			result.Warnings = append(result.Warnings, fmt.Sprintf("tool name %q collides with an earlier entry; dropped", tool.Name))
			continue
		}
		names[tool.Name] = true
		result.Tools = append(result.Tools, tool)
	}

	sort.Slice(result.Tools, func(i, j int) bool { return result.Tools[i].Name < result.Tools[j].Name })
	return result
}

func loadOne(ctx context.Context, cache wazero.CompilationCache, path, stem string) (Tool, []string, error) {
	var warnings []string

	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return Tool{}, warnings, fmt.Errorf("read wasm file: %w", err)
	}

	policy, err := loadCapabilities(path)
	if err != nil {
		return Tool{}, warnings, err
	}

	description, schemaJSON, err := sandbox.InstantiateMetadata(ctx, cache, wasmBytes)
	if err != nil {
		return Tool{}, warnings, fmt.Errorf("instantiate for metadata: %w", err)
	}

	if description == "" {
		warnings = append(warnings, "tool returned empty description; using fallback")
		description = fmt.Sprintf("WASM tool %s", stem)
	}
	validated := sandbox.ValidateSchemaJSON(schemaJSON)
	if validated != schemaJSON {
		warnings = append(warnings, "tool returned empty or invalid schema; using fallback")
	}
	schemaJSON = validated

	name := stem
	if title, ok := sandbox.SchemaTitle(schemaJSON); ok {
		name = title
	}

	var auth json.RawMessage
	if policy.Auth != nil {
		auth, _ = json.Marshal(policy.Auth)
	}

	return Tool{
		Name:         name,
		Path:         path,
		Description:  description,
		SchemaJSON:   schemaJSON,
		Capabilities: policy,
		Auth:         auth,
		Bytes:        wasmBytes,
	}, warnings, nil
}

// loadCapabilities loads <stem>.capabilities.json next to the artifact,
// falling back to an empty (everything-denied) policy when it is absent.
func loadCapabilities(wasmPath string) (*capability.Policy, error) {
	capPath := strings.TrimSuffix(wasmPath, ".wasm") + ".capabilities.json"
	policy, err := capability.FromJSONFile(capPath)
	if err != nil {
		if os.IsNotExist(err) {
			return capability.Empty(), nil
		}
		return nil, fmt.Errorf("load capabilities: %w", err)
	}
	return policy, nil
}

// ToPrepared converts a discovered Tool plus resolved defaults into an
// Engine-ready PreparedTool.
func ToPrepared(t Tool, defaults sandbox.Defaults) *sandbox.PreparedTool {
	return &sandbox.PreparedTool{
		Name:         t.Name,
		Path:         t.Path,
		Description:  t.Description,
		SchemaJSON:   t.SchemaJSON,
		Bytes:        t.Bytes,
		Capabilities: t.Capabilities,
		Limits:       sandbox.FromDefaults(defaults),
	}
}
