package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/oriys/lemonhost/internal/discovery"
	"github.com/oriys/lemonhost/internal/logging"
	"github.com/oriys/lemonhost/internal/sandbox"
	"github.com/spf13/cobra"
	"github.com/tetratelabs/wazero"
)

func discoverCmd() *cobra.Command {
	var paths []string

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Scan for WebAssembly tools and print the catalogue as JSON",
		Long:  "Runs a one-shot discovery scan (the same scan a running daemon performs on startup) and prints the resulting tool catalogue to stdout, without holding any runtime open to serve invocations.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logging.SetLevelFromString(cfg.Daemon.LogLevel)

			scanPaths := paths
			if len(scanPaths) == 0 {
				scanPaths = cfg.Discovery.Paths
			}
			if len(scanPaths) == 0 {
				return fmt.Errorf("no tool paths configured (use --paths or discovery.paths in config)")
			}

			defaults := sandbox.Defaults{
				MemoryBytes:    cfg.Discovery.DefaultMemoryLimit,
				TimeoutMs:      cfg.Discovery.DefaultTimeoutMs,
				Fuel:           cfg.Discovery.DefaultFuelLimit,
				MaxInvokeDepth: cfg.Discovery.MaxToolInvokeDepth,
			}

			cache := wazero.NewCompilationCache()
			defer cache.Close(context.Background())

			result := discovery.Scan(context.Background(), cache, defaults, scanPaths)
			return printDiscoverResult(result)
		},
	}

	cmd.Flags().StringArrayVar(&paths, "paths", nil, "Directories to scan for .wasm tools (overrides config)")
	return cmd
}

func printDiscoverResult(result discovery.Result) error {
	type toolEntry struct {
		Name        string          `json:"name"`
		Path        string          `json:"path"`
		Description string          `json:"description"`
		SchemaJSON  json.RawMessage `json:"schema"`
	}

	entries := make([]toolEntry, 0, len(result.Tools))
	for _, t := range result.Tools {
		entries = append(entries, toolEntry{
			Name:        t.Name,
			Path:        t.Path,
			Description: t.Description,
			SchemaJSON:  json.RawMessage(t.SchemaJSON),
		})
	}

	out := struct {
		Tools    []toolEntry `json:"tools"`
		Warnings []string    `json:"warnings"`
		Errors   []string    `json:"errors"`
	}{Tools: entries, Warnings: result.Warnings, Errors: result.Errors}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
