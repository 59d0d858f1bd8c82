package main

import (
	"fmt"
	"os"

	"github.com/oriys/lemonhost/internal/config"
	"github.com/spf13/cobra"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "lemonhost",
		Short: "lemonhost - sandboxed WebAssembly tool execution sidecar",
		Long:  "A sidecar process that loads untrusted WebAssembly tool modules and executes them under a capability-based policy over a JSON-over-stdio wire protocol.",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (optional, flags and env override)")

	rootCmd.AddCommand(
		serveCmd(),
		discoverCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}
	config.LoadFromEnv(cfg)
	return cfg, nil
}
