package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// buildVersion is overridable at link time via -ldflags "-X main.buildVersion=...".
var buildVersion = "dev"

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the lemonhost version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("lemonhost %s\n", buildVersion)
			return nil
		},
	}
}
