// Command dcims runs the DCIMS service and talks to a running one.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version and commit are injected at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dcims",
		Short: "Data center inventory: servers, locations and dashboards",
		Long: `dcims serves the inventory API (servers, location cascade, dashboards
and widget data) and provides client commands for bulk CSV import and export.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("env-file", "", "load environment variables from this file first")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the dcims version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dcims %s (%s)\n", version, commit)
		},
	}

	root.AddCommand(newServeCmd(), newImportCmd(), newExportCmd(), newQueryCmd(), newHealthCmd(), versionCmd)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
