// mockgate is a programmable mock-and-proxy HTTP gateway.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	root := &cobra.Command{
		Use:   "mockgate",
		Short: "Programmable mock-and-proxy HTTP gateway",
		Long: `mockgate resolves every inbound HTTP request against configured rules:
synthesize a canned response, forward to a real upstream, or substitute a
fallback when the upstream fails.`,
		SilenceUsage: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mockgate %s (commit %s, built %s)\n", version, commit, buildDate)
		},
	}
}
