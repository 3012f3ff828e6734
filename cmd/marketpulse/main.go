// Command marketpulse is the CLI entry point for the market pulse report
// generator. It wires the process-wide singletons - configuration,
// telemetry, cache, model gateway, tool registry - into one Orchestrator and
// exposes a "generate" subcommand, grounded on the pack's cobra-based
// command-tree convention rather than a single flat main().
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "marketpulse:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "marketpulse",
		Short: "Generate market pulse reports for Indian equity portfolios",
		Long: `marketpulse orchestrates the Market Intelligence, Portfolio Insight, and
Summary Generation agents into a single report: market phase and outlook,
causally-grounded news themes, and portfolio-specific impact analysis.`,
	}
	cmd.AddCommand(buildGenerateCmd())
	return cmd
}
