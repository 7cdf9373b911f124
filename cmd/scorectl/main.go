// Command scorectl scores bank histories offline and checks scoring
// configuration files.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "scorectl",
		Short: "BNPL risk scoring tools",
		Long: `Score a transaction history with the same engine the API uses, or check
a scoring configuration before deploying it.

Examples:
  scorectl score history.json --amount 30000
  scorectl score statement.xml --amount 30000 --config scoring.yaml
  scorectl config validate --config scoring.yaml
  scorectl config defaults > scoring.yaml`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "Scoring config YAML (environment overrides still apply)")

	root.AddCommand(newScoreCmd(), newConfigCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
