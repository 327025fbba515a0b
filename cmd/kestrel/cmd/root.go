// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrel-ai/kestrel/cmd/kestrel/cmd/plan"
	"github.com/kestrel-ai/kestrel/cmd/kestrel/cmd/query"
	"github.com/kestrel-ai/kestrel/cmd/kestrel/cmd/serve"
	"github.com/kestrel-ai/kestrel/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "kestrel",
	Short: "LLM-driven data analysis orchestrator",
	Long: `Kestrel turns natural-language questions into executable analysis
plans: it generates a step sequence with a language model, runs each step
through built-in tools (web fetching, local files, SQL, statistics,
charts), verifies every output and replans failed steps on the fly.`,
	Version: fmt.Sprintf("%s (commit: %s)", version.Version, version.Commit),
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to config file")
	rootCmd.PersistentFlags().String("data-dir", "", "base directory for local file loading")

	rootCmd.AddCommand(query.NewQueryCmd())
	rootCmd.AddCommand(plan.GetPlanCmd())
	rootCmd.AddCommand(serve.NewServeCmd())
}
