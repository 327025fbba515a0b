// SPDX-License-Identifier: Apache-2.0

package query

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kestrel-ai/kestrel/internal/app"
	"github.com/kestrel-ai/kestrel/internal/core/format"
	"github.com/kestrel-ai/kestrel/internal/core/models"
)

// NewQueryCmd creates the one-shot query command: plan, execute and print
// the answers.
func NewQueryCmd() *cobra.Command {
	queryCmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Answer a question by planning and executing analysis steps",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			question := strings.Join(args, " ")
			configFile, _ := cmd.Flags().GetString("config")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			files, _ := cmd.Flags().GetStringSlice("file")
			asJSON, _ := cmd.Flags().GetBool("json")

			a, err := app.New(configFile, dataDir)
			if err != nil {
				fmt.Printf("Error initializing: %v\n", err)
				os.Exit(1)
			}
			defer a.Close()

			resp, err := a.Orchestrator.ProcessQuery(cmd.Context(), models.QueryRequest{
				Query: question,
				Files: files,
			})
			if err != nil {
				fmt.Printf("Error processing query: %v\n", err)
				os.Exit(1)
			}

			if asJSON {
				out, err := format.FormatData(resp, false)
				if err != nil {
					fmt.Printf("Error formatting response: %v\n", err)
					os.Exit(1)
				}
				fmt.Println(out)
				return
			}

			for _, answer := range resp.Answers {
				fmt.Println(answer)
			}
			fmt.Printf("\nPlan %s finished with status %s in %.2fs\n",
				resp.PlanID, resp.Status, resp.ExecutionTime)
		},
	}

	queryCmd.Flags().StringSlice("file", nil, "local data files available to the plan")
	queryCmd.Flags().Bool("json", false, "print the full response as JSON")
	return queryCmd
}
