// SPDX-License-Identifier: Apache-2.0

package plan

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kestrel-ai/kestrel/internal/app"
	"github.com/kestrel-ai/kestrel/internal/core/format"
	"github.com/kestrel-ai/kestrel/internal/core/models"
	"github.com/kestrel-ai/kestrel/internal/planner"
)

func getExecuteCmd() *cobra.Command {
	executeCmd := &cobra.Command{
		Use:   "execute [plan-file]",
		Short: "Execute a previously generated plan",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			planFile := args[0]
			configFile, _ := cmd.Flags().GetString("config")
			dataDir, _ := cmd.Flags().GetString("data-dir")

			a, err := app.New(configFile, dataDir)
			if err != nil {
				fmt.Printf("Error initializing: %v\n", err)
				os.Exit(1)
			}
			defer a.Close()

			var doc map[string]any
			if err := format.ParseFile(planFile, &doc); err != nil {
				fmt.Printf("Error parsing plan file: %v\n", err)
				os.Exit(1)
			}

			steps := planner.StepsFromDocument(doc)
			plan := models.NewPlan(steps)
			if err := plan.Validate(); err != nil {
				fmt.Printf("Error: plan is invalid: %v\n", err)
				os.Exit(1)
			}

			a.Plans.Add(plan)
			answers := a.PlanExecutor.ExecutePlan(cmd.Context(), plan)
			for _, answer := range answers {
				fmt.Println(answer)
			}

			status := plan.Status()
			fmt.Printf("\nPlan %s: %d/%d steps completed, %d failed\n",
				plan.PlanID, status.CompletedSteps, status.TotalSteps, status.FailedSteps)
		},
	}
	return executeCmd
}
