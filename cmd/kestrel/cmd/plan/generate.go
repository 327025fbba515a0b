// SPDX-License-Identifier: Apache-2.0

package plan

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kestrel-ai/kestrel/internal/app"
	"github.com/kestrel-ai/kestrel/internal/core/format"
	"github.com/kestrel-ai/kestrel/internal/core/models"
)

func getGenerateCmd() *cobra.Command {
	generateCmd := &cobra.Command{
		Use:   "generate [question]",
		Short: "Generate an execution plan without running it",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			question := strings.Join(args, " ")
			configFile, _ := cmd.Flags().GetString("config")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			outputFile, _ := cmd.Flags().GetString("output")

			a, err := app.New(configFile, dataDir)
			if err != nil {
				fmt.Printf("Error initializing: %v\n", err)
				os.Exit(1)
			}
			defer a.Close()

			plan, err := a.Planner.GeneratePlan(cmd.Context(), question, nil)
			if err != nil {
				fmt.Printf("Error generating plan: %v\n", err)
				os.Exit(1)
			}
			if err := plan.Validate(); err != nil {
				fmt.Printf("Error: generated plan is invalid: %v\n", err)
				os.Exit(1)
			}

			doc := planDocument(plan)
			if outputFile == "" {
				out, err := format.FormatData(doc, false)
				if err != nil {
					fmt.Printf("Error formatting plan: %v\n", err)
					os.Exit(1)
				}
				fmt.Println(out)
				return
			}
			if err := format.WriteFile(outputFile, doc); err != nil {
				fmt.Printf("Error writing output file: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Plan saved to %s\n", outputFile)
		},
	}

	generateCmd.Flags().StringP("output", "o", "", "write the plan to a file instead of stdout")
	return generateCmd
}

// planDocument renders a plan as the document shape `plan execute` loads.
func planDocument(plan *models.ExecutionPlan) map[string]any {
	steps := make([]any, 0, plan.Len())
	for i := 0; i < plan.Len(); i++ {
		step := plan.StepAt(i)
		steps = append(steps, map[string]any{
			"step_id":         step.ID,
			"tool":            string(step.Tool),
			"params":          step.Params,
			"expected_output": step.ExpectedOutput,
			"step_type":       step.StepType,
		})
	}
	return map[string]any{
		"plan_id": plan.PlanID,
		"steps":   steps,
	}
}
