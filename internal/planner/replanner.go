// SPDX-License-Identifier: Apache-2.0

package planner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/kestrel-ai/kestrel/internal/core/config"
	"github.com/kestrel-ai/kestrel/internal/core/models"
	"github.com/kestrel-ai/kestrel/internal/llm"
	"github.com/kestrel-ai/kestrel/internal/observability"
)

const replannerSystemPrompt = "You are an expert replanner. Return only valid JSON with a 'steps' array."

const replannerPromptTemplate = `You are a replanner that fixes failed steps.
Create an alternative approach for the failed step.

Available tools: fetch_web, load_local, duckdb_runner, analyze, visualize, verifier.
Reference a previous step's output with the string "output_of_step_<id>".

Original plan:
%s

Failed step:
%s

Error: %s
Verification score: %.2f

Return an updated JSON plan with a 'steps' array containing only the
replacement steps for the failed step.
`

// ReplanClient produces substitute steps for failed steps. It never
// returns an error: any internal failure degrades to a single verbatim
// retry of the failed step.
type ReplanClient struct {
	model llms.Model
	retry config.RetryConfig
	log   *observability.Logger
}

// NewReplanClient creates a replanner.
func NewReplanClient(model llms.Model, retry config.RetryConfig, log *observability.Logger) *ReplanClient {
	return &ReplanClient{model: model, retry: retry, log: log}
}

// Replan asks the model for substitute steps. A malformed or empty response
// falls back to retrying the failed step as-is, so the caller always gets a
// non-empty plan back.
func (c *ReplanClient) Replan(ctx context.Context, plan *models.ExecutionPlan, failed *models.Step, errorDetails string, verificationScore float64) *models.ExecutionPlan {
	prompt := fmt.Sprintf(replannerPromptTemplate,
		planJSON(plan), stepJSON(failed), errorDetails, verificationScore)

	content, err := llm.Generate(ctx, c.model, c.retry, replannerSystemPrompt, prompt)
	if err != nil {
		c.log.LogPlan(plan.PlanID, "replan request failed, retrying step verbatim", map[string]any{
			"step_id": failed.ID,
			"error":   err.Error(),
		})
		return retryPlan(failed)
	}
	c.log.LogLLM("replanner", prompt, content)

	steps := parseSteps(content)
	if len(steps) == 0 {
		return retryPlan(failed)
	}
	return &models.ExecutionPlan{PlanID: plan.PlanID, Steps: steps}
}

// retryPlan wraps a fresh pending copy of the failed step as the fallback
// substitute plan.
func retryPlan(failed *models.Step) *models.ExecutionPlan {
	return &models.ExecutionPlan{Steps: []*models.Step{failed.Retry()}}
}

func planJSON(plan *models.ExecutionPlan) string {
	return observability.Preview(plan.Status().Steps, 2000)
}

func stepJSON(step *models.Step) string {
	doc := map[string]any{
		"step_id":         step.ID,
		"tool":            step.Tool,
		"params":          step.Params,
		"expected_output": step.ExpectedOutput,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Sprintf("%v", doc)
	}
	return string(data)
}
