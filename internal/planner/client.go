// SPDX-License-Identifier: Apache-2.0

// Package planner turns natural-language queries into execution plans by
// prompting a language model and parsing its JSON response leniently. The
// replanner half produces substitute steps for failed ones and never fails
// outright.
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

const plannerSystemPrompt = "You are an expert data analysis planner. Return only valid JSON."

const plannerPromptTemplate = `You are a step-by-step planner for data analysis tasks.
Create a JSON plan with steps to answer the user query.

Available tools: fetch_web, load_local, duckdb_runner, analyze, visualize, verifier.
Reference a previous step's output with the string "output_of_step_<id>".

Response format:
{
  "steps": [
    {
      "step_id": 1,
      "tool": "tool_name",
      "params": {"param": "value"},
      "expected_output": "description"
    }
  ]
}

User query: %s

Context:
%s
`

// Client generates execution plans with a language model.
type Client struct {
	model llms.Model
	retry config.RetryConfig
	log   *observability.Logger
}

// NewClient creates a planner client.
func NewClient(model llms.Model, retry config.RetryConfig, log *observability.Logger) *Client {
	return &Client{model: model, retry: retry, log: log}
}

// GeneratePlan prompts the model for a plan answering the query. Malformed
// responses degrade to an empty plan; only transport-level failures return
// an error.
func (c *Client) GeneratePlan(ctx context.Context, query string, planCtx map[string]any) (*models.ExecutionPlan, error) {
	prompt := fmt.Sprintf(plannerPromptTemplate, query, contextJSON(planCtx))

	content, err := llm.Generate(ctx, c.model, c.retry, plannerSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("planner request failed: %w", err)
	}
	c.log.LogLLM("planner", prompt, content)

	return models.NewPlan(parseSteps(content)), nil
}

func contextJSON(planCtx map[string]any) string {
	if len(planCtx) == 0 {
		return "{}"
	}
	data, err := json.MarshalIndent(planCtx, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// parseSteps extracts step documents from a model response. Models return
// the steps array, a bare single step object, or garbage; the first two are
// handled, the third yields no steps. Individual malformed steps are
// dropped, with missing fields defaulted first.
func parseSteps(content string) []*models.Step {
	raw := llm.ExtractJSON(content)
	if raw == "" {
		return nil
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil
	}
	return StepsFromDocument(doc)
}

// StepsFromDocument materializes steps from a decoded plan document. Also
// used by the CLI to load plan files from disk.
func StepsFromDocument(doc map[string]any) []*models.Step {
	var stepList []any
	if rawSteps, ok := doc["steps"].([]any); ok {
		stepList = rawSteps
	} else if doc["step_id"] != nil && doc["tool"] != nil {
		// A single step object instead of a steps array.
		stepList = []any{doc}
	}

	steps := make([]*models.Step, 0, len(stepList))
	for _, rawStep := range stepList {
		stepDoc, ok := rawStep.(map[string]any)
		if !ok {
			continue
		}
		if step := buildStep(stepDoc, len(steps)+1); step != nil {
			steps = append(steps, step)
		}
	}
	return steps
}

// buildStep applies defaults to a step document, validates it against the
// step schema and materializes it. Returns nil for steps that remain
// invalid after defaulting.
func buildStep(doc map[string]any, fallbackID int) *models.Step {
	if _, ok := doc["step_id"]; !ok {
		doc["step_id"] = fallbackID
	}
	if _, ok := doc["tool"]; !ok {
		doc["tool"] = string(models.ToolAnalyze)
	}
	if _, ok := doc["params"]; !ok {
		doc["params"] = map[string]any{}
	}
	if !validStep(doc) {
		return nil
	}

	id, ok := asInt(doc["step_id"])
	if !ok {
		return nil
	}
	tool, _ := doc["tool"].(string)
	params, _ := doc["params"].(map[string]any)
	expected, _ := doc["expected_output"].(string)
	stepType, _ := doc["step_type"].(string)
	if stepType == "" {
		stepType = models.StepTypeAction
	}

	return &models.Step{
		ID:             id,
		Tool:           models.ToolType(tool),
		Params:         params,
		ExpectedOutput: expected,
		StepType:       stepType,
		Status:         models.StatusPending,
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}
