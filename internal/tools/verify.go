// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"fmt"

	"github.com/kestrel-ai/kestrel/internal/core/models"
	"github.com/kestrel-ai/kestrel/internal/verifier"
)

// VerifyTool exposes the blended verifier as a plan-schedulable tool, so a
// plan can include an explicit verification step over a prior output.
type VerifyTool struct {
	verifier *verifier.Verifier
}

// NewVerifyTool wraps the given verifier.
func NewVerifyTool(v *verifier.Verifier) *VerifyTool {
	return &VerifyTool{verifier: v}
}

func (t *VerifyTool) Name() models.ToolType { return models.ToolVerifier }

// Run verifies the "output" param against "expected_output". "step_id",
// "tool" and "tool_params" describe the step that produced the output.
func (t *VerifyTool) Run(ctx context.Context, params map[string]any) (map[string]any, error) {
	output, ok := params["output"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("output parameter is required")
	}

	stepID := 0
	if v, isNum := toFloat(params["step_id"]); isNum {
		stepID = int(v)
	}
	toolName, _ := params["tool"].(string)
	toolParams, _ := params["tool_params"].(map[string]any)
	expected, _ := params["expected_output"].(string)
	prior, _ := params["previous_context"].(map[string]any)

	step := &models.Step{
		ID:             stepID,
		Tool:           models.ToolType(toolName),
		Params:         toolParams,
		ExpectedOutput: expected,
	}
	result := t.verifier.Verify(ctx, step, output, prior)

	issues := make([]any, 0, len(result.Issues))
	for _, issue := range result.Issues {
		issues = append(issues, map[string]any{
			"kind":    string(issue.Kind),
			"message": issue.Message,
		})
	}
	return map[string]any{
		"status": "success",
		"data": map[string]any{
			"score":      result.Score,
			"confidence": result.Confidence,
			"issues":     issues,
			"passed":     result.Passed,
		},
		"passed": result.Passed,
	}, nil
}
