// SPDX-License-Identifier: Apache-2.0

package planner

import (
	"github.com/xeipuuv/gojsonschema"

	"github.com/kestrel-ai/kestrel/internal/core/models"
)

// stepSchema validates one step document after defaults have been applied.
// Steps that fail validation (unknown tool, non-integer id) are dropped
// rather than failing the whole plan.
var stepSchema = gojsonschema.NewGoLoader(stepSchemaDoc())

func stepSchemaDoc() map[string]any {
	tools := make([]any, 0, len(models.AllTools))
	for _, t := range models.AllTools {
		tools = append(tools, string(t))
	}
	return map[string]any{
		"type":     "object",
		"required": []any{"step_id", "tool"},
		"properties": map[string]any{
			"step_id": map[string]any{
				"type":    "integer",
				"minimum": 1,
			},
			"tool": map[string]any{
				"type": "string",
				"enum": tools,
			},
			"params": map[string]any{
				"type": "object",
			},
			"expected_output": map[string]any{
				"type": "string",
			},
			"step_type": map[string]any{
				"type": "string",
				"enum": []any{models.StepTypeAction, models.StepTypeLLMQuery, models.StepTypeSchema},
			},
		},
	}
}

// validStep reports whether a step document conforms to the step schema.
func validStep(doc map[string]any) bool {
	result, err := gojsonschema.Validate(stepSchema, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return false
	}
	return result.Valid()
}
