// SPDX-License-Identifier: Apache-2.0

package planner_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-ai/kestrel/internal/core/config"
	"github.com/kestrel-ai/kestrel/internal/core/models"
	"github.com/kestrel-ai/kestrel/internal/observability"
	"github.com/kestrel-ai/kestrel/internal/planner"
	"github.com/kestrel-ai/kestrel/internal/testutil"
)

func fastRetry() config.RetryConfig {
	return config.RetryConfig{
		MaxAttempts:       2,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        5 * time.Millisecond,
	}
}

func silentLogger() *observability.Logger {
	return observability.NewLoggerTo(&bytes.Buffer{})
}

func TestGeneratePlanParsesSteps(t *testing.T) {
	model := &testutil.FakeModel{Responses: []string{"```json\n" + `{
		"steps": [
			{"step_id": 1, "tool": "load_local", "params": {"file_path": "data.csv"}, "expected_output": "loaded rows"},
			{"step_id": 2, "tool": "analyze", "params": {"input": "output_of_step_1", "operation": "summary"}}
		]
	}` + "\n```"}}
	client := planner.NewClient(model, fastRetry(), silentLogger())

	plan, err := client.GeneratePlan(context.Background(), "summarize data.csv", nil)
	require.NoError(t, err)
	require.Equal(t, 2, plan.Len())

	first := plan.StepAt(0)
	assert.Equal(t, 1, first.ID)
	assert.Equal(t, models.ToolLoadLocal, first.Tool)
	assert.Equal(t, "data.csv", first.Params["file_path"])
	assert.Equal(t, "loaded rows", first.ExpectedOutput)
	assert.Equal(t, models.StatusPending, first.Status)
	assert.Equal(t, models.StepTypeAction, first.StepType)

	assert.NoError(t, plan.Validate())
}

func TestGeneratePlanSingleObjectResponse(t *testing.T) {
	model := &testutil.FakeModel{Responses: []string{
		`{"step_id": 1, "tool": "analyze", "params": {"operation": "count"}}`,
	}}
	client := planner.NewClient(model, fastRetry(), silentLogger())

	plan, err := client.GeneratePlan(context.Background(), "how many rows", nil)
	require.NoError(t, err)
	require.Equal(t, 1, plan.Len(), "a bare step object is wrapped as a one-step plan")
	assert.Equal(t, models.ToolAnalyze, plan.StepAt(0).Tool)
}

func TestGeneratePlanDropsInvalidSteps(t *testing.T) {
	model := &testutil.FakeModel{Responses: []string{`{
		"steps": [
			{"step_id": 1, "tool": "teleport", "params": {}},
			{"step_id": 2, "tool": "analyze", "params": {}},
			"not even an object"
		]
	}`}}
	client := planner.NewClient(model, fastRetry(), silentLogger())

	plan, err := client.GeneratePlan(context.Background(), "q", nil)
	require.NoError(t, err)
	require.Equal(t, 1, plan.Len(), "unknown tool and non-object entries are dropped")
	assert.Equal(t, 2, plan.StepAt(0).ID)
}

func TestGeneratePlanDefaultsMissingFields(t *testing.T) {
	model := &testutil.FakeModel{Responses: []string{`{
		"steps": [
			{"params": {"operation": "summary"}}
		]
	}`}}
	client := planner.NewClient(model, fastRetry(), silentLogger())

	plan, err := client.GeneratePlan(context.Background(), "q", nil)
	require.NoError(t, err)
	require.Equal(t, 1, plan.Len())
	assert.Equal(t, 1, plan.StepAt(0).ID, "missing step_id defaults to the position")
	assert.Equal(t, models.ToolAnalyze, plan.StepAt(0).Tool, "missing tool defaults to analyze")
}

func TestGeneratePlanGarbageResponse(t *testing.T) {
	model := &testutil.FakeModel{Responses: []string{"I cannot help with that."}}
	client := planner.NewClient(model, fastRetry(), silentLogger())

	plan, err := client.GeneratePlan(context.Background(), "q", nil)
	require.NoError(t, err, "garbage degrades to an empty plan, not an error")
	assert.Zero(t, plan.Len())
	assert.Error(t, plan.Validate())
}

func TestGeneratePlanTransportError(t *testing.T) {
	model := &testutil.FakeModel{Err: assert.AnError}
	client := planner.NewClient(model, fastRetry(), silentLogger())

	_, err := client.GeneratePlan(context.Background(), "q", nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "planner request failed")
}

func TestStepsFromDocumentRoundTrip(t *testing.T) {
	doc := map[string]any{
		"steps": []any{
			map[string]any{
				"step_id":         float64(1),
				"tool":            "duckdb_runner",
				"params":          map[string]any{"query": "SELECT 1"},
				"expected_output": "one row",
				"step_type":       "action",
			},
		},
	}

	steps := planner.StepsFromDocument(doc)
	require.Len(t, steps, 1)
	assert.Equal(t, models.ToolDuckDB, steps[0].Tool)
	assert.Equal(t, "SELECT 1", steps[0].Params["query"])
}
