// SPDX-License-Identifier: Apache-2.0

package orchestrator_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-ai/kestrel/internal/core/models"
	"github.com/kestrel-ai/kestrel/internal/observability"
	"github.com/kestrel-ai/kestrel/internal/orchestrator"
	"github.com/kestrel-ai/kestrel/internal/orchestrator/executor"
	"github.com/kestrel-ai/kestrel/internal/orchestrator/registry"
	"github.com/kestrel-ai/kestrel/internal/testutil"
)

type orchestratorHarness struct {
	dispatcher *testutil.MockDispatcher
	verifier   *testutil.MockVerifier
	planner    *testutil.MockPlanner
	replanner  *testutil.MockReplanner
	registry   *registry.Registry
	orch       *orchestrator.Orchestrator
}

func newOrchestratorHarness() *orchestratorHarness {
	h := &orchestratorHarness{
		dispatcher: new(testutil.MockDispatcher),
		verifier:   new(testutil.MockVerifier),
		planner:    new(testutil.MockPlanner),
		replanner:  new(testutil.MockReplanner),
		registry:   registry.New(),
	}
	log := observability.NewLoggerTo(&bytes.Buffer{})
	steps := executor.NewStepExecutor(h.dispatcher, h.verifier, 0.3, log)
	planExec := executor.NewPlanExecutor(steps, h.planner, h.replanner, log)
	h.orch = orchestrator.New(h.planner, planExec, h.registry, log)
	return h
}

func TestProcessQuerySuccess(t *testing.T) {
	h := newOrchestratorHarness()

	plan := models.NewPlan([]*models.Step{{
		ID:     1,
		Tool:   models.ToolAnalyze,
		Params: map[string]any{},
		Status: models.StatusPending,
	}})
	h.planner.On("GeneratePlan", mock.Anything, "count the rows", mock.Anything).
		Return(plan, nil).Once()
	h.dispatcher.On("Execute", mock.Anything, mock.Anything, mock.Anything).
		Return(models.ToolResult{Tool: models.ToolAnalyze, Payload: map[string]any{"status": "success", "count": 12}})
	h.verifier.On("Verify", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(models.VerificationResult{Score: 1, Passed: true})

	resp, err := h.orch.ProcessQuery(context.Background(), models.QueryRequest{Query: "count the rows"})
	require.NoError(t, err)

	assert.Equal(t, plan.PlanID, resp.PlanID)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, []string{"Count: 12"}, resp.Answers)
	assert.Len(t, resp.Steps, 1)
	assert.Greater(t, resp.ExecutionTime, 0.0)

	status, ok := h.orch.PlanStatus(plan.PlanID)
	require.True(t, ok, "executed plan stays registered for status lookups")
	assert.Equal(t, 1, status.CompletedSteps)
}

func TestProcessQueryFilesPassedToPlanner(t *testing.T) {
	h := newOrchestratorHarness()

	var planCtx map[string]any
	plan := models.NewPlan([]*models.Step{{
		ID: 1, Tool: models.ToolLoadLocal, Params: map[string]any{}, Status: models.StatusPending,
	}})
	h.planner.On("GeneratePlan", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { planCtx = args.Get(2).(map[string]any) }).
		Return(plan, nil)
	h.dispatcher.On("Execute", mock.Anything, mock.Anything, mock.Anything).
		Return(models.ToolResult{Tool: models.ToolLoadLocal, Payload: map[string]any{"status": "success", "count": 1}})
	h.verifier.On("Verify", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(models.VerificationResult{Score: 1, Passed: true})

	req := models.QueryRequest{
		Query:   "load sales",
		Context: map[string]any{"region": "emea"},
		Files:   []string{"sales.csv"},
	}
	_, err := h.orch.ProcessQuery(context.Background(), req)
	require.NoError(t, err)

	require.NotNil(t, planCtx)
	assert.Equal(t, []string{"sales.csv"}, planCtx["files"])
	assert.Equal(t, "emea", planCtx["region"])
}

func TestProcessQueryPlanningFailure(t *testing.T) {
	h := newOrchestratorHarness()

	h.planner.On("GeneratePlan", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, assert.AnError)

	_, err := h.orch.ProcessQuery(context.Background(), models.QueryRequest{Query: "anything"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "plan generation failed")
	h.dispatcher.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessQueryInvalidPlanRejected(t *testing.T) {
	h := newOrchestratorHarness()

	// Empty plan fails validation before any step runs.
	h.planner.On("GeneratePlan", mock.Anything, mock.Anything, mock.Anything).
		Return(models.NewPlan(nil), nil)

	_, err := h.orch.ProcessQuery(context.Background(), models.QueryRequest{Query: "anything"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "generated plan is invalid")
}

func TestProcessQueryAbortedPlanReportsFailure(t *testing.T) {
	h := newOrchestratorHarness()

	plan := models.NewPlan([]*models.Step{{
		ID: 1, Tool: models.ToolDuckDB, Params: map[string]any{}, Status: models.StatusPending,
	}})
	h.planner.On("GeneratePlan", mock.Anything, mock.Anything, mock.Anything).
		Return(plan, nil)
	h.dispatcher.On("Execute", mock.Anything, mock.Anything, mock.Anything).
		Return(models.ErrorResult(models.ToolDuckDB, assert.AnError))
	h.replanner.On("Replan", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&models.ExecutionPlan{PlanID: plan.PlanID})

	resp, err := h.orch.ProcessQuery(context.Background(), models.QueryRequest{Query: "doomed"})
	require.NoError(t, err, "step failures are not request-level errors")

	assert.Equal(t, "failed", resp.Status)
	assert.Equal(t, []string{executor.FailureAnswer}, resp.Answers)
}
