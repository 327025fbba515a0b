// SPDX-License-Identifier: Apache-2.0

package executor_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-ai/kestrel/internal/core/models"
	"github.com/kestrel-ai/kestrel/internal/observability"
	"github.com/kestrel-ai/kestrel/internal/orchestrator/executor"
	"github.com/kestrel-ai/kestrel/internal/testutil"
)

type planHarness struct {
	dispatcher *testutil.MockDispatcher
	verifier   *testutil.MockVerifier
	planner    *testutil.MockPlanner
	replanner  *testutil.MockReplanner
	executor   *executor.PlanExecutor
}

func newPlanHarness() *planHarness {
	h := &planHarness{
		dispatcher: new(testutil.MockDispatcher),
		verifier:   new(testutil.MockVerifier),
		planner:    new(testutil.MockPlanner),
		replanner:  new(testutil.MockReplanner),
	}
	log := observability.NewLoggerTo(&bytes.Buffer{})
	steps := executor.NewStepExecutor(h.dispatcher, h.verifier, acceptThreshold, log)
	h.executor = executor.NewPlanExecutor(steps, h.planner, h.replanner, log)
	return h
}

func (h *planHarness) passVerification() {
	h.verifier.On("Verify", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(models.VerificationResult{Score: 1, Confidence: 1, Passed: true})
}

func countPayload(n int) map[string]any {
	return map[string]any{"status": "success", "count": n}
}

func TestExecutePlanTwoStepSuccess(t *testing.T) {
	h := newPlanHarness()

	fetch := countPayload(1)
	analyze := countPayload(5)
	h.dispatcher.On("Execute", mock.Anything, models.ToolFetchWeb, mock.Anything).
		Return(models.ToolResult{Tool: models.ToolFetchWeb, Payload: fetch}).Once()
	var analyzeParams map[string]any
	h.dispatcher.On("Execute", mock.Anything, models.ToolAnalyze, mock.Anything).
		Run(func(args mock.Arguments) { analyzeParams = args.Get(2).(map[string]any) }).
		Return(models.ToolResult{Tool: models.ToolAnalyze, Payload: analyze}).Once()
	h.passVerification()

	first := pendingStep(1, models.ToolFetchWeb)
	second := pendingStep(2, models.ToolAnalyze)
	second.Params = map[string]any{"input": "output_of_step_1"}
	plan := models.NewPlan([]*models.Step{first, second})

	answers := h.executor.ExecutePlan(context.Background(), plan)

	assert.Equal(t, []string{"Count: 1", "Count: 5"}, answers)
	require.NotNil(t, analyzeParams)
	assert.Equal(t, fetch, analyzeParams["data"], "step 2 receives step 1's payload")

	status := plan.Status()
	assert.Equal(t, 2, status.CompletedSteps)
	assert.Zero(t, status.FailedSteps)
	h.replanner.AssertNotCalled(t, "Replan", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExecutePlanRecoversWithVerbatimRetry(t *testing.T) {
	h := newPlanHarness()

	// First dispatch fails, the retry of the same step succeeds.
	h.dispatcher.On("Execute", mock.Anything, models.ToolDuckDB, mock.Anything).
		Return(models.ErrorResult(models.ToolDuckDB, assert.AnError)).Once()
	h.dispatcher.On("Execute", mock.Anything, models.ToolDuckDB, mock.Anything).
		Return(models.ToolResult{Tool: models.ToolDuckDB, Payload: countPayload(3)}).Once()
	h.passVerification()

	failed := pendingStep(1, models.ToolDuckDB)
	plan := models.NewPlan([]*models.Step{failed})

	h.replanner.On("Replan", mock.Anything, plan, failed, mock.Anything, mock.Anything).
		Return(&models.ExecutionPlan{PlanID: plan.PlanID, Steps: []*models.Step{failed.Retry()}}).Once()

	answers := h.executor.ExecutePlan(context.Background(), plan)

	assert.Equal(t, []string{"Count: 3"}, answers)
	assert.Equal(t, 1, plan.Len(), "failed step replaced in place, not appended")
	assert.Equal(t, models.StatusSuccess, plan.StepAt(0).Status)
	h.replanner.AssertNumberOfCalls(t, "Replan", 1)
}

func TestExecutePlanAbortsWhenSubstituteFails(t *testing.T) {
	h := newPlanHarness()

	// Both the original step and its substitute fail on dispatch.
	h.dispatcher.On("Execute", mock.Anything, mock.Anything, mock.Anything).
		Return(models.ErrorResult(models.ToolDuckDB, assert.AnError))

	failed := pendingStep(1, models.ToolDuckDB)
	plan := models.NewPlan([]*models.Step{failed})

	h.replanner.On("Replan", mock.Anything, plan, failed, mock.Anything, mock.Anything).
		Return(&models.ExecutionPlan{PlanID: plan.PlanID, Steps: []*models.Step{failed.Retry()}})

	answers := h.executor.ExecutePlan(context.Background(), plan)

	assert.Equal(t, []string{executor.FailureAnswer}, answers)
	// The retrying substitute must not trigger a second replan.
	h.replanner.AssertNumberOfCalls(t, "Replan", 1)
}

func TestExecutePlanEmptyReplanAborts(t *testing.T) {
	h := newPlanHarness()

	h.dispatcher.On("Execute", mock.Anything, mock.Anything, mock.Anything).
		Return(models.ErrorResult(models.ToolAnalyze, assert.AnError))

	failed := pendingStep(1, models.ToolAnalyze)
	plan := models.NewPlan([]*models.Step{failed})

	h.replanner.On("Replan", mock.Anything, plan, failed, mock.Anything, mock.Anything).
		Return(&models.ExecutionPlan{PlanID: plan.PlanID})

	answers := h.executor.ExecutePlan(context.Background(), plan)
	assert.Equal(t, []string{executor.FailureAnswer}, answers)
	assert.Zero(t, plan.Len(), "failed step removed, nothing spliced in")
}

func TestExecutePlanNoFormattableAnswers(t *testing.T) {
	h := newPlanHarness()

	// Succeeds but the payload shape yields no answer line.
	h.dispatcher.On("Execute", mock.Anything, mock.Anything, mock.Anything).
		Return(models.ToolResult{Tool: models.ToolAnalyze, Payload: map[string]any{"status": "success"}})
	h.passVerification()

	plan := models.NewPlan([]*models.Step{pendingStep(1, models.ToolAnalyze)})
	answers := h.executor.ExecutePlan(context.Background(), plan)

	require.Len(t, answers, 1, "answer list is never empty")
	assert.Equal(t, executor.FailureAnswer, answers[0])
}

func TestExecutePlanExpandsDeferredStep(t *testing.T) {
	h := newPlanHarness()

	h.dispatcher.On("Execute", mock.Anything, models.ToolAnalyze, mock.Anything).
		Return(models.ToolResult{Tool: models.ToolAnalyze, Payload: countPayload(2)})
	h.passVerification()

	deferred := pendingStep(1, models.ToolAnalyze)
	deferred.StepType = models.StepTypeLLMQuery
	deferred.ExpectedOutput = "summarize the dataset"
	plan := models.NewPlan([]*models.Step{deferred})

	sub := models.NewPlan([]*models.Step{pendingStep(1, models.ToolAnalyze)})
	h.planner.On("GeneratePlan", mock.Anything, "summarize the dataset", mock.Anything).
		Return(sub, nil).Once()

	answers := h.executor.ExecutePlan(context.Background(), plan)

	assert.Equal(t, []string{"Count: 2"}, answers)
	assert.Equal(t, 1, plan.Len(), "placeholder replaced by the decomposed step")
	h.planner.AssertExpectations(t)
}

func TestExecutePlanDeferredDecompositionFailureContinues(t *testing.T) {
	h := newPlanHarness()

	h.dispatcher.On("Execute", mock.Anything, models.ToolAnalyze, mock.Anything).
		Return(models.ToolResult{Tool: models.ToolAnalyze, Payload: countPayload(9)})
	h.passVerification()

	deferred := pendingStep(1, models.ToolAnalyze)
	deferred.StepType = models.StepTypeLLMQuery
	deferred.ExpectedOutput = "impossible goal"
	tail := pendingStep(2, models.ToolAnalyze)
	plan := models.NewPlan([]*models.Step{deferred, tail})

	h.planner.On("GeneratePlan", mock.Anything, "impossible goal", mock.Anything).
		Return(nil, assert.AnError).Once()

	answers := h.executor.ExecutePlan(context.Background(), plan)

	assert.Equal(t, []string{"Count: 9"}, answers, "remaining steps still run")
	assert.Equal(t, 1, plan.Len(), "placeholder removed without substitutes")
}

func TestExecutePlanCachesSchemaForLaterSteps(t *testing.T) {
	h := newPlanHarness()

	schemaPayload := map[string]any{
		"status": "success",
		"data":   map[string]any{"columns": []any{"a", "b"}},
	}
	h.dispatcher.On("Execute", mock.Anything, models.ToolAnalyze, mock.Anything).
		Return(models.ToolResult{Tool: models.ToolAnalyze, Payload: schemaPayload}).Once()

	var laterCtx map[string]any
	h.dispatcher.On("Execute", mock.Anything, models.ToolDuckDB, mock.Anything).
		Return(models.ToolResult{Tool: models.ToolDuckDB, Payload: countPayload(1)}).Once()
	h.verifier.On("Verify", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { laterCtx = args.Get(3).(map[string]any) }).
		Return(models.VerificationResult{Score: 1, Passed: true})

	probe := pendingStep(1, models.ToolAnalyze)
	probe.StepType = models.StepTypeSchema
	query := pendingStep(2, models.ToolDuckDB)
	plan := models.NewPlan([]*models.Step{probe, query})

	h.executor.ExecutePlan(context.Background(), plan)

	require.NotNil(t, laterCtx)
	assert.Equal(t, schemaPayload, laterCtx["schema"], "schema probe payload shared with later steps")
}

func TestExecutePlanToleratesSchemaProbeFailure(t *testing.T) {
	h := newPlanHarness()

	h.dispatcher.On("Execute", mock.Anything, models.ToolAnalyze, mock.Anything).
		Return(models.ErrorResult(models.ToolAnalyze, assert.AnError)).Once()
	h.dispatcher.On("Execute", mock.Anything, models.ToolDuckDB, mock.Anything).
		Return(models.ToolResult{Tool: models.ToolDuckDB, Payload: countPayload(4)}).Once()
	h.passVerification()

	probe := pendingStep(1, models.ToolAnalyze)
	probe.StepType = models.StepTypeSchema
	plan := models.NewPlan([]*models.Step{probe, pendingStep(2, models.ToolDuckDB)})

	answers := h.executor.ExecutePlan(context.Background(), plan)

	assert.Equal(t, []string{"Count: 4"}, answers)
	h.replanner.AssertNotCalled(t, "Replan", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExecutePlanReplannerPanicAborts(t *testing.T) {
	h := newPlanHarness()

	h.dispatcher.On("Execute", mock.Anything, mock.Anything, mock.Anything).
		Return(models.ErrorResult(models.ToolAnalyze, assert.AnError))

	failed := pendingStep(1, models.ToolAnalyze)
	plan := models.NewPlan([]*models.Step{failed})

	h.replanner.On("Replan", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { panic("replanner exploded") }).
		Return(nil)

	var answers []string
	require.NotPanics(t, func() {
		answers = h.executor.ExecutePlan(context.Background(), plan)
	})
	assert.Equal(t, []string{executor.FailureAnswer}, answers)
}
