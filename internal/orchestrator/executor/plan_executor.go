// SPDX-License-Identifier: Apache-2.0

// Package executor drives plan execution: a cursor walks the plan's step
// sequence while failure handling and deferred decomposition splice
// substitute steps into the live plan in place.
package executor

import (
	"context"
	"fmt"

	"github.com/kestrel-ai/kestrel/internal/core/models"
	"github.com/kestrel-ai/kestrel/internal/observability"
	"github.com/kestrel-ai/kestrel/internal/orchestrator/formatter"
)

// FailureAnswer is the generic marker returned when a plan aborts before
// producing any answer.
const FailureAnswer = "Unable to produce an answer for this query."

// PlanExecutor runs a whole plan, accumulating formatted answers and the
// shared execution context across steps.
type PlanExecutor struct {
	steps     *StepExecutor
	planner   Planner
	replanner Replanner
	log       *observability.Logger
}

// NewPlanExecutor creates a plan executor.
func NewPlanExecutor(steps *StepExecutor, planner Planner, replanner Replanner, log *observability.Logger) *PlanExecutor {
	return &PlanExecutor{steps: steps, planner: planner, replanner: replanner, log: log}
}

// planRun is the per-execution state threaded through one ExecutePlan call.
type planRun struct {
	plan    *models.ExecutionPlan
	execCtx map[string]any
	answers []string
	schema  map[string]any
}

// ExecutePlan walks the plan from the first step, executing each step
// against the shared context. The plan's step sequence may grow mid-flight:
// deferred steps are decomposed and spliced in place, and failed steps are
// replaced by replanned substitutes. Returns the accumulated answer lines;
// never an empty slice.
func (e *PlanExecutor) ExecutePlan(ctx context.Context, plan *models.ExecutionPlan) []string {
	run := &planRun{plan: plan, execCtx: make(map[string]any)}
	e.log.LogPlan(plan.PlanID, "executing plan", map[string]any{"steps": plan.Len()})

	aborted := false
	for cursor := 0; cursor < plan.Len(); {
		step := plan.StepAt(cursor)
		if step == nil {
			break
		}

		// Substitutes executed eagerly by the failure handler are already
		// terminal; skip them instead of running them twice.
		if step.Status.Terminal() {
			cursor++
			continue
		}

		if step.StepType == models.StepTypeLLMQuery {
			// Decompose in place; the cursor stays so the first spliced
			// step is processed on the next iteration.
			e.expandDeferredStep(ctx, run, step)
			continue
		}

		if run.schema != nil {
			run.execCtx["schema"] = run.schema
		}

		if step.StepType == models.StepTypeSchema {
			e.runSchemaProbe(ctx, run, step)
			cursor++
			continue
		}

		payload := e.steps.ExecuteStep(ctx, plan, step, run.execCtx)
		if payload == nil {
			if !e.handleStepFailure(ctx, run, step) {
				e.log.LogPlan(plan.PlanID, "plan aborted", map[string]any{"step_id": step.ID})
				aborted = true
				break
			}
		} else {
			e.recordSuccess(run, step, payload)
		}
		cursor++
	}

	if aborted {
		observability.PlansTotal.WithLabelValues("aborted").Inc()
	} else {
		observability.PlansTotal.WithLabelValues("completed").Inc()
	}

	if len(run.answers) == 0 {
		return []string{FailureAnswer}
	}
	return run.answers
}

// expandDeferredStep asks the planner to decompose a deferred step's goal
// into concrete steps and splices them over the placeholder. A decomposition
// failure removes the placeholder without substitutes; the plan continues.
func (e *PlanExecutor) expandDeferredStep(ctx context.Context, run *planRun, step *models.Step) {
	e.log.LogPlan(run.plan.PlanID, "decomposing deferred step", map[string]any{
		"step_id": step.ID,
		"goal":    step.ExpectedOutput,
	})

	planCtx := make(map[string]any, len(run.execCtx)+1)
	for k, v := range run.execCtx {
		planCtx[k] = v
	}
	if run.schema != nil {
		planCtx["schema"] = run.schema
	}

	var replacement []*models.Step
	sub, err := e.planner.GeneratePlan(ctx, step.ExpectedOutput, planCtx)
	if err != nil {
		e.log.LogPlan(run.plan.PlanID, "deferred decomposition failed", map[string]any{
			"step_id": step.ID,
			"error":   err.Error(),
		})
	} else if sub != nil {
		replacement = sub.Steps
	}
	run.plan.Splice(step, replacement)
}

// runSchemaProbe executes a schema step and caches its payload as the shared
// schema when it actually describes columns. Probe failures are tolerated.
func (e *PlanExecutor) runSchemaProbe(ctx context.Context, run *planRun, step *models.Step) {
	payload := e.steps.ExecuteStep(ctx, run.plan, step, run.execCtx)
	if payload == nil {
		e.log.LogPlan(run.plan.PlanID, "schema probe failed, continuing without schema", map[string]any{
			"step_id": step.ID,
		})
		return
	}
	if hasColumns(payload) {
		run.schema = payload
	}
	e.recordSuccess(run, step, payload)
}

func hasColumns(payload map[string]any) bool {
	candidate := payload
	if data, ok := payload["data"].(map[string]any); ok {
		candidate = data
	}
	switch cols := candidate["columns"].(type) {
	case []any:
		return len(cols) > 0
	case map[string]any:
		return len(cols) > 0
	}
	return false
}

// recordSuccess stores the step's payload in the execution context and
// appends its formatted answer line when the payload shape yields one.
func (e *PlanExecutor) recordSuccess(run *planRun, step *models.Step, payload map[string]any) {
	run.execCtx[step.ContextKey()] = payload
	if line := formatter.FormatResult(payload); line != "" {
		run.answers = append(run.answers, line)
	}
}

// handleStepFailure attempts to recover a failed step by asking the
// replanner for substitutes, splicing them over the failed step and eagerly
// executing them until one succeeds. Returns true when the plan can
// continue. A step that is already retrying gets no second replan.
func (e *PlanExecutor) handleStepFailure(ctx context.Context, run *planRun, failed *models.Step) (handled bool) {
	// Recovery must never take the whole plan down with a panic.
	defer func() {
		if r := recover(); r != nil {
			e.log.LogPlan(run.plan.PlanID, "replanning panicked", map[string]any{
				"step_id": failed.ID,
				"panic":   fmt.Sprintf("%v", r),
			})
			handled = false
		}
	}()

	if failed.Status == models.StatusRetrying {
		return false
	}
	run.plan.Update(func() { failed.Status = models.StatusRetrying })
	observability.ReplansTotal.Inc()

	substitute := e.replanner.Replan(ctx, run.plan, failed, failed.Error, failed.VerificationScore)
	var replacement []*models.Step
	if substitute != nil {
		replacement = substitute.Steps
	}
	e.log.LogReplan(run.plan.PlanID, failed.ID, len(replacement))

	if !run.plan.Splice(failed, replacement) || len(replacement) == 0 {
		return false
	}

	// Run substitutes until the first success; the remainder, if any, stays
	// pending and is picked up by the main cursor.
	for _, sub := range replacement {
		payload := e.steps.ExecuteStep(ctx, run.plan, sub, run.execCtx)
		if payload != nil {
			e.recordSuccess(run, sub, payload)
			return true
		}
	}
	return false
}
