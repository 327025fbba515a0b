// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kestrel-ai/kestrel/internal/core/models"
	"github.com/kestrel-ai/kestrel/internal/observability"
	"github.com/kestrel-ai/kestrel/internal/orchestrator/resolver"
)

// StepExecutor runs a single step: resolve params, dispatch, verify, apply
// the acceptance policy and record the outcome on the step.
type StepExecutor struct {
	dispatcher Dispatcher
	verifier   Verifier
	log        *observability.Logger

	// acceptThreshold is the verification score at or above which an
	// output is accepted even when the verifier did not pass it. 0.3 by
	// default; tunable via config.
	acceptThreshold float64
}

// NewStepExecutor creates a step executor with the given collaborators.
func NewStepExecutor(dispatcher Dispatcher, verifier Verifier, acceptThreshold float64, log *observability.Logger) *StepExecutor {
	return &StepExecutor{
		dispatcher:      dispatcher,
		verifier:        verifier,
		acceptThreshold: acceptThreshold,
		log:             log,
	}
}

// ExecuteStep executes one step against the current execution context and
// returns the accepted payload, or nil when the step failed. All lifecycle
// mutations happen under the plan's lock; panics anywhere in the pipeline
// are converted into a step failure and never propagate.
func (e *StepExecutor) ExecuteStep(ctx context.Context, plan *models.ExecutionPlan, step *models.Step, execCtx map[string]any) (payload map[string]any) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			plan.Update(func() {
				step.Status = models.StatusFailed
				step.Error = fmt.Sprintf("step execution panicked: %v", r)
				step.ExecutionTime = time.Since(start).Seconds()
			})
			e.observe(plan, step, nil)
			payload = nil
		}
	}()

	plan.Update(func() { step.Status = models.StatusRunning })

	resolved := resolver.Resolve(step.Params, execCtx)

	result := e.dispatcher.Execute(ctx, step.Tool, resolved)
	if result.Failed() {
		// Dispatcher-level errors skip verification entirely.
		elapsed := time.Since(start).Seconds()
		plan.Update(func() {
			step.Status = models.StatusFailed
			step.Error = result.Err
			step.ExecutionTime = elapsed
		})
		e.observe(plan, step, nil)
		return nil
	}

	// The verifier sees the original, unresolved params via the step.
	vr := e.verifier.Verify(ctx, step, result.Payload, execCtx)
	elapsed := time.Since(start).Seconds()

	if accepted(vr, e.acceptThreshold) {
		plan.Update(func() {
			step.Status = models.StatusSuccess
			step.Output = result.Payload
			step.VerificationScore = vr.Score
			step.ExecutionTime = elapsed
		})
		e.observe(plan, step, result.Payload)
		return result.Payload
	}

	plan.Update(func() {
		step.Status = models.StatusFailed
		step.Error = "verification failed: " + strings.Join(vr.IssueMessages(), ", ")
		step.VerificationScore = vr.Score
		step.ExecutionTime = elapsed
	})
	e.observe(plan, step, nil)
	return nil
}

// accepted applies the acceptance policy: pass the verifier's verdict, or a
// score at or above the threshold, or a judgment that itself failed to
// parse. Strict rejection is reserved for low-scoring, non-parse failures.
func accepted(vr models.VerificationResult, threshold float64) bool {
	return vr.Passed || vr.Score >= threshold || vr.HasParseIssue()
}

func (e *StepExecutor) observe(plan *models.ExecutionPlan, step *models.Step, payload any) {
	observability.StepsTotal.WithLabelValues(string(step.Tool), string(step.Status)).Inc()
	observability.StepDuration.WithLabelValues(string(step.Tool)).Observe(step.ExecutionTime)
	e.log.LogStep(plan.PlanID, step.ID, string(step.Tool), string(step.Status),
		observability.Preview(payload, 200), step.Error, step.VerificationScore)
}
