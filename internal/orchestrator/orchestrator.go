// SPDX-License-Identifier: Apache-2.0

// Package orchestrator ties planning, execution and plan bookkeeping into
// the single query-processing entry point used by the CLI and the HTTP
// server.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/kestrel-ai/kestrel/internal/core/models"
	"github.com/kestrel-ai/kestrel/internal/observability"
	"github.com/kestrel-ai/kestrel/internal/orchestrator/executor"
	"github.com/kestrel-ai/kestrel/internal/orchestrator/registry"
)

// Orchestrator processes natural-language queries end to end.
type Orchestrator struct {
	planner  executor.Planner
	executor *executor.PlanExecutor
	registry *registry.Registry
	log      *observability.Logger
}

// New creates an orchestrator from its collaborators.
func New(planner executor.Planner, planExec *executor.PlanExecutor, reg *registry.Registry, log *observability.Logger) *Orchestrator {
	return &Orchestrator{planner: planner, executor: planExec, registry: reg, log: log}
}

// ProcessQuery plans the query, registers the plan for status inspection and
// executes it to completion. Planning failures (including an empty or
// invalid generated plan) are request-level errors; step failures inside a
// valid plan are not, they surface through the response status and step
// summaries instead.
func (o *Orchestrator) ProcessQuery(ctx context.Context, req models.QueryRequest) (models.QueryResponse, error) {
	start := time.Now()

	planCtx := make(map[string]any, len(req.Context)+1)
	for k, v := range req.Context {
		planCtx[k] = v
	}
	if len(req.Files) > 0 {
		planCtx["files"] = req.Files
	}

	plan, err := o.planner.GeneratePlan(ctx, req.Query, planCtx)
	if err != nil {
		return models.QueryResponse{}, fmt.Errorf("plan generation failed: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return models.QueryResponse{}, fmt.Errorf("generated plan is invalid: %w", err)
	}
	o.registry.Add(plan)
	o.log.LogPlan(plan.PlanID, "plan generated", map[string]any{
		"query": observability.Preview(req.Query, 120),
		"steps": plan.Len(),
	})

	answers := o.executor.ExecutePlan(ctx, plan)

	status := "success"
	if len(answers) == 1 && answers[0] == executor.FailureAnswer {
		status = "failed"
	}
	return models.QueryResponse{
		PlanID:        plan.PlanID,
		Status:        status,
		Answers:       answers,
		Steps:         plan.Status().Steps,
		ExecutionTime: time.Since(start).Seconds(),
	}, nil
}

// PlanStatus exposes a live snapshot of a registered plan.
func (o *Orchestrator) PlanStatus(planID string) (models.PlanStatus, bool) {
	return o.registry.Status(planID)
}
