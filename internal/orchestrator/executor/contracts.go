// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"context"

	"github.com/kestrel-ai/kestrel/internal/core/models"
)

// Dispatcher maps a tool identifier to an executable implementation. It
// never returns a Go error: tool failures (including panics inside a tool)
// come back as an explicit error envelope in the result.
type Dispatcher interface {
	Execute(ctx context.Context, tool models.ToolType, params map[string]any) models.ToolResult
}

// Verifier scores a step's output against its declared expectation. The
// step carries the original (unresolved) params, the id and the tool name;
// output is the raw tool payload.
type Verifier interface {
	Verify(ctx context.Context, step *models.Step, output map[string]any, execCtx map[string]any) models.VerificationResult
}

// Planner turns a natural-language query into an execution plan. The
// returned plan references only step ids that appear earlier in its own
// sequence; on total failure it is empty rather than nil.
type Planner interface {
	GeneratePlan(ctx context.Context, query string, planCtx map[string]any) (*models.ExecutionPlan, error)
}

// Replanner produces substitute steps for a failed step. It must never
// fail: internal errors become an empty plan or a single verbatim retry of
// the failed step.
type Replanner interface {
	Replan(ctx context.Context, plan *models.ExecutionPlan, failed *models.Step, errorDetails string, verificationScore float64) *models.ExecutionPlan
}
