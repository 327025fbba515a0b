// SPDX-License-Identifier: Apache-2.0

package models

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ExecutionPlan is an ordered sequence of steps produced for one query.
// Order is the execution order: a step may reference outputs of steps that
// appear earlier in the sequence, never later.
//
// The step slice is mutated in place by the plan executor (splicing during
// replanning and deferred-task decomposition), so it must never be iterated
// with a snapshot; walk it with an index and re-check the length.
type ExecutionPlan struct {
	PlanID    string    `json:"plan_id" yaml:"plan_id"`
	Steps     []*Step   `json:"steps" yaml:"steps"`
	CreatedAt time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`

	mu sync.RWMutex
}

// NewPlan creates a plan with a fresh unique id.
func NewPlan(steps []*Step) *ExecutionPlan {
	return &ExecutionPlan{
		PlanID:    "plan_" + uuid.NewString(),
		Steps:     steps,
		CreatedAt: time.Now().UTC(),
	}
}

// Update runs fn while holding the plan's write lock. Step lifecycle
// mutations go through here so status readers never observe torn records.
func (p *ExecutionPlan) Update(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn()
}

// Len returns the current number of steps.
func (p *ExecutionPlan) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.Steps)
}

// StepAt returns the step at position i, or nil if i is out of range.
func (p *ExecutionPlan) StepAt(i int) *Step {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if i < 0 || i >= len(p.Steps) {
		return nil
	}
	return p.Steps[i]
}

// Splice replaces target with the replacement sequence (which may be
// empty), preserving the order of all surrounding steps. The target is
// located by identity. Replacement steps keep their assigned ids unless an
// id collides with one still present in the plan, in which case the step is
// renumbered sequentially past the highest existing id. Returns false if
// target is not in the plan.
func (p *ExecutionPlan) Splice(target *Step, replacement []*Step) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := -1
	for i, s := range p.Steps {
		if s == target {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	taken := make(map[int]bool, len(p.Steps))
	next := 0
	for i, s := range p.Steps {
		if i == idx {
			continue
		}
		taken[s.ID] = true
		if s.ID > next {
			next = s.ID
		}
	}
	for _, s := range replacement {
		if taken[s.ID] {
			next++
			s.ID = next
		}
		taken[s.ID] = true
		if s.ID > next {
			next = s.ID
		}
	}

	spliced := make([]*Step, 0, len(p.Steps)-1+len(replacement))
	spliced = append(spliced, p.Steps[:idx]...)
	spliced = append(spliced, replacement...)
	spliced = append(spliced, p.Steps[idx+1:]...)
	p.Steps = spliced
	return true
}

// Validate checks plan well-formedness: at least one step, unique step ids,
// known tools, and no forward output references.
func (p *ExecutionPlan) Validate() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.Steps) == 0 {
		return fmt.Errorf("plan contains no steps")
	}

	seen := make(map[int]bool, len(p.Steps))
	for _, step := range p.Steps {
		if seen[step.ID] {
			return fmt.Errorf("duplicate step id: %d", step.ID)
		}
		if !step.Tool.Valid() {
			return fmt.Errorf("step %d uses unknown tool %q", step.ID, step.Tool)
		}
		for key, value := range step.Params {
			ref, ok := value.(string)
			if !ok {
				continue
			}
			id, isRef := ParseOutputRef(ref)
			if isRef && !seen[id] {
				return fmt.Errorf("step %d param %q references step %d which does not appear earlier in the plan",
					step.ID, key, id)
			}
		}
		seen[step.ID] = true
	}
	return nil
}

// StepSummary is the read-only per-step projection used by status queries.
type StepSummary struct {
	StepID            int        `json:"step_id"`
	Tool              ToolType   `json:"tool"`
	Status            StepStatus `json:"status"`
	VerificationScore float64    `json:"verification_score"`
	ExecutionTime     float64    `json:"execution_time"`
	Error             string     `json:"error,omitempty"`
}

// PlanStatus is a consistent point-in-time snapshot of a live plan.
type PlanStatus struct {
	PlanID         string        `json:"plan_id"`
	TotalSteps     int           `json:"total_steps"`
	CompletedSteps int           `json:"completed_steps"`
	FailedSteps    int           `json:"failed_steps"`
	CurrentStep    *int          `json:"current_step,omitempty"`
	Steps          []StepSummary `json:"steps"`
}

// Status snapshots the plan under its read lock, so callers see live
// mutations without holding any lock themselves.
func (p *ExecutionPlan) Status() PlanStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := PlanStatus{
		PlanID:     p.PlanID,
		TotalSteps: len(p.Steps),
		Steps:      make([]StepSummary, 0, len(p.Steps)),
	}
	for _, step := range p.Steps {
		switch step.Status {
		case StatusSuccess:
			status.CompletedSteps++
		case StatusFailed:
			status.FailedSteps++
		case StatusRunning:
			if status.CurrentStep == nil {
				id := step.ID
				status.CurrentStep = &id
			}
		}
		status.Steps = append(status.Steps, StepSummary{
			StepID:            step.ID,
			Tool:              step.Tool,
			Status:            step.Status,
			VerificationScore: step.VerificationScore,
			ExecutionTime:     step.ExecutionTime,
			Error:             step.Error,
		})
	}
	return status
}
