// SPDX-License-Identifier: Apache-2.0

// Package registry keeps the process-wide set of active plans for status
// queries. Plans are inserted on creation and never evicted; the registry is
// in-memory only and lost on restart.
package registry

import (
	"sync"

	"github.com/kestrel-ai/kestrel/internal/core/models"
)

// Registry is a concurrency-safe map from plan id to plan.
type Registry struct {
	mu    sync.RWMutex
	plans map[string]*models.ExecutionPlan
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{plans: make(map[string]*models.ExecutionPlan)}
}

// Add registers a plan under its id.
func (r *Registry) Add(plan *models.ExecutionPlan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans[plan.PlanID] = plan
}

// Get returns the plan with the given id.
func (r *Registry) Get(planID string) (*models.ExecutionPlan, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	plan, ok := r.plans[planID]
	return plan, ok
}

// Status returns a live snapshot of the plan with the given id. The
// snapshot is taken under the plan's own lock, so it reflects mutations made
// by the executing flow without the caller holding anything.
func (r *Registry) Status(planID string) (models.PlanStatus, bool) {
	plan, ok := r.Get(planID)
	if !ok {
		return models.PlanStatus{}, false
	}
	return plan.Status(), true
}

// Len returns the number of registered plans.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plans)
}
