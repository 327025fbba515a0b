// SPDX-License-Identifier: Apache-2.0

package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-ai/kestrel/internal/core/models"
	"github.com/kestrel-ai/kestrel/internal/orchestrator/registry"
)

func TestRegistryAddGet(t *testing.T) {
	reg := registry.New()
	plan := models.NewPlan([]*models.Step{{ID: 1, Tool: models.ToolAnalyze, Status: models.StatusPending}})

	reg.Add(plan)

	got, ok := reg.Get(plan.PlanID)
	require.True(t, ok)
	assert.Same(t, plan, got)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryUnknownPlan(t *testing.T) {
	reg := registry.New()

	_, ok := reg.Get("plan_missing")
	assert.False(t, ok)

	_, ok = reg.Status("plan_missing")
	assert.False(t, ok)
}

func TestRegistryStatusReflectsLiveMutations(t *testing.T) {
	reg := registry.New()
	step := &models.Step{ID: 1, Tool: models.ToolAnalyze, Status: models.StatusPending}
	plan := models.NewPlan([]*models.Step{step})
	reg.Add(plan)

	before, ok := reg.Status(plan.PlanID)
	require.True(t, ok)
	assert.Zero(t, before.CompletedSteps)

	plan.Update(func() { step.Status = models.StatusSuccess })

	after, ok := reg.Status(plan.PlanID)
	require.True(t, ok)
	assert.Equal(t, 1, after.CompletedSteps)
}
