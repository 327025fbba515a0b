// SPDX-License-Identifier: Apache-2.0

// Package app wires the orchestration stack together for the CLI and the
// server: config, LLM provider, tool registry, verifier, planner and
// executors.
package app

import (
	"fmt"

	"github.com/kestrel-ai/kestrel/internal/core/config"
	"github.com/kestrel-ai/kestrel/internal/llm"
	"github.com/kestrel-ai/kestrel/internal/observability"
	"github.com/kestrel-ai/kestrel/internal/orchestrator"
	"github.com/kestrel-ai/kestrel/internal/orchestrator/executor"
	"github.com/kestrel-ai/kestrel/internal/orchestrator/registry"
	"github.com/kestrel-ai/kestrel/internal/planner"
	"github.com/kestrel-ai/kestrel/internal/tools"
	"github.com/kestrel-ai/kestrel/internal/verifier"
)

// App is the assembled orchestration stack.
type App struct {
	Config       *config.Config
	Log          *observability.Logger
	Tools        *tools.Registry
	Plans        *registry.Registry
	Planner      *planner.Client
	PlanExecutor *executor.PlanExecutor
	Orchestrator *orchestrator.Orchestrator

	sqlTool *tools.SQLRunnerTool
}

// New builds the stack from the config file at cfgPath (empty for
// defaults). dataDir is the base directory for local file loading; empty
// means the working directory.
func New(cfgPath, dataDir string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	log := observability.NewLogger()

	model, err := llm.NewModel(cfg.LLM, cfg.APIKey())
	if err != nil {
		return nil, fmt.Errorf("error building LLM client: %w", err)
	}

	rules, err := verifier.NewRuleEngine(cfg.Verification.PassThreshold)
	if err != nil {
		return nil, fmt.Errorf("error building verification rules: %w", err)
	}
	ver := verifier.New(rules, model, cfg.Verification, cfg.Retry, log)

	sqlTool, err := tools.NewSQLRunnerTool(":memory:")
	if err != nil {
		return nil, fmt.Errorf("error opening embedded database: %w", err)
	}

	reg := tools.NewRegistry()
	reg.Register(tools.NewFetchWebTool())
	reg.Register(tools.NewLoadLocalTool(dataDir))
	reg.Register(sqlTool)
	reg.Register(tools.NewAnalyzeTool())
	reg.Register(tools.NewVisualizeTool())
	reg.Register(tools.NewVerifyTool(ver))

	plannerClient := planner.NewClient(model, cfg.Retry, log)
	replanClient := planner.NewReplanClient(model, cfg.Retry, log)

	stepExec := executor.NewStepExecutor(reg, ver, cfg.Verification.AcceptThreshold, log)
	planExec := executor.NewPlanExecutor(stepExec, plannerClient, replanClient, log)

	plans := registry.New()
	orch := orchestrator.New(plannerClient, planExec, plans, log)

	return &App{
		Config:       cfg,
		Log:          log,
		Tools:        reg,
		Plans:        plans,
		Planner:      plannerClient,
		PlanExecutor: planExec,
		Orchestrator: orch,
		sqlTool:      sqlTool,
	}, nil
}

// Close releases held resources.
func (a *App) Close() error {
	return a.sqlTool.Close()
}
