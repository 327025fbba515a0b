// SPDX-License-Identifier: Apache-2.0

// Package tools implements the built-in tool set and the dispatcher that
// routes step invocations to them. Tools return explicit error envelopes
// rather than panicking; a panic that slips through is converted to one at
// the dispatch boundary.
package tools

import (
	"context"
	"fmt"

	"github.com/kestrel-ai/kestrel/internal/core/models"
)

// Tool is one executable capability.
type Tool interface {
	Name() models.ToolType
	Run(ctx context.Context, params map[string]any) (map[string]any, error)
}

// Registry routes tool invocations by name.
type Registry struct {
	tools map[models.ToolType]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[models.ToolType]Tool)}
}

// Register adds a tool, replacing any previous tool of the same name.
func (r *Registry) Register(tool Tool) {
	r.tools[tool.Name()] = tool
}

// Names lists the registered tool names.
func (r *Registry) Names() []models.ToolType {
	names := make([]models.ToolType, 0, len(r.tools))
	for _, known := range models.AllTools {
		if _, ok := r.tools[known]; ok {
			names = append(names, known)
		}
	}
	return names
}

// Execute dispatches one invocation. Unknown tools, tool errors and tool
// panics all come back as error envelopes; Execute itself never fails.
func (r *Registry) Execute(ctx context.Context, tool models.ToolType, params map[string]any) (result models.ToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = models.ErrorResult(tool, fmt.Errorf("tool panicked: %v", rec))
		}
	}()

	impl, ok := r.tools[tool]
	if !ok {
		return models.ErrorResult(tool, fmt.Errorf("unknown tool %q", tool))
	}
	payload, err := impl.Run(ctx, params)
	if err != nil {
		return models.ErrorResult(tool, err)
	}
	return models.ToolResult{Tool: tool, Payload: payload}
}
