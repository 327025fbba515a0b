// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared testify mocks for the orchestration
// collaborators.
package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/tmc/langchaingo/llms"

	"github.com/kestrel-ai/kestrel/internal/core/models"
)

// MockDispatcher mocks the tool dispatcher.
type MockDispatcher struct {
	mock.Mock
}

// Execute mocks one tool invocation.
func (m *MockDispatcher) Execute(ctx context.Context, tool models.ToolType, params map[string]any) models.ToolResult {
	args := m.Called(ctx, tool, params)
	return args.Get(0).(models.ToolResult)
}

// MockVerifier mocks the step verifier.
type MockVerifier struct {
	mock.Mock
}

// Verify mocks one verification.
func (m *MockVerifier) Verify(ctx context.Context, step *models.Step, output map[string]any, execCtx map[string]any) models.VerificationResult {
	args := m.Called(ctx, step, output, execCtx)
	return args.Get(0).(models.VerificationResult)
}

// MockPlanner mocks plan generation.
type MockPlanner struct {
	mock.Mock
}

// GeneratePlan mocks one planning call.
func (m *MockPlanner) GeneratePlan(ctx context.Context, query string, planCtx map[string]any) (*models.ExecutionPlan, error) {
	args := m.Called(ctx, query, planCtx)
	plan, _ := args.Get(0).(*models.ExecutionPlan)
	return plan, args.Error(1)
}

// MockReplanner mocks replanning.
type MockReplanner struct {
	mock.Mock
}

// Replan mocks one replanning call.
func (m *MockReplanner) Replan(ctx context.Context, plan *models.ExecutionPlan, failed *models.Step, errorDetails string, verificationScore float64) *models.ExecutionPlan {
	args := m.Called(ctx, plan, failed, errorDetails, verificationScore)
	result, _ := args.Get(0).(*models.ExecutionPlan)
	return result
}

// FakeModel is a canned-response language model. Responses are returned in
// order; the last one repeats once the script runs out. A non-nil Err is
// returned on every call instead.
type FakeModel struct {
	Responses []string
	Err       error
	Calls     int
}

// GenerateContent returns the next scripted response.
func (f *FakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.Calls++
	if f.Err != nil {
		return nil, f.Err
	}
	idx := f.Calls - 1
	if idx >= len(f.Responses) {
		idx = len(f.Responses) - 1
	}
	if idx < 0 {
		return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: ""}}}, nil
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.Responses[idx]}},
	}, nil
}

// Call implements the deprecated single-prompt surface.
func (f *FakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := f.GenerateContent(ctx, []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}, options...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}
