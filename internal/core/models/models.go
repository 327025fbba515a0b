// SPDX-License-Identifier: Apache-2.0

package models

import (
	"fmt"
	"regexp"
	"strconv"
)

// StepStatus tracks a step through its lifecycle:
// pending -> running -> success | failed, with retrying entered by the
// plan executor before a replan attempt.
type StepStatus string

const (
	StatusPending  StepStatus = "pending"
	StatusRunning  StepStatus = "running"
	StatusSuccess  StepStatus = "success"
	StatusFailed   StepStatus = "failed"
	StatusRetrying StepStatus = "retrying"
)

// Terminal reports whether the status is a final state for a step.
func (s StepStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// ToolType identifies one of the built-in tools.
type ToolType string

const (
	ToolFetchWeb  ToolType = "fetch_web"
	ToolLoadLocal ToolType = "load_local"
	ToolDuckDB    ToolType = "duckdb_runner"
	ToolAnalyze   ToolType = "analyze"
	ToolVisualize ToolType = "visualize"
	ToolVerifier  ToolType = "verifier"
)

// AllTools lists every tool the planner may schedule.
var AllTools = []ToolType{
	ToolFetchWeb, ToolLoadLocal, ToolDuckDB, ToolAnalyze, ToolVisualize, ToolVerifier,
}

// Valid reports whether t names a known tool.
func (t ToolType) Valid() bool {
	for _, known := range AllTools {
		if t == known {
			return true
		}
	}
	return false
}

// Step type tags. An action step is executed directly; an llm_query step is
// a deferred sub-task that must be decomposed by the planner before
// execution; a schema_analysis step probes the structure of loaded data and
// never fails the plan.
const (
	StepTypeAction   = "action"
	StepTypeLLMQuery = "llm_query"
	StepTypeSchema   = "schema_analysis"
)

// Step is a single unit of work in an execution plan.
type Step struct {
	ID             int            `json:"step_id" yaml:"step_id"`
	Tool           ToolType       `json:"tool" yaml:"tool"`
	Params         map[string]any `json:"params" yaml:"params"`
	ExpectedOutput string         `json:"expected_output" yaml:"expected_output"`
	StepType       string         `json:"step_type,omitempty" yaml:"step_type,omitempty"`

	// Lifecycle fields, written only by the flow executing the plan.
	Status            StepStatus     `json:"status,omitempty" yaml:"status,omitempty"`
	Output            map[string]any `json:"output,omitempty" yaml:"output,omitempty"`
	Error             string         `json:"error,omitempty" yaml:"error,omitempty"`
	VerificationScore float64        `json:"verification_score,omitempty" yaml:"verification_score,omitempty"`
	ExecutionTime     float64        `json:"execution_time,omitempty" yaml:"execution_time,omitempty"`
}

// ContextKey is the key under which this step's output is recorded in the
// execution context.
func (s *Step) ContextKey() string {
	return fmt.Sprintf("step_%d", s.ID)
}

// Retry returns a pending copy of the step with all lifecycle fields cleared.
func (s *Step) Retry() *Step {
	return &Step{
		ID:             s.ID,
		Tool:           s.Tool,
		Params:         s.Params,
		ExpectedOutput: s.ExpectedOutput,
		StepType:       s.StepType,
		Status:         StatusPending,
	}
}

// OutputRefPrefix marks a parameter value as a symbolic reference to a prior
// step's output, e.g. "output_of_step_3".
const OutputRefPrefix = "output_of_step_"

var outputRefPattern = regexp.MustCompile(`^output_of_step_(\d+)$`)

// ParseOutputRef reports whether v is a symbolic output reference and, if
// so, the referenced step id.
func ParseOutputRef(v string) (int, bool) {
	m := outputRefPattern.FindStringSubmatch(v)
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return id, true
}

// ToolResult is what the tool dispatcher hands back: either a payload or an
// explicit error envelope. The orchestration core only inspects the
// discriminant; payload internals are interpreted by the answer formatter.
type ToolResult struct {
	Tool    ToolType       `json:"tool"`
	Payload map[string]any `json:"payload,omitempty"`
	Err     string         `json:"error,omitempty"`
}

// Failed reports whether the result is an error envelope.
func (r ToolResult) Failed() bool {
	return r.Err != ""
}

// ErrorResult builds an error envelope for a tool failure.
func ErrorResult(tool ToolType, err error) ToolResult {
	return ToolResult{Tool: tool, Err: err.Error()}
}

// IssueKind classifies a verification issue. The kind is what the acceptance
// policy inspects; matching on issue text is deliberately avoided.
type IssueKind string

const (
	IssuePlain    IssueKind = "plain"
	IssueCritical IssueKind = "critical"
	// IssueParse marks a verification judgment that could not be parsed.
	// The acceptance policy treats these leniently: an unparseable judgment
	// is not evidence that the output itself is wrong.
	IssueParse IssueKind = "parse"
)

// Issue is one verification finding.
type Issue struct {
	Kind    IssueKind `json:"kind"`
	Message string    `json:"message"`
}

// VerificationResult is the verifier's judgment of a step output.
type VerificationResult struct {
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	Issues     []Issue `json:"issues,omitempty"`
	Passed     bool    `json:"passed"`
}

// HasParseIssue reports whether any issue came from an unparseable judgment.
func (v VerificationResult) HasParseIssue() bool {
	for _, issue := range v.Issues {
		if issue.Kind == IssueParse {
			return true
		}
	}
	return false
}

// HasCriticalIssue reports whether any issue is critical.
func (v VerificationResult) HasCriticalIssue() bool {
	for _, issue := range v.Issues {
		if issue.Kind == IssueCritical {
			return true
		}
	}
	return false
}

// IssueMessages returns the issue texts in order.
func (v VerificationResult) IssueMessages() []string {
	msgs := make([]string, 0, len(v.Issues))
	for _, issue := range v.Issues {
		msgs = append(msgs, issue.Message)
	}
	return msgs
}

// QueryRequest is a natural-language query plus optional context.
type QueryRequest struct {
	Query   string         `json:"query"`
	Context map[string]any `json:"context,omitempty"`
	Files   []string       `json:"files,omitempty"`
}

// QueryResponse reports the outcome of one processed query.
type QueryResponse struct {
	PlanID        string        `json:"plan_id"`
	Status        string        `json:"status"`
	Answers       []string      `json:"answers,omitempty"`
	Steps         []StepSummary `json:"steps"`
	Error         string        `json:"error,omitempty"`
	ExecutionTime float64       `json:"execution_time,omitempty"`
}
