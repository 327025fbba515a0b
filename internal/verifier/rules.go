// SPDX-License-Identifier: Apache-2.0

package verifier

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/kestrel-ai/kestrel/internal/core/models"
)

// Rule is one tool-specific check over a step's output payload. Expr is a
// CEL expression over the "output" variable; when it evaluates true the
// rule fires, recording the issue and deducting the penalty.
type Rule struct {
	Tool    models.ToolType
	Expr    string
	Message string
	Kind    models.IssueKind
	Penalty float64
}

// Rules within a tool group are ordered: the first firing rule wins, the
// rest of the group is skipped.
var defaultRules = []Rule{
	{Tool: models.ToolFetchWeb, Expr: `has(output.error) && output.error != ""`, Message: "web fetch reported an error", Kind: models.IssuePlain, Penalty: 0.4},
	{Tool: models.ToolFetchWeb, Expr: `!has(output.data)`, Message: "no data returned from web fetch", Kind: models.IssuePlain, Penalty: 0.3},

	{Tool: models.ToolLoadLocal, Expr: `has(output.error) && output.error != ""`, Message: "file load reported an error", Kind: models.IssuePlain, Penalty: 0.4},
	{Tool: models.ToolLoadLocal, Expr: `!has(output.data)`, Message: "no data loaded from file", Kind: models.IssuePlain, Penalty: 0.3},

	{Tool: models.ToolDuckDB, Expr: `has(output.status) && output.status == "error"`, Message: "query reported an error", Kind: models.IssueCritical, Penalty: 0.5},
	{Tool: models.ToolDuckDB, Expr: `!has(output.data)`, Message: "query returned no results", Kind: models.IssuePlain, Penalty: 0.2},

	{Tool: models.ToolAnalyze, Expr: `has(output.status) && output.status == "error"`, Message: "analysis reported an error", Kind: models.IssuePlain, Penalty: 0.4},

	{Tool: models.ToolVisualize, Expr: `has(output.status) && output.status == "error"`, Message: "visualization reported an error", Kind: models.IssuePlain, Penalty: 0.4},
}

// ruleConfidence is fixed: deterministic checks are trusted more than the
// model's judgment but never fully.
const ruleConfidence = 0.8

type compiledRule struct {
	Rule
	program cel.Program
}

// RuleEngine evaluates the deterministic half of verification. Expressions
// are compiled once at construction.
type RuleEngine struct {
	rules         []compiledRule
	passThreshold float64
}

// NewRuleEngine compiles the default rule set.
func NewRuleEngine(passThreshold float64) (*RuleEngine, error) {
	return NewRuleEngineWith(defaultRules, passThreshold)
}

// NewRuleEngineWith compiles a custom rule set.
func NewRuleEngineWith(rules []Rule, passThreshold float64) (*RuleEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("output", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating CEL environment: %w", err)
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		ast, issues := env.Compile(rule.Expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("error compiling rule %q: %w", rule.Expr, issues.Err())
		}
		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("error building rule program %q: %w", rule.Expr, err)
		}
		compiled = append(compiled, compiledRule{Rule: rule, program: program})
	}
	return &RuleEngine{rules: compiled, passThreshold: passThreshold}, nil
}

// Evaluate scores an output against the rules for the given tool. The score
// starts at 1.0 and loses each fired rule's penalty, floored at zero. Within
// a tool group only the first firing rule applies.
func (e *RuleEngine) Evaluate(tool models.ToolType, output map[string]any) models.VerificationResult {
	score := 1.0
	var issues []models.Issue

	if output == nil {
		score -= 0.5
		issues = append(issues, models.Issue{Kind: models.IssuePlain, Message: "output is empty"})
		output = map[string]any{}
	}

	matched := false
	for _, rule := range e.rules {
		if rule.Tool != tool || matched {
			continue
		}
		fired, err := e.fire(rule.program, output)
		if err != nil {
			// An unevaluable rule is a rule-set defect, not an output
			// defect; skip it.
			continue
		}
		if fired {
			matched = true
			score -= rule.Penalty
			issues = append(issues, models.Issue{Kind: rule.Kind, Message: rule.Message})
		}
	}

	if score < 0 {
		score = 0
	}
	result := models.VerificationResult{
		Score:      score,
		Confidence: ruleConfidence,
		Issues:     issues,
	}
	result.Passed = score >= e.passThreshold
	return result
}

func (e *RuleEngine) fire(program cel.Program, output map[string]any) (bool, error) {
	result, _, err := program.Eval(map[string]any{"output": output})
	if err != nil {
		return false, err
	}
	if result.Type() != types.BoolType {
		return false, fmt.Errorf("rule did not evaluate to a boolean")
	}
	return result.Value().(bool), nil
}
