// SPDX-License-Identifier: Apache-2.0

// Package verifier scores step outputs by blending a deterministic CEL
// rule engine with a language-model judgment. The blend is weighted toward
// the model; confidence is the weaker of the two halves.
package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/kestrel-ai/kestrel/internal/core/config"
	"github.com/kestrel-ai/kestrel/internal/core/models"
	"github.com/kestrel-ai/kestrel/internal/llm"
	"github.com/kestrel-ai/kestrel/internal/observability"
)

const judgeSystemPrompt = "You are an expert data verification assistant. Return only valid JSON."

const judgePromptTemplate = `You are a verification expert. Analyze the step output for correctness.

Step %d ran tool %q with params:
%s

Expected: %s
Actual output: %s

Prior step outputs:
%s

Return JSON with "score" (0-1), "confidence" (0-1), "issues" (list of
strings, prefix blocking problems with "critical:") and "passed" (boolean).
`

// maxOutputChars caps how much of the output is shown to the judge.
const maxOutputChars = 2000

// Verifier is the blended verifier.
type Verifier struct {
	rules *RuleEngine
	model llms.Model
	cfg   config.VerificationConfig
	retry config.RetryConfig
	log   *observability.Logger
}

// New creates a verifier from the compiled rule engine and a judge model.
func New(rules *RuleEngine, model llms.Model, cfg config.VerificationConfig, retry config.RetryConfig, log *observability.Logger) *Verifier {
	return &Verifier{rules: rules, model: model, cfg: cfg, retry: retry, log: log}
}

// Verify blends the rule score and the judge score into one result. The
// step supplies the original params and the declared expectation; output is
// the raw tool payload.
func (v *Verifier) Verify(ctx context.Context, step *models.Step, output map[string]any, execCtx map[string]any) models.VerificationResult {
	rule := v.rules.Evaluate(step.Tool, output)
	judge := v.judge(ctx, step, output, execCtx)

	combined := models.VerificationResult{
		Score:      rule.Score*v.cfg.RuleWeight + judge.Score*v.cfg.LLMWeight,
		Confidence: min(rule.Confidence, judge.Confidence),
		Issues:     append(rule.Issues, judge.Issues...),
	}
	combined.Passed = combined.Score >= v.cfg.PassThreshold && !combined.HasCriticalIssue()
	return combined
}

// judge asks the model for a judgment of the output. Transport failures and
// unparsable judgments both degrade to a neutral non-passing result; the
// latter is tagged as a parse issue so the acceptance policy upstream can
// tell "the judge broke" apart from "the output is bad".
func (v *Verifier) judge(ctx context.Context, step *models.Step, output map[string]any, execCtx map[string]any) models.VerificationResult {
	prompt := fmt.Sprintf(judgePromptTemplate,
		step.ID, step.Tool,
		observability.Preview(step.Params, 1000),
		step.ExpectedOutput,
		observability.Preview(output, maxOutputChars),
		observability.Preview(execCtx, 1000),
	)

	content, err := llm.Generate(ctx, v.model, v.retry, judgeSystemPrompt, prompt)
	if err != nil {
		return models.VerificationResult{
			Score:      0.5,
			Confidence: 0,
			Issues: []models.Issue{{
				Kind:    models.IssuePlain,
				Message: "judge request failed: " + err.Error(),
			}},
		}
	}
	v.log.LogLLM("verifier", prompt, content)

	return parseJudgment(content)
}

// judgment is the wire shape of the model's verdict.
type judgment struct {
	Score      float64  `json:"score"`
	Confidence float64  `json:"confidence"`
	Issues     []string `json:"issues"`
	Passed     bool     `json:"passed"`
}

// parseJudgment decodes the judge's JSON verdict. An undecodable verdict
// yields the neutral parse-failure result.
func parseJudgment(content string) models.VerificationResult {
	raw := llm.ExtractJSON(content)
	var j judgment
	if raw == "" || json.Unmarshal([]byte(raw), &j) != nil {
		return models.VerificationResult{
			Score:      0.5,
			Confidence: 0,
			Issues: []models.Issue{{
				Kind:    models.IssueParse,
				Message: "verification judgment could not be parsed",
			}},
		}
	}

	issues := make([]models.Issue, 0, len(j.Issues))
	for _, msg := range j.Issues {
		kind := models.IssuePlain
		if strings.HasPrefix(strings.ToLower(msg), "critical") {
			kind = models.IssueCritical
		}
		issues = append(issues, models.Issue{Kind: kind, Message: msg})
	}
	return models.VerificationResult{
		Score:      j.Score,
		Confidence: j.Confidence,
		Issues:     issues,
		Passed:     j.Passed,
	}
}
