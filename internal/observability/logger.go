// SPDX-License-Identifier: Apache-2.0

package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// EventType defines the category of a log event.
type EventType string

const (
	EventTypePlan   EventType = "plan"
	EventTypeStep   EventType = "step"
	EventTypeReplan EventType = "replan"
	EventTypeLLM    EventType = "llm"
)

// Event is one structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	PlanID    string    `json:"plan_id,omitempty"`
	StepID    int       `json:"step_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger emits structured JSON events, one per line.
type Logger struct {
	mu  sync.Mutex
	out io.Writer
}

// NewLogger returns a logger writing to stdout.
func NewLogger() *Logger {
	return &Logger{out: os.Stdout}
}

// NewLoggerTo returns a logger writing to w. Used by tests.
func NewLoggerTo(w io.Writer) *Logger {
	return &Logger{out: w}
}

// Log emits one event.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		// The event data was not marshalable; report that instead.
		data = []byte(fmt.Sprintf(`{"type":"error","data":"unmarshalable event: %v"}`, err))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, string(data))
}

// LogPlan records a plan-level lifecycle event.
func (l *Logger) LogPlan(planID, message string, extra map[string]any) {
	data := map[string]any{"message": message}
	for k, v := range extra {
		data[k] = v
	}
	l.Log(Event{Type: EventTypePlan, PlanID: planID, Data: data})
}

// LogStep records one step execution: tool, status, a truncated output
// preview, error text and verification score.
func (l *Logger) LogStep(planID string, stepID int, tool, status, preview, errMsg string, score float64) {
	l.Log(Event{
		Type:   EventTypeStep,
		PlanID: planID,
		StepID: stepID,
		Data: map[string]any{
			"tool":    tool,
			"status":  status,
			"preview": preview,
			"error":   errMsg,
			"score":   score,
		},
	})
}

// LogReplan records a replanning attempt and how many substitute steps it
// produced.
func (l *Logger) LogReplan(planID string, stepID int, substitutes int) {
	l.Log(Event{
		Type:   EventTypeReplan,
		PlanID: planID,
		StepID: stepID,
		Data:   map[string]any{"substitute_steps": substitutes},
	})
}

// LogLLM records one LLM exchange with truncated previews.
func (l *Logger) LogLLM(role, prompt, response string) {
	l.Log(Event{
		Type: EventTypeLLM,
		Data: map[string]any{
			"role":     role,
			"prompt":   Preview(prompt, 500),
			"response": Preview(response, 500),
		},
	})
}

// Preview renders v as a string truncated to max characters.
func Preview(v any, max int) string {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	default:
		data, err := json.Marshal(v)
		if err != nil {
			s = fmt.Sprintf("%v", v)
		} else {
			s = string(data)
		}
	}
	if len(s) > max {
		return s[:max] + "... [truncated]"
	}
	return s
}
