// SPDX-License-Identifier: Apache-2.0

package formatter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kestrel-ai/kestrel/internal/orchestrator/formatter"
)

func TestFormatCorrelationMatrix(t *testing.T) {
	payload := map[string]any{
		"data": map[string]any{
			"correlation_matrix": map[string]any{
				"A": map[string]any{"A": 1.0, "B": 0.5},
				"B": map[string]any{"A": 0.5, "B": 1.0},
			},
		},
	}

	got := formatter.FormatResult(payload)
	assert.Equal(t, "Correlations: A vs B: 0.5", got, "self-pairs and reversed duplicates must be excluded")
}

func TestFormatCorrelationRounding(t *testing.T) {
	payload := map[string]any{
		"correlation_matrix": map[string]any{
			"x": map[string]any{"x": 1.0, "y": 0.123456789},
			"y": map[string]any{"x": 0.123456789, "y": 1.0},
		},
	}

	got := formatter.FormatResult(payload)
	assert.Equal(t, "Correlations: x vs y: 0.1235", got)
}

func TestFormatCount(t *testing.T) {
	got := formatter.FormatResult(map[string]any{"count": 42, "status": "success"})
	assert.Equal(t, "Count: 42", got)
}

func TestFormatFilteredRows(t *testing.T) {
	payload := map[string]any{
		"status":   "success",
		"data":     []any{map[string]any{"a": 1}},
		"metadata": map[string]any{"filtered_rows": 7},
	}
	assert.Equal(t, "Filtered rows: 7", formatter.FormatResult(payload))
}

func TestFormatVisualization(t *testing.T) {
	uri := "data:image/png;base64,iVBORw0KGgo"
	assert.Equal(t, "Visualization: "+uri, formatter.FormatResult(map[string]any{"data": uri}))
	assert.Equal(t, "Visualization: "+uri, formatter.FormatResult(uri))
}

func TestFormatScalars(t *testing.T) {
	assert.Equal(t, "Result: hello", formatter.FormatResult("hello"))
	assert.Equal(t, "Result: 3.5", formatter.FormatResult(3.5))
	assert.Equal(t, "Result: 10", formatter.FormatResult(10))
	assert.Equal(t, "Result: true", formatter.FormatResult(true))
	assert.Equal(t, "Result: 99", formatter.FormatResult(map[string]any{"data": 99}))
}

func TestFormatSingleRecord(t *testing.T) {
	payload := map[string]any{
		"data": []any{
			map[string]any{"name": "Ada", "score": 97, "Ref": "ignored"},
		},
	}
	assert.Equal(t, "name: Ada, score: 97", formatter.FormatResult(payload))
}

func TestFormatRecordList(t *testing.T) {
	payload := map[string]any{
		"data": []any{
			map[string]any{"a": 1},
			map[string]any{"a": 2},
			map[string]any{"a": 3},
		},
	}
	assert.Equal(t, "Returned 3 records", formatter.FormatResult(payload))
}

func TestFormatUnrecognizedShapesOmitted(t *testing.T) {
	assert.Empty(t, formatter.FormatResult(map[string]any{"status": "success"}))
	assert.Empty(t, formatter.FormatResult(map[string]any{"data": map[string]any{"blob": 1}}))
	assert.Empty(t, formatter.FormatResult(nil))
	assert.Empty(t, formatter.FormatResult([]any{1, 2}))
}
