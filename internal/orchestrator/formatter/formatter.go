// SPDX-License-Identifier: Apache-2.0

// Package formatter turns raw step payloads into human-readable answer
// lines. Only a fixed set of payload shapes produces a line; unrecognized
// structured results are omitted from the answer list, while scalar results
// are always rendered. The asymmetry is deliberate: terse final answers are
// privileged over intermediate structured artifacts, but a directly
// computable answer is never dropped.
package formatter

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

const imageDataPrefix = "data:image"

// FormatResult renders a step payload as one answer line, or "" when the
// payload shape is not recognized.
func FormatResult(payload any) string {
	switch v := payload.(type) {
	case string:
		if strings.HasPrefix(v, imageDataPrefix) {
			return "Visualization: " + v
		}
		return "Result: " + v
	case bool:
		return fmt.Sprintf("Result: %t", v)
	case map[string]any:
		return formatEnvelope(v)
	default:
		if n, ok := asNumber(v); ok {
			return "Result: " + formatNumber(n)
		}
	}
	return ""
}

// formatEnvelope handles the recognized map shapes in priority order:
// count, filtered-row metadata, correlation matrix, image data, record list.
func formatEnvelope(m map[string]any) string {
	if n, ok := asNumber(m["count"]); ok {
		return "Count: " + formatNumber(n)
	}
	if meta, ok := m["metadata"].(map[string]any); ok {
		if n, ok := asNumber(meta["filtered_rows"]); ok {
			return "Filtered rows: " + formatNumber(n)
		}
	}
	if matrix := correlationMatrix(m); matrix != nil {
		return formatCorrelations(matrix)
	}

	switch data := m["data"].(type) {
	case string:
		if strings.HasPrefix(data, imageDataPrefix) {
			return "Visualization: " + data
		}
		return "Result: " + data
	case bool:
		return fmt.Sprintf("Result: %t", data)
	case []any:
		return formatRecords(data)
	default:
		if n, ok := asNumber(data); ok {
			return "Result: " + formatNumber(n)
		}
	}
	return ""
}

// correlationMatrix extracts a column->column->coefficient matrix from the
// payload, looking at the top level and under "data".
func correlationMatrix(m map[string]any) map[string]map[string]float64 {
	raw, ok := m["correlation_matrix"]
	if !ok {
		if data, isMap := m["data"].(map[string]any); isMap {
			raw = data["correlation_matrix"]
		}
	}
	rows, ok := raw.(map[string]any)
	if !ok {
		return nil
	}

	matrix := make(map[string]map[string]float64, len(rows))
	for col, rawRow := range rows {
		row, ok := rawRow.(map[string]any)
		if !ok {
			return nil
		}
		matrix[col] = make(map[string]float64, len(row))
		for other, rawVal := range row {
			v, ok := asNumber(rawVal)
			if !ok {
				return nil
			}
			matrix[col][other] = v
		}
	}
	return matrix
}

// formatCorrelations flattens a matrix into pairwise "A vs B: value"
// fragments, excluding the diagonal and reversed duplicates, with values
// rounded to four decimal places.
func formatCorrelations(matrix map[string]map[string]float64) string {
	cols := make([]string, 0, len(matrix))
	for col := range matrix {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var pairs []string
	for _, col := range cols {
		others := make([]string, 0, len(matrix[col]))
		for other := range matrix[col] {
			others = append(others, other)
		}
		sort.Strings(others)
		for _, other := range others {
			if col >= other {
				continue
			}
			v := math.Round(matrix[col][other]*10000) / 10000
			pairs = append(pairs, fmt.Sprintf("%s vs %s: %s", col, other, formatNumber(v)))
		}
	}
	if len(pairs) == 0 {
		return ""
	}
	return "Correlations: " + strings.Join(pairs, ", ")
}

// maxRecordFields caps how many fields of a singleton record are shown.
const maxRecordFields = 5

// formatRecords renders a record list: a singleton as "field: value" pairs,
// a longer list as a record count.
func formatRecords(records []any) string {
	switch len(records) {
	case 0:
		return ""
	case 1:
		record, ok := records[0].(map[string]any)
		if !ok {
			return ""
		}
		fields := make([]string, 0, len(record))
		for field := range record {
			if field == "Ref" {
				continue
			}
			fields = append(fields, field)
		}
		sort.Strings(fields)
		if len(fields) > maxRecordFields {
			fields = fields[:maxRecordFields]
		}
		parts := make([]string, 0, len(fields))
		for _, field := range fields {
			parts = append(parts, fmt.Sprintf("%s: %s", field, formatValue(record[field])))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprintf("Returned %d records", len(records))
	}
}

func formatValue(v any) string {
	if n, ok := asNumber(v); ok {
		return formatNumber(n)
	}
	return fmt.Sprintf("%v", v)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
