// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kestrel-ai/kestrel/internal/core/models"
)

// AnalyzeTool performs statistical analysis over tabular data produced by
// earlier steps.
type AnalyzeTool struct{}

// NewAnalyzeTool creates the tool.
func NewAnalyzeTool() *AnalyzeTool { return &AnalyzeTool{} }

func (t *AnalyzeTool) Name() models.ToolType { return models.ToolAnalyze }

// Run performs the operation named by "operation" over the rows in "data":
// "summary" (default), "schema", "correlation", "filter" or "count".
func (t *AnalyzeTool) Run(ctx context.Context, params map[string]any) (map[string]any, error) {
	rows, err := tabularRows(params["data"])
	if err != nil {
		return nil, err
	}

	operation, _ := params["operation"].(string)
	if operation == "" {
		operation = "summary"
	}

	switch operation {
	case "schema":
		return schemaOf(rows), nil
	case "summary":
		return summarize(rows, columnsParam(params)), nil
	case "correlation":
		return correlate(rows, columnsParam(params))
	case "filter":
		filters, _ := params["filters"].(map[string]any)
		return filterRows(rows, filters), nil
	case "count":
		return map[string]any{"status": "success", "count": len(rows)}, nil
	default:
		return nil, fmt.Errorf("unknown operation %q", operation)
	}
}

// tabularRows normalizes the "data" param into a list of record maps. It
// accepts a bare record list or a result envelope whose "data" holds one.
func tabularRows(data any) ([]map[string]any, error) {
	if data == nil {
		return nil, fmt.Errorf("data parameter is required")
	}
	if envelope, ok := data.(map[string]any); ok {
		if inner, hasData := envelope["data"]; hasData {
			data = inner
		}
	}
	list, ok := data.([]any)
	if !ok {
		return nil, fmt.Errorf("data is not a record list")
	}

	rows := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if row, ok := item.(map[string]any); ok {
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("data contains no records")
	}
	return rows, nil
}

func columnsParam(params map[string]any) []string {
	raw, ok := params["columns"].([]any)
	if !ok {
		return nil
	}
	columns := make([]string, 0, len(raw))
	for _, item := range raw {
		if col, ok := item.(string); ok {
			columns = append(columns, col)
		}
	}
	return columns
}

// schemaOf reports the columns, their inferred types and the row count.
func schemaOf(rows []map[string]any) map[string]any {
	columns := rowColumns(rows)
	types := make(map[string]any, len(columns))
	for _, col := range columns {
		types[col] = inferType(rows, col)
	}

	colNames := make([]any, 0, len(columns))
	for _, col := range columns {
		colNames = append(colNames, col)
	}
	return map[string]any{
		"status": "success",
		"data": map[string]any{
			"columns":      colNames,
			"column_types": types,
			"rows":         len(rows),
		},
	}
}

// summarize computes count/mean/std/min/max for the numeric columns.
func summarize(rows []map[string]any, columns []string) map[string]any {
	if len(columns) == 0 {
		columns = numericColumns(rows)
	}

	stats := make(map[string]any, len(columns))
	for _, col := range columns {
		values := numericValues(rows, col)
		if len(values) == 0 {
			continue
		}
		stats[col] = map[string]any{
			"count": len(values),
			"mean":  mean(values),
			"std":   stddev(values),
			"min":   minOf(values),
			"max":   maxOf(values),
		}
	}

	return map[string]any{
		"status": "success",
		"data": map[string]any{
			"basic_stats": stats,
			"shape": map[string]any{
				"rows":    len(rows),
				"columns": len(rowColumns(rows)),
			},
		},
	}
}

// correlate computes the pairwise Pearson correlation matrix over the
// numeric columns.
func correlate(rows []map[string]any, columns []string) (map[string]any, error) {
	if len(columns) == 0 {
		columns = numericColumns(rows)
	}
	if len(columns) < 2 {
		return nil, fmt.Errorf("correlation requires at least two numeric columns")
	}

	matrix := make(map[string]any, len(columns))
	for _, a := range columns {
		row := make(map[string]any, len(columns))
		for _, b := range columns {
			row[b] = pearson(rows, a, b)
		}
		matrix[a] = row
	}

	colNames := make([]any, 0, len(columns))
	for _, col := range columns {
		colNames = append(colNames, col)
	}
	return map[string]any{
		"status": "success",
		"data": map[string]any{
			"correlation_matrix": matrix,
			"method":             "pearson",
			"columns":            colNames,
		},
	}, nil
}

// filterRows applies per-column conditions. A condition is either a bare
// value (equality) or a map with "gt", "lt", "eq", "in" or "contains".
func filterRows(rows []map[string]any, filters map[string]any) map[string]any {
	filtered := make([]any, 0, len(rows))
	for _, row := range rows {
		if matchesFilters(row, filters) {
			filtered = append(filtered, row)
		}
	}
	return map[string]any{
		"status": "success",
		"data":   filtered,
		"metadata": map[string]any{
			"original_rows":   len(rows),
			"filtered_rows":   len(filtered),
			"filters_applied": filters,
		},
	}
}

func matchesFilters(row map[string]any, filters map[string]any) bool {
	for col, condition := range filters {
		value, present := row[col]
		if !present {
			continue
		}
		spec, isSpec := condition.(map[string]any)
		if !isSpec {
			if !looseEqual(value, condition) {
				return false
			}
			continue
		}
		if threshold, ok := spec["gt"]; ok {
			v, vok := toFloat(value)
			t, tok := toFloat(threshold)
			if !vok || !tok || !(v > t) {
				return false
			}
		}
		if threshold, ok := spec["lt"]; ok {
			v, vok := toFloat(value)
			t, tok := toFloat(threshold)
			if !vok || !tok || !(v < t) {
				return false
			}
		}
		if expected, ok := spec["eq"]; ok {
			if !looseEqual(value, expected) {
				return false
			}
		}
		if allowed, ok := spec["in"].([]any); ok {
			found := false
			for _, candidate := range allowed {
				if looseEqual(value, candidate) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		if substr, ok := spec["contains"].(string); ok {
			s, sok := value.(string)
			if !sok || !strings.Contains(s, substr) {
				return false
			}
		}
	}
	return true
}

// looseEqual compares across the numeric types JSON decoding produces.
func looseEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	return a == b
}

func rowColumns(rows []map[string]any) []string {
	seen := make(map[string]bool)
	var columns []string
	for _, row := range rows {
		for col := range row {
			if !seen[col] {
				seen[col] = true
				columns = append(columns, col)
			}
		}
	}
	sort.Strings(columns)
	return columns
}

func numericColumns(rows []map[string]any) []string {
	var columns []string
	for _, col := range rowColumns(rows) {
		if len(numericValues(rows, col)) > 0 {
			columns = append(columns, col)
		}
	}
	return columns
}

func inferType(rows []map[string]any, col string) string {
	for _, row := range rows {
		switch row[col].(type) {
		case nil:
			continue
		case float64, float32, int, int64:
			return "number"
		case bool:
			return "boolean"
		case string:
			return "string"
		default:
			return "object"
		}
	}
	return "unknown"
}

func numericValues(rows []map[string]any, col string) []float64 {
	values := make([]float64, 0, len(rows))
	for _, row := range rows {
		if v, ok := toFloat(row[col]); ok {
			values = append(values, v)
		}
	}
	return values
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
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

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// pearson computes the correlation coefficient between two columns over the
// rows where both are numeric.
func pearson(rows []map[string]any, colA, colB string) float64 {
	var xs, ys []float64
	for _, row := range rows {
		x, xok := toFloat(row[colA])
		y, yok := toFloat(row[colB])
		if xok && yok {
			xs = append(xs, x)
			ys = append(ys, y)
		}
	}
	if len(xs) < 2 {
		return 0
	}

	mx, my := mean(xs), mean(ys)
	var cov, varX, varY float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}
