// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"

	_ "github.com/glebarez/go-sqlite"

	"github.com/kestrel-ai/kestrel/internal/core/models"
)

// SQLRunnerTool executes SQL over an embedded in-memory database. Tables
// loaded by one step are visible to later steps in the same process.
type SQLRunnerTool struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLRunnerTool opens the embedded database. Pass ":memory:" for a
// throwaway store or a file path for persistence across restarts.
func NewSQLRunnerTool(dsn string) (*SQLRunnerTool, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: tables alive across statements.
	db.SetMaxOpenConns(1)
	return &SQLRunnerTool{db: db}, nil
}

func (t *SQLRunnerTool) Name() models.ToolType { return models.ToolDuckDB }

// Close releases the database handle.
func (t *SQLRunnerTool) Close() error { return t.db.Close() }

// Run executes the operation named by "operation": "query" (default),
// "load_data", "list_tables" or "describe".
func (t *SQLRunnerTool) Run(ctx context.Context, params map[string]any) (map[string]any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	operation, _ := params["operation"].(string)
	if operation == "" {
		operation = "query"
	}

	switch operation {
	case "query":
		query, _ := params["query"].(string)
		if query == "" {
			return nil, fmt.Errorf("query parameter is required")
		}
		// Rows handed down from a previous step are loaded first so the
		// query can reference them as the "data" table.
		if rows, ok := params["data"].([]any); ok && len(rows) > 0 {
			if _, err := t.loadRows(ctx, "data", rows); err != nil {
				return nil, err
			}
		}
		return t.runQuery(ctx, query)
	case "load_data":
		tableName, _ := params["table_name"].(string)
		rows, _ := params["data"].([]any)
		if tableName == "" || len(rows) == 0 {
			return nil, fmt.Errorf("data and table_name are required")
		}
		return t.loadRows(ctx, tableName, rows)
	case "list_tables":
		return t.listTables(ctx)
	case "describe":
		tableName, _ := params["table_name"].(string)
		if tableName == "" {
			return nil, fmt.Errorf("table_name is required")
		}
		return t.describeTable(ctx, tableName)
	default:
		return nil, fmt.Errorf("unknown operation %q", operation)
	}
}

func (t *SQLRunnerTool) runQuery(ctx context.Context, query string) (map[string]any, error) {
	rows, err := t.db.QueryContext(ctx, query)
	if err != nil {
		return map[string]any{
			"status":   "error",
			"error":    err.Error(),
			"metadata": map[string]any{"query": query},
		}, nil
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	var records []any
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		record := make(map[string]any, len(columns))
		for i, col := range columns {
			record[col] = normalizeSQLValue(values[i])
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading result rows: %w", err)
	}

	colNames := make([]any, 0, len(columns))
	for _, col := range columns {
		colNames = append(colNames, col)
	}
	return map[string]any{
		"status": "success",
		"data":   records,
		"metadata": map[string]any{
			"rows":    len(records),
			"columns": colNames,
			"query":   query,
		},
	}, nil
}

// loadRows creates (or replaces) a table from a list of record maps. Column
// set and order come from the union of keys across all records.
func (t *SQLRunnerTool) loadRows(ctx context.Context, tableName string, rawRows []any) (map[string]any, error) {
	if !validIdentifier(tableName) {
		return nil, fmt.Errorf("invalid table name %q", tableName)
	}

	columns := collectColumns(rawRows)
	if len(columns) == 0 {
		return nil, fmt.Errorf("data contains no usable records")
	}

	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdentifier(col)
	}

	if _, err := t.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, quoteIdentifier(tableName))); err != nil {
		return nil, fmt.Errorf("failed to reset table %q: %w", tableName, err)
	}
	createStmt := fmt.Sprintf(`CREATE TABLE %s (%s)`, quoteIdentifier(tableName), strings.Join(quoted, ", "))
	if _, err := t.db.ExecContext(ctx, createStmt); err != nil {
		return nil, fmt.Errorf("failed to create table %q: %w", tableName, err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",")
	insertStmt := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		quoteIdentifier(tableName), strings.Join(quoted, ", "), placeholders)

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	inserted := 0
	for _, rawRow := range rawRows {
		row, ok := rawRow.(map[string]any)
		if !ok {
			continue
		}
		args := make([]any, len(columns))
		for i, col := range columns {
			args[i] = row[col]
		}
		if _, err := tx.ExecContext(ctx, insertStmt, args...); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to insert into %q: %w", tableName, err)
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit load into %q: %w", tableName, err)
	}

	colNames := make([]any, 0, len(columns))
	for _, col := range columns {
		colNames = append(colNames, col)
	}
	return map[string]any{
		"status":     "success",
		"table_name": tableName,
		"rows":       inserted,
		"columns":    colNames,
		"data":       map[string]any{"table_name": tableName, "rows": inserted},
	}, nil
}

func (t *SQLRunnerTool) listTables(ctx context.Context) (map[string]any, error) {
	rows, err := t.db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []any
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading table list: %w", err)
	}
	return map[string]any{
		"status": "success",
		"tables": tables,
		"data":   map[string]any{"tables": tables},
	}, nil
}

func (t *SQLRunnerTool) describeTable(ctx context.Context, tableName string) (map[string]any, error) {
	if !validIdentifier(tableName) {
		return nil, fmt.Errorf("invalid table name %q", tableName)
	}
	rows, err := t.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdentifier(tableName)))
	if err != nil {
		return nil, fmt.Errorf("failed to describe table %q: %w", tableName, err)
	}
	defer rows.Close()

	var schema []any
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan schema row: %w", err)
		}
		schema = append(schema, map[string]any{
			"column_name": name,
			"column_type": typ,
			"nullable":    notNull == 0,
			"primary_key": pk != 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading schema: %w", err)
	}
	if len(schema) == 0 {
		return nil, fmt.Errorf("table %q does not exist", tableName)
	}
	return map[string]any{
		"status":     "success",
		"table_name": tableName,
		"schema":     schema,
		"data":       map[string]any{"table_name": tableName, "schema": schema},
	}, nil
}

func normalizeSQLValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func collectColumns(rawRows []any) []string {
	seen := make(map[string]bool)
	var columns []string
	for _, rawRow := range rawRows {
		row, ok := rawRow.(map[string]any)
		if !ok {
			continue
		}
		for col := range row {
			if !seen[col] {
				seen[col] = true
				columns = append(columns, col)
			}
		}
	}
	// First-seen order would depend on map iteration; keep it stable.
	sort.Strings(columns)
	return columns
}

func validIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
