// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kestrel-ai/kestrel/internal/core/models"
)

// LoadLocalTool reads CSV, JSON and plain-text files into the tabular
// payload shape downstream tools expect. Paths are resolved relative to the
// tool's base directory; absolute paths are allowed.
type LoadLocalTool struct {
	baseDir string
}

// NewLoadLocalTool creates the tool. An empty baseDir means the process
// working directory.
func NewLoadLocalTool(baseDir string) *LoadLocalTool {
	return &LoadLocalTool{baseDir: baseDir}
}

func (t *LoadLocalTool) Name() models.ToolType { return models.ToolLoadLocal }

// Run loads the file named by "file_path". The "file_type" param overrides
// extension-based detection.
func (t *LoadLocalTool) Run(ctx context.Context, params map[string]any) (map[string]any, error) {
	filePath, _ := params["file_path"].(string)
	if filePath == "" {
		return nil, fmt.Errorf("file_path parameter is required")
	}
	if !filepath.IsAbs(filePath) && t.baseDir != "" {
		filePath = filepath.Join(t.baseDir, filePath)
	}

	fileType, _ := params["file_type"].(string)
	if fileType == "" || fileType == "auto" {
		fileType = strings.TrimPrefix(filepath.Ext(filePath), ".")
	}

	switch strings.ToLower(fileType) {
	case "csv":
		return t.loadCSV(filePath)
	case "json", "jsonl":
		return t.loadJSON(filePath)
	case "txt", "text":
		return t.loadText(filePath)
	default:
		return nil, fmt.Errorf("unsupported file type %q", fileType)
	}
}

// loadCSV reads a header row plus records, coercing numeric-looking cells.
func (t *LoadLocalTool) loadCSV(filePath string) (map[string]any, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", filePath, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV %q: %w", filePath, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("file %q is empty", filePath)
	}

	header := records[0]
	rows := make([]any, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]any, len(header))
		for i, col := range header {
			if i >= len(record) {
				row[col] = nil
				continue
			}
			row[col] = coerce(record[i])
		}
		rows = append(rows, row)
	}

	columns := make([]any, 0, len(header))
	for _, col := range header {
		columns = append(columns, col)
	}
	return map[string]any{
		"file_path": filePath,
		"file_type": "csv",
		"status":    "success",
		"data":      rows,
		"metadata": map[string]any{
			"rows":         len(rows),
			"columns":      len(header),
			"column_names": columns,
		},
	}, nil
}

// loadJSON reads a JSON document, or one document per line for .jsonl.
func (t *LoadLocalTool) loadJSON(filePath string) (map[string]any, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", filePath, err)
	}
	defer f.Close()

	var data any
	if strings.HasSuffix(filePath, ".jsonl") {
		var lines []any
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 10<<20)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var doc any
			if err := json.Unmarshal([]byte(line), &doc); err != nil {
				return nil, fmt.Errorf("failed to parse JSONL %q: %w", filePath, err)
			}
			lines = append(lines, doc)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read %q: %w", filePath, err)
		}
		data = lines
	} else {
		if err := json.NewDecoder(f).Decode(&data); err != nil {
			return nil, fmt.Errorf("failed to parse JSON %q: %w", filePath, err)
		}
	}

	size := 1
	if list, ok := data.([]any); ok {
		size = len(list)
	}
	return map[string]any{
		"file_path": filePath,
		"file_type": "json",
		"status":    "success",
		"data":      data,
		"metadata": map[string]any{
			"size": size,
		},
	}, nil
}

func (t *LoadLocalTool) loadText(filePath string) (map[string]any, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", filePath, err)
	}
	text := string(content)
	return map[string]any{
		"file_path": filePath,
		"file_type": "text",
		"status":    "success",
		"data":      text,
		"metadata": map[string]any{
			"size_chars": len(text),
			"size_lines": len(strings.Split(text, "\n")),
		},
	}, nil
}

// coerce turns numeric-looking CSV cells into numbers so downstream
// analysis sees typed data.
func coerce(cell string) any {
	trimmed := strings.TrimSpace(cell)
	if trimmed == "" {
		return cell
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(trimmed); err == nil {
		return b
	}
	return cell
}
