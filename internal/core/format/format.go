// SPDX-License-Identifier: Apache-2.0

package format

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseFile reads and parses a plan or config file, trying YAML first and
// falling back to JSON.
func ParseFile(filePath string, v interface{}) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("error reading file: %w", err)
	}
	return ParseData(data, v)
}

// ParseData parses data, trying YAML first, then JSON.
func ParseData(data []byte, v interface{}) error {
	yamlErr := yaml.Unmarshal(data, v)
	if yamlErr == nil {
		return nil
	}
	jsonErr := json.Unmarshal(data, v)
	if jsonErr == nil {
		return nil
	}
	return fmt.Errorf("failed to parse as YAML (%v) or JSON (%v)", yamlErr, jsonErr)
}

// FormatData renders v as YAML (asYAML true) or indented JSON.
func FormatData(v interface{}, asYAML bool) (string, error) {
	var (
		data []byte
		err  error
	)
	if asYAML {
		data, err = yaml.Marshal(v)
	} else {
		data, err = json.MarshalIndent(v, "", "  ")
	}
	if err != nil {
		return "", fmt.Errorf("error formatting data: %w", err)
	}
	return string(data), nil
}

// WriteFile writes v to a file; the format is picked from the extension,
// defaulting to YAML.
func WriteFile(filePath string, v interface{}) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".json":
		data, err = json.MarshalIndent(v, "", "  ")
	default:
		data, err = yaml.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("error marshaling data: %w", err)
	}
	return os.WriteFile(filePath, data, 0644)
}
