// SPDX-License-Identifier: Apache-2.0

package format_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-ai/kestrel/internal/core/format"
)

func TestParseDataYAML(t *testing.T) {
	var v map[string]any
	require.NoError(t, format.ParseData([]byte("name: kestrel\nsteps: 3\n"), &v))
	assert.Equal(t, "kestrel", v["name"])
	assert.Equal(t, 3, v["steps"])
}

func TestParseDataJSON(t *testing.T) {
	var v map[string]any
	require.NoError(t, format.ParseData([]byte(`{"name": "kestrel"}`), &v))
	assert.Equal(t, "kestrel", v["name"])
}

func TestParseDataInvalid(t *testing.T) {
	var v map[string]any
	err := format.ParseData([]byte("{not valid: in: either"), &v)
	assert.Error(t, err)
}

func TestParseFileMissing(t *testing.T) {
	var v map[string]any
	err := format.ParseFile(filepath.Join(t.TempDir(), "nope.yaml"), &v)
	assert.ErrorContains(t, err, "error reading file")
}

func TestFormatData(t *testing.T) {
	v := map[string]any{"a": 1}

	asJSON, err := format.FormatData(v, false)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1}`, asJSON)

	asYAML, err := format.FormatData(v, true)
	require.NoError(t, err)
	assert.Equal(t, "a: 1\n", asYAML)
}

func TestWriteFileFormatFromExtension(t *testing.T) {
	dir := t.TempDir()
	v := map[string]any{"a": 1}

	jsonPath := filepath.Join(dir, "out.json")
	require.NoError(t, format.WriteFile(jsonPath, v))
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1}`, string(data))

	yamlPath := filepath.Join(dir, "out.yaml")
	require.NoError(t, format.WriteFile(yamlPath, v))
	data, err = os.ReadFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "a: 1\n", string(data))

	var roundTrip map[string]any
	require.NoError(t, format.ParseFile(yamlPath, &roundTrip))
	assert.Equal(t, 1, roundTrip["a"])
}
