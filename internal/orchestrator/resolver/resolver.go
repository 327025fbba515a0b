// SPDX-License-Identifier: Apache-2.0

package resolver

import (
	"fmt"

	"github.com/kestrel-ai/kestrel/internal/core/models"
)

// Resolve rewrites a step's declared params by substituting symbolic
// output references ("output_of_step_<id>") with values from the execution
// context. It is best-effort and never fails:
//
//   - A reference whose context entry exists is replaced by that entry,
//     unwrapped one level: if the entry is a map carrying a "data" key, the
//     value under "data" is substituted instead of the whole envelope, since
//     downstream tools expect raw tabular data rather than a result wrapper.
//   - A reference whose context entry is missing is left in place; the tool
//     itself will produce the explicit error.
//   - The legacy "input" key is normalized: its resolved value is carried
//     under "data" in the returned mapping.
//   - Everything else passes through unchanged.
func Resolve(params map[string]any, execCtx map[string]any) map[string]any {
	resolved := make(map[string]any, len(params))
	for key, value := range params {
		out := resolveValue(value, execCtx)
		if key == "input" {
			key = "data"
		}
		resolved[key] = out
	}
	return resolved
}

func resolveValue(value any, execCtx map[string]any) any {
	ref, ok := value.(string)
	if !ok {
		return value
	}
	id, isRef := models.ParseOutputRef(ref)
	if !isRef {
		return value
	}

	entry, found := execCtx[fmt.Sprintf("step_%d", id)]
	if !found {
		// Fail soft: keep the placeholder and let the tool report it.
		return value
	}
	if envelope, ok := entry.(map[string]any); ok {
		if data, hasData := envelope["data"]; hasData {
			return data
		}
	}
	return entry
}
