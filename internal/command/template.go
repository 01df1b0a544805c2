package command

import (
	"encoding/json"
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// Render substitutes {{path.to.value}} placeholders by walking values with
// successive map keys. Missing or nil intermediate values render as the
// empty string; non-string leaves are JSON-serialized with 2-space indent.
// Malformed placeholders never fail the render.
func Render(template string, values map[string]any) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		path := strings.TrimSpace(match[2 : len(match)-2])
		if path == "" {
			return ""
		}
		var current any = values
		for _, key := range strings.Split(path, ".") {
			m, ok := current.(map[string]any)
			if !ok {
				return ""
			}
			current, ok = m[key]
			if !ok || current == nil {
				return ""
			}
		}
		if s, ok := current.(string); ok {
			return s
		}
		raw, err := json.MarshalIndent(current, "", "  ")
		if err != nil {
			return ""
		}
		return string(raw)
	})
}
