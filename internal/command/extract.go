package command

import (
	"encoding/json"
	"strings"
)

// ExtractTrailingJSON pulls the largest trailing {...} block out of free
// text. Models asked for JSON tend to wrap it in prose or code fences; this
// is deliberately best-effort, and callers degrade to an empty result when
// nothing parses.
func ExtractTrailingJSON(text string) (json.RawMessage, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, false
	}
	end := strings.LastIndex(trimmed, "}")
	if end < 0 {
		return nil, false
	}
	for start := strings.Index(trimmed, "{"); start >= 0 && start < end; start = nextBrace(trimmed, start) {
		candidate := trimmed[start : end+1]
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), true
		}
	}
	return nil, false
}

func nextBrace(s string, after int) int {
	idx := strings.Index(s[after+1:], "{")
	if idx < 0 {
		return -1
	}
	return after + 1 + idx
}
