// File path: internal/llm/json.go
package llm

import "strings"

// ExtractJSON strips leading/trailing markdown code fences from a model
// response so the payload can be unmarshalled. Models frequently wrap JSON
// in ```json blocks despite instructions not to.
func ExtractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
	}
	if strings.HasSuffix(s, "```") {
		if idx := strings.LastIndex(s, "\n```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}
