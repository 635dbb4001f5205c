package processor

import (
	"encoding/json"
	"regexp"
)

// ToolCall is a tool invocation request extracted from model output. It is
// never persisted; only the resulting tool output survives.
type ToolCall struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
}

// Models are instructed (via the capability prompt) to request tools by
// embedding `{"name": "<tool>", "parameters": {...}}` in their reply. This
// is a textual convention shared with other agent runtimes, not a
// structured-output contract, so extraction is deliberately best-effort:
// scan for the shape, parse each match independently, and drop matches
// whose payload does not parse. The parameter object must be flat (no
// nested objects).
var toolCallPattern = regexp.MustCompile(`\{\s*"name"\s*:\s*"[A-Za-z_][A-Za-z0-9_\-]*"\s*,\s*"parameters"\s*:\s*\{[^{}]*\}\s*\}`)

func extractToolCalls(content string) []ToolCall {
	matches := toolCallPattern.FindAllString(content, -1)
	var calls []ToolCall
	for _, match := range matches {
		var call ToolCall
		if err := json.Unmarshal([]byte(match), &call); err != nil {
			continue
		}
		calls = append(calls, call)
	}
	return calls
}
