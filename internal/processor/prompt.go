package processor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flitsinc/go-a2a/internal/toolbridge"
)

// buildToolPrompt renders the bridge's registry as natural language, ending
// with the invocation convention extractToolCalls scans for.
func buildToolPrompt(specs []toolbridge.Spec) string {
	var b strings.Builder
	b.WriteString("You have access to the following tools:\n")
	for _, spec := range specs {
		fmt.Fprintf(&b, "- %s: %s", spec.Name, spec.Description)
		if len(spec.Params) > 0 {
			b.WriteString(" Parameters: ")
			for i, param := range spec.Params {
				if i > 0 {
					b.WriteString("; ")
				}
				b.WriteString(param.Name)
				if param.Required {
					b.WriteString(" (required)")
				}
				if param.Description != "" {
					b.WriteString(": " + param.Description)
				}
			}
		}
		b.WriteString("\n")
	}
	b.WriteString(`To use a tool, include a JSON object of exactly this form in your reply: {"name": "<tool_name>", "parameters": {<argument>: <value>, ...}}`)
	return b.String()
}

// injectToolPrompt folds the capability prompt into the conversation:
// appended to the existing system turn when one is present, otherwise a
// new system turn introducing the agent is prepended.
func injectToolPrompt(turns []Turn, agentName, agentDescription string, specs []toolbridge.Spec) []Turn {
	prompt := buildToolPrompt(specs)
	for i := range turns {
		if turns[i].Role == "system" {
			turns[i].Content += "\n\n" + prompt
			return turns
		}
	}
	intro := fmt.Sprintf("You are %s. %s", agentName, agentDescription)
	system := Turn{Role: "system", Content: intro + "\n\n" + prompt}
	return append([]Turn{system}, turns...)
}

// toolResultsPrompt serializes tool outcomes as a JSON array for the
// follow-up model call. Failures travel as data next to successes.
func toolResultsPrompt(results []toolbridge.Result) string {
	serialized, err := json.Marshal(results)
	if err != nil {
		return "Tool results: []"
	}
	return "Tool results: " + string(serialized)
}
