// Package toolcall parses the fixed textual tool-invocation syntax the
// model is prompted to emit: [TOOL:name]{json}[/TOOL]. The model is an
// untrusted text generator, so parsing is deliberately tolerant — a
// recognized tool name with a mangled payload still yields a call (with
// empty params) so the executor can answer with a structured
// missing-fields error instead of the request silently vanishing.
package toolcall

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Call is one parsed tool invocation.
type Call struct {
	Name   string
	Params map[string]any
}

var (
	blockRe = regexp.MustCompile(`(?s)\[TOOL:([a-zA-Z0-9_]+)\](.*?)\[/TOOL\]`)
	braceRe = regexp.MustCompile(`(?s)\{.*\}`)
)

// Parse extracts every tool-call block from the model output, in order.
// Returns nil when the text contains no well-formed block.
func Parse(text string) []Call {
	if text == "" {
		return nil
	}

	var calls []Call
	for _, m := range blockRe.FindAllStringSubmatch(text, -1) {
		name := strings.TrimSpace(m[1])
		if name == "" {
			continue
		}
		calls = append(calls, Call{Name: name, Params: decodeParams(m[2])})
	}
	return calls
}

// Strip removes every recognized tool-call block and returns the
// trimmed prose remainder.
func Strip(text string) string {
	return strings.TrimSpace(blockRe.ReplaceAllString(text, ""))
}

// decodeParams decodes the JSON payload of a tool block. Code fences
// are stripped first; if strict decoding fails, the first balanced
// {...} substring is tried; if that fails too, the call degrades to an
// empty parameter set.
func decodeParams(raw string) map[string]any {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	if cleaned == "" {
		return map[string]any{}
	}

	var params map[string]any
	if err := json.Unmarshal([]byte(cleaned), &params); err == nil && params != nil {
		return params
	}

	if m := braceRe.FindString(cleaned); m != "" {
		if err := json.Unmarshal([]byte(m), &params); err == nil && params != nil {
			return params
		}
	}

	return map[string]any{}
}
