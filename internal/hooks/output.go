package hooks

import (
	"encoding/json"
	"fmt"
	"io"
)

// SessionStartOutput is the JSON structure the host expects on stdout
// from the SessionStart hook.
type SessionStartOutput struct {
	HookSpecificOutput struct {
		HookEventName     string `json:"hookEventName"`
		AdditionalContext string `json:"additionalContext"`
	} `json:"hookSpecificOutput"`
}

// WriteSessionStartOutput writes the SessionStart response to w.
func WriteSessionStartOutput(w io.Writer, context string) error {
	out := SessionStartOutput{}
	out.HookSpecificOutput.HookEventName = "SessionStart"
	out.HookSpecificOutput.AdditionalContext = context
	return json.NewEncoder(w).Encode(out)
}

// reportError logs to stderr. Hooks always exit 0 so the host session is
// never interrupted by a memory failure.
func reportError(w io.Writer, err error) {
	fmt.Fprintf(w, "ltm hook: %v\n", err)
}
