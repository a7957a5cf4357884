// Package hooks defines the host hook event types and payload shapes
// exchanged with Claude Code, and maps them onto engine entry points.
package hooks

import (
	"fmt"
)

// Type identifies a host lifecycle hook.
type Type string

const (
	// TypePreToolUse fires before a tool executes; its response can
	// block the call.
	TypePreToolUse Type = "PreToolUse"

	// TypePostToolUse fires after a tool executes.
	TypePostToolUse Type = "PostToolUse"

	// TypeUserPromptSubmit fires when the user submits a prompt.
	TypeUserPromptSubmit Type = "UserPromptSubmit"

	// TypeStop fires when the assistant wants to end its turn.
	TypeStop Type = "Stop"

	// TypePreCompact fires before the host compacts conversation
	// history.
	TypePreCompact Type = "PreCompact"

	// TypeSessionEnd fires when the session is deleted.
	TypeSessionEnd Type = "SessionEnd"
)

// ParseType converts the CLI event name (kebab or exact) to a Type.
func ParseType(s string) (Type, error) {
	switch s {
	case "PreToolUse", "pre-tool-use":
		return TypePreToolUse, nil
	case "PostToolUse", "post-tool-use":
		return TypePostToolUse, nil
	case "UserPromptSubmit", "user-prompt-submit":
		return TypeUserPromptSubmit, nil
	case "Stop", "stop":
		return TypeStop, nil
	case "PreCompact", "pre-compact":
		return TypePreCompact, nil
	case "SessionEnd", "session-end":
		return TypeSessionEnd, nil
	}
	return "", fmt.Errorf("unknown hook event %q", s)
}

// Event is the JSON payload Claude Code writes to a hook's stdin. Fields
// are a union across hook types; unused fields are empty.
type Event struct {
	SessionID      string         `json:"session_id"`
	TranscriptPath string         `json:"transcript_path,omitempty"`
	HookEventName  string         `json:"hook_event_name,omitempty"`
	ToolName       string         `json:"tool_name,omitempty"`
	ToolInput      map[string]any `json:"tool_input,omitempty"`
	ToolResponse   map[string]any `json:"tool_response,omitempty"`
	Prompt         string         `json:"prompt,omitempty"`
	CustomInstr    string         `json:"custom_instructions,omitempty"`
	Trigger        string         `json:"trigger,omitempty"`
}

// Response is the JSON payload a hook writes to stdout. The host treats
// decision "block" as a denial with Reason surfaced to the assistant;
// AdditionalContext is injected into the conversation (used to carry the
// preserved-state block on PreCompact).
type Response struct {
	Decision          string `json:"decision,omitempty"` // "block" or empty
	Reason            string `json:"reason,omitempty"`
	AdditionalContext string `json:"additionalContext,omitempty"`
	Continue          *bool  `json:"continue,omitempty"`
}

// Block builds a blocking response.
func Block(reason string) *Response {
	return &Response{Decision: "block", Reason: reason}
}

// Allow builds an empty (permit) response.
func Allow() *Response {
	return &Response{}
}
