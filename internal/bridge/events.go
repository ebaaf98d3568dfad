package bridge

import (
	"encoding/json"

	"prettycode/internal/agent"
)

// System event subtypes.
const (
	SystemInit    = "init"
	SystemConfig  = "config"
	SystemStopped = "stopped"
	SystemError   = "error"
)

// Event is the closed union of everything the bridge sends to the client.
// Each variant marshals to a JSON object carrying a "type" discriminator.
type Event interface {
	EventType() string
}

// SystemEvent carries session lifecycle and diagnostic information.
type SystemEvent struct {
	Subtype        string         `json:"subtype"`
	SessionID      string         `json:"session_id,omitempty"`
	PermissionMode PermissionMode `json:"permissionMode,omitempty"`
	Content        string         `json:"content,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	FilesChanged   []string       `json:"files_changed,omitempty"`
}

// EventType returns the event discriminator.
func (SystemEvent) EventType() string { return "system" }

// MarshalJSON implements json.Marshaler.
func (e SystemEvent) MarshalJSON() ([]byte, error) {
	type alias SystemEvent
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{"system", alias(e)})
}

// AssistantEvent wraps an assistant message for the client.
type AssistantEvent struct {
	Message agent.MessageBody `json:"message"`
}

// EventType returns the event discriminator.
func (AssistantEvent) EventType() string { return "assistant" }

// MarshalJSON implements json.Marshaler.
func (e AssistantEvent) MarshalJSON() ([]byte, error) {
	type alias AssistantEvent
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{"assistant", alias(e)})
}

// UserEvent wraps tool results echoed back by the runtime.
type UserEvent struct {
	Message agent.MessageBody `json:"message"`
}

// EventType returns the event discriminator.
func (UserEvent) EventType() string { return "user" }

// MarshalJSON implements json.Marshaler.
func (e UserEvent) MarshalJSON() ([]byte, error) {
	type alias UserEvent
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{"user", alias(e)})
}

// PermissionRequestEvent asks the client to approve one tool invocation.
type PermissionRequestEvent struct {
	ToolUseID string         `json:"tool_use_id"`
	Tool      string         `json:"tool"`
	Input     map[string]any `json:"input"`
}

// EventType returns the event discriminator.
func (PermissionRequestEvent) EventType() string { return "permission_request" }

// MarshalJSON implements json.Marshaler.
func (e PermissionRequestEvent) MarshalJSON() ([]byte, error) {
	type alias PermissionRequestEvent
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{"permission_request", alias(e)})
}

// ResultEvent ends a turn and carries its metrics.
type ResultEvent struct {
	Subtype      string          `json:"subtype"`
	SessionID    string          `json:"session_id"`
	DurationMs   int64           `json:"duration_ms"`
	IsError      bool            `json:"is_error"`
	NumTurns     int             `json:"num_turns"`
	TotalCostUSD float64         `json:"total_cost_usd"`
	Usage        json.RawMessage `json:"usage,omitempty"`
	Result       string          `json:"result,omitempty"`
}

// EventType returns the event discriminator.
func (ResultEvent) EventType() string { return "result" }

// MarshalJSON implements json.Marshaler.
func (e ResultEvent) MarshalJSON() ([]byte, error) {
	type alias ResultEvent
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{"result", alias(e)})
}

// PermissionRequest is the gate's internal request record, published on the
// permission channel and turned into a PermissionRequestEvent by the
// multiplexer. Exactly one is outstanding per gate at a time.
type PermissionRequest struct {
	ToolUseID string
	Tool      string
	Input     map[string]any
}
