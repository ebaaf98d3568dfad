// Package ws bridges one WebSocket connection to one agent session.
package ws

import "encoding/json"

// Inbound message types.
const (
	TypeMessage            = "message"
	TypeStop               = "stop"
	TypePermissionResponse = "permission_response"
	TypeQuestionResponse   = "question_response"
	TypeContinue           = "continue"
	TypeSetPermissionMode  = "set_permission_mode"
	TypePing               = "ping"
)

// TypePong is the only outbound control type. Everything else the gateway
// sends, errors included, is a bridge event carrying its own "type"
// discriminator.
const TypePong = "pong"

// InboundImage is a base64-encoded image attached to a user message.
type InboundImage struct {
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// InboundMessage is the tagged union of everything a client may send.
// Fields beyond Type are populated per message type.
type InboundMessage struct {
	Type    string         `json:"type"`
	Content string         `json:"content,omitempty"`
	Images  []InboundImage `json:"images,omitempty"`

	// permission_response
	ToolUseID string `json:"tool_use_id,omitempty"`
	Allowed   bool   `json:"allowed,omitempty"`

	// question_response: forwarded untouched, never interpreted here.
	Answers json.RawMessage `json:"answers,omitempty"`

	// set_permission_mode
	Mode string `json:"mode,omitempty"`
}

// controlMessage is the outbound pong frame.
type controlMessage struct {
	Type string `json:"type"`
}
