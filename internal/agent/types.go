// Package agent defines the runtime contract between the session bridge and
// a coding agent process, plus the message model the runtime emits.
package agent

import (
	"encoding/json"
	"fmt"
)

// MessageType discriminates between runtime message kinds.
type MessageType string

const (
	MessageTypeSystem    MessageType = "system"
	MessageTypeAssistant MessageType = "assistant"
	MessageTypeUser      MessageType = "user"
	MessageTypeResult    MessageType = "result"
)

// Message is the interface for all runtime messages.
type Message interface {
	MsgType() MessageType
}

// ContentBlock is the interface for message content blocks.
type ContentBlock interface {
	BlockType() string
}

// TextBlock is a plain text block.
type TextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// BlockType returns the block type.
func (TextBlock) BlockType() string { return "text" }

// ThinkingBlock carries extended reasoning output.
type ThinkingBlock struct {
	Type     string `json:"type"`
	Thinking string `json:"thinking"`
}

// BlockType returns the block type.
func (ThinkingBlock) BlockType() string { return "thinking" }

// ToolUseBlock declares a tool invocation requested by the agent.
type ToolUseBlock struct {
	Type  string         `json:"type"`
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// BlockType returns the block type.
func (ToolUseBlock) BlockType() string { return "tool_use" }

// ToolResultBlock carries the outcome of a tool invocation.
type ToolResultBlock struct {
	Type      string          `json:"type"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// BlockType returns the block type.
func (ToolResultBlock) BlockType() string { return "tool_result" }

// ImageBlock carries inline base64-encoded image data sent with a user turn.
type ImageBlock struct {
	Type   string      `json:"type"`
	Source ImageSource `json:"source"`
}

// ImageSource describes inline image data.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// BlockType returns the block type.
func (ImageBlock) BlockType() string { return "image" }

// ContentBlocks is an ordered list of content blocks with type-discriminated
// JSON decoding. Unknown block types are dropped.
type ContentBlocks []ContentBlock

// UnmarshalJSON implements json.Unmarshaler.
func (cb *ContentBlocks) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	blocks := make(ContentBlocks, 0, len(raw))
	for _, item := range raw {
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(item, &head); err != nil {
			return err
		}

		switch head.Type {
		case "text":
			var b TextBlock
			if err := json.Unmarshal(item, &b); err != nil {
				return err
			}
			blocks = append(blocks, b)
		case "thinking":
			var b ThinkingBlock
			if err := json.Unmarshal(item, &b); err != nil {
				return err
			}
			blocks = append(blocks, b)
		case "tool_use":
			var b ToolUseBlock
			if err := json.Unmarshal(item, &b); err != nil {
				return err
			}
			blocks = append(blocks, b)
		case "tool_result":
			var b ToolResultBlock
			if err := json.Unmarshal(item, &b); err != nil {
				return err
			}
			blocks = append(blocks, b)
		case "image":
			var b ImageBlock
			if err := json.Unmarshal(item, &b); err != nil {
				return err
			}
			blocks = append(blocks, b)
		default:
			// Unknown block kinds are not fatal.
			continue
		}
	}

	*cb = blocks
	return nil
}

// MessageBody is the inner payload of assistant and user messages.
type MessageBody struct {
	Role    string        `json:"role"`
	Model   string        `json:"model,omitempty"`
	Content ContentBlocks `json:"content"`
}

// SystemMessage carries runtime lifecycle and diagnostic information.
type SystemMessage struct {
	Type      MessageType    `json:"type"`
	Subtype   string         `json:"subtype"`
	SessionID string         `json:"session_id,omitempty"`
	Content   string         `json:"content,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// MsgType returns the message type.
func (m SystemMessage) MsgType() MessageType { return MessageTypeSystem }

// AssistantMessage is a complete assistant turn fragment.
type AssistantMessage struct {
	Type    MessageType `json:"type"`
	Message MessageBody `json:"message"`
}

// MsgType returns the message type.
func (m AssistantMessage) MsgType() MessageType { return MessageTypeAssistant }

// UserMessage carries tool results echoed back by the runtime.
type UserMessage struct {
	Type    MessageType `json:"type"`
	Message MessageBody `json:"message"`
}

// MsgType returns the message type.
func (m UserMessage) MsgType() MessageType { return MessageTypeUser }

// ResultMessage marks the end of a turn and carries its metrics.
type ResultMessage struct {
	Type         MessageType     `json:"type"`
	Subtype      string          `json:"subtype"`
	SessionID    string          `json:"session_id"`
	DurationMs   int64           `json:"duration_ms"`
	IsError      bool            `json:"is_error"`
	NumTurns     int             `json:"num_turns"`
	TotalCostUSD float64         `json:"total_cost_usd"`
	Usage        json.RawMessage `json:"usage,omitempty"`
	Result       string          `json:"result,omitempty"`
}

// MsgType returns the message type.
func (m ResultMessage) MsgType() MessageType { return MessageTypeResult }

// DecodeMessage decodes a single runtime message from its JSON encoding.
// Lines that are not one of the four message kinds decode to (nil, nil) so
// callers can skip transport-internal traffic.
func DecodeMessage(data []byte) (Message, error) {
	var head struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode message header: %w", err)
	}

	switch head.Type {
	case MessageTypeSystem:
		var m SystemMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode system message: %w", err)
		}
		return m, nil
	case MessageTypeAssistant:
		var m AssistantMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode assistant message: %w", err)
		}
		return m, nil
	case MessageTypeUser:
		var m UserMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode user message: %w", err)
		}
		return m, nil
	case MessageTypeResult:
		var m ResultMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode result message: %w", err)
		}
		return m, nil
	default:
		return nil, nil
	}
}
