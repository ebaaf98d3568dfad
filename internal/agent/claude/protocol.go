// Package claude runs the Claude Code CLI as a subprocess and adapts its
// bidirectional stream-json protocol to the agent runtime contract.
package claude

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"prettycode/internal/agent"
)

const (
	typeControlRequest  = "control_request"
	typeControlResponse = "control_response"

	subtypeCanUseTool = "can_use_tool"
	subtypeInterrupt  = "interrupt"
)

// controlRequest is an inbound control message from the CLI. The inner
// request stays raw until the subtype is known.
type controlRequest struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	Request   json.RawMessage `json:"request"`
}

// canUseToolRequest asks permission to run a tool.
type canUseToolRequest struct {
	Subtype  string         `json:"subtype"`
	ToolName string         `json:"tool_name"`
	Input    map[string]any `json:"input"`
}

// controlResponse wraps a response we send back to the CLI.
type controlResponse struct {
	Type     string                 `json:"type"`
	Response controlResponsePayload `json:"response"`
}

type controlResponsePayload struct {
	Subtype   string `json:"subtype"`
	RequestID string `json:"request_id"`
	Response  any    `json:"response,omitempty"`
}

// permissionAllow and permissionDeny mirror the CLI's PermissionResult wire
// shapes. updatedInput must be an object, never null.
type permissionAllow struct {
	Behavior     string         `json:"behavior"`
	UpdatedInput map[string]any `json:"updatedInput"`
}

type permissionDeny struct {
	Behavior  string `json:"behavior"`
	Message   string `json:"message,omitempty"`
	Interrupt bool   `json:"interrupt,omitempty"`
}

// newPermissionResponse builds the control_response for a can_use_tool
// request from a gate decision.
func newPermissionResponse(requestID string, input map[string]any, d agent.Decision) controlResponse {
	var result any
	if d.Allow {
		if input == nil {
			input = map[string]any{}
		}
		result = permissionAllow{Behavior: "allow", UpdatedInput: input}
	} else {
		result = permissionDeny{Behavior: "deny", Message: d.Message, Interrupt: d.Interrupt}
	}

	return controlResponse{
		Type: typeControlResponse,
		Response: controlResponsePayload{
			Subtype:   "success",
			RequestID: requestID,
			Response:  result,
		},
	}
}

// controlRequestToSend is an outbound control message.
type controlRequestToSend struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Request   any    `json:"request"`
}

func newInterruptRequest() controlRequestToSend {
	return controlRequestToSend{
		Type:      typeControlRequest,
		RequestID: newRequestID(),
		Request:   map[string]string{"subtype": subtypeInterrupt},
	}
}

// userTextMessage builds the stream-json user message for one turn. Without
// attachments the content is a plain string; with attachments it becomes a
// block list with the images first.
func userTextMessage(text string, attachments []agent.Attachment) map[string]any {
	var content any = text
	if len(attachments) > 0 {
		blocks := make([]any, 0, len(attachments)+1)
		for _, a := range attachments {
			blocks = append(blocks, map[string]any{
				"type": "image",
				"source": map[string]any{
					"type":       "base64",
					"media_type": a.MediaType,
					"data":       a.Data,
				},
			})
		}
		if text != "" {
			blocks = append(blocks, map[string]any{"type": "text", "text": text})
		}
		content = blocks
	}

	return map[string]any{
		"type": "user",
		"message": map[string]any{
			"role":    "user",
			"content": content,
		},
	}
}

func newRequestID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", time.Now().UnixNano(), hex.EncodeToString(b))
}
