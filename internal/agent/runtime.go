package agent

import "context"

// Decision is the outcome of a permission check for one tool invocation.
type Decision struct {
	Allow bool
	// Message is the human-readable deny reason. Empty on allow.
	Message string
	// Interrupt asks the runtime to abort the whole turn, not just this tool.
	Interrupt bool
}

// Allowed returns an allow decision.
func Allowed() Decision {
	return Decision{Allow: true}
}

// Denied returns a deny decision with a reason.
func Denied(message string) Decision {
	return Decision{Message: message}
}

// DeniedInterrupt returns a deny decision that interrupts the turn.
func DeniedInterrupt(message string) Decision {
	return Decision{Message: message, Interrupt: true}
}

// PermissionFunc is invoked by the runtime before each tool executes. The
// runtime blocks the tool (not the whole turn stream) until it returns.
type PermissionFunc func(ctx context.Context, toolName string, input map[string]any) Decision

// Attachment is an inline image sent with a user turn.
type Attachment struct {
	MediaType string `json:"media_type"`
	Data      string `json:"data"` // base64
}

// Runtime is the collaborator interface the session bridge drives. One
// Runtime instance corresponds to one agent process and one resumable
// conversation.
type Runtime interface {
	// SubmitTurn sends user input and returns the stream of messages for the
	// resulting turn. The channel is closed when the turn completes or the
	// runtime fails; a mid-turn failure surfaces as a system error message on
	// the channel, never as a panic.
	SubmitTurn(ctx context.Context, text string, attachments []Attachment) (<-chan Message, error)

	// Interrupt asks the runtime to abort the current turn.
	Interrupt(ctx context.Context) error

	// SetPermissionFunc registers the permission gate callback. Must be set
	// before the first SubmitTurn.
	SetPermissionFunc(fn PermissionFunc)

	// Close terminates the underlying agent process.
	Close() error
}
