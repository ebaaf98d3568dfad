// Package bridge implements the session bridge between an interactive client
// and a coding agent runtime: permission gating, tool-use correlation, event
// multiplexing and session lifecycle.
package bridge

import "fmt"

// PermissionMode is the policy level controlling which tool classes are
// auto-approved.
type PermissionMode string

const (
	ModeDefault           PermissionMode = "default"
	ModePlan              PermissionMode = "plan"
	ModeAcceptEdits       PermissionMode = "acceptEdits"
	ModeBypassPermissions PermissionMode = "bypassPermissions"
)

// ParsePermissionMode validates a mode string from the transport.
func ParsePermissionMode(s string) (PermissionMode, error) {
	switch PermissionMode(s) {
	case ModeDefault, ModePlan, ModeAcceptEdits, ModeBypassPermissions:
		return PermissionMode(s), nil
	default:
		return "", fmt.Errorf("unknown permission mode: %q", s)
	}
}

// readOnlyTools are safe to auto-approve in every mode.
var readOnlyTools = map[string]struct{}{
	"Read":             {},
	"Glob":             {},
	"Grep":             {},
	"WebFetch":         {},
	"WebSearch":        {},
	"ListMcpResources": {},
	"ReadMcpResource":  {},
	"BashOutput":       {},
	"TodoRead":         {},
}

// editTools are additionally auto-approved in acceptEdits mode. Shell
// execution is deliberately not in this set.
var editTools = map[string]struct{}{
	"Edit":         {},
	"Write":        {},
	"NotebookEdit": {},
}

// IsAutoApproved reports whether toolName executes without asking the user
// under the given permission mode. Unknown tools always require approval.
func IsAutoApproved(toolName string, mode PermissionMode) bool {
	if mode == ModeBypassPermissions {
		return true
	}

	if _, ok := readOnlyTools[toolName]; ok {
		return true
	}

	if mode == ModeAcceptEdits {
		if _, ok := editTools[toolName]; ok {
			return true
		}
	}

	return false
}
