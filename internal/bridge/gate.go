package bridge

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"prettycode/internal/agent"
	"prettycode/pkg/logger"
)

// permissionWait is the single-slot suspend/resume primitive for one
// awaiting-user permission check. The decision channel is 1-buffered so a
// resolver never blocks.
type permissionWait struct {
	id       string
	decision chan waitResult
}

type waitResult struct {
	allowed   bool
	cancelled bool
}

// GateConfig wires a Gate to its session.
type GateConfig struct {
	Correlator *Correlator
	// Requests receives one PermissionRequest per awaiting-user check.
	Requests chan<- PermissionRequest
	// Mode returns the session's current permission mode.
	Mode func() PermissionMode
	// Stopped returns the session's stop flag.
	Stopped func() bool
}

// Gate decides, for every tool invocation the runtime is about to execute,
// whether it runs immediately or suspends awaiting a user decision. At most
// one wait is outstanding at a time.
type Gate struct {
	correlator *Correlator
	requests   chan<- PermissionRequest
	mode       func() PermissionMode
	stopped    func() bool

	mu      sync.Mutex
	waiting *permissionWait
}

// NewGate creates a gate.
func NewGate(cfg GateConfig) *Gate {
	return &Gate{
		correlator: cfg.Correlator,
		requests:   cfg.Requests,
		mode:       cfg.Mode,
		stopped:    cfg.Stopped,
	}
}

// Check is the permission callback registered with the runtime. It never
// panics into the runtime: any internal failure resolves to a deny.
func (g *Gate) Check(ctx context.Context, toolName string, input map[string]any) (decision agent.Decision) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Str("tool", toolName).Interface("panic", r).Msg("Permission check panicked")
			decision = agent.Denied(fmt.Sprintf("Error: %v", r))
		}
	}()

	if g.stopped() {
		logger.Info().Str("tool", toolName).Msg("Tool denied: stop requested")
		return agent.DeniedInterrupt("Operation stopped by user")
	}

	mode := g.mode()
	if IsAutoApproved(toolName, mode) {
		logger.Debug().Str("tool", toolName).Str("mode", string(mode)).Msg("Tool auto-approved")
		return agent.Allowed()
	}

	id, ok := g.correlator.Resolve(toolName, input)
	if !ok {
		id = SynthesizeToolUseID()
		logger.Warn().
			Str("tool", toolName).
			Str("fingerprint", Fingerprint(toolName, input)).
			Str("tool_use_id", id).
			Msg("No tracked tool use for permission check, synthesized id")
	}

	w := &permissionWait{id: id, decision: make(chan waitResult, 1)}

	g.mu.Lock()
	if prev := g.waiting; prev != nil {
		// Overlapping check: the previous wait must not hang forever.
		logger.Warn().Str("tool_use_id", prev.id).Msg("Overlapping permission wait, cancelling previous")
		select {
		case prev.decision <- waitResult{cancelled: true}:
		default:
		}
	}
	g.waiting = w
	g.mu.Unlock()

	req := PermissionRequest{ToolUseID: id, Tool: toolName, Input: input}
	select {
	case g.requests <- req:
	case <-ctx.Done():
		g.clear(w)
		return agent.Denied("Cancelled")
	}

	logger.Info().Str("tool", toolName).Str("tool_use_id", id).Msg("Awaiting permission decision")

	select {
	case res := <-w.decision:
		g.clear(w)
		switch {
		case res.cancelled:
			logger.Info().Str("tool_use_id", id).Msg("Permission wait cancelled")
			return agent.Denied("Cancelled")
		case res.allowed:
			logger.Info().Str("tool", toolName).Str("tool_use_id", id).Msg("Permission granted")
			return agent.Allowed()
		default:
			logger.Info().Str("tool", toolName).Str("tool_use_id", id).Msg("Permission denied by user")
			return agent.Denied("User denied permission")
		}
	case <-ctx.Done():
		g.clear(w)
		logger.Info().Str("tool_use_id", id).Msg("Permission wait aborted by context")
		return agent.Denied("Cancelled")
	}
}

// Resolve routes a user decision to the outstanding wait. Matching is by
// tool-use id only. Returns false when nothing matching is waiting.
func (g *Gate) Resolve(toolUseID string, allowed bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.waiting == nil || g.waiting.id != toolUseID {
		return false
	}

	select {
	case g.waiting.decision <- waitResult{allowed: allowed}:
	default:
	}
	g.waiting = nil
	return true
}

// CancelWait aborts the outstanding wait, if any. The suspended check
// resolves to a deny with no retry.
func (g *Gate) CancelWait() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.waiting == nil {
		return
	}
	select {
	case g.waiting.decision <- waitResult{cancelled: true}:
	default:
	}
	g.waiting = nil
}

// Waiting reports whether a permission check is currently suspended.
func (g *Gate) Waiting() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waiting != nil
}

func (g *Gate) clear(w *permissionWait) {
	g.mu.Lock()
	if g.waiting == w {
		g.waiting = nil
	}
	g.mu.Unlock()
}

// SynthesizeToolUseID generates a fallback tool-use id for the degraded path
// where a permission check has no tracked invocation.
func SynthesizeToolUseID() string {
	return "toolu_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:24]
}
