package claude

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"prettycode/internal/agent"
	"prettycode/pkg/logger"
)

const defaultStopTimeout = 5 * time.Second

// Config controls how the CLI subprocess is spawned.
type Config struct {
	// Binary is the CLI executable name or path. Defaults to "claude".
	Binary string
	// WorkingDir is the directory the agent operates in.
	WorkingDir string
	// PermissionMode is passed to the CLI at spawn. Defaults to "default".
	PermissionMode string
	// Resume is a session token from a previous run, if any.
	Resume string
	// ExtraArgs are appended verbatim to the CLI invocation.
	ExtraArgs []string
	// StopTimeout bounds graceful shutdown before the process is killed.
	StopTimeout time.Duration
}

// Runtime implements agent.Runtime on top of the Claude Code CLI. The
// subprocess is spawned lazily on the first turn and kept alive across turns
// so the conversation context persists.
type Runtime struct {
	cfg Config

	mu         sync.Mutex
	proc       *process
	permFn     agent.PermissionFunc
	turnActive bool
	closed     bool
}

var _ agent.Runtime = (*Runtime)(nil)

// New creates a runtime for the given configuration.
func New(cfg Config) *Runtime {
	if cfg.Binary == "" {
		cfg.Binary = "claude"
	}
	if cfg.PermissionMode == "" {
		cfg.PermissionMode = "default"
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	return &Runtime{cfg: cfg}
}

// SetPermissionFunc registers the callback consulted for each can_use_tool
// control request.
func (r *Runtime) SetPermissionFunc(fn agent.PermissionFunc) {
	r.mu.Lock()
	r.permFn = fn
	r.mu.Unlock()
}

func (r *Runtime) permissionFunc() agent.PermissionFunc {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.permFn
}

// SubmitTurn sends user input to the CLI and returns the message stream for
// the turn. The channel closes when the turn's result arrives or the process
// goes away.
func (r *Runtime) SubmitTurn(ctx context.Context, text string, attachments []agent.Attachment) (<-chan agent.Message, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, agent.ErrClosed
	}
	if r.turnActive {
		r.mu.Unlock()
		return nil, agent.ErrTurnActive
	}
	if err := r.ensureProcessLocked(); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	proc := r.proc
	r.turnActive = true
	r.mu.Unlock()

	if err := proc.writeJSON(userTextMessage(text, attachments)); err != nil {
		r.mu.Lock()
		r.turnActive = false
		r.mu.Unlock()
		r.dropProcess(proc)
		return nil, err
	}

	ch := make(chan agent.Message, 32)
	go r.readTurn(ctx, proc, ch)
	return ch, nil
}

// ensureProcessLocked spawns the CLI if it is not already running. Caller
// holds r.mu.
func (r *Runtime) ensureProcessLocked() error {
	if r.proc != nil {
		return nil
	}

	proc, err := startProcess(r.cfg.Binary, buildArgs(r.cfg), r.cfg.WorkingDir)
	if err != nil {
		return err
	}
	r.proc = proc
	return nil
}

// readTurn pumps stdout lines into the message channel until the turn's
// result message, EOF, or context cancellation.
func (r *Runtime) readTurn(ctx context.Context, proc *process, ch chan<- agent.Message) {
	defer close(ch)
	defer func() {
		r.mu.Lock()
		r.turnActive = false
		r.mu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		line, err := proc.readLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warn().Err(err).Msg("Agent stdout read failed")
			}
			r.dropProcess(proc)
			if ctx.Err() == nil {
				select {
				case ch <- agent.SystemMessage{
					Type:    agent.MessageTypeSystem,
					Subtype: "error",
					Content: "Agent process terminated unexpectedly",
				}:
				case <-ctx.Done():
				}
			}
			return
		}
		if len(line) == 0 {
			continue
		}

		if r.handleControl(ctx, proc, line) {
			continue
		}

		msg, err := agent.DecodeMessage(line)
		if err != nil {
			logger.Warn().Err(err).Str("line", string(line)).Msg("Undecodable agent message")
			continue
		}
		if msg == nil {
			continue
		}

		select {
		case ch <- msg:
		case <-ctx.Done():
			return
		}

		if _, done := msg.(agent.ResultMessage); done {
			return
		}
	}
}

// handleControl intercepts control_request traffic. Permission checks run in
// their own goroutine so a pending user decision never blocks the read loop.
func (r *Runtime) handleControl(ctx context.Context, proc *process, line []byte) bool {
	var req controlRequest
	if err := json.Unmarshal(line, &req); err != nil || req.Type != typeControlRequest {
		return false
	}

	var inner canUseToolRequest
	if err := json.Unmarshal(req.Request, &inner); err != nil || inner.Subtype != subtypeCanUseTool {
		logger.Debug().Str("request_id", req.RequestID).Msg("Skipping unhandled control request")
		return true
	}

	fn := r.permissionFunc()
	go func() {
		var d agent.Decision
		if fn == nil {
			d = agent.Denied("No permission handler configured")
		} else {
			d = fn(ctx, inner.ToolName, inner.Input)
		}

		if err := proc.writeJSON(newPermissionResponse(req.RequestID, inner.Input, d)); err != nil {
			logger.Warn().Err(err).Str("tool", inner.ToolName).Msg("Failed to send permission response")
		}
	}()
	return true
}

// Interrupt asks the CLI to abort the current turn. A no-op when no process
// is running.
func (r *Runtime) Interrupt(ctx context.Context) error {
	r.mu.Lock()
	proc := r.proc
	r.mu.Unlock()

	if proc == nil {
		return nil
	}
	return proc.writeJSON(newInterruptRequest())
}

// Close shuts down the subprocess. The runtime cannot be reused afterwards.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	proc := r.proc
	r.proc = nil
	r.mu.Unlock()

	if proc != nil {
		return proc.stop(r.cfg.StopTimeout)
	}
	return nil
}

// dropProcess discards a dead process reference so the next turn respawns.
func (r *Runtime) dropProcess(proc *process) {
	r.mu.Lock()
	if r.proc == proc {
		r.proc = nil
	}
	r.mu.Unlock()

	_ = proc.stop(time.Second)
}
