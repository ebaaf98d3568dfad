package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"prettycode/internal/agent"
	"prettycode/pkg/logger"
)

// pollInterval bounds how long the multiplexer waits on the output-message
// channel per iteration, so permission requests are never starved behind
// buffered output.
const pollInterval = 50 * time.Millisecond

// eventBufferSize is the outbound event channel capacity per turn.
const eventBufferSize = 64

// ErrTurnActive is returned by StartTurn while a previous turn is streaming.
var ErrTurnActive = errors.New("turn already active")

// SessionConfig configures a Session.
type SessionConfig struct {
	Runtime        agent.Runtime
	WorkingDir     string
	PermissionMode PermissionMode
	// ResumeToken seeds the session token so the first turn resumes prior
	// conversational context.
	ResumeToken string
}

// Session owns the lifecycle of one client connection's conversation with the
// agent runtime: it runs turns, multiplexes runtime output and permission
// requests into one ordered event stream, and routes user control decisions
// back in.
type Session struct {
	id         string
	runtime    agent.Runtime
	correlator *Correlator
	gate       *Gate
	permCh     chan PermissionRequest

	mu           sync.Mutex
	mode         PermissionMode
	workingDir   string
	sessionToken string

	stopRequested atomic.Bool

	turnMu     sync.Mutex
	turnCancel context.CancelFunc
	turnDone   chan struct{}
}

// NewSession creates a session bound to the given runtime and registers the
// permission gate callback with it.
func NewSession(cfg SessionConfig) *Session {
	mode := cfg.PermissionMode
	if mode == "" {
		mode = ModeDefault
	}

	s := &Session{
		id:           uuid.New().String(),
		runtime:      cfg.Runtime,
		correlator:   NewCorrelator(),
		permCh:       make(chan PermissionRequest, 16),
		mode:         mode,
		workingDir:   cfg.WorkingDir,
		sessionToken: cfg.ResumeToken,
	}

	s.gate = NewGate(GateConfig{
		Correlator: s.correlator,
		Requests:   s.permCh,
		Mode:       s.PermissionMode,
		Stopped:    s.stopRequested.Load,
	})
	s.runtime.SetPermissionFunc(s.gate.Check)

	return s
}

// ID returns the session's connection-scoped identifier.
func (s *Session) ID() string { return s.id }

// WorkingDir returns the session working directory.
func (s *Session) WorkingDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workingDir
}

// PermissionMode returns the current permission mode.
func (s *Session) PermissionMode() PermissionMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetPermissionMode updates the mode. Takes effect from the next permission
// check; an in-flight awaiting-user check is not retroactively affected.
func (s *Session) SetPermissionMode(mode PermissionMode) {
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()

	logger.Info().Str("session", s.id).Str("mode", string(mode)).Msg("Permission mode changed")
}

// SessionToken returns the runtime's resumable session token, if any turn has
// produced one yet.
func (s *Session) SessionToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionToken
}

func (s *Session) setSessionToken(token string) {
	s.mu.Lock()
	s.sessionToken = token
	s.mu.Unlock()
}

// StartTurn submits user input to the runtime and returns the ordered stream
// of outbound events for the turn. The channel closes when the turn ends.
// An unreachable runtime yields a single system/error event, not an error:
// the session survives and may try again.
func (s *Session) StartTurn(text string, attachments []agent.Attachment) (<-chan Event, error) {
	s.turnMu.Lock()
	if s.turnDone != nil {
		select {
		case <-s.turnDone:
		default:
			s.turnMu.Unlock()
			return nil, ErrTurnActive
		}
	}

	s.stopRequested.Store(false)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.turnCancel = cancel
	s.turnDone = done
	s.turnMu.Unlock()

	events := make(chan Event, eventBufferSize)
	go s.run(ctx, cancel, done, events, text, attachments)
	return events, nil
}

// ContinueTurn sends an empty continuation to the runtime, used to resume
// after an out-of-band approval that carries no new user text.
func (s *Session) ContinueTurn() (<-chan Event, error) {
	return s.StartTurn("", nil)
}

// ResolvePermission routes a user decision to the gate's waiting slot.
// A decision with nothing waiting is a no-op, never an error.
func (s *Session) ResolvePermission(toolUseID string, allowed bool) {
	if !s.gate.Resolve(toolUseID, allowed) {
		logger.Warn().
			Str("session", s.id).
			Str("tool_use_id", toolUseID).
			Msg("Permission response with no matching wait")
	}
}

// RequestStop interrupts the current turn: it sets the stop flag, cancels any
// outstanding permission wait, signals the runtime, then awaits the turn's
// background work. No partially-stopped state is observable after it returns.
// Idempotent.
func (s *Session) RequestStop() {
	s.stopRequested.Store(true)
	s.gate.CancelWait()

	if err := s.runtime.Interrupt(context.Background()); err != nil {
		logger.Warn().Err(err).Str("session", s.id).Msg("Runtime interrupt failed")
	}

	s.turnMu.Lock()
	cancel, done := s.turnCancel, s.turnDone
	s.turnMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	logger.Info().Str("session", s.id).Msg("Session stopped")
}

// Close stops any running turn and shuts down the runtime.
func (s *Session) Close() error {
	s.RequestStop()
	return s.runtime.Close()
}

// run is the event multiplexer: one agent turn as a background message
// stream, interleaved with the gate's permission requests into a single
// ordered outbound sequence. Permission requests are drained first and fully
// on every iteration; the message channel is polled with a short bounded
// wait.
func (s *Session) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}, events chan<- Event, text string, attachments []agent.Attachment) {
	defer close(events)
	defer close(done)
	defer cancel()

	events <- SystemEvent{
		Subtype:        SystemInit,
		SessionID:      s.SessionToken(),
		PermissionMode: s.PermissionMode(),
	}

	msgCh, err := s.runtime.SubmitTurn(ctx, text, attachments)
	if err != nil {
		content := "Error starting agent turn: " + err.Error()
		if errors.Is(err, agent.ErrUnavailable) {
			content = "Agent runtime unavailable. Make sure the agent binary is installed and in your PATH."
		}
		logger.Error().Err(err).Str("session", s.id).Msg("Failed to submit turn")
		events <- SystemEvent{Subtype: SystemError, Content: content}
		return
	}

	open := true
	for {
		if s.stopRequested.Load() {
			s.shutdownTurn(cancel, msgCh, open)
			events <- SystemEvent{Subtype: SystemStopped, Content: "Stopped by user"}
			return
		}

		// Permission requests are latency-sensitive: drain them all first.
	drain:
		for {
			select {
			case req := <-s.permCh:
				events <- PermissionRequestEvent{
					ToolUseID: req.ToolUseID,
					Tool:      req.Tool,
					Input:     req.Input,
				}
			default:
				break drain
			}
		}

		if !open {
			if len(s.permCh) == 0 {
				return
			}
			continue
		}

		select {
		case msg, ok := <-msgCh:
			if !ok {
				open = false
				continue
			}
			for _, ev := range s.transform(msg) {
				events <- ev
			}
		case <-time.After(pollInterval):
		}
	}
}

// shutdownTurn cancels the background turn and awaits it, absorbing any
// in-flight messages so bookkeeping (correlation, session token) stays
// consistent without emitting further output events.
func (s *Session) shutdownTurn(cancel context.CancelFunc, msgCh <-chan agent.Message, open bool) {
	s.gate.CancelWait()
	cancel()

	for open {
		msg, ok := <-msgCh
		if !ok {
			break
		}
		s.absorb(msg)
	}

	for {
		select {
		case <-s.permCh:
		default:
			return
		}
	}
}

// transform converts one runtime message into zero or more outbound events,
// maintaining the correlator and the stored session token as a side effect.
func (s *Session) transform(msg agent.Message) []Event {
	switch m := msg.(type) {
	case agent.AssistantMessage:
		for _, block := range m.Message.Content {
			if tu, ok := block.(agent.ToolUseBlock); ok {
				s.correlator.Track(tu.ID, tu.Name, tu.Input)
			}
		}
		return []Event{AssistantEvent{Message: m.Message}}

	case agent.UserMessage:
		for _, block := range m.Message.Content {
			if tr, ok := block.(agent.ToolResultBlock); ok {
				s.correlator.Release(tr.ToolUseID)
			}
		}
		return []Event{UserEvent{Message: m.Message}}

	case agent.SystemMessage:
		return []Event{SystemEvent{
			Subtype:   m.Subtype,
			SessionID: m.SessionID,
			Content:   m.Content,
			Data:      m.Data,
		}}

	case agent.ResultMessage:
		if m.SessionID != "" {
			s.setSessionToken(m.SessionID)
		}
		return []Event{ResultEvent{
			Subtype:      m.Subtype,
			SessionID:    m.SessionID,
			DurationMs:   m.DurationMs,
			IsError:      m.IsError,
			NumTurns:     m.NumTurns,
			TotalCostUSD: m.TotalCostUSD,
			Usage:        m.Usage,
			Result:       m.Result,
		}}

	default:
		return nil
	}
}

// absorb performs transform's bookkeeping without producing events. Used
// while draining a stopped turn.
func (s *Session) absorb(msg agent.Message) {
	switch m := msg.(type) {
	case agent.AssistantMessage:
		for _, block := range m.Message.Content {
			if tu, ok := block.(agent.ToolUseBlock); ok {
				s.correlator.Track(tu.ID, tu.Name, tu.Input)
			}
		}
	case agent.UserMessage:
		for _, block := range m.Message.Content {
			if tr, ok := block.(agent.ToolResultBlock); ok {
				s.correlator.Release(tr.ToolUseID)
			}
		}
	case agent.ResultMessage:
		if m.SessionID != "" {
			s.setSessionToken(m.SessionID)
		}
	}
}
