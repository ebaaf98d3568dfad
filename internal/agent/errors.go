package agent

import "errors"

var (
	// ErrUnavailable indicates the agent process could not be started.
	ErrUnavailable = errors.New("agent runtime unavailable")

	// ErrTurnActive indicates a turn is already streaming.
	ErrTurnActive = errors.New("turn already active")

	// ErrClosed indicates the runtime has been closed.
	ErrClosed = errors.New("runtime closed")
)
