package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"prettycode/internal/agent"
	"prettycode/internal/bridge"
	"prettycode/internal/storage"
	"prettycode/pkg/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 1024 * 1024 // 1MB
)

// sendStallTimeout bounds how long an event may wait on the send buffer
// before the connection is declared dead. Variable so tests can shorten it.
var sendStallTimeout = writeWait

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Local tool, the UI may be served from any port
	},
}

// SessionFactory builds the agent session backing a new connection.
type SessionFactory func(workingDir, resumeToken string) (*bridge.Session, error)

// Client couples one WebSocket connection to one agent session. The read
// pump decodes inbound control messages and drives the session; turn event
// streams are forwarded to the write pump and mirrored into the transcript
// store.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	session     *bridge.Session
	store       *storage.DB
	id          string
	connectedAt time.Time
}

func newClient(hub *Hub, conn *websocket.Conn, session *bridge.Session, store *storage.DB) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, 256),
		session:     session,
		store:       store,
		id:          uuid.New().String(),
		connectedAt: time.Now(),
	}
}

// readPump pumps control messages from the connection into the session.
// Closing the connection tears the session down with it.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
		if err := c.session.Close(); err != nil {
			logger.Warn().Err(err).Str("client_id", c.id).Msg("Session close failed")
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error().Err(err).Str("client_id", c.id).Msg("WebSocket read error")
			}
			break
		}

		c.handleMessage(message)
	}
}

// handleMessage dispatches one inbound control message. A malformed message
// is answered with a system error event; the connection and session survive.
func (c *Client) handleMessage(message []byte) {
	var msg InboundMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		logger.Error().Err(err).Str("client_id", c.id).Msg("Failed to parse WebSocket message")
		c.sendError("INVALID_MESSAGE", "failed to parse message")
		return
	}

	logger.Debug().
		Str("client_id", c.id).
		Str("type", msg.Type).
		Msg("Received WebSocket message")

	switch msg.Type {
	case TypeMessage:
		c.startTurn(msg.Content, attachments(msg.Images))

	case TypeContinue:
		c.startTurn("", nil)

	case TypeStop:
		// RequestStop blocks until the turn has wound down; the stopped
		// event arrives through the active turn's stream.
		go c.session.RequestStop()

	case TypePermissionResponse:
		if msg.ToolUseID == "" {
			c.sendError("INVALID_REQUEST", "permission response requires tool_use_id")
			return
		}
		c.session.ResolvePermission(msg.ToolUseID, msg.Allowed)
		if c.store != nil {
			if err := c.store.TouchSession(c.session.ID()); err != nil {
				logger.Warn().Err(err).Str("client_id", c.id).Msg("Failed to touch session record")
			}
		}

	case TypeQuestionResponse:
		// Answers go to the agent out of band; nothing to correlate here.
		logger.Debug().
			Str("client_id", c.id).
			Str("tool_use_id", msg.ToolUseID).
			Msg("Question response passed through")

	case TypeSetPermissionMode:
		mode, err := bridge.ParsePermissionMode(msg.Mode)
		if err != nil {
			c.sendError("INVALID_REQUEST", err.Error())
			return
		}
		c.session.SetPermissionMode(mode)
		if c.store != nil {
			if err := c.store.UpdatePermissionMode(c.session.ID(), msg.Mode); err != nil && !errors.Is(err, storage.ErrNotFound) {
				logger.Warn().Err(err).Str("client_id", c.id).Msg("Failed to persist permission mode")
			}
		}

	case TypePing:
		c.sendControl(controlMessage{Type: TypePong})

	default:
		logger.Debug().
			Str("client_id", c.id).
			Str("type", msg.Type).
			Msg("Unknown message type")
	}
}

// startTurn begins a turn and streams its events back to the peer.
func (c *Client) startTurn(text string, atts []agent.Attachment) {
	events, err := c.session.StartTurn(text, atts)
	if err != nil {
		if errors.Is(err, bridge.ErrTurnActive) {
			c.sendError("TURN_ACTIVE", "a turn is already running")
			return
		}
		c.sendError("TURN_ERROR", err.Error())
		return
	}

	go c.streamEvents(events)
}

// streamEvents forwards one turn's event stream to the write pump, mirroring
// each event into the transcript store and capturing the agent's resumable
// session token as it appears.
func (c *Client) streamEvents(events <-chan bridge.Event) {
	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			logger.Error().Err(err).Str("client_id", c.id).Msg("Failed to marshal event")
			continue
		}

		c.persist(ev, data)

		select {
		case c.send <- data:
		case <-time.After(sendStallTimeout):
			// Dropping a frame mid-stream could strand a permission request
			// the client never saw. Tear the connection down instead; the
			// read pump closes the session on its way out.
			logger.Warn().Str("client_id", c.id).Msg("Send buffer stalled, closing connection")
			c.conn.Close()
			c.drain(events)
			return
		}
	}
}

// drain consumes the rest of a turn's events after the connection is gone,
// keeping the transcript store as complete as the aborted turn allows.
func (c *Client) drain(events <-chan bridge.Event) {
	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		c.persist(ev, data)
	}
}

// persist appends the event to the transcript and tracks the agent session id.
func (c *Client) persist(ev bridge.Event, data []byte) {
	if c.store == nil {
		return
	}

	if _, err := c.store.AppendEvent(c.session.ID(), ev.EventType(), data); err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.Warn().Err(err).Str("client_id", c.id).Msg("Failed to persist event")
	}

	token := ""
	switch e := ev.(type) {
	case bridge.SystemEvent:
		token = e.SessionID
	case bridge.ResultEvent:
		token = e.SessionID
	}
	if token != "" {
		if err := c.store.UpdateAgentSessionID(c.session.ID(), token); err != nil && !errors.Is(err, storage.ErrNotFound) {
			logger.Warn().Err(err).Str("client_id", c.id).Msg("Failed to persist agent session id")
		}
	}
}

// writePump pumps frames from the send channel to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Error().Err(err).Str("client_id", c.id).Msg("WebSocket write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendControl(msg controlMessage) {
	data, _ := json.Marshal(msg)
	select {
	case c.send <- data:
	default:
		// Buffer full
	}
}

// sendError reports a protocol failure as a system error event, keeping the
// outbound stream a single event vocabulary.
func (c *Client) sendError(code, message string) {
	ev := bridge.SystemEvent{
		Subtype: bridge.SystemError,
		Content: message,
		Data:    map[string]any{"code": code},
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
		// Buffer full
	}
}

func attachments(images []InboundImage) []agent.Attachment {
	if len(images) == 0 {
		return nil
	}
	atts := make([]agent.Attachment, 0, len(images))
	for _, img := range images {
		atts = append(atts, agent.Attachment{MediaType: img.MediaType, Data: img.Data})
	}
	return atts
}

// ServeWS upgrades the request and binds a fresh agent session to the
// connection. The working directory comes from the cwd query parameter,
// falling back to defaultDir, and an optional session parameter resumes a
// prior conversation.
func ServeWS(hub *Hub, factory SessionFactory, store *storage.DB, defaultDir string, w http.ResponseWriter, r *http.Request) {
	workingDir := r.URL.Query().Get("cwd")
	if workingDir == "" {
		workingDir = defaultDir
	}
	resume := r.URL.Query().Get("session")

	session, err := factory(workingDir, resume)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create agent session")
		http.Error(w, "failed to create agent session", http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		session.Close()
		return
	}

	client := newClient(hub, conn, session, store)

	if store != nil {
		if _, err := store.CreateSession(session.ID(), workingDir, string(session.PermissionMode()), nil); err != nil {
			logger.Warn().Err(err).Str("client_id", client.id).Msg("Failed to create session record")
		}
	}

	hub.Register(client)

	go client.writePump()
	go client.readPump()
}
