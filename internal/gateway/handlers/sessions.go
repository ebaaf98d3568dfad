package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"prettycode/internal/storage"
)

// SessionsHandler serves stored conversation transcripts.
type SessionsHandler struct {
	db *storage.DB
}

// NewSessionsHandler creates a sessions handler backed by the transcript store.
func NewSessionsHandler(db *storage.DB) *SessionsHandler {
	return &SessionsHandler{db: db}
}

// HandleList returns stored sessions, most recently active first.
func (h *SessionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	sessions, err := h.db.ListSessions(limit)
	if err != nil {
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []*storage.Session{}
	}

	SendJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// HandleGet returns one session record.
func (h *SessionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	session, err := h.db.GetSession(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			SendError(w, http.StatusNotFound, ErrCodeNotFound, "session not found")
			return
		}
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	SendJSON(w, http.StatusOK, session)
}

// HandleEvents replays a session's transcript in emission order. Payloads are
// returned verbatim as they were sent over the socket.
func (h *SessionsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, err := h.db.GetSession(id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			SendError(w, http.StatusNotFound, ErrCodeNotFound, "session not found")
			return
		}
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	events, err := h.db.GetEvents(id, limit)
	if err != nil {
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	payloads := make([]json.RawMessage, 0, len(events))
	for _, ev := range events {
		payloads = append(payloads, ev.Payload)
	}

	SendJSON(w, http.StatusOK, map[string]any{"events": payloads})
}

// HandleDelete removes a session and its transcript.
func (h *SessionsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.db.DeleteSession(id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			SendError(w, http.StatusNotFound, ErrCodeNotFound, "session not found")
			return
		}
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
