package storage

import (
	"encoding/json"
	"time"
)

// Event is one persisted transcript entry. Payload holds the full wire-format
// event so a transcript replays exactly as it streamed.
type Event struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// AppendEvent appends a transcript entry and bumps the session timestamp.
func (db *DB) AppendEvent(sessionID, eventType string, payload json.RawMessage) (*Event, error) {
	now := time.Now()

	result, err := db.Exec(
		"INSERT INTO events (session_id, type, payload, created_at) VALUES (?, ?, ?, ?)",
		sessionID, eventType, string(payload), now,
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	_, _ = db.Exec("UPDATE sessions SET updated_at = ? WHERE id = ?", now, sessionID)

	return &Event{
		ID:        id,
		SessionID: sessionID,
		Type:      eventType,
		Payload:   payload,
		CreatedAt: now,
	}, nil
}

// AppendEvent appends a transcript entry within a transaction.
func (tx *Tx) AppendEvent(sessionID, eventType string, payload json.RawMessage) (*Event, error) {
	now := time.Now()

	result, err := tx.Exec(
		"INSERT INTO events (session_id, type, payload, created_at) VALUES (?, ?, ?, ?)",
		sessionID, eventType, string(payload), now,
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	_, _ = tx.Exec("UPDATE sessions SET updated_at = ? WHERE id = ?", now, sessionID)

	return &Event{
		ID:        id,
		SessionID: sessionID,
		Type:      eventType,
		Payload:   payload,
		CreatedAt: now,
	}, nil
}

// GetEvents returns a session's transcript in insertion order. A limit of 0
// returns all.
func (db *DB) GetEvents(sessionID string, limit int) ([]*Event, error) {
	query := "SELECT id, session_id, type, payload, created_at FROM events WHERE session_id = ? ORDER BY id ASC"
	args := []any{sessionID}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var payload string

		if err := rows.Scan(&e.ID, &e.SessionID, &e.Type, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}

		e.Payload = json.RawMessage(payload)
		events = append(events, &e)
	}

	return events, rows.Err()
}

// CountEvents returns the number of transcript entries for a session.
func (db *DB) CountEvents(sessionID string) (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM events WHERE session_id = ?", sessionID).Scan(&count)
	return count, err
}
