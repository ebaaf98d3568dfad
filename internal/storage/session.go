package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates the record does not exist.
var ErrNotFound = errors.New("not found")

// Session is one persisted conversation with the agent.
type Session struct {
	ID             string          `json:"id"`
	WorkingDir     string          `json:"working_dir"`
	PermissionMode string          `json:"permission_mode"`
	AgentSessionID string          `json:"agent_session_id,omitempty"`
	Metadata       json.RawMessage `json:"metadata"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CreateSession creates a session record. An empty id gets a generated UUID.
func (db *DB) CreateSession(id, workingDir, permissionMode string, metadata json.RawMessage) (*Session, error) {
	if id == "" {
		id = uuid.New().String()
	}
	if permissionMode == "" {
		permissionMode = "default"
	}
	if metadata == nil {
		metadata = json.RawMessage("{}")
	}
	now := time.Now()

	_, err := db.Exec(
		"INSERT INTO sessions (id, working_dir, permission_mode, metadata, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, workingDir, permissionMode, string(metadata), now, now,
	)
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:             id,
		WorkingDir:     workingDir,
		PermissionMode: permissionMode,
		Metadata:       metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// GetSession returns a session by id.
func (db *DB) GetSession(id string) (*Session, error) {
	var s Session
	var metadata string
	var agentSessionID sql.NullString

	err := db.QueryRow(
		"SELECT id, working_dir, permission_mode, agent_session_id, metadata, created_at, updated_at FROM sessions WHERE id = ?",
		id,
	).Scan(&s.ID, &s.WorkingDir, &s.PermissionMode, &agentSessionID, &metadata, &s.CreatedAt, &s.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if agentSessionID.Valid {
		s.AgentSessionID = agentSessionID.String
	}
	s.Metadata = json.RawMessage(metadata)
	return &s, nil
}

// ListSessions returns sessions ordered by most recently updated. A limit of
// 0 returns all.
func (db *DB) ListSessions(limit int) ([]*Session, error) {
	query := "SELECT id, working_dir, permission_mode, agent_session_id, metadata, created_at, updated_at FROM sessions ORDER BY updated_at DESC"
	args := []any{}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var s Session
		var metadata string
		var agentSessionID sql.NullString

		if err := rows.Scan(&s.ID, &s.WorkingDir, &s.PermissionMode, &agentSessionID, &metadata, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}

		if agentSessionID.Valid {
			s.AgentSessionID = agentSessionID.String
		}
		s.Metadata = json.RawMessage(metadata)
		sessions = append(sessions, &s)
	}

	return sessions, rows.Err()
}

// UpdateAgentSessionID records the runtime's resumable token for a session.
func (db *DB) UpdateAgentSessionID(id, agentSessionID string) error {
	result, err := db.Exec(
		"UPDATE sessions SET agent_session_id = ?, updated_at = ? WHERE id = ?",
		agentSessionID, time.Now(), id,
	)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// UpdatePermissionMode records a mode change for a session.
func (db *DB) UpdatePermissionMode(id, mode string) error {
	result, err := db.Exec(
		"UPDATE sessions SET permission_mode = ?, updated_at = ? WHERE id = ?",
		mode, time.Now(), id,
	)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// TouchSession bumps a session's updated_at timestamp.
func (db *DB) TouchSession(id string) error {
	result, err := db.Exec("UPDATE sessions SET updated_at = ? WHERE id = ?", time.Now(), id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// DeleteSession removes a session and, via cascade, its events.
func (db *DB) DeleteSession(id string) error {
	result, err := db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// PruneSessionsBefore deletes sessions last updated before the cutoff and
// returns how many were removed. Events go with them via cascade.
func (db *DB) PruneSessionsBefore(cutoff time.Time) (int64, error) {
	result, err := db.Exec("DELETE FROM sessions WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
