package storage

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestCreateSession(t *testing.T) {
	db := openTestDB(t)

	sess, err := db.CreateSession("", "/repo", "acceptEdits", json.RawMessage(`{"title":"demo"}`))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if sess.ID == "" {
		t.Error("expected generated ID")
	}
	if sess.WorkingDir != "/repo" {
		t.Errorf("WorkingDir = %q, want /repo", sess.WorkingDir)
	}
	if sess.PermissionMode != "acceptEdits" {
		t.Errorf("PermissionMode = %q, want acceptEdits", sess.PermissionMode)
	}

	got, err := db.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if string(got.Metadata) != `{"title":"demo"}` {
		t.Errorf("Metadata = %s", got.Metadata)
	}
}

func TestCreateSession_Defaults(t *testing.T) {
	db := openTestDB(t)

	sess, err := db.CreateSession("fixed-id", "", "", nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if sess.ID != "fixed-id" {
		t.Errorf("ID = %q, want fixed-id", sess.ID)
	}
	if sess.PermissionMode != "default" {
		t.Errorf("PermissionMode = %q, want default", sess.PermissionMode)
	}
	if string(sess.Metadata) != "{}" {
		t.Errorf("Metadata = %s, want {}", sess.Metadata)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := db.GetSession("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListSessions(t *testing.T) {
	db := openTestDB(t)

	first, err := db.CreateSession("", "/a", "default", nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	second, err := db.CreateSession("", "/b", "default", nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	// Bump the first so it sorts to the front.
	time.Sleep(5 * time.Millisecond)
	if err := db.TouchSession(first.ID); err != nil {
		t.Fatalf("TouchSession failed: %v", err)
	}

	sessions, err := db.ListSessions(0)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("len = %d, want 2", len(sessions))
	}
	if sessions[0].ID != first.ID {
		t.Errorf("first listed = %s, want %s", sessions[0].ID, first.ID)
	}
	if sessions[1].ID != second.ID {
		t.Errorf("second listed = %s, want %s", sessions[1].ID, second.ID)
	}

	limited, err := db.ListSessions(1)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limited len = %d, want 1", len(limited))
	}
}

func TestUpdateAgentSessionID(t *testing.T) {
	db := openTestDB(t)

	sess, err := db.CreateSession("", "/repo", "default", nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if err := db.UpdateAgentSessionID(sess.ID, "agent-abc"); err != nil {
		t.Fatalf("UpdateAgentSessionID failed: %v", err)
	}

	got, err := db.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.AgentSessionID != "agent-abc" {
		t.Errorf("AgentSessionID = %q, want agent-abc", got.AgentSessionID)
	}

	if err := db.UpdateAgentSessionID("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdatePermissionMode(t *testing.T) {
	db := openTestDB(t)

	sess, err := db.CreateSession("", "/repo", "default", nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if err := db.UpdatePermissionMode(sess.ID, "plan"); err != nil {
		t.Fatalf("UpdatePermissionMode failed: %v", err)
	}

	got, err := db.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.PermissionMode != "plan" {
		t.Errorf("PermissionMode = %q, want plan", got.PermissionMode)
	}
}

func TestDeleteSession_CascadesEvents(t *testing.T) {
	db := openTestDB(t)

	sess, err := db.CreateSession("", "/repo", "default", nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, err := db.AppendEvent(sess.ID, "assistant", []byte(`{}`)); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}

	if err := db.DeleteSession(sess.ID); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}

	count, err := db.CountEvents(sess.ID)
	if err != nil {
		t.Fatalf("CountEvents failed: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0 after cascade", count)
	}

	if err := db.DeleteSession(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPruneSessionsBefore(t *testing.T) {
	db := openTestDB(t)

	old, err := db.CreateSession("", "/old", "default", nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, err := db.Exec("UPDATE sessions SET updated_at = ? WHERE id = ?", time.Now().Add(-48*time.Hour), old.ID); err != nil {
		t.Fatalf("backdate failed: %v", err)
	}

	fresh, err := db.CreateSession("", "/fresh", "default", nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	pruned, err := db.PruneSessionsBefore(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("PruneSessionsBefore failed: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}

	if _, err := db.GetSession(old.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("old session err = %v, want ErrNotFound", err)
	}
	if _, err := db.GetSession(fresh.ID); err != nil {
		t.Errorf("fresh session err = %v, want nil", err)
	}
}
