package storage

import (
	"testing"
	"time"
)

func TestAppendEvent(t *testing.T) {
	db := openTestDB(t)

	sess, err := db.CreateSession("", "/repo", "default", nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	ev, err := db.AppendEvent(sess.ID, "assistant", []byte(`{"type":"assistant"}`))
	if err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}
	if ev.ID == 0 {
		t.Error("expected assigned ID")
	}
	if ev.Type != "assistant" {
		t.Errorf("Type = %q, want assistant", ev.Type)
	}
}

func TestAppendEvent_BumpsSessionTimestamp(t *testing.T) {
	db := openTestDB(t)

	sess, err := db.CreateSession("", "/repo", "default", nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	if _, err := db.AppendEvent(sess.ID, "result", []byte(`{}`)); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}

	got, err := db.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if !got.UpdatedAt.After(sess.UpdatedAt) {
		t.Errorf("UpdatedAt not bumped: %v <= %v", got.UpdatedAt, sess.UpdatedAt)
	}
}

func TestGetEvents_Order(t *testing.T) {
	db := openTestDB(t)

	sess, err := db.CreateSession("", "/repo", "default", nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	types := []string{"system", "assistant", "permission_request", "result"}
	for _, typ := range types {
		if _, err := db.AppendEvent(sess.ID, typ, []byte(`{}`)); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}

	events, err := db.GetEvents(sess.ID, 0)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(events) != len(types) {
		t.Fatalf("len = %d, want %d", len(events), len(types))
	}
	for i, typ := range types {
		if events[i].Type != typ {
			t.Errorf("events[%d].Type = %q, want %q", i, events[i].Type, typ)
		}
	}

	limited, err := db.GetEvents(sess.ID, 2)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limited len = %d, want 2", len(limited))
	}
}

func TestGetEvents_Empty(t *testing.T) {
	db := openTestDB(t)

	events, err := db.GetEvents("no-such-session", 0)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("len = %d, want 0", len(events))
	}
}

func TestCountEvents(t *testing.T) {
	db := openTestDB(t)

	sess, err := db.CreateSession("", "/repo", "default", nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := db.AppendEvent(sess.ID, "assistant", []byte(`{}`)); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}

	count, err := db.CountEvents(sess.ID)
	if err != nil {
		t.Fatalf("CountEvents failed: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}
