package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prettycode/internal/config"
	"prettycode/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		Version: "test",
		Gateway: config.GatewayConfig{Host: "127.0.0.1", Port: 0},
		Workspace: config.WorkspaceConfig{
			Root: t.TempDir(),
		},
	}

	return NewServer(cfg, db, nil)
}

func doRequest(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestServerRootRoute(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(s, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestServerHealthRoute(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(s, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Version)
}

func TestServerFileRoutes(t *testing.T) {
	s := newTestServer(t)

	root := s.Workspace().Root()
	path := filepath.Join(root, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0o644))

	w := doRequest(s, http.MethodGet, "/api/files/tree")
	require.Equal(t, http.StatusOK, w.Code)

	var tree struct {
		Type     string `json:"type"`
		Children []struct {
			Name string `json:"name"`
		} `json:"children"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tree))
	assert.Equal(t, "directory", tree.Type)
	require.Len(t, tree.Children, 1)
	assert.Equal(t, "main.go", tree.Children[0].Name)

	w = doRequest(s, http.MethodGet, "/api/files/read?path="+path)
	require.Equal(t, http.StatusOK, w.Code)

	var file struct {
		Content  string `json:"content"`
		Language string `json:"language"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &file))
	assert.Equal(t, "package main\n", file.Content)
	assert.Equal(t, "go", file.Language)
}

func TestServerCwdRoutes(t *testing.T) {
	s := newTestServer(t)
	next := t.TempDir()

	w := doRequest(s, http.MethodGet, "/api/cwd")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(s, http.MethodPost, "/api/cwd?path="+next)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Cwd string `json:"cwd"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, next, resp.Cwd)
	assert.Equal(t, next, s.Workspace().Root())
}

func TestServerSessionRoutes(t *testing.T) {
	s := newTestServer(t)

	_, err := s.db.CreateSession("s1", "/work", "default", nil)
	require.NoError(t, err)

	w := doRequest(s, http.MethodGet, "/api/sessions")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Sessions []struct {
			ID string `json:"id"`
		} `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Sessions, 1)
	assert.Equal(t, "s1", resp.Sessions[0].ID)

	w = doRequest(s, http.MethodGet, "/api/sessions/s1/events")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(s, http.MethodGet, "/api/sessions/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServerUnknownRoute(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(s, http.MethodGet, "/api/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
