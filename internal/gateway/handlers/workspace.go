package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"prettycode/internal/storage"
	"prettycode/pkg/logger"
)

// cwdKey is the kv_store key holding the workspace root across restarts.
const cwdKey = "workspace.cwd"

// Workspace tracks the current working directory served to clients. Changes
// are persisted so a restarted gateway reopens where the user left off.
type Workspace struct {
	mu   sync.RWMutex
	db   *storage.DB
	root string
}

// NewWorkspace creates a workspace rooted at fallback, preferring a persisted
// directory when one exists and is still valid.
func NewWorkspace(db *storage.DB, fallback string) *Workspace {
	w := &Workspace{db: db, root: fallback}

	if db != nil {
		if saved, err := db.KVGet(cwdKey); err == nil {
			if info, err := os.Stat(saved); err == nil && info.IsDir() {
				w.root = saved
			}
		}
	}

	return w
}

// Root returns the current working directory.
func (w *Workspace) Root() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.root
}

// SetRoot switches the working directory. The path must be an existing
// directory.
func (w *Workspace) SetRoot(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("stat path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", abs)
	}

	w.mu.Lock()
	w.root = abs
	w.mu.Unlock()

	if w.db != nil {
		if err := w.db.KVSet(cwdKey, abs, 0); err != nil {
			logger.Warn().Err(err).Msg("Failed to persist working directory")
		}
	}

	return nil
}

// cwdResponse is the body for both cwd endpoints.
type cwdResponse struct {
	Cwd string `json:"cwd"`
}

// HandleGetCwd returns the current working directory.
func (w *Workspace) HandleGetCwd(rw http.ResponseWriter, r *http.Request) {
	SendJSON(rw, http.StatusOK, cwdResponse{Cwd: w.Root()})
}

// HandleSetCwd switches the working directory. The path comes from the query
// string or a JSON body.
func (w *Workspace) HandleSetCwd(rw http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			path = body.Path
		}
	}
	if path == "" {
		SendError(rw, http.StatusBadRequest, ErrCodeInvalidRequest, "path is required")
		return
	}

	if err := w.SetRoot(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			SendError(rw, http.StatusNotFound, ErrCodeNotFound, "path not found")
			return
		}
		SendError(rw, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	SendJSON(rw, http.StatusOK, cwdResponse{Cwd: w.Root()})
}
