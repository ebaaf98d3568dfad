package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"prettycode/internal/bridge"
	"prettycode/pkg/logger"
)

const debounceDelay = 100 * time.Millisecond

// Broadcaster pushes a frame to every connected client.
type Broadcaster interface {
	BroadcastAll(data []byte)
}

// Watcher monitors workspace files and tells connected clients to refresh
// their file tree.
type Watcher struct {
	watcher  *fsnotify.Watcher
	hub      Broadcaster
	paths    []string
	stopCh   chan struct{}
	stopOnce sync.Once
	debounce map[string]*time.Timer
	mu       sync.Mutex
}

// NewWatcher creates a file watcher for the given paths.
func NewWatcher(hub Broadcaster, paths ...string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:  w,
		hub:      hub,
		paths:    paths,
		stopCh:   make(chan struct{}),
		debounce: make(map[string]*time.Timer),
	}, nil
}

// Start begins watching for file changes.
func (w *Watcher) Start() error {
	for _, path := range w.paths {
		if err := w.watcher.Add(path); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("Failed to watch path")
		}
	}

	go w.run()
	return nil
}

// run processes file system events.
func (w *Watcher) run() {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// Only writes and creations matter to the UI
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.handleEvent(event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Error().Err(err).Msg("File watcher error")
		}
	}
}

// handleEvent coalesces rapid changes to the same path into one broadcast.
func (w *Watcher) handleEvent(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.debounce[path]; ok {
		timer.Stop()
	}

	w.debounce[path] = time.AfterFunc(debounceDelay, func() {
		w.broadcastChange(path)

		w.mu.Lock()
		delete(w.debounce, path)
		w.mu.Unlock()
	})
}

// broadcastChange pushes a files-changed system event to every client.
func (w *Watcher) broadcastChange(path string) {
	ev := bridge.SystemEvent{
		Subtype:      bridge.SystemConfig,
		FilesChanged: []string{path},
	}

	data, err := json.Marshal(ev)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to marshal files-changed event")
		return
	}

	w.hub.BroadcastAll(data)
	logger.Debug().Str("path", path).Msg("Broadcast files changed")
}

// Stop stops the file watcher. Idempotent.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)

		w.mu.Lock()
		for _, timer := range w.debounce {
			timer.Stop()
		}
		w.mu.Unlock()

		w.watcher.Close()
	})
}
