// Package gateway provides the HTTP gateway server.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"prettycode/internal/config"
	"prettycode/internal/gateway/handlers"
	"prettycode/internal/gateway/middleware"
	"prettycode/internal/gateway/ws"
	"prettycode/internal/storage"
	"prettycode/pkg/logger"
)

// Server is the HTTP gateway: REST endpoints for workspace browsing and
// transcript replay, plus the WebSocket endpoint that binds each connection
// to an agent session.
type Server struct {
	httpServer  *http.Server
	router      *mux.Router
	hub         *ws.Hub
	watcher     *Watcher
	config      *config.Config
	db          *storage.DB
	workspace   *handlers.Workspace
	factory     ws.SessionFactory
	rateLimiter *middleware.RateLimiter
}

// NewServer creates a gateway server. The factory is invoked once per
// WebSocket connection to build its agent session.
func NewServer(cfg *config.Config, db *storage.DB, factory ws.SessionFactory) *Server {
	router := mux.NewRouter()
	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())

	// Middleware chain: Recovery -> Logging -> CORS -> RateLimit
	handler := middleware.Recovery(
		middleware.Logging(
			middleware.CORS(
				rateLimiter.RateLimit(router),
			),
		),
	)

	server := &Server{
		httpServer: &http.Server{
			Handler:     handler,
			ReadTimeout: 60 * time.Second,
			// Write timeout stays off so long-lived sockets are not cut
			IdleTimeout: 120 * time.Second,
		},
		router:      router,
		hub:         ws.NewHub(),
		config:      cfg,
		db:          db,
		workspace:   handlers.NewWorkspace(db, cfg.Workspace.Root),
		factory:     factory,
		rateLimiter: rateLimiter,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures the server routes.
func (s *Server) setupRoutes() {
	files := handlers.NewFilesHandler(s.workspace)
	sessions := handlers.NewSessionsHandler(s.db)

	s.router.HandleFunc("/", handlers.RootHandler()).Methods("GET")
	s.router.HandleFunc("/health", handlers.HealthHandler(s.config.Version)).Methods("GET")

	s.router.HandleFunc("/api/files/tree", files.HandleTree).Methods("GET")
	s.router.HandleFunc("/api/files/read", files.HandleRead).Methods("GET")

	s.router.HandleFunc("/api/cwd", s.workspace.HandleGetCwd).Methods("GET")
	s.router.HandleFunc("/api/cwd", s.workspace.HandleSetCwd).Methods("POST")

	s.router.HandleFunc("/api/sessions", sessions.HandleList).Methods("GET")
	s.router.HandleFunc("/api/sessions/{id}", sessions.HandleGet).Methods("GET")
	s.router.HandleFunc("/api/sessions/{id}", sessions.HandleDelete).Methods("DELETE")
	s.router.HandleFunc("/api/sessions/{id}/events", sessions.HandleEvents).Methods("GET")

	s.router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(s.hub, s.factory, s.db, s.workspace.Root(), w, r)
	})
}

// Start starts the HTTP server and the workspace watcher. It blocks until
// the server stops.
func (s *Server) Start() error {
	handlers.InitStartTime()

	addr := fmt.Sprintf("%s:%d", s.config.Gateway.Host, s.config.Gateway.Port)
	s.httpServer.Addr = addr

	go s.hub.Run()

	watcher, err := NewWatcher(s.hub, s.workspace.Root())
	if err != nil {
		logger.Warn().Err(err).Msg("File watcher unavailable")
	} else {
		s.watcher = watcher
		if err := watcher.Start(); err != nil {
			logger.Warn().Err(err).Msg("Failed to start file watcher")
		}
	}

	logger.Info().
		Str("addr", addr).
		Str("workspace", s.workspace.Root()).
		Msg("Starting gateway server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info().Msg("Shutting down gateway server")

	if s.watcher != nil {
		s.watcher.Stop()
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	return nil
}

// Router returns the underlying router for testing.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// Workspace returns the workspace directory tracker.
func (s *Server) Workspace() *handlers.Workspace {
	return s.workspace
}
