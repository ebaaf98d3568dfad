package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"prettycode/internal/agent/claude"
	"prettycode/internal/bridge"
	"prettycode/internal/cleanup"
	"prettycode/internal/config"
	"prettycode/internal/gateway"
	"prettycode/internal/gateway/ws"
	"prettycode/internal/storage"
	"prettycode/pkg/logger"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the PrettyCode gateway server",
		Long: `Start the PrettyCode gateway server.

The server exposes workspace browsing endpoints, stored transcripts,
and a WebSocket endpoint that runs one coding-agent session per
connection.`,
		Example: `  # Start with default configuration
  prettycode serve

  # Start on a custom port, rooted at a project
  prettycode serve --port 8080 --workspace ~/src/myproject`,
		RunE: runServe,
	}

	cmd.Flags().IntP("port", "p", 0, "port to listen on (overrides config)")
	cmd.Flags().String("host", "", "host to bind to (overrides config)")
	cmd.Flags().StringP("workspace", "w", "", "workspace root directory (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.GetConfig()
	if cfg == nil {
		return fmt.Errorf("configuration not loaded")
	}

	if cfg.Version == "" {
		cfg.Version = Version
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Gateway.Port = port
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Gateway.Host = host
	}
	if root, _ := cmd.Flags().GetString("workspace"); root != "" {
		cfg.Workspace.Root = root
	}
	if cfg.Workspace.Root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve workspace root: %w", err)
		}
		cfg.Workspace.Root = cwd
	}

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	var pruner *cleanup.Pruner
	if cfg.Cleanup.Enabled {
		pruner = cleanup.NewPruner(db, cleanup.Config{
			Schedule:      cfg.Cleanup.Schedule,
			RetentionDays: cfg.Cleanup.RetentionDays,
		})
		if err := pruner.Start(); err != nil {
			logger.Warn().Err(err).Msg("Transcript pruning disabled")
			pruner = nil
		}
	}

	srv := gateway.NewServer(cfg, db, sessionFactory(cfg))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info().
		Str("address", fmt.Sprintf("http://%s:%d", cfg.Gateway.Host, cfg.Gateway.Port)).
		Str("workspace", cfg.Workspace.Root).
		Msg("PrettyCode server started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("Shutting down server...")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("Server error")
			return err
		}
	}

	if pruner != nil {
		pruner.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
		return err
	}

	logger.Info().Msg("Server stopped")
	return nil
}

// sessionFactory builds one agent session per WebSocket connection.
func sessionFactory(cfg *config.Config) ws.SessionFactory {
	return func(workingDir, resumeToken string) (*bridge.Session, error) {
		mode, err := bridge.ParsePermissionMode(cfg.Agent.PermissionMode)
		if err != nil {
			return nil, err
		}

		runtime := claude.New(claude.Config{
			Binary:         cfg.Agent.Binary,
			WorkingDir:     workingDir,
			PermissionMode: cfg.Agent.PermissionMode,
			Resume:         resumeToken,
			ExtraArgs:      cfg.Agent.ExtraArgs,
			StopTimeout:    cfg.Agent.GetStopTimeout(),
		})

		return bridge.NewSession(bridge.SessionConfig{
			Runtime:        runtime,
			WorkingDir:     workingDir,
			PermissionMode: mode,
			ResumeToken:    resumeToken,
		}), nil
	}
}
