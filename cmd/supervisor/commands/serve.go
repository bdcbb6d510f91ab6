package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/supervision/internal/config"
	"github.com/opencode-ai/supervision/internal/logging"
	"github.com/opencode-ai/supervision/internal/server"
	"github.com/opencode-ai/supervision/pkg/types"
)

var (
	servePort  int
	serveWatch bool
	serveCORS  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the supervision HTTP server",
	Long: `Start the supervision layer as an HTTP server.

Supervisors, roster presets, tool servers and providers come from the
supervision config. With --watch, edits to guardian rule phrases in the
config files take effect without a restart.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to listen on")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", true, "Reload guardian rules when config files change")
	serveCmd.Flags().BoolVar(&serveCORS, "cors", true, "Enable CORS")
}

func runServe(cmd *cobra.Command, args []string) error {
	dir, err := GetWorkDir(workDir)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("version", Version).Str("directory", dir).Msg("Starting supervision server")

	a, err := buildApp(ctx, dir)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	logging.Info().
		Strs("configFiles", a.config.Files).
		Int("supervisors", len(a.manager.GetAllSupervisors())).
		Int("mcpConnected", a.mcp.ConnectedCount()).
		Msg("Supervision stack ready")

	if serveWatch && len(a.config.Files) > 0 {
		w, err := config.NewWatcher(dir, a.config.Files, func(cfg *types.Config) {
			reloadGuardianRules(a.manager, cfg, a.logger)
		}, logging.Component("config"))
		if err != nil {
			return err
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				logging.Warn().Err(err).Msg("Config watcher stopped")
			}
		}()
	}

	serverConfig := server.DefaultConfig()
	serverConfig.Port = servePort
	serverConfig.EnableCORS = serveCORS

	srv := server.New(serverConfig, server.Services{
		Manager:  a.manager,
		Bus:      a.bus,
		Deps:     a.deps,
		Gate:     a.gate,
		Checker:  a.checker,
		MCP:      a.mcp,
		Selector: a.selector,
	}, logging.Component("server"))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logging.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("Server shutdown error")
	}

	logging.Info().Msg("Server stopped")
	return nil
}

