// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"

	"github.com/jjckrbbt/phoenix/internal/api"
	"github.com/jjckrbbt/phoenix/internal/config"
	"github.com/jjckrbbt/phoenix/internal/logger"
	"github.com/jjckrbbt/phoenix/internal/mcp"
)

// Version is set at build time.
var Version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var endpointsFile string

	root := &cobra.Command{
		Use:   "phoenix",
		Short: "Phoenix AI Services: dynamic RAG endpoints over HTTP and MCP",
		Long: `phoenix serves a runtime-configurable catalog of RAG endpoints, a few
utility tools and ELK log search over a REST API, with the same operations
exposed as MCP tools at PHOENIX_MCP_MOUNT_PATH.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHTTP(cmd.Context(), endpointsFile)
		},
	}
	root.PersistentFlags().StringVar(&endpointsFile, "endpoints", "", "YAML file of endpoints to register at startup (overrides PHOENIX_ENDPOINTS_FILE)")

	root.AddCommand(&cobra.Command{
		Use:   "stdio",
		Short: "Serve the MCP tools over stdin/stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStdio(cmd.Context(), endpointsFile)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	})
	return root
}

// setup loads configuration, initialises Sentry and the logger, and builds
// the shared core. logOut receives all log output.
func setup(ctx context.Context, endpointsFile string, logOut io.Writer) (*config.Config, *app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}
	if endpointsFile != "" {
		cfg.EndpointsFile = endpointsFile
	}

	logger.InitLogger(cfg.AppEnv, cfg.LogLevel, logOut)
	appLogger := logger.L()

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.AppEnv,
			Release:          Version,
			TracesSampleRate: 1.0,
		}); err != nil {
			appLogger.Warn("Sentry initialization failed", slog.Any("error", err))
		}
	}

	appLogger.Info("Application starting up...", "environment", cfg.AppEnv, "version", Version)

	a, err := newApp(ctx, cfg, appLogger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, a, nil
}

func runHTTP(ctx context.Context, endpointsFile string) error {
	cfg, a, err := setup(ctx, endpointsFile, os.Stdout)
	if err != nil {
		return err
	}
	defer sentry.Flush(2 * time.Second)
	defer a.Close()
	appLogger := logger.L()

	mcpServer := mcp.NewServer(a.core, mcp.Config{Name: cfg.AppTitle, Version: Version}, appLogger)

	e := api.NewServer(a.core, api.ServerOptions{
		Logger:      appLogger,
		Metrics:     a.metrics,
		MCPPath:     cfg.MCPMountPath,
		MCPHandler:  mcpServer.Handler(),
		CORSOrigins: cfg.CORSOrigins,
		HealthCheck: a.indexes.Ping,
	})

	errCh := make(chan error, 1)
	go func() {
		appLogger.Info("HTTP Server starting", "address", cfg.Addr(), "title", cfg.AppTitle)
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			appLogger.Error("HTTP Server failed to start", slog.Any("error", err))
			return err
		}
	case <-ctx.Done():
	}

	appLogger.Info("Shutting down HTTP Server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP Server shutdown failed", slog.Any("error", err))
		return err
	}
	appLogger.Info("HTTP Server stopped gracefully.")
	return nil
}

func runStdio(ctx context.Context, endpointsFile string) error {
	// stdout belongs to the protocol.
	cfg, a, err := setup(ctx, endpointsFile, os.Stderr)
	if err != nil {
		return err
	}
	defer sentry.Flush(2 * time.Second)
	defer a.Close()

	mcpServer := mcp.NewServer(a.core, mcp.Config{Name: cfg.AppTitle, Version: Version}, logger.L())
	if err := mcpServer.RunStdio(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio session ended: %w", err)
	}
	return nil
}
