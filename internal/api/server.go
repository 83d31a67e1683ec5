package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"

	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/jjckrbbt/phoenix/internal/dispatch"
	"github.com/jjckrbbt/phoenix/internal/metrics"
)

// ServerOptions configures NewServer. Metrics, MCPHandler and HealthCheck
// are optional.
type ServerOptions struct {
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	MCPPath     string
	MCPHandler  http.Handler
	CORSOrigins []string
	// HealthCheck backs /healthz; a non-nil error turns it into a 503.
	HealthCheck func(ctx context.Context) error
}

// NewServer builds the echo instance serving every HTTP route over core.
func NewServer(core dispatch.Core, opts ServerOptions) *echo.Echo {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Echo's own logger is silenced; slog does the logging.
	e.Logger.SetOutput(io.Discard)
	e.Logger.SetLevel(0)
	e.Logger.SetHeader("")
	e.HTTPErrorHandler = ErrorHandler(logger)

	e.Use(SlogPanicRecover(logger))
	e.Use(sentryecho.New(sentryecho.Options{
		Repanic: true,
	}))
	e.Use(RequestLogger(logger, opts.Metrics))

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  origins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Length", "Content-Type", "Accept", "Authorization", ELKAPIKeyHeader, "Mcp-Session-Id", "Mcp-Protocol-Version"},
		ExposeHeaders: []string{RequestIDHeader, "Mcp-Session-Id"},
	}))

	apiLogger := logger.With("service", "api_handlers")
	NewEndpointHandler(core, apiLogger).RegisterRoutes(e)
	NewQueryHandler(core, apiLogger).RegisterRoutes(e)

	e.GET("/healthz", func(c echo.Context) error {
		if opts.HealthCheck != nil {
			if err := opts.HealthCheck(c.Request().Context()); err != nil {
				logger.WarnContext(c.Request().Context(), "Health check failed", "error", err)
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics.Handler()))
	}

	if opts.MCPHandler != nil {
		mount := "/" + strings.Trim(opts.MCPPath, "/")
		if mount == "/" {
			mount = "/mcp"
		}
		h := echo.WrapHandler(opts.MCPHandler)
		e.Any(mount, h)
		e.Any(mount+"/*", h)
		logger.Info("MCP tool protocol mounted", "path", mount)
	}

	return e
}
