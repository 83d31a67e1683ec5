package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/jjckrbbt/phoenix/internal/dispatch"
)

// ELKAPIKeyHeader lets a caller supply its own log-search credential.
const ELKAPIKeyHeader = "X-ELK-API-Key"

// QueryHandler serves RAG queries, tools and log search.
type QueryHandler struct {
	core   dispatch.Core
	logger *slog.Logger
}

// NewQueryHandler creates a new instance of the QueryHandler.
func NewQueryHandler(core dispatch.Core, logger *slog.Logger) *QueryHandler {
	return &QueryHandler{
		core:   core,
		logger: logger.With("component", "query_handler"),
	}
}

func (h *QueryHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/rag/query/:name", h.query)
	e.GET("/tool/:tool_name", h.runTool)
	e.GET("/tools", h.listTools)
	e.GET("/elk/query", h.searchLogs)
	e.GET("/test/run", h.smokeTest)
}

// intParam reads the first present query parameter among names. Absent
// parameters yield 0 so the core applies its default.
func intParam(c echo.Context, names ...string) (int, error) {
	for _, name := range names {
		raw := c.QueryParam(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return 0, badRequest(fmt.Sprintf("Query parameter '%s' must be an integer", name))
		}
		if v == 0 {
			// 0 would otherwise silently select the default.
			return 0, badRequest(fmt.Sprintf("Query parameter '%s' must be at least 1", name))
		}
		return v, nil
	}
	return 0, nil
}

func firstParam(c echo.Context, names ...string) string {
	for _, name := range names {
		if v := c.QueryParam(name); v != "" {
			return v
		}
	}
	return ""
}

func (h *QueryHandler) query(c echo.Context) error {
	ctx := c.Request().Context()
	name := c.Param("name")

	topK, err := intParam(c, "top_k", "topK")
	if err != nil {
		return err
	}
	params := dispatch.QueryParams{
		Question: c.QueryParam("question"),
		Mode:     c.QueryParam("mode"),
		TopK:     topK,
	}

	reqLogger := h.logger.With("request_id", c.Get("requestID"), "endpoint", name)
	reqLogger.InfoContext(ctx, "Executing RAG query", "mode", params.Mode)

	res, err := h.core.ResolveAndAnswer(ctx, name, params)
	if err != nil {
		return toHTTPError("query", err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *QueryHandler) runTool(c echo.Context) error {
	ctx := c.Request().Context()
	toolName := c.Param("tool_name")
	input := firstParam(c, "input_data", "inputData")

	res, err := h.core.RunTool(ctx, toolName, input)
	if err != nil {
		return toHTTPError("tool", err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *QueryHandler) listTools(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]string{"tools": h.core.ToolNames()})
}

func (h *QueryHandler) searchLogs(c echo.Context) error {
	size, err := intParam(c, "size")
	if err != nil {
		return err
	}
	params := dispatch.LogParams{
		Query:  firstParam(c, "q", "query"),
		Size:   size,
		APIKey: c.Request().Header.Get(ELKAPIKeyHeader),
	}

	res, err := h.core.SearchLogs(c.Request().Context(), params)
	if err != nil {
		return toHTTPError("log_search", err)
	}
	return c.JSON(http.StatusOK, res)
}

// Fixed inputs of the smoke test.
const (
	smokeEndpoint = "default_rag"
	smokeQuestion = "What is the leave policy?"
	smokeTopK     = 3
)

var smokeTools = []struct{ key, tool, input string }{
	{"Tool_Calculator", "calculator", "2 + 3 * 4"},
	{"Tool_SystemTime", "system_time", ""},
	{"Tool_Python", "python", "round(3.14159, 2)"},
}

// smokeTest exercises the default endpoint and every built-in tool. Each
// check reports its own outcome; the request itself always succeeds.
func (h *QueryHandler) smokeTest(c echo.Context) error {
	ctx := c.Request().Context()
	results := make(map[string]any, len(smokeTools)+1)

	if _, err := h.core.Get(smokeEndpoint); err != nil {
		results["RAG_Test"] = fmt.Sprintf("'%s' not registered", smokeEndpoint)
	} else {
		res, err := h.core.ResolveAndAnswer(ctx, smokeEndpoint, dispatch.QueryParams{
			Question: smokeQuestion,
			Mode:     dispatch.DefaultMode,
			TopK:     smokeTopK,
		})
		if err != nil {
			results["RAG_Test"] = "Failed: " + dispatch.AsError("query", err).Detail()
		} else {
			results["RAG_Test"] = res
		}
	}

	for _, st := range smokeTools {
		res, err := h.core.RunTool(ctx, st.tool, st.input)
		if err != nil {
			results[st.key] = "Failed: " + dispatch.AsError("tool", err).Detail()
			continue
		}
		results[st.key] = res
	}

	h.logger.InfoContext(ctx, "Smoke test completed", "request_id", c.Get("requestID"))
	return c.JSON(http.StatusOK, results)
}
