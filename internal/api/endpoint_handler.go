package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"

	"github.com/jjckrbbt/phoenix/internal/dispatch"
	"github.com/jjckrbbt/phoenix/internal/endpoint"
)

// EndpointHandler manages the endpoint catalog.
type EndpointHandler struct {
	core   dispatch.Core
	logger *slog.Logger
}

// NewEndpointHandler creates a new instance of the EndpointHandler.
func NewEndpointHandler(core dispatch.Core, logger *slog.Logger) *EndpointHandler {
	return &EndpointHandler{
		core:   core,
		logger: logger.With("component", "endpoint_handler"),
	}
}

// MessageResponse confirms a catalog mutation.
type MessageResponse struct {
	Message string `json:"message"`
	Applied *bool  `json:"applied,omitempty"`
	Deleted *bool  `json:"deleted,omitempty"`
}

func (h *EndpointHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/rag/endpoints")
	g.GET("", h.list)
	g.GET("/:name", h.get)
	g.POST("/:name", h.add)
	g.PUT("/:name", h.update)
	g.DELETE("/:name", h.remove)

	e.GET("/registry", h.list)
}

// bindFields decodes a JSON object of string values. A "kind" member is
// returned separately rather than stored as a field.
func bindFields(c echo.Context) (endpoint.Fields, string, error) {
	var body map[string]any
	if err := (&echo.DefaultBinder{}).BindBody(c, &body); err != nil {
		return nil, "", badRequest("Invalid request body: expected a JSON object of string fields")
	}

	fields := make(endpoint.Fields, len(body))
	var kind string
	keys := make([]string, 0, len(body))
	for k := range body {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s, ok := body[k].(string)
		if !ok {
			return nil, "", badRequest(fmt.Sprintf("Field '%s' must be a string", k))
		}
		if k == "kind" {
			kind = s
			continue
		}
		fields[k] = s
	}
	return fields, kind, nil
}

func (h *EndpointHandler) add(c echo.Context) error {
	ctx := c.Request().Context()
	name := c.Param("name")

	fields, kindStr, err := bindFields(c)
	if err != nil {
		return err
	}
	kind, err := endpoint.ParseKind(kindStr)
	if err != nil {
		return badRequest(err.Error())
	}

	if err := h.core.Add(endpoint.Record{Name: name, Kind: kind, Fields: fields}); err != nil {
		h.logger.WarnContext(ctx, "Rejected endpoint registration", "endpoint", name, "error", err)
		return toHTTPError("add", err)
	}
	h.logger.InfoContext(ctx, "Endpoint registered", "endpoint", name, "kind", kind, "fields", fields.Keys(), "request_id", c.Get("requestID"))
	return c.JSON(http.StatusOK, MessageResponse{Message: fmt.Sprintf("Endpoint '%s' registered.", name)})
}

func (h *EndpointHandler) update(c echo.Context) error {
	ctx := c.Request().Context()
	name := c.Param("name")

	fields, kindStr, err := bindFields(c)
	if err != nil {
		return err
	}
	if kindStr != "" {
		return badRequest("An endpoint's kind cannot be changed; delete and re-register it instead")
	}

	applied, err := h.core.Update(name, fields)
	if err != nil {
		return toHTTPError("update", err)
	}
	msg := fmt.Sprintf("Endpoint '%s' updated.", name)
	if !applied {
		msg = fmt.Sprintf("Endpoint '%s' is not registered; nothing was updated.", name)
	}
	h.logger.InfoContext(ctx, "Endpoint update", "endpoint", name, "fields", fields.Keys(), "applied", applied)
	return c.JSON(http.StatusOK, MessageResponse{Message: msg, Applied: &applied})
}

func (h *EndpointHandler) remove(c echo.Context) error {
	name := c.Param("name")

	deleted, err := h.core.Delete(name)
	if err != nil {
		return toHTTPError("delete", err)
	}
	h.logger.InfoContext(c.Request().Context(), "Endpoint delete", "endpoint", name, "deleted", deleted)
	return c.JSON(http.StatusOK, MessageResponse{Message: fmt.Sprintf("Endpoint '%s' deleted.", name), Deleted: &deleted})
}

func (h *EndpointHandler) list(c echo.Context) error {
	return c.JSON(http.StatusOK, h.core.ListAll())
}

func (h *EndpointHandler) get(c echo.Context) error {
	rec, err := h.core.Get(c.Param("name"))
	if err != nil {
		return toHTTPError("get", err)
	}
	return c.JSON(http.StatusOK, rec)
}
