package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"

	"github.com/jjckrbbt/phoenix/internal/dispatch"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

// StatusFor maps an error kind to its HTTP status code.
func StatusFor(kind dispatch.ErrorKind) int {
	switch kind {
	case dispatch.KindMalformedInput, dispatch.KindUnknownTool:
		return http.StatusBadRequest
	case dispatch.KindNotFound:
		return http.StatusNotFound
	case dispatch.KindMisconfigured:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

// toHTTPError converts a core error into an echo error, keeping the original
// as the internal cause.
func toHTTPError(op string, err error) *echo.HTTPError {
	de := dispatch.AsError(op, err)
	return echo.NewHTTPError(StatusFor(de.Kind), de.Detail()).SetInternal(de)
}

func badRequest(msg string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusBadRequest, msg).SetInternal(
		dispatch.Malformed("request", errors.New(msg)))
}

// ErrorHandler writes every error as an ErrorResponse. Server-side failures
// are logged and sent to Sentry.
func ErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		resp := ErrorResponse{Message: http.StatusText(code)}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			resp.Message = fmt.Sprint(he.Message)
		}
		var de *dispatch.Error
		if errors.As(err, &de) {
			resp.Kind = string(de.Kind)
			if he == nil {
				code = StatusFor(de.Kind)
				resp.Message = de.Detail()
			}
		}

		if code >= http.StatusInternalServerError {
			logger.ErrorContext(c.Request().Context(), "Request failed",
				"request_id", c.Get("requestID"),
				"status", code,
				slog.Any("error", err),
			)
			if hub := sentryecho.GetHubFromContext(c); hub != nil {
				hub.CaptureException(err)
			}
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(code)
		} else {
			writeErr = c.JSON(code, resp)
		}
		if writeErr != nil {
			logger.ErrorContext(c.Request().Context(), "Failed to write error response", slog.Any("error", writeErr))
		}
	}
}
