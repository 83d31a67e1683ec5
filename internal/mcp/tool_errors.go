package mcp

import (
	"context"
	"encoding/json"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jjckrbbt/phoenix/internal/dispatch"
)

type toolErrorEnvelope struct {
	ErrorCode string `json:"error_code"`
	Detail    string `json:"detail,omitempty"`
}

// withStructuredToolErrors turns handler errors into a JSON error envelope
// the agent host can branch on.
func withStructuredToolErrors[In, Out any](op string, h mcpsdk.ToolHandlerFor[In, Out]) mcpsdk.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input In) (*mcpsdk.CallToolResult, Out, error) {
		res, out, err := h(ctx, req, input)
		if err == nil {
			return res, out, nil
		}
		var zero Out
		return nil, zero, toolError{Envelope: classifyToolError(op, err)}
	}
}

type toolError struct {
	Envelope toolErrorEnvelope
}

func (e toolError) Error() string {
	envelope := map[string]any{"error": e.Envelope}
	encoded, err := json.Marshal(envelope)
	if err != nil {
		return `{"error":{"error_code":"backend_failure","detail":"failed to encode error envelope"}}`
	}
	return string(encoded)
}

func classifyToolError(op string, err error) toolErrorEnvelope {
	de := dispatch.AsError(op, err)
	return toolErrorEnvelope{
		ErrorCode: errorCode(de.Kind),
		Detail:    strings.TrimSpace(de.Detail()),
	}
}

func errorCode(kind dispatch.ErrorKind) string {
	if kind == dispatch.KindMalformedInput {
		return "invalid_argument"
	}
	return string(kind)
}
