package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jjckrbbt/phoenix/internal/dispatch"
	"github.com/jjckrbbt/phoenix/internal/endpoint"
)

const (
	toolListEndpoints  = "list_rag_endpoints"
	toolGetEndpoint    = "get_rag_endpoint"
	toolAddEndpoint    = "add_rag_endpoint"
	toolUpdateEndpoint = "update_rag_endpoint"
	toolDeleteEndpoint = "delete_rag_endpoint"
	toolQueryRAG       = "query_rag"
	toolRunTool        = "run_tool"
	toolQueryELK       = "query_elk"
)

const defaultInstructions = "Dynamic RAG inference and utility tools via MCP."

// Config describes the server to agent hosts.
type Config struct {
	Name         string
	Version      string
	Instructions string
}

// Server exposes the core operations as MCP tools.
type Server struct {
	core   dispatch.Core
	cfg    Config
	srv    *mcpsdk.Server
	logger *slog.Logger
}

// NewServer creates a Server with every tool registered.
func NewServer(core dispatch.Core, cfg Config, logger *slog.Logger) *Server {
	if cfg.Name == "" {
		cfg.Name = "Phoenix AI Services"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Instructions == "" {
		cfg.Instructions = defaultInstructions
	}

	s := &Server{
		core:   core,
		cfg:    cfg,
		logger: logger.With("component", "mcp_server"),
	}
	s.srv = mcpsdk.NewServer(&mcpsdk.Implementation{Name: cfg.Name, Version: cfg.Version}, &mcpsdk.ServerOptions{
		Instructions: cfg.Instructions,
	})
	s.registerTools(s.srv)
	return s
}

// Handler serves the streamable HTTP transport. Every session shares the
// same server and therefore the same registry.
func (s *Server) Handler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return s.srv
	}, nil)
}

// RunStdio serves a single session over stdin/stdout until ctx is done or
// the peer disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Serving MCP over stdio")
	return s.srv.Run(ctx, &mcpsdk.StdioTransport{})
}

// Connect attaches the server to an arbitrary transport.
func (s *Server) Connect(ctx context.Context, t mcpsdk.Transport) (*mcpsdk.ServerSession, error) {
	return s.srv.Connect(ctx, t, nil)
}

func (s *Server) registerTools(srv *mcpsdk.Server) {
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolListEndpoints,
		Description: "List registered RAG endpoints.",
	}, withStructuredToolErrors("list", s.handleListEndpoints))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolGetEndpoint,
		Description: "Get the configuration of one registered RAG endpoint.",
	}, withStructuredToolErrors("get", s.handleGetEndpoint))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name: toolAddEndpoint,
		Description: "Register or replace a RAG endpoint. Required fields: " +
			strings.Join(endpoint.RequiredFields(endpoint.KindRAG), ", ") + ".",
	}, withStructuredToolErrors("add", s.handleAddEndpoint))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolUpdateEndpoint,
		Description: "Merge fields into a registered RAG endpoint. Updating an unregistered name changes nothing.",
	}, withStructuredToolErrors("update", s.handleUpdateEndpoint))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolDeleteEndpoint,
		Description: "Delete a RAG endpoint. Deleting an unregistered name is not an error.",
	}, withStructuredToolErrors("delete", s.handleDeleteEndpoint))

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolQueryRAG,
		Description: "Run a RAG query against a registered endpoint.",
	}, withStructuredToolErrors("query", s.handleQueryRAG))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolRunTool,
		Description: fmt.Sprintf("Run a tool by name (%s).", strings.Join(s.core.ToolNames(), ", ")),
	}, withStructuredToolErrors("tool", s.handleRunTool))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolQueryELK,
		Description: "Search logs in ELK with a query_string query.",
	}, withStructuredToolErrors("log_search", s.handleQueryELK))
}

// jsonResult renders v as the tool's text content.
func jsonResult(v any) (*mcpsdk.CallToolResult, any, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(encoded)}},
	}, nil, nil
}

type listEndpointsInput struct{}

func (s *Server) handleListEndpoints(_ context.Context, _ *mcpsdk.CallToolRequest, _ listEndpointsInput) (*mcpsdk.CallToolResult, any, error) {
	return jsonResult(s.core.ListAll())
}

type endpointNameInput struct {
	Name string `json:"name" jsonschema:"Endpoint name"`
}

func (s *Server) handleGetEndpoint(_ context.Context, _ *mcpsdk.CallToolRequest, input endpointNameInput) (*mcpsdk.CallToolResult, any, error) {
	rec, err := s.core.Get(input.Name)
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(rec)
}

type addEndpointInput struct {
	Name   string            `json:"name" jsonschema:"Endpoint name"`
	Kind   string            `json:"kind,omitempty" jsonschema:"Endpoint kind (default rag)"`
	Fields map[string]string `json:"fields" jsonschema:"Endpoint settings such as api_key, embedding_model, chat_model and index_path"`
}

func (s *Server) handleAddEndpoint(ctx context.Context, _ *mcpsdk.CallToolRequest, input addEndpointInput) (*mcpsdk.CallToolResult, any, error) {
	kind, err := endpoint.ParseKind(input.Kind)
	if err != nil {
		return nil, nil, dispatch.Malformed("add", err)
	}
	if err := s.core.Add(endpoint.Record{Name: input.Name, Kind: kind, Fields: input.Fields}); err != nil {
		return nil, nil, err
	}
	s.logger.InfoContext(ctx, "Endpoint registered", "endpoint", input.Name, "kind", kind)
	return jsonResult(map[string]string{"message": fmt.Sprintf("Endpoint '%s' registered.", input.Name)})
}

type updateEndpointInput struct {
	Name   string            `json:"name" jsonschema:"Endpoint name"`
	Fields map[string]string `json:"fields" jsonschema:"Fields to merge into the endpoint"`
}

func (s *Server) handleUpdateEndpoint(ctx context.Context, _ *mcpsdk.CallToolRequest, input updateEndpointInput) (*mcpsdk.CallToolResult, any, error) {
	applied, err := s.core.Update(input.Name, input.Fields)
	if err != nil {
		return nil, nil, err
	}
	msg := fmt.Sprintf("Endpoint '%s' updated.", input.Name)
	if !applied {
		msg = fmt.Sprintf("Endpoint '%s' is not registered; nothing was updated.", input.Name)
	}
	s.logger.InfoContext(ctx, "Endpoint update", "endpoint", input.Name, "applied", applied)
	return jsonResult(map[string]any{"message": msg, "applied": applied})
}

func (s *Server) handleDeleteEndpoint(ctx context.Context, _ *mcpsdk.CallToolRequest, input endpointNameInput) (*mcpsdk.CallToolResult, any, error) {
	deleted, err := s.core.Delete(input.Name)
	if err != nil {
		return nil, nil, err
	}
	s.logger.InfoContext(ctx, "Endpoint delete", "endpoint", input.Name, "deleted", deleted)
	return jsonResult(map[string]any{"message": fmt.Sprintf("Endpoint '%s' deleted.", input.Name), "deleted": deleted})
}

type queryRAGInput struct {
	Name     string `json:"name" jsonschema:"Registered endpoint name"`
	Question string `json:"question" jsonschema:"Question to answer"`
	Mode     string `json:"mode,omitempty" jsonschema:"Answer mode: standard, concise or detailed (default standard)"`
	TopK     int    `json:"top_k,omitempty" jsonschema:"Number of passages to retrieve, 1 to 50 (default 5)"`
}

func (s *Server) handleQueryRAG(ctx context.Context, _ *mcpsdk.CallToolRequest, input queryRAGInput) (*mcpsdk.CallToolResult, any, error) {
	res, err := s.core.ResolveAndAnswer(ctx, input.Name, dispatch.QueryParams{
		Question: input.Question,
		Mode:     input.Mode,
		TopK:     input.TopK,
	})
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(res)
}

type runToolInput struct {
	ToolName  string `json:"tool_name" jsonschema:"Tool to run"`
	InputData string `json:"input_data,omitempty" jsonschema:"Tool input, passed through unchanged"`
}

func (s *Server) handleRunTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input runToolInput) (*mcpsdk.CallToolResult, any, error) {
	res, err := s.core.RunTool(ctx, input.ToolName, input.InputData)
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(res)
}

type queryELKInput struct {
	Query  string `json:"query,omitempty" jsonschema:"ELK query string"`
	Q      string `json:"q,omitempty" jsonschema:"Alias of query"`
	Size   int    `json:"size,omitempty" jsonschema:"Maximum hits, 1 to 1000 (default 10)"`
	APIKey string `json:"api_key,omitempty" jsonschema:"Optional API key overriding the configured one"`
}

func (s *Server) handleQueryELK(ctx context.Context, _ *mcpsdk.CallToolRequest, input queryELKInput) (*mcpsdk.CallToolResult, any, error) {
	query := input.Query
	if query == "" {
		query = input.Q
	}
	res, err := s.core.SearchLogs(ctx, dispatch.LogParams{
		Query:  query,
		Size:   input.Size,
		APIKey: input.APIKey,
	})
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(res)
}
