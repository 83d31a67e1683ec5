// internal/rag/engine.go
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/jjckrbbt/phoenix/internal/endpoint"
)

// Source identifies a chunk an answer was grounded on.
type Source struct {
	ID     string  `json:"id"`
	Source string  `json:"source,omitempty"`
	Score  float64 `json:"score"`
}

// Answer is the result of one RAG query.
type Answer struct {
	Endpoint string   `json:"endpoint"`
	Question string   `json:"question"`
	Mode     string   `json:"mode"`
	Answer   string   `json:"answer"`
	Model    string   `json:"model"`
	Sources  []Source `json:"sources"`
}

// Engine answers questions against rag endpoints: embed the question, look
// up the nearest chunks and ask the chat model.
type Engine struct {
	indexes *IndexCache
	logger  *slog.Logger
}

// NewEngine creates an Engine reading indexes through cache.
func NewEngine(cache *IndexCache, logger *slog.Logger) *Engine {
	return &Engine{
		indexes: cache,
		logger:  logger.With("component", "rag_engine"),
	}
}

// Answer runs a query for rec. The mode is checked before any network call.
func (e *Engine) Answer(ctx context.Context, rec endpoint.Record, question, mode string, topK int) (any, error) {
	if _, ok := systemPrompts[mode]; !ok {
		return nil, &ModeError{Mode: mode}
	}

	reqLogger := e.logger.With("endpoint", rec.Name, "mode", mode)
	reqLogger.InfoContext(ctx, "Executing RAG query", "top_k", topK)

	client := newClient(rec.Fields)

	embedding, err := embed(ctx, client, rec.Fields[endpoint.FieldEmbeddingModel], question)
	if err != nil {
		return nil, err
	}

	idx, err := e.indexes.Open(ctx, rec.Fields[endpoint.FieldIndexPath])
	if err != nil {
		return nil, err
	}
	chunks, err := idx.Search(ctx, embedding, topK)
	if err != nil {
		return nil, err
	}

	system, user, err := buildPrompt(mode, rec.Fields[endpoint.FieldSystemPrompt], question, chunks)
	if err != nil {
		return nil, err
	}

	model := rec.Fields[endpoint.FieldChatModel]
	text, err := complete(ctx, client, model, system, user)
	if err != nil {
		return nil, err
	}
	reqLogger.InfoContext(ctx, "RAG query answered", "sources", len(chunks))

	sources := make([]Source, len(chunks))
	for i, c := range chunks {
		sources[i] = Source{ID: c.ID, Source: c.Source, Score: c.Score}
	}
	return Answer{
		Endpoint: rec.Name,
		Question: question,
		Mode:     mode,
		Answer:   text,
		Model:    model,
		Sources:  sources,
	}, nil
}

func newClient(fields endpoint.Fields) openai.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(fields[endpoint.FieldAPIKey]),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(fields[endpoint.FieldBaseURL]); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(base, "/")+"/"))
	}
	return openai.NewClient(opts...)
}

func embed(ctx context.Context, client openai.Client, model, text string) ([]float32, error) {
	resp, err := client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:          openai.EmbeddingModel(model),
		Input:          openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", wrapHTTPError(err))
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("no embeddings returned")
	}

	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

func complete(ctx context.Context, client openai.Client, model, system, user string) (string, error) {
	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", wrapHTTPError(err))
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func wrapHTTPError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		if raw := strings.TrimSpace(apiErr.RawJSON()); raw != "" {
			return fmt.Errorf("http_%d: %s", apiErr.StatusCode, raw)
		}
		return fmt.Errorf("http_%d: %w", apiErr.StatusCode, err)
	}
	return err
}
