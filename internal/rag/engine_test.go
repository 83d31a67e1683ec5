package rag

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjckrbbt/phoenix/internal/endpoint"
)

const handbookIndex = `{"chunks":[
	{"id":"leave-1","text":"Employees receive 20 days of paid leave per year.","source":"handbook.pdf","embedding":[1,0,0]},
	{"id":"travel-1","text":"Travel must be booked through the portal.","source":"handbook.pdf","embedding":[0,1,0]},
	{"id":"leave-2","text":"Unused leave carries over up to 5 days.","source":"handbook.pdf","embedding":[0.9,0.1,0]}
]}`

type fakeOpenAI struct {
	srv        *httptest.Server
	embedCalls atomic.Int64
	chatCalls  atomic.Int64
	lastChat   map[string]any
	authHeader string
	chatStatus int
}

func newFakeOpenAI(t *testing.T) *fakeOpenAI {
	t.Helper()
	f := &fakeOpenAI{chatStatus: http.StatusOK}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.authHeader = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/embeddings"):
			f.embedCalls.Add(1)
			_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small",
				"data":[{"object":"embedding","index":0,"embedding":[1,0,0]}],
				"usage":{"prompt_tokens":5,"total_tokens":5}}`))
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			f.chatCalls.Add(1)
			_ = json.NewDecoder(r.Body).Decode(&f.lastChat)
			if f.chatStatus != http.StatusOK {
				w.WriteHeader(f.chatStatus)
				_, _ = w.Write([]byte(`{"error":{"message":"upstream exploded","type":"server_error"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","created":0,"model":"gpt-4o-mini",
				"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"You get 20 days of paid leave."}}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func writeIndex(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "handbook.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testRecord(baseURL, indexPath string) endpoint.Record {
	return endpoint.Record{
		Name: "default_rag",
		Kind: endpoint.KindRAG,
		Fields: endpoint.Fields{
			endpoint.FieldAPIKey:         "sk-test",
			endpoint.FieldEmbeddingModel: "text-embedding-3-small",
			endpoint.FieldChatModel:      "gpt-4o-mini",
			endpoint.FieldIndexPath:      indexPath,
			endpoint.FieldBaseURL:        baseURL,
		},
	}
}

func newTestEngine() *Engine {
	return NewEngine(NewIndexCache(0, slog.Default()), slog.Default())
}

func TestEngineAnswer(t *testing.T) {
	fake := newFakeOpenAI(t)
	rec := testRecord(fake.srv.URL+"/v1", writeIndex(t, handbookIndex))

	res, err := newTestEngine().Answer(context.Background(), rec, "What is the leave policy?", "standard", 2)
	require.NoError(t, err)

	answer, ok := res.(Answer)
	require.True(t, ok)
	assert.Equal(t, "default_rag", answer.Endpoint)
	assert.Equal(t, "What is the leave policy?", answer.Question)
	assert.Equal(t, "standard", answer.Mode)
	assert.Equal(t, "gpt-4o-mini", answer.Model)
	assert.Equal(t, "You get 20 days of paid leave.", answer.Answer)
	require.Len(t, answer.Sources, 2)
	assert.Equal(t, "leave-1", answer.Sources[0].ID)
	assert.Equal(t, "leave-2", answer.Sources[1].ID)
	assert.InDelta(t, 1.0, answer.Sources[0].Score, 1e-6)

	assert.EqualValues(t, 1, fake.embedCalls.Load())
	assert.EqualValues(t, 1, fake.chatCalls.Load())
	assert.Equal(t, "Bearer sk-test", fake.authHeader)
	assert.Equal(t, "gpt-4o-mini", fake.lastChat["model"])

	messages, ok := fake.lastChat["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	user := messages[1].(map[string]any)
	assert.Contains(t, user["content"], "[1] (handbook.pdf) Employees receive 20 days")
	assert.Contains(t, user["content"], "Question: What is the leave policy?")
	assert.NotContains(t, user["content"], "Travel must be booked")
}

func TestEngineSystemPromptOverride(t *testing.T) {
	fake := newFakeOpenAI(t)
	rec := testRecord(fake.srv.URL+"/v1", writeIndex(t, handbookIndex))
	rec.Fields[endpoint.FieldSystemPrompt] = "Answer like a pirate."

	_, err := newTestEngine().Answer(context.Background(), rec, "Leave?", "concise", 1)
	require.NoError(t, err)

	messages := fake.lastChat["messages"].([]any)
	system := messages[0].(map[string]any)
	assert.Equal(t, "Answer like a pirate.", system["content"])
}

func TestEngineUnknownModeMakesNoCalls(t *testing.T) {
	fake := newFakeOpenAI(t)
	rec := testRecord(fake.srv.URL+"/v1", writeIndex(t, handbookIndex))

	_, err := newTestEngine().Answer(context.Background(), rec, "q", "poetic", 3)

	var me *ModeError
	require.True(t, errors.As(err, &me))
	assert.True(t, me.BadInput())
	assert.Contains(t, err.Error(), "concise, detailed, standard")
	assert.Zero(t, fake.embedCalls.Load())
}

func TestEngineUpstreamFailure(t *testing.T) {
	fake := newFakeOpenAI(t)
	fake.chatStatus = http.StatusInternalServerError
	rec := testRecord(fake.srv.URL+"/v1", writeIndex(t, handbookIndex))

	_, err := newTestEngine().Answer(context.Background(), rec, "q", "standard", 3)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "http_500")
	assert.EqualValues(t, 1, fake.chatCalls.Load(), "no retries")
}

func TestEngineMissingIndex(t *testing.T) {
	fake := newFakeOpenAI(t)
	rec := testRecord(fake.srv.URL+"/v1", filepath.Join(t.TempDir(), "absent.json"))

	_, err := newTestEngine().Answer(context.Background(), rec, "q", "standard", 3)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open index file")
	assert.Zero(t, fake.chatCalls.Load())
}
