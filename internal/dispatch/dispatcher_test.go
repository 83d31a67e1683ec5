package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjckrbbt/phoenix/internal/endpoint"
)

type answerCall struct {
	Record   endpoint.Record
	Question string
	Mode     string
	TopK     int
}

type fakeAnswerer struct {
	mu     sync.Mutex
	calls  []answerCall
	result any
	err    error
	block  bool
}

func (f *fakeAnswerer) Answer(ctx context.Context, rec endpoint.Record, question, mode string, topK int) (any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, answerCall{Record: rec, Question: question, Mode: mode, TopK: topK})
	f.mu.Unlock()
	if f.block {
		// ignores ctx on purpose
		time.Sleep(time.Second)
	}
	return f.result, f.err
}

type fakeTools struct {
	result any
	err    error
	gotIn  string
}

func (f *fakeTools) Known(name string) bool { return name == "calculator" }
func (f *fakeTools) Names() []string        { return []string{"calculator"} }
func (f *fakeTools) Run(_ context.Context, _ string, input string) (any, error) {
	f.gotIn = input
	return f.result, f.err
}

type fakeLogs struct {
	configured bool
	err        error
	calls      int
}

func (f *fakeLogs) Configured() bool { return f.configured }
func (f *fakeLogs) Search(_ context.Context, query string, size int, _ string) (any, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return map[string]any{"query": query, "size": size}, nil
}

type inputErr struct{ msg string }

func (e inputErr) Error() string  { return e.msg }
func (e inputErr) BadInput() bool { return true }

type recordedCall struct{ op, outcome string }

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (r *fakeRecorder) ObserveDispatch(op, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedCall{op, outcome})
}

func defaultRAG() endpoint.Record {
	return endpoint.Record{
		Name: "default_rag",
		Kind: endpoint.KindRAG,
		Fields: endpoint.Fields{
			endpoint.FieldAPIKey:         "sk-test",
			endpoint.FieldEmbeddingModel: "text-embedding-3-small",
			endpoint.FieldChatModel:      "gpt-4o-mini",
			endpoint.FieldIndexPath:      "./handbook.json",
		},
	}
}

func TestResolveAndAnswerEndToEnd(t *testing.T) {
	answerer := &fakeAnswerer{result: map[string]any{"answer": "20 days"}}
	d := New(endpoint.NewRegistry(), WithAnswerer(endpoint.KindRAG, answerer))
	require.NoError(t, d.Add(defaultRAG()))

	res, err := d.ResolveAndAnswer(context.Background(), "default_rag", QueryParams{
		Question: "What is the leave policy?",
		Mode:     "standard",
		TopK:     3,
	})

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"answer": "20 days"}, res)
	require.Len(t, answerer.calls, 1)
	assert.Equal(t, answerCall{
		Record:   defaultRAG(),
		Question: "What is the leave policy?",
		Mode:     "standard",
		TopK:     3,
	}, answerer.calls[0])
}

func TestResolveAndAnswerNotFoundSkipsAnswerer(t *testing.T) {
	answerer := &fakeAnswerer{}
	d := New(endpoint.NewRegistry(), WithAnswerer(endpoint.KindRAG, answerer))

	_, err := d.ResolveAndAnswer(context.Background(), "nope", QueryParams{Question: "q", Mode: "standard", TopK: 5})

	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Contains(t, err.Error(), "Endpoint 'nope' not found.")
	assert.Empty(t, answerer.calls)
}

func TestResolveAndAnswerDefaults(t *testing.T) {
	answerer := &fakeAnswerer{result: "ok"}
	d := New(endpoint.NewRegistry(), WithAnswerer(endpoint.KindRAG, answerer))
	require.NoError(t, d.Add(defaultRAG()))

	_, err := d.ResolveAndAnswer(context.Background(), "default_rag", QueryParams{Question: "  hi  "})

	require.NoError(t, err)
	require.Len(t, answerer.calls, 1)
	assert.Equal(t, "hi", answerer.calls[0].Question)
	assert.Equal(t, DefaultMode, answerer.calls[0].Mode)
	assert.Equal(t, DefaultTopK, answerer.calls[0].TopK)
}

func TestResolveAndAnswerFailures(t *testing.T) {
	testCases := []struct {
		name     string
		answerer *fakeAnswerer
		register bool
		params   QueryParams
		want     ErrorKind
	}{
		{
			name:     "Missing question",
			answerer: &fakeAnswerer{},
			register: true,
			params:   QueryParams{TopK: 5},
			want:     KindMalformedInput,
		},
		{
			name:     "TopK out of range",
			answerer: &fakeAnswerer{},
			register: true,
			params:   QueryParams{Question: "q", TopK: MaxTopK + 1},
			want:     KindMalformedInput,
		},
		{
			name:     "Collaborator error",
			answerer: &fakeAnswerer{err: errors.New("embedding service returned non-OK status 500")},
			register: true,
			params:   QueryParams{Question: "q"},
			want:     KindBackendFailure,
		},
		{
			name:     "Collaborator rejects input",
			answerer: &fakeAnswerer{err: inputErr{"unknown mode 'poetic'"}},
			register: true,
			params:   QueryParams{Question: "q", Mode: "poetic"},
			want:     KindMalformedInput,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := New(endpoint.NewRegistry(), WithAnswerer(endpoint.KindRAG, tc.answerer))
			if tc.register {
				require.NoError(t, d.Add(defaultRAG()))
			}
			_, err := d.ResolveAndAnswer(context.Background(), "default_rag", tc.params)
			require.Error(t, err)
			assert.Equal(t, tc.want, KindOf(err))
		})
	}
}

func TestResolveAndAnswerWithoutAnswererIsMisconfigured(t *testing.T) {
	d := New(endpoint.NewRegistry())
	require.NoError(t, d.Add(defaultRAG()))

	_, err := d.ResolveAndAnswer(context.Background(), "default_rag", QueryParams{Question: "q"})
	assert.Equal(t, KindMisconfigured, KindOf(err))
}

func TestResolveAndAnswerTimesOut(t *testing.T) {
	answerer := &fakeAnswerer{block: true}
	d := New(endpoint.NewRegistry(),
		WithAnswerer(endpoint.KindRAG, answerer),
		WithTimeouts(Timeouts{RAG: 20 * time.Millisecond}),
	)
	require.NoError(t, d.Add(defaultRAG()))

	start := time.Now()
	_, err := d.ResolveAndAnswer(context.Background(), "default_rag", QueryParams{Question: "q"})

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, KindBackendFailure, KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timed out")
}

// A slow collaborator must not hold up registry traffic.
func TestRegistryUsableDuringSlowQuery(t *testing.T) {
	answerer := &fakeAnswerer{block: true}
	d := New(endpoint.NewRegistry(),
		WithAnswerer(endpoint.KindRAG, answerer),
		WithTimeouts(Timeouts{RAG: 300 * time.Millisecond}),
	)
	require.NoError(t, d.Add(defaultRAG()))

	go func() {
		_, _ = d.ResolveAndAnswer(context.Background(), "default_rag", QueryParams{Question: "q"})
	}()
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	other := defaultRAG()
	other.Name = "other"
	require.NoError(t, d.Add(other))
	_, err := d.Update("default_rag", endpoint.Fields{"chat_model": "gpt-4o"})
	require.NoError(t, err)
	assert.Len(t, d.ListAll(), 2)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestRegistryOperations(t *testing.T) {
	d := New(endpoint.NewRegistry())

	bad := defaultRAG()
	delete(bad.Fields, endpoint.FieldIndexPath)
	assert.Equal(t, KindMalformedInput, KindOf(d.Add(bad)))

	require.NoError(t, d.Add(defaultRAG()))

	applied, err := d.Update("default_rag", endpoint.Fields{"chat_model": "gpt-4o"})
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = d.Update("missing", endpoint.Fields{"a": "1"})
	require.NoError(t, err)
	assert.False(t, applied)
	_, err = d.Get("missing")
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = d.Update("default_rag", endpoint.Fields{})
	assert.Equal(t, KindMalformedInput, KindOf(err))

	rec, err := d.Get("default_rag")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", rec.Fields[endpoint.FieldChatModel])

	removed, err := d.Delete("default_rag")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = d.Delete("default_rag")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Empty(t, d.ListAll())
}

func TestRunTool(t *testing.T) {
	tools := &fakeTools{result: 14}
	d := New(endpoint.NewRegistry(), WithTools(tools))

	res, err := d.RunTool(context.Background(), "calculator", "2 + 3 * 4")
	require.NoError(t, err)
	assert.Equal(t, 14, res)
	assert.Equal(t, "2 + 3 * 4", tools.gotIn)
	assert.Equal(t, []string{"calculator"}, d.ToolNames())

	_, err = d.RunTool(context.Background(), "shell", "rm -rf /")
	assert.Equal(t, KindUnknownTool, KindOf(err))

	tools.err = inputErr{"unexpected token"}
	_, err = d.RunTool(context.Background(), "calculator", "2 +")
	assert.Equal(t, KindMalformedInput, KindOf(err))

	tools.err = errors.New("boom")
	_, err = d.RunTool(context.Background(), "calculator", "1")
	assert.Equal(t, KindBackendFailure, KindOf(err))
}

func TestRunToolWithoutRunner(t *testing.T) {
	d := New(endpoint.NewRegistry())
	_, err := d.RunTool(context.Background(), "calculator", "1")
	assert.Equal(t, KindUnknownTool, KindOf(err))
	assert.Empty(t, d.ToolNames())
}

func TestSearchLogs(t *testing.T) {
	t.Run("Unset backend is misconfigured", func(t *testing.T) {
		logs := &fakeLogs{configured: false}
		d := New(endpoint.NewRegistry(), WithLogSearcher(logs))

		_, err := d.SearchLogs(context.Background(), LogParams{Query: "error", Size: 10})

		assert.Equal(t, KindMisconfigured, KindOf(err))
		assert.Zero(t, logs.calls)
	})

	t.Run("No searcher is misconfigured", func(t *testing.T) {
		d := New(endpoint.NewRegistry())
		_, err := d.SearchLogs(context.Background(), LogParams{Query: "error", Size: 10})
		assert.Equal(t, KindMisconfigured, KindOf(err))
	})

	t.Run("Transport failure is a backend failure", func(t *testing.T) {
		logs := &fakeLogs{configured: true, err: errors.New("dial tcp: connection refused")}
		d := New(endpoint.NewRegistry(), WithLogSearcher(logs))

		_, err := d.SearchLogs(context.Background(), LogParams{Query: "error"})

		assert.Equal(t, KindBackendFailure, KindOf(err))
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("Size out of range", func(t *testing.T) {
		logs := &fakeLogs{configured: true}
		d := New(endpoint.NewRegistry(), WithLogSearcher(logs))

		_, err := d.SearchLogs(context.Background(), LogParams{Query: "error", Size: 1001})

		assert.Equal(t, KindMalformedInput, KindOf(err))
		assert.Zero(t, logs.calls)
	})

	t.Run("Success uses default size", func(t *testing.T) {
		logs := &fakeLogs{configured: true}
		d := New(endpoint.NewRegistry(), WithLogSearcher(logs))

		res, err := d.SearchLogs(context.Background(), LogParams{Query: "error"})

		require.NoError(t, err)
		assert.Equal(t, map[string]any{"query": "error", "size": 10}, res)
	})
}

func TestRecorderSeesOutcomes(t *testing.T) {
	rec := &fakeRecorder{}
	d := New(endpoint.NewRegistry(), WithRecorder(rec), WithTools(&fakeTools{result: 1}))

	_, _ = d.RunTool(context.Background(), "calculator", "1")
	_, _ = d.RunTool(context.Background(), "nope", "1")
	_, _ = d.ResolveAndAnswer(context.Background(), "missing", QueryParams{Question: "q"})

	assert.Equal(t, []recordedCall{
		{"tool", "ok"},
		{"tool", string(KindUnknownTool)},
		{"query", string(KindNotFound)},
	}, rec.calls)
}
