// internal/dispatch/dispatcher.go
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jjckrbbt/phoenix/internal/endpoint"
)

// Answerer answers a question against a resolved endpoint record. There is
// one Answerer per endpoint.Kind.
type Answerer interface {
	Answer(ctx context.Context, rec endpoint.Record, question, mode string, topK int) (any, error)
}

// ToolRunner executes named auxiliary tools.
type ToolRunner interface {
	Known(name string) bool
	Names() []string
	Run(ctx context.Context, name, input string) (any, error)
}

// LogSearcher queries the log-search backend.
type LogSearcher interface {
	Configured() bool
	Search(ctx context.Context, query string, size int, apiKey string) (any, error)
}

// Recorder observes every collaborator call. outcome is "ok" or an ErrorKind.
type Recorder interface {
	ObserveDispatch(op, outcome string, elapsed time.Duration)
}

// Core is the full set of operations both front ends expose.
type Core interface {
	Add(rec endpoint.Record) error
	Update(name string, fields endpoint.Fields) (bool, error)
	Delete(name string) (bool, error)
	Get(name string) (endpoint.Record, error)
	ListAll() map[string]endpoint.Record
	ResolveAndAnswer(ctx context.Context, name string, params QueryParams) (any, error)
	RunTool(ctx context.Context, toolName, input string) (any, error)
	SearchLogs(ctx context.Context, params LogParams) (any, error)
	ToolNames() []string
}

// Timeouts bound each kind of collaborator call.
type Timeouts struct {
	RAG       time.Duration
	Tool      time.Duration
	LogSearch time.Duration
}

// DefaultTimeouts are used for any zero field of the configured Timeouts.
var DefaultTimeouts = Timeouts{
	RAG:       90 * time.Second,
	Tool:      5 * time.Second,
	LogSearch: 30 * time.Second,
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithAnswerer registers the answerer used for endpoints of kind k.
func WithAnswerer(k endpoint.Kind, a Answerer) Option {
	return func(d *Dispatcher) { d.answerers[k] = a }
}

// WithTools sets the tool collaborator.
func WithTools(t ToolRunner) Option { return func(d *Dispatcher) { d.tools = t } }

// WithLogSearcher sets the log-search collaborator.
func WithLogSearcher(s LogSearcher) Option { return func(d *Dispatcher) { d.logs = s } }

// WithTimeouts overrides collaborator timeouts; zero fields keep their default.
func WithTimeouts(t Timeouts) Option {
	return func(d *Dispatcher) {
		if t.RAG > 0 {
			d.timeouts.RAG = t.RAG
		}
		if t.Tool > 0 {
			d.timeouts.Tool = t.Tool
		}
		if t.LogSearch > 0 {
			d.timeouts.LogSearch = t.LogSearch
		}
	}
}

// WithRecorder sets the call observer.
func WithRecorder(r Recorder) Option { return func(d *Dispatcher) { d.recorder = r } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l.With("component", "dispatcher") }
}

// Dispatcher resolves endpoint names against the shared registry and routes
// requests to the collaborators. It holds no state of its own.
type Dispatcher struct {
	registry  *endpoint.Registry
	answerers map[endpoint.Kind]Answerer
	tools     ToolRunner
	logs      LogSearcher
	timeouts  Timeouts
	recorder  Recorder
	logger    *slog.Logger
}

var _ Core = (*Dispatcher)(nil)

// New creates a Dispatcher over reg.
func New(reg *endpoint.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:  reg,
		answerers: make(map[endpoint.Kind]Answerer),
		timeouts:  DefaultTimeouts,
		logger:    slog.Default().With("component", "dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Add validates rec and stores it, replacing any record with the same name.
func (d *Dispatcher) Add(rec endpoint.Record) error {
	if err := rec.Validate(); err != nil {
		return Malformed("add", err)
	}
	d.registry.Add(rec)
	return nil
}

// Update merges fields into an existing record. Updating an absent name is
// not an error; the boolean reports whether anything was updated.
func (d *Dispatcher) Update(name string, fields endpoint.Fields) (bool, error) {
	if err := endpoint.ValidateName(name); err != nil {
		return false, Malformed("update", err)
	}
	if err := fields.ValidatePartial(); err != nil {
		return false, Malformed("update", err)
	}
	return d.registry.Update(name, fields), nil
}

// Delete removes a record; deleting an absent name is not an error.
func (d *Dispatcher) Delete(name string) (bool, error) {
	if err := endpoint.ValidateName(name); err != nil {
		return false, Malformed("delete", err)
	}
	return d.registry.Delete(name), nil
}

// Get returns a copy of the record registered under name.
func (d *Dispatcher) Get(name string) (endpoint.Record, error) {
	rec, ok := d.registry.Get(name)
	if !ok {
		return endpoint.Record{}, NotFound("get", name)
	}
	return rec, nil
}

// ListAll returns a snapshot of the catalog.
func (d *Dispatcher) ListAll() map[string]endpoint.Record {
	return d.registry.ListAll()
}

// ToolNames lists the tools RunTool accepts.
func (d *Dispatcher) ToolNames() []string {
	if d.tools == nil {
		return []string{}
	}
	return d.tools.Names()
}

// ResolveAndAnswer looks name up and hands the record to the answerer for its
// kind. The answerer's result is returned unmodified.
func (d *Dispatcher) ResolveAndAnswer(ctx context.Context, name string, params QueryParams) (any, error) {
	const op = "query"
	start := time.Now()

	res, err := d.resolveAndAnswer(ctx, name, params)
	d.observe(op, start, err)
	return res, err
}

func (d *Dispatcher) resolveAndAnswer(ctx context.Context, name string, params QueryParams) (any, error) {
	const op = "query"
	if err := params.Normalize(); err != nil {
		return nil, Malformed(op, err)
	}

	rec, ok := d.registry.Get(name)
	if !ok {
		return nil, NotFound(op, name)
	}
	answerer, ok := d.answerers[rec.Kind]
	if !ok {
		return nil, newError(KindMisconfigured, op, fmt.Sprintf("no answerer configured for %s endpoints", rec.Kind), nil)
	}

	res, err := callWithTimeout(ctx, d.timeouts.RAG, func(ctx context.Context) (any, error) {
		return answerer.Answer(ctx, rec, params.Question, params.Mode, params.TopK)
	})
	if err != nil {
		d.logger.WarnContext(ctx, "RAG query failed", "endpoint", name, "error", err)
		return nil, d.classify(op, d.timeouts.RAG, err)
	}
	return res, nil
}

// RunTool executes the named tool with input, uninterpreted.
func (d *Dispatcher) RunTool(ctx context.Context, toolName, input string) (any, error) {
	const op = "tool"
	start := time.Now()

	res, err := d.runTool(ctx, toolName, input)
	d.observe(op, start, err)
	return res, err
}

func (d *Dispatcher) runTool(ctx context.Context, toolName, input string) (any, error) {
	const op = "tool"
	if d.tools == nil || !d.tools.Known(toolName) {
		return nil, newError(KindUnknownTool, op, fmt.Sprintf("Unknown tool '%s'.", toolName), nil)
	}

	res, err := callWithTimeout(ctx, d.timeouts.Tool, func(ctx context.Context) (any, error) {
		return d.tools.Run(ctx, toolName, input)
	})
	if err != nil {
		d.logger.WarnContext(ctx, "Tool execution failed", "tool_name", toolName, "error", err)
		return nil, d.classify(op, d.timeouts.Tool, err)
	}
	return res, nil
}

// SearchLogs forwards a query to the log-search backend.
func (d *Dispatcher) SearchLogs(ctx context.Context, params LogParams) (any, error) {
	const op = "log_search"
	start := time.Now()

	res, err := d.searchLogs(ctx, params)
	d.observe(op, start, err)
	return res, err
}

func (d *Dispatcher) searchLogs(ctx context.Context, params LogParams) (any, error) {
	const op = "log_search"
	if err := params.Normalize(); err != nil {
		return nil, Malformed(op, err)
	}
	if d.logs == nil || !d.logs.Configured() {
		return nil, newError(KindMisconfigured, op, "ELK configuration is not set.", nil)
	}

	res, err := callWithTimeout(ctx, d.timeouts.LogSearch, func(ctx context.Context) (any, error) {
		return d.logs.Search(ctx, params.Query, params.Size, params.APIKey)
	})
	if err != nil {
		d.logger.WarnContext(ctx, "Log search failed", "error", err)
		return nil, newError(KindBackendFailure, op, "ELK query failed", timeoutCause(err, d.timeouts.LogSearch))
	}
	return res, nil
}

func (d *Dispatcher) classify(op string, timeout time.Duration, err error) *Error {
	var de *Error
	switch {
	case errors.As(err, &de):
		return de
	case isBadInput(err):
		return Malformed(op, err)
	default:
		return newError(KindBackendFailure, op, "backend failure", timeoutCause(err, timeout))
	}
}

func (d *Dispatcher) observe(op string, start time.Time, err error) {
	if d.recorder == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
	}
	d.recorder.ObserveDispatch(op, outcome, time.Since(start))
}

func timeoutCause(err error, timeout time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("timed out after %s: %w", timeout, err)
	}
	return err
}

// callWithTimeout runs fn on its own goroutine and stops waiting once the
// timeout passes, whether or not fn honours its context.
func callWithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) (any, error)) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value any
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("collaborator panicked: %v", r)}
			}
		}()
		v, err := fn(ctx)
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
