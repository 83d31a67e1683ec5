package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Func defines the signature for any tool. input is passed through untouched
// from the caller.
type Func func(ctx context.Context, input string) (any, error)

// MaxInputLength bounds the input accepted by any tool.
const MaxInputLength = 4096

var builtinRegistry = make(map[string]Func)

// init runs when the package is loaded, registering the built-in tools
func init() {
	builtinRegistry["calculator"] = calculator
	builtinRegistry["system_time"] = systemTime(time.Now)
	builtinRegistry["python"] = python
}

// InputError reports that a tool rejected its input. It is the caller's
// fault, not the tool's.
type InputError struct {
	Tool string
	Err  error
}

func (e *InputError) Error() string { return fmt.Sprintf("%s: %v", e.Tool, e.Err) }
func (e *InputError) Unwrap() error { return e.Err }
func (e *InputError) BadInput() bool { return true }

// Runner executes registered tools by name.
type Runner struct {
	tools  map[string]Func
	logger *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock replaces the clock used by system_time.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.tools["system_time"] = systemTime(now) }
}

// WithTool registers an extra tool, replacing any built-in of the same name.
func WithTool(name string, fn Func) Option {
	return func(r *Runner) { r.tools[name] = fn }
}

// NewRunner creates a Runner with every built-in tool registered.
func NewRunner(logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		tools:  make(map[string]Func, len(builtinRegistry)),
		logger: logger.With("component", "tools"),
	}
	for name, fn := range builtinRegistry {
		r.tools[name] = fn
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Known reports whether name is a registered tool.
func (r *Runner) Known(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Names returns the registered tool names, sorted.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes the named tool.
func (r *Runner) Run(ctx context.Context, name, input string) (any, error) {
	fn, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool '%s' is not registered", name)
	}
	if len(input) > MaxInputLength {
		return nil, &InputError{Tool: name, Err: fmt.Errorf("input exceeds %d bytes", MaxInputLength)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.logger.DebugContext(ctx, "Running tool", "tool_name", name)
	res, err := fn(ctx, input)
	if err != nil {
		var ie *InputError
		if !errors.As(err, &ie) {
			r.logger.ErrorContext(ctx, "Tool failed", "tool_name", name, "error", err)
		}
		return nil, err
	}
	return res, nil
}

func systemTime(now func() time.Time) Func {
	return func(_ context.Context, _ string) (any, error) {
		t := now()
		zone, _ := t.Zone()
		return map[string]any{
			"utc":      t.UTC().Format(time.RFC3339),
			"local":    t.Format(time.RFC3339),
			"unix":     t.Unix(),
			"timezone": zone,
		}, nil
	}
}

func requireExpression(tool, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", &InputError{Tool: tool, Err: errors.New("expression is required")}
	}
	return input, nil
}
