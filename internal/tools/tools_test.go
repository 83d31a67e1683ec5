package tools

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(opts ...Option) *Runner {
	return NewRunner(slog.Default(), opts...)
}

func TestRunnerNames(t *testing.T) {
	r := newTestRunner()
	assert.Equal(t, []string{"calculator", "python", "system_time"}, r.Names())
	assert.True(t, r.Known("calculator"))
	assert.False(t, r.Known("shell"))
}

func TestCalculator(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		want    any
		wantErr string
	}{
		{name: "Precedence", input: "2 + 3 * 4", want: 14},
		{name: "Parentheses", input: "(2 + 3) * 4", want: 20},
		{name: "Division is float", input: "7 / 2", want: 3.5},
		{name: "Power", input: "2 ** 10", want: float64(1024)},
		{name: "Empty", input: "   ", wantErr: "expression is required"},
		{name: "Syntax error", input: "2 +", wantErr: "could not parse expression"},
		{name: "Unknown name", input: "x + 1", wantErr: "could not parse expression"},
		{name: "Non numeric", input: `"a" + "b"`, wantErr: "did not produce a number"},
		{name: "Division by zero", input: "1/0", wantErr: "result is infinite"},
		{name: "Overflow", input: "1e308 * 10", wantErr: "result is infinite"},
	}

	r := newTestRunner()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Run(context.Background(), "calculator", tc.input)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				var ie *InputError
				assert.True(t, errors.As(err, &ie), "expected an InputError")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPython(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		want    any
		wantErr bool
	}{
		{name: "Round with digits", input: "round(3.14159, 2)", want: 3.14},
		{name: "Round to int", input: "round(2.5)", want: int64(2)},
		{name: "Round uses binary value", input: "round(2.675, 2)", want: 2.67},
		{name: "Round exact half to even", input: "round(0.125, 2)", want: 0.12},
		{name: "Round negative digits", input: "round(1250, -2)", want: float64(1200)},
		{name: "Abs", input: "abs(-4)", want: 4},
		{name: "Max", input: "max(1, 9, 3)", want: 9},
		{name: "Len", input: `len("phoenix")`, want: 7},
		{name: "Min", input: "min(4, 2, 8)", want: 2},
		{name: "Upper", input: `upper("abc")`, want: "ABC"},
		{name: "Lower", input: `lower("ABC")`, want: "abc"},
		{name: "Sqrt", input: "sqrt(16)", want: float64(4)},
		{name: "Pow", input: "pow(2, 3)", want: float64(8)},
		{name: "Booleans", input: "True and not False", want: true},
		{name: "Str", input: "str(42)", want: "42"},
		{name: "Sqrt of negative", input: "sqrt(-1)", wantErr: true},
		{name: "Pow without real result", input: "pow(-1, 0.5)", wantErr: true},
		{name: "Division by zero", input: "1 / 0", wantErr: true},
		{name: "Infinity inside a list", input: "[1, 1 / 0]", wantErr: true},
		{name: "Round of infinity", input: "round(1 / 0)", wantErr: true},
		{name: "Import", input: "__import__('os')", wantErr: true},
	}

	r := newTestRunner()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Run(context.Background(), "python", tc.input)
			if tc.wantErr {
				require.Error(t, err)
				var ie *InputError
				assert.True(t, errors.As(err, &ie))
				assert.True(t, ie.BadInput())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExactDecimal(t *testing.T) {
	testCases := []struct {
		in   float64
		want string
	}{
		{in: 0, want: "0"},
		{in: 2.5, want: "2.5"},
		{in: -0.75, want: "-0.75"},
		{in: 1024, want: "1024"},
		{in: 0.1, want: "0.1000000000000000055511151231257827021181583404541015625"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, exactDecimal(tc.in).String())
	}
}

func TestSystemTime(t *testing.T) {
	fixed := time.Date(2025, 3, 14, 15, 9, 26, 0, time.FixedZone("EST", -5*3600))
	r := newTestRunner(WithClock(func() time.Time { return fixed }))

	got, err := r.Run(context.Background(), "system_time", "")
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"utc":      "2025-03-14T20:09:26Z",
		"local":    "2025-03-14T15:09:26-05:00",
		"unix":     fixed.Unix(),
		"timezone": "EST",
	}, got)
}

func TestRunRejectsOversizedInput(t *testing.T) {
	r := newTestRunner()
	_, err := r.Run(context.Background(), "calculator", strings.Repeat("1+", MaxInputLength))
	var ie *InputError
	require.True(t, errors.As(err, &ie))
	assert.Contains(t, err.Error(), "exceeds")
}

func TestRunHonoursCancelledContext(t *testing.T) {
	r := newTestRunner()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx, "calculator", "1 + 1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithTool(t *testing.T) {
	r := newTestRunner(WithTool("echo", func(_ context.Context, input string) (any, error) {
		return input, nil
	}))
	got, err := r.Run(context.Background(), "echo", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}
