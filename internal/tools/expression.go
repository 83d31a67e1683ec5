package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/expr-lang/expr"
	"github.com/shopspring/decimal"
)

const maxNodes = 500

// calculator evaluates plain arithmetic. No names are in scope, so anything
// beyond numbers and operators fails to compile.
func calculator(_ context.Context, input string) (any, error) {
	src, err := requireExpression("calculator", input)
	if err != nil {
		return nil, err
	}

	program, err := expr.Compile(src,
		expr.Env(map[string]any{}),
		expr.MaxNodes(maxNodes),
	)
	if err != nil {
		return nil, &InputError{Tool: "calculator", Err: fmt.Errorf("could not parse expression: %w", err)}
	}
	out, err := expr.Run(program, map[string]any{})
	if err != nil {
		return nil, &InputError{Tool: "calculator", Err: fmt.Errorf("evaluation failed: %w", err)}
	}
	f, ok := toFloat(out)
	if !ok {
		return nil, &InputError{Tool: "calculator", Err: fmt.Errorf("expression did not produce a number (got %T)", out)}
	}
	if err := finite(f); err != nil {
		return nil, &InputError{Tool: "calculator", Err: err}
	}
	return out, nil
}

var pythonEnv = map[string]any{
	"True":  true,
	"False": false,
	"None":  nil,
	"pi":    math.Pi,
	"e":     math.E,
}

// python evaluates a Python-flavoured expression: literals, arithmetic
// (including **), comparisons, and/or/not, and a small set of builtins.
func python(_ context.Context, input string) (any, error) {
	src, err := requireExpression("python", input)
	if err != nil {
		return nil, err
	}

	program, err := expr.Compile(src,
		expr.Env(pythonEnv),
		expr.MaxNodes(maxNodes),
		expr.DisableBuiltin("round"),
		expr.Function("round", pyRound),
		expr.Function("sqrt", pySqrt),
		expr.Function("pow", pyPow),
		expr.Function("str", pyStr),
	)
	if err != nil {
		return nil, &InputError{Tool: "python", Err: fmt.Errorf("could not parse expression: %w", err)}
	}
	out, err := expr.Run(program, pythonEnv)
	if err != nil {
		return nil, &InputError{Tool: "python", Err: fmt.Errorf("evaluation failed: %w", err)}
	}
	if err := finiteValue(out); err != nil {
		return nil, &InputError{Tool: "python", Err: err}
	}
	return out, nil
}

// pyRound rounds half to even like Python. round(x) returns an int,
// round(x, n) a float.
func pyRound(params ...any) (any, error) {
	if len(params) < 1 || len(params) > 2 {
		return nil, fmt.Errorf("round expects 1 or 2 arguments, got %d", len(params))
	}
	x, ok := toFloat(params[0])
	if !ok {
		return nil, fmt.Errorf("round requires a number, got %T", params[0])
	}
	if err := finite(x); err != nil {
		return nil, fmt.Errorf("cannot round: %w", err)
	}
	d := exactDecimal(x)
	if len(params) == 1 {
		return d.RoundBank(0).IntPart(), nil
	}
	places, ok := params[1].(int)
	if !ok {
		return nil, fmt.Errorf("round digits must be an integer, got %T", params[1])
	}
	f, _ := d.RoundBank(int32(places)).Float64()
	return f, nil
}

// exactDecimal is the exact decimal expansion of x, so 2.675 (stored as
// 2.67499999...) rounds down the way Python does.
func exactDecimal(x float64) decimal.Decimal {
	if x == 0 {
		return decimal.Zero
	}
	frac, exp := math.Frexp(x)
	mant := big.NewInt(int64(frac * (1 << 53)))
	exp -= 53
	if exp >= 0 {
		return decimal.NewFromBigInt(mant.Lsh(mant, uint(exp)), 0)
	}
	five := new(big.Int).Exp(big.NewInt(5), big.NewInt(int64(-exp)), nil)
	return decimal.NewFromBigInt(mant.Mul(mant, five), int32(exp))
}

func pySqrt(params ...any) (any, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("sqrt expects 1 argument, got %d", len(params))
	}
	x, ok := toFloat(params[0])
	if !ok {
		return nil, fmt.Errorf("sqrt requires a number, got %T", params[0])
	}
	if x < 0 {
		return nil, fmt.Errorf("math domain error")
	}
	return math.Sqrt(x), nil
}

func pyPow(params ...any) (any, error) {
	if len(params) != 2 {
		return nil, fmt.Errorf("pow expects 2 arguments, got %d", len(params))
	}
	base, ok1 := toFloat(params[0])
	exp, ok2 := toFloat(params[1])
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("pow requires numbers")
	}
	out := math.Pow(base, exp)
	if err := finite(out); err != nil {
		return nil, fmt.Errorf("pow(%v, %v): %w", base, exp, err)
	}
	return out, nil
}

func pyStr(params ...any) (any, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("str expects 1 argument, got %d", len(params))
	}
	return fmt.Sprint(params[0]), nil
}

// finite rejects values encoding/json cannot represent.
func finite(f float64) error {
	switch {
	case math.IsNaN(f):
		return errors.New("result is not a number")
	case math.IsInf(f, 0):
		return errors.New("result is infinite (division by zero or overflow)")
	}
	return nil
}

// finiteValue applies finite to v and to anything nested in it.
func finiteValue(v any) error {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if err := finiteValue(item); err != nil {
				return err
			}
		}
	case map[string]any:
		for _, item := range t {
			if err := finiteValue(item); err != nil {
				return err
			}
		}
	default:
		if f, ok := toFloat(v); ok {
			return finite(f)
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case decimal.Decimal:
		return n.InexactFloat64(), true
	default:
		return 0, false
	}
}
