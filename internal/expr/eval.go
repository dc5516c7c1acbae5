package expr

import (
	"errors"
	"fmt"

	"github.com/san-kum/taysim/internal/dynamo"
	"github.com/san-kum/taysim/internal/precision"
)

// ErrNotEvaluable reports a state where the expression has no value or no
// series expansion: division by zero, or sqrt away from its domain.
var ErrNotEvaluable = errors.New("expr: expression not evaluable at this state")

// Eval computes the trigger value at one state and time.
func Eval[T any](ops precision.Arith[T], e *Expr, state []T, t T) (T, error) {
	var zero T
	if len(state) != len(e.vars) {
		return zero, fmt.Errorf("%w: expression over %d variables, state has %d",
			dynamo.ErrDimensionMismatch, len(e.vars), len(state))
	}
	return evalNode(ops, e.root, state, t)
}

func evalNode[T any](ops precision.Arith[T], n node, state []T, t T) (T, error) {
	var zero T
	switch n := n.(type) {
	case *numNode:
		// Literals convert from source text so wide precisions keep every
		// digit the user wrote.
		return ops.FromString(n.text)
	case *varNode:
		return state[n.idx], nil
	case *timeNode:
		return t, nil
	case *negNode:
		v, err := evalNode(ops, n.arg, state, t)
		if err != nil {
			return zero, err
		}
		return ops.Neg(v), nil
	case *binNode:
		l, err := evalNode(ops, n.lhs, state, t)
		if err != nil {
			return zero, err
		}
		r, err := evalNode(ops, n.rhs, state, t)
		if err != nil {
			return zero, err
		}
		switch n.op {
		case '+':
			return ops.Add(l, r), nil
		case '-':
			return ops.Sub(l, r), nil
		case '*':
			return ops.Mul(l, r), nil
		default:
			if ops.Sign(r) == 0 {
				return zero, fmt.Errorf("%w: division by zero", ErrNotEvaluable)
			}
			return ops.Div(l, r), nil
		}
	case *powNode:
		b, err := evalNode(ops, n.base, state, t)
		if err != nil {
			return zero, err
		}
		acc := ops.FromFloat(1)
		for i := 0; i < n.exp; i++ {
			acc = ops.Mul(acc, b)
		}
		return acc, nil
	case *callNode:
		v, err := evalNode(ops, n.arg, state, t)
		if err != nil {
			return zero, err
		}
		switch n.fn {
		case "sin":
			return ops.Sin(v), nil
		case "cos":
			return ops.Cos(v), nil
		case "exp":
			return ops.Exp(v), nil
		default:
			if ops.Sign(v) < 0 {
				return zero, fmt.Errorf("%w: sqrt of negative value", ErrNotEvaluable)
			}
			return ops.Sqrt(v), nil
		}
	default:
		panic(fmt.Sprintf("expr: unknown node %T", n))
	}
}
