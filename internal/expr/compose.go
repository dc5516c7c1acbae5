package expr

import (
	"fmt"

	"github.com/san-kum/taysim/internal/dynamo"
	"github.com/san-kum/taysim/internal/poly"
	"github.com/san-kum/taysim/internal/precision"
)

// ComposePoly substitutes the step's dense-output polynomials into the
// expression, yielding the trigger's own dense polynomial truncated to
// degree n. states carries one polynomial per state variable in the order
// the expression was bound against; timePoly is absolute time as a
// polynomial in the step-local offset.
//
// Nonlinear functions expand as power series about the inner polynomial's
// constant term; a state where no expansion exists (series division by a
// zero constant term, sqrt at or below zero) reports ErrNotEvaluable.
func ComposePoly[T any](ops precision.Arith[T], e *Expr, states []poly.Poly[T], timePoly poly.Poly[T], n int) (poly.Poly[T], error) {
	if len(states) != len(e.vars) {
		return nil, fmt.Errorf("%w: expression over %d variables, %d state polynomials",
			dynamo.ErrDimensionMismatch, len(e.vars), len(states))
	}
	return composeNode(ops, e.root, states, timePoly, n)
}

func composeNode[T any](ops precision.Arith[T], nd node, states []poly.Poly[T], timePoly poly.Poly[T], n int) (poly.Poly[T], error) {
	switch nd := nd.(type) {
	case *numNode:
		v, err := ops.FromString(nd.text)
		if err != nil {
			return nil, err
		}
		return poly.Constant(ops, v, n), nil
	case *varNode:
		return fit(ops, states[nd.idx], n), nil
	case *timeNode:
		return fit(ops, timePoly, n), nil
	case *negNode:
		a, err := composeNode(ops, nd.arg, states, timePoly, n)
		if err != nil {
			return nil, err
		}
		return poly.Scale(ops, a, ops.FromFloat(-1)), nil
	case *binNode:
		l, err := composeNode(ops, nd.lhs, states, timePoly, n)
		if err != nil {
			return nil, err
		}
		r, err := composeNode(ops, nd.rhs, states, timePoly, n)
		if err != nil {
			return nil, err
		}
		switch nd.op {
		case '+':
			return poly.Add(ops, l, r), nil
		case '-':
			return poly.Sub(ops, l, r), nil
		case '*':
			return poly.Mul(ops, l, r, n), nil
		default:
			q, ok := poly.Div(ops, l, r, n)
			if !ok {
				return nil, fmt.Errorf("%w: series division by zero constant term", ErrNotEvaluable)
			}
			return q, nil
		}
	case *powNode:
		base, err := composeNode(ops, nd.base, states, timePoly, n)
		if err != nil {
			return nil, err
		}
		acc := poly.Constant(ops, ops.FromFloat(1), n)
		for i := 0; i < nd.exp; i++ {
			acc = poly.Mul(ops, acc, base, n)
		}
		return acc, nil
	case *callNode:
		u, err := composeNode(ops, nd.arg, states, timePoly, n)
		if err != nil {
			return nil, err
		}
		return composeCall(ops, nd.fn, u, n)
	default:
		panic(fmt.Sprintf("expr: unknown node %T", nd))
	}
}

// composeCall expands fn(u0 + v) as a power series in v, the inner
// polynomial with its constant term removed.
func composeCall[T any](ops precision.Arith[T], fn string, u poly.Poly[T], n int) (poly.Poly[T], error) {
	u0 := u[0]
	v := u.Clone()
	v[0] = ops.FromFloat(0)

	switch fn {
	case "sin", "cos":
		sinU0, cosU0 := ops.Sin(u0), ops.Cos(u0)
		// Derivative cycle of sin at u0; cos starts one step later.
		cycle := [4]T{sinU0, cosU0, ops.Neg(sinU0), ops.Neg(cosU0)}
		start := 0
		if fn == "cos" {
			start = 1
		}
		result := poly.Constant(ops, cycle[start%4], n)
		term := poly.Constant(ops, ops.FromFloat(1), n)
		invFact := ops.FromFloat(1)
		for k := 1; k <= n; k++ {
			term = poly.Mul(ops, term, v, n)
			invFact = ops.Div(invFact, ops.FromFloat(float64(k)))
			result = poly.Add(ops, result, poly.Scale(ops, term, ops.Mul(cycle[(start+k)%4], invFact)))
		}
		return result, nil

	case "exp":
		result := poly.Constant(ops, ops.FromFloat(1), n)
		term := poly.Constant(ops, ops.FromFloat(1), n)
		invFact := ops.FromFloat(1)
		for k := 1; k <= n; k++ {
			term = poly.Mul(ops, term, v, n)
			invFact = ops.Div(invFact, ops.FromFloat(float64(k)))
			result = poly.Add(ops, result, poly.Scale(ops, term, invFact))
		}
		return poly.Scale(ops, result, ops.Exp(u0)), nil

	case "sqrt":
		if ops.Sign(u0) <= 0 {
			return nil, fmt.Errorf("%w: sqrt expansion at non-positive value", ErrNotEvaluable)
		}
		w := poly.Scale(ops, v, ops.Div(ops.FromFloat(1), u0))
		result := poly.Constant(ops, ops.FromFloat(1), n)
		term := poly.Constant(ops, ops.FromFloat(1), n)
		coef := ops.FromFloat(1)
		half := ops.FromFloat(0.5)
		for k := 1; k <= n; k++ {
			term = poly.Mul(ops, term, w, n)
			coef = ops.Div(ops.Mul(coef, ops.Sub(half, ops.FromFloat(float64(k-1)))), ops.FromFloat(float64(k)))
			result = poly.Add(ops, result, poly.Scale(ops, term, coef))
		}
		return poly.Scale(ops, result, ops.Sqrt(u0)), nil

	default:
		panic("expr: unknown function " + fn)
	}
}

func fit[T any](ops precision.Arith[T], p poly.Poly[T], n int) poly.Poly[T] {
	if len(p) == n+1 {
		return p
	}
	out := poly.Constant(ops, ops.FromFloat(0), n)
	copy(out, p[:min(len(p), n+1)])
	return out
}
