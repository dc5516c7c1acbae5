// Package expr parses and evaluates event trigger expressions: scalar
// functions of the state variables and time whose zero crossings the
// scanner watches for.
//
// An expression is parsed once at registration against the owning system's
// variable names; malformed sources and unknown identifiers fail there,
// never during scanning. A parsed [Expr] can be evaluated pointwise with
// [Eval] or composed with the step's dense-output polynomials by
// [ComposePoly], which produces the trigger's own dense polynomial by
// truncated power-series arithmetic.
//
// Grammar: the usual infix arithmetic (+, -, *, /, unary minus), integer
// powers via ^, parentheses, and the functions sin, cos, exp and sqrt.
// The identifier t denotes absolute time and pi the circle constant; all
// other identifiers must name state variables.
package expr

import (
	"fmt"

	"github.com/san-kum/taysim/internal/dynamo"
)

// Expr is a parsed, validated trigger expression. Immutable after Parse;
// safe to share across steps and goroutines.
type Expr struct {
	src  string
	vars []string
	root node
}

// Parse builds an expression over the given state variable names.
// Identifier resolution and syntax problems surface here as a *ParseError
// wrapping dynamo.ErrBadTrigger.
func Parse(src string, vars []string) (*Expr, error) {
	p := &parser{src: src, vars: vars}
	root, err := p.parse()
	if err != nil {
		return nil, err
	}
	e := &Expr{src: src, root: root}
	e.vars = append(e.vars, vars...)
	return e, nil
}

// String returns the source form the expression was parsed from.
func (e *Expr) String() string { return e.src }

// Vars returns the state variable names the expression was bound against.
func (e *Expr) Vars() []string {
	out := make([]string, len(e.vars))
	copy(out, e.vars)
	return out
}

// ParseError reports a rejected trigger source.
type ParseError struct {
	Src string
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("trigger %q: %s (offset %d)", e.Src, e.Msg, e.Pos)
}

func (e *ParseError) Unwrap() error { return dynamo.ErrBadTrigger }

// AST nodes. The tree is immutable after parsing.
type node interface{ isNode() }

type numNode struct {
	text string
}

type varNode struct {
	name string
	idx  int
}

type timeNode struct{}

type negNode struct{ arg node }

type binNode struct {
	op  byte // one of + - * /
	lhs node
	rhs node
}

type powNode struct {
	base node
	exp  int
}

type callNode struct {
	fn  string
	arg node
}

func (*numNode) isNode()  {}
func (*varNode) isNode()  {}
func (*timeNode) isNode() {}
func (*negNode) isNode()  {}
func (*binNode) isNode()  {}
func (*powNode) isNode()  {}
func (*callNode) isNode() {}
