package taylor

import (
	"fmt"

	"github.com/san-kum/taysim/internal/dynamo"
	"github.com/san-kum/taysim/internal/expr"
)

// System is a first-order system dx_i/dt = f_i(x, t) given by one
// expression per state variable. Systems are immutable once built.
type System struct {
	name string
	vars []string
	rhs  []*expr.Expr
	srcs []string
}

// NewSystem parses one right-hand-side expression per variable, all bound
// against the same variable list.
func NewSystem(name string, vars []string, rhs []string) (*System, error) {
	if len(vars) == 0 {
		return nil, fmt.Errorf("%w: system %q has no state variables", dynamo.ErrDimensionMismatch, name)
	}
	if len(rhs) != len(vars) {
		return nil, fmt.Errorf("%w: system %q has %d variables but %d equations",
			dynamo.ErrDimensionMismatch, name, len(vars), len(rhs))
	}
	s := &System{
		name: name,
		vars: append([]string(nil), vars...),
		rhs:  make([]*expr.Expr, len(rhs)),
		srcs: append([]string(nil), rhs...),
	}
	for i, src := range rhs {
		e, err := expr.Parse(src, vars)
		if err != nil {
			return nil, fmt.Errorf("equation for %q: %w", vars[i], err)
		}
		s.rhs[i] = e
	}
	return s, nil
}

func (s *System) Name() string { return s.name }

func (s *System) Dim() int { return len(s.vars) }

// Vars returns a copy of the state variable names, in equation order.
func (s *System) Vars() []string {
	v := make([]string, len(s.vars))
	copy(v, s.vars)
	return v
}

// Sources returns the right-hand-side expressions as written.
func (s *System) Sources() []string {
	v := make([]string, len(s.srcs))
	copy(v, s.srcs)
	return v
}
