package taylor

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/san-kum/taysim/internal/dynamo"
	"github.com/san-kum/taysim/internal/expr"
	"github.com/san-kum/taysim/internal/poly"
	"github.com/san-kum/taysim/internal/precision"
)

// Stepper expands a system's trajectory as fixed-order Taylor series, one
// step at a time. Not safe for concurrent use; each runner owns one.
type Stepper[T any] struct {
	ops   precision.Arith[T]
	sys   *System
	order int
	log   *slog.Logger
}

func NewStepper[T any](ops precision.Arith[T], sys *System, order int, log *slog.Logger) (*Stepper[T], error) {
	if order < 1 {
		return nil, fmt.Errorf("%w: series order %d", dynamo.ErrParameterBounds, order)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Stepper[T]{ops: ops, sys: sys, order: order, log: log}, nil
}

func (s *Stepper[T]) Dim() int { return s.sys.Dim() }

func (s *Stepper[T]) System() *System { return s.sys }

// Step expands the trajectory about (t0, x) and returns the dense step of
// signed extent h. The expansion itself is direction-free; h only tells
// consumers how far the series is trusted.
func (s *Stepper[T]) Step(x []T, t0, h float64) (*Step[T], error) {
	ops := s.ops
	if len(x) != s.sys.Dim() {
		return nil, &dynamo.SimulationError{
			Time: t0,
			Wrapped: fmt.Errorf("%w: state has %d components, system %q has %d",
				dynamo.ErrDimensionMismatch, len(x), s.sys.name, s.sys.Dim()),
		}
	}
	if h == 0 || math.IsNaN(h) || math.IsInf(h, 0) || math.IsNaN(t0) || math.IsInf(t0, 0) {
		return nil, &dynamo.SimulationError{
			Time:    t0,
			Wrapped: fmt.Errorf("%w: step from t=%g by h=%g", dynamo.ErrParameterBounds, t0, h),
		}
	}

	dim := s.sys.Dim()
	jets := make([]poly.Poly[T], dim)
	for i := range jets {
		jets[i] = make(poly.Poly[T], 1, s.order+1)
		jets[i][0] = x[i]
	}
	tp := poly.Poly[T]{ops.FromFloat(t0), ops.FromFloat(1)}

	// The kth derivative coefficient of each right-hand side depends only
	// on jet coefficients up to k, so growing all jets in lockstep keeps
	// the recurrence exact.
	next := make([]T, dim)
	for k := 0; k < s.order; k++ {
		div := ops.FromFloat(float64(k + 1))
		for i := 0; i < dim; i++ {
			f, err := expr.ComposePoly(ops, s.sys.rhs[i], jets, tp, k)
			if err != nil {
				return nil, &dynamo.SimulationError{
					Time:    t0,
					Wrapped: fmt.Errorf("series for %q at t=%g: %w", s.sys.vars[i], t0, err),
				}
			}
			next[i] = ops.Div(f[k], div)
		}
		for i := 0; i < dim; i++ {
			jets[i] = append(jets[i], next[i])
		}
	}

	for i := range jets {
		if !jets[i].Finite(ops) {
			return nil, &dynamo.SimulationError{
				Time:    t0,
				Wrapped: fmt.Errorf("%w: nonfinite series for %q", dynamo.ErrUnstable, s.sys.vars[i]),
			}
		}
	}

	return &Step[T]{ops: ops, t0: t0, h: h, order: s.order, polys: jets}, nil
}
