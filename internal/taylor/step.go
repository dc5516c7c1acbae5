package taylor

import (
	"github.com/san-kum/taysim/internal/poly"
	"github.com/san-kum/taysim/internal/precision"
)

// Step is the dense-output product of one accepted step: a polynomial per
// state variable in the signed offset tau from the step start, valid over
// [0, H] forward or [H, 0] backward.
type Step[T any] struct {
	ops   precision.Arith[T]
	t0    float64
	h     float64
	order int
	polys []poly.Poly[T]
}

// Start is the absolute time at the step's start.
func (s *Step[T]) Start() float64 { return s.t0 }

// Extent is the signed step length.
func (s *Step[T]) Extent() float64 { return s.h }

// EndTime is the absolute time at the step's far end.
func (s *Step[T]) EndTime() float64 { return s.t0 + s.h }

// Order is the polynomial degree of the dense output.
func (s *Step[T]) Order() int { return s.order }

// Polys returns the dense-output polynomials, one per state variable.
// Callers must not mutate them.
func (s *Step[T]) Polys() []poly.Poly[T] { return s.polys }

// StateAt materializes the state at signed offset tau from the step start.
func (s *Step[T]) StateAt(tau T) []T {
	out := make([]T, len(s.polys))
	for i, p := range s.polys {
		out[i] = p.Eval(s.ops, tau)
	}
	return out
}

// End returns the state advanced to the step's far end.
func (s *Step[T]) End() []T {
	return s.StateAt(s.ops.FromFloat(s.h))
}

// Widen converts a working-precision state to float64 for recording.
func (s *Step[T]) Widen(x []T) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = s.ops.Float(v)
	}
	return out
}
