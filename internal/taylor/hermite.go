package taylor

import (
	"fmt"
	"math"

	"github.com/san-kum/taysim/internal/dynamo"
	"github.com/san-kum/taysim/internal/poly"
	"github.com/san-kum/taysim/internal/precision"
)

// HermiteSource wraps a classical one-step integrator as a dense-step
// producer: the endpoint states and slopes of each step pin a cubic
// interpolant per variable. Dense output is third order regardless of the
// integrator's own order, which is enough to locate crossings the
// integrator resolves. Double precision only.
type HermiteSource struct {
	ops precision.Arith[float64]
	sys dynamo.System
	ig  dynamo.Integrator
}

func NewHermiteSource(sys dynamo.System, ig dynamo.Integrator) *HermiteSource {
	return &HermiteSource{ops: precision.ForDouble(), sys: sys, ig: ig}
}

func (hs *HermiteSource) Dim() int { return hs.sys.StateDim() }

// Step advances by h through the wrapped integrator and fits the cubic
// matching both endpoint states and derivatives.
func (hs *HermiteSource) Step(x []float64, t0, h float64) (*Step[float64], error) {
	if len(x) != hs.sys.StateDim() {
		return nil, &dynamo.SimulationError{
			Time: t0,
			Wrapped: fmt.Errorf("%w: state has %d components, system has %d",
				dynamo.ErrDimensionMismatch, len(x), hs.sys.StateDim()),
		}
	}
	if h == 0 || math.IsNaN(h) || math.IsInf(h, 0) {
		return nil, &dynamo.SimulationError{
			Time:    t0,
			Wrapped: fmt.Errorf("%w: step from t=%g by h=%g", dynamo.ErrParameterBounds, t0, h),
		}
	}

	x0 := dynamo.State(x).Clone()
	f0 := hs.sys.Derive(x0, t0)
	x1 := hs.ig.Step(hs.sys, x0, t0, h)
	if !x1.IsValid() {
		return nil, &dynamo.SimulationError{
			Time:    t0,
			State:   x1,
			Wrapped: fmt.Errorf("%w: integrator left the finite range", dynamo.ErrUnstable),
		}
	}
	f1 := hs.sys.Derive(x1, t0+h)

	polys := make([]poly.Poly[float64], len(x0))
	h2 := h * h
	h3 := h2 * h
	for i := range x0 {
		d := x1[i] - x0[i]
		a := (3*d - (2*f0[i]+f1[i])*h) / h2
		b := (-2*d + (f0[i]+f1[i])*h) / h3
		polys[i] = poly.Poly[float64]{x0[i], f0[i], a, b}
	}
	return &Step[float64]{ops: hs.ops, t0: t0, h: h, order: 3, polys: polys}, nil
}
