package metrics

import (
	"math"

	"github.com/san-kum/taysim/internal/dynamo"
)

// Stability reports the fraction of observed samples whose components all
// stay inside the bound. A NaN or Inf component counts as a violation.
type Stability struct {
	bound      float64
	violations int
	samples    int
}

func NewStability(bound float64) *Stability {
	return &Stability{bound: bound}
}

func (s *Stability) Name() string { return "stability" }

func (s *Stability) Observe(x dynamo.State, t float64) {
	s.samples++
	for _, v := range x {
		if math.IsNaN(v) || math.Abs(v) > s.bound {
			s.violations++
			return
		}
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}
