package sim

import (
	"fmt"
	"math"

	"github.com/san-kum/taysim/internal/dynamo"
	"github.com/san-kum/taysim/internal/events"
	"github.com/san-kum/taysim/internal/taylor"
)

// Source produces dense steps of the flow about successive base points.
// Both the series stepper and the Hermite fallback satisfy it.
type Source[T any] interface {
	Dim() int
	Step(x []T, t0, h float64) (*taylor.Step[T], error)
}

// Observer sees every step a run starts from. Calls arrive on the runner
// goroutine; implementations must copy what they keep, the state slice is
// reused.
type Observer interface {
	OnStep(x dynamo.State, t float64)
}

// Config shapes a single run.
type Config struct {
	// Start is the initial time.
	Start float64
	// Dt is the signed step; negative runs the flow backward.
	Dt float64
	// Duration is the total span to cover, always positive.
	Duration float64
	// RecordEvery thins the stored trace to every Nth accepted step;
	// 0 and 1 both keep every step. The final state is always kept.
	RecordEvery int
}

func DefaultConfig() Config {
	return Config{Dt: 1e-2, Duration: 10}
}

func (c Config) validate() error {
	if c.Dt == 0 || math.IsNaN(c.Dt) || math.IsInf(c.Dt, 0) {
		return fmt.Errorf("%w: dt must be finite and non-zero, got %v",
			dynamo.ErrParameterBounds, c.Dt)
	}
	if c.Duration <= 0 || math.IsNaN(c.Duration) || math.IsInf(c.Duration, 0) {
		return fmt.Errorf("%w: duration must be positive and finite, got %v",
			dynamo.ErrParameterBounds, c.Duration)
	}
	if c.RecordEvery < 0 {
		return fmt.Errorf("%w: record interval must be non-negative, got %d",
			dynamo.ErrParameterBounds, c.RecordEvery)
	}
	return nil
}

// Result collects what a run produced. States holds widened float64
// samples whatever the working precision; exact event times live on the
// firings.
type Result struct {
	Times  []float64
	States []dynamo.State
	// Events lists every non-terminal firing across the run, in order.
	Events []events.Firing
	// Halt is the terminal firing that ended the run early, nil when the
	// run covered its full span.
	Halt        *events.Firing
	StepsTaken  int
	EnergyDrift float64
	Metrics     map[string]float64
}

// Halted reports whether a terminal event cut the run short.
func (r *Result) Halted() bool { return r.Halt != nil }

// Final returns the last recorded state and its time.
func (r *Result) Final() (dynamo.State, float64) {
	n := len(r.States)
	if n == 0 {
		return nil, 0
	}
	return r.States[n-1], r.Times[n-1]
}
