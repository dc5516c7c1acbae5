package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/san-kum/taysim/internal/dynamo"
	"github.com/san-kum/taysim/internal/events"
	"github.com/san-kum/taysim/internal/precision"
)

// Runner drives a dense-step source across a span. Each step is scanned
// for event crossings before it is accepted, so callbacks see crossing
// states and a terminal firing can cut the step short.
//
// A Runner is not safe for concurrent use; run one per goroutine.
type Runner[T any] struct {
	ops       precision.Arith[T]
	src       Source[T]
	det       *events.Detector[T]
	scanner   *events.Scanner[T]
	metrics   []dynamo.Metric
	observers []Observer
	energy    func(x dynamo.State) float64
	pool      *StatePool
	log       *slog.Logger
}

// NewRunner builds a runner over src. det may be nil, in which case steps
// are accepted without scanning.
func NewRunner[T any](ops precision.Arith[T], src Source[T], det *events.Detector[T], log *slog.Logger) *Runner[T] {
	if log == nil {
		log = slog.Default()
	}
	r := &Runner[T]{
		ops:  ops,
		src:  src,
		det:  det,
		pool: NewStatePool(src.Dim()),
		log:  log,
	}
	if det != nil {
		r.scanner = events.NewScanner(det, log)
	}
	return r
}

func (r *Runner[T]) AddMetric(m dynamo.Metric) { r.metrics = append(r.metrics, m) }

func (r *Runner[T]) AddObserver(o Observer) { r.observers = append(r.observers, o) }

// Scanner exposes the event scanner so firing observers can be attached,
// or nil when the runner was built without a detector.
func (r *Runner[T]) Scanner() *events.Scanner[T] { return r.scanner }

// SetEnergy installs the function behind the drift figure in Result.
func (r *Runner[T]) SetEnergy(f func(x dynamo.State) float64) { r.energy = f }

func (r *Runner[T]) Run(ctx context.Context, x0 []T, cfg Config) (*Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(x0) != r.src.Dim() {
		return nil, fmt.Errorf("%w: source over %d variables, initial state has %d",
			dynamo.ErrDimensionMismatch, r.src.Dim(), len(x0))
	}
	steps := int(cfg.Duration / math.Abs(cfg.Dt))
	if steps < 1 {
		return nil, fmt.Errorf("%w: duration %v is shorter than one step of %v",
			dynamo.ErrParameterBounds, cfg.Duration, cfg.Dt)
	}
	every := cfg.RecordEvery
	if every < 1 {
		every = 1
	}

	for _, m := range r.metrics {
		m.Reset()
	}
	if r.det != nil {
		r.det.ResetCooldowns()
	}

	x := make([]T, len(x0))
	copy(x, x0)
	t := cfg.Start

	result := &Result{
		Times:   make([]float64, 0, steps/every+2),
		States:  make([]dynamo.State, 0, steps/every+2),
		Metrics: make(map[string]float64),
	}
	record := func(xs dynamo.State, at float64) {
		result.States = append(result.States, xs)
		result.Times = append(result.Times, at)
	}

	start := r.widen(x)
	record(start, t)
	e0 := 0.0
	if r.energy != nil {
		e0 = r.energy(start)
	}

	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		r.observe(x, t)

		st, err := r.src.Step(x, t, cfg.Dt)
		if err != nil {
			r.log.Error("sim: step failed", "t", t, "step", i, "err", err)
			return result, err
		}

		if r.scanner != nil {
			out, err := r.scanner.Scan(st)
			if err != nil {
				return result, err
			}
			result.Events = append(result.Events, out.Fired...)
			if out.Truncated() {
				result.Halt = out.TerminalFiring
				if out.Disposition == events.HaltAtEvent {
					tau := r.ops.FromFloat(out.TruncatedAt)
					if cfg.Dt < 0 {
						tau = r.ops.Neg(tau)
					}
					x = st.StateAt(tau)
					t = out.TerminalFiring.Time
					record(r.widen(x), t)
					result.StepsTaken++
				}
				break
			}
		}

		x = st.End()
		t = st.EndTime()
		result.StepsTaken++
		if (i+1)%every == 0 || i == steps-1 {
			record(r.widen(x), t)
		}
	}

	if r.energy != nil && e0 != 0 {
		result.EnergyDrift = math.Abs(r.energy(r.widen(x))-e0) / math.Abs(e0)
	}
	for _, m := range r.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	r.log.Debug("sim: run complete",
		"steps", result.StepsTaken, "events", len(result.Events), "halted", result.Halted())
	return result, nil
}

// RunWithCallback streams accepted states without building a trace,
// stopping early when the callback returns false. Terminal events end the
// stream after one final call at the halt state.
func (r *Runner[T]) RunWithCallback(ctx context.Context, x0 []T, cfg Config, fn func(x dynamo.State, t float64) bool) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	if len(x0) != r.src.Dim() {
		return fmt.Errorf("%w: source over %d variables, initial state has %d",
			dynamo.ErrDimensionMismatch, r.src.Dim(), len(x0))
	}
	steps := int(cfg.Duration / math.Abs(cfg.Dt))
	if steps < 1 {
		return fmt.Errorf("%w: duration %v is shorter than one step of %v",
			dynamo.ErrParameterBounds, cfg.Duration, cfg.Dt)
	}
	if r.det != nil {
		r.det.ResetCooldowns()
	}

	x := make([]T, len(x0))
	copy(x, x0)
	t := cfg.Start

	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !fn(r.widen(x), t) {
			return nil
		}

		st, err := r.src.Step(x, t, cfg.Dt)
		if err != nil {
			return err
		}
		if r.scanner != nil {
			out, err := r.scanner.Scan(st)
			if err != nil {
				return err
			}
			if out.Truncated() {
				if out.Disposition == events.HaltAtEvent {
					tau := r.ops.FromFloat(out.TruncatedAt)
					if cfg.Dt < 0 {
						tau = r.ops.Neg(tau)
					}
					fn(r.widen(st.StateAt(tau)), out.TerminalFiring.Time)
				}
				return nil
			}
		}
		x = st.End()
		t = st.EndTime()
	}
	fn(r.widen(x), t)
	return nil
}

// observe feeds the widened state to metrics and observers through a
// pooled scratch buffer.
func (r *Runner[T]) observe(x []T, t float64) {
	if len(r.metrics) == 0 && len(r.observers) == 0 {
		return
	}
	buf := r.pool.Get()
	for i, v := range x {
		buf[i] = r.ops.Float(v)
	}
	for _, m := range r.metrics {
		m.Observe(buf, t)
	}
	for _, o := range r.observers {
		o.OnStep(buf, t)
	}
	r.pool.Put(buf)
}

func (r *Runner[T]) widen(x []T) dynamo.State {
	out := make(dynamo.State, len(x))
	for i, v := range x {
		out[i] = r.ops.Float(v)
	}
	return out
}
