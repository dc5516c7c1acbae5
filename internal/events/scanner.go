package events

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/san-kum/taysim/internal/dynamo"
	"github.com/san-kum/taysim/internal/expr"
	"github.com/san-kum/taysim/internal/poly"
	"github.com/san-kum/taysim/internal/precision"
)

// DenseStep is what the scanner consumes from the integrator: the
// dense-output polynomials of one accepted step, its signed extent, and
// state materialization at an interior offset.
type DenseStep[T any] interface {
	// Start is the absolute time at the step's start.
	Start() float64
	// Extent is the signed step length, negative when integrating backward.
	Extent() float64
	// Polys returns one dense-output polynomial per state variable, in
	// detector variable order, as functions of the offset from Start.
	Polys() []poly.Poly[T]
	// StateAt materializes the state at signed offset tau from Start.
	StateAt(tau T) []T
}

// Firing describes one dispatched crossing.
type Firing struct {
	Event EventID
	Name  string
	// Offset is the crossing's flow-frame offset in [0, |h|).
	Offset float64
	// Time is the absolute time of the crossing.
	Time float64
	// Direction is the observed crossing direction along the flow; Any for
	// ambiguous crossings.
	Direction Direction
	// Ambiguous marks a crossing merged from a sub-tolerance cluster or
	// sitting on a vanishing trigger derivative.
	Ambiguous bool
	// Value is the trigger polynomial evaluated at the crossing, a residual
	// diagnostic near zero.
	Value float64
}

// Outcome is the scanner's report for one step.
type Outcome struct {
	// TruncatedAt is the flow-frame offset where the step effectively
	// ends: the full |h| normally, or the terminal crossing's offset.
	TruncatedAt float64
	// Terminal is the id of the terminal event that cut the step short,
	// nil when the step ran to its full extent.
	Terminal *EventID
	// Disposition is the halting disposition of the terminal event.
	Disposition Disposition
	// TerminalFiring describes the truncating crossing.
	TerminalFiring *Firing
	// Fired lists the non-terminal firings in dispatch order: ascending
	// offset, ties by ascending id.
	Fired []Firing
}

// Truncated reports whether a terminal crossing cut the step short.
func (o *Outcome) Truncated() bool {
	return o.Terminal != nil
}

// Observer receives scanner notifications as they happen, for metrics and
// the live monitor. Implementations must be cheap; they run inside Scan.
type Observer interface {
	OnFiring(f Firing)
	OnTerminal(f Firing)
	OnSuppressed(id EventID, name string, t float64)
}

// Scanner runs event detection over completed steps. It borrows the
// detector's registered events and cooldown state; one scanner serves one
// detector. Not safe for concurrent use.
type Scanner[T any] struct {
	ops       precision.Arith[T]
	det       *Detector[T]
	iso       *poly.Isolator[T]
	log       *slog.Logger
	observers []Observer
}

func NewScanner[T any](det *Detector[T], log *slog.Logger) *Scanner[T] {
	if log == nil {
		log = slog.Default()
	}
	return &Scanner[T]{
		ops: det.ops,
		det: det,
		iso: poly.NewIsolator(det.ops, log),
		log: log,
	}
}

// AddObserver attaches o to every subsequent Scan.
func (s *Scanner[T]) AddObserver(o Observer) {
	s.observers = append(s.observers, o)
}

type candidate[T any] struct {
	ev   *registered[T]
	root poly.Root[T]
	trig poly.Poly[T]
	dir  int
}

// Scan detects and dispatches events over one accepted step.
//
// Each registered trigger is composed with the step's polynomials and its
// roots isolated over [0, |h|). Roots failing the event's direction filter
// are dropped. The earliest terminal root truncates the step; non-terminal
// roots at or past it never fire. Surviving non-terminal roots dispatch in
// crossing order, each checked against its cooldown window at dispatch
// time, so an earlier firing in the same step suppresses later ones.
//
// The scan is deterministic: identical steps against an identical detector
// produce identical outcomes, bit for bit.
func (s *Scanner[T]) Scan(st DenseStep[T]) (Outcome, error) {
	ops := s.ops
	t0 := st.Start()
	h := st.Extent()
	polys := st.Polys()

	if len(polys) != len(s.det.vars) {
		return Outcome{}, &dynamo.SimulationError{
			Time: t0,
			Wrapped: fmt.Errorf("%w: step carries %d polynomials, detector binds %d variables",
				dynamo.ErrDimensionMismatch, len(polys), len(s.det.vars)),
		}
	}
	for i, p := range polys {
		if !p.Finite(ops) {
			return Outcome{}, &dynamo.SimulationError{
				Time: t0,
				Wrapped: fmt.Errorf("%w: nonfinite dense output for variable %q",
					dynamo.ErrInvalidState, s.det.vars[i]),
			}
		}
	}

	absH := math.Abs(h)
	out := Outcome{TruncatedAt: absH}
	if absH == 0 || len(s.det.events) == 0 {
		return out, nil
	}
	forward := h > 0
	if s.det.tracker.SetDirection(forward) {
		s.log.Debug("events: integration direction flipped, cooldowns reset", "time", t0)
	}

	// Composition frame: polynomials in the flow offset u over [0, |h|).
	// Backward steps reflect so u still advances along the integration,
	// and absolute time becomes t0 - u.
	frame := polys
	tp := poly.Poly[T]{ops.FromFloat(t0), ops.FromFloat(1)}
	if !forward {
		frame = make([]poly.Poly[T], len(polys))
		for i, p := range polys {
			frame[i] = p.Reflect(ops)
		}
		tp[1] = ops.FromFloat(-1)
	}
	n := 1
	scale := tp.MaxAbs(ops)
	for _, p := range frame {
		if d := p.Degree(); d > n {
			n = d
		}
		if m := p.MaxAbs(ops); m > scale {
			scale = m
		}
	}

	var cands []candidate[T]
	for _, ev := range s.det.events {
		trig, err := expr.ComposePoly(ops, ev.desc.Trigger, frame, tp, n)
		if err != nil {
			s.log.Warn("events: trigger not expandable over this step, skipping",
				"event", ev.desc.Name, "time", t0, "err", err)
			continue
		}
		if !trig.Finite(ops) {
			s.log.Warn("events: nonfinite trigger polynomial, skipping",
				"event", ev.desc.Name, "time", t0)
			continue
		}
		for _, rt := range s.iso.Isolate(trig, absH, scale) {
			dir := 0
			if !rt.Ambiguous {
				dir = ops.Sign(rt.Deriv)
			}
			if !ev.desc.Direction.Matches(dir, rt.Ambiguous) {
				continue
			}
			cands = append(cands, candidate[T]{ev: ev, root: rt, trig: trig, dir: dir})
		}
	}
	if len(cands) == 0 {
		return out, nil
	}

	// Earliest terminal root wins; a tie inside the merge tolerance goes to
	// the lower event id. Candidates arrive in id order, so keeping the
	// incumbent on ties resolves both at once.
	mtol := ops.FromFloat(precision.MergeTol(ops.Eps(), n, absH))
	var term *candidate[T]
	for i := range cands {
		c := &cands[i]
		if c.ev.desc.Kind != Terminal {
			continue
		}
		if term == nil || ops.Cmp(c.root.Offset, ops.Sub(term.root.Offset, mtol)) < 0 {
			term = c
		}
	}

	// Non-terminal roots at or past the truncation point lie beyond the
	// step that actually happened.
	nts := make([]*candidate[T], 0, len(cands))
	for i := range cands {
		c := &cands[i]
		if c.ev.desc.Kind != NonTerminal {
			continue
		}
		if term != nil && ops.Cmp(c.root.Offset, term.root.Offset) >= 0 {
			continue
		}
		nts = append(nts, c)
	}
	sort.SliceStable(nts, func(i, j int) bool {
		if d := ops.Cmp(nts[i].root.Offset, nts[j].root.Offset); d != 0 {
			return d < 0
		}
		return nts[i].ev.id < nts[j].ev.id
	})
	for _, c := range nts {
		s.dispatch(st, c, t0, forward, &out)
	}

	if term != nil {
		f := s.firing(term, t0, forward)
		id := term.ev.id
		out.TruncatedAt = f.Offset
		out.Terminal = &id
		out.Disposition = term.ev.desc.Disposition
		out.TerminalFiring = &f
		for _, o := range s.observers {
			o.OnTerminal(f)
		}
		s.log.Debug("events: terminal crossing truncates step",
			"event", term.ev.desc.Name, "time", f.Time, "offset", f.Offset)
	}
	return out, nil
}

func (s *Scanner[T]) firing(c *candidate[T], t0 float64, forward bool) Firing {
	ops := s.ops
	u := ops.Float(c.root.Offset)
	t := t0 + u
	if !forward {
		t = t0 - u
	}
	return Firing{
		Event:     c.ev.id,
		Name:      c.ev.desc.Name,
		Offset:    u,
		Time:      t,
		Direction: Direction(c.dir),
		Ambiguous: c.root.Ambiguous,
		Value:     ops.Float(c.trig.Eval(ops, c.root.Offset)),
	}
}

func (s *Scanner[T]) dispatch(st DenseStep[T], c *candidate[T], t0 float64, forward bool, out *Outcome) {
	ops := s.ops
	desc := &c.ev.desc
	f := s.firing(c, t0, forward)

	if desc.Cooldown > 0 && s.det.tracker.IsSuppressed(c.ev.id, f.Time) {
		for _, o := range s.observers {
			o.OnSuppressed(c.ev.id, desc.Name, f.Time)
		}
		s.log.Debug("events: crossing suppressed by cooldown",
			"event", desc.Name, "time", f.Time)
		return
	}

	tau := c.root.Offset
	if !forward {
		tau = ops.Neg(tau)
	}
	state := st.StateAt(tau)
	tT := ops.FromFloat(t0)
	if forward {
		tT = ops.Add(tT, c.root.Offset)
	} else {
		tT = ops.Sub(tT, c.root.Offset)
	}

	// The tracker reflects the firing before the callback observes it, and
	// a panicking callback still arms its window on the way up.
	s.det.tracker.RecordFire(c.ev.id, f.Time)
	rearm := true
	returned := false
	func() {
		defer func() {
			if !returned && desc.Cooldown > 0 {
				s.det.tracker.Arm(c.ev.id, f.Time, desc.Cooldown)
			}
		}()
		rearm = desc.Callback(state, tT)
		returned = true
	}()
	if returned && rearm && desc.Cooldown > 0 {
		s.det.tracker.Arm(c.ev.id, f.Time, desc.Cooldown)
	}

	out.Fired = append(out.Fired, f)
	for _, o := range s.observers {
		o.OnFiring(f)
	}
	s.log.Debug("events: fired",
		"event", desc.Name, "time", f.Time, "direction", f.Direction.String())
}
