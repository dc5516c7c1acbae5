package events

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/taysim/internal/dynamo"
	"github.com/san-kum/taysim/internal/poly"
	"github.com/san-kum/taysim/internal/precision"
)

// fakeStep is a hand-built dense step for driving the scanner directly.
type fakeStep[T any] struct {
	ops   precision.Arith[T]
	start float64
	h     float64
	polys []poly.Poly[T]
}

func (f *fakeStep[T]) Start() float64 { return f.start }

func (f *fakeStep[T]) Extent() float64 { return f.h }

func (f *fakeStep[T]) Polys() []poly.Poly[T] { return f.polys }

func (f *fakeStep[T]) StateAt(tau T) []T {
	out := make([]T, len(f.polys))
	for i, p := range f.polys {
		out[i] = p.Eval(f.ops, tau)
	}
	return out
}

func coeffs[T any](ops precision.Arith[T], c ...float64) poly.Poly[T] {
	p := make(poly.Poly[T], len(c))
	for i, v := range c {
		p[i] = ops.FromFloat(v)
	}
	return p
}

type recorder struct {
	fired      []Firing
	terminal   []Firing
	suppressed []float64
}

func (r *recorder) OnFiring(f Firing) { r.fired = append(r.fired, f) }

func (r *recorder) OnTerminal(f Firing) { r.terminal = append(r.terminal, f) }

func (r *recorder) OnSuppressed(_ EventID, _ string, t float64) {
	r.suppressed = append(r.suppressed, t)
}

func TestScanNoCrossings(t *testing.T) {
	ops := precision.ForDouble()
	vars := []string{"x"}
	det := NewDetector(ops, vars, discardLogger())
	calls := 0
	_, err := det.Register(Descriptor[float64]{
		Trigger:  mustParse(t, "x - 10", vars),
		Callback: func([]float64, float64) bool { calls++; return true },
	})
	require.NoError(t, err)

	scn := NewScanner(det, discardLogger())
	out, err := scn.Scan(&fakeStep[float64]{ops: ops, start: 0, h: 1, polys: []poly.Poly[float64]{coeffs(ops, 0, 1)}})
	require.NoError(t, err)

	assert.Equal(t, 1.0, out.TruncatedAt)
	assert.Nil(t, out.Terminal)
	assert.Nil(t, out.TerminalFiring)
	assert.Empty(t, out.Fired)
	assert.False(t, out.Truncated())
	assert.Zero(t, calls)
}

func TestScanTerminalTruncatesAtMidpoint(t *testing.T) {
	ops := precision.ForDouble()
	vars := []string{"x"}
	det := NewDetector(ops, vars, discardLogger())

	termID, err := det.Register(Descriptor[float64]{
		Name:    "halt",
		Trigger: mustParse(t, "t - 0.5", vars),
		Kind:    Terminal,
	})
	require.NoError(t, err)
	lateCalls := 0
	_, err = det.Register(Descriptor[float64]{
		Name:     "late",
		Trigger:  mustParse(t, "t - 0.7", vars),
		Callback: func([]float64, float64) bool { lateCalls++; return true },
	})
	require.NoError(t, err)

	rec := &recorder{}
	scn := NewScanner(det, discardLogger())
	scn.AddObserver(rec)

	out, err := scn.Scan(&fakeStep[float64]{ops: ops, start: 0, h: 1, polys: []poly.Poly[float64]{coeffs(ops, 0, 1)}})
	require.NoError(t, err)

	// The crossing sits exactly on the step midpoint, and the truncation
	// reproduces it without rounding.
	assert.Equal(t, 0.5, out.TruncatedAt)
	require.NotNil(t, out.Terminal)
	assert.Equal(t, termID, *out.Terminal)
	require.NotNil(t, out.TerminalFiring)
	assert.Equal(t, 0.5, out.TerminalFiring.Time)
	assert.Equal(t, HaltAtEvent, out.Disposition)
	assert.True(t, out.Truncated())

	// The non-terminal crossing past the truncation never happened.
	assert.Empty(t, out.Fired)
	assert.Zero(t, lateCalls)
	require.Len(t, rec.terminal, 1)
	assert.Equal(t, "halt", rec.terminal[0].Name)
}

func TestScanCooldownWindow(t *testing.T) {
	ops := precision.ForDouble()
	vars := []string{"x"}
	det := NewDetector(ops, vars, discardLogger())

	var times []float64
	_, err := det.Register(Descriptor[float64]{
		Name:     "crossing",
		Trigger:  mustParse(t, "x", vars),
		Cooldown: 1.0,
		Callback: func(_ []float64, tm float64) bool { times = append(times, tm); return true },
	})
	require.NoError(t, err)

	rec := &recorder{}
	scn := NewScanner(det, discardLogger())
	scn.AddObserver(rec)

	// Fires at t=0.5 and arms the window until 1.5.
	out, err := scn.Scan(&fakeStep[float64]{ops: ops, start: 0, h: 1,
		polys: []poly.Poly[float64]{coeffs(ops, -0.5, 1)}})
	require.NoError(t, err)
	require.Len(t, out.Fired, 1)

	// A crossing at t=1.0, half a window after the firing, is suppressed.
	out, err = scn.Scan(&fakeStep[float64]{ops: ops, start: 1, h: 1,
		polys: []poly.Poly[float64]{coeffs(ops, 0, 1)}})
	require.NoError(t, err)
	assert.Empty(t, out.Fired)
	require.Len(t, rec.suppressed, 1)
	assert.Equal(t, 1.0, rec.suppressed[0])

	// A crossing at t=2.5, two windows after, fires again.
	out, err = scn.Scan(&fakeStep[float64]{ops: ops, start: 2, h: 1,
		polys: []poly.Poly[float64]{coeffs(ops, -0.5, 1)}})
	require.NoError(t, err)
	require.Len(t, out.Fired, 1)

	assert.Equal(t, []float64{0.5, 2.5}, times)
}

func TestScanDirectionFilter(t *testing.T) {
	ops := precision.ForDouble()
	vars := []string{"x"}
	det := NewDetector(ops, vars, discardLogger())
	cb := func([]float64, float64) bool { return true }

	// The trigger falls through zero at the step midpoint.
	for _, d := range []struct {
		name string
		dir  Direction
	}{
		{"rising-only", Positive},
		{"falling-only", Negative},
		{"either", Any},
	} {
		_, err := det.Register(Descriptor[float64]{
			Name:      d.name,
			Trigger:   mustParse(t, "0.5 - t", vars),
			Direction: d.dir,
			Callback:  cb,
		})
		require.NoError(t, err)
	}

	scn := NewScanner(det, discardLogger())
	out, err := scn.Scan(&fakeStep[float64]{ops: ops, start: 0, h: 1,
		polys: []poly.Poly[float64]{coeffs(ops, 0, 1)}})
	require.NoError(t, err)

	require.Len(t, out.Fired, 2)
	assert.Equal(t, "falling-only", out.Fired[0].Name)
	assert.Equal(t, "either", out.Fired[1].Name)
	assert.Equal(t, Negative, out.Fired[0].Direction)
	assert.Equal(t, Negative, out.Fired[1].Direction)
}

func TestScanDispatchOrderFollowsOffsets(t *testing.T) {
	ops := precision.ForDouble()
	vars := []string{"x"}
	det := NewDetector(ops, vars, discardLogger())

	var order []string
	reg := func(name, trig string) {
		_, err := det.Register(Descriptor[float64]{
			Name:    name,
			Trigger: mustParse(t, trig, vars),
			Callback: func([]float64, float64) bool {
				order = append(order, name)
				return true
			},
		})
		require.NoError(t, err)
	}
	// Registration order is the reverse of crossing order.
	reg("late", "t - 0.7")
	reg("early", "t - 0.2")

	scn := NewScanner(det, discardLogger())
	out, err := scn.Scan(&fakeStep[float64]{ops: ops, start: 0, h: 1,
		polys: []poly.Poly[float64]{coeffs(ops, 0, 1)}})
	require.NoError(t, err)

	assert.Equal(t, []string{"early", "late"}, order)
	require.Len(t, out.Fired, 2)
	assert.Equal(t, "early", out.Fired[0].Name)
	assert.Equal(t, "late", out.Fired[1].Name)
	assert.Less(t, out.Fired[0].Offset, out.Fired[1].Offset)
}

func TestScanDeterministic(t *testing.T) {
	vars := []string{"x", "v"}
	run := func() Outcome {
		ops := precision.ForDouble()
		det := NewDetector(ops, vars, discardLogger())
		cb := func([]float64, float64) bool { return true }
		for _, c := range []struct{ name, trig string }{
			{"zero", "sin(x)"},
			{"tick", "t - 0.63"},
			{"speed", "v - 1/2"},
		} {
			_, err := det.Register(Descriptor[float64]{Name: c.name, Trigger: mustParse(t, c.trig, vars), Callback: cb})
			require.NoError(t, err)
		}
		scn := NewScanner(det, discardLogger())
		out, err := scn.Scan(&fakeStep[float64]{ops: ops, start: 0.25, h: 0.8,
			polys: []poly.Poly[float64]{
				coeffs(ops, -0.3, 2.1, -1.9, 0.6),
				coeffs(ops, 0.9, -1.1, 0.35),
			}})
		require.NoError(t, err)
		return out
	}

	first := run()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, run(), "outcomes must match bit for bit")
	}
}

func TestScanBackwardMirrorsForward(t *testing.T) {
	ops := precision.ForDouble()
	vars := []string{"x"}

	// Forward: x = tau - 0.25 over [0,1), rising through zero at t=0.25.
	fdet := NewDetector(ops, vars, discardLogger())
	_, err := fdet.Register(Descriptor[float64]{
		Trigger:   mustParse(t, "x", vars),
		Direction: Positive,
		Callback:  func([]float64, float64) bool { return true },
	})
	require.NoError(t, err)
	fout, err := NewScanner(fdet, discardLogger()).Scan(&fakeStep[float64]{
		ops: ops, start: 0, h: 1,
		polys: []poly.Poly[float64]{coeffs(ops, -0.25, 1)}})
	require.NoError(t, err)
	require.Len(t, fout.Fired, 1)

	// Backward from t=1 with extent -1 over the same trajectory,
	// x(tau) = 0.75 + tau for tau in (-1, 0]. Along the flow the trigger
	// falls, so the mirrored filter is Negative.
	bdet := NewDetector(ops, vars, discardLogger())
	_, err = bdet.Register(Descriptor[float64]{
		Trigger:   mustParse(t, "x", vars),
		Direction: Negative,
		Callback:  func([]float64, float64) bool { return true },
	})
	require.NoError(t, err)
	bout, err := NewScanner(bdet, discardLogger()).Scan(&fakeStep[float64]{
		ops: ops, start: 1, h: -1,
		polys: []poly.Poly[float64]{coeffs(ops, 0.75, 1)}})
	require.NoError(t, err)
	require.Len(t, bout.Fired, 1)

	assert.Equal(t, fout.Fired[0].Time, bout.Fired[0].Time)
	assert.Equal(t, Positive, fout.Fired[0].Direction)
	assert.Equal(t, Negative, bout.Fired[0].Direction)
}

func TestScanSameStepSecondCrossingSuppressed(t *testing.T) {
	ops := precision.ForDouble()
	vars := []string{"x"}

	// x has crossings at tau=0.2 and tau=0.6 within one step.
	crossing := coeffs(ops, 0.12, -0.8, 1)

	det := NewDetector(ops, vars, discardLogger())
	fires := 0
	_, err := det.Register(Descriptor[float64]{
		Trigger:  mustParse(t, "x", vars),
		Cooldown: 10,
		Callback: func([]float64, float64) bool { fires++; return true },
	})
	require.NoError(t, err)

	rec := &recorder{}
	scn := NewScanner(det, discardLogger())
	scn.AddObserver(rec)
	out, err := scn.Scan(&fakeStep[float64]{ops: ops, start: 0, h: 1,
		polys: []poly.Poly[float64]{crossing}})
	require.NoError(t, err)

	// The first crossing arms the window; the second falls inside it.
	require.Len(t, out.Fired, 1)
	assert.InDelta(t, 0.2, out.Fired[0].Offset, 1e-9)
	assert.Equal(t, 1, fires)
	require.Len(t, rec.suppressed, 1)
	assert.InDelta(t, 0.6, rec.suppressed[0], 1e-9)

	// Without a cooldown the same trigger fires twice in the step.
	det2 := NewDetector(ops, vars, discardLogger())
	fires2 := 0
	_, err = det2.Register(Descriptor[float64]{
		Trigger:  mustParse(t, "x", vars),
		Callback: func([]float64, float64) bool { fires2++; return true },
	})
	require.NoError(t, err)
	out, err = NewScanner(det2, discardLogger()).Scan(&fakeStep[float64]{
		ops: ops, start: 0, h: 1, polys: []poly.Poly[float64]{crossing}})
	require.NoError(t, err)
	assert.Len(t, out.Fired, 2)
	assert.Equal(t, 2, fires2)
}

func TestScanCallbackPanicStillArms(t *testing.T) {
	ops := precision.ForDouble()
	vars := []string{"x"}
	det := NewDetector(ops, vars, discardLogger())

	id, err := det.Register(Descriptor[float64]{
		Trigger:  mustParse(t, "x", vars),
		Cooldown: 5,
		Callback: func([]float64, float64) bool { panic("observer exploded") },
	})
	require.NoError(t, err)

	scn := NewScanner(det, discardLogger())
	require.Panics(t, func() {
		scn.Scan(&fakeStep[float64]{ops: ops, start: 0, h: 1,
			polys: []poly.Poly[float64]{coeffs(ops, -0.5, 1)}})
	})

	// The firing was recorded and the window armed before the panic left.
	last, ok := det.Tracker().LastFire(id)
	require.True(t, ok)
	assert.Equal(t, 0.5, last)
	until, ok := det.Tracker().ActiveUntil(id)
	require.True(t, ok)
	assert.Equal(t, 5.5, until)
	assert.True(t, det.Tracker().IsSuppressed(id, 2.0))
}

func TestScanCallbackDeclinesRearm(t *testing.T) {
	ops := precision.ForDouble()
	vars := []string{"x"}
	det := NewDetector(ops, vars, discardLogger())

	fires := 0
	_, err := det.Register(Descriptor[float64]{
		Trigger:  mustParse(t, "x", vars),
		Cooldown: 10,
		Callback: func([]float64, float64) bool { fires++; return false },
	})
	require.NoError(t, err)

	scn := NewScanner(det, discardLogger())
	// Two crossings in one step; the callback declines the window, so both
	// fire despite the configured cooldown.
	out, err := scn.Scan(&fakeStep[float64]{ops: ops, start: 0, h: 1,
		polys: []poly.Poly[float64]{coeffs(ops, 0.12, -0.8, 1)}})
	require.NoError(t, err)
	assert.Len(t, out.Fired, 2)
	assert.Equal(t, 2, fires)
}

func TestScanTerminalTieGoesToLowerID(t *testing.T) {
	ops := precision.ForDouble()
	vars := []string{"x"}
	det := NewDetector(ops, vars, discardLogger())

	first, err := det.Register(Descriptor[float64]{
		Name: "first", Trigger: mustParse(t, "t - 0.5", vars), Kind: Terminal,
	})
	require.NoError(t, err)
	_, err = det.Register(Descriptor[float64]{
		Name: "second", Trigger: mustParse(t, "t - 0.5", vars), Kind: Terminal,
	})
	require.NoError(t, err)

	out, err := NewScanner(det, discardLogger()).Scan(&fakeStep[float64]{
		ops: ops, start: 0, h: 1, polys: []poly.Poly[float64]{coeffs(ops, 0, 1)}})
	require.NoError(t, err)

	require.NotNil(t, out.Terminal)
	assert.Equal(t, first, *out.Terminal)
	assert.Equal(t, "first", out.TerminalFiring.Name)
}

func TestScanEarlierTerminalWinsAcrossIDs(t *testing.T) {
	ops := precision.ForDouble()
	vars := []string{"x"}
	det := NewDetector(ops, vars, discardLogger())

	_, err := det.Register(Descriptor[float64]{
		Name: "late", Trigger: mustParse(t, "t - 0.8", vars), Kind: Terminal,
	})
	require.NoError(t, err)
	early, err := det.Register(Descriptor[float64]{
		Name: "early", Trigger: mustParse(t, "t - 0.3", vars), Kind: Terminal,
	})
	require.NoError(t, err)

	out, err := NewScanner(det, discardLogger()).Scan(&fakeStep[float64]{
		ops: ops, start: 0, h: 1, polys: []poly.Poly[float64]{coeffs(ops, 0, 1)}})
	require.NoError(t, err)

	require.NotNil(t, out.Terminal)
	assert.Equal(t, early, *out.Terminal)
	assert.InDelta(t, 0.3, out.TruncatedAt, 1e-12)
}

func TestScanNonfiniteStateRejected(t *testing.T) {
	ops := precision.ForDouble()
	vars := []string{"x"}
	det := NewDetector(ops, vars, discardLogger())
	_, err := det.Register(Descriptor[float64]{
		Trigger:  mustParse(t, "x", vars),
		Callback: func([]float64, float64) bool { return true },
	})
	require.NoError(t, err)

	_, err = NewScanner(det, discardLogger()).Scan(&fakeStep[float64]{
		ops: ops, start: 0, h: 1,
		polys: []poly.Poly[float64]{coeffs(ops, 0, math.NaN())}})
	assert.ErrorIs(t, err, dynamo.ErrInvalidState)

	var simErr *dynamo.SimulationError
	assert.ErrorAs(t, err, &simErr)
}

func TestScanDimensionMismatchRejected(t *testing.T) {
	ops := precision.ForDouble()
	det := NewDetector(ops, []string{"x", "v"}, discardLogger())
	_, err := det.Register(Descriptor[float64]{
		Trigger:  mustParse(t, "x + v", []string{"x", "v"}),
		Callback: func([]float64, float64) bool { return true },
	})
	require.NoError(t, err)

	_, err = NewScanner(det, discardLogger()).Scan(&fakeStep[float64]{
		ops: ops, start: 0, h: 1, polys: []poly.Poly[float64]{coeffs(ops, 0, 1)}})
	assert.ErrorIs(t, err, dynamo.ErrDimensionMismatch)
}

func TestScanSkipsNonExpandableTrigger(t *testing.T) {
	ops := precision.ForDouble()
	vars := []string{"x"}
	det := NewDetector(ops, vars, discardLogger())

	// 1/x has no series about x(0)=0; the event skips this step.
	_, err := det.Register(Descriptor[float64]{
		Name:     "reciprocal",
		Trigger:  mustParse(t, "1/x", vars),
		Callback: func([]float64, float64) bool { return true },
	})
	require.NoError(t, err)
	_, err = det.Register(Descriptor[float64]{
		Name:     "tick",
		Trigger:  mustParse(t, "t - 0.5", vars),
		Callback: func([]float64, float64) bool { return true },
	})
	require.NoError(t, err)

	out, err := NewScanner(det, discardLogger()).Scan(&fakeStep[float64]{
		ops: ops, start: 0, h: 1, polys: []poly.Poly[float64]{coeffs(ops, 0, 1)}})
	require.NoError(t, err)
	require.Len(t, out.Fired, 1)
	assert.Equal(t, "tick", out.Fired[0].Name)
}

func TestScanCallbackSeesCrossingState(t *testing.T) {
	ops := precision.ForDouble()
	vars := []string{"x", "v"}
	det := NewDetector(ops, vars, discardLogger())

	var gotState []float64
	var gotTime float64
	_, err := det.Register(Descriptor[float64]{
		Trigger: mustParse(t, "x", vars),
		Callback: func(state []float64, tm float64) bool {
			gotState = append([]float64(nil), state...)
			gotTime = tm
			return true
		},
	})
	require.NoError(t, err)

	_, err = NewScanner(det, discardLogger()).Scan(&fakeStep[float64]{
		ops: ops, start: 0, h: 1,
		polys: []poly.Poly[float64]{
			coeffs(ops, -0.25, 1), // x = tau - 1/4
			coeffs(ops, 1, -1),    // v = 1 - tau
		}})
	require.NoError(t, err)

	require.Len(t, gotState, 2)
	assert.Equal(t, 0.0, gotState[0])
	assert.Equal(t, 0.75, gotState[1])
	assert.Equal(t, 0.25, gotTime)
}

func TestScanCrossingAtStepStartFires(t *testing.T) {
	ops := precision.ForDouble()
	vars := []string{"x"}
	det := NewDetector(ops, vars, discardLogger())
	_, err := det.Register(Descriptor[float64]{
		Trigger:  mustParse(t, "x", vars),
		Callback: func([]float64, float64) bool { return true },
	})
	require.NoError(t, err)
	scn := NewScanner(det, discardLogger())

	// A crossing exactly at the step start belongs to this step.
	out, err := scn.Scan(&fakeStep[float64]{ops: ops, start: 3, h: 1,
		polys: []poly.Poly[float64]{coeffs(ops, 0, 1)}})
	require.NoError(t, err)
	require.Len(t, out.Fired, 1)
	assert.Equal(t, 0.0, out.Fired[0].Offset)
	assert.Equal(t, 3.0, out.Fired[0].Time)

	// One exactly at the far end belongs to the next step.
	out, err = scn.Scan(&fakeStep[float64]{ops: ops, start: 3, h: 1,
		polys: []poly.Poly[float64]{coeffs(ops, -1, 1)}})
	require.NoError(t, err)
	assert.Empty(t, out.Fired)
}

func TestScanZeroExtentStep(t *testing.T) {
	ops := precision.ForDouble()
	vars := []string{"x"}
	det := NewDetector(ops, vars, discardLogger())
	_, err := det.Register(Descriptor[float64]{
		Trigger:  mustParse(t, "x", vars),
		Callback: func([]float64, float64) bool { return true },
	})
	require.NoError(t, err)

	out, err := NewScanner(det, discardLogger()).Scan(&fakeStep[float64]{
		ops: ops, start: 2, h: 0, polys: []poly.Poly[float64]{coeffs(ops, 0)}})
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.TruncatedAt)
	assert.Empty(t, out.Fired)
}

func TestScanQuadOffsetResolution(t *testing.T) {
	ops := precision.ForQuad()
	vars := []string{"x"}
	det := NewDetector(ops, vars, discardLogger())

	var got *big.Float
	_, err := det.Register(Descriptor[*big.Float]{
		Trigger: mustParse(t, "x - 1/3", vars),
		Callback: func(_ []*big.Float, tm *big.Float) bool {
			got = tm
			return true
		},
	})
	require.NoError(t, err)

	out, err := NewScanner(det, discardLogger()).Scan(&fakeStep[*big.Float]{
		ops: ops, start: 0, h: 1,
		polys: []poly.Poly[*big.Float]{{ops.FromFloat(0), ops.FromFloat(1)}}})
	require.NoError(t, err)
	require.Len(t, out.Fired, 1)
	require.NotNil(t, got)

	// The callback time resolves 1/3 well past float64.
	third := ops.Div(ops.FromFloat(1), ops.FromFloat(3))
	diff := ops.Float(ops.Abs(ops.Sub(got, third)))
	assert.Less(t, diff, 1e-25)
	assert.InDelta(t, 1.0/3.0, out.Fired[0].Offset, 1e-15)
}
