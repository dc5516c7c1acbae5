package physics

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/taysim/internal/dynamo"
	"github.com/san-kum/taysim/internal/events"
	"github.com/san-kum/taysim/internal/expr"
	"github.com/san-kum/taysim/internal/precision"
)

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestNames(t *testing.T) {
	names := Names()
	assert.Equal(t, []string{"duffing", "harmonic", "lorenz", "pendulum", "vanderpol"}, names)

	for _, name := range names {
		m, err := Default(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, m.Name)
		assert.Equal(t, m.System.Dim(), len(m.Initial), name)
		assert.Equal(t, m.System.Dim(), m.Dynamics.StateDim(), name)
	}
}

func TestBuildOverrides(t *testing.T) {
	m, err := Build("vanderpol", map[string]float64{"mu": 3})
	require.NoError(t, err)
	assert.Equal(t, 3.0, m.Params["mu"])

	// At (2, 1): v' = 3*(1-4)*1 - 2 = -11.
	dx := m.Dynamics.Derive(dynamo.State{2, 1}, 0)
	assert.InDelta(t, -11, dx[1], 1e-12)
}

func TestBuildRejectsUnknown(t *testing.T) {
	_, err := Build("brusselator", nil)
	assert.ErrorContains(t, err, "unknown model")

	_, err = Build("lorenz", map[string]float64{"mu": 1})
	assert.ErrorContains(t, err, `no parameter "mu"`)
}

func TestParameterBounds(t *testing.T) {
	_, err := Harmonic(0)
	assert.ErrorIs(t, err, dynamo.ErrParameterBounds)

	_, err = Pendulum(9.81, -1, 0)
	assert.ErrorIs(t, err, dynamo.ErrParameterBounds)

	_, err = Pendulum(9.81, 1, -0.1)
	assert.ErrorIs(t, err, dynamo.ErrParameterBounds)
}

// TestExpressionsMatchDynamics pins the formula strings to the closure
// dynamics: evaluating each right-hand side at a probe state must agree
// with Derive to rounding error. A drifting constant in either form
// shows up here.
func TestExpressionsMatchDynamics(t *testing.T) {
	ops := precision.ForDouble()
	probes := map[int][]float64{
		2: {0.3, -0.7},
		3: {0.3, -0.7, 1.2},
	}
	const at = 0.4

	for _, name := range Names() {
		m, err := Default(name)
		require.NoError(t, err, name)

		probe, ok := probes[m.System.Dim()]
		require.True(t, ok, "no probe state for dimension %d", m.System.Dim())

		want := m.Dynamics.Derive(dynamo.State(probe), at)
		vars := m.System.Vars()
		for i, src := range m.System.Sources() {
			e, err := expr.Parse(src, vars)
			require.NoError(t, err, "%s equation %d", name, i)
			got, err := expr.Eval(ops, e, probe, at)
			require.NoError(t, err, "%s equation %d", name, i)
			assert.InDelta(t, want[i], got, 1e-12, "%s equation %d (%s)", name, i, src)
		}
	}
}

func TestEnergy(t *testing.T) {
	m, err := Default("harmonic")
	require.NoError(t, err)
	e, ok := m.Energy(dynamo.State{1, 0})
	require.True(t, ok)
	assert.InDelta(t, 0.5, e, 1e-15)

	m, err = Default("pendulum")
	require.NoError(t, err)
	e, ok = m.Energy(dynamo.State{0, 0})
	require.True(t, ok)
	assert.Zero(t, e)

	m, err = Default("lorenz")
	require.NoError(t, err)
	_, ok = m.Energy(m.Initial)
	assert.False(t, ok)

	// Unforced duffing conserves energy; the forced canonical build does not.
	m, err = Build("duffing", map[string]float64{"gamma": 0})
	require.NoError(t, err)
	e, ok = m.Energy(dynamo.State{1, 0})
	require.True(t, ok)
	assert.InDelta(t, -0.25, e, 1e-15)

	m, err = Default("duffing")
	require.NoError(t, err)
	_, ok = m.Energy(m.Initial)
	assert.False(t, ok)
}

// TestPresetsRegister feeds every preset through a real detector, so the
// shipped trigger strings and direction/kind spellings stay parseable.
func TestPresetsRegister(t *testing.T) {
	ops := precision.ForDouble()
	for _, name := range Names() {
		m, err := Default(name)
		require.NoError(t, err, name)

		det := events.NewDetector(ops, m.System.Vars(), discardLogger())
		for _, p := range m.Presets {
			trig, err := expr.Parse(p.Trigger, m.System.Vars())
			require.NoError(t, err, "%s preset %s", name, p.Name)
			dir, err := events.ParseDirection(p.Direction)
			require.NoError(t, err, "%s preset %s", name, p.Name)
			kind, err := events.ParseKind(p.Kind)
			require.NoError(t, err, "%s preset %s", name, p.Name)
			require.Equal(t, events.NonTerminal, kind, "%s preset %s", name, p.Name)

			_, err = det.Register(events.Descriptor[float64]{
				Name:      p.Name,
				Trigger:   trig,
				Direction: dir,
				Kind:      kind,
				Callback:  func(state []float64, at float64) bool { return true },
				Cooldown:  p.Cooldown,
			})
			require.NoError(t, err, "%s preset %s", name, p.Name)
		}
		assert.Equal(t, len(m.Presets), det.Len(), name)
	}
}
