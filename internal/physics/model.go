package physics

import (
	"strconv"

	"github.com/san-kum/taysim/internal/dynamo"
	"github.com/san-kum/taysim/internal/taylor"
)

// EventPreset is a ready-made trigger for a model: a named crossing that
// run configurations and the section tools can pick up without the user
// writing the expression by hand. Direction and Kind use the same spelling
// the events package parses.
type EventPreset struct {
	Name      string
	Trigger   string
	Direction string
	Kind      string
	Cooldown  float64
}

// Model bundles everything needed to run one system: the expression form
// for series expansion, the same dynamics as a float64 [dynamo.System],
// an initial state, and the parameters it was built with. Models are
// immutable; to change a parameter, build a new one.
type Model struct {
	Name     string
	System   *taylor.System
	Dynamics dynamo.System
	Initial  dynamo.State
	Params   map[string]float64
	Presets  []EventPreset
}

// Energy reports the model energy at x, or false when the model carries
// no conserved quantity.
func (m *Model) Energy(x dynamo.State) (float64, bool) {
	if h, ok := m.Dynamics.(dynamo.Hamiltonian); ok {
		return h.Energy(x), true
	}
	return 0, false
}

type funcSystem struct {
	dim    int
	derive func(x dynamo.State, t float64) dynamo.State
}

func (s funcSystem) Derive(x dynamo.State, t float64) dynamo.State { return s.derive(x, t) }

func (s funcSystem) StateDim() int { return s.dim }

type hamSystem struct {
	funcSystem
	energy func(x dynamo.State) float64
}

func (s hamSystem) Energy(x dynamo.State) float64 { return s.energy(x) }

// num renders a parameter as an expression literal. The parentheses keep
// negative values intact inside products, and 'f' formatting avoids
// exponent notation the formula grammar does not read.
func num(v float64) string {
	return "(" + strconv.FormatFloat(v, 'f', -1, 64) + ")"
}
