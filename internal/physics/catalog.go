package physics

import (
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/taysim/internal/dynamo"
	"github.com/san-kum/taysim/internal/taylor"
)

// canonical holds the parameter set each model is built with when no
// overrides are given.
var canonical = map[string]map[string]float64{
	"harmonic":  {"omega": 1},
	"pendulum":  {"gravity": 9.81, "length": 1, "damping": 0.1},
	"vanderpol": {"mu": 1},
	"lorenz":    {"sigma": 10, "rho": 28, "beta": 8.0 / 3},
	"duffing":   {"delta": 0.2, "alpha": -1, "beta": 1, "gamma": 0.3, "omega": 1.2},
}

// Names lists the catalog models in sorted order.
func Names() []string {
	names := make([]string, 0, len(canonical))
	for name := range canonical {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default builds the named model with its canonical parameters.
func Default(name string) (*Model, error) { return Build(name, nil) }

// Build constructs the named model, overriding canonical parameters with
// the entries of overrides. Parameter names a model does not declare are
// rejected rather than silently dropped.
func Build(name string, overrides map[string]float64) (*Model, error) {
	base, ok := canonical[name]
	if !ok {
		return nil, fmt.Errorf("physics: unknown model %q", name)
	}
	p := make(map[string]float64, len(base))
	for k, v := range base {
		p[k] = v
	}
	for k, v := range overrides {
		if _, ok := base[k]; !ok {
			return nil, fmt.Errorf("physics: model %q has no parameter %q", name, k)
		}
		p[k] = v
	}
	switch name {
	case "harmonic":
		return Harmonic(p["omega"])
	case "pendulum":
		return Pendulum(p["gravity"], p["length"], p["damping"])
	case "vanderpol":
		return VanDerPol(p["mu"])
	case "lorenz":
		return Lorenz(p["sigma"], p["rho"], p["beta"])
	case "duffing":
		return Duffing(p["delta"], p["alpha"], p["beta"], p["gamma"], p["omega"])
	}
	return nil, fmt.Errorf("physics: unknown model %q", name)
}

// Harmonic builds the frictionless oscillator x'' = -omega^2 x.
func Harmonic(omega float64) (*Model, error) {
	if omega <= 0 {
		return nil, fmt.Errorf("%w: oscillator frequency must be positive, got %v",
			dynamo.ErrParameterBounds, omega)
	}
	w2 := omega * omega
	sys, err := taylor.NewSystem("harmonic", []string{"x", "v"}, []string{
		"v",
		fmt.Sprintf("-%s*x", num(w2)),
	})
	if err != nil {
		return nil, err
	}
	return &Model{
		Name:   "harmonic",
		System: sys,
		Dynamics: hamSystem{
			funcSystem{2, func(x dynamo.State, t float64) dynamo.State {
				return dynamo.State{x[1], -w2 * x[0]}
			}},
			func(x dynamo.State) float64 {
				return 0.5*x[1]*x[1] + 0.5*w2*x[0]*x[0]
			},
		},
		Initial: dynamo.State{1, 0},
		Params:  map[string]float64{"omega": omega},
		Presets: []EventPreset{
			{Name: "axis-crossing", Trigger: "x", Direction: "any", Kind: "non-terminal"},
			{Name: "apex", Trigger: "v", Direction: "negative", Kind: "non-terminal"},
		},
	}, nil
}

// Pendulum builds the planar pendulum with linear drag:
// theta'' = -(g/l) sin(theta) - damping*theta'. Mass is normalized out.
func Pendulum(gravity, length, damping float64) (*Model, error) {
	if gravity <= 0 || length <= 0 {
		return nil, fmt.Errorf("%w: pendulum needs positive gravity and length, got g=%v l=%v",
			dynamo.ErrParameterBounds, gravity, length)
	}
	if damping < 0 {
		return nil, fmt.Errorf("%w: pendulum damping must be non-negative, got %v",
			dynamo.ErrParameterBounds, damping)
	}
	k := gravity / length
	sys, err := taylor.NewSystem("pendulum", []string{"theta", "omega"}, []string{
		"omega",
		fmt.Sprintf("-%s*sin(theta) - %s*omega", num(k), num(damping)),
	})
	if err != nil {
		return nil, err
	}
	return &Model{
		Name:   "pendulum",
		System: sys,
		Dynamics: hamSystem{
			funcSystem{2, func(x dynamo.State, t float64) dynamo.State {
				return dynamo.State{x[1], -k*math.Sin(x[0]) - damping*x[1]}
			}},
			func(x dynamo.State) float64 {
				return 0.5*length*length*x[1]*x[1] + gravity*length*(1-math.Cos(x[0]))
			},
		},
		Initial: dynamo.State{2.5, 0},
		Params:  map[string]float64{"gravity": gravity, "length": length, "damping": damping},
		Presets: []EventPreset{
			{Name: "bottom-crossing", Trigger: "theta", Direction: "any", Kind: "non-terminal"},
			{Name: "turning-point", Trigger: "omega", Direction: "any", Kind: "non-terminal"},
		},
	}, nil
}

// VanDerPol builds the van der Pol oscillator x'' = mu*(1-x^2)*x' - x.
func VanDerPol(mu float64) (*Model, error) {
	sys, err := taylor.NewSystem("vanderpol", []string{"x", "v"}, []string{
		"v",
		fmt.Sprintf("%s*(1 - x^2)*v - x", num(mu)),
	})
	if err != nil {
		return nil, err
	}
	return &Model{
		Name:   "vanderpol",
		System: sys,
		Dynamics: funcSystem{2, func(x dynamo.State, t float64) dynamo.State {
			return dynamo.State{x[1], mu*(1-x[0]*x[0])*x[1] - x[0]}
		}},
		Initial: dynamo.State{2, 0},
		Params:  map[string]float64{"mu": mu},
		Presets: []EventPreset{
			{Name: "section", Trigger: "x", Direction: "positive", Kind: "non-terminal"},
		},
	}, nil
}

// Lorenz builds the Lorenz convection system.
func Lorenz(sigma, rho, beta float64) (*Model, error) {
	sys, err := taylor.NewSystem("lorenz", []string{"x", "y", "z"}, []string{
		fmt.Sprintf("%s*(y - x)", num(sigma)),
		fmt.Sprintf("x*(%s - z) - y", num(rho)),
		fmt.Sprintf("x*y - %s*z", num(beta)),
	})
	if err != nil {
		return nil, err
	}
	return &Model{
		Name:   "lorenz",
		System: sys,
		Dynamics: funcSystem{3, func(x dynamo.State, t float64) dynamo.State {
			return dynamo.State{
				sigma * (x[1] - x[0]),
				x[0]*(rho-x[2]) - x[1],
				x[0]*x[1] - beta*x[2],
			}
		}},
		Initial: dynamo.State{1, 1, 1},
		Params:  map[string]float64{"sigma": sigma, "rho": rho, "beta": beta},
		Presets: []EventPreset{
			{Name: "wing-switch", Trigger: "x", Direction: "any", Kind: "non-terminal", Cooldown: 0.5},
		},
	}, nil
}

// Duffing builds the forced double-well oscillator
// x'' + delta*x' + alpha*x + beta*x^3 = gamma*cos(omega*t).
// With gamma = 0 the forcing drops out and energy is conserved.
func Duffing(delta, alpha, beta, gamma, omega float64) (*Model, error) {
	sys, err := taylor.NewSystem("duffing", []string{"x", "v"}, []string{
		"v",
		fmt.Sprintf("-%s*v - %s*x - %s*x^3 + %s*cos(%s*t)",
			num(delta), num(alpha), num(beta), num(gamma), num(omega)),
	})
	if err != nil {
		return nil, err
	}
	dyn := funcSystem{2, func(x dynamo.State, t float64) dynamo.State {
		return dynamo.State{
			x[1],
			-delta*x[1] - alpha*x[0] - beta*x[0]*x[0]*x[0] + gamma*math.Cos(omega*t),
		}
	}}
	m := &Model{
		Name:    "duffing",
		System:  sys,
		Initial: dynamo.State{1, 0},
		Params: map[string]float64{
			"delta": delta, "alpha": alpha, "beta": beta, "gamma": gamma, "omega": omega,
		},
		Presets: []EventPreset{
			{Name: "well-hop", Trigger: "x", Direction: "any", Kind: "non-terminal", Cooldown: 1},
			{Name: "stroboscope", Trigger: fmt.Sprintf("sin(%s*t)", num(omega)), Direction: "positive", Kind: "non-terminal"},
		},
	}
	if gamma == 0 {
		m.Dynamics = hamSystem{dyn, func(x dynamo.State) float64 {
			return 0.5*x[1]*x[1] + 0.5*alpha*x[0]*x[0] + 0.25*beta*x[0]*x[0]*x[0]*x[0]
		}}
	} else {
		m.Dynamics = dyn
	}
	return m, nil
}
