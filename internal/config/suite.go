package config

import (
	"fmt"
	"math"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/taysim/internal/dynamo"
	"github.com/san-kum/taysim/internal/physics"
)

// Suite is a scripted batch of runs sharing one base configuration.
type Suite struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description,omitempty"`
	Base        Config     `yaml:"base"`
	Runs        []SuiteRun `yaml:"runs"`
}

// SuiteRun overrides the base for one named run. A grid fans the run out
// into several starts along one state variable.
type SuiteRun struct {
	Name   string             `yaml:"name"`
	Params map[string]float64 `yaml:"params,omitempty"`
	State  StateSpec          `yaml:"state,omitempty"`
	Grid   *GridSpec          `yaml:"grid,omitempty"`
}

// GridSpec spaces Count starts linearly over [From, To] in variable Var.
type GridSpec struct {
	Var   string  `yaml:"var"`
	From  float64 `yaml:"from"`
	To    float64 `yaml:"to"`
	Count int     `yaml:"count"`
}

// LoadSuite reads a suite file; the base section is read over the usual
// defaults.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	suite := Suite{Base: *DefaultConfig()}
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, err
	}

	return &suite, nil
}

// Config materializes the run's full configuration over the base.
func (r SuiteRun) Config(base Config) Config {
	out := base
	if len(r.Params) > 0 {
		merged := make(map[string]float64, len(base.Params)+len(r.Params))
		for k, v := range base.Params {
			merged[k] = v
		}
		for k, v := range r.Params {
			merged[k] = v
		}
		out.Params = merged
	}
	if !r.State.IsZero() {
		out.State = r.State
	}
	return out
}

// Starts expands the run into its initial states over vars, starting
// from fallback. Without a grid there is exactly one start.
func (r SuiteRun) Starts(vars []string, fallback []float64) ([][]float64, error) {
	base, err := r.State.Resolve(vars, fallback)
	if err != nil {
		return nil, err
	}
	if r.Grid == nil {
		return [][]float64{base}, nil
	}

	g := r.Grid
	idx := slices.Index(vars, g.Var)
	if idx < 0 {
		return nil, fmt.Errorf("config: grid variable %q is not a state variable (have %s)",
			g.Var, strings.Join(vars, ", "))
	}
	if g.Count < 1 {
		return nil, fmt.Errorf("%w: grid count %d", dynamo.ErrParameterBounds, g.Count)
	}
	if math.IsNaN(g.From) || math.IsInf(g.From, 0) || math.IsNaN(g.To) || math.IsInf(g.To, 0) {
		return nil, fmt.Errorf("%w: grid range [%v, %v]", dynamo.ErrParameterBounds, g.From, g.To)
	}

	starts := make([][]float64, g.Count)
	for i := range starts {
		x := make([]float64, len(base))
		copy(x, base)
		x[idx] = g.From
		if g.Count > 1 {
			x[idx] = g.From + (g.To-g.From)*float64(i)/float64(g.Count-1)
		}
		starts[i] = x
	}
	return starts, nil
}

// Validate checks every run the way a single config is checked, plus the
// grid expansion.
func (s *Suite) Validate() error {
	if len(s.Runs) == 0 {
		return fmt.Errorf("config: suite %q has no runs", s.Name)
	}

	seen := make(map[string]bool, len(s.Runs))
	for i, r := range s.Runs {
		if r.Name == "" {
			return fmt.Errorf("config: suite %q: run %d has no name", s.Name, i)
		}
		if seen[r.Name] {
			return fmt.Errorf("config: suite %q: duplicate run name %q", s.Name, r.Name)
		}
		seen[r.Name] = true

		cfg := r.Config(s.Base)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("config: suite run %q: %w", r.Name, err)
		}

		m, err := physics.Build(cfg.Model, cfg.Params)
		if err != nil {
			return fmt.Errorf("config: suite run %q: %w", r.Name, err)
		}
		if _, err := r.Starts(m.System.Vars(), m.Initial); err != nil {
			return fmt.Errorf("config: suite run %q: %w", r.Name, err)
		}
	}
	return nil
}
