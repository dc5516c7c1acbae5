package config

import (
	"fmt"
	"math"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/taysim/internal/dynamo"
	"github.com/san-kum/taysim/internal/events"
	"github.com/san-kum/taysim/internal/expr"
	"github.com/san-kum/taysim/internal/physics"
	"github.com/san-kum/taysim/internal/precision"
	"github.com/san-kum/taysim/internal/sim"
)

const (
	DefaultDt       = 0.01
	DefaultDuration = 10.0
	DefaultOrder    = 12
)

// Config describes one run: the model, the working precision, the step
// source, the span, the initial state, and the events to watch.
type Config struct {
	Model     string             `yaml:"model"`
	Params    map[string]float64 `yaml:"params,omitempty"`
	Precision string             `yaml:"precision,omitempty"`
	Source    string             `yaml:"source,omitempty"`
	Order     int                `yaml:"order,omitempty"`

	Start       float64 `yaml:"start,omitempty"`
	Dt          float64 `yaml:"dt"`
	Duration    float64 `yaml:"duration"`
	RecordEvery int     `yaml:"record_every,omitempty"`

	State StateSpec `yaml:"state,omitempty"`

	// Events declares watch expressions in full; Presets pulls in the
	// model's shipped ones by name.
	Events  []EventConfig `yaml:"events,omitempty"`
	Presets []string      `yaml:"presets,omitempty"`
}

// EventConfig is the YAML shape of one event declaration. Direction,
// Kind and Disposition use the spellings the events package parses.
type EventConfig struct {
	Name        string  `yaml:"name"`
	Trigger     string  `yaml:"trigger"`
	Direction   string  `yaml:"direction,omitempty"`
	Kind        string  `yaml:"kind,omitempty"`
	Cooldown    float64 `yaml:"cooldown,omitempty"`
	Disposition string  `yaml:"disposition,omitempty"`
}

// StateSpec holds an initial state given either as a plain list in
// variable order or as a mapping from variable names to values. Empty
// means the model default.
type StateSpec struct {
	values []float64
	byName map[string]float64
}

// StateValues builds a list-form state, for configs assembled in code.
func StateValues(v ...float64) StateSpec { return StateSpec{values: v} }

// StateByName builds a mapping-form state.
func StateByName(m map[string]float64) StateSpec { return StateSpec{byName: m} }

func (s *StateSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		return node.Decode(&s.values)
	case yaml.MappingNode:
		return node.Decode(&s.byName)
	default:
		return fmt.Errorf("state must be a list or a variable mapping, got %s", node.Tag)
	}
}

func (s StateSpec) MarshalYAML() (interface{}, error) {
	if s.byName != nil {
		return s.byName, nil
	}
	return s.values, nil
}

func (s StateSpec) IsZero() bool { return s.values == nil && s.byName == nil }

// Resolve produces a concrete state over vars, starting from the model
// fallback. List form must cover every variable; mapping form overrides
// the fallback entry by entry.
func (s StateSpec) Resolve(vars []string, fallback []float64) ([]float64, error) {
	out := make([]float64, len(vars))
	switch {
	case s.values != nil:
		if len(s.values) != len(vars) {
			return nil, fmt.Errorf("%w: state has %d values, model has %d variables",
				dynamo.ErrDimensionMismatch, len(s.values), len(vars))
		}
		copy(out, s.values)
	case s.byName != nil:
		copy(out, fallback)
		for name, v := range s.byName {
			i := slices.Index(vars, name)
			if i < 0 {
				return nil, fmt.Errorf("config: model has no variable %q (have %s)",
					name, strings.Join(vars, ", "))
			}
			out[i] = v
		}
	default:
		copy(out, fallback)
	}
	return out, nil
}

func DefaultConfig() *Config {
	return &Config{
		Model:     "pendulum",
		Precision: "double",
		Source:    "taylor",
		Order:     DefaultOrder,
		Dt:        DefaultDt,
		Duration:  DefaultDuration,
	}
}

// Load reads path over the defaults, so absent keys keep their usual
// values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// SimConfig maps the run shape onto the runner's config.
func (c *Config) SimConfig() sim.Config {
	return sim.Config{
		Start:       c.Start,
		Dt:          c.Dt,
		Duration:    c.Duration,
		RecordEvery: c.RecordEvery,
	}
}

// Validate builds the model and checks every field the run would use, so
// problems surface before any stepping starts.
func (c *Config) Validate() error {
	m, err := physics.Build(c.Model, c.Params)
	if err != nil {
		return err
	}

	prec, err := precision.ParsePrecision(c.Precision)
	if err != nil {
		return err
	}
	if err := precision.Validate(prec); err != nil {
		return err
	}

	switch c.Source {
	case "", "taylor":
		if c.Order < 1 {
			return fmt.Errorf("%w: series order %d", dynamo.ErrParameterBounds, c.Order)
		}
	case "hermite":
		if prec != precision.Double {
			return fmt.Errorf("%w: the hermite source runs in double only, not %s",
				dynamo.ErrUnsupportedPrecision, prec)
		}
	default:
		return fmt.Errorf("config: unknown source %q (want taylor or hermite)", c.Source)
	}

	if c.Dt == 0 || math.IsNaN(c.Dt) || math.IsInf(c.Dt, 0) {
		return fmt.Errorf("%w: dt must be finite and non-zero, got %v",
			dynamo.ErrParameterBounds, c.Dt)
	}
	if c.Duration <= 0 || math.IsNaN(c.Duration) || math.IsInf(c.Duration, 0) {
		return fmt.Errorf("%w: duration must be positive and finite, got %v",
			dynamo.ErrParameterBounds, c.Duration)
	}
	if c.RecordEvery < 0 {
		return fmt.Errorf("%w: record_every must be non-negative, got %d",
			dynamo.ErrParameterBounds, c.RecordEvery)
	}

	if _, err := c.State.Resolve(m.System.Vars(), m.Initial); err != nil {
		return err
	}

	_, err = c.ResolveEvents(m)
	return err
}

// ResolveEvents merges the model presets named in Presets with the
// explicit event list and validates each entry against the model.
func (c *Config) ResolveEvents(m *physics.Model) ([]EventConfig, error) {
	out := make([]EventConfig, 0, len(c.Presets)+len(c.Events))

	for _, name := range c.Presets {
		found := false
		for _, p := range m.Presets {
			if p.Name == name {
				out = append(out, EventConfig{
					Name:      p.Name,
					Trigger:   p.Trigger,
					Direction: p.Direction,
					Kind:      p.Kind,
					Cooldown:  p.Cooldown,
				})
				found = true
				break
			}
		}
		if !found {
			avail := make([]string, 0, len(m.Presets))
			for _, p := range m.Presets {
				avail = append(avail, p.Name)
			}
			return nil, fmt.Errorf("config: model %q has no event preset %q (have %s)",
				m.Name, name, strings.Join(avail, ", "))
		}
	}
	out = append(out, c.Events...)

	vars := m.System.Vars()
	for i, ev := range out {
		if ev.Trigger == "" {
			return nil, fmt.Errorf("config: event %d (%s) has no trigger", i, ev.Name)
		}
		if _, err := expr.Parse(ev.Trigger, vars); err != nil {
			return nil, fmt.Errorf("config: event %q: %w", ev.Name, err)
		}
		if _, err := events.ParseDirection(ev.Direction); err != nil {
			return nil, fmt.Errorf("config: event %q: %w", ev.Name, err)
		}
		kind, err := events.ParseKind(ev.Kind)
		if err != nil {
			return nil, fmt.Errorf("config: event %q: %w", ev.Name, err)
		}
		if _, err := events.ParseDisposition(ev.Disposition); err != nil {
			return nil, fmt.Errorf("config: event %q: %w", ev.Name, err)
		}
		if ev.Cooldown < 0 || math.IsNaN(ev.Cooldown) || math.IsInf(ev.Cooldown, 0) {
			return nil, fmt.Errorf("%w: event %q cooldown %v",
				dynamo.ErrBadDescriptor, ev.Name, ev.Cooldown)
		}
		if kind == events.Terminal && ev.Cooldown != 0 {
			return nil, fmt.Errorf("%w: terminal event %q cannot carry a cooldown",
				dynamo.ErrBadDescriptor, ev.Name)
		}
	}
	return out, nil
}
