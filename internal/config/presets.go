package config

import "slices"

var Presets = map[string]map[string]*Config{
	"pendulum": {
		"swing": {
			Model: "pendulum", Source: "taylor", Order: 12, Dt: 0.01, Duration: 20.0,
			Presets: []string{"bottom-crossing", "turning-point"},
		},
		"settle": {
			Model: "pendulum", Source: "taylor", Order: 12, Dt: 0.01, Duration: 60.0,
			Params: map[string]float64{"damping": 0.5},
			Events: []EventConfig{
				{Name: "settled", Trigger: "omega^2 + theta^2 - 0.0001", Direction: "falling", Kind: "terminal"},
			},
		},
	},
	"harmonic": {
		"crossings": {
			Model: "harmonic", Source: "taylor", Order: 12, Dt: 0.01, Duration: 20.0,
			Presets: []string{"axis-crossing", "apex"},
		},
		"one-period": {
			Model: "harmonic", Source: "taylor", Order: 12, Dt: 0.01, Duration: 10.0,
			Events: []EventConfig{
				{Name: "one-period", Trigger: "t - 2*pi", Direction: "rising", Kind: "terminal"},
			},
		},
	},
	"vanderpol": {
		"cycle": {
			Model: "vanderpol", Source: "taylor", Order: 12, Dt: 0.01, Duration: 40.0,
			Presets: []string{"section"},
		},
		"relaxation": {
			Model: "vanderpol", Source: "taylor", Order: 14, Dt: 0.002, Duration: 40.0,
			Params:  map[string]float64{"mu": 6},
			Presets: []string{"section"},
			State:   StateValues(1.0, 0.0),
		},
	},
	"lorenz": {
		"wings": {
			Model: "lorenz", Source: "taylor", Order: 14, Dt: 0.005, Duration: 30.0,
			Presets: []string{"wing-switch"},
		},
		"excursion": {
			Model: "lorenz", Source: "taylor", Order: 14, Dt: 0.005, Duration: 30.0,
			Events: []EventConfig{
				{Name: "excursion", Trigger: "z - 45", Direction: "rising", Kind: "terminal"},
			},
		},
	},
	"duffing": {
		"strobe": {
			Model: "duffing", Source: "taylor", Order: 12, Dt: 0.01, Duration: 100.0,
			RecordEvery: 10,
			Presets:     []string{"stroboscope"},
		},
		"wells": {
			Model: "duffing", Source: "taylor", Order: 12, Dt: 0.01, Duration: 60.0,
			Presets: []string{"well-hop"},
		},
	},
}

func GetPreset(model, preset string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	return cfg
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
