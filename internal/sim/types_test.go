package sim

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/taysim/internal/dynamo"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero dt", Config{Dt: 0, Duration: 1}},
		{"nan dt", Config{Dt: math.NaN(), Duration: 1}},
		{"inf dt", Config{Dt: math.Inf(1), Duration: 1}},
		{"zero duration", Config{Dt: 0.1, Duration: 0}},
		{"negative duration", Config{Dt: 0.1, Duration: -1}},
		{"nan duration", Config{Dt: 0.1, Duration: math.NaN()}},
		{"negative record interval", Config{Dt: 0.1, Duration: 1, RecordEvery: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, dynamo.ErrParameterBounds) {
				t.Errorf("expected parameter bounds error, got %v", err)
			}
		})
	}

	if err := (Config{Dt: -0.1, Duration: 1}).validate(); err != nil {
		t.Errorf("negative dt is a backward run, got %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Dt <= 0 {
		t.Error("DefaultConfig has invalid Dt")
	}
	if cfg.Duration <= 0 {
		t.Error("DefaultConfig has invalid Duration")
	}
}

func TestResultFinal(t *testing.T) {
	var empty Result
	if s, _ := empty.Final(); s != nil {
		t.Errorf("empty result final = %v, want nil", s)
	}

	r := Result{
		Times:  []float64{0, 0.5},
		States: []dynamo.State{{1, 0}, {0.8, -0.4}},
	}
	s, at := r.Final()
	if at != 0.5 || s[0] != 0.8 {
		t.Errorf("Final() = %v at %v", s, at)
	}
	if r.Halted() {
		t.Error("result without terminal firing reports halted")
	}
}

func TestStatePool(t *testing.T) {
	pool := NewStatePool(4)

	s1 := pool.Get()
	if len(s1) != 4 {
		t.Errorf("pool returned wrong size: %d", len(s1))
	}

	s1[0] = 1.0
	s1[1] = 2.0
	pool.Put(s1)

	s2 := pool.Get()
	if s2[0] != 0 || s2[1] != 0 {
		t.Error("pool did not reset state")
	}
}

func TestStatePool_GetAndCopy(t *testing.T) {
	pool := NewStatePool(3)
	src := dynamo.State{1, 2, 3}

	cp := pool.GetAndCopy(src)
	if cp[0] != 1 || cp[1] != 2 || cp[2] != 3 {
		t.Errorf("GetAndCopy failed: got %v", cp)
	}

	cp[0] = 99
	if src[0] == 99 {
		t.Error("GetAndCopy did not create independent copy")
	}
}
