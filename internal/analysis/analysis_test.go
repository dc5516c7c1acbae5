package analysis

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/san-kum/taysim/internal/dynamo"
	"github.com/san-kum/taysim/internal/events"
	"github.com/san-kum/taysim/internal/expr"
	"github.com/san-kum/taysim/internal/precision"
	"github.com/san-kum/taysim/internal/sim"
	"github.com/san-kum/taysim/internal/taylor"
)

func quietLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func oscillatorSource(t *testing.T) *taylor.Stepper[float64] {
	t.Helper()
	sys, err := taylor.NewSystem("oscillator", []string{"x", "v"}, []string{"v", "-x"})
	if err != nil {
		t.Fatalf("system: %v", err)
	}
	st, err := taylor.NewStepper(precision.ForDouble(), sys, 12, quietLogger())
	if err != nil {
		t.Fatalf("stepper: %v", err)
	}
	return st
}

func TestPoincareSectionRisingCrossings(t *testing.T) {
	trigger, err := expr.Parse("x", []string{"x", "v"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	sec, err := PoincareSection(context.Background(), precision.ForDouble(), oscillatorSource(t),
		trigger, events.Positive, 0, 1,
		[]float64{1, 0}, sim.Config{Dt: 0.1, Duration: 10}, quietLogger())
	if err != nil {
		t.Fatalf("section failed: %v", err)
	}

	// x = cos t rises through zero only at 3pi/2 within the span, where
	// v = -sin t = 1.
	if len(sec.Points) != 1 {
		t.Fatalf("expected 1 crossing, got %d: %+v", len(sec.Points), sec.Points)
	}
	if math.Abs(sec.Times[0]-3*math.Pi/2) > 1e-8 {
		t.Errorf("crossing at %v, want 3pi/2", sec.Times[0])
	}
	if math.Abs(sec.Points[0].X) > 1e-9 || math.Abs(sec.Points[0].Y-1) > 1e-8 {
		t.Errorf("crossing state = %+v, want (0, 1)", sec.Points[0])
	}
}

func TestPoincareSectionAnyDirection(t *testing.T) {
	trigger, err := expr.Parse("x", []string{"x", "v"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	sec, err := PoincareSection(context.Background(), precision.ForDouble(), oscillatorSource(t),
		trigger, events.Any, 0, 1,
		[]float64{1, 0}, sim.Config{Dt: 0.1, Duration: 10}, quietLogger())
	if err != nil {
		t.Fatalf("section failed: %v", err)
	}

	wantV := []float64{-1, 1, -1}
	if len(sec.Points) != len(wantV) {
		t.Fatalf("expected %d crossings, got %d", len(wantV), len(sec.Points))
	}
	for i, want := range wantV {
		if math.Abs(sec.Points[i].Y-want) > 1e-8 {
			t.Errorf("crossing %d has v=%v, want %v", i, sec.Points[i].Y, want)
		}
	}
}

func TestPoincareSectionBadIndex(t *testing.T) {
	trigger, err := expr.Parse("x", []string{"x", "v"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	_, err = PoincareSection(context.Background(), precision.ForDouble(), oscillatorSource(t),
		trigger, events.Any, 0, 5,
		[]float64{1, 0}, sim.Config{Dt: 0.1, Duration: 1}, quietLogger())
	if !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected dimension error, got %v", err)
	}
}

func TestPhasePortrait(t *testing.T) {
	res := &sim.Result{
		States: []dynamo.State{{1, 2}, {3, 4}, {5, 6}},
		Times:  []float64{0, 1, 2},
	}

	p := PhasePortrait(res, 0, 1)
	if p == nil || len(p.Points) != 3 {
		t.Fatalf("portrait = %+v", p)
	}
	if p.Points[1] != (Point{3, 4}) {
		t.Errorf("point 1 = %+v", p.Points[1])
	}

	if PhasePortrait(res, 0, 2) != nil {
		t.Error("out-of-range index must yield nil")
	}
	if PhasePortrait(&sim.Result{}, 0, 1) != nil {
		t.Error("empty trace must yield nil")
	}
}

func TestRenderScatter(t *testing.T) {
	p := &PhasePortrait2D{Points: []Point{{-1, -1}, {0, 0.5}, {1, 1}}}

	out := PhasePortraitToASCII(p, 40, 10)
	if !strings.Contains(out, "•") {
		t.Error("expected plotted points")
	}
	if !strings.Contains(out, "│") || !strings.Contains(out, "─") {
		t.Error("expected axes through the origin")
	}
	if lines := strings.Count(out, "\n"); lines != 10 {
		t.Errorf("expected 10 rows, got %d", lines)
	}

	if PhasePortraitToASCII(nil, 40, 10) != "" {
		t.Error("nil portrait renders empty")
	}
}

func TestOverlayMarksSection(t *testing.T) {
	p := &PhasePortrait2D{Points: []Point{{-1, 0}, {1, 0}}}
	sec := &Section{Points: []Point{{0, 1}}}

	out := OverlayToASCII(p, sec, 40, 10)
	if !strings.Contains(out, "×") {
		t.Error("expected section marks in the overlay")
	}

	if got := SectionToASCII(&Section{}, 40, 10); got != "no crossings detected" {
		t.Errorf("empty section = %q", got)
	}
}
