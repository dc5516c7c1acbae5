package export

import (
	"strings"
	"testing"

	"github.com/san-kum/taysim/internal/dynamo"
	"github.com/san-kum/taysim/internal/events"
	"github.com/san-kum/taysim/internal/sim"
)

func plotResult() *sim.Result {
	return &sim.Result{
		Times:  []float64{0, 0.1, 0.2, 0.3, 0.4},
		States: []dynamo.State{{1, 0}, {0.8, -0.3}, {0.4, -0.6}, {-0.1, -0.8}, {-0.5, -0.9}},
		Events: []events.Firing{
			{Name: "crossing", Time: 0.28, Direction: events.Negative},
		},
		StepsTaken: 4,
	}
}

func TestTimeSeriesSVG(t *testing.T) {
	res := plotResult()
	res.Halt = &events.Firing{Name: "stop", Time: 0.4}

	svg := TimeSeriesSVG(res, 0, 640, 480, "")
	if !strings.HasPrefix(svg, `<?xml version="1.0"`) {
		t.Fatal("missing XML declaration")
	}
	if !strings.HasSuffix(svg, "</svg>") {
		t.Fatal("unterminated document")
	}
	if !strings.Contains(svg, `stroke="#00ff00"`) {
		t.Error("default stroke not applied")
	}
	if !strings.Contains(svg, "<path") {
		t.Error("missing trajectory path")
	}
	if got := strings.Count(svg, "<circle"); got != 2 {
		t.Errorf("expected 2 circles (marker + halt ring), got %d", got)
	}
	if !strings.Contains(svg, ">crossing</text>") {
		t.Error("missing event label")
	}
	if !strings.Contains(svg, ">stop</text>") {
		t.Error("missing halt label")
	}
	if !strings.Contains(svg, `r="6"`) {
		t.Error("missing halt ring")
	}
}

func TestTimeSeriesSVGRejectsBadInput(t *testing.T) {
	if s := TimeSeriesSVG(plotResult(), 5, 640, 480, ""); s != "" {
		t.Error("expected empty output for out-of-range index")
	}
	if s := TimeSeriesSVG(&sim.Result{}, 0, 640, 480, ""); s != "" {
		t.Error("expected empty output for empty result")
	}
	if s := TimeSeriesSVG(nil, 0, 640, 480, ""); s != "" {
		t.Error("expected empty output for nil result")
	}
}

func TestPhaseSVG(t *testing.T) {
	svg := PhaseSVG(plotResult(), 0, 1, 400, 400, "#5fafff")
	if !strings.Contains(svg, `stroke="#5fafff"`) {
		t.Error("stroke color not applied")
	}
	if got := strings.Count(svg, "<circle"); got != 1 {
		t.Errorf("expected 1 marker circle, got %d", got)
	}
	if s := PhaseSVG(plotResult(), 0, 3, 400, 400, ""); s != "" {
		t.Error("expected empty output for out-of-range axis")
	}
}

func TestMarkerLabelEscaping(t *testing.T) {
	res := plotResult()
	res.Events[0].Name = "x<0"

	svg := TimeSeriesSVG(res, 0, 640, 480, "")
	if !strings.Contains(svg, ">x&lt;0</text>") {
		t.Error("label not escaped")
	}
}

func TestNearestSample(t *testing.T) {
	forward := []float64{0, 0.1, 0.2, 0.3}
	if i := nearestSample(forward, 0.22); i != 2 {
		t.Errorf("expected index 2, got %d", i)
	}

	backward := []float64{0, -0.1, -0.2, -0.3}
	if i := nearestSample(backward, -0.28); i != 3 {
		t.Errorf("expected index 3, got %d", i)
	}
}
