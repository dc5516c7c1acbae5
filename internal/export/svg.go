package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/taysim/internal/analysis"
	"github.com/san-kum/taysim/internal/sim"
)

// Marker flags one event on a plot.
type Marker struct {
	X, Y  float64
	Label string
}

// TimeSeriesSVG plots one state variable against time with event markers
// and, when the run halted, a ring at the terminal crossing.
func TimeSeriesSVG(res *sim.Result, idx, width, height int, stroke string) string {
	if res == nil || len(res.States) == 0 || idx < 0 || idx >= len(res.States[0]) {
		return ""
	}

	points := make([]analysis.Point, len(res.States))
	for i, x := range res.States {
		points[i] = analysis.Point{X: res.Times[i], Y: x[idx]}
	}

	markers := make([]Marker, 0, len(res.Events))
	for _, f := range res.Events {
		j := nearestSample(res.Times, f.Time)
		markers = append(markers, Marker{X: f.Time, Y: res.States[j][idx], Label: f.Name})
	}

	var halt *Marker
	if res.Halt != nil {
		j := nearestSample(res.Times, res.Halt.Time)
		halt = &Marker{X: res.Halt.Time, Y: res.States[j][idx], Label: res.Halt.Name}
	}

	return render(points, markers, halt, width, height, stroke)
}

// PhaseSVG plots two state variables against each other, markers placed
// at the recorded sample nearest each firing.
func PhaseSVG(res *sim.Result, xIdx, yIdx, width, height int, stroke string) string {
	if res == nil || len(res.States) == 0 {
		return ""
	}
	dim := len(res.States[0])
	if xIdx < 0 || xIdx >= dim || yIdx < 0 || yIdx >= dim {
		return ""
	}

	points := make([]analysis.Point, len(res.States))
	for i, x := range res.States {
		points[i] = analysis.Point{X: x[xIdx], Y: x[yIdx]}
	}

	markers := make([]Marker, 0, len(res.Events))
	for _, f := range res.Events {
		j := nearestSample(res.Times, f.Time)
		markers = append(markers, Marker{X: res.States[j][xIdx], Y: res.States[j][yIdx], Label: f.Name})
	}

	var halt *Marker
	if res.Halt != nil {
		j := nearestSample(res.Times, res.Halt.Time)
		halt = &Marker{X: res.States[j][xIdx], Y: res.States[j][yIdx], Label: res.Halt.Name}
	}

	return render(points, markers, halt, width, height, stroke)
}

// Times may run backward, so the lookup scans instead of bisecting.
func nearestSample(times []float64, t float64) int {
	best, dist := 0, math.Inf(1)
	for i, ti := range times {
		if d := math.Abs(ti - t); d < dist {
			best, dist = i, d
		}
	}
	return best
}

var labelEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func render(points []analysis.Point, markers []Marker, halt *Marker, width, height int, stroke string) string {
	if len(points) < 2 {
		return ""
	}
	if stroke == "" {
		stroke = "#00ff00"
	}

	minX, maxX := points[0].X, points[0].X
	minY, maxY := points[0].Y, points[0].Y
	for _, p := range points {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	maxX += rangeX * 0.1
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeX = maxX - minX
	rangeY = maxY - minY

	px := func(v float64) float64 { return (v - minX) / rangeX * float64(width) }
	py := func(v float64) float64 { return float64(height) - (v-minY)/rangeY*float64(height) }

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
<path fill="none" stroke="%s" stroke-width="1.5" d="M`,
		width, height, width, height, stroke))

	for i, p := range points {
		if i == 0 {
			sb.WriteString(fmt.Sprintf("%.1f,%.1f", px(p.X), py(p.Y)))
		} else {
			sb.WriteString(fmt.Sprintf(" L%.1f,%.1f", px(p.X), py(p.Y)))
		}
	}
	sb.WriteString("\"/>\n")

	for _, m := range markers {
		sb.WriteString(fmt.Sprintf(`<circle cx="%.1f" cy="%.1f" r="3" fill="#ff5f5f"/>
`, px(m.X), py(m.Y)))
		if m.Label != "" {
			sb.WriteString(fmt.Sprintf(`<text x="%.1f" y="%.1f" fill="#e0e0e0" font-size="10">%s</text>
`, px(m.X)+5, py(m.Y)-5, labelEscaper.Replace(m.Label)))
		}
	}

	if halt != nil {
		sb.WriteString(fmt.Sprintf(`<circle cx="%.1f" cy="%.1f" r="6" fill="none" stroke="#ffd75f" stroke-width="1.5"/>
`, px(halt.X), py(halt.Y)))
		if halt.Label != "" {
			sb.WriteString(fmt.Sprintf(`<text x="%.1f" y="%.1f" fill="#ffd75f" font-size="10">%s</text>
`, px(halt.X)+8, py(halt.Y)-8, labelEscaper.Replace(halt.Label)))
		}
	}

	sb.WriteString("</svg>")
	return sb.String()
}
