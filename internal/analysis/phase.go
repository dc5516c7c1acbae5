package analysis

import (
	"strings"

	"github.com/san-kum/taysim/internal/sim"
)

// Point is one dot of a two-dimensional scatter.
type Point struct{ X, Y float64 }

// PhasePortrait2D holds a phase-plane projection of a recorded run.
type PhasePortrait2D struct {
	XIndex, YIndex int
	Points         []Point
}

// PhasePortrait projects a recorded trace onto two state coordinates.
// Returns nil when the trace is empty or an index is out of range.
func PhasePortrait(res *sim.Result, xIdx, yIdx int) *PhasePortrait2D {
	if res == nil || len(res.States) == 0 {
		return nil
	}
	dim := len(res.States[0])
	if xIdx < 0 || xIdx >= dim || yIdx < 0 || yIdx >= dim {
		return nil
	}

	portrait := &PhasePortrait2D{
		XIndex: xIdx,
		YIndex: yIdx,
		Points: make([]Point, 0, len(res.States)),
	}
	for _, s := range res.States {
		portrait.Points = append(portrait.Points, Point{X: s[xIdx], Y: s[yIdx]})
	}
	return portrait
}

// PhasePortraitToASCII renders the projection on a rune canvas, with axes
// drawn where they cross the view.
func PhasePortraitToASCII(portrait *PhasePortrait2D, width, height int) string {
	if portrait == nil || len(portrait.Points) == 0 {
		return ""
	}
	return renderScatter(portrait.Points, nil, width, height)
}

// OverlayToASCII draws the trajectory with the section crossings marked
// on top of it.
func OverlayToASCII(portrait *PhasePortrait2D, section *Section, width, height int) string {
	if portrait == nil || len(portrait.Points) == 0 {
		return SectionToASCII(section, width, height)
	}
	var marks []Point
	if section != nil {
		marks = section.Points
	}
	return renderScatter(portrait.Points, marks, width, height)
}

// renderScatter plots dots as bullets and marks as crosses over them.
// Bounds cover both sets with a tenth of padding on each side.
func renderScatter(dots, marks []Point, width, height int) string {
	if width < 2 || height < 2 {
		return ""
	}

	minX, maxX := dots[0].X, dots[0].X
	minY, maxY := dots[0].Y, dots[0].Y
	for _, set := range [][]Point{dots, marks} {
		for _, p := range set {
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

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = make([]rune, width)
		for j := range canvas[i] {
			canvas[i][j] = ' '
		}
	}

	plot := func(points []Point, glyph rune) {
		for _, p := range points {
			col := int((p.X - minX) / rangeX * float64(width-1))
			row := height - 1 - int((p.Y-minY)/rangeY*float64(height-1))
			if row >= 0 && row < height && col >= 0 && col < width {
				canvas[row][col] = glyph
			}
		}
	}
	plot(dots, '•')
	plot(marks, '×')

	if minX <= 0 && maxX >= 0 {
		col := int((0 - minX) / rangeX * float64(width-1))
		for row := 0; row < height; row++ {
			if col >= 0 && col < width && canvas[row][col] == ' ' {
				canvas[row][col] = '│'
			}
		}
	}
	if minY <= 0 && maxY >= 0 {
		row := height - 1 - int((0-minY)/rangeY*float64(height-1))
		for col := 0; col < width; col++ {
			if row >= 0 && row < height && canvas[row][col] == ' ' {
				canvas[row][col] = '─'
			}
		}
	}

	var sb strings.Builder
	for _, row := range canvas {
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	return sb.String()
}
