package analysis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/san-kum/taysim/internal/dynamo"
	"github.com/san-kum/taysim/internal/events"
	"github.com/san-kum/taysim/internal/expr"
	"github.com/san-kum/taysim/internal/precision"
	"github.com/san-kum/taysim/internal/sim"
)

// Section is the set of crossing states captured by a section event,
// projected onto two coordinates.
type Section struct {
	XIndex, YIndex int
	Points         []Point
	Times          []float64
}

// SectionCollector accumulates section points from inside an event
// callback. Register Callback on the trigger that defines the section
// surface.
type SectionCollector[T any] struct {
	ops     precision.Arith[T]
	xi, yi  int
	section Section
}

func NewSectionCollector[T any](ops precision.Arith[T], xIdx, yIdx int) *SectionCollector[T] {
	return &SectionCollector[T]{
		ops: ops, xi: xIdx, yi: yIdx,
		section: Section{XIndex: xIdx, YIndex: yIdx},
	}
}

func (c *SectionCollector[T]) Callback(state []T, at T) bool {
	c.section.Points = append(c.section.Points, Point{
		X: c.ops.Float(state[c.xi]),
		Y: c.ops.Float(state[c.yi]),
	})
	c.section.Times = append(c.section.Times, c.ops.Float(at))
	return true
}

// Section returns what has been collected so far.
func (c *SectionCollector[T]) Section() *Section { return &c.section }

// PoincareSection runs the flow and captures the states where the trigger
// crosses zero in the given direction, projected onto the two chosen
// coordinates. The crossing states come from the root isolator, not from
// grid samples.
func PoincareSection[T any](ctx context.Context, ops precision.Arith[T], src sim.Source[T],
	trigger *expr.Expr, dir events.Direction, xIdx, yIdx int,
	x0 []T, cfg sim.Config, log *slog.Logger) (*Section, error) {

	if xIdx < 0 || xIdx >= src.Dim() || yIdx < 0 || yIdx >= src.Dim() {
		return nil, fmt.Errorf("%w: section records variables %d and %d of a %d-dimensional flow",
			dynamo.ErrDimensionMismatch, xIdx, yIdx, src.Dim())
	}

	det := events.NewDetector(ops, trigger.Vars(), log)
	collector := NewSectionCollector(ops, xIdx, yIdx)
	if _, err := det.Register(events.Descriptor[T]{
		Name:      "section",
		Trigger:   trigger,
		Direction: dir,
		Callback:  collector.Callback,
	}); err != nil {
		return nil, err
	}

	r := sim.NewRunner(ops, src, det, log)
	if _, err := r.Run(ctx, x0, cfg); err != nil {
		return nil, err
	}
	return collector.Section(), nil
}

// SectionToASCII renders the section scatter.
func SectionToASCII(section *Section, width, height int) string {
	if section == nil || len(section.Points) == 0 {
		return "no crossings detected"
	}
	return renderScatter(section.Points, nil, width, height)
}
