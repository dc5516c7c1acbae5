package metrics

import (
	"math"

	"github.com/san-kum/taysim/internal/dynamo"
	"github.com/san-kum/taysim/internal/events"
)

// The event metrics hang off the scanner as observers but also carry the
// standard Name/Observe/Value/Reset surface with a no-op state Observe,
// so the same value can be registered as a run metric and land in the
// harvested metric map.

// FiringCount counts firings, terminal ones included. With a filter it
// counts one event by name; empty counts them all.
type FiringCount struct {
	name   string
	filter string
	count  int
}

func NewFiringCount(filter string) *FiringCount {
	name := "firings"
	if filter != "" {
		name = "firings." + filter
	}
	return &FiringCount{name: name, filter: filter}
}

func (c *FiringCount) Name() string { return c.name }

func (c *FiringCount) OnFiring(f events.Firing) {
	if c.filter == "" || f.Name == c.filter {
		c.count++
	}
}

func (c *FiringCount) OnTerminal(f events.Firing) {
	if c.filter == "" || f.Name == c.filter {
		c.count++
	}
}

func (c *FiringCount) OnSuppressed(id events.EventID, name string, t float64) {}

func (c *FiringCount) Observe(x dynamo.State, t float64) {}

func (c *FiringCount) Value() float64 { return float64(c.count) }

func (c *FiringCount) Reset() { c.count = 0 }

// SuppressedCount counts crossings swallowed by cooldown windows.
type SuppressedCount struct {
	name   string
	filter string
	count  int
}

func NewSuppressedCount(filter string) *SuppressedCount {
	name := "suppressed"
	if filter != "" {
		name = "suppressed." + filter
	}
	return &SuppressedCount{name: name, filter: filter}
}

func (c *SuppressedCount) Name() string { return c.name }

func (c *SuppressedCount) OnFiring(f events.Firing) {}

func (c *SuppressedCount) OnTerminal(f events.Firing) {}

func (c *SuppressedCount) OnSuppressed(id events.EventID, name string, t float64) {
	if c.filter == "" || name == c.filter {
		c.count++
	}
}

func (c *SuppressedCount) Observe(x dynamo.State, t float64) {}

func (c *SuppressedCount) Value() float64 { return float64(c.count) }

func (c *SuppressedCount) Reset() { c.count = 0 }

// MinGap tracks the smallest spacing between consecutive firings, the
// figure a cooldown window is tuned against. Gaps are absolute, so
// backward runs read the same way.
type MinGap struct {
	name   string
	filter string
	last   float64
	primed bool
	min    float64
}

func NewMinGap(filter string) *MinGap {
	name := "min_gap"
	if filter != "" {
		name = "min_gap." + filter
	}
	return &MinGap{name: name, filter: filter, min: math.Inf(1)}
}

func (g *MinGap) Name() string { return g.name }

func (g *MinGap) OnFiring(f events.Firing) { g.note(f) }

func (g *MinGap) OnTerminal(f events.Firing) { g.note(f) }

func (g *MinGap) note(f events.Firing) {
	if g.filter != "" && f.Name != g.filter {
		return
	}
	if g.primed {
		if gap := math.Abs(f.Time - g.last); gap < g.min {
			g.min = gap
		}
	}
	g.last = f.Time
	g.primed = true
}

func (g *MinGap) OnSuppressed(id events.EventID, name string, t float64) {}

func (g *MinGap) Observe(x dynamo.State, t float64) {}

// Value reports the smallest gap seen, or 0 before two firings have
// landed.
func (g *MinGap) Value() float64 {
	if math.IsInf(g.min, 1) {
		return 0
	}
	return g.min
}

func (g *MinGap) Reset() {
	g.last = 0
	g.primed = false
	g.min = math.Inf(1)
}
