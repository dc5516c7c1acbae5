package viz

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/taysim/internal/dynamo"
	"github.com/san-kum/taysim/internal/events"
	"github.com/san-kum/taysim/internal/expr"
	"github.com/san-kum/taysim/internal/precision"
	"github.com/san-kum/taysim/internal/sim"
)

const (
	historyCapacity = 600
	logCapacity     = 8
	maxStepsPerTick = 64
)

type TickMsg time.Time

// view pairs a registered event with its re-parsed trigger so the
// monitor can chart the trigger value between firings.
type view struct {
	sum  events.Summary
	trig *expr.Expr
}

// Monitor is the live event view: each frame tick advances the source,
// scans the dense step for crossings, and renders the selected trigger's
// history alongside the firing log and per-event cooldown status.
type Monitor struct {
	name string
	vars []string

	ops     precision.Arith[float64]
	src     sim.Source[float64]
	det     *events.Detector[float64]
	scanner *events.Scanner[float64]
	views   []view

	x  []float64
	x0 []float64
	t  float64
	t0 float64
	dt float64

	running      bool
	halt         *events.Firing
	err          error
	selected     int
	stepsPerTick int

	triggerHist [][]float64
	firings     []events.Firing
	lastFired   map[string]float64

	energy    func(dynamo.State) float64
	energyVal float64
	hasEnergy bool
}

// NewMonitor builds the live view over an already-populated detector.
// Event names, cooldowns and trigger sources come from the detector's
// own summaries.
func NewMonitor(name string, src sim.Source[float64], det *events.Detector[float64], x0 []float64, t0, dt float64, log *slog.Logger) Monitor {
	vars := det.Vars()

	views := make([]view, 0, det.Len())
	for _, s := range det.Summaries() {
		trig, err := expr.Parse(s.Trigger, vars)
		if err != nil {
			trig = nil
		}
		views = append(views, view{sum: s, trig: trig})
	}

	x := make([]float64, len(x0))
	copy(x, x0)
	start := make([]float64, len(x0))
	copy(start, x0)

	return Monitor{
		name:         name,
		vars:         vars,
		ops:          precision.ForDouble(),
		src:          src,
		det:          det,
		scanner:      events.NewScanner(det, log),
		views:        views,
		x:            x,
		x0:           start,
		t:            t0,
		t0:           t0,
		dt:           dt,
		running:      true,
		stepsPerTick: 1,
		triggerHist:  make([][]float64, len(views)),
		firings:      make([]events.Firing, 0, logCapacity),
		lastFired:    make(map[string]float64),
	}
}

// SetEnergy adds an energy readout for models that conserve one.
func (m *Monitor) SetEnergy(fn func(dynamo.State) float64) {
	m.energy = fn
	m.hasEnergy = fn != nil
	if m.hasEnergy {
		m.energyVal = fn(dynamo.State(m.x))
	}
}

func (m Monitor) Init() tea.Cmd {
	return tea.Tick(time.Second/60, func(t time.Time) tea.Msg { return TickMsg(t) })
}

// Update handles key input and the frame tick.
func (m Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			if m.halt == nil && m.err == nil {
				m.running = !m.running
			}
		case "r":
			m.reset()
		case "tab":
			m.cycleTrigger()
		case "up", "k":
			if m.stepsPerTick < maxStepsPerTick {
				m.stepsPerTick *= 2
			}
		case "down", "j":
			if m.stepsPerTick > 1 {
				m.stepsPerTick /= 2
			}
		}
	case TickMsg:
		if m.running {
			for i := 0; i < m.stepsPerTick && m.running; i++ {
				m.step()
			}
		}
		return m, tea.Tick(time.Second/60, func(t time.Time) tea.Msg { return TickMsg(t) })
	}
	return m, nil
}

func (m *Monitor) cycleTrigger() {
	if len(m.views) == 0 {
		return
	}
	m.selected = (m.selected + 1) % len(m.views)
}

// step advances one integration step and scans it.
func (m *Monitor) step() {
	st, err := m.src.Step(m.x, m.t, m.dt)
	if err != nil {
		m.err = err
		m.running = false
		return
	}

	out, err := m.scanner.Scan(st)
	if err != nil {
		m.err = err
		m.running = false
		return
	}

	for _, f := range out.Fired {
		m.record(f)
	}

	if out.Truncated() {
		f := *out.TerminalFiring
		m.record(f)
		m.halt = &f
		tau := m.ops.FromFloat(out.TruncatedAt)
		if m.dt < 0 {
			tau = m.ops.Neg(tau)
		}
		m.x = st.StateAt(tau)
		m.t = f.Time
		m.running = false
	} else {
		m.x = st.End()
		m.t = st.EndTime()
	}

	for i, v := range m.views {
		if v.trig == nil {
			continue
		}
		val, err := expr.Eval(m.ops, v.trig, m.x, m.t)
		if err != nil {
			continue
		}
		m.triggerHist[i] = append(m.triggerHist[i], val)
		if len(m.triggerHist[i]) > historyCapacity {
			m.triggerHist[i] = m.triggerHist[i][1:]
		}
	}

	if m.hasEnergy {
		m.energyVal = m.energy(dynamo.State(m.x))
	}
}

func (m *Monitor) record(f events.Firing) {
	m.firings = append(m.firings, f)
	if len(m.firings) > logCapacity {
		m.firings = m.firings[1:]
	}
	m.lastFired[f.Name] = f.Time
}

// reset restores the initial state and clears histories and cooldowns.
func (m *Monitor) reset() {
	x := make([]float64, len(m.x0))
	copy(x, m.x0)
	m.x = x
	m.t = m.t0
	m.halt = nil
	m.err = nil
	m.running = true
	m.firings = m.firings[:0]
	m.triggerHist = make([][]float64, len(m.views))
	m.lastFired = make(map[string]float64)
	m.det.ResetCooldowns()
	if m.hasEnergy {
		m.energyVal = m.energy(dynamo.State(m.x))
	}
}

// View renders the trigger chart beside the run panel.
func (m Monitor) View() string {
	var graph strings.Builder
	if len(m.views) == 0 {
		graph.WriteString(Subtle.Render("no events registered"))
	} else {
		series := m.triggerHist[m.selected]
		caption := "trigger: " + m.views[m.selected].sum.Name
		if len(series) > 1 {
			chart := asciigraph.Plot(series,
				asciigraph.Height(10),
				asciigraph.Width(44),
				asciigraph.Caption(caption))
			graph.WriteString(GraphStyle.Render(chart))
		} else {
			graph.WriteString(Subtle.Render("collecting " + caption + " ..."))
		}
	}
	graphPane := lipgloss.NewStyle().Padding(1, 2).Render(graph.String())

	var s strings.Builder
	s.WriteString(HeaderStyle.Render(strings.ToUpper(m.name)) + "\n")
	s.WriteString(m.status() + "\n\n")

	s.WriteString(LabelStyle.Render("Time") + ValueStyle.Render(fmt.Sprintf("%.3fs", m.t)) + "\n")
	for i, name := range m.vars {
		if i < len(m.x) {
			s.WriteString(LabelStyle.Render(name) + ValueStyle.Render(fmt.Sprintf("%+.4f", m.x[i])) + "\n")
		}
	}
	if m.hasEnergy {
		s.WriteString(LabelStyle.Render("Energy") + ValueStyle.Render(fmt.Sprintf("%.4f", m.energyVal)) + "\n")
	}
	s.WriteString(LabelStyle.Render("Speed") + ValueStyle.Render(fmt.Sprintf("%d steps/frame", m.stepsPerTick)) + "\n")

	s.WriteString("\n" + Separator(46) + "\n")
	s.WriteString("EVENTS\n")
	for i, v := range m.views {
		if i == m.selected {
			s.WriteString(SelectedStyle.Render(fmt.Sprintf("> %-14s", v.sum.Name)))
		} else {
			s.WriteString(Subtle.Render(fmt.Sprintf("  %-14s", v.sum.Name)))
		}
		s.WriteString(" " + SparklineChart(m.triggerHist[i], 12))
		s.WriteString(" " + m.eventStatus(v) + "\n")
	}

	s.WriteString("\n" + Separator(46) + "\n")
	s.WriteString("LOG\n")
	if len(m.firings) == 0 {
		s.WriteString(Subtle.Render("  no firings yet") + "\n")
	}
	for i := len(m.firings) - 1; i >= 0; i-- {
		f := m.firings[i]
		suffix := ""
		if f.Ambiguous {
			suffix = " ~"
		}
		line := fmt.Sprintf("  %9.4fs  %-14s %s%s", f.Time, f.Name, f.Direction, suffix)
		if m.halt != nil && f.Name == m.halt.Name && f.Time == m.halt.Time {
			s.WriteString(StatusHalted.Render(line) + "\n")
		} else {
			s.WriteString(FiringStyle.Render(line) + "\n")
		}
	}

	s.WriteString(HelpStyle.Render("\nSP:Pause R:Reset Q:Quit TAB:Trigger ↑↓:Speed"))

	return lipgloss.JoinHorizontal(lipgloss.Top, graphPane, PanelStyle.Render(s.String()))
}

func (m Monitor) status() string {
	switch {
	case m.err != nil:
		return StatusHalted.Render("ERROR: " + m.err.Error())
	case m.halt != nil:
		return StatusHalted.Render(fmt.Sprintf("HALTED by %s at t=%.4fs", m.halt.Name, m.halt.Time))
	case m.running:
		return StatusRunning.Render("RUNNING")
	default:
		return StatusPaused.Render("PAUSED")
	}
}

func (m Monitor) eventStatus(v view) string {
	if m.halt != nil && m.halt.Name == v.sum.Name {
		return StatusHalted.Render("halted")
	}
	last, ok := m.lastFired[v.sum.Name]
	if !ok {
		return ReadyStyle.Render("armed")
	}
	elapsed := math.Abs(m.t - last)
	if v.sum.Cooldown > 0 && elapsed < v.sum.Cooldown {
		return CoolingStyle.Render(fmt.Sprintf("cooling %.2fs", v.sum.Cooldown-elapsed))
	}
	return ReadyStyle.Render(fmt.Sprintf("fired @ %.2fs", last))
}
