package viz

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Shared terminal styles for the live monitor and the plot commands.
var (
	HeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)

	StatusRunning = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff88"))
	StatusPaused  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffaa00"))
	StatusHalted  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff4444"))

	LabelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	ValueStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	SelectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	Subtle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#666688"))

	GraphStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2).Width(52)
	HelpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)

	FiringStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ccff"))
	CoolingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffaa00"))
	ReadyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ff88"))

	SparkHigh = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ff88"))
	SparkMid  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffcc00"))
	SparkLow  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff4444"))
)

// SparklineChart renders a mini sparkline from values.
func SparklineChart(values []float64, width int) string {
	if len(values) == 0 {
		return strings.Repeat("─", width)
	}

	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

	min, max := values[0], values[0]
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	rng := max - min
	if rng == 0 {
		rng = 1
	}

	step := len(values) / width
	if step < 1 {
		step = 1
	}

	var result strings.Builder
	for i := 0; i < width && i*step < len(values); i++ {
		v := values[i*step]
		norm := (v - min) / rng
		idx := int(norm * float64(len(chars)-1))
		if idx >= len(chars) {
			idx = len(chars) - 1
		}
		if idx < 0 {
			idx = 0
		}

		c := chars[idx]
		if norm > 0.7 {
			result.WriteString(SparkHigh.Render(string(c)))
		} else if norm > 0.3 {
			result.WriteString(SparkMid.Render(string(c)))
		} else {
			result.WriteString(SparkLow.Render(string(c)))
		}
	}

	return result.String()
}

// Decorative separator
func Separator(width int) string {
	mid := width / 2
	left := strings.Repeat("─", mid-3)
	right := strings.Repeat("─", width-mid-3)
	return Subtle.Render(left + " ◆ " + right)
}
