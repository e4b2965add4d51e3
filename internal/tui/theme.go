package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/mnemo-go/internal/graph"
	"github.com/raphaelgruber/mnemo-go/internal/models"
	"github.com/raphaelgruber/mnemo-go/internal/reconcile"
)

// Theme holds the color scheme for the dashboard.
type Theme struct {
	Status    lipgloss.Color
	Success   lipgloss.Color
	Error     lipgloss.Color
	Warning   lipgloss.Color
	Hint      lipgloss.Color
	Highlight lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:    lipgloss.Color("#5FAFD7"), // light blue
	Success:   lipgloss.Color("#00D787"), // green
	Error:     lipgloss.Color("#FF005F"), // red
	Warning:   lipgloss.Color("#FFAF00"), // amber
	Hint:      lipgloss.Color("#6C6C6C"), // dim gray
	Highlight: lipgloss.Color("#FEF08A"), // pale yellow
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) successStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) warningStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Warning)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

func (t Theme) titleStyle() lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Underline(true)
}

func (t Theme) selectedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Reverse(true)
}

// jobStyle colors a job status.
func (t Theme) jobStyle(s models.JobStatus) lipgloss.Style {
	switch s {
	case models.JobStatusSuccess:
		return t.successStyle()
	case models.JobStatusFailed:
		return t.errorStyle()
	case models.JobStatusRunning:
		return t.statusStyle()
	default:
		return t.hintStyle()
	}
}

// stepStyle colors a raw step status.
func (t Theme) stepStyle(status string) lipgloss.Style {
	if status == reconcile.StepDone {
		return t.successStyle()
	}
	switch strings.ToLower(status) {
	case reconcile.StepFailed, reconcile.StepPanic:
		return t.errorStyle()
	case reconcile.StepRunning:
		return t.statusStyle()
	default:
		return t.hintStyle()
	}
}

// serviceStyle colors a health status.
func (t Theme) serviceStyle(status string) lipgloss.Style {
	if status == models.ServiceUp {
		return t.successStyle()
	}
	return t.errorStyle()
}

// nodeStyle renders a node with its class palette.
func (t Theme) nodeStyle(k graph.Kind, highlighted bool) lipgloss.Style {
	p := graph.StyleFor(k)
	s := lipgloss.NewStyle()
	if p.Foreground != "" {
		s = s.Foreground(lipgloss.Color(p.Border))
	}
	if highlighted {
		s = s.Background(t.Highlight).Foreground(lipgloss.Color("#1f1f1f")).Bold(true)
	}
	return s
}
