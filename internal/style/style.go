package style

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
)

// --- Reusable Colors ---
var (
	colorPink      = lipgloss.Color("205")
	colorLightGray = lipgloss.Color("229")
	colorCyan      = lipgloss.Color("212")
	colorGreen     = lipgloss.Color("42")
	colorRed       = lipgloss.Color("196")
)

// --- General Purpose Styles ---
var (
	ErrorStyle = lipgloss.NewStyle().Foreground(colorRed)
	HelpStyle  = lipgloss.NewStyle().Faint(true)
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorPink)
)

// --- Call Screen Styles ---
var (
	PeerStyle      = lipgloss.NewStyle().Bold(true).Foreground(colorLightGray)
	DurationStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorGreen)
	ControlOnStyle = lipgloss.NewStyle().Foreground(colorCyan)
	EndedStyle     = lipgloss.NewStyle().Faint(true)
)

// NewSpinner creates a spinner with a consistent style.
func NewSpinner() spinner.Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorPink)
	return s
}
