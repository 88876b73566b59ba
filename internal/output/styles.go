package output

import "github.com/charmbracelet/lipgloss"

// Color palette - single amber accent over neutral grays
const (
	ColorAmber    = "214" // Primary accent - letter headers, highlights
	ColorAmberDim = "172" // Dimmed amber for counters
	ColorWhite    = "255" // Topic names
	ColorGray     = "245" // Secondary text, dates
	ColorDarkGray = "238" // Separators, footers
	ColorRed      = "196" // Errors
	ColorYellow   = "220" // Warnings
	ColorGreen    = "40"  // Delivered counts
)

// Styles holds the styles used by catalog and relay rendering.
type Styles struct {
	Header  lipgloss.Style
	Letter  lipgloss.Style
	Topic   lipgloss.Style
	Count   lipgloss.Style
	Dim     lipgloss.Style
	Footer  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}

// DefaultStyles returns styled components for terminal output.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAmber)),
		Letter:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAmber)),
		Topic:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorWhite)),
		Count:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAmberDim)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Footer:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGreen)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
	}
}

// NoColorStyles returns unstyled components for plain mode.
func NoColorStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle(),
		Letter:  lipgloss.NewStyle(),
		Topic:   lipgloss.NewStyle(),
		Count:   lipgloss.NewStyle(),
		Dim:     lipgloss.NewStyle(),
		Footer:  lipgloss.NewStyle(),
		Success: lipgloss.NewStyle(),
		Warning: lipgloss.NewStyle(),
		Error:   lipgloss.NewStyle(),
	}
}

// GetStyles returns the appropriate styles based on color preference.
func GetStyles(noColor bool) Styles {
	if noColor {
		return NoColorStyles()
	}
	return DefaultStyles()
}
