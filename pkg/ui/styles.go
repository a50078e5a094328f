package ui

import "github.com/charmbracelet/lipgloss"

// Adaptive colors for light and dark terminals. Light mode colors are tuned
// for contrast on white backgrounds.
var (
	ColorBgHighlight = lipgloss.AdaptiveColor{Light: "#D0D0D0", Dark: "#44475A"}
	ColorText        = lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#F8F8F2"}
	ColorMuted       = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#6272A4"}
	ColorPrimary     = lipgloss.AdaptiveColor{Light: "#6B47D9", Dark: "#BD93F9"}
	ColorInfo        = lipgloss.AdaptiveColor{Light: "#006080", Dark: "#8BE9FD"}
	ColorWarning     = lipgloss.AdaptiveColor{Light: "#B06800", Dark: "#FFB86C"}
	ColorDanger      = lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF5555"}
)

// Styles groups the styles the tree view renders with.
type Styles struct {
	Header   lipgloss.Style
	Row      lipgloss.Style
	Branch   lipgloss.Style
	Selected lipgloss.Style
	Failed   lipgloss.Style
	Guide    lipgloss.Style
	Help     lipgloss.Style
	Banner   lipgloss.Style
}

// DefaultStyles returns the default theme.
func DefaultStyles() Styles {
	return Styles{
		Header:   lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary),
		Row:      lipgloss.NewStyle().Foreground(ColorText),
		Branch:   lipgloss.NewStyle().Foreground(ColorInfo).Bold(true),
		Selected: lipgloss.NewStyle().Background(ColorBgHighlight).Bold(true),
		Failed:   lipgloss.NewStyle().Foreground(ColorDanger),
		Guide:    lipgloss.NewStyle().Foreground(ColorMuted),
		Help:     lipgloss.NewStyle().Foreground(ColorMuted),
		Banner:   lipgloss.NewStyle().Foreground(ColorWarning).Bold(true),
	}
}
