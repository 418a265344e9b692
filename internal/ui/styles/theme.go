package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette
var (
	Primary = lipgloss.Color("#7C3AED")
	Text    = lipgloss.Color("#F3F4F6")
	Border  = lipgloss.Color("#4B5563")
	BgDark  = lipgloss.Color("#1F2937")

	green  = lipgloss.Color("#10B981")
	amber  = lipgloss.Color("#F59E0B")
	red    = lipgloss.Color("#EF4444")
	blue   = lipgloss.Color("#3B82F6")
	silver = lipgloss.Color("#9CA3AF")
)

var (
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(Primary).MarginBottom(1)
	PanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(Border).Padding(0, 1)

	FilePathStyle = lipgloss.NewStyle().Foreground(blue)
	FileSizeStyle = lipgloss.NewStyle().Foreground(amber)

	SuccessStyle = lipgloss.NewStyle().Foreground(green).Bold(true)
	WarningStyle = lipgloss.NewStyle().Foreground(amber).Bold(true)
	ErrorStyle   = lipgloss.NewStyle().Foreground(red).Bold(true)

	DimStyle  = lipgloss.NewStyle().Foreground(silver)
	HelpStyle = DimStyle.Italic(true)
	BoldStyle = lipgloss.NewStyle().Bold(true)
)

// RiskStyle colors a plan risk level ("low", "medium", "high")
func RiskStyle(level string) lipgloss.Style {
	switch level {
	case "high":
		return ErrorStyle
	case "medium":
		return WarningStyle
	}
	return SuccessStyle
}

// Outcome line helpers used by the CLI
func Passed(msg string) string { return SuccessStyle.Render("✓ " + msg) }
func Failed(msg string) string { return ErrorStyle.Render("✗ " + msg) }
func Notice(msg string) string { return WarningStyle.Render("! " + msg) }

// CheckedBox renders a ticked phase checkbox
func CheckedBox() string {
	return lipgloss.NewStyle().Foreground(green).Render("☑")
}

// ProgressBar renders current/total as a bar width cells wide
func ProgressBar(current, total int, width int) string {
	if total <= 0 || width <= 0 {
		return ""
	}
	filled := min(max(current, 0)*width/total, width)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return lipgloss.NewStyle().Foreground(Primary).Render(bar)
}
