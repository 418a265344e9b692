package utils

import (
	"fmt"
	"path"

	"github.com/fenilsonani/repotidy/internal/ui/styles"
)

// Smallest terminal the plan review renders well in
const (
	MinTerminalWidth  = 80
	MinTerminalHeight = 24
)

// Lines used by the title, summary, status bar and help
const chromeLines = 10

// TruncatePath shortens a slash-separated project path to maxWidth,
// keeping the file name and as much of the leading directory as fits
func TruncatePath(p string, maxWidth int) string {
	if len(p) <= maxWidth {
		return p
	}
	if maxWidth < 10 {
		return "..."
	}

	dir, file := path.Split(p)
	if len(file) > maxWidth-4 {
		return "..." + file[len(file)-(maxWidth-4):]
	}

	room := maxWidth - len(file) - 4 // ".../"
	if room <= 0 {
		return ".../" + file
	}
	return dir[:room] + ".../" + file
}

// TruncateString cuts s to maxLen runes, ending in "..." when shortened
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return "..."
	}
	return string(r[:maxLen-3]) + "..."
}

// CalculatePageSize returns how many table rows fit in the terminal,
// never fewer than five
func CalculatePageSize(terminalHeight int) int {
	return max(terminalHeight-chromeLines, 5)
}

// GetSizeWarningBanner returns a banner when the terminal is below the
// minimum size, or "" when it fits
func GetSizeWarningBanner(width, height int) string {
	if width >= MinTerminalWidth && height >= MinTerminalHeight {
		return ""
	}

	banner := styles.Notice(fmt.Sprintf("terminal too small, %dx%d or larger works best", MinTerminalWidth, MinTerminalHeight))
	if width > 0 && height > 0 {
		banner += styles.DimStyle.Render(fmt.Sprintf(" (current: %dx%d)", width, height))
	}
	return banner + "\n\n"
}
