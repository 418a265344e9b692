package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fenilsonani/repotidy/internal/ui/styles"
	"github.com/fenilsonani/repotidy/pkg/utils"
)

// Shortcut is one key hint on the status bar
type Shortcut struct {
	Key  string
	Desc string
}

// StatusBar represents a status bar component that displays at the bottom of views
type StatusBar struct {
	viewName  string
	selected  int
	total     int
	files     int
	size      int64
	shortcuts []Shortcut
}

// NewStatusBar creates a new status bar
func NewStatusBar(viewName string) *StatusBar {
	return &StatusBar{viewName: viewName}
}

// SetSelection sets the selected phase count, the file count they touch
// and their estimated savings
func (s *StatusBar) SetSelection(selected, total, files int, size int64) {
	s.selected = selected
	s.total = total
	s.files = files
	s.size = size
}

// SetShortcuts sets the shortcuts to display, in order
func (s *StatusBar) SetShortcuts(shortcuts ...Shortcut) {
	s.shortcuts = shortcuts
}

// Render renders the status bar with the given width
func (s *StatusBar) Render(width int) string {
	if width <= 0 {
		width = 80
	}

	var parts []string
	if s.viewName != "" {
		parts = append(parts, styles.BoldStyle.Render(s.viewName))
	}
	if s.total > 0 {
		parts = append(parts, fmt.Sprintf("%d/%d phases", s.selected, s.total))
		parts = append(parts, fmt.Sprintf("%d files", s.files))
	}
	if s.size > 0 {
		parts = append(parts, styles.FileSizeStyle.Render("~"+utils.FormatBytes(s.size)))
	}
	leftSide := strings.Join(parts, " • ")

	hints := make([]string, 0, len(s.shortcuts))
	for _, sc := range s.shortcuts {
		hints = append(hints, styles.DimStyle.Render(sc.Key)+":"+sc.Desc)
	}
	rightSide := strings.Join(hints, " ")

	spacing := width - lipgloss.Width(leftSide) - lipgloss.Width(rightSide) - 2
	if spacing < 1 {
		// Hints go first when space runs out
		rightSide = ""
		spacing = 1
	}

	statusBarStyle := lipgloss.NewStyle().
		Foreground(styles.Text).
		Background(styles.BgDark).
		Padding(0, 1).
		Width(width)

	return statusBarStyle.Render(leftSide + strings.Repeat(" ", spacing) + rightSide)
}
