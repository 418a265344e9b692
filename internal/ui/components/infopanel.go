package components

import (
	"fmt"
	"strings"

	"github.com/fenilsonani/repotidy/internal/planner"
	"github.com/fenilsonani/repotidy/internal/ui/styles"
	uiutils "github.com/fenilsonani/repotidy/internal/ui/utils"
)

// maxPanelEntries caps the file lines shown per action
const maxPanelEntries = 8

// InfoPanel shows what one phase will do to which files
type InfoPanel struct {
	phase   *planner.Phase
	visible bool
	width   int
}

// NewInfoPanel creates a hidden panel
func NewInfoPanel(width int) *InfoPanel {
	return &InfoPanel{width: width}
}

// SetPhase selects the phase to describe
func (p *InfoPanel) SetPhase(phase *planner.Phase) {
	p.phase = phase
}

// Toggle toggles the visibility of the panel
func (p *InfoPanel) Toggle() {
	p.visible = !p.visible
}

// IsVisible returns whether the panel is visible
func (p *InfoPanel) IsVisible() bool {
	return p.visible
}

// SetWidth sets the width of the panel
func (p *InfoPanel) SetWidth(width int) {
	p.width = width
}

// Render renders the panel, or "" when hidden or empty
func (p *InfoPanel) Render() string {
	if !p.visible || p.phase == nil {
		return ""
	}

	width := p.width - 4
	if width < 40 {
		width = 40
	}
	pathWidth := width - 14

	var b strings.Builder
	b.WriteString(styles.BoldStyle.Render(p.phase.Name))
	if p.phase.Description != "" {
		b.WriteString("\n" + styles.DimStyle.Render(p.phase.Description))
	}
	b.WriteString("\n")

	section := func(label string, lines []string) {
		if len(lines) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n%s (%d)\n", label, len(lines))
		for i, line := range lines {
			if i == maxPanelEntries {
				b.WriteString(styles.DimStyle.Render(fmt.Sprintf("  ... and %d more", len(lines)-maxPanelEntries)) + "\n")
				break
			}
			b.WriteString("  " + line + "\n")
		}
	}

	var remove, archive, move []string
	for _, rel := range p.phase.FilesToRemove {
		remove = append(remove, styles.FilePathStyle.Render(uiutils.TruncatePath(rel, pathWidth)))
	}
	for _, rel := range p.phase.FilesToArchive {
		line := styles.FilePathStyle.Render(uiutils.TruncatePath(rel, pathWidth))
		if w := p.phase.Warnings[rel]; len(w) > 0 {
			line += " " + styles.WarningStyle.Render(uiutils.TruncateString(strings.Join(w, "; "), width/2))
		}
		archive = append(archive, line)
	}
	for _, m := range p.phase.FilesToMove {
		move = append(move, styles.FilePathStyle.Render(uiutils.TruncatePath(m.From, pathWidth/2))+" → "+uiutils.TruncatePath(m.To, pathWidth/2))
	}

	section("Remove", remove)
	section("Archive", archive)
	section("Move", move)

	if p.phase.IsEmpty() {
		b.WriteString("\n" + styles.DimStyle.Render("Nothing to do") + "\n")
	}

	return styles.PanelStyle.Width(width).Render(strings.TrimRight(b.String(), "\n"))
}
