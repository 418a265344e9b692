package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fenilsonani/repotidy/internal/planner"
	"github.com/fenilsonani/repotidy/internal/ui/models"
)

// ReviewPlan opens the interactive phase picker. It returns the phases the
// user chose and whether they confirmed execution.
func ReviewPlan(plan *planner.Plan) ([]string, bool, error) {
	m := models.NewPlanModel(plan)

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return nil, false, fmt.Errorf("error running interactive mode: %w", err)
	}

	return m.Selected(), m.Confirmed(), nil
}
