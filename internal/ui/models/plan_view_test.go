package models

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenilsonani/repotidy/internal/planner"
)

func testPlan(risk planner.RiskLevel) *planner.Plan {
	return &planner.Plan{
		Root: "/work/app",
		Phases: []planner.Phase{
			{Name: planner.PhaseTemporaryCleanup, FilesToRemove: []string{"temp/a.tmp"}, ValidationRequired: true},
			{Name: planner.PhaseDocumentation},
			{Name: planner.PhaseScripts, FilesToArchive: []string{"scripts/deploy.js"}, Warnings: map[string][]string{"scripts/deploy.js": {"critical script"}}},
			{Name: planner.PhaseFolders, FilesToMove: []planner.FileMove{{From: "settings.json", To: "config/settings.json"}}},
		},
		RiskLevel: risk,
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func send(m *PlanModel, keys ...string) tea.Cmd {
	var cmd tea.Cmd
	for _, k := range keys {
		_, cmd = m.Update(key(k))
	}
	return cmd
}

func TestNewPlanModelSelectsNonEmptyPhases(t *testing.T) {
	m := NewPlanModel(testPlan(planner.RiskLow))

	assert.Equal(t, []string{planner.PhaseTemporaryCleanup, planner.PhaseScripts, planner.PhaseFolders}, m.Selected())
	assert.False(t, m.Confirmed())
	assert.Contains(t, m.View(), planner.PhaseTemporaryCleanup)
}

func TestPlanModelToggle(t *testing.T) {
	m := NewPlanModel(testPlan(planner.RiskLow))

	send(m, " ")
	assert.Equal(t, []string{planner.PhaseScripts, planner.PhaseFolders}, m.Selected())

	send(m, "down", " ")
	assert.Equal(t, []string{planner.PhaseDocumentation, planner.PhaseScripts, planner.PhaseFolders}, m.Selected())

	send(m, "a")
	assert.Len(t, m.Selected(), 4)

	send(m, "a")
	assert.Empty(t, m.Selected())

	// Nothing selected: enter does nothing
	send(m, "enter")
	assert.Equal(t, ViewPhases, m.state)
}

func TestPlanModelConfirm(t *testing.T) {
	m := NewPlanModel(testPlan(planner.RiskLow))

	send(m, "enter")
	require.Equal(t, ViewConfirm, m.state)
	assert.Contains(t, m.View(), "Execute 3 phases touching 3 files?")

	cmd := send(m, "enter")
	require.NotNil(t, cmd)
	assert.True(t, m.Confirmed())
}

func TestPlanModelHighRiskDefaultsToNo(t *testing.T) {
	m := NewPlanModel(testPlan(planner.RiskHigh))

	send(m, "enter", "enter")
	assert.False(t, m.Confirmed())
	assert.Equal(t, ViewPhases, m.state, "declining returns to the phase list")

	send(m, "enter", "y")
	assert.True(t, m.Confirmed())
}

func TestPlanModelCancel(t *testing.T) {
	m := NewPlanModel(testPlan(planner.RiskLow))

	cmd := send(m, "q")
	require.NotNil(t, cmd)
	assert.False(t, m.Confirmed())
	assert.Empty(t, m.View())
}

func TestPlanModelDetailsPanel(t *testing.T) {
	m := NewPlanModel(testPlan(planner.RiskLow))
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	send(m, "down", "down", "tab")
	view := m.View()
	assert.Contains(t, view, "scripts/deploy.js")
	assert.Contains(t, view, "critical script")
}
