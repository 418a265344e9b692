package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fenilsonani/repotidy/internal/planner"
	"github.com/fenilsonani/repotidy/internal/ui/components"
	"github.com/fenilsonani/repotidy/internal/ui/styles"
	uiutils "github.com/fenilsonani/repotidy/internal/ui/utils"
	"github.com/fenilsonani/repotidy/pkg/utils"
)

// ViewState represents the current screen of the plan review
type ViewState int

const (
	ViewPhases ViewState = iota
	ViewConfirm
)

// PlanModel lets the user pick which phases of a plan to execute
type PlanModel struct {
	plan     *planner.Plan
	selected []bool
	table    table.Model
	panel    *components.InfoPanel
	status   *components.StatusBar

	state     ViewState
	cursor    int // Confirm screen: 0 = Yes, 1 = No
	confirmed bool
	done      bool

	width  int
	height int
}

// NewPlanModel creates a review of plan with every non-empty phase selected
func NewPlanModel(plan *planner.Plan) *PlanModel {
	m := &PlanModel{
		plan:     plan,
		selected: make([]bool, len(plan.Phases)),
		panel:    components.NewInfoPanel(80),
		status:   components.NewStatusBar("Plan review"),
		width:    80,
		height:   24,
	}
	for i := range plan.Phases {
		m.selected[i] = !plan.Phases[i].IsEmpty()
	}

	columns := []table.Column{
		{Title: " ", Width: 3},
		{Title: "Phase", Width: 28},
		{Title: "Remove", Width: 7},
		{Title: "Archive", Width: 8},
		{Title: "Move", Width: 6},
		{Title: "Flagged", Width: 8},
		{Title: "Validation", Width: 11},
	}

	m.table = table.New(
		table.WithColumns(columns),
		table.WithRows(m.rows()),
		table.WithFocused(true),
		table.WithHeight(len(plan.Phases)+1),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.Border).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(styles.Text).
		Background(styles.Primary).
		Bold(false)
	m.table.SetStyles(s)

	m.status.SetShortcuts(
		components.Shortcut{Key: "space", Desc: "toggle"},
		components.Shortcut{Key: "a", Desc: "all"},
		components.Shortcut{Key: "tab", Desc: "details"},
		components.Shortcut{Key: "enter", Desc: "execute"},
		components.Shortcut{Key: "q", Desc: "cancel"},
	)
	m.refresh()

	return m
}

func (m *PlanModel) rows() []table.Row {
	rows := make([]table.Row, 0, len(m.plan.Phases))
	for i := range m.plan.Phases {
		p := &m.plan.Phases[i]
		box := "[ ]"
		if m.selected[i] {
			box = "[x]"
		}
		validation := "no"
		if p.ValidationRequired {
			validation = "required"
		}
		rows = append(rows, table.Row{
			box,
			p.Name,
			strconv.Itoa(len(p.FilesToRemove)),
			strconv.Itoa(len(p.FilesToArchive)),
			strconv.Itoa(len(p.FilesToMove)),
			strconv.Itoa(len(p.Warnings)),
			validation,
		})
	}
	return rows
}

func (m *PlanModel) refresh() {
	m.table.SetRows(m.rows())

	count, files := 0, 0
	for i, on := range m.selected {
		if on {
			count++
			files += m.plan.Phases[i].FileCount()
		}
	}
	m.status.SetSelection(count, len(m.plan.Phases), files, m.plan.EstimatedBytesSaved)

	if c := m.table.Cursor(); c >= 0 && c < len(m.plan.Phases) {
		m.panel.SetPhase(&m.plan.Phases[c])
	}
}

// Selected returns the names of the selected phases in plan order
func (m *PlanModel) Selected() []string {
	var names []string
	for i, on := range m.selected {
		if on {
			names = append(names, m.plan.Phases[i].Name)
		}
	}
	return names
}

// Confirmed reports whether the user confirmed execution
func (m *PlanModel) Confirmed() bool {
	return m.confirmed
}

// Init initializes the model
func (m *PlanModel) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m *PlanModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.panel.SetWidth(msg.Width)
		m.table.SetHeight(min(len(m.plan.Phases)+1, uiutils.CalculatePageSize(msg.Height)))
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.done = true
			return m, tea.Quit
		}
		if m.state == ViewConfirm {
			return m.updateConfirm(msg)
		}
		return m.updatePhases(msg)
	}

	return m, nil
}

func (m *PlanModel) updatePhases(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		m.done = true
		return m, tea.Quit
	case " ":
		if c := m.table.Cursor(); c >= 0 && c < len(m.selected) {
			m.selected[c] = !m.selected[c]
			m.refresh()
		}
		return m, nil
	case "a":
		all := true
		for _, on := range m.selected {
			all = all && on
		}
		for i := range m.selected {
			m.selected[i] = !all
		}
		m.refresh()
		return m, nil
	case "tab", "i":
		m.panel.Toggle()
		return m, nil
	case "enter":
		if len(m.Selected()) == 0 {
			return m, nil
		}
		m.state = ViewConfirm
		// High-risk plans default to No
		m.cursor = 0
		if m.plan.RiskLevel == planner.RiskHigh {
			m.cursor = 1
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	m.refresh()
	return m, cmd
}

func (m *PlanModel) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "left", "h", "right", "l", "tab":
		m.cursor = 1 - m.cursor
	case "y":
		m.confirmed = true
		m.done = true
		return m, tea.Quit
	case "n", "esc":
		m.state = ViewPhases
	case "enter":
		if m.cursor == 0 {
			m.confirmed = true
			m.done = true
			return m, tea.Quit
		}
		m.state = ViewPhases
	case "q":
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

// View renders the model
func (m *PlanModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(uiutils.GetSizeWarningBanner(m.width, m.height))
	b.WriteString(styles.TitleStyle.Render("repotidy cleanup plan"))
	b.WriteString("\n")

	risk := string(m.plan.RiskLevel)
	fmt.Fprintf(&b, "%s  risk %s  •  ~%s recoverable\n\n",
		styles.DimStyle.Render(uiutils.TruncatePath(m.plan.Root, m.width/2)),
		styles.RiskStyle(risk).Render(risk),
		utils.FormatBytes(m.plan.EstimatedBytesSaved))

	if m.state == ViewConfirm {
		b.WriteString(m.confirmView())
	} else {
		b.WriteString(m.table.View())
		b.WriteString("\n")
		if panel := m.panel.Render(); panel != "" {
			b.WriteString("\n" + panel + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(m.status.Render(m.width))
	return b.String()
}

func (m *PlanModel) confirmView() string {
	var b strings.Builder

	names := m.Selected()
	files := 0
	for _, name := range names {
		if p, ok := m.plan.Phase(name); ok {
			files += p.FileCount()
		}
	}

	fmt.Fprintf(&b, "Execute %d phases touching %d files?\n", len(names), files)
	for _, name := range names {
		b.WriteString("  " + styles.CheckedBox() + " " + name + "\n")
	}
	b.WriteString(styles.HelpStyle.Render("Every phase gets its own rollback point.") + "\n\n")

	options := []string{"Yes, execute", "No, go back"}
	for i, opt := range options {
		if i == m.cursor {
			b.WriteString(styles.SuccessStyle.Render("▸ " + opt))
		} else {
			b.WriteString(styles.DimStyle.Render("  " + opt))
		}
		b.WriteString("   ")
	}
	b.WriteString("\n")

	return b.String()
}
