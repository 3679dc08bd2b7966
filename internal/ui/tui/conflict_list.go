package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/klauern/agentsync/internal/diff"
	"github.com/klauern/agentsync/internal/sync"
)

// ConflictAction represents what the user decided for the whole pull.
type ConflictAction int

const (
	// ConflictActionNone means no action was taken (user quit).
	ConflictActionNone ConflictAction = iota
	// ConflictActionApply means the user chose a side for every conflict.
	ConflictActionApply
	// ConflictActionAbort means the user aborted the pull.
	ConflictActionAbort
)

// Choice is the side picked for one conflicting file.
type Choice string

const (
	ChoiceRemote Choice = "remote"
	ChoiceLocal  Choice = "local"
)

// ConflictListResult contains the result of the conflict review.
type ConflictListResult struct {
	Action  ConflictAction
	Choices map[string]Choice // Key: Conflict.Key()
}

// Resolution converts the result into a pull resolution. Anything other
// than an explicit apply aborts the pull.
func (r ConflictListResult) Resolution() sync.Resolution {
	if r.Action != ConflictActionApply {
		return sync.AbortPull()
	}
	res := sync.Resolution{KeepLocal: make(map[string]bool)}
	for k, c := range r.Choices {
		if c == ChoiceLocal {
			res.KeepLocal[k] = true
		}
	}
	return res
}

type conflictPhase int

const (
	phaseList conflictPhase = iota
	phaseDetail
)

type conflictKeyMap struct {
	Up        key.Binding
	Down      key.Binding
	Select    key.Binding
	Remote    key.Binding
	Local     key.Binding
	AllRemote key.Binding
	AllLocal  key.Binding
	Confirm   key.Binding
	Back      key.Binding
	Help      key.Binding
	Quit      key.Binding
}

func defaultConflictKeyMap() conflictKeyMap {
	return conflictKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "view diff"),
		),
		Remote: key.NewBinding(
			key.WithKeys("r", "1"),
			key.WithHelp("r/1", "take remote"),
		),
		Local: key.NewBinding(
			key.WithKeys("l", "2"),
			key.WithHelp("l/2", "keep local"),
		),
		AllRemote: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "take remote for all"),
		),
		AllLocal: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "keep local for all"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "apply"),
		),
		Back: key.NewBinding(
			key.WithKeys("b", "esc"),
			key.WithHelp("b/esc", "back"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "abort"),
		),
	}
}

// ConflictListModel lets the user pick a side for every local file a pull
// would overwrite.
type ConflictListModel struct {
	conflicts   []sync.Conflict
	choices     map[string]Choice
	table       table.Model
	viewport    viewport.Model
	keys        conflictKeyMap
	result      ConflictListResult
	phase       conflictPhase
	cursor      int
	showHelp    bool
	confirmMode bool
	width       int
	height      int
	quitting    bool
	ready       bool
}

var conflictStyles = struct {
	Title        lipgloss.Style
	Help         lipgloss.Style
	Status       lipgloss.Style
	Added        lipgloss.Style
	Removed      lipgloss.Style
	Context      lipgloss.Style
	Info         lipgloss.Style
	Resolved     lipgloss.Style
	HunkHeader   lipgloss.Style
	Confirm      lipgloss.Style
	SectionTitle lipgloss.Style
}{
	Title:        lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")).Padding(0, 1),
	Help:         lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	Status:       lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1),
	Added:        lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
	Removed:      lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	Context:      lipgloss.NewStyle().Foreground(lipgloss.Color("7")),
	Info:         lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Italic(true),
	Resolved:     lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
	HunkHeader:   lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true),
	Confirm:      lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true).Padding(0, 1),
	SectionTitle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")).Padding(1, 0),
}

// NewConflictListModel creates a new conflict review model.
func NewConflictListModel(conflicts []sync.Conflict) ConflictListModel {
	columns := []table.Column{
		{Title: "", Width: 2},
		{Title: "Provider", Width: 12},
		{Title: "File", Width: 36},
		{Title: "Changes", Width: 26},
		{Title: "Keep", Width: 8},
	}

	rows := make([]table.Row, len(conflicts))
	for i, c := range conflicts {
		rows[i] = buildConflictRow(c, "")
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	t.SetStyles(tableStyles())

	return ConflictListModel{
		conflicts: conflicts,
		choices:   make(map[string]Choice),
		table:     t,
		keys:      defaultConflictKeyMap(),
		phase:     phaseList,
	}
}

func buildConflictRow(c sync.Conflict, choice Choice) table.Row {
	status := "○"
	keep := "-"
	if choice != "" {
		status = "✓"
		keep = string(choice)
	}
	return table.Row{
		status,
		string(c.Provider),
		truncateText(c.Path, 36),
		diff.Summary(c.Hunks()),
		keep,
	}
}

// Init implements tea.Model.
func (m ConflictListModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ConflictListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.phase == phaseDetail {
		return m.updateDetail(msg)
	}
	return m.updateList(msg)
}

func (m ConflictListModel) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetHeight(max(msg.Height-10, 5))

	case tea.KeyMsg:
		if m.confirmMode {
			switch msg.String() {
			case "y", "Y":
				m.result = ConflictListResult{Action: ConflictActionApply, Choices: m.choices}
				m.quitting = true
				return m, tea.Quit
			case "n", "N", "esc":
				m.confirmMode = false
			}
			return m, nil
		}

		switch {
		case key.Matches(msg, m.keys.Quit), key.Matches(msg, m.keys.Back):
			m.result = ConflictListResult{Action: ConflictActionAbort}
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil

		case key.Matches(msg, m.keys.Select):
			if len(m.conflicts) > 0 {
				m.cursor = m.table.Cursor()
				m.phase = phaseDetail
				m.ready = false
				if m.width > 0 {
					m.initViewport(m.width, m.height)
				}
			}
			return m, nil

		case key.Matches(msg, m.keys.Remote):
			m.choose(m.table.Cursor(), ChoiceRemote)
			return m, nil

		case key.Matches(msg, m.keys.Local):
			m.choose(m.table.Cursor(), ChoiceLocal)
			return m, nil

		case key.Matches(msg, m.keys.AllRemote):
			m.chooseAll(ChoiceRemote)
			return m, nil

		case key.Matches(msg, m.keys.AllLocal):
			m.chooseAll(ChoiceLocal)
			return m, nil

		case key.Matches(msg, m.keys.Confirm):
			if m.allChosen() {
				m.confirmMode = true
			}
			return m, nil
		}
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m ConflictListModel) updateDetail(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.initViewport(msg.Width, msg.Height)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.result = ConflictListResult{Action: ConflictActionAbort}
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil

		case key.Matches(msg, m.keys.Back):
			m.phase = phaseList
			return m, nil

		case key.Matches(msg, m.keys.Remote):
			m.choose(m.cursor, ChoiceRemote)
			m.viewport.SetContent(m.buildDetailContent())
			return m, nil

		case key.Matches(msg, m.keys.Local):
			m.choose(m.cursor, ChoiceLocal)
			m.viewport.SetContent(m.buildDetailContent())
			return m, nil
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *ConflictListModel) initViewport(width, height int) {
	const headerHeight, footerHeight = 4, 4
	h := max(height-headerHeight-footerHeight, 5)
	if !m.ready {
		m.viewport = viewport.New(width-2, h)
		m.ready = true
	} else {
		m.viewport.Width = width - 2
		m.viewport.Height = h
	}
	m.viewport.SetContent(m.buildDetailContent())
}

func (m *ConflictListModel) choose(idx int, choice Choice) {
	if idx < 0 || idx >= len(m.conflicts) {
		return
	}
	c := m.conflicts[idx]
	m.choices[c.Key()] = choice

	rows := m.table.Rows()
	if idx < len(rows) {
		rows[idx] = buildConflictRow(c, choice)
		m.table.SetRows(rows)
	}
}

func (m *ConflictListModel) chooseAll(choice Choice) {
	for i := range m.conflicts {
		m.choose(i, choice)
	}
}

func (m ConflictListModel) allChosen() bool {
	for _, c := range m.conflicts {
		if _, ok := m.choices[c.Key()]; !ok {
			return false
		}
	}
	return len(m.conflicts) > 0
}

func (m ConflictListModel) buildDetailContent() string {
	if m.cursor < 0 || m.cursor >= len(m.conflicts) {
		return "No conflict selected"
	}

	c := m.conflicts[m.cursor]
	hunks := c.Hunks()
	var b strings.Builder

	b.WriteString(conflictStyles.SectionTitle.Render("Conflict Details"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "  Provider: %s\n", c.Provider)
	fmt.Fprintf(&b, "  File:     %s\n", c.Path)
	fmt.Fprintf(&b, "  %s\n", diff.Summary(hunks))

	if choice, ok := m.choices[c.Key()]; ok {
		b.WriteString("\n")
		b.WriteString(conflictStyles.Resolved.Render(fmt.Sprintf("  Keep: %s", choice)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(conflictStyles.SectionTitle.Render("Local → Remote"))
	b.WriteString("\n")
	for i, h := range hunks {
		b.WriteString(conflictStyles.HunkHeader.Render(h.Header()))
		b.WriteString("\n")
		for _, line := range h.Lines {
			switch line.Type {
			case diff.LineAdded:
				b.WriteString(conflictStyles.Added.Render(line.String()))
			case diff.LineRemoved:
				b.WriteString(conflictStyles.Removed.Render(line.String()))
			default:
				b.WriteString(conflictStyles.Context.Render(line.String()))
			}
			b.WriteString("\n")
		}
		if i < len(hunks)-1 {
			b.WriteString("\n")
		}
	}

	b.WriteString("\n\n")
	b.WriteString(conflictStyles.Info.Render("Press: r=take remote, l=keep local"))
	return b.String()
}

// View implements tea.Model.
func (m ConflictListModel) View() string {
	if m.quitting {
		return ""
	}
	if m.phase == phaseDetail {
		return m.viewDetail()
	}
	return m.viewList()
}

func (m ConflictListModel) viewList() string {
	var b strings.Builder

	b.WriteString(conflictStyles.Title.Render("Local files differ from the remote copy"))
	b.WriteString("\n\n")
	b.WriteString(conflictStyles.Info.Render("Choose which copy to keep for each file before pulling"))
	b.WriteString("\n\n")

	b.WriteString(m.table.View())
	if m.confirmMode {
		b.WriteString("\n\n")
		b.WriteString(conflictStyles.Confirm.Render(m.confirmMessage()))
		return b.String()
	}
	b.WriteString("\n")

	status := fmt.Sprintf("%d/%d decided", len(m.choices), len(m.conflicts))
	if m.allChosen() {
		status += " • Press y to apply"
	}
	b.WriteString(conflictStyles.Status.Render(status))
	b.WriteString("\n")

	if m.showHelp {
		b.WriteString("\n")
		b.WriteString(m.renderFullHelp())
	} else {
		b.WriteString(m.renderShortHelp())
	}
	return b.String()
}

func (m ConflictListModel) confirmMessage() string {
	local := 0
	for _, c := range m.choices {
		if c == ChoiceLocal {
			local++
		}
	}
	return fmt.Sprintf("Overwrite %d local file(s) and keep %d? (y/n)", len(m.choices)-local, local)
}

func (m ConflictListModel) viewDetail() string {
	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder
	name := ""
	if m.cursor >= 0 && m.cursor < len(m.conflicts) {
		name = m.conflicts[m.cursor].Key()
	}
	b.WriteString(conflictStyles.Title.Render("Conflict: " + name))
	b.WriteString("\n\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(conflictStyles.Status.Render(fmt.Sprintf("Scroll: %d%%", int(m.viewport.ScrollPercent()*100))))
	b.WriteString("\n")

	keys := []string{"↑/↓ scroll", "r remote", "l local", "b back", "q abort"}
	b.WriteString(conflictStyles.Help.Render(strings.Join(keys, " • ")))
	return b.String()
}

func (m ConflictListModel) renderShortHelp() string {
	keys := []string{
		"↑/↓ navigate",
		"enter diff",
		"r remote",
		"l local",
		"y apply",
		"? help",
		"q abort",
	}
	return conflictStyles.Help.Render(strings.Join(keys, " • "))
}

func (m ConflictListModel) renderFullHelp() string {
	help := `Navigation:
  ↑/k      Move up
  ↓/j      Move down
  Enter    View the diff

Choices:
  r/1      Take the remote copy
  l/2      Keep the local file
  R        Take the remote copy for every file
  L        Keep every local file

Actions:
  y        Apply the choices and pull
  q/Esc    Abort the pull

General:
  ?        Toggle full help`
	return conflictStyles.Help.Render(help)
}

// Result returns the result of the user interaction.
func (m ConflictListModel) Result() ConflictListResult {
	return m.result
}

// RunConflictList runs the interactive conflict review.
func RunConflictList(conflicts []sync.Conflict) (ConflictListResult, error) {
	if len(conflicts) == 0 {
		return ConflictListResult{Action: ConflictActionApply}, nil
	}

	finalModel, err := tea.NewProgram(NewConflictListModel(conflicts), tea.WithAltScreen()).Run()
	if err != nil {
		return ConflictListResult{}, err
	}
	if m, ok := finalModel.(ConflictListModel); ok {
		return m.Result(), nil
	}
	return ConflictListResult{}, nil
}
