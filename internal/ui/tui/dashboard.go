package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// DashboardView is the command chosen from the dashboard.
type DashboardView int

const (
	// DashboardViewNone means the dashboard was closed.
	DashboardViewNone DashboardView = iota
	// DashboardViewStatus shows the sync status.
	DashboardViewStatus
	// DashboardViewPush uploads local configs.
	DashboardViewPush
	// DashboardViewPull applies the remote configs.
	DashboardViewPull
	// DashboardViewBackups opens the backup browser.
	DashboardViewBackups
	// DashboardViewMCP lists the registered MCP servers.
	DashboardViewMCP
	// DashboardViewProviders lists the providers and their config roots.
	DashboardViewProviders
)

// DashboardResult holds the dashboard choice.
type DashboardResult struct {
	View DashboardView
}

// MenuItem is one dashboard entry. Hotkey selects it directly.
type MenuItem struct {
	Title       string
	Description string
	Hotkey      string
	View        DashboardView
}

func defaultMenuItems() []MenuItem {
	return []MenuItem{
		{"Status", "Compare local configs with the last sync and the remote gist", "s", DashboardViewStatus},
		{"Push", "Encrypt and upload local configs to the sync gist", "u", DashboardViewPush},
		{"Pull", "Review and apply the configs stored in the sync gist", "l", DashboardViewPull},
		{"Backups", "Browse the backups taken before each pull", "b", DashboardViewBackups},
		{"MCP Servers", "Show the MCP servers shared across assistants", "m", DashboardViewMCP},
		{"Providers", "Show each assistant's config root and install state", "p", DashboardViewProviders},
	}
}

// dashboardKeys implements help.KeyMap.
type dashboardKeys struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Help   key.Binding
	Quit   key.Binding
}

func (k dashboardKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Select, k.Help, k.Quit}
}

func (k dashboardKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Up, k.Down}, {k.Select}, {k.Help, k.Quit}}
}

var dashboardKeyMap = dashboardKeys{
	Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Select: key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "run")),
	Help:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
	Quit:   key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
}

var dashboardStyles = struct {
	Title    lipgloss.Style
	Summary  lipgloss.Style
	Item     lipgloss.Style
	Selected lipgloss.Style
	Hotkey   lipgloss.Style
	Detail   lipgloss.Style
	Help     lipgloss.Style
}{
	Title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")).Padding(0, 1),
	Summary:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1),
	Item:     lipgloss.NewStyle().PaddingLeft(2),
	Selected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57")).PaddingLeft(2),
	Hotkey:   lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	Detail:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")).PaddingLeft(6),
	Help:     lipgloss.NewStyle().PaddingLeft(1),
}

// DashboardModel is the top-level menu.
type DashboardModel struct {
	items   []MenuItem
	summary string
	cursor  int
	help    help.Model
	result  DashboardResult
	width   int
	height  int
	done    bool
}

// NewDashboardModel creates the dashboard. summary is the one-line sync
// state shown under the title.
func NewDashboardModel(summary string) DashboardModel {
	return DashboardModel{
		items:   defaultMenuItems(),
		summary: summary,
		help:    help.New(),
	}
}

// Init implements tea.Model.
func (m DashboardModel) Init() tea.Cmd {
	return nil
}

func (m DashboardModel) choose(i int) (tea.Model, tea.Cmd) {
	m.cursor = i
	m.result = DashboardResult{View: m.items[i].View}
	m.done = true
	return m, tea.Quit
}

// Update implements tea.Model.
func (m DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, dashboardKeyMap.Quit):
			m.done = true
			return m, tea.Quit
		case key.Matches(msg, dashboardKeyMap.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, dashboardKeyMap.Up):
			m.cursor = (m.cursor + len(m.items) - 1) % len(m.items)
		case key.Matches(msg, dashboardKeyMap.Down):
			m.cursor = (m.cursor + 1) % len(m.items)
		case key.Matches(msg, dashboardKeyMap.Select):
			return m.choose(m.cursor)
		default:
			for i, item := range m.items {
				if msg.String() == item.Hotkey {
					return m.choose(i)
				}
			}
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m DashboardModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(dashboardStyles.Title.Render("agentsync"))
	b.WriteString("\n")
	if m.summary != "" {
		b.WriteString(dashboardStyles.Summary.Render(m.summary))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	for i, item := range m.items {
		hotkey := dashboardStyles.Hotkey.Render("[" + item.Hotkey + "]")
		if i == m.cursor {
			b.WriteString(dashboardStyles.Selected.Render(fmt.Sprintf("▸ %s", item.Title)))
			b.WriteString(" " + hotkey + "\n")
			b.WriteString(dashboardStyles.Detail.Render(item.Description))
		} else {
			b.WriteString(dashboardStyles.Item.Render(fmt.Sprintf("  %s", item.Title)))
			b.WriteString(" " + hotkey)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(dashboardStyles.Help.Render(m.help.View(dashboardKeyMap)))
	return b.String()
}

// Result returns the dashboard choice.
func (m DashboardModel) Result() DashboardResult {
	return m.result
}

// RunDashboard opens the dashboard and returns the chosen view.
func RunDashboard(summary string) (DashboardResult, error) {
	final, err := tea.NewProgram(NewDashboardModel(summary), tea.WithAltScreen()).Run()
	if err != nil {
		return DashboardResult{}, err
	}
	if m, ok := final.(DashboardModel); ok {
		return m.Result(), nil
	}
	return DashboardResult{}, nil
}
