package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/klauern/agentsync/internal/backup"
	"github.com/klauern/agentsync/internal/model"
)

// BackupAction is what the user chose to do with a backup.
type BackupAction int

const (
	// ActionNone means the browser was closed without choosing.
	ActionNone BackupAction = iota
	// ActionRestore writes the backup back into its config root.
	ActionRestore
	// ActionDelete removes the backup.
	ActionDelete
	// ActionVerify re-hashes the backup's files.
	ActionVerify
)

func (a BackupAction) verb() string {
	switch a {
	case ActionRestore:
		return "Restore"
	case ActionDelete:
		return "Delete"
	case ActionVerify:
		return "Verify"
	default:
		return ""
	}
}

// BackupListResult is the choice made in the backup browser.
type BackupListResult struct {
	Action   BackupAction
	BackupID string
	Backup   backup.Metadata
}

type backupKeys struct {
	Restore  key.Binding
	Delete   key.Binding
	Verify   key.Binding
	Provider key.Binding
	Files    key.Binding
	Quit     key.Binding
}

var backupKeyMap = backupKeys{
	Restore:  key.NewBinding(key.WithKeys("r", "enter"), key.WithHelp("r", "restore")),
	Delete:   key.NewBinding(key.WithKeys("d", "delete"), key.WithHelp("d", "delete")),
	Verify:   key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "verify")),
	Provider: key.NewBinding(key.WithKeys("p", "tab"), key.WithHelp("p", "next provider")),
	Files:    key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "files")),
	Quit:     key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
}

var backupStyles = struct {
	Title   lipgloss.Style
	Scope   lipgloss.Style
	Detail  lipgloss.Style
	File    lipgloss.Style
	Confirm lipgloss.Style
	Status  lipgloss.Style
	Help    lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")).Padding(0, 1),
	Scope:   lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
	Detail:  lipgloss.NewStyle().Foreground(lipgloss.Color("252")).PaddingLeft(1),
	File:    lipgloss.NewStyle().Foreground(lipgloss.Color("244")).PaddingLeft(3),
	Confirm: lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true).Padding(1, 1),
	Status:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1),
	Help:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")).PaddingLeft(1),
}

// maxListedFiles caps the file list shown under the table.
const maxListedFiles = 8

// BackupListModel browses backups one provider at a time.
type BackupListModel struct {
	table     table.Model
	all       []backup.Metadata
	visible   []backup.Metadata
	providers []model.ProviderID
	// scope indexes providers; -1 shows every provider.
	scope     int
	showFiles bool
	pending   BackupListResult
	result    BackupListResult
	width     int
	done      bool
}

// NewBackupListModel creates a browser over backups, newest first.
func NewBackupListModel(backups []backup.Metadata) BackupListModel {
	sorted := append([]backup.Metadata(nil), backups...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	seen := make(map[model.ProviderID]bool)
	var providers []model.ProviderID
	for _, b := range sorted {
		if !seen[b.Provider] {
			seen[b.Provider] = true
			providers = append(providers, b.Provider)
		}
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Created", Width: 16},
			{Title: "Provider", Width: 12},
			{Title: "Files", Width: 6},
			{Title: "Size", Width: 9},
			{Title: "ID", Width: 36},
		}),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	t.SetStyles(tableStyles())

	m := BackupListModel{table: t, all: sorted, providers: providers, scope: -1}
	m.rescope()
	return m
}

// rescope recomputes the visible backups for the current provider scope.
func (m *BackupListModel) rescope() {
	m.visible = nil
	for _, b := range m.all {
		if m.scope < 0 || b.Provider == m.providers[m.scope] {
			m.visible = append(m.visible, b)
		}
	}

	rows := make([]table.Row, len(m.visible))
	for i, b := range m.visible {
		rows[i] = table.Row{
			b.CreatedAt.Local().Format("2006-01-02 15:04"),
			string(b.Provider),
			fmt.Sprintf("%d", len(b.Files)),
			formatSize(b.Size()),
			truncateText(b.ID, 36),
		}
	}
	m.table.SetRows(rows)
	m.table.SetCursor(0)
}

func (m BackupListModel) scopeName() string {
	if m.scope < 0 {
		return "all providers"
	}
	return string(m.providers[m.scope])
}

func (m BackupListModel) selected() (backup.Metadata, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.visible) {
		return backup.Metadata{}, false
	}
	return m.visible[i], true
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	size, suffix := float64(bytes)/unit, "KB"
	for _, next := range []string{"MB", "GB"} {
		if size < unit {
			break
		}
		size, suffix = size/unit, next
	}
	return fmt.Sprintf("%.1f %s", size, suffix)
}

// Init implements tea.Model.
func (m BackupListModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m BackupListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.table.SetHeight(max(msg.Height-12, 4))
		return m, nil

	case tea.KeyMsg:
		if m.pending.Action != ActionNone {
			switch msg.String() {
			case "y", "Y":
				m.result = m.pending
				m.done = true
				return m, tea.Quit
			default:
				m.pending = BackupListResult{}
			}
			return m, nil
		}

		switch {
		case key.Matches(msg, backupKeyMap.Quit):
			m.done = true
			return m, tea.Quit
		case key.Matches(msg, backupKeyMap.Provider):
			if len(m.providers) > 0 {
				m.scope++
				if m.scope >= len(m.providers) {
					m.scope = -1
				}
				m.rescope()
			}
			return m, nil
		case key.Matches(msg, backupKeyMap.Files):
			m.showFiles = !m.showFiles
			return m, nil
		case key.Matches(msg, backupKeyMap.Verify):
			if b, ok := m.selected(); ok {
				m.result = BackupListResult{Action: ActionVerify, BackupID: b.ID, Backup: b}
				m.done = true
				return m, tea.Quit
			}
			return m, nil
		case key.Matches(msg, backupKeyMap.Restore):
			m.ask(ActionRestore)
			return m, nil
		case key.Matches(msg, backupKeyMap.Delete):
			m.ask(ActionDelete)
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// ask holds a destructive action until the user confirms it.
func (m *BackupListModel) ask(action BackupAction) {
	if b, ok := m.selected(); ok {
		m.pending = BackupListResult{Action: action, BackupID: b.ID, Backup: b}
	}
}

// View implements tea.Model.
func (m BackupListModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(backupStyles.Title.Render("agentsync backups"))
	b.WriteString(backupStyles.Scope.Render("· " + m.scopeName()))
	b.WriteString("\n\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")

	width := 80
	if m.width > 0 {
		width = m.width - 2
	}
	if sel, ok := m.selected(); ok {
		b.WriteString(backupStyles.Detail.Render(formatDetail("Root: ", sel.ConfigRoot, width)))
		b.WriteString("\n")
		if sel.Description != "" {
			b.WriteString(backupStyles.Detail.Render(formatDetail("Note: ", sel.Description, width)))
			b.WriteString("\n")
		}
		if m.showFiles {
			for i, f := range sel.Files {
				if i == maxListedFiles {
					b.WriteString(backupStyles.File.Render(fmt.Sprintf("and %d more", len(sel.Files)-maxListedFiles)))
					b.WriteString("\n")
					break
				}
				b.WriteString(backupStyles.File.Render(fmt.Sprintf("%s (%s)", f.Path, formatSize(f.Size))))
				b.WriteString("\n")
			}
		}
	}

	if m.pending.Action != ActionNone {
		b.WriteString(backupStyles.Confirm.Render(fmt.Sprintf("%s %s? (y/n)", m.pending.Action.verb(), m.pending.BackupID)))
		return b.String()
	}

	var total int64
	for _, bk := range m.visible {
		total += bk.Size()
	}
	status := fmt.Sprintf("%d backup(s), %s", len(m.visible), formatSize(total))
	if len(m.visible) != len(m.all) {
		status += fmt.Sprintf(" (%d in total)", len(m.all))
	}
	b.WriteString(backupStyles.Status.Render(status))
	b.WriteString("\n")

	keys := []key.Binding{backupKeyMap.Restore, backupKeyMap.Delete, backupKeyMap.Verify,
		backupKeyMap.Provider, backupKeyMap.Files, backupKeyMap.Quit}
	help := make([]string, 0, len(keys))
	for _, k := range keys {
		help = append(help, k.Help().Key+" "+k.Help().Desc)
	}
	b.WriteString(backupStyles.Help.Render("↑/↓ move • " + strings.Join(help, " • ")))
	return b.String()
}

// Result returns the user's choice.
func (m BackupListModel) Result() BackupListResult {
	return m.result
}

// RunBackupList opens the backup browser and returns the chosen action.
func RunBackupList(backups []backup.Metadata) (BackupListResult, error) {
	if len(backups) == 0 {
		return BackupListResult{}, nil
	}

	final, err := tea.NewProgram(NewBackupListModel(backups), tea.WithAltScreen()).Run()
	if err != nil {
		return BackupListResult{}, err
	}
	if m, ok := final.(BackupListModel); ok {
		return m.Result(), nil
	}
	return BackupListResult{}, nil
}
