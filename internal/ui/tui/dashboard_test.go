package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func update(m DashboardModel, msg tea.Msg) (DashboardModel, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(DashboardModel), cmd
}

func TestNewDashboardModel(t *testing.T) {
	m := NewDashboardModel("up to date")

	if len(m.items) == 0 {
		t.Error("expected menu items to be populated")
	}
	if m.cursor != 0 {
		t.Errorf("expected cursor to be 0, got %d", m.cursor)
	}
	if m.Init() != nil {
		t.Error("expected nil command from Init")
	}
}

func TestDashboardModel_Navigation(t *testing.T) {
	m := NewDashboardModel("")
	last := len(m.items) - 1

	tests := []struct {
		msg  tea.Msg
		want int
	}{
		{runeKey('j'), 1},
		{tea.KeyMsg{Type: tea.KeyDown}, 2},
		{runeKey('k'), 1},
		{tea.KeyMsg{Type: tea.KeyUp}, 0},
		{tea.KeyMsg{Type: tea.KeyUp}, last},
		{runeKey('j'), 0},
	}
	for i, tt := range tests {
		m, _ = update(m, tt.msg)
		if m.cursor != tt.want {
			t.Errorf("step %d: cursor = %d, want %d", i, m.cursor, tt.want)
		}
	}
}

func TestDashboardModel_Quit(t *testing.T) {
	for _, msg := range []tea.KeyMsg{runeKey('q'), {Type: tea.KeyEsc}, {Type: tea.KeyCtrlC}} {
		m, cmd := update(NewDashboardModel(""), msg)
		if !m.done || cmd == nil {
			t.Errorf("%s: expected the dashboard to quit", msg)
		}
		if m.Result().View != DashboardViewNone {
			t.Errorf("%s: expected DashboardViewNone, got %v", msg, m.Result().View)
		}
		if m.View() != "" {
			t.Errorf("%s: expected empty view when done", msg)
		}
	}
}

func TestDashboardModel_HelpToggle(t *testing.T) {
	m := NewDashboardModel("")
	if m.help.ShowAll {
		t.Fatal("full help should start hidden")
	}

	m, _ = update(m, runeKey('?'))
	if !m.help.ShowAll {
		t.Error("expected full help after pressing '?'")
	}
	m, _ = update(m, runeKey('?'))
	if m.help.ShowAll {
		t.Error("expected short help after pressing '?' again")
	}
}

func TestDashboardModel_View(t *testing.T) {
	view := NewDashboardModel("Local Ahead · 2 provider(s)").View()

	for _, want := range []string{"agentsync", "Local Ahead · 2 provider(s)", "Status", "Pull", "[l]", defaultMenuItems()[0].Description} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q", want)
		}
	}
	if strings.Contains(view, defaultMenuItems()[1].Description) {
		t.Error("only the selected item shows its description")
	}
}

func TestDashboardModel_WindowSize(t *testing.T) {
	m, _ := update(NewDashboardModel(""), tea.WindowSizeMsg{Width: 100, Height: 50})

	if m.width != 100 || m.height != 50 {
		t.Errorf("expected 100x50, got %dx%d", m.width, m.height)
	}
	if m.help.Width != 100 {
		t.Errorf("help width = %d, want 100", m.help.Width)
	}
}

func TestDefaultMenuItems(t *testing.T) {
	seen := map[string]bool{}
	for i, item := range defaultMenuItems() {
		if item.Title == "" || item.Description == "" {
			t.Errorf("item %d is missing a title or description", i)
		}
		if item.View == DashboardViewNone {
			t.Errorf("item %d has no view", i)
		}
		if seen[item.Hotkey] {
			t.Errorf("hotkey %q is used twice", item.Hotkey)
		}
		for _, b := range []string{"j", "k", "q", "?", " "} {
			if item.Hotkey == b {
				t.Errorf("hotkey %q clashes with navigation", item.Hotkey)
			}
		}
		seen[item.Hotkey] = true
	}
}

func TestDashboardModel_Select(t *testing.T) {
	for i, item := range defaultMenuItems() {
		t.Run(item.Title, func(t *testing.T) {
			m := NewDashboardModel("")
			m.cursor = i
			m, cmd := update(m, tea.KeyMsg{Type: tea.KeyEnter})
			if m.Result().View != item.View || cmd == nil {
				t.Errorf("enter: expected view %v, got %v", item.View, m.Result().View)
			}

			m, _ = update(NewDashboardModel(""), runeKey([]rune(item.Hotkey)[0]))
			if m.Result().View != item.View {
				t.Errorf("hotkey %s: expected view %v, got %v", item.Hotkey, item.View, m.Result().View)
			}
			if m.cursor != i {
				t.Errorf("hotkey %s: cursor = %d, want %d", item.Hotkey, m.cursor, i)
			}
		})
	}
}

func TestDashboardModel_UnknownKey(t *testing.T) {
	m, cmd := update(NewDashboardModel(""), runeKey('z'))
	if m.done || cmd != nil {
		t.Error("an unbound key should do nothing")
	}
}
