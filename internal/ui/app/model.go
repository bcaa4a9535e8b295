package app

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	attendancedto "punchclock/internal/modules/attendance/dto"
	"punchclock/internal/ui/components"
	"punchclock/internal/ui/theme"
	attendanceview "punchclock/internal/ui/views/attendance"
)

// ─── ports ───────────────────────────────────────────────────────────────────

type attendancePort interface {
	Initialize(ctx context.Context, employeeID, accessToken string) (attendancedto.StateOutput, error)
	CheckIn(ctx context.Context) (attendancedto.StateOutput, error)
	CheckOut(ctx context.Context) (attendancedto.StateOutput, error)
	Logout(ctx context.Context) error
	Watch() (<-chan attendancedto.StateOutput, func())
}

// ─── async messages ───────────────────────────────────────────────────────────

type initializedMsg struct {
	state attendancedto.StateOutput
	err   error
}

type loggedOutMsg struct{ err error }

// ─── key bindings ─────────────────────────────────────────────────────────────

type keyMap struct {
	CheckIn  key.Binding
	CheckOut key.Binding
	Refresh  key.Binding
	Help     key.Binding
	Palette  key.Binding
	Quit     key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		CheckIn:  key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "check in")),
		CheckOut: key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "check out")),
		Refresh:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Palette:  key.NewBinding(key.WithKeys(":"), key.WithHelp(":", "actions")),
		Quit:     key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.CheckIn, k.CheckOut, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.CheckIn, k.CheckOut, k.Refresh},
		{k.Help, k.Palette, k.Quit},
	}
}

// ─── model ───────────────────────────────────────────────────────────────────

// Model is the root Bubble Tea model. It owns key routing, the help overlay
// and the action palette; the session panel is rendered by the attendance
// view.
type Model struct {
	attendance attendancePort
	employeeID string
	token      string
	unwatch    func()

	view     attendanceview.Model
	keys     keyMap
	help     help.Model
	showHelp bool
	palette  components.Palette
	status   string
	width    int
	height   int
}

func NewModel(attendance attendancePort, employeeID, token string, loc *time.Location) Model {
	states, unwatch := attendance.Watch()
	return Model{
		attendance: attendance,
		employeeID: employeeID,
		token:      token,
		unwatch:    unwatch,
		view:       attendanceview.New(attendance, states, loc),
		keys:       defaultKeys(),
		help:       help.New(),
		palette:    components.NewPalette(),
		status:     "employee " + employeeID,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.view.Init(), m.initializeCmd())
}

// ─── update ───────────────────────────────────────────────────────────────────

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// The palette intercepts all input while open.
	if m.palette.Visible() {
		var cmd tea.Cmd
		m.palette, cmd = m.palette.Update(msg)
		return m, cmd
	}

	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.palette.SetWidth(min(m.width-4, 60))
		m.help.Width = m.width
		m.view.SetWidth(m.width)

	case initializedMsg:
		if msg.err != nil {
			m.status = "initialize failed: " + msg.err.Error()
		} else {
			m.status = "employee " + m.employeeID + " synced"
		}

	case loggedOutMsg:
		if msg.err != nil {
			m.status = "logout: " + msg.err.Error()
		}
		m.stopWatching()
		return m, tea.Quit

	case components.PaletteSubmitMsg:
		return m.executePalette(msg)

	case components.PaletteCancelMsg:
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.stopWatching()
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil
		case key.Matches(msg, m.keys.Palette):
			cmd := m.palette.Open()
			return m, cmd
		case key.Matches(msg, m.keys.CheckIn):
			cmds = append(cmds, m.view.CheckIn())
		case key.Matches(msg, m.keys.CheckOut):
			cmds = append(cmds, m.view.CheckOut())
		case key.Matches(msg, m.keys.Refresh):
			cmds = append(cmds, m.initializeCmd())
		}
	}

	var viewCmd tea.Cmd
	m.view, viewCmd = m.view.Update(msg)
	cmds = append(cmds, viewCmd)
	return m, tea.Batch(cmds...)
}

func (m Model) executePalette(msg components.PaletteSubmitMsg) (tea.Model, tea.Cmd) {
	switch msg.Action {
	case components.ActionCheckIn:
		return m, m.view.CheckIn()
	case components.ActionCheckOut:
		return m, m.view.CheckOut()
	case components.ActionRefresh:
		return m, m.initializeCmd()
	case components.ActionLogout:
		return m, m.logoutCmd()
	case components.ActionQuit:
		m.stopWatching()
		return m, tea.Quit
	default:
		m.status = "unknown action: " + msg.Input
		return m, nil
	}
}

func (m Model) initializeCmd() tea.Cmd {
	attendance, employeeID, token := m.attendance, m.employeeID, m.token
	return func() tea.Msg {
		state, err := attendance.Initialize(context.Background(), employeeID, token)
		return initializedMsg{state: state, err: err}
	}
}

func (m Model) logoutCmd() tea.Cmd {
	attendance := m.attendance
	return func() tea.Msg {
		return loggedOutMsg{err: attendance.Logout(context.Background())}
	}
}

func (m *Model) stopWatching() {
	if m.unwatch != nil {
		m.unwatch()
		m.unwatch = nil
	}
}

// ─── view ────────────────────────────────────────────────────────────────────

func (m Model) View() string {
	header := theme.Title.Render("punchclock") + "  " + theme.Muted.Render(time.Now().Format("Mon 02 Jan"))
	statusBar := m.renderStatusBar()
	contentH := m.height - lipgloss.Height(header) - lipgloss.Height(statusBar)
	if contentH < 1 {
		contentH = 1
	}

	var content string
	switch {
	case m.showHelp:
		content = lipgloss.NewStyle().Width(m.width).Height(contentH).Render(m.help.View(m.keys))
	case m.palette.Visible():
		content = lipgloss.Place(m.width, contentH, lipgloss.Center, lipgloss.Center, m.palette.View())
	default:
		content = lipgloss.Place(m.width, contentH, lipgloss.Center, lipgloss.Center, m.view.View())
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
}

func (m Model) renderStatusBar() string {
	left := theme.Muted.Render(m.status)
	right := m.help.ShortHelpView(m.keys.ShortHelp())
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}
