package attendance

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"punchclock/internal/modules/attendance/domain"
	attendancedto "punchclock/internal/modules/attendance/dto"
	"punchclock/internal/ui/theme"
)

// Port is the slice of the attendance use-case this view drives.
type Port interface {
	CheckIn(ctx context.Context) (attendancedto.StateOutput, error)
	CheckOut(ctx context.Context) (attendancedto.StateOutput, error)
}

// StateMsg carries a state published by the engine.
type StateMsg struct{ State attendancedto.StateOutput }

// StreamClosedMsg is sent once the engine stops publishing.
type StreamClosedMsg struct{}

// ActionDoneMsg reports the outcome of a check-in or check-out request. Its
// State is informational; the view renders only streamed states.
type ActionDoneMsg struct {
	Action string
	State  attendancedto.StateOutput
	Err    error
}

type Model struct {
	port    Port
	states  <-chan attendancedto.StateOutput
	loc     *time.Location
	state   attendancedto.StateOutput
	notice  string
	failed  bool
	spinner spinner.Model
	width   int
}

func New(port Port, states <-chan attendancedto.StateOutput, loc *time.Location) Model {
	if loc == nil {
		loc = time.Local
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Lavender)
	return Model{
		port:    port,
		states:  states,
		loc:     loc,
		state:   attendancedto.StateOutput{Status: string(domain.StatusCheckedOut), Phase: string(domain.PhaseLoading)},
		spinner: sp,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForState(), m.spinner.Tick)
}

func (m Model) State() attendancedto.StateOutput { return m.state }

func (m *Model) SetWidth(w int) { m.width = w }

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case StateMsg:
		m.state = msg.State
		return m, m.waitForState()
	case StreamClosedMsg:
		m.notice = "engine stopped"
		return m, nil
	case ActionDoneMsg:
		// The subscription owns the displayed state; the returned snapshot may
		// already be older than the last StateMsg.
		m.failed = msg.Err != nil
		if m.failed {
			m.notice = describeFailure(msg.Action, string(domain.ReasonOf(msg.Err)), msg.Err)
		} else {
			m.notice = msg.Action + " confirmed"
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) CheckIn() tea.Cmd {
	port := m.port
	return func() tea.Msg {
		state, err := port.CheckIn(context.Background())
		return ActionDoneMsg{Action: "check-in", State: state, Err: err}
	}
}

func (m Model) CheckOut() tea.Cmd {
	port := m.port
	return func() tea.Msg {
		state, err := port.CheckOut(context.Background())
		return ActionDoneMsg{Action: "check-out", State: state, Err: err}
	}
}

func (m Model) waitForState() tea.Cmd {
	states := m.states
	if states == nil {
		return nil
	}
	return func() tea.Msg {
		state, ok := <-states
		if !ok {
			return StreamClosedMsg{}
		}
		return StateMsg{State: state}
	}
}

func (m Model) View() string {
	var sb strings.Builder
	sb.WriteString(theme.Title.Render("Attendance") + "\n\n")

	if m.state.CheckedIn {
		sb.WriteString(theme.BadgeIn.Render("CHECKED IN") + "\n\n")
		sb.WriteString(theme.Muted.Render("since   ") + m.state.ClockInAt.In(m.loc).Format("Mon 02 Jan 15:04:05") + "\n")
		sb.WriteString(theme.Muted.Render("elapsed ") + theme.Clock.Render(domain.FormatElapsed(m.state.Elapsed)) + "\n")
	} else {
		sb.WriteString(theme.BadgeOut.Render("CHECKED OUT") + "\n\n")
		sb.WriteString(theme.Muted.Render("elapsed ") + theme.Clock.Render(domain.FormatElapsed(0)) + "\n")
	}

	if line := m.phaseLine(); line != "" {
		sb.WriteString("\n" + line + "\n")
	}
	if m.notice != "" {
		style := theme.Muted
		if m.failed {
			style = theme.Alert
		}
		sb.WriteString("\n" + style.Render(m.notice) + "\n")
	}

	pane := theme.Pane
	if m.state.CheckedIn {
		pane = theme.PaneOnDuty
	}
	if m.width > 8 {
		pane = pane.Width(min(m.width-4, 60))
	}
	return pane.Render(sb.String())
}

func (m Model) phaseLine() string {
	switch domain.Phase(m.state.Phase) {
	case domain.PhaseLoading:
		return m.spinner.View() + " syncing with HR…"
	case domain.PhaseAwaitingLocation:
		return m.spinner.View() + " waiting for location…"
	case domain.PhaseSubmitting:
		return m.spinner.View() + " submitting…"
	case domain.PhaseError:
		return theme.Alert.Render(describeReason(m.state.Reason))
	}
	return ""
}

func describeFailure(action, reason string, err error) string {
	if text := describeReason(reason); text != "" {
		return action + " failed: " + text
	}
	return action + " failed: " + err.Error()
}

func describeReason(reason string) string {
	switch domain.Reason(reason) {
	case domain.ReasonAlreadyCheckedIn:
		return "already checked in"
	case domain.ReasonNotCheckedIn:
		return "not checked in"
	case domain.ReasonLocationDenied:
		return "location permission denied"
	case domain.ReasonLocationUnavailable:
		return "location unavailable, try again outdoors"
	case domain.ReasonRemoteUnavailable:
		return "HR server unreachable, showing last known status"
	case domain.ReasonTransitionInFlight:
		return "another request is still running"
	}
	return ""
}
