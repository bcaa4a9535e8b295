package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"punchclock/internal/ui/theme"
)

// Action is one of the session actions the palette can run.
type Action string

const (
	ActionCheckIn  Action = "checkin"
	ActionCheckOut Action = "checkout"
	ActionRefresh  Action = "refresh"
	ActionLogout   Action = "logout"
	ActionQuit     Action = "quit"
)

type actionEntry struct {
	action  Action
	aliases []string
	help    string
}

var actionTable = []actionEntry{
	{ActionCheckIn, []string{"in"}, "start a session at the current location"},
	{ActionCheckOut, []string{"out"}, "close the running session"},
	{ActionRefresh, nil, "reload the session from the server"},
	{ActionLogout, nil, "clear the cached session and leave"},
	{ActionQuit, []string{"q"}, "leave without logging out"},
}

// ResolveAction maps typed input to an action by name, alias or unambiguous
// prefix.
func ResolveAction(input string) (Action, bool) {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return "", false
	}
	for _, e := range actionTable {
		if string(e.action) == input {
			return e.action, true
		}
		for _, alias := range e.aliases {
			if alias == input {
				return e.action, true
			}
		}
	}
	matches := matchActions(input)
	if len(matches) == 1 {
		return matches[0].action, true
	}
	return "", false
}

func matchActions(prefix string) []actionEntry {
	if prefix == "" {
		return actionTable
	}
	var out []actionEntry
	for _, e := range actionTable {
		if strings.HasPrefix(string(e.action), prefix) {
			out = append(out, e)
			continue
		}
		for _, alias := range e.aliases {
			if strings.HasPrefix(alias, prefix) {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// PaletteSubmitMsg carries the chosen action. Action is empty when the input
// named nothing; Input keeps the raw text for the status line.
type PaletteSubmitMsg struct {
	Action Action
	Input  string
}

// PaletteCancelMsg is emitted on esc or an empty submit.
type PaletteCancelMsg struct{}

var (
	paletteStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.Peach).
			Background(theme.Mantle).
			Foreground(theme.Text).
			Padding(0, 1)

	hintStyle = lipgloss.NewStyle().Foreground(theme.Subtext0)
)

// Palette picks one session action. Typing filters the list, up and down
// move the selection and tab completes to it.
type Palette struct {
	input    textinput.Model
	visible  bool
	width    int
	selected int
}

func NewPalette() Palette {
	ti := textinput.New()
	ti.Placeholder = "checkin, checkout, refresh…"
	ti.CharLimit = 16
	return Palette{input: ti}
}

func (p Palette) Visible() bool { return p.visible }

// Open shows the palette with an empty filter and returns the focus command.
func (p *Palette) Open() tea.Cmd {
	p.visible = true
	p.selected = 0
	p.input.SetValue("")
	return p.input.Focus()
}

func (p *Palette) SetWidth(w int) { p.width = w }

func (p Palette) matches() []actionEntry {
	return matchActions(strings.ToLower(strings.TrimSpace(p.input.Value())))
}

func (p *Palette) close() {
	p.visible = false
	p.input.Blur()
}

func (p Palette) Update(msg tea.Msg) (Palette, tea.Cmd) {
	if !p.visible {
		return p, nil
	}
	if key, ok := msg.(tea.KeyMsg); ok {
		matches := p.matches()
		switch key.String() {
		case "esc":
			p.close()
			return p, func() tea.Msg { return PaletteCancelMsg{} }
		case "up", "ctrl+p":
			if p.selected > 0 {
				p.selected--
			}
			return p, nil
		case "down", "ctrl+n":
			if p.selected < len(matches)-1 {
				p.selected++
			}
			return p, nil
		case "tab":
			if len(matches) > 0 {
				p.input.SetValue(string(matches[p.selected].action))
				p.input.CursorEnd()
				p.selected = 0
			}
			return p, nil
		case "enter":
			return p.submit(matches)
		}
	}

	before := p.input.Value()
	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	if p.input.Value() != before {
		p.selected = 0
	}
	return p, cmd
}

func (p Palette) submit(matches []actionEntry) (Palette, tea.Cmd) {
	raw := strings.TrimSpace(p.input.Value())
	p.close()
	// A bare enter never runs an action; the list must be navigated first.
	if raw == "" && p.selected == 0 {
		return p, func() tea.Msg { return PaletteCancelMsg{} }
	}
	action, ok := ResolveAction(raw)
	if !ok && len(matches) > 0 && p.selected < len(matches) {
		// an ambiguous prefix or an empty filter takes the highlighted row
		action, ok = matches[p.selected].action, true
	}
	if !ok {
		action = ""
	}
	return p, func() tea.Msg { return PaletteSubmitMsg{Action: action, Input: raw} }
}

func (p Palette) View() string {
	if !p.visible {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(theme.Title.Render("Actions") + "\n")
	sb.WriteString(": " + p.input.View() + "\n")

	matches := p.matches()
	if len(matches) == 0 {
		sb.WriteString("\n" + theme.Alert.Render("  no such action") + "\n")
	} else {
		sb.WriteString("\n")
		for i, e := range matches {
			line := "  " + string(e.action)
			if i == p.selected {
				line = theme.Hot.Render("› " + string(e.action))
			}
			sb.WriteString(line + hintStyle.Render("  "+e.help) + "\n")
		}
	}

	w := p.width
	if w < 20 {
		w = 64
	}
	return paletteStyle.Width(w - 2).Render(sb.String())
}
