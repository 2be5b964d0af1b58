package tui

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/coffeestaff/portal/internal/session"
)

// ErrCancelled is returned when the user leaves a screen without choosing.
var ErrCancelled = errors.New("cancelled")

// Selector lets the user pick one of the selector options.
type Selector struct {
	options  []session.Option
	cursor   int
	chosen   int
	quitting bool
}

// NewSelector creates a selector over options.
func NewSelector(options []session.Option) Selector {
	return Selector{options: options, chosen: -1}
}

func (s Selector) Init() tea.Cmd { return nil }

func (s Selector) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return s, nil
	}
	switch key.String() {
	case "up", "k":
		if s.cursor > 0 {
			s.cursor--
		}
	case "down", "j":
		if s.cursor < len(s.options)-1 {
			s.cursor++
		}
	case "enter":
		if len(s.options) > 0 {
			s.chosen = s.cursor
			return s, tea.Quit
		}
	case "q", "esc", "ctrl+c":
		s.quitting = true
		return s, tea.Quit
	}
	return s, nil
}

func (s Selector) View() string {
	if s.chosen >= 0 || s.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Choose how to continue"))
	b.WriteString("\n")
	if len(s.options) == 0 {
		b.WriteString(mutedStyle.Render("No roles available"))
		b.WriteString("\n")
	}
	for i, o := range s.options {
		line := OptionLabel(o)
		if i == s.cursor {
			b.WriteString(cursorStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("↑/↓ move • enter choose • q cancel"))
	return b.String()
}

// Chosen returns the picked option.
func (s Selector) Chosen() (session.Option, bool) {
	if s.chosen < 0 || s.chosen >= len(s.options) {
		return session.Option{}, false
	}
	return s.options[s.chosen], true
}

// OptionLabel is the one-line description of an option.
func OptionLabel(o session.Option) string {
	if o.CompanyID == "" {
		return o.RoleKind.DisplayName()
	}
	return fmt.Sprintf("%s · %s", o.CompanyName, o.RoleKind.DisplayName())
}

// RunSelector shows the selector and returns the chosen option.
func RunSelector(options []session.Option) (session.Option, error) {
	final, err := tea.NewProgram(NewSelector(options)).Run()
	if err != nil {
		return session.Option{}, err
	}
	if o, ok := final.(Selector).Chosen(); ok {
		return o, nil
	}
	return session.Option{}, ErrCancelled
}
