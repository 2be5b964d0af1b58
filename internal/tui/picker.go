package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/coffeestaff/portal/internal/models"
	"github.com/coffeestaff/portal/internal/tree"
)

type row struct {
	node  *models.FolderNode
	depth int
}

// TreePicker lets the user pick a folder, for example a move target.
type TreePicker struct {
	title    string
	rows     []row
	current  string
	cursor   int
	chosen   string
	quitting bool
}

// NewTreePicker creates a picker over root. The cursor starts on current.
func NewTreePicker(title string, root *models.FolderNode, current string) TreePicker {
	p := TreePicker{title: title, current: current}
	tree.Walk(root, func(node *models.FolderNode, depth int) {
		if node.Path == current {
			p.cursor = len(p.rows)
		}
		p.rows = append(p.rows, row{node: node, depth: depth})
	})
	return p
}

func (p TreePicker) Init() tea.Cmd { return nil }

func (p TreePicker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return p, nil
	}
	switch key.String() {
	case "up", "k":
		if p.cursor > 0 {
			p.cursor--
		}
	case "down", "j":
		if p.cursor < len(p.rows)-1 {
			p.cursor++
		}
	case "home", "g":
		p.cursor = 0
	case "end", "G":
		p.cursor = len(p.rows) - 1
	case "enter":
		if len(p.rows) > 0 {
			p.chosen = p.rows[p.cursor].node.Path
			return p, tea.Quit
		}
	case "q", "esc", "ctrl+c":
		p.quitting = true
		return p, tea.Quit
	}
	return p, nil
}

func (p TreePicker) View() string {
	if p.chosen != "" || p.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(p.title))
	b.WriteString("\n")
	for i, r := range p.rows {
		name := r.node.Name + "/"
		if r.node.Path == p.current {
			name = currentStyle.Render(name) + mutedStyle.Render(" (current)")
		}
		prefix := "  "
		if i == p.cursor {
			prefix = cursorStyle.Render("> ")
		}
		b.WriteString(prefix + strings.Repeat("  ", r.depth) + name + "\n")
	}
	b.WriteString(helpStyle.Render("↑/↓ move • enter choose • q cancel"))
	return b.String()
}

// Chosen returns the picked folder path.
func (p TreePicker) Chosen() (string, bool) {
	return p.chosen, p.chosen != ""
}

// RunTreePicker shows the picker and returns the chosen folder path.
func RunTreePicker(title string, root *models.FolderNode, current string) (string, error) {
	final, err := tea.NewProgram(NewTreePicker(title, root, current)).Run()
	if err != nil {
		return "", err
	}
	if path, ok := final.(TreePicker).Chosen(); ok {
		return path, nil
	}
	return "", ErrCancelled
}
