package tui

import (
	"fmt"
	"strings"

	"github.com/coffeestaff/portal/internal/models"
	"github.com/coffeestaff/portal/internal/notify"
)

// RenderTree draws the folder tree with box-drawing guides. The current
// folder is highlighted and counts[path], when present, is shown after
// each folder name.
func RenderTree(root *models.FolderNode, current string, counts map[string]int) string {
	if root == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(label(root, current, counts) + "\n")
	renderChildren(&b, root.Children, "", current, counts)
	return b.String()
}

func renderChildren(b *strings.Builder, children []*models.FolderNode, indent, current string, counts map[string]int) {
	for i, child := range children {
		branch, next := "├── ", "│   "
		if i == len(children)-1 {
			branch, next = "└── ", "    "
		}
		b.WriteString(treeLineStyle.Render(indent+branch) + label(child, current, counts) + "\n")
		renderChildren(b, child.Children, indent+next, current, counts)
	}
}

func label(node *models.FolderNode, current string, counts map[string]int) string {
	name := node.Name
	if node.Path == current {
		name = currentStyle.Render(name)
	}
	if n, ok := counts[node.Path]; ok {
		name += mutedStyle.Render(fmt.Sprintf(" (%d)", n))
	}
	return name
}

// Notice renders a notification as one line coloured by its level.
func Notice(n notify.Notification) string {
	switch n.Level {
	case notify.LevelSuccess:
		return successStyle.Render("✓ " + n.Message)
	case notify.LevelWarning:
		return warningStyle.Render("! " + n.Message)
	case notify.LevelError:
		return errorStyle.Render("✗ " + n.Message)
	}
	return n.Message
}
