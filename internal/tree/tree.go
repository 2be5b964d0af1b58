// Package tree builds and queries the folder tree of a company's media
// library from the flat object listing of its storage.
package tree

import (
	"sort"
	"strings"

	"github.com/coffeestaff/portal/internal/models"
)

// RootName is the display name of the synthetic root folder.
const RootName = "Root"

// BasePath returns the storage prefix of a company's media library.
func BasePath(companyID string) string {
	return "company_images/company_" + companyID + "/"
}

// IsDirMarker reports whether a listing entry is a directory marker.
func IsDirMarker(path string, size int64) bool {
	return size == 0 && strings.HasSuffix(path, "/")
}

// BuildFolderTree reconstructs the folder hierarchy under base from a flat
// path → size listing. The result is a fresh tree; the input is not
// modified. Intermediate folders missing from the listing are created, and
// children appear in lexicographic order of their full paths.
func BuildFolderTree(base string, objects map[string]int64) *models.FolderNode {
	root := newNode(base, RootName)

	dirs := make([]string, 0, len(objects))
	for path, size := range objects {
		if !IsDirMarker(path, size) || path == base || !strings.HasPrefix(path, base) {
			continue
		}
		dirs = append(dirs, path)
	}
	sort.Strings(dirs)

	for _, path := range dirs {
		cur := root
		for _, part := range strings.Split(strings.TrimPrefix(path, base), "/") {
			if part == "" {
				continue
			}
			childPath := cur.Path + part + "/"
			next := childByPath(cur, childPath)
			if next == nil {
				next = newNode(childPath, part)
				cur.Children = append(cur.Children, next)
			}
			cur = next
		}
	}
	return root
}

func newNode(path, name string) *models.FolderNode {
	return &models.FolderNode{Path: path, Name: name, Children: []*models.FolderNode{}}
}

func childByPath(parent *models.FolderNode, path string) *models.FolderNode {
	for _, child := range parent.Children {
		if child.Path == path {
			return child
		}
	}
	return nil
}

// FindByPath resolves a folder path in the tree (recursive).
func FindByPath(root *models.FolderNode, path string) *models.FolderNode {
	if root == nil {
		return nil
	}
	if root.Path == path {
		return root
	}
	if !strings.HasPrefix(path, root.Path) {
		return nil
	}
	for _, child := range root.Children {
		if found := FindByPath(child, path); found != nil {
			return found
		}
	}
	return nil
}

// CountNodes counts all nodes in a tree, root included.
func CountNodes(root *models.FolderNode) int {
	if root == nil {
		return 0
	}
	count := 1
	for _, child := range root.Children {
		count += CountNodes(child)
	}
	return count
}

// Flatten returns all nodes in a flat map keyed by path.
func Flatten(root *models.FolderNode) map[string]*models.FolderNode {
	result := make(map[string]*models.FolderNode)
	if root == nil {
		return result
	}
	flattenRecursive(root, result)
	return result
}

func flattenRecursive(node *models.FolderNode, result map[string]*models.FolderNode) {
	result[node.Path] = node
	for _, child := range node.Children {
		flattenRecursive(child, result)
	}
}

// Walk visits every node depth-first in display order. fn receives the
// node depth, 0 for the root.
func Walk(root *models.FolderNode, fn func(node *models.FolderNode, depth int)) {
	if root == nil {
		return
	}
	walk(root, 0, fn)
}

func walk(node *models.FolderNode, depth int, fn func(*models.FolderNode, int)) {
	fn(node, depth)
	for _, child := range node.Children {
		walk(child, depth+1, fn)
	}
}

// Subfolders returns the direct children of the folder at path, or nil when
// the path is not in the tree.
func Subfolders(root *models.FolderNode, path string) []*models.FolderNode {
	node := FindByPath(root, path)
	if node == nil {
		return nil
	}
	return node.Children
}

// FolderName returns the display name of a folder path: "Root" for the
// base itself, the last path component otherwise.
func FolderName(base, path string) string {
	if path == base || path == "" {
		return RootName
	}
	trimmed := strings.TrimSuffix(path, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// ParentPath returns the slash-terminated parent of a folder path, or ""
// for a path without a parent.
func ParentPath(path string) string {
	trimmed := strings.TrimSuffix(path, "/")
	i := strings.LastIndex(trimmed, "/")
	if i < 0 {
		return ""
	}
	return trimmed[:i+1]
}

// ChildPath constructs a folder path from its parent and name.
func ChildPath(parent, name string) string {
	return parent + strings.Trim(name, "/") + "/"
}

// Equal reports whether two trees have the same paths, names and child
// order.
func Equal(a, b *models.FolderNode) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Path != b.Path || a.Name != b.Name || len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Children {
		if !Equal(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}
