package tree

import (
	"strings"
	"testing"

	"github.com/coffeestaff/portal/internal/models"
)

const base = "company_images/company_1/"

func listing() map[string]int64 {
	return map[string]int64{
		base:                            0,
		base + "drinks/":                0,
		base + "drinks/hot/":            0,
		base + "drinks/cold/":           0,
		base + "food/":                  0,
		base + "logo.png":               2048,
		base + "drinks/latte.jpg":       4096,
		base + "deep/nested/only/":      0,
		"company_images/company_2/x/":   0,
		base + "not-a-dir/":             12,
		base + "drinks/cold/frappe.png": 512,
	}
}

func TestBuildFolderTree(t *testing.T) {
	root := BuildFolderTree(base, listing())

	if root.Path != base || root.Name != RootName {
		t.Fatalf("root = %q/%q, want %q/%q", root.Path, root.Name, base, RootName)
	}

	var got []string
	Walk(root, func(n *models.FolderNode, depth int) {
		got = append(got, strings.Repeat(" ", depth)+n.Name)
	})
	want := []string{
		"Root",
		" deep",
		"  nested",
		"   only",
		" drinks",
		"  cold",
		"  hot",
		" food",
	}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("tree =\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestBuildFolderTreePathInvariant(t *testing.T) {
	objects := listing()
	root := BuildFolderTree(base, objects)

	dirs := map[string]bool{}
	for path, size := range objects {
		if IsDirMarker(path, size) && strings.HasPrefix(path, base) && path != base {
			dirs[path] = true
		}
	}
	// intermediates created for deep/nested/only/
	dirs[base+"deep/"] = true
	dirs[base+"deep/nested/"] = true

	if got, want := CountNodes(root), len(dirs)+1; got != want {
		t.Errorf("CountNodes = %d, want %d", got, want)
	}

	var check func(n *models.FolderNode)
	check = func(n *models.FolderNode) {
		for _, c := range n.Children {
			if c.Path != n.Path+c.Name+"/" {
				t.Errorf("child path %q != %q + %q + /", c.Path, n.Path, c.Name)
			}
			check(c)
		}
	}
	check(root)
}

func TestBuildFolderTreeIdempotent(t *testing.T) {
	a := BuildFolderTree(base, listing())
	b := BuildFolderTree(base, listing())
	if !Equal(a, b) {
		t.Error("two builds over the same listing differ")
	}
}

func TestBuildFolderTreeEmpty(t *testing.T) {
	root := BuildFolderTree(base, nil)
	if root == nil || len(root.Children) != 0 {
		t.Fatalf("empty listing should give a bare root, got %+v", root)
	}
}

func TestCreateFolderRoundTrip(t *testing.T) {
	objects := map[string]int64{base: 0}
	objects[ChildPath(base, "drinks/")] = 0

	root := BuildFolderTree(base, objects)
	if len(root.Children) != 1 {
		t.Fatalf("root children = %d, want 1", len(root.Children))
	}
	if c := root.Children[0]; c.Name != "drinks" || c.Path != base+"drinks/" {
		t.Errorf("child = %q at %q", c.Name, c.Path)
	}
}

func TestRenameFolderRebuild(t *testing.T) {
	before := map[string]int64{base + "drinks/": 0, base + "food/": 0, base + "zz/": 0}
	after := map[string]int64{base + "beverages/": 0, base + "food/": 0, base + "zz/": 0}

	oldRoot := BuildFolderTree(base, before)
	newRoot := BuildFolderTree(base, after)

	if FindByPath(newRoot, base+"drinks/") != nil {
		t.Error("old path still present after rename")
	}
	n := 0
	for p := range Flatten(newRoot) {
		if p == base+"beverages/" {
			n++
		}
	}
	if n != 1 {
		t.Errorf("found %d nodes for new path, want 1", n)
	}
	if oldRoot.Children[0].Name != "drinks" || newRoot.Children[0].Name != "beverages" {
		t.Errorf("renamed folder moved: old first %q, new first %q",
			oldRoot.Children[0].Name, newRoot.Children[0].Name)
	}
}

func TestFindByPath(t *testing.T) {
	root := BuildFolderTree(base, listing())

	tests := []struct {
		path  string
		found bool
	}{
		{base, true},
		{base + "drinks/", true},
		{base + "drinks/hot/", true},
		{base + "deep/nested/", true},
		{base + "missing/", false},
		{"company_images/company_2/x/", false},
	}
	for _, tt := range tests {
		node := FindByPath(root, tt.path)
		if (node != nil) != tt.found {
			t.Errorf("FindByPath(%q) found=%v, want %v", tt.path, node != nil, tt.found)
		}
		if node != nil && node.Path != tt.path {
			t.Errorf("FindByPath(%q).Path = %q", tt.path, node.Path)
		}
	}

	if FindByPath(nil, base) != nil {
		t.Error("FindByPath(nil) should return nil")
	}
}

func TestSubfolders(t *testing.T) {
	root := BuildFolderTree(base, listing())

	subs := Subfolders(root, base+"drinks/")
	if len(subs) != 2 || subs[0].Name != "cold" || subs[1].Name != "hot" {
		t.Errorf("Subfolders(drinks) = %v", subs)
	}
	if Subfolders(root, base+"nope/") != nil {
		t.Error("Subfolders of unknown path should be nil")
	}
}

func TestFolderName(t *testing.T) {
	tests := []struct {
		path, want string
	}{
		{base, "Root"},
		{"", "Root"},
		{base + "drinks/", "drinks"},
		{base + "drinks/hot/", "hot"},
	}
	for _, tt := range tests {
		if got := FolderName(base, tt.path); got != tt.want {
			t.Errorf("FolderName(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestParentPath(t *testing.T) {
	tests := []struct {
		path, want string
	}{
		{base + "drinks/hot/", base + "drinks/"},
		{base + "drinks/", base},
		{"root/", ""},
	}
	for _, tt := range tests {
		if got := ParentPath(tt.path); got != tt.want {
			t.Errorf("ParentPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestBasePath(t *testing.T) {
	if got := BasePath("42"); got != "company_images/company_42/" {
		t.Errorf("BasePath = %q", got)
	}
}
