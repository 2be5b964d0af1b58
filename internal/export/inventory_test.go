package export

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/coffeestaff/portal/internal/models"
	"github.com/coffeestaff/portal/internal/tree"
)

func TestInventory(t *testing.T) {
	base := tree.BasePath("c1")
	root := tree.BuildFolderTree(base, map[string]int64{
		base:                 0,
		base + "drinks/":     0,
		base + "drinks/hot/": 0,
	})
	images := []models.Image{
		{ImageID: "2", FilePath: base + "drinks/", FileName: "tea.png", Size: 2048, Width: 10, Height: 20},
		{ImageID: "1", FilePath: base, FileName: "latte.png", Size: 1000},
	}

	var buf bytes.Buffer
	if err := Inventory(&buf, base, root, images); err != nil {
		t.Fatalf("Inventory: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(imagesSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("image rows = %d, want 3", len(rows))
	}
	if rows[1][0] != "/" || rows[1][1] != "latte.png" {
		t.Errorf("first image row = %v", rows[1])
	}
	if rows[2][0] != "/drinks/" || rows[2][4] != "2.0 kB" {
		t.Errorf("second image row = %v", rows[2])
	}

	rows, err = f.GetRows(foldersSheet)
	if err != nil {
		t.Fatal(err)
	}
	want := []struct{ name, depth, count string }{
		{"Root", "0", "1"},
		{"drinks", "1", "1"},
		{"hot", "2", "0"},
	}
	if len(rows) != len(want)+1 {
		t.Fatalf("folder rows = %d", len(rows))
	}
	for i, w := range want {
		r := rows[i+1]
		if r[0] != w.name || r[2] != w.depth || r[3] != w.count {
			t.Errorf("folder row %d = %v, want %+v", i, r, w)
		}
	}
}
