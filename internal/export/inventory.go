// Package export renders a company's media library as an xlsx workbook.
package export

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/xuri/excelize/v2"

	"github.com/coffeestaff/portal/internal/models"
	"github.com/coffeestaff/portal/internal/tree"
)

const (
	imagesSheet  = "Images"
	foldersSheet = "Folders"
)

var (
	imageHeader  = []any{"Folder", "File name", "Title", "Type", "Size", "Bytes", "Width", "Height", "Created"}
	folderHeader = []any{"Folder", "Path", "Depth", "Images", "Total size"}
)

// Inventory writes a workbook with one row per image and one row per
// folder of the library.
func Inventory(w io.Writer, base string, root *models.FolderNode, images []models.Image) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", imagesSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(foldersSheet); err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("style: %w", err)
	}

	sorted := append([]models.Image(nil), images...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].FilePath != sorted[j].FilePath {
			return sorted[i].FilePath < sorted[j].FilePath
		}
		return sorted[i].FileName < sorted[j].FileName
	})

	rows := [][]any{imageHeader}
	for _, img := range sorted {
		rows = append(rows, []any{
			displayPath(base, img.FilePath),
			img.FileName,
			img.Title,
			img.ImageType,
			humanize.Bytes(uint64(img.Size)),
			img.Size,
			img.Width,
			img.Height,
			img.TimeCreated,
		})
	}
	if err := writeRows(f, imagesSheet, rows, bold); err != nil {
		return err
	}

	count := make(map[string]int)
	total := make(map[string]int64)
	for _, img := range images {
		count[img.FilePath]++
		total[img.FilePath] += img.Size
	}
	rows = [][]any{folderHeader}
	tree.Walk(root, func(node *models.FolderNode, depth int) {
		rows = append(rows, []any{
			node.Name,
			displayPath(base, node.Path),
			depth,
			count[node.Path],
			humanize.Bytes(uint64(total[node.Path])),
		})
	})
	if err := writeRows(f, foldersSheet, rows, bold); err != nil {
		return err
	}

	f.SetColWidth(imagesSheet, "A", "B", 32)
	f.SetColWidth(foldersSheet, "A", "B", 32)
	f.SetActiveSheet(0)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+1, err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(rows[0]), 1)
	return f.SetCellStyle(sheet, "A1", last, headerStyle)
}

// displayPath shows storage paths relative to the library root.
func displayPath(base, path string) string {
	rel := strings.TrimPrefix(path, base)
	return "/" + rel
}
