package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/coffeestaff/portal/internal/client"
	"github.com/coffeestaff/portal/internal/export"
	"github.com/coffeestaff/portal/internal/media"
	"github.com/coffeestaff/portal/internal/models"
	"github.com/coffeestaff/portal/internal/tree"
	"github.com/coffeestaff/portal/internal/tui"
)

// folderArg resolves a folder argument: "/" and "/a/b" are relative to
// the company root, ".." is the parent, anything else is a child of the
// current folder. Full storage paths are accepted as they are.
func folderArg(lib *media.Library, arg string) string {
	base, cur := lib.Base(), lib.CurrentPath()
	switch {
	case arg == "" || arg == ".":
		return cur
	case arg == "..":
		if cur == base {
			return base
		}
		return tree.ParentPath(cur)
	case strings.HasPrefix(arg, base):
		return strings.TrimSuffix(arg, "/") + "/"
	case strings.HasPrefix(arg, "/"):
		rel := strings.Trim(arg, "/")
		if rel == "" {
			return base
		}
		return base + rel + "/"
	}
	return tree.ChildPath(cur, arg)
}

// displayPath shows a folder path relative to the company root.
func displayPath(lib *media.Library, path string) string {
	return "/" + strings.TrimPrefix(path, lib.Base())
}

func foldersCommand() *command {
	return &command{
		name:    "folders",
		summary: "Browse and edit the folder tree of the media library",
		sub: []*command{
			{name: "tree", summary: "Draw the folder tree", run: runFoldersTree},
			{name: "ls", summary: "List the current folder", run: runFoldersLs},
			{name: "cd", summary: "Enter a folder", usage: "portalctl folders cd <folder>", run: runFoldersCd},
			{name: "back", summary: "Return to the previous folder", run: runFoldersBack},
			{name: "mkdir", summary: "Create a folder in the current folder", usage: "portalctl folders mkdir <name>", run: runFoldersMkdir},
			{name: "rename", summary: "Rename a folder", usage: "portalctl folders rename <folder> <new-name>", run: runFoldersRename},
			{name: "rm", summary: "Delete a folder with everything inside", usage: "portalctl folders rm <folder>", run: runFoldersRm},
		},
	}
}

func imageCounts(lib *media.Library) map[string]int {
	counts := make(map[string]int)
	for _, img := range lib.AllImages() {
		counts[img.FilePath]++
	}
	return counts
}

func runFoldersTree(ctx context.Context, a *app, args []string) error {
	lib, err := a.library(ctx)
	if err != nil {
		return err
	}
	fmt.Fprint(a.out, tui.RenderTree(lib.Tree(), lib.CurrentPath(), imageCounts(lib)))
	return nil
}

func runFoldersLs(ctx context.Context, a *app, args []string) error {
	lib, err := a.library(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s\n\n", displayPath(lib, lib.CurrentPath()))
	for _, f := range lib.Folders() {
		fmt.Fprintf(a.out, "  %s/\n", f.Name)
	}
	images := lib.Images()
	if len(images) > 0 {
		fmt.Fprintln(a.out)
		printImages(a, lib, images, false)
	}
	return nil
}

func printImages(a *app, lib *media.Library, images []models.Image, withPath bool) {
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	if withPath {
		fmt.Fprintln(tw, "ID\tNAME\tFOLDER\tSIZE\tDIMENSIONS")
	} else {
		fmt.Fprintln(tw, "ID\tNAME\tSIZE\tDIMENSIONS")
	}
	for _, img := range images {
		dims := "-"
		if img.Width > 0 && img.Height > 0 {
			dims = fmt.Sprintf("%dx%d", img.Width, img.Height)
		}
		size := humanize.Bytes(uint64(max(img.Size, 0)))
		if withPath {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", img.ImageID, img.FileName, displayPath(lib, img.FilePath), size, dims)
		} else {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", img.ImageID, img.FileName, size, dims)
		}
	}
	tw.Flush()
}

func oneArg(args []string, what string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("expected %s", what)
	}
	return args[0], nil
}

func runFoldersCd(ctx context.Context, a *app, args []string) error {
	arg, err := oneArg(args, "a folder")
	if err != nil {
		return err
	}
	lib, err := a.library(ctx)
	if err != nil {
		return err
	}
	path := folderArg(lib, arg)
	if err := lib.Enter(ctx, path); err != nil {
		if errors.Is(err, media.ErrUnknownFolder) {
			return fmt.Errorf("no folder %s", displayPath(lib, path))
		}
		return err
	}
	fmt.Fprintln(a.out, displayPath(lib, lib.CurrentPath()))
	return nil
}

func runFoldersBack(ctx context.Context, a *app, args []string) error {
	lib, err := a.library(ctx)
	if err != nil {
		return err
	}
	if !lib.Back(ctx) {
		return errors.New("no previous folder")
	}
	fmt.Fprintln(a.out, displayPath(lib, lib.CurrentPath()))
	return nil
}

func runFoldersMkdir(ctx context.Context, a *app, args []string) error {
	name, err := oneArg(args, "a folder name")
	if err != nil {
		return err
	}
	lib, err := a.library(ctx)
	if err != nil {
		return err
	}
	if err := lib.CreateFolder(ctx, name); err != nil {
		return errReported
	}
	return nil
}

func runFoldersRename(ctx context.Context, a *app, args []string) error {
	if len(args) != 2 {
		return errors.New("expected a folder and its new name")
	}
	lib, err := a.library(ctx)
	if err != nil {
		return err
	}
	if err := lib.RenameFolder(ctx, folderArg(lib, args[0]), args[1]); err != nil {
		return errReported
	}
	return nil
}

func runFoldersRm(ctx context.Context, a *app, args []string) error {
	arg, err := oneArg(args, "a folder")
	if err != nil {
		return err
	}
	lib, err := a.library(ctx)
	if err != nil {
		return err
	}
	path := folderArg(lib, arg)
	inside := 0
	for p, n := range imageCounts(lib) {
		if strings.HasPrefix(p, path) {
			inside += n
		}
	}
	if err := a.confirm(fmt.Sprintf("Delete %s and the %d images inside it?", displayPath(lib, path), inside)); err != nil {
		return err
	}
	if _, err := lib.DeleteFolder(ctx, path); err != nil {
		return errReported
	}
	return nil
}

func imagesCommand() *command {
	var all bool
	var target, out, dir string
	return &command{
		name:    "images",
		summary: "Manage the images of the media library",
		sub: []*command{
			{
				name:    "ls",
				summary: "List images of the current folder",
				usage:   "portalctl images ls [--all]",
				flags: func(fs *pflag.FlagSet) {
					fs.BoolVar(&all, "all", false, "list the images of every folder")
				},
				run: func(ctx context.Context, a *app, args []string) error {
					lib, err := a.library(ctx)
					if err != nil {
						return err
					}
					if all {
						printImages(a, lib, lib.AllImages(), true)
					} else {
						printImages(a, lib, lib.Images(), false)
					}
					return nil
				},
			},
			{name: "upload", summary: "Upload files into the current folder", usage: "portalctl images upload <file>...", run: runImagesUpload},
			{name: "rename", summary: "Rename an image", usage: "portalctl images rename <image-id> <new-name>", run: runImagesRename},
			{
				name:    "mv",
				summary: "Move images to another folder",
				usage:   "portalctl images mv <image-id>... [--to folder]",
				flags: func(fs *pflag.FlagSet) {
					fs.StringVar(&target, "to", "", "target folder (picked interactively when empty)")
				},
				run: func(ctx context.Context, a *app, args []string) error {
					return runImagesMv(ctx, a, args, target)
				},
			},
			{name: "rm", summary: "Delete images", usage: "portalctl images rm <image-id>...", run: runImagesRm},
			{name: "url", summary: "Print the preview address of an image", usage: "portalctl images url <image-id>", run: runImagesURL},
			{
				name:    "download",
				summary: "Save images to a local directory",
				usage:   "portalctl images download <image-id>... [--dir dir]",
				flags: func(fs *pflag.FlagSet) {
					fs.StringVarP(&dir, "dir", "d", ".", "directory to save into")
				},
				run: func(ctx context.Context, a *app, args []string) error {
					return runImagesDownload(ctx, a, args, dir)
				},
			},
			{
				name:    "export",
				summary: "Write an xlsx inventory of the library",
				usage:   "portalctl images export [--out file]",
				flags: func(fs *pflag.FlagSet) {
					fs.StringVarP(&out, "out", "o", "", "output file (default images-<company>-<date>.xlsx)")
				},
				run: func(ctx context.Context, a *app, args []string) error {
					return runImagesExport(ctx, a, out)
				},
			},
		},
	}
}

func runImagesUpload(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errors.New("expected at least one file")
	}
	lib, err := a.library(ctx)
	if err != nil {
		return err
	}
	for _, name := range args {
		data, err := os.ReadFile(name)
		if err != nil {
			return err
		}
		id, err := lib.Upload(ctx, filepath.Base(name), data)
		if err != nil {
			return errReported
		}
		fmt.Fprintf(a.out, "%s\t%s\t%s\n", id, filepath.Base(name), humanize.Bytes(uint64(len(data))))
	}
	return nil
}

func runImagesRename(ctx context.Context, a *app, args []string) error {
	if len(args) != 2 {
		return errors.New("expected an image id and its new name")
	}
	lib, err := a.library(ctx)
	if err != nil {
		return err
	}
	if err := lib.RenameImage(ctx, args[0], args[1]); err != nil {
		return errReported
	}
	return nil
}

func runImagesMv(ctx context.Context, a *app, ids []string, target string) error {
	if len(ids) == 0 {
		return errors.New("expected at least one image id")
	}
	lib, err := a.library(ctx)
	if err != nil {
		return err
	}

	var path string
	switch {
	case target != "":
		path = folderArg(lib, target)
	case a.interactive():
		if path, err = tui.RunTreePicker("Move to", lib.Tree(), lib.CurrentPath()); err != nil {
			return err
		}
	default:
		return errors.New("name the target folder with --to")
	}

	res, err := lib.MoveImages(ctx, ids, path)
	return batchOutcome(a, res, err)
}

func runImagesRm(ctx context.Context, a *app, ids []string) error {
	if len(ids) == 0 {
		return errors.New("expected at least one image id")
	}
	lib, err := a.library(ctx)
	if err != nil {
		return err
	}
	if err := a.confirm(fmt.Sprintf("Delete %d images?", len(ids))); err != nil {
		return err
	}
	res, err := lib.DeleteImages(ctx, ids)
	return batchOutcome(a, res, err)
}

func runImagesDownload(ctx context.Context, a *app, ids []string, dir string) error {
	if len(ids) == 0 {
		return errors.New("expected at least one image id")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	lib, err := a.library(ctx)
	if err != nil {
		return err
	}
	res, err := lib.Download(ctx, ids, func(name string, img models.Image, content io.Reader) error {
		dst := filepath.Join(dir, name)
		f, err := os.Create(dst)
		if err != nil {
			return err
		}
		n, err := io.Copy(f, content)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dst)
			return err
		}
		fmt.Fprintf(a.out, "%s\t%s\t%s\n", img.ImageID, dst, humanize.Bytes(uint64(n)))
		return nil
	})
	return batchOutcome(a, res, err)
}

// batchOutcome lists what a stopped batch left undone. The summary itself
// was already shown as a notification.
func batchOutcome(a *app, res *media.BatchResult, err error) error {
	if err == nil {
		return nil
	}
	if res != nil && !res.Complete() {
		fmt.Fprintf(os.Stderr, "failed:  %s\n", strings.Join(res.Failed, " "))
		if len(res.Skipped) > 0 {
			fmt.Fprintf(os.Stderr, "skipped: %s\n", strings.Join(res.Skipped, " "))
		}
	}
	return errReported
}

func runImagesURL(ctx context.Context, a *app, args []string) error {
	id, err := oneArg(args, "an image id")
	if err != nil {
		return err
	}
	lib, err := a.library(ctx)
	if err != nil {
		return err
	}
	u, err := lib.PreviewURL(ctx, id)
	if err != nil {
		if errors.Is(err, media.ErrUnknownImage) {
			return fmt.Errorf("no image %s", id)
		}
		return errors.New(client.Message(err, "Could not load the preview"))
	}
	fmt.Fprintln(a.out, u)
	return nil
}

func runImagesExport(ctx context.Context, a *app, out string) error {
	lib, err := a.library(ctx)
	if err != nil {
		return err
	}
	if out == "" {
		out = fmt.Sprintf("images-%s-%s.xlsx", lib.CompanyID(), time.Now().Format("20060102"))
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := export.Inventory(f, lib.Base(), lib.Tree(), lib.AllImages()); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	images := lib.AllImages()
	var total int64
	for _, img := range images {
		total += img.Size
	}
	fmt.Fprintf(a.out, "Wrote %s: %d images, %s\n", out, len(images), humanize.Bytes(uint64(total)))
	return nil
}
