package media

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/coffeestaff/portal/internal/models"
)

// Saver receives the content of one downloaded image under its file name.
type Saver func(name string, img models.Image, content io.Reader) error

// DownloadName is the file name an image is saved under: its title, or
// the stored file name when it has none.
func DownloadName(img models.Image) string {
	name := strings.TrimSpace(img.Title)
	if name == "" {
		name = img.FileName
	}
	name = strings.NewReplacer("/", "_", "\\", "_").Replace(name)
	if name == "" || name == "." || name == ".." {
		name = img.ImageID
	}
	return name
}

// uniqueName returns name, or name with a " (n)" suffix before the
// extension when it was already used in this download.
func uniqueName(used map[string]bool, name string) string {
	if !used[name] {
		used[name] = true
		return name
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if !used[candidate] {
			used[candidate] = true
			return candidate
		}
	}
}

// Download fetches each image through its preview URL and hands the content
// to save, one image at a time. Like the other batches it stops at the
// first failure. The selection is kept.
func (l *Library) Download(ctx context.Context, ids []string, save Saver) (*BatchResult, error) {
	const op = "download_images"
	if len(ids) == 0 {
		return nil, l.fail(op, "Select at least one image", ErrNoSelection)
	}

	used := make(map[string]bool, len(ids))
	res, err := l.runSteps(ctx, op, ids, func(ctx context.Context, id string) error {
		img, ok := l.Image(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownImage, id)
		}
		u, err := l.PreviewURL(ctx, id)
		if err != nil {
			return err
		}
		body, err := l.api.FetchObject(ctx, u)
		if err != nil {
			return err
		}
		defer body.Close()
		if err := save(uniqueName(used, DownloadName(img)), img, body); err != nil {
			return fmt.Errorf("save %s: %w", id, err)
		}
		return nil
	})
	return res, l.report(res, err, "Downloaded", "Could not download image")
}
