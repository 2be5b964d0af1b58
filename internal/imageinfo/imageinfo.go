// Package imageinfo sniffs the type and intrinsic size of an image before
// it is uploaded.
package imageinfo

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrNotImage is returned for content that is not an image.
var ErrNotImage = errors.New("not an image")

// Info describes an image file.
type Info struct {
	MIME      string
	Extension string
	Width     int
	Height    int
	Size      int64
}

// Inspect detects the content type of data and reads its dimensions.
// Vector images have no intrinsic pixel size and report 0×0.
func Inspect(data []byte) (*Info, error) {
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, fmt.Errorf("%w: detected %s", ErrNotImage, mt.String())
	}
	info := &Info{
		MIME:      mt.String(),
		Extension: mt.Extension(),
		Size:      int64(len(data)),
	}
	if mt.Is("image/svg+xml") {
		return info, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("read %s dimensions: %w", mt.String(), err)
	}
	info.Width = cfg.Width
	info.Height = cfg.Height
	return info, nil
}
