package media

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrNotAnImage is returned when an upload cannot be decoded as a supported image.
var ErrNotAnImage = errors.New("file is not a supported image")

var contentTypes = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
	"webp": "image/webp",
}

var extensions = map[string]string{
	"jpeg": ".jpg",
	"png":  ".png",
	"gif":  ".gif",
	"bmp":  ".bmp",
	"tiff": ".tiff",
	"webp": ".webp",
}

// ImageInfo describes a decoded image header.
type ImageInfo struct {
	Format      string
	ContentType string
	Extension   string
	Width       int
	Height      int
}

// DetectImage reads only the image header at path.
func DetectImage(path string) (ImageInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("%w: %v", ErrNotAnImage, err)
	}
	ct, ok := contentTypes[format]
	if !ok {
		return ImageInfo{}, fmt.Errorf("%w: %q", ErrNotAnImage, format)
	}
	return ImageInfo{
		Format:      format,
		ContentType: ct,
		Extension:   extensions[format],
		Width:       cfg.Width,
		Height:      cfg.Height,
	}, nil
}
