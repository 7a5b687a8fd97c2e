// Package images - Image decoding for the evaluation pipeline.
package images

import (
	"image"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// ImageFormat represents supported image formats
type ImageFormat string

// ImageFormat constants
const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
	// FormatBMP is the BMP image format.
	FormatBMP ImageFormat = "bmp"
)

// ErrUnsupportedFormat is returned for files whose extension is not a known image format.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// FormatFromPath infers the image format from a file extension.
func FormatFromPath(path string) (ImageFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return FormatJPEG, nil
	case ".png":
		return FormatPNG, nil
	case ".bmp":
		return FormatBMP, nil
	default:
		return "", errors.Wrapf(ErrUnsupportedFormat, "%q", path)
	}
}

// Load decodes an image file, applying any EXIF orientation, and resizes it
// to size x size when size is positive.
//
// The resize ignores aspect ratio. Normalized boxes stay aligned with the
// stretched image.
//
// Arguments:
//   - path: The image file to load.
//   - size: The square edge length to resize to, or 0 to keep the original size.
//
// Returns:
//   - image.Image: The decoded (and possibly resized) image.
//   - error: An error if the file cannot be read or decoded.
func Load(path string, size int) (image.Image, error) {
	if _, err := FormatFromPath(path); err != nil {
		return nil, err
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open image %s", path)
	}

	if size > 0 {
		img = imaging.Resize(img, size, size, imaging.Linear)
	}

	return img, nil
}
