package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"github.com/depthify/depthify/depth"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

var ErrUnknownFormat = errors.New("unknown image format")

// Format is a raster output format.
type Format int32

const (
	PNG Format = iota
	JPEG
	BMP
	TIFF
)

func (f Format) String() string {
	switch f {
	case PNG:
		return "PNG"
	case JPEG:
		return "JPEG"
	case BMP:
		return "BMP"
	case TIFF:
		return "TIFF"
	}
	return fmt.Sprintf("Format(%d)", int32(f))
}

// Ext returns the file extension, including the dot.
func (f Format) Ext() string {
	switch f {
	case PNG:
		return ".png"
	case JPEG:
		return ".jpg"
	case BMP:
		return ".bmp"
	case TIFF:
		return ".tif"
	}
	return ""
}

// ParseFormat accepts a format name or extension, with or without a leading
// dot, in any case. An empty string means PNG.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))
	switch s {
	case "", "png":
		return PNG, nil
	case "jpeg", "jpg":
		return JPEG, nil
	case "bmp":
		return BMP, nil
	case "tiff", "tif":
		return TIFF, nil
	}
	return PNG, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// OutputPath builds {dir}/{name}{ext}.
func OutputPath(dir, name string, f Format) string {
	return filepath.Join(dir, name+f.Ext())
}

// Encode writes img to w in the given format.
func Encode(w io.Writer, img image.Image, f Format) error {
	switch f {
	case PNG:
		return png.Encode(w, img)
	case JPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
	case BMP:
		return bmp.Encode(w, img)
	case TIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	}
	return fmt.Errorf("%w: %v", ErrUnknownFormat, f)
}

// Save encodes img and moves it into place at filename in one step.
func Save(img image.Image, filename string, f Format) error {
	var buf bytes.Buffer
	if err := Encode(&buf, img, f); err != nil {
		return err
	}
	return depth.WriteFileAtomic(filename, buf.Bytes())
}
