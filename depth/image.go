package depth

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/transform"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// Channel selects which part of a pixel becomes the depth sample.
type Channel uint8

const (
	ChannelRed Channel = iota
	ChannelLuminance
)

func (c Channel) String() string {
	switch c {
	case ChannelRed:
		return "red"
	case ChannelLuminance:
		return "luminance"
	}
	return fmt.Sprintf("Channel(%d)", uint8(c))
}

// ParseChannel accepts "red" or "luminance" ("" means red).
func ParseChannel(s string) (Channel, error) {
	switch s {
	case "", "red", "r":
		return ChannelRed, nil
	case "luminance", "luma", "gray", "grey":
		return ChannelLuminance, nil
	}
	return 0, fmt.Errorf("unknown channel %q", s)
}

// DecodeOptions controls how an image becomes a DepthGrid.
type DecodeOptions struct {
	Channel Channel
	// MaxSize caps the larger image side; bigger images are resampled. 0 disables it.
	MaxSize int
	// SmoothRadius applies a gaussian blur before sampling. 0 disables it.
	SmoothRadius float64
	// FlipY puts the bottom image row at grid row 0.
	FlipY bool
}

// DefaultDecodeOptions reads the red channel bottom-up at full resolution.
func DefaultDecodeOptions() DecodeOptions {
	return DecodeOptions{Channel: ChannelRed, FlipY: true}
}

// LoadImage decodes an image file into a grid.
func LoadImage(filename string, opts DecodeOptions) (*DepthGrid, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f, opts)
}

// Decode reads a png, jpeg, bmp or tiff image and samples it into a grid.
func Decode(r io.Reader, opts DecodeOptions) (*DepthGrid, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return FromImage(img, opts)
}

// FromImage samples img into a grid with values in [0,1].
func FromImage(img image.Image, opts DecodeOptions) (*DepthGrid, error) {
	if img == nil {
		return nil, invalidf("nil image")
	}
	b := img.Bounds()
	if b.Dx() < 1 || b.Dy() < 1 {
		return nil, invalidf("empty image %dx%d", b.Dx(), b.Dy())
	}

	if opts.SmoothRadius > 0 {
		img = blur.Gaussian(img, opts.SmoothRadius)
	}
	if opts.MaxSize > 0 && (b.Dx() > opts.MaxSize || b.Dy() > opts.MaxSize) {
		w, h := fitWithin(b.Dx(), b.Dy(), opts.MaxSize)
		img = transform.Resize(img, w, h, transform.Linear)
	}

	b = img.Bounds()
	w, h := b.Dx(), b.Dy()
	samples := make([]float64, 0, w*h)
	for row := 0; row < h; row++ {
		y := b.Min.Y + row
		if opts.FlipY {
			y = b.Max.Y - 1 - row
		}
		for col := 0; col < w; col++ {
			samples = append(samples, sample(img, b.Min.X+col, y, opts.Channel))
		}
	}
	return &DepthGrid{width: w, height: h, samples: samples}, nil
}

func sample(img image.Image, x, y int, ch Channel) float64 {
	r, g, b := straightRGB(img.At(x, y))
	if ch == ChannelLuminance {
		return (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 0xffff
	}
	return float64(r) / 0xffff
}

// straightRGB returns 16-bit color channels not multiplied by alpha, so a
// transparent pixel keeps its stored depth.
func straightRGB(c color.Color) (r, g, b uint32) {
	switch c := c.(type) {
	case color.NRGBA:
		return uint32(c.R) * 0x101, uint32(c.G) * 0x101, uint32(c.B) * 0x101
	case color.NRGBA64:
		return uint32(c.R), uint32(c.G), uint32(c.B)
	}
	n := color.NRGBA64Model.Convert(c).(color.NRGBA64)
	return uint32(n.R), uint32(n.G), uint32(n.B)
}

// fitWithin scales w x h down so the larger side equals limit.
func fitWithin(w, h, limit int) (int, int) {
	if w >= h {
		nh := h * limit / w
		if nh < 1 {
			nh = 1
		}
		return limit, nh
	}
	nw := w * limit / h
	if nw < 1 {
		nw = 1
	}
	return nw, limit
}
