package depth

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrBadMagic           = errors.New("not a dgrid file")
	ErrUnsupportedVersion = errors.New("unsupported dgrid version")
	ErrChecksum           = errors.New("dgrid payload checksum mismatch")
)

// InvalidGridError reports a structurally malformed grid.
type InvalidGridError struct {
	Reason string
}

func (e *InvalidGridError) Error() string {
	return "invalid depth grid: " + e.Reason
}

func invalidf(format string, args ...any) error {
	return &InvalidGridError{Reason: fmt.Sprintf(format, args...)}
}

// DepthGrid is a row-major grid of depth samples, index = row*Width + col.
// It is never modified after construction.
type DepthGrid struct {
	width, height int
	samples       []float64
}

// NewDepthGrid copies samples into a new grid after checking its shape.
func NewDepthGrid(width, height int, samples []float64) (*DepthGrid, error) {
	if err := checkShape(width, height, samples); err != nil {
		return nil, err
	}
	s := make([]float64, len(samples))
	copy(s, samples)
	return &DepthGrid{width: width, height: height, samples: s}, nil
}

func checkShape(width, height int, samples []float64) error {
	if width < 1 || height < 1 {
		return invalidf("dimensions %dx%d must be positive", width, height)
	}
	if len(samples) != width*height {
		return invalidf("got %d samples, want %d (%dx%d)", len(samples), width*height, width, height)
	}
	for i, s := range samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return invalidf("sample %d is not finite", i)
		}
	}
	return nil
}

func (g *DepthGrid) Width() int  { return g.width }
func (g *DepthGrid) Height() int { return g.height }
func (g *DepthGrid) Len() int    { return len(g.samples) }

// At returns the sample at (row, col). It panics when out of range, like a slice index.
func (g *DepthGrid) At(row, col int) float64 {
	if row < 0 || row >= g.height || col < 0 || col >= g.width {
		panic(fmt.Sprintf("depth: At(%d, %d) out of range %dx%d", row, col, g.width, g.height))
	}
	return g.samples[row*g.width+col]
}

// Samples returns a copy of the samples in row-major order.
func (g *DepthGrid) Samples() []float64 {
	out := make([]float64, len(g.samples))
	copy(out, g.samples)
	return out
}

// validate re-checks a grid that may have been built as a zero value.
func (g *DepthGrid) validate() error {
	if g == nil {
		return invalidf("nil grid")
	}
	return checkShape(g.width, g.height, g.samples)
}
