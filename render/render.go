package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/anthonynsimon/bild/transform"
	"github.com/depthify/depthify/depth"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	ambient = 0.15
	albedo  = 0.8
	margin  = 0.05
	// supersampling factor used for anti-aliasing
	aaFactor = 2
)

// Options describe the camera and output of a render.
type Options struct {
	Width, Height int
	AntiAliasing  bool
	Background    color.RGBA
	// Elevation is the camera angle above the mesh plane in degrees; 90 looks
	// straight down the z axis.
	Elevation float64
	// Azimuth turns the mesh around z before the camera tilt, in degrees.
	Azimuth float64
	// LightDir points towards the light in mesh space. Zero means a default
	// light from the upper left.
	LightDir [3]float64
	// Scale is applied to vertex positions. Zero components count as 1.
	Scale [3]float64
}

// DefaultOptions returns a 1024x1024 anti-aliased render on black.
func DefaultOptions() Options {
	return Options{
		Width:        1024,
		Height:       1024,
		AntiAliasing: true,
		Background:   color.RGBA{A: 255},
		Elevation:    45,
	}
}

// Render draws the mesh with an orthographic camera fitted to its bounds,
// z-buffered and Lambert shaded. Pixels not covered by the mesh keep the
// background color.
func Render(mesh *depth.Mesh, opts Options) (*image.RGBA, error) {
	if mesh == nil {
		return nil, fmt.Errorf("render: nil mesh")
	}
	if opts.Width < 1 || opts.Height < 1 {
		return nil, fmt.Errorf("render: size %dx%d must be positive", opts.Width, opts.Height)
	}

	w, h := opts.Width, opts.Height
	if opts.AntiAliasing {
		w, h = w*aaFactor, h*aaFactor
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: opts.Background}, image.Point{}, draw.Src)

	if len(mesh.Faces) > 0 {
		newScene(mesh, opts, w, h).rasterize(img)
	}

	if opts.AntiAliasing {
		img = transform.Resize(img, opts.Width, opts.Height, transform.Box)
	}
	return img, nil
}

type scene struct {
	screen  []r3.Vec // x, y in pixels, z grows towards the camera
	normals []r3.Vec // view-independent, unit length
	view    []float64
	tris    []uint32
	light   r3.Vec
	width   int
	height  int
}

func newScene(mesh *depth.Mesh, opts Options, w, h int) *scene {
	scale := r3.Vec{X: nonZero(opts.Scale[0]), Y: nonZero(opts.Scale[1]), Z: nonZero(opts.Scale[2])}
	az := opts.Azimuth * math.Pi / 180
	tilt := (90 - opts.Elevation) * math.Pi / 180
	sinA, cosA := math.Sincos(az)
	sinT, cosT := math.Sincos(tilt)

	toView := func(p r3.Vec) r3.Vec {
		x := p.X*cosA - p.Y*sinA
		y := p.X*sinA + p.Y*cosA
		return r3.Vec{
			X: x,
			Y: y*cosT + p.Z*sinT,
			Z: -y*sinT + p.Z*cosT,
		}
	}

	s := &scene{
		screen:  make([]r3.Vec, len(mesh.Vertices)),
		normals: make([]r3.Vec, len(mesh.Vertices)),
		view:    make([]float64, len(mesh.Vertices)),
		tris:    mesh.Triangles(),
		width:   w,
		height:  h,
	}

	lo := r3.Vec{X: math.Inf(1), Y: math.Inf(1)}
	hi := r3.Vec{X: math.Inf(-1), Y: math.Inf(-1)}
	for i, v := range mesh.Vertices {
		p := toView(r3.Vec{X: v[0] * scale.X, Y: v[1] * scale.Y, Z: v[2] * scale.Z})
		s.screen[i] = p
		lo.X, lo.Y = math.Min(lo.X, p.X), math.Min(lo.Y, p.Y)
		hi.X, hi.Y = math.Max(hi.X, p.X), math.Max(hi.Y, p.Y)
	}

	// fit the projected bounds into the image, keeping aspect ratio
	spanX, spanY := hi.X-lo.X, hi.Y-lo.Y
	if spanX == 0 {
		spanX = 1
	}
	if spanY == 0 {
		spanY = 1
	}
	usable := 1 - 2*margin
	k := math.Min(float64(w)*usable/spanX, float64(h)*usable/spanY)
	cx, cy := (lo.X+hi.X)/2, (lo.Y+hi.Y)/2
	for i, p := range s.screen {
		s.screen[i] = r3.Vec{
			X: float64(w)/2 + (p.X-cx)*k,
			Y: float64(h)/2 - (p.Y-cy)*k,
			Z: p.Z,
		}
	}

	// normals under non-uniform scale use the inverse transpose
	for i, n := range mesh.Normals() {
		v := r3.Vec{X: float64(n[0]) / scale.X, Y: float64(n[1]) / scale.Y, Z: float64(n[2]) / scale.Z}
		if r3.Norm(v) > 0 {
			v = r3.Unit(v)
		}
		s.normals[i] = v
		s.view[i] = toView(v).Z
	}

	light := r3.Vec{X: opts.LightDir[0], Y: opts.LightDir[1], Z: opts.LightDir[2]}
	if r3.Norm(light) == 0 {
		light = r3.Vec{X: -0.5, Y: 0.5, Z: 1}
	}
	s.light = r3.Unit(light)
	return s
}

func (s *scene) rasterize(img *image.RGBA) {
	zbuf := make([]float64, s.width*s.height)
	for i := range zbuf {
		zbuf[i] = math.Inf(-1)
	}

	for t := 0; t < len(s.tris); t += 3 {
		i0, i1, i2 := s.tris[t], s.tris[t+1], s.tris[t+2]
		a, b, c := s.screen[i0], s.screen[i1], s.screen[i2]
		area := edge(a, b, c)
		if area == 0 {
			continue
		}

		minX := clamp(int(math.Floor(math.Min(a.X, math.Min(b.X, c.X)))), 0, s.width-1)
		maxX := clamp(int(math.Ceil(math.Max(a.X, math.Max(b.X, c.X)))), 0, s.width-1)
		minY := clamp(int(math.Floor(math.Min(a.Y, math.Min(b.Y, c.Y)))), 0, s.height-1)
		maxY := clamp(int(math.Ceil(math.Max(a.Y, math.Max(b.Y, c.Y)))), 0, s.height-1)

		for y := minY; y <= maxY; y++ {
			for x := minX; x <= maxX; x++ {
				p := r3.Vec{X: float64(x) + 0.5, Y: float64(y) + 0.5}
				w0 := edge(b, c, p) / area
				w1 := edge(c, a, p) / area
				w2 := edge(a, b, p) / area
				if w0 < 0 || w1 < 0 || w2 < 0 {
					continue
				}
				z := w0*a.Z + w1*b.Z + w2*c.Z
				idx := y*s.width + x
				if z <= zbuf[idx] {
					continue
				}
				zbuf[idx] = z

				n := r3.Add(r3.Add(r3.Scale(w0, s.normals[i0]), r3.Scale(w1, s.normals[i1])), r3.Scale(w2, s.normals[i2]))
				facing := w0*s.view[i0] + w1*s.view[i1] + w2*s.view[i2]
				img.SetRGBA(x, y, s.shade(n, facing))
			}
		}
	}
}

// shade lights a surface point; normals facing away from the camera are
// flipped so the underside of a mesh is lit too.
func (s *scene) shade(n r3.Vec, facing float64) color.RGBA {
	if r3.Norm(n) > 0 {
		n = r3.Unit(n)
	}
	if facing < 0 {
		n = r3.Scale(-1, n)
	}
	intensity := ambient + (1-ambient)*math.Max(0, r3.Dot(n, s.light))
	v := uint8(math.Round(math.Min(1, albedo*intensity) * 255))
	return color.RGBA{R: v, G: v, B: v, A: 255}
}

// edge is twice the signed area of a, b, p in the screen plane.
func edge(a, b, p r3.Vec) float64 {
	return (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func nonZero(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}
