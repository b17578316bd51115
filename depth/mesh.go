package depth

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Vertex is a position (x, y, z).
type Vertex [3]float64

// Face is a quad of vertex indices, counter-clockwise seen from +z.
type Face [4]uint32

// Mesh is the displaced grid. Vertices are in the same row-major order as the
// grid samples they came from.
type Mesh struct {
	Width, Height int
	Vertices      []Vertex
	Faces         []Face
}

// BuildMesh turns every sample into a vertex and every grid cell into a quad.
//
// x and y are centered: x = col - width/2, y = row - height/2, so the mesh sits
// on the local origin. z is the sample (or 1-sample when invert is set) times
// depthScale. Grids one sample wide or tall produce vertices but no faces.
func BuildMesh(grid *DepthGrid, depthScale float64, invert bool) (*Mesh, error) {
	if err := grid.validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(depthScale) || math.IsInf(depthScale, 0) {
		return nil, invalidf("depth scale %v is not finite", depthScale)
	}

	w, h := grid.width, grid.height
	mesh := &Mesh{
		Width:    w,
		Height:   h,
		Vertices: make([]Vertex, 0, w*h),
		Faces:    make([]Face, 0, (w-1)*(h-1)),
	}
	halfW, halfH := float64(w)/2, float64(h)/2

	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			d := grid.samples[row*w+col]
			if invert {
				d = 1 - d
			}
			mesh.Vertices = append(mesh.Vertices, Vertex{
				float64(col) - halfW,
				float64(row) - halfH,
				d * depthScale,
			})

			if row > 0 && col > 0 {
				mesh.Faces = append(mesh.Faces, Face{
					uint32((row-1)*w + (col - 1)),
					uint32((row-1)*w + col),
					uint32(row*w + col),
					uint32(row*w + (col - 1)),
				})
			}
		}
	}
	return mesh, nil
}

// Triangles splits every quad a,b,c,d into a,b,c and a,c,d.
func (m *Mesh) Triangles() []uint32 {
	out := make([]uint32, 0, len(m.Faces)*6)
	for _, f := range m.Faces {
		out = append(out, f[0], f[1], f[2], f[0], f[2], f[3])
	}
	return out
}

// Normals returns area-weighted smooth vertex normals. Vertices that belong to
// no face point up.
func (m *Mesh) Normals() [][3]float32 {
	acc := make([]r3.Vec, len(m.Vertices))
	tris := m.Triangles()
	for i := 0; i < len(tris); i += 3 {
		a, b, c := vec(m.Vertices[tris[i]]), vec(m.Vertices[tris[i+1]]), vec(m.Vertices[tris[i+2]])
		// unnormalized: length is twice the triangle area
		n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
		for _, idx := range tris[i : i+3] {
			acc[idx] = r3.Add(acc[idx], n)
		}
	}

	out := make([][3]float32, len(acc))
	for i, n := range acc {
		if r3.Norm(n) == 0 {
			out[i] = [3]float32{0, 0, 1}
			continue
		}
		u := r3.Unit(n)
		out[i] = [3]float32{float32(u.X), float32(u.Y), float32(u.Z)}
	}
	return out
}

// TexCoords maps each vertex to the image it was sampled from: u runs with the
// column, v = 1 at row 0.
func (m *Mesh) TexCoords() [][2]float32 {
	out := make([][2]float32, 0, len(m.Vertices))
	for row := 0; row < m.Height; row++ {
		for col := 0; col < m.Width; col++ {
			out = append(out, [2]float32{ratio(col, m.Width), 1 - ratio(row, m.Height)})
		}
	}
	return out
}

func ratio(i, n int) float32 {
	if n < 2 {
		return 0
	}
	return float32(i) / float32(n-1)
}

// Bounds returns the axis-aligned bounding box. An empty mesh has zero bounds.
func (m *Mesh) Bounds() (lo, hi [3]float64) {
	if len(m.Vertices) == 0 {
		return
	}
	lo, hi = m.Vertices[0], m.Vertices[0]
	for _, v := range m.Vertices[1:] {
		for k := 0; k < 3; k++ {
			lo[k] = math.Min(lo[k], v[k])
			hi[k] = math.Max(hi[k], v[k])
		}
	}
	return
}

// Positions converts vertices to float32 for GPU-facing formats.
func (m *Mesh) Positions() [][3]float32 {
	out := make([][3]float32, len(m.Vertices))
	for i, v := range m.Vertices {
		out[i] = [3]float32{float32(v[0]), float32(v[1]), float32(v[2])}
	}
	return out
}

func vec(v Vertex) r3.Vec { return r3.Vec{X: v[0], Y: v[1], Z: v[2]} }
