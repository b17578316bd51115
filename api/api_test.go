package api

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/depthify/depthify/depth"
	"github.com/depthify/depthify/render"
	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x + y) * 16)})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodeGLB(t *testing.T, data []byte) *gltf.Document {
	t.Helper()
	doc := new(gltf.Document)
	require.NoError(t, gltf.NewDecoder(bytes.NewReader(data)).Decode(doc))
	return doc
}

func TestImageToGLB(t *testing.T) {
	data, err := ImageToGLB(pngBytes(t, 4, 3), depth.DefaultDecodeOptions(), MeshParams{DepthScale: 10})
	require.NoError(t, err)
	assert.Equal(t, "glTF", string(data[:4]))

	doc := decodeGLB(t, data)
	require.Len(t, doc.Meshes, 1)
	prim := doc.Meshes[0].Primitives[0]
	assert.EqualValues(t, 12, doc.Accessors[prim.Attributes[gltf.POSITION]].Count)
	assert.EqualValues(t, 12, doc.Accessors[prim.Attributes[gltf.TEXCOORD_0]].Count)
	require.NotNil(t, prim.Indices)
	// (4-1)*(3-1) quads, two triangles each
	assert.EqualValues(t, 6*2*3, doc.Accessors[*prim.Indices].Count)
	assert.Equal(t, "Surface", doc.Nodes[0].Name)
}

func TestMeshToDocument_DegenerateAsPoints(t *testing.T) {
	g, err := depth.NewDepthGrid(5, 1, []float64{0, 0.2, 0.4, 0.6, 0.8})
	require.NoError(t, err)
	m, err := depth.BuildMesh(g, 1, false)
	require.NoError(t, err)

	doc, err := MeshToDocument(m, GLBOptions{Name: "line"})
	require.NoError(t, err)
	prim := doc.Meshes[0].Primitives[0]
	assert.Nil(t, prim.Indices)
	assert.Equal(t, gltf.PrimitivePoints, prim.Mode)
	assert.Equal(t, "line", doc.Meshes[0].Name)
}

func TestMeshToDocument_Errors(t *testing.T) {
	_, err := MeshToDocument(nil, GLBOptions{})
	assert.Error(t, err)
	_, err = MeshToDocument(&depth.Mesh{}, GLBOptions{})
	assert.Error(t, err)
}

func TestGridFileRoundTrip(t *testing.T) {
	gridBytes, err := ImageToGrid(pngBytes(t, 3, 3), depth.DefaultDecodeOptions(), depth.CompZstd)
	require.NoError(t, err)

	data, err := GridFileToGLB(gridBytes, MeshParams{DepthScale: 2, Invert: true, GLB: GLBOptions{Scale: [3]float64{2, 2, 1}}})
	require.NoError(t, err)
	doc := decodeGLB(t, data)
	assert.Len(t, doc.Meshes, 1)

	_, err = GridFileToGLB([]byte("junk"), MeshParams{DepthScale: 1})
	assert.ErrorIs(t, err, depth.ErrBadMagic)
}

func TestGridToGLB_InvalidGrid(t *testing.T) {
	_, err := GridToGLB(nil, MeshParams{DepthScale: 1})
	var ige *depth.InvalidGridError
	assert.True(t, errors.As(err, &ige))
}

func TestRenderImage(t *testing.T) {
	ro := render.DefaultOptions()
	ro.Width, ro.Height = 32, 24
	data, err := RenderImage(pngBytes(t, 6, 6), depth.DefaultDecodeOptions(), MeshParams{DepthScale: 3}, ro, render.JPEG)
	require.NoError(t, err)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 32, cfg.Width)
	assert.Equal(t, 24, cfg.Height)

	_, err = RenderImage([]byte("nope"), depth.DefaultDecodeOptions(), MeshParams{}, ro, render.PNG)
	assert.Error(t, err)
}
