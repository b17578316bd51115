package api

import (
	"bytes"
	"fmt"

	"github.com/depthify/depthify/depth"
	"github.com/depthify/depthify/render"
)

// MeshParams are the builder inputs shared by every conversion.
type MeshParams struct {
	DepthScale float64
	Invert     bool
	GLB        GLBOptions
}

// ImageToGrid decodes image bytes (png, jpeg, bmp or tiff) and returns a .dgrid file as bytes.
func ImageToGrid(imageBytes []byte, opts depth.DecodeOptions, comp depth.Compression) ([]byte, error) {
	grid, err := depth.Decode(bytes.NewReader(imageBytes), opts)
	if err != nil {
		return nil, err
	}
	return depth.MarshalGrid(grid, comp)
}

// ImageToGLB decodes image bytes and returns the displaced mesh as .glb bytes.
func ImageToGLB(imageBytes []byte, opts depth.DecodeOptions, p MeshParams) ([]byte, error) {
	grid, err := depth.Decode(bytes.NewReader(imageBytes), opts)
	if err != nil {
		return nil, err
	}
	return GridToGLB(grid, p)
}

// GridFileToGLB takes .dgrid file bytes and returns .glb bytes.
func GridFileToGLB(gridBytes []byte, p MeshParams) ([]byte, error) {
	grid, err := depth.UnmarshalGrid(gridBytes)
	if err != nil {
		return nil, err
	}
	return GridToGLB(grid, p)
}

func GridToGLB(grid *depth.DepthGrid, p MeshParams) ([]byte, error) {
	mesh, err := depth.BuildMesh(grid, p.DepthScale, p.Invert)
	if err != nil {
		return nil, fmt.Errorf("build mesh: %w", err)
	}
	return MeshToGLB(mesh, p.GLB)
}

// RenderImage decodes image bytes, builds the mesh and returns a rendered
// preview encoded in the given format.
func RenderImage(imageBytes []byte, opts depth.DecodeOptions, p MeshParams, ro render.Options, f render.Format) ([]byte, error) {
	grid, err := depth.Decode(bytes.NewReader(imageBytes), opts)
	if err != nil {
		return nil, err
	}
	mesh, err := depth.BuildMesh(grid, p.DepthScale, p.Invert)
	if err != nil {
		return nil, fmt.Errorf("build mesh: %w", err)
	}
	img, err := render.Render(mesh, ro)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := render.Encode(&out, img, f); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
