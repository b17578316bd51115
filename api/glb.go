package api

import (
	"bytes"
	"fmt"
	"math"

	"github.com/depthify/depthify/depth"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// GLBOptions control the exported glTF scene.
type GLBOptions struct {
	// Name of the mesh and node, "Surface" when empty.
	Name string
	// Scale is baked into positions and normals. Zero components count as 1.
	Scale [3]float64
}

// MeshToDocument builds a single-node glTF document. The mesh is written with
// positions, smooth normals, texture coordinates matching the source image and
// a triangle index list. Meshes without faces are written as points.
func MeshToDocument(mesh *depth.Mesh, opts GLBOptions) (*gltf.Document, error) {
	if mesh == nil || len(mesh.Vertices) == 0 {
		return nil, fmt.Errorf("empty mesh")
	}
	name := opts.Name
	if name == "" {
		name = "Surface"
	}
	scale := [3]float64{1, 1, 1}
	for k, v := range opts.Scale {
		if v != 0 {
			scale[k] = v
		}
	}

	positions := mesh.Positions()
	normals := mesh.Normals()
	for i := range positions {
		var n [3]float64
		for k := 0; k < 3; k++ {
			positions[i][k] *= float32(scale[k])
			n[k] = float64(normals[i][k]) / scale[k]
		}
		l := math.Sqrt(n[0]*n[0] + n[1]*n[1] + n[2]*n[2])
		if l > 0 {
			normals[i] = [3]float32{float32(n[0] / l), float32(n[1] / l), float32(n[2] / l)}
		}
	}

	doc := gltf.NewDocument()
	doc.Asset.Generator = "depthify"

	posAccessor := modeler.WritePosition(doc, positions)
	normalAccessor := modeler.WriteNormal(doc, normals)
	uvAccessor := modeler.WriteTextureCoord(doc, mesh.TexCoords())

	prim := &gltf.Primitive{
		Attributes: map[string]int{
			gltf.POSITION:   posAccessor,
			gltf.NORMAL:     normalAccessor,
			gltf.TEXCOORD_0: uvAccessor,
		},
		Material: gltf.Index(0),
	}
	if len(mesh.Faces) > 0 {
		prim.Indices = gltf.Index(modeler.WriteIndices(doc, mesh.Triangles()))
	} else {
		prim.Mode = gltf.PrimitivePoints
	}

	pbr := &gltf.PBRMetallicRoughness{MetallicFactor: gltf.Float(0), RoughnessFactor: gltf.Float(1)}
	doc.Materials = []*gltf.Material{{Name: name, PBRMetallicRoughness: pbr, AlphaMode: gltf.AlphaOpaque, DoubleSided: true}}
	doc.Meshes = []*gltf.Mesh{{Name: name, Primitives: []*gltf.Primitive{prim}}}
	doc.Nodes = []*gltf.Node{{Name: name, Mesh: gltf.Index(0)}}
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, 0)
	return doc, nil
}

// MeshToGLB encodes the mesh as a binary glTF file.
func MeshToGLB(mesh *depth.Mesh, opts GLBOptions) ([]byte, error) {
	doc, err := MeshToDocument(mesh, opts)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	enc := gltf.NewEncoder(&out)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
