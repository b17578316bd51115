package utils

import (
	"fmt"
	"os"

	"github.com/depthify/depthify/api"
	"github.com/depthify/depthify/depth"
)

// RunImage2GLB converts a depth image into a displaced mesh .glb.
func RunImage2GLB(inPath, outPath string, depthScale float64, invert bool) error {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return err
	}
	glb, err := api.ImageToGLB(data, depth.DefaultDecodeOptions(), api.MeshParams{DepthScale: depthScale, Invert: invert})
	if err != nil {
		return fmt.Errorf("failed to convert %s: %w", inPath, err)
	}
	if err := depth.WriteFileAtomic(outPath, glb); err != nil {
		return fmt.Errorf("failed to save GLB: %w", err)
	}
	reportSaved(".glb", outPath)
	return nil
}

// RunImage2Grid decodes a depth image once and stores it as a .dgrid file.
func RunImage2Grid(inPath, outPath string, comp depth.Compression) error {
	g, err := depth.LoadImage(inPath, depth.DefaultDecodeOptions())
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", inPath, err)
	}
	if err := depth.SaveGrid(g, outPath, comp); err != nil {
		return fmt.Errorf("failed to save grid: %w", err)
	}
	reportSaved(".dgrid", outPath)
	return nil
}

// RunGrid2GLB converts a .dgrid file into a .glb.
func RunGrid2GLB(inPath, outPath string, depthScale float64, invert bool) error {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return err
	}
	glb, err := api.GridFileToGLB(data, api.MeshParams{DepthScale: depthScale, Invert: invert})
	if err != nil {
		return fmt.Errorf("failed to convert %s: %w", inPath, err)
	}
	if err := depth.WriteFileAtomic(outPath, glb); err != nil {
		return fmt.Errorf("failed to save GLB: %w", err)
	}
	reportSaved(".glb", outPath)
	return nil
}

func reportSaved(kind, path string) {
	if fi, err := os.Stat(path); err == nil {
		fmt.Printf("%s saved (%d bytes)\n", kind, fi.Size())
	} else {
		fmt.Printf("%s saved.\n", kind)
	}
}
