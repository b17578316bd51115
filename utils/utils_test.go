package utils

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/depthify/depthify/config"
	"github.com/depthify/depthify/depth"
	"github.com/depthify/depthify/job"
	"github.com/depthify/depthify/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, w, h int, shade uint8) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: shade + uint8(x*8), G: uint8(y * 8), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func testSettings(t *testing.T) config.Settings {
	t.Helper()
	dir := t.TempDir()
	s := config.Default()
	s.ImagePath = filepath.Join(dir, "depth.png")
	s.OutputDir = filepath.Join(dir, "out")
	s.OutputName = "surface"
	s.Resolution = [2]int{48, 32}
	s.AntiAliasing = false
	writePNG(t, s.ImagePath, 8, 6, 10)
	return s
}

func TestPipeline_Run(t *testing.T) {
	s := testSettings(t)
	p := &Pipeline{Settings: s, Logger: logging.Discard()}
	j := p.NewJob()

	res, err := p.Run(context.Background(), j)
	require.NoError(t, err)
	assert.Equal(t, job.Succeeded, j.State())
	assert.Equal(t, 1.0, j.Progress())

	assert.Equal(t, 8, res.Width)
	assert.Equal(t, 6, res.Height)
	assert.Equal(t, 48, res.Vertices)
	assert.Equal(t, 35, res.Faces)
	assert.False(t, res.CacheHit)

	assert.Equal(t, filepath.Join(s.OutputDir, "surface.glb"), res.MeshPath)
	assert.Equal(t, filepath.Join(s.OutputDir, "surface.png"), res.ImagePath)

	glb, err := os.ReadFile(res.MeshPath)
	require.NoError(t, err)
	assert.Equal(t, "glTF", string(glb[:4]))

	f, err := os.Open(res.ImagePath)
	require.NoError(t, err)
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 48, cfg.Width)
	assert.Equal(t, 32, cfg.Height)
}

func TestPipeline_Stages(t *testing.T) {
	p := &Pipeline{}
	assert.Equal(t, []string{StageDecode, StageBuild, StageExport, StageRender}, p.Stages())
	p.SkipMesh = true
	assert.Equal(t, []string{StageDecode, StageBuild, StageRender}, p.Stages())
	p.SkipRender = true
	assert.Equal(t, []string{StageDecode, StageBuild}, p.Stages())
}

func TestPipeline_SkipOutputs(t *testing.T) {
	s := testSettings(t)
	p := &Pipeline{Settings: s, SkipMesh: true}
	res, err := p.Run(context.Background(), p.NewJob())
	require.NoError(t, err)
	assert.Empty(t, res.MeshPath)
	assert.FileExists(t, res.ImagePath)
	assert.NoFileExists(t, s.MeshOutputPath())

	s = testSettings(t)
	p = &Pipeline{Settings: s, SkipRender: true}
	res, err = p.Run(context.Background(), p.NewJob())
	require.NoError(t, err)
	assert.Empty(t, res.ImagePath)
	assert.FileExists(t, res.MeshPath)
	assert.NoFileExists(t, s.ImageOutputPath())
}

func TestPipeline_ProgressCallbacks(t *testing.T) {
	s := testSettings(t)
	p := &Pipeline{Settings: s}
	j := p.NewJob()

	var mu sync.Mutex
	var stages []string
	j.OnProgress = func(snap job.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if snap.State == job.Running {
			stages = append(stages, snap.Stage)
		}
	}
	_, err := p.Run(context.Background(), j)
	require.NoError(t, err)
	assert.Equal(t, p.Stages(), stages)
}

func TestPipeline_Cache(t *testing.T) {
	s := testSettings(t)
	s.CacheDir = filepath.Join(filepath.Dir(s.ImagePath), "cache")
	s.Compression = "zlib"

	first, err := RunSettings(context.Background(), s, nil)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	entries, err := os.ReadDir(s.CacheDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".dgrid", filepath.Ext(entries[0].Name()))

	second, err := RunSettings(context.Background(), s, nil)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Vertices, second.Vertices)

	// a different image is a different key
	writePNG(t, s.ImagePath, 8, 6, 90)
	third, err := RunSettings(context.Background(), s, nil)
	require.NoError(t, err)
	assert.False(t, third.CacheHit)
}

func TestGridCache_Key(t *testing.T) {
	c := GridCache{}
	opts := depth.DefaultDecodeOptions()
	k := c.Key([]byte("abc"), opts)
	assert.Len(t, k, 16)
	assert.Equal(t, k, c.Key([]byte("abc"), opts))
	assert.NotEqual(t, k, c.Key([]byte("abd"), opts))

	opts.FlipY = false
	assert.NotEqual(t, k, c.Key([]byte("abc"), opts))
	opts = depth.DefaultDecodeOptions()
	opts.Channel = depth.ChannelLuminance
	assert.NotEqual(t, k, c.Key([]byte("abc"), opts))
}

func TestGridCache_CorruptEntryIsMiss(t *testing.T) {
	c := GridCache{Dir: t.TempDir(), Compression: depth.CompNone}
	require.NoError(t, os.WriteFile(filepath.Join(c.Dir, "bad.dgrid"), []byte("DGRDjunk"), 0o644))
	_, ok := c.Load("bad")
	assert.False(t, ok)
	_, ok = c.Load("missing")
	assert.False(t, ok)
}

func TestPipeline_Cancelled(t *testing.T) {
	s := testSettings(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &Pipeline{Settings: s}
	j := p.NewJob()
	_, err := p.Run(ctx, j)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, job.Failed, j.State())
	assert.NoFileExists(t, s.MeshOutputPath())
}

func TestPipeline_InvalidSettings(t *testing.T) {
	s := testSettings(t)
	s.OutputFormat = "webp"
	_, err := RunSettings(context.Background(), s, nil)
	assert.ErrorIs(t, err, config.ErrInvalid)

	s = testSettings(t)
	s.ImagePath = filepath.Join(t.TempDir(), "missing.png")
	_, err = RunSettings(context.Background(), s, nil)
	assert.ErrorIs(t, err, config.ErrInvalid)

	s = testSettings(t)
	require.NoError(t, os.WriteFile(s.ImagePath, []byte("not an image"), 0o644))
	_, err = RunSettings(context.Background(), s, nil)
	assert.Error(t, err)
	assert.NoFileExists(t, s.MeshOutputPath())
}

func TestRunConversions(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "in.png")
	writePNG(t, img, 5, 4, 0)

	glbPath := filepath.Join(dir, "direct.glb")
	require.NoError(t, RunImage2GLB(img, glbPath, 10, false))
	data, err := os.ReadFile(glbPath)
	require.NoError(t, err)
	assert.Equal(t, "glTF", string(data[:4]))

	gridPath := filepath.Join(dir, "in.dgrid")
	require.NoError(t, RunImage2Grid(img, gridPath, depth.CompZstd))
	g, err := depth.LoadGrid(gridPath)
	require.NoError(t, err)
	assert.Equal(t, 5, g.Width())
	assert.Equal(t, 4, g.Height())

	viaGrid := filepath.Join(dir, "via_grid.glb")
	require.NoError(t, RunGrid2GLB(gridPath, viaGrid, 10, false))
	data2, err := os.ReadFile(viaGrid)
	require.NoError(t, err)
	assert.Equal(t, "glTF", string(data2[:4]))

	assert.Error(t, RunImage2GLB(filepath.Join(dir, "nope.png"), glbPath, 1, false))
	assert.Error(t, RunGrid2GLB(img, viaGrid, 1, false))
	assert.Error(t, RunImage2GLB(img, filepath.Join(dir, "x.glb"), math.NaN(), false))
}

func TestWatch_RerunsOnWrite(t *testing.T) {
	s := testSettings(t)
	s.Resolution = [2]int{16, 16}
	p := &Pipeline{Settings: s}

	results := make(chan error, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, p, 20*time.Millisecond, func(_ Result, err error) { results <- err })
	}()

	select {
	case err := <-results:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("initial run did not finish")
	}

	writePNG(t, s.ImagePath, 8, 6, 120)
	select {
	case err := <-results:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("no run after image changed")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	s := config.Default()
	s.ImagePath = filepath.Join(t.TempDir(), "gone", "depth.png")
	err := Watch(context.Background(), &Pipeline{Settings: s}, 0, nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, context.Canceled))
}
