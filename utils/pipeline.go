package utils

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/depthify/depthify/api"
	"github.com/depthify/depthify/config"
	"github.com/depthify/depthify/depth"
	"github.com/depthify/depthify/job"
	"github.com/depthify/depthify/logging"
	"github.com/depthify/depthify/render"
)

const (
	StageDecode = "decode"
	StageBuild  = "build"
	StageExport = "export"
	StageRender = "render"
)

// Pipeline runs decode -> build -> export -> render for one settings value.
type Pipeline struct {
	Settings config.Settings
	Logger   *log.Logger
	// SkipMesh renders without writing the .glb file.
	SkipMesh bool
	// SkipRender writes the .glb without rendering a preview.
	SkipRender bool
}

// Result describes what a run produced. Paths are empty for skipped outputs.
type Result struct {
	MeshPath  string
	ImagePath string
	Width     int
	Height    int
	Vertices  int
	Faces     int
	CacheHit  bool
}

func (p *Pipeline) logger() *log.Logger {
	if p.Logger == nil {
		return logging.Discard()
	}
	return p.Logger
}

// Stages lists the stages Run will go through, in order.
func (p *Pipeline) Stages() []string {
	stages := []string{StageDecode, StageBuild}
	if !p.SkipMesh {
		stages = append(stages, StageExport)
	}
	if !p.SkipRender {
		stages = append(stages, StageRender)
	}
	return stages
}

// NewJob returns a job whose stages match this pipeline.
func (p *Pipeline) NewJob() *job.Job {
	return job.New(p.Settings.OutputName, p.Stages(), p.logger())
}

// Run executes the pipeline and reports progress on j. Nothing is written
// until the mesh is fully built; every output file is written atomically.
func (p *Pipeline) Run(ctx context.Context, j *job.Job) (Result, error) {
	res, err := p.run(ctx, j)
	if err != nil {
		j.Fail(err)
		return res, err
	}
	j.Done()
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, j *job.Job) (Result, error) {
	var res Result
	s := p.Settings
	l := j.Logger()

	if err := s.Validate(); err != nil {
		return res, err
	}
	if err := s.RequireImage(); err != nil {
		return res, err
	}

	step := func(stage string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return j.Start(stage)
	}

	if err := step(StageDecode); err != nil {
		return res, err
	}
	grid, hit, err := loadGrid(s, l)
	if err != nil {
		return res, fmt.Errorf("decode %s: %w", s.ImagePath, err)
	}
	res.Width, res.Height, res.CacheHit = grid.Width(), grid.Height(), hit
	l.Info("depth grid ready", "path", s.ImagePath, "width", grid.Width(), "height", grid.Height(), "cached", hit)

	if err := step(StageBuild); err != nil {
		return res, err
	}
	mesh, err := depth.BuildMesh(grid, s.DepthScale, s.InvertDepth)
	if err != nil {
		return res, fmt.Errorf("build mesh: %w", err)
	}
	res.Vertices, res.Faces = len(mesh.Vertices), len(mesh.Faces)
	l.Info("mesh built", "vertices", res.Vertices, "faces", res.Faces)

	if !p.SkipMesh || !p.SkipRender {
		if err := os.MkdirAll(s.OutputDir, 0o755); err != nil {
			return res, err
		}
	}

	if !p.SkipMesh {
		if err := step(StageExport); err != nil {
			return res, err
		}
		data, err := api.MeshToGLB(mesh, api.GLBOptions{Name: s.OutputName, Scale: s.Scale})
		if err != nil {
			return res, fmt.Errorf("export mesh: %w", err)
		}
		path := s.MeshOutputPath()
		if err := depth.WriteFileAtomic(path, data); err != nil {
			return res, err
		}
		res.MeshPath = path
		l.Info("mesh written", "path", path, "bytes", len(data))
	}

	if !p.SkipRender {
		if err := step(StageRender); err != nil {
			return res, err
		}
		img, err := render.Render(mesh, s.RenderOptions())
		if err != nil {
			return res, err
		}
		f, _ := render.ParseFormat(s.OutputFormat)
		path := s.ImageOutputPath()
		if err := render.Save(img, path, f); err != nil {
			return res, fmt.Errorf("save render: %w", err)
		}
		res.ImagePath = path
		l.Info("render written", "path", path, "format", f)
	}
	return res, nil
}

// RunSettings is a convenience wrapper that runs a full pipeline with a fresh job.
func RunSettings(ctx context.Context, s config.Settings, logger *log.Logger) (Result, error) {
	p := &Pipeline{Settings: s, Logger: logger}
	return p.Run(ctx, p.NewJob())
}
