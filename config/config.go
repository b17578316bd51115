package config

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/depthify/depthify/depth"
	"github.com/depthify/depthify/render"
	"github.com/pelletier/go-toml/v2"
)

var ErrInvalid = errors.New("invalid settings")

// Settings drive a full depthify run: decoding the depth image, building the
// mesh, exporting it and rendering a preview.
type Settings struct {
	ImagePath  string `toml:"image_path"`
	OutputDir  string `toml:"output_dir"`
	OutputName string `toml:"output_name"`

	InvertDepth bool    `toml:"invert_depth"`
	DepthScale  float64 `toml:"depth_scale"`

	// decoding
	Channel      string  `toml:"channel"`
	FlipY        bool    `toml:"flip_y"`
	MaxGridSize  int     `toml:"max_grid_size"`
	SmoothRadius float64 `toml:"smooth_radius"`

	// export
	Scale       [3]float64 `toml:"scale"`
	CacheDir    string     `toml:"cache_dir"`
	Compression string     `toml:"compression"`

	// render
	BackgroundColor [3]float64 `toml:"background_color"`
	AntiAliasing    bool       `toml:"anti_aliasing"`
	OutputFormat    string     `toml:"output_format"`
	Resolution      [2]int     `toml:"resolution"`
	Elevation       float64    `toml:"elevation"`
	Azimuth         float64    `toml:"azimuth"`

	LogLevel string `toml:"log_level"`
}

// Default returns the settings used for any field a config file leaves out.
func Default() Settings {
	return Settings{
		OutputDir:       ".",
		OutputName:      "depthify_output",
		DepthScale:      10,
		Channel:         "red",
		FlipY:           true,
		Scale:           [3]float64{1, 1, 1},
		Compression:     "zstd",
		BackgroundColor: [3]float64{0, 0, 0},
		AntiAliasing:    true,
		OutputFormat:    "PNG",
		Resolution:      [2]int{1024, 1024},
		Elevation:       45,
		Azimuth:         0,
		LogLevel:        "info",
	}
}

// Load reads a TOML file on top of Default and validates the result.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read config: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return Settings{}, fmt.Errorf("%s: %w", path, err)
	}
	// relative paths in the file are relative to the file
	base := filepath.Dir(path)
	s.ImagePath = resolve(base, s.ImagePath)
	s.OutputDir = resolve(base, s.OutputDir)
	s.CacheDir = resolve(base, s.CacheDir)
	return s, nil
}

// Parse decodes TOML on top of Default and validates the result.
func Parse(data []byte) (Settings, error) {
	s := Default()
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		var unknown *toml.StrictMissingError
		if errors.As(err, &unknown) {
			return Settings{}, fmt.Errorf("%w: unknown keys\n%s", ErrInvalid, unknown.String())
		}
		return Settings{}, fmt.Errorf("parse config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func Save(path string, s Settings) error {
	data, err := toml.Marshal(s)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return depth.WriteFileAtomic(path, data)
}

// Validate checks ranges and enum values. An empty ImagePath is allowed here;
// commands that need one check it themselves.
func (s Settings) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if math.IsNaN(s.DepthScale) || math.IsInf(s.DepthScale, 0) {
		add("depth_scale must be finite")
	}
	if s.OutputName == "" {
		add("output_name is empty")
	} else if strings.ContainsAny(s.OutputName, `/\`) {
		add("output_name %q must not contain path separators", s.OutputName)
	}
	for i, c := range s.BackgroundColor {
		if c < 0 || c > 1 || math.IsNaN(c) {
			add("background_color[%d] = %v is outside [0,1]", i, c)
		}
	}
	for i, v := range s.Scale {
		if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			add("scale[%d] = %v must be finite and non-zero", i, v)
		}
	}
	if s.Resolution[0] < 1 || s.Resolution[1] < 1 {
		add("resolution %dx%d must be positive", s.Resolution[0], s.Resolution[1])
	}
	if s.MaxGridSize < 0 {
		add("max_grid_size must not be negative")
	}
	if s.SmoothRadius < 0 {
		add("smooth_radius must not be negative")
	}
	if _, err := render.ParseFormat(s.OutputFormat); err != nil {
		add("output_format: %v", err)
	}
	if _, err := depth.ParseChannel(strings.ToLower(s.Channel)); err != nil {
		add("channel: %v", err)
	}
	if _, err := depth.ParseCompression(strings.ToLower(s.Compression)); err != nil {
		add("compression: %v", err)
	}
	if s.LogLevel != "" {
		if _, err := log.ParseLevel(strings.ToLower(s.LogLevel)); err != nil {
			add("log_level %q is not one of debug, info, warn, error, fatal", s.LogLevel)
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// RequireImage reports an error when no image is configured or it cannot be read.
func (s Settings) RequireImage() error {
	if s.ImagePath == "" {
		return fmt.Errorf("%w: no image_path set", ErrInvalid)
	}
	f, err := os.Open(s.ImagePath)
	if err != nil {
		return fmt.Errorf("%w: image not readable: %v", ErrInvalid, err)
	}
	return f.Close()
}

// DecodeOptions converts the decoding fields. Call Validate first.
func (s Settings) DecodeOptions() depth.DecodeOptions {
	ch, _ := depth.ParseChannel(strings.ToLower(s.Channel))
	return depth.DecodeOptions{
		Channel:      ch,
		MaxSize:      s.MaxGridSize,
		SmoothRadius: s.SmoothRadius,
		FlipY:        s.FlipY,
	}
}

func (s Settings) GridCompression() depth.Compression {
	c, _ := depth.ParseCompression(strings.ToLower(s.Compression))
	return c
}

// RenderOptions converts the render fields. Call Validate first.
func (s Settings) RenderOptions() render.Options {
	bg := s.BackgroundColor
	return render.Options{
		Width:        s.Resolution[0],
		Height:       s.Resolution[1],
		AntiAliasing: s.AntiAliasing,
		Background: color.RGBA{
			R: uint8(math.Round(bg[0] * 255)),
			G: uint8(math.Round(bg[1] * 255)),
			B: uint8(math.Round(bg[2] * 255)),
			A: 255,
		},
		Elevation: s.Elevation,
		Azimuth:   s.Azimuth,
		Scale:     s.Scale,
	}
}

// ImageOutputPath is {output_dir}/{output_name}{ext} for the configured format.
func (s Settings) ImageOutputPath() string {
	f, _ := render.ParseFormat(s.OutputFormat)
	return render.OutputPath(s.OutputDir, s.OutputName, f)
}

// MeshOutputPath is {output_dir}/{output_name}.glb.
func (s Settings) MeshOutputPath() string {
	return filepath.Join(s.OutputDir, s.OutputName+".glb")
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
