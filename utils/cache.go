package utils

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	xxhash "github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/log"
	"github.com/depthify/depthify/config"
	"github.com/depthify/depthify/depth"
)

// GridCache stores decoded depth grids as .dgrid files named by a hash of the
// source image bytes and the decode options.
type GridCache struct {
	Dir         string
	Compression depth.Compression
}

// Key hashes everything that changes the decoded grid.
func (c GridCache) Key(imageBytes []byte, opts depth.DecodeOptions) string {
	h := xxhash.New()
	_, _ = h.Write(imageBytes)
	_, _ = fmt.Fprintf(h, "|%d|%d|%g|%t", opts.Channel, opts.MaxSize, opts.SmoothRadius, opts.FlipY)
	return fmt.Sprintf("%016x", h.Sum64())
}

func (c GridCache) path(key string) string {
	return filepath.Join(c.Dir, key+".dgrid")
}

// Load returns the cached grid for key. Missing or unreadable entries are a miss.
func (c GridCache) Load(key string) (*depth.DepthGrid, bool) {
	g, err := depth.LoadGrid(c.path(key))
	if err != nil {
		return nil, false
	}
	return g, true
}

func (c GridCache) Store(key string, g *depth.DepthGrid) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return err
	}
	return depth.SaveGrid(g, c.path(key), c.Compression)
}

// loadGrid decodes the configured image, going through the cache when one is set.
func loadGrid(s config.Settings, l *log.Logger) (*depth.DepthGrid, bool, error) {
	data, err := os.ReadFile(s.ImagePath)
	if err != nil {
		return nil, false, err
	}
	opts := s.DecodeOptions()
	if s.CacheDir == "" {
		g, err := depth.Decode(bytes.NewReader(data), opts)
		return g, false, err
	}

	cache := GridCache{Dir: s.CacheDir, Compression: s.GridCompression()}
	key := cache.Key(data, opts)
	if g, ok := cache.Load(key); ok {
		return g, true, nil
	}
	g, err := depth.Decode(bytes.NewReader(data), opts)
	if err != nil {
		return nil, false, err
	}
	if err := cache.Store(key, g); err != nil {
		l.Warn("could not cache depth grid", "dir", s.CacheDir, "err", err)
	}
	return g, false, nil
}
