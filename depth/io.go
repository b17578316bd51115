package depth

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	xxhash "github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
)

// Compression indicates how the payload of a .dgrid file is stored.
type Compression uint8

const (
	CompNone Compression = 0
	CompZlib Compression = 1
	CompZstd Compression = 2
)

const (
	gridMagic   = "DGRD"
	gridVersion = 1
	// magic + version + comp + w + h + checksum + payload length
	gridHeaderLen = 4 + 1 + 1 + 4 + 4 + 8 + 4
	// upper bound on width*height accepted from a file header (1 GiB of float32)
	maxGridSamples = 1 << 28
	// zstd frames may declare a window larger than a tiny grid
	minDecoderMemory = 1 << 20
)

func (c Compression) String() string {
	switch c {
	case CompNone:
		return "none"
	case CompZlib:
		return "zlib"
	case CompZstd:
		return "zstd"
	}
	return fmt.Sprintf("Compression(%d)", uint8(c))
}

// ParseCompression accepts "none", "zlib" or "zstd" ("" means zstd).
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "none":
		return CompNone, nil
	case "zlib":
		return CompZlib, nil
	case "", "zstd":
		return CompZstd, nil
	}
	return 0, fmt.Errorf("unknown compression %q", s)
}

// MarshalGrid encodes the grid as a .dgrid file. Samples are stored as float32.
func MarshalGrid(g *DepthGrid, comp Compression) ([]byte, error) {
	if err := g.validate(); err != nil {
		return nil, err
	}
	raw := make([]byte, 4*len(g.samples))
	for i, s := range g.samples {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(float32(s)))
	}
	sum := xxhash.Sum64(raw)

	var payload []byte
	switch comp {
	case CompNone:
		payload = raw
	case CompZlib:
		var buf bytes.Buffer
		zw, _ := zlib.NewWriterLevel(&buf, zlib.BestCompression)
		if _, err := zw.Write(raw); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		payload = buf.Bytes()
	case CompZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, err
		}
		payload = enc.EncodeAll(raw, nil)
		_ = enc.Close()
	default:
		return nil, fmt.Errorf("unsupported compression: %d", comp)
	}

	var out bytes.Buffer
	out.Grow(gridHeaderLen + len(payload))
	out.WriteString(gridMagic)
	_ = binary.Write(&out, binary.LittleEndian, uint8(gridVersion))
	_ = binary.Write(&out, binary.LittleEndian, uint8(comp))
	_ = binary.Write(&out, binary.LittleEndian, uint32(g.width))
	_ = binary.Write(&out, binary.LittleEndian, uint32(g.height))
	_ = binary.Write(&out, binary.LittleEndian, sum)
	_ = binary.Write(&out, binary.LittleEndian, uint32(len(payload)))
	_, _ = out.Write(payload)
	return out.Bytes(), nil
}

// UnmarshalGrid parses a .dgrid file and verifies its checksum.
func UnmarshalGrid(data []byte) (*DepthGrid, error) {
	if len(data) < gridHeaderLen || string(data[:4]) != gridMagic {
		return nil, ErrBadMagic
	}
	if v := data[4]; v != gridVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
	comp := Compression(data[5])
	r := bytes.NewReader(data[6:])
	var w, h, plen uint32
	var sum uint64
	for _, v := range []any{&w, &h, &sum, &plen} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	if int(plen) != r.Len() {
		return nil, fmt.Errorf("payload length %d does not match %d remaining bytes", plen, r.Len())
	}
	payload := data[gridHeaderLen:]

	if w == 0 || h == 0 {
		return nil, invalidf("dimensions %dx%d must be positive", w, h)
	}
	n := uint64(w) * uint64(h)
	if n > maxGridSamples {
		return nil, invalidf("%dx%d exceeds %d samples", w, h, maxGridSamples)
	}
	want := 4 * n

	var raw []byte
	switch comp {
	case CompNone:
		raw = payload
	case CompZlib:
		zr, err := zlib.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		raw, err = io.ReadAll(io.LimitReader(zr, int64(want)+1))
		if err != nil {
			return nil, err
		}
	case CompZstd:
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(max(want, minDecoderMemory)))
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		raw, err = dec.DecodeAll(payload, nil)
		if errors.Is(err, zstd.ErrDecoderSizeExceeded) || errors.Is(err, zstd.ErrWindowSizeExceeded) {
			return nil, invalidf("payload expands past %d bytes for %dx%d", want, w, h)
		}
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported compression: %d", comp)
	}

	if uint64(len(raw)) != want {
		return nil, invalidf("payload holds %d bytes, want %d for %dx%d", len(raw), want, w, h)
	}
	if xxhash.Sum64(raw) != sum {
		return nil, ErrChecksum
	}
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
	}
	if err := checkShape(int(w), int(h), samples); err != nil {
		return nil, err
	}
	return &DepthGrid{width: int(w), height: int(h), samples: samples}, nil
}

// SaveGrid writes the grid to filename through a temporary file so a failed
// write never leaves a truncated grid behind.
func SaveGrid(g *DepthGrid, filename string, comp Compression) error {
	data, err := MarshalGrid(g, comp)
	if err != nil {
		return err
	}
	return WriteFileAtomic(filename, data)
}

func LoadGrid(filename string) (*DepthGrid, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return UnmarshalGrid(data)
}

// WriteFileAtomic writes data next to filename and renames it into place.
func WriteFileAtomic(filename string, data []byte) error {
	dir := filepath.Dir(filename)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filename)+".*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, filename)
}
