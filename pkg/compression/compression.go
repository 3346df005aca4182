// Package compression compresses exported profiles. pprof readers accept
// gzip natively; zstd trades compatibility for size and speed.
package compression

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Type is a compression algorithm.
type Type uint8

const (
	TypeGzip Type = 0
	TypeZstd Type = 1
	TypeNone Type = 255
)

// String returns the algorithm name.
func (t Type) String() string {
	switch t {
	case TypeGzip:
		return "gzip"
	case TypeZstd:
		return "zstd"
	case TypeNone:
		return "none"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// Extension returns the file suffix of data compressed with t.
func (t Type) Extension() string {
	switch t {
	case TypeGzip:
		return ".gz"
	case TypeZstd:
		return ".zst"
	default:
		return ""
	}
}

// ParseType maps a name or file suffix to a Type. The empty string is gzip.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "", "gzip", "gz":
		return TypeGzip, nil
	case "zstd", "zst":
		return TypeZstd, nil
	case "none", "raw":
		return TypeNone, nil
	default:
		return 0, fmt.Errorf("unknown compression: %q (valid: gzip, zstd, none)", s)
	}
}

// Level is a compression effort.
type Level int

const (
	LevelFastest Level = 1
	LevelDefault Level = 3
	LevelBest    Level = 9
)

// Compressor compresses whole buffers.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Type() Type
	Name() string
}

// GzipCompressor compresses with gzip.
type GzipCompressor struct {
	level int
}

// NewGzipCompressor creates a gzip compressor.
func NewGzipCompressor(level Level) *GzipCompressor {
	l := gzip.DefaultCompression
	switch level {
	case LevelFastest:
		l = gzip.BestSpeed
	case LevelBest:
		l = gzip.BestCompression
	}
	return &GzipCompressor{level: l}
}

func (c *GzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to write gzip data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *GzipCompressor) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (c *GzipCompressor) Type() Type   { return TypeGzip }
func (c *GzipCompressor) Name() string { return TypeGzip.String() }

// ZstdCompressor compresses with zstd. EncodeAll and DecodeAll are safe for
// concurrent use; Close releases the coders.
type ZstdCompressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewZstdCompressor creates a zstd compressor.
func NewZstdCompressor(level Level) (*ZstdCompressor, error) {
	l := zstd.SpeedDefault
	switch level {
	case LevelFastest:
		l = zstd.SpeedFastest
	case LevelBest:
		l = zstd.SpeedBestCompression
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(l))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &ZstdCompressor{encoder: enc, decoder: dec}, nil
}

func (c *ZstdCompressor) Compress(data []byte) ([]byte, error) {
	return c.encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

func (c *ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	return c.decoder.DecodeAll(data, nil)
}

func (c *ZstdCompressor) Type() Type   { return TypeZstd }
func (c *ZstdCompressor) Name() string { return TypeZstd.String() }

// Close releases the encoder and decoder.
func (c *ZstdCompressor) Close() {
	c.encoder.Close()
	c.decoder.Close()
}

// NoOpCompressor passes data through.
type NoOpCompressor struct{}

// NewNoOpCompressor creates a pass-through compressor.
func NewNoOpCompressor() *NoOpCompressor { return &NoOpCompressor{} }

func (NoOpCompressor) Compress(data []byte) ([]byte, error)   { return data, nil }
func (NoOpCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }
func (NoOpCompressor) Type() Type                             { return TypeNone }
func (NoOpCompressor) Name() string                           { return TypeNone.String() }

// New creates a compressor of type t.
func New(t Type, level Level) (Compressor, error) {
	switch t {
	case TypeGzip:
		return NewGzipCompressor(level), nil
	case TypeZstd:
		return NewZstdCompressor(level)
	case TypeNone:
		return NewNoOpCompressor(), nil
	default:
		return nil, fmt.Errorf("unknown compression type: %d", t)
	}
}

// Parse creates a default-level compressor from a name accepted by
// ParseType.
func Parse(name string) (Compressor, error) {
	t, err := ParseType(name)
	if err != nil {
		return nil, err
	}
	return New(t, LevelDefault)
}

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	gzipMagic = []byte{0x1f, 0x8b}
)

// DetectType reads the magic bytes of data. Anything unrecognized, such as
// a raw profile protobuf, is TypeNone.
func DetectType(data []byte) Type {
	switch {
	case bytes.HasPrefix(data, zstdMagic):
		return TypeZstd
	case bytes.HasPrefix(data, gzipMagic):
		return TypeGzip
	default:
		return TypeNone
	}
}

// AutoDecompress decompresses data according to its magic bytes.
func AutoDecompress(data []byte) ([]byte, error) {
	c, err := New(DetectType(data), LevelDefault)
	if err != nil {
		return nil, err
	}
	defer Close(c)
	return c.Decompress(data)
}

// Close releases c's resources if it holds any.
func Close(c Compressor) {
	if closer, ok := c.(interface{ Close() }); ok {
		closer.Close()
	}
}
