// Package compression provides the transparent decompression layer beneath
// CSV file handles, plus the matching compressors used to produce fixtures
// and compressed exports.
//
// # Algorithm Selection
//
// Files are recognized by extension first and by magic bytes second:
//   - Gzip (.gz), Zstd (.zst), LZ4 frame (.lz4)
//   - Snappy framed (.sz, .snappy), S2 framed (.s2)
//   - Deflate (.deflate) has no magic and is recognized by extension only
//
// # Basic Usage
//
//	algo := compression.DetectFromPath("events.csv.zst")
//	rc, err := compression.NewReader(file, algo)
//	if err != nil {
//	    return err
//	}
//	defer rc.Close()
package compression

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Auto asks for detection by extension and magic bytes
	Auto Algorithm = "auto"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Snappy represents framed snappy compression
	Snappy Algorithm = "snappy"
	// LZ4 represents lz4 frame compression
	LZ4 Algorithm = "lz4"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// S2 represents framed s2 compression (Snappy compatible)
	S2 Algorithm = "s2"
	// Deflate represents raw deflate compression
	Deflate Algorithm = "deflate"
)

// ParseAlgorithm resolves a configured algorithm name. The empty string
// means Auto.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(name))); a {
	case "":
		return Auto, nil
	case None, Auto, Gzip, Snappy, LZ4, Zstd, S2, Deflate:
		return a, nil
	case "gz":
		return Gzip, nil
	case "zst":
		return Zstd, nil
	default:
		return None, fmt.Errorf("unsupported compression algorithm: %s", name)
	}
}

// Level represents compression level, controlling the trade-off between
// compression speed and compression ratio.
type Level int

const (
	// Fastest prioritizes speed over compression ratio.
	Fastest Level = 1
	// Default balances speed and compression.
	Default Level = 5
	// Better improves compression at cost of speed.
	Better Level = 7
	// Best maximizes compression ratio.
	Best Level = 9
)

var extensions = map[string]Algorithm{
	".gz":      Gzip,
	".gzip":    Gzip,
	".zst":     Zstd,
	".zstd":    Zstd,
	".lz4":     LZ4,
	".sz":      Snappy,
	".snappy":  Snappy,
	".s2":      S2,
	".deflate": Deflate,
}

// DetectFromPath returns the algorithm implied by the file extension, or
// None.
func DetectFromPath(path string) Algorithm {
	if algo, ok := extensions[strings.ToLower(filepath.Ext(path))]; ok {
		return algo
	}
	return None
}

var (
	magicGzip   = []byte{0x1f, 0x8b}
	magicZstd   = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicLZ4    = []byte{0x04, 0x22, 0x4d, 0x18}
	magicSnappy = []byte("\xff\x06\x00\x00sNaPpY")
	magicS2     = []byte("\xff\x06\x00\x00S2sTwO")
)

// MagicSize is the number of leading bytes DetectFromMagic inspects.
const MagicSize = 10

// DetectFromMagic recognizes a compressed stream from its first bytes.
func DetectFromMagic(header []byte) Algorithm {
	switch {
	case bytes.HasPrefix(header, magicZstd):
		return Zstd
	case bytes.HasPrefix(header, magicLZ4):
		return LZ4
	case bytes.HasPrefix(header, magicSnappy):
		return Snappy
	case bytes.HasPrefix(header, magicS2):
		return S2
	case bytes.HasPrefix(header, magicGzip):
		return Gzip
	default:
		return None
	}
}

// NewReader wraps src with a streaming decompressor for algo. Closing the
// returned reader releases decoder resources but does not close src.
func NewReader(src io.Reader, algo Algorithm) (io.ReadCloser, error) {
	switch algo {
	case None, "":
		return io.NopCloser(src), nil
	case Gzip:
		r, err := gzip.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		return r, nil
	case Zstd:
		dec, err := zstd.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		return dec.IOReadCloser(), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(src)), nil
	case Snappy:
		return io.NopCloser(snappy.NewReader(src)), nil
	case S2:
		return io.NopCloser(s2.NewReader(src)), nil
	case Deflate:
		return flate.NewReader(src), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algo)
	}
}

// Compressor compresses and decompresses whole buffers or streams.
type Compressor interface {
	// Compress compresses data and returns the compressed bytes.
	Compress(data []byte) ([]byte, error)

	// Decompress decompresses data and returns the original bytes.
	Decompress(data []byte) ([]byte, error)

	// CompressStream compresses from reader to writer.
	CompressStream(dst io.Writer, src io.Reader) error

	// DecompressStream decompresses from reader to writer.
	DecompressStream(dst io.Writer, src io.Reader) error

	// NewWriter wraps dst in a streaming compressor. Close flushes it
	// without closing dst.
	NewWriter(dst io.Writer) (io.WriteCloser, error)

	// Algorithm returns the compression algorithm used.
	Algorithm() Algorithm

	// Level returns the compression level configured.
	Level() Level
}

// Config represents compressor configuration.
type Config struct {
	Algorithm Algorithm // Compression algorithm to use
	Level     Level     // Compression level
}

// DefaultConfig returns a zstd configuration at the default level.
func DefaultConfig() *Config {
	return &Config{
		Algorithm: Zstd,
		Level:     Default,
	}
}

// NewCompressor creates a new compressor based on the provided configuration.
// If config is nil, default configuration is used.
func NewCompressor(config *Config) (Compressor, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Algorithm {
	case None, Gzip, Snappy, LZ4, Zstd, S2, Deflate:
		return &streamCompressor{algorithm: config.Algorithm, level: config.Level}, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", config.Algorithm)
	}
}

// streamCompressor implements every algorithm on top of its streaming
// writer and NewReader.
type streamCompressor struct {
	algorithm Algorithm
	level     Level
}

func (c *streamCompressor) Algorithm() Algorithm { return c.algorithm }

func (c *streamCompressor) Level() Level { return c.level }

func (c *streamCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.CompressStream(&buf, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *streamCompressor) Decompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.DecompressStream(&buf, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *streamCompressor) CompressStream(dst io.Writer, src io.Reader) error {
	w, err := c.NewWriter(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, src); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (c *streamCompressor) DecompressStream(dst io.Writer, src io.Reader) error {
	r, err := NewReader(src, c.algorithm)
	if err != nil {
		return err
	}
	defer r.Close()

	_, err = io.Copy(dst, r) //nolint:gosec // G110: callers bound input size
	return err
}

func (c *streamCompressor) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	switch c.algorithm {
	case None:
		return nopWriteCloser{dst}, nil
	case Gzip:
		return gzip.NewWriterLevel(dst, mapFlateLevel(c.level))
	case Deflate:
		return flate.NewWriter(dst, mapFlateLevel(c.level))
	case Zstd:
		return zstd.NewWriter(dst, zstd.WithEncoderLevel(mapZstdLevel(c.level)))
	case LZ4:
		w := lz4.NewWriter(dst)
		if err := w.Apply(lz4.CompressionLevelOption(mapLZ4Level(c.level))); err != nil {
			return nil, err
		}
		return w, nil
	case Snappy:
		return snappy.NewBufferedWriter(dst), nil
	case S2:
		return s2.NewWriter(dst), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", c.algorithm)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func mapFlateLevel(level Level) int {
	switch level {
	case Fastest:
		return flate.BestSpeed
	case Better:
		return 7
	case Best:
		return flate.BestCompression
	default:
		return flate.DefaultCompression
	}
}

func mapZstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case Fastest:
		return zstd.SpeedFastest
	case Better:
		return zstd.SpeedBetterCompression
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

func mapLZ4Level(level Level) lz4.CompressionLevel {
	switch level {
	case Fastest:
		return lz4.Fast
	case Better:
		return lz4.Level5
	case Best:
		return lz4.Level9
	default:
		return lz4.Level1
	}
}
