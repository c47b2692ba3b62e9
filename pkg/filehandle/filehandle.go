// Package filehandle provides the byte source the CSV reader consumes:
// local files and object store blobs, with decompression and text
// transcoding applied transparently underneath.
package filehandle

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rizalgowandy/duckdb/pkg/compression"
	"github.com/rizalgowandy/duckdb/pkg/config"
	"github.com/rizalgowandy/duckdb/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// Handle is a positioned byte stream over one file.
type Handle interface {
	// Read reads decoded bytes; it returns io.EOF at the end of the stream.
	Read(p []byte) (int, error)
	// Seek positions the stream at offset. Only valid when CanSeek is true,
	// except Seek(0) which always resets.
	Seek(offset int64) error
	// Tell returns the current offset in the decoded stream.
	Tell() int64
	CanSeek() bool
	// FileSize is the stored size, which is the compressed size for
	// compressed files.
	FileSize() int64
	OnDiskFile() bool
	Reset() error
	Path() string
	Compression() compression.Algorithm
	Close() error
}

// Source abstracts where the raw bytes live.
type Source interface {
	OpenAt(ctx context.Context, offset int64) (io.ReadCloser, error)
	Size(ctx context.Context) (int64, error)
	OnDisk() bool
}

// Options controls decoding and object store access.
type Options struct {
	Compression  compression.Algorithm
	Encoding     string
	S3Region     string
	GCSEndpoint  string
	GCSAnonymous bool
	MemoryMap    bool

	// S3Client overrides the client built from the default AWS config.
	S3Client S3API
}

// OptionsFromConfig extracts handle options from a reader configuration.
func OptionsFromConfig(cfg *config.CSVConfig) (Options, error) {
	algo, err := compression.ParseAlgorithm(cfg.Storage.Compression)
	if err != nil {
		return Options{}, errors.Wrap(err, errors.ErrorTypeConfig, "invalid compression")
	}
	return Options{
		Compression:  algo,
		Encoding:     cfg.Storage.Encoding,
		S3Region:     cfg.Storage.S3Region,
		GCSEndpoint:  cfg.Storage.GCSEndpoint,
		GCSAnonymous: cfg.Storage.GCSAnonymous,
		MemoryMap:    cfg.Storage.MemoryMap,
	}, nil
}

// Open resolves path to a Source by scheme and opens a handle on it.
func Open(ctx context.Context, path string, opts Options) (Handle, error) {
	var (
		src Source
		err error
	)
	switch {
	case strings.HasPrefix(path, "s3://"):
		src, err = newS3Source(ctx, path, opts)
	case strings.HasPrefix(path, "gs://"):
		src, err = newGCSSource(ctx, path, opts)
	case opts.MemoryMap:
		src = newLocalSource(path)
	default:
		src = localSource{path: path}
	}
	if err != nil {
		return nil, err
	}
	return OpenSource(ctx, path, src, opts)
}

// FromBytes opens an in-memory handle, mostly useful in tests.
func FromBytes(name string, data []byte, opts Options) (Handle, error) {
	return OpenSource(context.Background(), name, bytesSource(data), opts)
}

// OpenSource opens a handle on an explicit source.
func OpenSource(ctx context.Context, path string, src Source, opts Options) (Handle, error) {
	h := &handle{
		ctx:  ctx,
		path: path,
		src:  src,
		algo: opts.Compression,
	}
	if h.algo == "" || h.algo == compression.Auto {
		if detected := compression.DetectFromPath(path); detected != compression.None {
			h.algo = detected
		} else {
			h.algo = compression.Auto
		}
	}

	enc, err := lookupEncoding(opts.Encoding)
	if err != nil {
		closeSource(src)
		return nil, err
	}
	h.enc = enc

	size, err := src.Size(ctx)
	if err != nil {
		closeSource(src)
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to stat file").
			WithDetail(errors.DetailFile, path)
	}
	h.size = size

	if err := h.openAt(0); err != nil {
		closeSource(src)
		return nil, err
	}
	return h, nil
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return nil, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("unsupported encoding %q", name))
	}
	return enc, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type handle struct {
	ctx  context.Context
	path string
	src  Source
	algo compression.Algorithm
	enc  encoding.Encoding
	size int64

	raw    io.ReadCloser
	decomp io.ReadCloser
	reader *bufio.Reader
	pos    int64
}

func (h *handle) openAt(offset int64) error {
	raw, err := h.src.OpenAt(h.ctx, offset)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to open file").
			WithDetail(errors.DetailFile, h.path)
	}

	br := bufio.NewReader(raw)
	if h.algo == compression.Auto {
		header, _ := br.Peek(compression.MagicSize)
		h.algo = compression.DetectFromMagic(header)
	}

	decomp, err := compression.NewReader(br, h.algo)
	if err != nil {
		_ = raw.Close()
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to open decompressor").
			WithDetail(errors.DetailFile, h.path)
	}

	var decoded io.Reader = decomp
	if h.enc != nil {
		decoded = transform.NewReader(decomp, h.enc.NewDecoder())
	}

	h.raw = raw
	h.decomp = decomp
	h.reader = bufio.NewReaderSize(decoded, 64*1024)
	h.pos = offset

	if offset == 0 {
		if head, _ := h.reader.Peek(len(utf8BOM)); bytes.Equal(head, utf8BOM) {
			n, _ := h.reader.Discard(len(utf8BOM))
			h.pos += int64(n)
		}
	}
	return nil
}

func (h *handle) closeStreams() error {
	var first error
	if h.decomp != nil {
		first = h.decomp.Close()
		h.decomp = nil
	}
	if h.raw != nil {
		if err := h.raw.Close(); err != nil && first == nil {
			first = err
		}
		h.raw = nil
	}
	h.reader = nil
	return first
}

func (h *handle) Read(p []byte) (int, error) {
	if h.reader == nil {
		return 0, errors.New(errors.ErrorTypeFile, "read on closed handle").
			WithDetail(errors.DetailFile, h.path)
	}
	n, err := h.reader.Read(p)
	h.pos += int64(n)
	if err != nil && err != io.EOF {
		return n, errors.Wrap(err, errors.ErrorTypeFile, "failed to read file").
			WithDetail(errors.DetailFile, h.path)
	}
	return n, err
}

func (h *handle) Seek(offset int64) error {
	if offset == 0 {
		return h.Reset()
	}
	if !h.CanSeek() {
		return errors.New(errors.ErrorTypeFile, "cannot seek in a compressed or transcoded stream").
			WithDetail(errors.DetailFile, h.path)
	}
	if offset < 0 || offset > h.size {
		return errors.Newf(errors.ErrorTypeValidation, "seek offset %d outside file of %d bytes", offset, h.size)
	}
	_ = h.closeStreams()
	return h.openAt(offset)
}

func (h *handle) Reset() error {
	_ = h.closeStreams()
	return h.openAt(0)
}

func (h *handle) Tell() int64 { return h.pos }

func (h *handle) CanSeek() bool { return h.algo == compression.None && h.enc == nil }

func (h *handle) FileSize() int64 { return h.size }

func (h *handle) OnDiskFile() bool { return h.src.OnDisk() }

func (h *handle) Path() string { return h.path }

func (h *handle) Compression() compression.Algorithm { return h.algo }

func (h *handle) Close() error {
	err := h.closeStreams()
	if c, ok := h.src.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func closeSource(src Source) {
	if c, ok := src.(io.Closer); ok {
		_ = c.Close()
	}
}

// Limit bounds reads of h to offsets before end. It is how a byte range is
// assigned to one reader during parallel scans.
func Limit(h Handle, end int64) Handle {
	return &limitedHandle{Handle: h, end: end}
}

type limitedHandle struct {
	Handle
	end int64
}

func (l *limitedHandle) Read(p []byte) (int, error) {
	remaining := l.end - l.Handle.Tell()
	if remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	return l.Handle.Read(p)
}

func (l *limitedHandle) FileSize() int64 {
	if l.end < l.Handle.FileSize() {
		return l.end
	}
	return l.Handle.FileSize()
}
