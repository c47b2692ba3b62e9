package sink

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/rizalgowandy/duckdb/pkg/errors"
	"go.uber.org/zap"
)

var parquetCodecs = map[string]compress.Compression{
	"":             compress.Codecs.Snappy,
	"snappy":       compress.Codecs.Snappy,
	"none":         compress.Codecs.Uncompressed,
	"uncompressed": compress.Codecs.Uncompressed,
	"gzip":         compress.Codecs.Gzip,
	"zstd":         compress.Codecs.Zstd,
	"lz4":          compress.Codecs.Lz4Raw,
	"brotli":       compress.Codecs.Brotli,
}

// ParquetWriter writes batches as row groups of a Parquet file.
type ParquetWriter struct {
	dst    io.WriteCloser
	mem    memory.Allocator
	codec  compress.Compression
	logger *zap.Logger

	mu      sync.Mutex
	fw      *pqarrow.FileWriter
	records int64
}

// NewParquet returns a ParquetWriter that owns dst. Compression names the
// column codec and defaults to snappy.
func NewParquet(dst io.WriteCloser, opts Options) (*ParquetWriter, error) {
	codec, ok := parquetCodecs[strings.ToLower(opts.Compression)]
	if !ok {
		_ = dst.Close()
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported parquet codec %q", opts.Compression)
	}
	return &ParquetWriter{dst: dst, mem: opts.Allocator, codec: codec, logger: opts.Logger}, nil
}

func (w *ParquetWriter) Begin(schema *arrow.Schema) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	props := parquet.NewWriterProperties(
		parquet.WithCompression(w.codec),
		parquet.WithAllocator(w.mem),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithAllocator(w.mem),
		pqarrow.WithStoreSchema(),
	)
	fw, err := pqarrow.NewFileWriter(schema, w.dst, props, arrowProps)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create Parquet writer")
	}
	w.fw = fw
	return nil
}

func (w *ParquetWriter) Write(_ context.Context, rec arrow.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fw == nil {
		return errors.New(errors.ErrorTypeInternal, "parquet writer used before Begin")
	}
	if err := w.fw.WriteBuffered(rec); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write record batch")
	}
	w.records += rec.NumRows()
	return nil
}

// Close finishes the file footer. The Parquet writer closes dst itself.
func (w *ParquetWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var err error
	if w.fw != nil {
		if err = w.fw.Close(); err != nil {
			err = errors.Wrap(err, errors.ErrorTypeFile, "failed to close Parquet writer")
		}
		w.fw = nil
	}
	if cerr := w.dst.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, errors.ErrorTypeFile, "failed to close output")
	}
	w.logger.Debug("parquet output closed", zap.Int64("rows", w.records), zap.Stringer("codec", w.codec))
	return err
}
