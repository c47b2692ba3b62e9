package sink

import (
	"context"
	"io"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rizalgowandy/duckdb/pkg/errors"
	"go.uber.org/zap"
)

// ArrowWriter writes batches to an Arrow IPC file.
type ArrowWriter struct {
	dst    io.WriteCloser
	mem    memory.Allocator
	logger *zap.Logger

	mu      sync.Mutex
	fw      *ipc.FileWriter
	records int64
}

// NewArrow returns an ArrowWriter that owns dst.
func NewArrow(dst io.WriteCloser, opts Options) *ArrowWriter {
	return &ArrowWriter{dst: dst, mem: opts.Allocator, logger: opts.Logger}
}

func (w *ArrowWriter) Begin(schema *arrow.Schema) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	fw, err := ipc.NewFileWriter(w.dst, ipc.WithSchema(schema), ipc.WithAllocator(w.mem))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create Arrow writer")
	}
	w.fw = fw
	return nil
}

func (w *ArrowWriter) Write(_ context.Context, rec arrow.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fw == nil {
		return errors.New(errors.ErrorTypeInternal, "arrow writer used before Begin")
	}
	if err := w.fw.Write(rec); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write record batch")
	}
	w.records += rec.NumRows()
	return nil
}

func (w *ArrowWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var err error
	if w.fw != nil {
		if err = w.fw.Close(); err != nil {
			err = errors.Wrap(err, errors.ErrorTypeFile, "failed to close Arrow writer")
		}
		w.fw = nil
	}
	if cerr := w.dst.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, errors.ErrorTypeFile, "failed to close output")
	}
	w.logger.Debug("arrow output closed", zap.Int64("rows", w.records))
	return err
}
