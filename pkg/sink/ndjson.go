package sink

import (
	"bufio"
	"context"
	"io"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/goccy/go-json"
	"github.com/rizalgowandy/duckdb/pkg/errors"
	"github.com/rizalgowandy/duckdb/pkg/types"
	"go.uber.org/zap"
)

const (
	dateLayout      = "2006-01-02"
	timeLayout      = "15:04:05.999999"
	timestampLayout = "2006-01-02 15:04:05.999999"
)

// NDJSONWriter writes one JSON object per row.
type NDJSONWriter struct {
	dst    io.WriteCloser
	buf    *bufio.Writer
	logger *zap.Logger

	mu      sync.Mutex
	names   []string
	row     map[string]any
	records int64
}

// NewNDJSON returns an NDJSONWriter that owns dst. Compression, when set,
// wraps the output stream.
func NewNDJSON(dst io.WriteCloser, opts Options) (*NDJSONWriter, error) {
	out, err := compressed(dst, opts.Compression)
	if err != nil {
		_ = dst.Close()
		return nil, err
	}
	return &NDJSONWriter{dst: out, buf: bufio.NewWriterSize(out, 64*1024), logger: opts.Logger}, nil
}

func (w *NDJSONWriter) Begin(schema *arrow.Schema) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.names = make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		w.names[i] = f.Name
	}
	w.row = make(map[string]any, len(w.names))
	return nil
}

func (w *NDJSONWriter) Write(ctx context.Context, rec arrow.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	enc := json.NewEncoder(w.buf)
	for i := 0; i < int(rec.NumRows()); i++ {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		for c, name := range w.names {
			w.row[name] = jsonValue(rec.Column(c), i)
		}
		if err := enc.Encode(w.row); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to encode row")
		}
	}
	w.records += rec.NumRows()
	return nil
}

func (w *NDJSONWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	err := w.buf.Flush()
	if cerr := w.dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to close output")
	}
	w.logger.Debug("ndjson output closed", zap.Int64("rows", w.records))
	return nil
}

// jsonValue renders temporal columns as text and passes the rest through.
func jsonValue(arr arrow.Array, i int) any {
	if arr.IsNull(i) {
		return nil
	}
	switch a := arr.(type) {
	case *array.Date32:
		return a.Value(i).ToTime().Format(dateLayout)
	case *array.Time64:
		unit := a.DataType().(*arrow.Time64Type).Unit
		return a.Value(i).ToTime(unit).Format(timeLayout)
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit).Format(timestampLayout)
	default:
		return types.Value(arr, i)
	}
}
