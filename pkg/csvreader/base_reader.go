// Package csvreader turns a CSV byte stream into typed Arrow record batches.
//
// # Overview
//
// A reader is driven through four parser modes. While sniffing, the
// tokenizer and materializer run over small samples and the results only
// refine the dialect and column type guesses; the sniffer package owns
// those transitions. Once in Parsing mode every row is accumulated into a
// parse chunk, cast column by column and flushed onto an output queue that
// the consumer drains with Next or Batches.
//
// # Usage
//
//	r, err := csvreader.NewBufferedReader(cfg, handle, csvreader.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	// dialect and schema come from the sniffer or the configuration
//	for {
//	    rec, err := r.Next(ctx)
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	    rec.Release()
//	}
//
// A reader is not safe for concurrent use. Parallel scans construct one
// reader per byte range and translate range-local line numbers through an
// injected LineErrorFunc.
package csvreader

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rizalgowandy/duckdb/pkg/config"
	"github.com/rizalgowandy/duckdb/pkg/errors"
	"github.com/rizalgowandy/duckdb/pkg/logger"
	"github.com/rizalgowandy/duckdb/pkg/metrics"
	"github.com/rizalgowandy/duckdb/pkg/types"
	"go.uber.org/zap"
)

// BaseReader holds the dialect, schema, counters and accumulation state
// shared by every reader. It consumes tokenized values through AddValue and
// AddRow and materializes them with Flush.
type BaseReader struct {
	// Configuration
	cfg      config.CSVConfig // Copied at construction, never mutated
	fileName string           // Reported in every error
	dialect  Dialect          // Active dialect
	formats  types.Formats    // Date and timestamp layouts

	// Collaborators
	logger    *zap.Logger        // Structured logger
	metrics   *metrics.Collector // Optional metrics
	mem       memory.Allocator   // Arrow allocator for output batches
	lineErrFn LineErrorFunc      // Local to global line translation
	bufferIdx int                // Byte range this reader is bound to

	// Schema
	mode        ParserMode
	names       []string
	returnTypes []types.Type
	projection  []int

	// Line counters
	linenr          int64   // Logical lines consumed
	linenrEstimated bool    // linenr derived from bytesPerLineAvg after a jump
	bytesPerLineAvg float64 // Running average of row sizes
	rowsObserved    int64   // Rows feeding bytesPerLineAvg
	sampleChunkIdx  int     // Samples drawn while sniffing
	rowsRead        int64   // Data rows committed in Parsing mode

	// Current row
	rowEmpty            bool
	errorColumnOverflow bool

	// Sniffing results
	sniffedColumnCounts []int
	headerFields        []string

	parseChunk ParseChunk
	queue      batchQueue
}

// Option configures a reader.
type Option func(*BaseReader)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *BaseReader) {
		r.logger = l
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(r *BaseReader) {
		r.metrics = m
	}
}

// WithLineError injects the translation from range-local to global line
// numbers used in error messages.
func WithLineError(fn LineErrorFunc) Option {
	return func(r *BaseReader) {
		if fn != nil {
			r.lineErrFn = fn
		}
	}
}

// WithAllocator sets the Arrow allocator for output batches.
func WithAllocator(mem memory.Allocator) Option {
	return func(r *BaseReader) {
		r.mem = mem
	}
}

// WithBufferIndex binds the reader to a byte range of a parallel scan.
func WithBufferIndex(idx int) Option {
	return func(r *BaseReader) {
		r.bufferIdx = idx
	}
}

func newBaseReader(cfg *config.CSVConfig, fileName string, opts ...Option) *BaseReader {
	r := &BaseReader{
		cfg:       *cfg,
		fileName:  fileName,
		dialect:   DialectFromConfig(cfg),
		formats:   cfg.Formats(),
		mem:       memory.NewGoAllocator(),
		lineErrFn: identityLineError,
		mode:      SniffingDialect,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logger.OrDefault(r.logger).With(
		zap.String("file", fileName),
		zap.Int("buffer_index", r.bufferIdx),
	)
	return r
}

// GetFileName returns the path the reader was opened on.
func (r *BaseReader) GetFileName() string { return r.fileName }

// GetNames returns the resolved column names.
func (r *BaseReader) GetNames() []string { return r.names }

// GetTypes returns the resolved column types.
func (r *BaseReader) GetTypes() []types.Type { return r.returnTypes }

// Config returns the reader's configuration copy.
func (r *BaseReader) Config() *config.CSVConfig { return &r.cfg }

// BufferIndex returns the byte range index this reader is bound to.
func (r *BaseReader) BufferIndex() int { return r.bufferIdx }

// Mode returns the active parser mode.
func (r *BaseReader) Mode() ParserMode { return r.mode }

// SetMode moves to next if the transition is allowed. Entering a mode
// reallocates the parse chunk for that mode's capacity.
func (r *BaseReader) SetMode(next ParserMode) error {
	mode, err := Transition(r.mode, next)
	if err != nil {
		return err
	}
	r.mode = mode
	if mode == ParsingHeader {
		r.headerFields = r.headerFields[:0]
	}
	r.InitParseChunk(len(r.returnTypes))
	return nil
}

// Dialect returns the active dialect.
func (r *BaseReader) Dialect() Dialect { return r.dialect }

// SetDialect replaces the dialect. An unknown newline convention is
// detected again from the next row terminator.
func (r *BaseReader) SetDialect(d Dialect) {
	r.dialect = d
}

// SetSchema sets the column names and types and resizes the parse chunk.
func (r *BaseReader) SetSchema(names []string, returnTypes []types.Type) error {
	if len(names) != len(returnTypes) {
		return errors.Newf(errors.ErrorTypeValidation, "got %d names for %d types", len(names), len(returnTypes))
	}
	r.names = append([]string(nil), names...)
	r.returnTypes = append([]types.Type(nil), returnTypes...)
	r.projection = nil
	r.InitParseChunk(len(r.returnTypes))
	return nil
}

// InitializeProjection selects every discovered column in file order.
func (r *BaseReader) InitializeProjection() {
	r.projection = make([]int, len(r.returnTypes))
	for i := range r.projection {
		r.projection[i] = i
	}
}

// SetProjection selects the columns materialized into output batches.
func (r *BaseReader) SetProjection(columns []int) error {
	for _, col := range columns {
		if col < 0 || col >= len(r.returnTypes) {
			return errors.Newf(errors.ErrorTypeValidation,
				"projected column %d out of range for %d columns", col, len(r.returnTypes))
		}
	}
	r.projection = append([]int(nil), columns...)
	return nil
}

// Projection returns the projected column indexes.
func (r *BaseReader) Projection() []int { return r.projection }

// Schema returns the Arrow schema of the projected columns.
func (r *BaseReader) Schema() *arrow.Schema {
	if r.projection == nil {
		r.InitializeProjection()
	}
	fields := make([]arrow.Field, len(r.projection))
	for i, col := range r.projection {
		fields[i] = arrow.Field{
			Name:     r.columnName(col),
			Type:     r.returnTypes[col].ArrowType(),
			Nullable: true,
		}
	}
	return arrow.NewSchema(fields, nil)
}

// LineNumber returns the current logical line and whether it is estimated.
func (r *BaseReader) LineNumber() (int64, bool) { return r.linenr, r.linenrEstimated }

// BytesPerLineAvg returns the running row size estimate.
func (r *BaseReader) BytesPerLineAvg() float64 { return r.bytesPerLineAvg }

// SampleChunkIdx returns how many samples have been drawn.
func (r *BaseReader) SampleChunkIdx() int { return r.sampleChunkIdx }

// BeginSample counts a new sniffing sample.
func (r *BaseReader) BeginSample() { r.sampleChunkIdx++ }

// SniffedColumnCounts returns the field count of every row seen while sniffing.
func (r *BaseReader) SniffedColumnCounts() []int { return r.sniffedColumnCounts }

// ResetSniffCounts clears the sniffed column counts.
func (r *BaseReader) ResetSniffCounts() { r.sniffedColumnCounts = r.sniffedColumnCounts[:0] }

// HeaderFields returns the fields captured in ParsingHeader mode.
func (r *BaseReader) HeaderFields() []string { return r.headerFields }

// ParseChunk exposes the accumulation buffer to the sniffer.
func (r *BaseReader) ParseChunk() *ParseChunk { return &r.parseChunk }

// observeRowBytes feeds the bytes-per-line estimate.
func (r *BaseReader) observeRowBytes(n int64) {
	r.rowsObserved++
	r.bytesPerLineAvg += (float64(n) - r.bytesPerLineAvg) / float64(r.rowsObserved)
}

// AddValue appends one field to the current row. raw is the field content
// without surrounding quotes; escapes are offsets into raw of escape bytes
// to drop. A row whose only value is an unquoted empty first field is blank.
func (r *BaseReader) AddValue(raw []byte, column *int, escapes []int, hasQuotes bool, bufferIdx int) {
	r.rowEmpty = len(raw) == 0 && *column == 0 && !hasQuotes
	r.storeValue(raw, column, escapes, hasQuotes, bufferIdx)
}

func (r *BaseReader) storeValue(raw []byte, column *int, escapes []int, hasQuotes bool, bufferIdx int) {
	col := *column
	*column++

	switch r.mode {
	case SniffingDialect:
		return
	case ParsingHeader:
		r.headerFields = append(r.headerFields, unescape(raw, escapes))
		return
	}

	if col >= r.parseChunk.ColumnCount() {
		if !r.errorColumnOverflow && r.mode == Parsing {
			r.logger.Debug("row has more values than columns",
				zap.Int64("line", r.GetLineError(r.linenr+1, bufferIdx)),
				zap.Int("columns", r.parseChunk.ColumnCount()))
		}
		r.errorColumnOverflow = true
		return
	}

	value := unescape(raw, escapes)
	null := !hasQuotes &&
		((value == "" && r.cfg.Errors.EmptyAsNull) ||
			(r.cfg.Errors.NullString != "" && value == r.cfg.Errors.NullString))
	r.parseChunk.set(col, value, !null)
}

// unescape copies raw into a string, dropping the bytes at escapes, in a
// single pass.
func unescape(raw []byte, escapes []int) string {
	if len(escapes) == 0 {
		return string(raw)
	}
	var sb strings.Builder
	sb.Grow(len(raw) - len(escapes))
	prev := 0
	for _, pos := range escapes {
		sb.Write(raw[prev:pos])
		prev = pos + 1
	}
	sb.Write(raw[prev:])
	return sb.String()
}

// AddRow finalizes the current row. It reports whether the parse chunk (or
// the sniffing sample) is full and must be flushed before more rows are
// accepted.
func (r *BaseReader) AddRow(column *int, bufferIdx int) (bool, error) {
	r.linenr++
	defer r.resetRow(column)

	if *column == 0 {
		return false, nil
	}
	if r.rowEmpty && *column == 1 && (r.mode != Parsing || r.cfg.Errors.SkipBlankLines) {
		if r.mode == ParsingHeader {
			r.headerFields = r.headerFields[:0]
		}
		return false, nil
	}

	switch r.mode {
	case SniffingDialect:
		r.sniffedColumnCounts = append(r.sniffedColumnCounts, *column)
		return len(r.sniffedColumnCounts) >= r.cfg.Sniffing.SampleSize, nil

	case ParsingHeader:
		return true, nil

	case SniffingDataTypes:
		r.sniffedColumnCounts = append(r.sniffedColumnCounts, *column)
		if *column == r.parseChunk.ColumnCount() && !r.errorColumnOverflow {
			r.parseChunk.commit(r.linenr, r.linenrEstimated, int64(r.parseChunk.Size()+1))
		}
		return r.parseChunk.Full() || len(r.sniffedColumnCounts) >= r.cfg.Sniffing.SampleSize, nil
	}

	ncols := r.parseChunk.ColumnCount()
	if r.errorColumnOverflow {
		switch {
		case r.cfg.Errors.IgnoreExtraColumns:
		case r.cfg.Errors.IgnoreErrors:
			r.rejectRow("overflow", *column, bufferIdx)
			return false, nil
		default:
			return false, r.newLineError(errors.ErrorTypeSchemaMismatch,
				fmt.Sprintf("expected %d values per row, but got %d", ncols, *column),
				r.linenr, r.linenrEstimated, bufferIdx)
		}
	} else if *column < ncols {
		switch {
		case r.cfg.Errors.NullPadding:
			for col := *column; col < ncols; col++ {
				r.parseChunk.set(col, "", false)
			}
		case r.cfg.Errors.IgnoreErrors:
			r.rejectRow("missing_columns", *column, bufferIdx)
			return false, nil
		default:
			return false, r.newLineError(errors.ErrorTypeSchemaMismatch,
				fmt.Sprintf("expected %d values per row, but got %d", ncols, *column),
				r.linenr, r.linenrEstimated, bufferIdx)
		}
	}

	r.rowsRead++
	r.parseChunk.commit(r.linenr, r.linenrEstimated, r.rowsRead)
	return r.parseChunk.Full(), nil
}

func (r *BaseReader) rejectRow(reason string, got, bufferIdx int) {
	r.metrics.RejectRow(reason)
	r.logger.Warn("skipping malformed row",
		zap.String("reason", reason),
		zap.String("line", r.GetLineNumberStr(r.linenr, r.linenrEstimated, bufferIdx)),
		zap.Int("values", got),
		zap.Int("columns", r.parseChunk.ColumnCount()))
}

func (r *BaseReader) resetRow(column *int) {
	*column = 0
	r.rowEmpty = false
	r.errorColumnOverflow = false
}

// SetNewLineDelimiter fixes the newline convention from the first row
// terminator seen: carry is a carriage return, followed by a line feed when
// carryFollowedByNL is set. Once fixed it is never re-derived.
func (r *BaseReader) SetNewLineDelimiter(carry, carryFollowedByNL bool) {
	if r.dialect.NewLine != NewLineUnknown {
		return
	}
	switch {
	case carry && carryFollowedByNL:
		r.dialect.NewLine = NewLineCRLF
	case carry:
		r.dialect.NewLine = NewLineCR
	default:
		r.dialect.NewLine = NewLineLF
	}
}
