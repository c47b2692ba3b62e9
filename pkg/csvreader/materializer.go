package csvreader

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/rizalgowandy/duckdb/pkg/errors"
	"github.com/rizalgowandy/duckdb/pkg/types"
	"go.uber.org/zap"
)

// InitParseChunk (re)allocates the parse chunk for numCols raw columns.
// Capacity is the sample size while sniffing types and the batch size
// otherwise. An existing chunk of the same shape is only reset.
func (r *BaseReader) InitParseChunk(numCols int) {
	capacity := r.cfg.Performance.BatchSize
	if r.mode == SniffingDataTypes {
		capacity = r.cfg.Sniffing.SampleSize
	}
	if r.parseChunk.columns != nil && r.parseChunk.ColumnCount() == numCols && r.parseChunk.Capacity() == capacity {
		r.parseChunk.reset()
		return
	}
	r.parseChunk = newParseChunk(numCols, capacity)
}

// SetDateFormat fixes the layout used for DATE or TIMESTAMP casts.
func (r *BaseReader) SetDateFormat(t types.Type, layout string) {
	switch t {
	case types.Date:
		r.formats.Date = layout
	case types.Timestamp:
		r.formats.Timestamp = layout
	}
}

// Formats returns the active date and timestamp layouts.
func (r *BaseReader) Formats() types.Formats { return r.formats }

// TryCastValue reports whether value casts to t.
func (r *BaseReader) TryCastValue(value string, t types.Type) bool {
	return types.Validate(value, t, r.formats)
}

// TryCastVector casts the first size values of a raw column in one pass.
// Any failure fails the whole column; the caller falls back to TryCastValue
// to isolate the offending rows.
func (r *BaseReader) TryCastVector(values []string, valid []bool, size int, t types.Type) (arrow.Array, bool) {
	b := types.NewBuilder(r.mem, t)
	defer b.Release()
	b.Reserve(size)

	for i := 0; i < size; i++ {
		if !valid[i] {
			b.AppendNull()
			continue
		}
		v, ok := types.TryCast(values[i], t, r.formats)
		if !ok {
			return nil, false
		}
		if err := types.Append(b, v); err != nil {
			return nil, false
		}
	}
	return b.NewArray(), true
}

// castMasked casts the rows of a raw column selected by keep. Every kept
// value is known to cast.
func (r *BaseReader) castMasked(values []string, valid, keep []bool, t types.Type) (arrow.Array, error) {
	b := types.NewBuilder(r.mem, t)
	defer b.Release()

	for i, k := range keep {
		if !k {
			continue
		}
		if !valid[i] {
			b.AppendNull()
			continue
		}
		v, _ := types.TryCast(values[i], t, r.formats)
		if err := types.Append(b, v); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to append value")
		}
	}
	return b.NewArray(), nil
}

// Flush materializes the parse chunk into a record batch and moves it onto
// the output queue. It reports whether a batch was queued. The chunk is
// reset whether or not the flush succeeds.
//
// A column whose vector cast fails is re-checked row by row. A failing row
// is dropped under ignore_errors; otherwise Flush fails with a CastFailure
// naming the column, the row and, when tryAddLine is set, the line.
func (r *BaseReader) Flush(bufferIdx int, tryAddLine bool) (bool, error) {
	chunk := &r.parseChunk
	defer chunk.reset()

	size := chunk.Size()
	if size == 0 {
		return false, nil
	}
	if r.projection == nil {
		r.InitializeProjection()
	}

	cols := make([]arrow.Array, len(r.projection))
	release := func() {
		for _, c := range cols {
			if c != nil {
				c.Release()
			}
		}
	}

	var keep []bool
	for i, col := range r.projection {
		t := r.returnTypes[col]
		if t == types.Varchar {
			if err := r.VerifyUTF8(col); err != nil {
				release()
				return false, err
			}
		}

		values, valid := chunk.Column(col)
		if arr, ok := r.TryCastVector(values, valid, size, t); ok {
			cols[i] = arr
			continue
		}

		r.metrics.IncCastFallback(t.String())
		for row := 0; row < size; row++ {
			if !valid[row] || r.TryCastValue(values[row], t) {
				continue
			}
			if !r.cfg.Errors.IgnoreErrors {
				release()
				return false, r.castError(col, row, bufferIdx, tryAddLine)
			}
			if keep == nil {
				keep = make([]bool, size)
				for k := range keep {
					keep[k] = true
				}
			}
			if keep[row] {
				keep[row] = false
				line, estimated := chunk.Line(row)
				r.metrics.RejectRow("cast")
				r.logger.Warn("skipping row that failed to cast",
					zap.String("column", r.columnName(col)),
					zap.String("type", t.String()),
					zap.String("line", r.GetLineNumberStr(line, estimated, bufferIdx)))
			}
		}
	}

	rows := size
	if keep != nil {
		release()
		clear(cols)
		rows = 0
		for _, k := range keep {
			if k {
				rows++
			}
		}
		for i, col := range r.projection {
			values, valid := chunk.Column(col)
			arr, err := r.castMasked(values, valid, keep, r.returnTypes[col])
			if err != nil {
				release()
				return false, err
			}
			cols[i] = arr
		}
	}
	defer release()

	if rows == 0 {
		return false, nil
	}

	rec := array.NewRecord(r.Schema(), cols, int64(rows))
	r.queue.Push(rec)
	r.metrics.AddRows(rows)
	r.metrics.IncBatches()
	r.metrics.SetQueueDepth(r.queue.Len())
	return true, nil
}

func (r *BaseReader) castError(col, row, bufferIdx int, tryAddLine bool) *errors.Error {
	chunk := &r.parseChunk
	value, _ := chunk.Value(col, row)
	ordinal := chunk.ordinals[row]
	msg := fmt.Sprintf("could not convert string %q to '%s' in column %q",
		value, r.returnTypes[col], r.columnName(col))
	if bufferIdx == 0 {
		msg += fmt.Sprintf(" (row %d)", ordinal)
	}

	var err *errors.Error
	if tryAddLine {
		line, estimated := chunk.Line(row)
		err = r.newLineError(errors.ErrorTypeCastFailure, msg, line, estimated, bufferIdx)
	} else {
		err = errors.Newf(errors.ErrorTypeCastFailure, "error in file %q: %s", r.fileName, msg).
			WithDetail(errors.DetailFile, r.fileName).
			WithDetail(errors.DetailBufferIndex, bufferIdx)
	}
	return withRow(err.WithDetail(errors.DetailColumn, r.columnName(col)), ordinal, bufferIdx)
}
