package csvreader

import (
	"context"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/rizalgowandy/duckdb/pkg/config"
	"github.com/rizalgowandy/duckdb/pkg/errors"
	"github.com/rizalgowandy/duckdb/pkg/filehandle"
	"github.com/rizalgowandy/duckdb/pkg/pool"
	"go.uber.org/zap"
)

type tokenState uint8

const (
	stateValueStart tokenState = iota
	stateNormal
	stateInQuotes
	stateEscaping
	stateUnquote
	stateCarriageReturn
	stateSkipRow
	stateCRLF // carriage return seen under CRLF, row end pending
)

// BufferedReader tokenizes a file handle through a refillable buffer. A
// value split across two reads is kept by compacting the buffer from the
// start of that value before refilling.
type BufferedReader struct {
	*BaseReader

	handle filehandle.Handle

	buffer       []byte
	position     int   // Next byte to tokenize
	end          int   // End of valid bytes
	start        int   // Start of the current value's content
	bufferOffset int64 // Stream offset of buffer[0]
	rowStart     int64 // Stream offset where the current row began

	state            tokenState
	crState          tokenState // state before a pending CRLF
	skipCR           bool
	column           int
	escapes          []int
	endOfFileReached bool
}

// NewBufferedReader creates a reader over h in SniffingDialect mode.
func NewBufferedReader(cfg *config.CSVConfig, h filehandle.Handle, opts ...Option) (*BufferedReader, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "config is required")
	}
	if h == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "file handle is required")
	}
	size := cfg.Performance.BufferSize
	if size <= 0 {
		size = config.DefaultBufferSize
	}

	br := &BufferedReader{
		BaseReader:   newBaseReader(cfg, h.Path(), opts...),
		handle:       h,
		buffer:       pool.Buffers.Get(size),
		bufferOffset: h.Tell(),
		rowStart:     h.Tell(),
	}
	if declared := cfg.DeclaredTypes(); len(declared) > 0 {
		names := make([]string, len(cfg.Columns))
		for i, col := range cfg.Columns {
			names[i] = col.Name
		}
		if err := br.SetSchema(names, declared); err != nil {
			return nil, err
		}
	}
	return br, nil
}

// Handle returns the underlying file handle.
func (br *BufferedReader) Handle() filehandle.Handle { return br.handle }

// EndOfFileReached reports whether the stream has been fully tokenized.
func (br *BufferedReader) EndOfFileReached() bool { return br.endOfFileReached }

// CanJump reports whether JumpToSample is possible.
func (br *BufferedReader) CanJump() bool { return br.handle.CanSeek() }

// Close releases queued batches, the read buffer and the file handle.
func (br *BufferedReader) Close() error {
	br.queue.Release()
	if br.buffer != nil {
		pool.Buffers.Put(br.buffer)
		br.buffer = nil
	}
	return br.handle.Close()
}

func (br *BufferedReader) resetTokenizer(offset int64) {
	br.position, br.end, br.start = 0, 0, 0
	br.bufferOffset = offset
	br.rowStart = offset
	br.state = stateValueStart
	br.skipCR = false
	br.column = 0
	br.escapes = br.escapes[:0]
	br.endOfFileReached = false
	br.resetRow(&br.column)
}

// JumpToBeginning rewinds to the start of the stream. Line counting is
// exact again afterwards.
func (br *BufferedReader) JumpToBeginning() error {
	if err := br.handle.Reset(); err != nil {
		return err
	}
	br.resetTokenizer(br.handle.Tell())
	br.linenr = 0
	br.linenrEstimated = false
	br.rowsRead = 0
	br.parseChunk.reset()
	return nil
}

// JumpToSample moves to offset, skipping the partial row found there. The
// line counter becomes an estimate derived from the average row size.
func (br *BufferedReader) JumpToSample(offset int64) error {
	if offset <= 0 {
		return br.JumpToBeginning()
	}
	if !br.CanJump() {
		return errors.New(errors.ErrorTypeValidation, "cannot jump in a compressed or transcoded stream").
			WithDetail(errors.DetailFile, br.fileName)
	}
	if err := br.handle.Seek(offset); err != nil {
		return err
	}
	br.resetTokenizer(offset)
	br.state = stateSkipRow
	br.parseChunk.reset()

	if br.bytesPerLineAvg > 0 {
		br.linenr = int64(float64(offset) / br.bytesPerLineAvg)
	}
	br.linenrEstimated = true
	br.logger.Debug("jumped to sample",
		zap.Int64("offset", offset),
		zap.Int64("estimated_line", br.linenr))
	return nil
}

// ParseCSV tokenizes rows until the parse chunk (or sniffing sample) is
// full or the stream ends. The context is checked at every buffer refill.
func (br *BufferedReader) ParseCSV(ctx context.Context) error {
	for {
		if br.position >= br.end {
			if br.endOfFileReached {
				return nil
			}
			more, err := br.refill(ctx)
			if err != nil {
				return err
			}
			if !more {
				br.endOfFileReached = true
				_, err := br.finishStream()
				return err
			}
		}
		full, err := br.tokenize()
		if err != nil || full {
			return err
		}
	}
}

// refill compacts the buffer from the start of the current value and reads
// more bytes. It reports false at the end of the stream.
func (br *BufferedReader) refill(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if br.state == stateSkipRow {
		br.start = br.position
	}
	if br.start > 0 {
		n := copy(br.buffer, br.buffer[br.start:br.end])
		br.bufferOffset += int64(br.start)
		br.position -= br.start
		br.end = n
		br.start = 0
	}
	if br.end == len(br.buffer) {
		maxSize := br.cfg.Performance.MaxLineSize
		if len(br.buffer) >= maxSize {
			return false, br.newLineError(errors.ErrorTypeParse,
				"maximum line size exceeded; increase max_line_size",
				br.linenr+1, br.linenrEstimated, br.bufferIdx)
		}
		grown := pool.Buffers.Get(min(2*len(br.buffer), maxSize))
		copy(grown, br.buffer[:br.end])
		pool.Buffers.Put(br.buffer)
		br.buffer = grown
	}

	for {
		n, err := br.handle.Read(br.buffer[br.end:])
		br.end += n
		br.metrics.AddBytes(n)
		if n > 0 {
			return true, nil
		}
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}
	}
}

func (br *BufferedReader) isRowTerminator(c byte) bool {
	switch br.dialect.NewLine {
	case NewLineLF:
		return c == '\n'
	case NewLineCR, NewLineCRLF:
		return c == '\r'
	default:
		return c == '\n' || c == '\r'
	}
}

// terminateRow ends the row at the terminator c found at pos. Under CRLF a
// carriage return only ends the row when a line feed follows, so the
// decision is deferred to the next byte.
func (br *BufferedReader) terminateRow(pos int, c byte) (bool, error) {
	if c == '\r' && br.dialect.NewLine == NewLineCRLF {
		br.crState = br.state
		br.state = stateCRLF
		return false, nil
	}
	return br.endRow(pos, pos, c)
}

// strayCarriageReturn restores the state before a carriage return that
// turned out not to start a CRLF. The byte belongs to the current value.
func (br *BufferedReader) strayCarriageReturn() error {
	br.state = br.crState
	switch br.state {
	case stateUnquote:
		return br.newLineError(errors.ErrorTypeParse,
			"quote should be followed by end of value, end of row or another quote",
			br.linenr+1, br.linenrEstimated, br.bufferIdx)
	case stateValueStart:
		br.state = stateNormal
	}
	return nil
}

// tokenize consumes buffered bytes until a row fills the chunk or the
// buffer is exhausted.
func (br *BufferedReader) tokenize() (bool, error) {
	d := br.dialect
	for br.position < br.end {
		pos := br.position
		c := br.buffer[pos]
		br.position++

		switch br.state {
		case stateCarriageReturn:
			br.state = stateValueStart
			if c == '\n' {
				br.SetNewLineDelimiter(true, true)
				br.start = br.position
				br.rowStart++
				continue
			}
			br.SetNewLineDelimiter(true, false)
			br.position = pos
			d = br.dialect

		case stateSkipRow:
			if br.dialect.NewLine == NewLineCRLF {
				if c == '\n' && br.skipCR {
					br.startRow(pos, c)
				}
				br.skipCR = c == '\r'
			} else if br.isRowTerminator(c) {
				br.startRow(pos, c)
			}

		case stateCRLF:
			if c == '\n' {
				br.state = br.crState
				full, err := br.endRow(pos-1, pos, c)
				if err != nil || full {
					return full, err
				}
				continue
			}
			if err := br.strayCarriageReturn(); err != nil {
				return false, err
			}
			br.position = pos

		case stateValueStart:
			switch {
			case d.Quote != 0 && c == d.Quote:
				br.state = stateInQuotes
				br.start = br.position
			case c == d.Delimiter:
				br.AddValue(nil, &br.column, nil, false, br.bufferIdx)
				br.start = br.position
			case br.isRowTerminator(c):
				full, err := br.terminateRow(pos, c)
				if err != nil || full {
					return full, err
				}
			default:
				br.state = stateNormal
			}

		case stateNormal:
			switch {
			case c == d.Delimiter:
				br.AddValue(br.buffer[br.start:pos], &br.column, nil, false, br.bufferIdx)
				br.start = br.position
				br.state = stateValueStart
			case br.isRowTerminator(c):
				full, err := br.terminateRow(pos, c)
				if err != nil || full {
					return full, err
				}
			}

		case stateInQuotes:
			switch {
			case c == d.Quote:
				br.state = stateUnquote
			case d.CustomEscape() && c == d.Escape:
				br.escapes = append(br.escapes, pos-br.start)
				br.state = stateEscaping
			}

		case stateEscaping:
			if c != d.Quote && c != d.Escape {
				return false, br.newLineError(errors.ErrorTypeParse,
					"neither QUOTE nor ESCAPE is proceeded by ESCAPE",
					br.linenr+1, br.linenrEstimated, br.bufferIdx)
			}
			br.state = stateInQuotes

		case stateUnquote:
			switch {
			case c == d.Quote && d.DoubledQuotes():
				br.escapes = append(br.escapes, pos-1-br.start)
				br.state = stateInQuotes
			case c == d.Delimiter:
				br.AddValue(br.buffer[br.start:pos-1], &br.column, br.escapes, true, br.bufferIdx)
				br.escapes = br.escapes[:0]
				br.start = br.position
				br.state = stateValueStart
			case br.isRowTerminator(c):
				full, err := br.terminateRow(pos, c)
				if err != nil || full {
					return full, err
				}
			default:
				return false, br.newLineError(errors.ErrorTypeParse,
					"quote should be followed by end of value, end of row or another quote",
					br.linenr+1, br.linenrEstimated, br.bufferIdx)
			}
		}
	}
	return false, nil
}

// endRow closes the last value at valueEnd and the row at the terminator c
// found at last.
func (br *BufferedReader) endRow(valueEnd, last int, c byte) (bool, error) {
	br.closeValue(valueEnd)
	full, err := br.AddRow(&br.column, br.bufferIdx)
	br.observeRowBytes(br.bufferOffset + int64(last) + 1 - br.rowStart)
	br.startRow(last, c)
	return full, err
}

func (br *BufferedReader) closeValue(end int) {
	if br.state == stateUnquote {
		br.AddValue(br.buffer[br.start:end-1], &br.column, br.escapes, true, br.bufferIdx)
	} else {
		br.AddValue(br.buffer[br.start:end], &br.column, nil, false, br.bufferIdx)
	}
	br.escapes = br.escapes[:0]
}

// startRow positions the tokenizer after the terminator c at pos and fixes
// the newline convention on the first terminator seen.
func (br *BufferedReader) startRow(pos int, c byte) {
	br.start = pos + 1
	br.rowStart = br.bufferOffset + int64(pos) + 1
	br.state = stateValueStart
	if c == '\r' && br.dialect.NewLine != NewLineCR {
		br.state = stateCarriageReturn
		return
	}
	if c == '\n' {
		br.SetNewLineDelimiter(false, false)
	}
}

// finishStream closes the pending row at the end of the stream.
func (br *BufferedReader) finishStream() (bool, error) {
	if br.state == stateCRLF {
		if err := br.strayCarriageReturn(); err != nil {
			return false, err
		}
	}
	switch br.state {
	case stateInQuotes, stateEscaping:
		return false, br.newLineError(errors.ErrorTypePrematureEOF,
			"unterminated quoted field at end of file",
			br.linenr+1, br.linenrEstimated, br.bufferIdx)
	case stateCarriageReturn:
		br.SetNewLineDelimiter(true, false)
		return false, nil
	case stateSkipRow:
		return false, nil
	case stateValueStart:
		if br.column == 0 {
			return false, nil
		}
	}
	br.closeValue(br.end)
	full, err := br.AddRow(&br.column, br.bufferIdx)
	br.observeRowBytes(br.bufferOffset + int64(br.end) - br.rowStart)
	br.start = br.end
	br.rowStart = br.bufferOffset + int64(br.end)
	br.state = stateValueStart
	return full, err
}

// Next returns the next record batch, or io.EOF once the stream is
// exhausted. On cancellation the parse chunk is discarded. The caller owns
// the returned record and must release it.
func (br *BufferedReader) Next(ctx context.Context) (arrow.Record, error) {
	if br.mode != Parsing {
		return nil, errors.Newf(errors.ErrorTypeInternal, "reader is in %s mode", br.mode)
	}
	for {
		if rec := br.queue.Pop(); rec != nil {
			br.metrics.SetQueueDepth(br.queue.Len())
			return rec, nil
		}
		if br.endOfFileReached && br.parseChunk.Size() == 0 {
			return nil, io.EOF
		}
		if err := ctx.Err(); err != nil {
			br.parseChunk.reset()
			return nil, err
		}
		if err := br.ParseCSV(ctx); err != nil {
			br.parseChunk.reset()
			return nil, err
		}
		if _, err := br.Flush(br.bufferIdx, true); err != nil {
			return nil, err
		}
	}
}

// Result carries one batch, or the error that ended the stream, through
// Batches.
type Result struct {
	Record arrow.Record
	Err    error
}

// Batches produces record batches on a background goroutine over a channel
// bounded by queue_depth. The channel closes after the last batch or the
// first error; cancelling ctx stops production.
func (br *BufferedReader) Batches(ctx context.Context) <-chan Result {
	depth := br.cfg.Performance.QueueDepth
	if depth <= 0 {
		depth = 1
	}
	out := make(chan Result, depth)
	go func() {
		defer close(out)
		for {
			rec, err := br.Next(ctx)
			if err == io.EOF {
				return
			}
			select {
			case out <- Result{Record: rec, Err: err}:
			case <-ctx.Done():
				if rec != nil {
					rec.Release()
				}
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}
