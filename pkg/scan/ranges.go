package scan

import (
	"bufio"
	"context"
	"io"

	"github.com/rizalgowandy/duckdb/pkg/csvreader"
	"github.com/rizalgowandy/duckdb/pkg/filehandle"
)

// minRangeBytes is the smallest byte range handed to one reader.
var minRangeBytes int64 = 4 << 20

// byteRange is a row-aligned slice of the file read by one reader.
type byteRange struct {
	start, end  int64
	linesBefore int64 // row terminators before start
}

// splitRanges cuts the file behind h into at most parts row-aligned ranges
// of at least minRangeBytes. Boundaries are placed after a row terminator
// that is outside quotes, so a quoted newline never splits a row. The same
// pass counts the terminators before each boundary.
func splitRanges(ctx context.Context, h filehandle.Handle, d csvreader.Dialect, parts int) ([]byteRange, error) {
	size := h.FileSize()
	step := size / int64(max(parts, 1))
	if step < minRangeBytes {
		step = minRangeBytes
	}
	if parts <= 1 || size <= step {
		return []byteRange{{start: 0, end: size}}, nil
	}
	if err := h.Seek(0); err != nil {
		return nil, err
	}

	ranges := []byteRange{{start: 0}}
	target := step
	// Offsets are raw file positions; Seek(0) may already have skipped a
	// byte order mark.
	pos := h.Tell()
	var (
		lines        int64
		inQuotes     bool
		closed       bool // previous byte closed a quoted value
		escaped      bool
		valueStart   = true
		pendingCR    bool
		customEscape = d.CustomEscape()
	)
	boundary := func(at int64) {
		if at < target || at >= size {
			return
		}
		ranges = append(ranges, byteRange{start: at, linesBefore: lines})
		for target <= at {
			target += step
		}
	}

	r := bufio.NewReaderSize(h, 1<<16)
	for {
		if pos&0xffff == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		c, err := r.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		pos++

		if pendingCR {
			pendingCR = false
			if c == '\n' {
				lines++
				valueStart = true
				boundary(pos)
				continue
			}
			if d.NewLine == csvreader.NewLineCRLF {
				// A lone carriage return is data under CRLF.
				valueStart = false
			} else {
				lines++
				valueStart = true
				boundary(pos - 1)
			}
		}

		switch {
		case escaped:
			escaped = false
			continue
		case inQuotes:
			if customEscape && c == d.Escape {
				escaped = true
			} else if c == d.Quote {
				inQuotes = false
				closed = true
			}
			continue
		case closed:
			closed = false
			if c == d.Quote && d.DoubledQuotes() {
				inQuotes = true
				continue
			}
		}

		switch {
		case d.Quote != 0 && c == d.Quote && valueStart:
			inQuotes = true
			valueStart = false
		case c == d.Delimiter:
			valueStart = true
		case c == '\n' && (d.NewLine == csvreader.NewLineLF || d.NewLine == csvreader.NewLineUnknown):
			lines++
			valueStart = true
			boundary(pos)
		case c == '\r' && d.NewLine == csvreader.NewLineCR:
			lines++
			valueStart = true
			boundary(pos)
		case c == '\r' && (d.NewLine == csvreader.NewLineCRLF || d.NewLine == csvreader.NewLineUnknown):
			pendingCR = true
		default:
			valueStart = false
		}
	}

	for i := range ranges {
		if i+1 < len(ranges) {
			ranges[i].end = ranges[i+1].start
		} else {
			ranges[i].end = size
		}
	}
	return ranges, nil
}
