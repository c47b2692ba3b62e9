package csvreader

import (
	"fmt"
	"unicode/utf8"

	"github.com/rizalgowandy/duckdb/pkg/errors"
)

// LineErrorFunc translates a line number local to the byte range identified
// by bufferIdx into the line number reported to the user.
type LineErrorFunc func(line int64, bufferIdx int) int64

// identityLineError is the default for readers that own the whole file.
func identityLineError(line int64, _ int) int64 {
	return line
}

// GetLineError applies the injected line translation.
func (r *BaseReader) GetLineError(line int64, bufferIdx int) int64 {
	return r.lineErrFn(line, bufferIdx)
}

// GetLineNumberStr renders a line number for error messages.
func (r *BaseReader) GetLineNumberStr(line int64, estimated bool, bufferIdx int) string {
	rendered := fmt.Sprintf("%d", r.GetLineError(line, bufferIdx))
	if estimated {
		rendered += " (estimated)"
	}
	return rendered
}

// newLineError builds a reader error positioned at line.
func (r *BaseReader) newLineError(kind errors.ErrorType, msg string, line int64, estimated bool, bufferIdx int) *errors.Error {
	return errors.Newf(kind, "error in file %q on line %s: %s",
		r.fileName, r.GetLineNumberStr(line, estimated, bufferIdx), msg).
		WithDetail(errors.DetailFile, r.fileName).
		WithDetail(errors.DetailLine, r.GetLineError(line, bufferIdx)).
		WithDetail(errors.DetailLineEstimated, estimated).
		WithDetail(errors.DetailBufferIndex, bufferIdx)
}

// VerifyUTF8 validates every committed value of a text column. The scan
// carries no row context; a violation is located by VerifyUTF8At.
func (r *BaseReader) VerifyUTF8(col int) error {
	values, valid := r.parseChunk.Column(col)
	for row, v := range values {
		if valid[row] && !utf8.ValidString(v) {
			return r.VerifyUTF8At(col, row, &r.parseChunk, 0)
		}
	}
	return nil
}

// VerifyUTF8At validates one value of chunk and reports the line and byte
// offset of the first invalid sequence. rowOffset is added to the row
// ordinal for chunks that were already partially consumed.
func (r *BaseReader) VerifyUTF8At(col, row int, chunk *ParseChunk, rowOffset int) error {
	v, valid := chunk.Value(col, row)
	if !valid || utf8.ValidString(v) {
		return nil
	}

	offset := 0
	for offset < len(v) {
		rn, size := utf8.DecodeRuneInString(v[offset:])
		if rn == utf8.RuneError && size <= 1 {
			break
		}
		offset += size
	}

	line, estimated := chunk.Line(row)
	msg := fmt.Sprintf("invalid unicode (byte sequence mismatch) detected in column %q at byte offset %d",
		r.columnName(col), offset)
	err := r.newLineError(errors.ErrorTypeMalformedEncoding, msg, line, estimated, r.bufferIdx).
		WithDetail(errors.DetailColumn, r.columnName(col))
	return withRow(err, chunk.ordinals[row]+int64(rowOffset), r.bufferIdx)
}

// withRow attaches the row ordinal. Ordinals count from the start of the
// byte range, so they are only meaningful for the first one.
func withRow(err *errors.Error, ordinal int64, bufferIdx int) *errors.Error {
	if bufferIdx != 0 {
		return err
	}
	return err.WithDetail(errors.DetailRow, ordinal)
}

func (r *BaseReader) columnName(col int) string {
	if col < len(r.names) && r.names[col] != "" {
		return r.names[col]
	}
	return fmt.Sprintf("column%d", col)
}
