package csvreader

import (
	"fmt"

	"github.com/rizalgowandy/duckdb/pkg/errors"
)

// ParserMode governs whether tokenized rows are committed to output batches
// or only used to refine dialect and type guesses.
type ParserMode uint8

const (
	// SniffingDialect counts fields per row under a candidate dialect
	SniffingDialect ParserMode = iota
	// SniffingDataTypes accumulates raw rows for type inference
	SniffingDataTypes
	// ParsingHeader captures the first row as column names
	ParsingHeader
	// Parsing casts and flushes every row
	Parsing
)

func (m ParserMode) String() string {
	switch m {
	case SniffingDialect:
		return "sniffing_dialect"
	case SniffingDataTypes:
		return "sniffing_datatypes"
	case ParsingHeader:
		return "parsing_header"
	case Parsing:
		return "parsing"
	default:
		return fmt.Sprintf("ParserMode(%d)", uint8(m))
	}
}

// transitions lists the modes reachable from each mode. Stages may be
// skipped when the configuration already fixes what they would infer, and
// a failed type sniff may return to dialect sniffing. Parsing is terminal.
var transitions = map[ParserMode][]ParserMode{
	SniffingDialect:   {SniffingDialect, SniffingDataTypes, ParsingHeader, Parsing},
	SniffingDataTypes: {SniffingDataTypes, SniffingDialect, ParsingHeader, Parsing},
	ParsingHeader:     {Parsing},
	Parsing:           nil,
}

// Transition validates a mode change and returns the new mode.
func Transition(from, to ParserMode) (ParserMode, error) {
	for _, next := range transitions[from] {
		if next == to {
			return to, nil
		}
	}
	return from, errors.Newf(errors.ErrorTypeInternal, "invalid parser mode transition %s -> %s", from, to)
}
