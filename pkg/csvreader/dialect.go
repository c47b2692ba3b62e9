package csvreader

import (
	"fmt"
	"strings"

	"github.com/rizalgowandy/duckdb/pkg/config"
)

// NewLine is the row terminator convention of a file.
type NewLine uint8

const (
	// NewLineUnknown is detected from the first newline sequence
	NewLineUnknown NewLine = iota
	// NewLineLF is a plain line feed
	NewLineLF
	// NewLineCRLF is a carriage return followed by a line feed
	NewLineCRLF
	// NewLineCR is a lone carriage return
	NewLineCR
)

func (n NewLine) String() string {
	switch n {
	case NewLineLF:
		return "lf"
	case NewLineCRLF:
		return "crlf"
	case NewLineCR:
		return "cr"
	default:
		return ""
	}
}

// ParseNewLine resolves a configured newline name.
func ParseNewLine(s string) NewLine {
	switch strings.ToLower(s) {
	case "lf", "\n":
		return NewLineLF
	case "crlf", "\r\n":
		return NewLineCRLF
	case "cr", "\r":
		return NewLineCR
	default:
		return NewLineUnknown
	}
}

// Dialect describes how a byte stream is segmented into rows and fields.
// A zero Quote or Escape byte means the character is not used. With no
// escape, a doubled quote inside a quoted field stands for one quote.
type Dialect struct {
	Delimiter byte
	Quote     byte
	Escape    byte
	NewLine   NewLine
}

// DefaultDialect is the RFC-4180 dialect.
var DefaultDialect = Dialect{Delimiter: ',', Quote: '"'}

// DialectFromConfig fills the configured characters into the RFC-4180
// defaults.
func DialectFromConfig(cfg *config.CSVConfig) Dialect {
	d := DefaultDialect
	if cfg.Dialect.Delimiter != "" {
		d.Delimiter = cfg.Dialect.Delimiter[0]
	}
	if cfg.Dialect.Quote != nil {
		d.Quote = firstByte(*cfg.Dialect.Quote)
	}
	if cfg.Dialect.Escape != nil {
		d.Escape = firstByte(*cfg.Dialect.Escape)
	}
	d.NewLine = ParseNewLine(cfg.Dialect.NewLine)
	return d
}

func firstByte(s string) byte {
	if s == "" {
		return 0
	}
	return s[0]
}

// DoubledQuotes reports whether a doubled quote escapes a quote.
func (d Dialect) DoubledQuotes() bool {
	return d.Escape == 0 || d.Escape == d.Quote
}

// CustomEscape reports whether an escape character other than the quote is used.
func (d Dialect) CustomEscape() bool {
	return d.Escape != 0 && d.Escape != d.Quote
}

func (d Dialect) String() string {
	return fmt.Sprintf("delimiter=%s quote=%s escape=%s new_line=%s",
		printable(d.Delimiter), printable(d.Quote), printable(d.Escape), d.NewLine)
}

func printable(b byte) string {
	switch b {
	case 0:
		return "(none)"
	case '\t':
		return `\t`
	default:
		return fmt.Sprintf("%q", string(b))
	}
}
