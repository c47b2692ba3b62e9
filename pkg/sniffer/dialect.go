package sniffer

import (
	"context"
	"sort"

	"github.com/rizalgowandy/duckdb/pkg/config"
	"github.com/rizalgowandy/duckdb/pkg/csvreader"
	"github.com/rizalgowandy/duckdb/pkg/errors"
	"go.uber.org/zap"
)

var (
	defaultDelimiters = []byte{',', '|', ';', '\t'}
	defaultQuotes     = []byte{'"', '\'', 0}
)

// dialectCandidates enumerates the dialects to try, in tie-break order.
// Configured characters are fixed; the rest are enumerated.
func dialectCandidates(cfg *config.CSVConfig) []csvreader.Dialect {
	base := csvreader.DialectFromConfig(cfg)

	delimiters := defaultDelimiters
	if cfg.Dialect.Delimiter != "" {
		delimiters = []byte{base.Delimiter}
	}
	quotes := defaultQuotes
	if cfg.Dialect.Quote != nil {
		quotes = []byte{base.Quote}
	}

	var out []csvreader.Dialect
	for _, delim := range delimiters {
		for _, quote := range quotes {
			if quote == delim {
				continue
			}
			escapes := []byte{0}
			switch {
			case cfg.Dialect.Escape != nil:
				escapes = []byte{base.Escape}
			case quote != 0:
				escapes = []byte{0, '\\'}
			}
			for _, escape := range escapes {
				out = append(out, csvreader.Dialect{
					Delimiter: delim,
					Quote:     quote,
					Escape:    escape,
					NewLine:   base.NewLine,
				})
			}
		}
	}
	return out
}

// candidate is a dialect together with what it produced on the sample.
type candidate struct {
	dialect    csvreader.Dialect
	order      int
	columns    int // modal field count
	consistent int // rows with the modal field count
	rows       int // rows tokenized
}

// rfcDistance counts departures from comma, double quote and no custom
// escape.
func (c candidate) rfcDistance() int {
	d := 0
	if c.dialect.Delimiter != ',' {
		d++
	}
	if c.dialect.Quote != '"' {
		d++
	}
	if c.dialect.CustomEscape() {
		d++
	}
	return d
}

func (c candidate) specialChars() int {
	n := 0
	if c.dialect.Quote != 0 {
		n++
	}
	if c.dialect.Escape != 0 {
		n++
	}
	return n
}

// better orders candidates: highest share of rows with the modal field
// count, then more columns, then closest to RFC-4180, then fewest special
// characters, then enumeration order. Raw row counts are not compared: a
// wrong delimiter splits quoted multi-line fields into extra rows.
func (c candidate) better(o candidate) bool {
	if l, r := c.consistent*o.rows, o.consistent*c.rows; l != r {
		return l > r
	}
	if c.columns != o.columns {
		return c.columns > o.columns
	}
	if c.rfcDistance() != o.rfcDistance() {
		return c.rfcDistance() < o.rfcDistance()
	}
	if c.specialChars() != o.specialChars() {
		return c.specialChars() < o.specialChars()
	}
	return c.order < o.order
}

// modalCount returns the most frequent value of counts and its frequency.
// Ties go to the larger count.
func modalCount(counts []int) (value, freq int) {
	freqs := make(map[int]int, 4)
	for _, c := range counts {
		freqs[c]++
	}
	for v, f := range freqs {
		if f > freq || (f == freq && v > value) {
			value, freq = v, f
		}
	}
	return value, freq
}

// rankDialects tokenizes the first sample under every candidate and returns
// the viable ones, best first.
func (s *Sniffer) rankDialects(ctx context.Context, r *csvreader.BufferedReader) ([]candidate, error) {
	var ranked []candidate
	for i, d := range dialectCandidates(r.Config()) {
		if err := r.SetMode(csvreader.SniffingDialect); err != nil {
			return nil, err
		}
		r.SetDialect(d)
		if err := r.JumpToBeginning(); err != nil {
			return nil, err
		}
		r.ResetSniffCounts()

		if err := r.ParseCSV(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Debug("dialect candidate rejected",
				zap.Stringer("dialect", d),
				zap.Error(err))
			continue
		}

		counts := r.SniffedColumnCounts()
		if len(counts) == 0 {
			continue
		}
		columns, consistent := modalCount(counts)
		ranked = append(ranked, candidate{
			dialect:    r.Dialect(),
			order:      i,
			columns:    columns,
			consistent: consistent,
			rows:       len(counts),
		})
	}

	if len(ranked) == 0 {
		return nil, errors.Newf(errors.ErrorTypeDialectAmbiguous,
			"could not detect a dialect for %q within %d rows; set delimiter, quote and escape explicitly",
			r.GetFileName(), r.Config().Sniffing.SampleSize).
			WithDetail(errors.DetailFile, r.GetFileName())
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].better(ranked[j])
	})
	return ranked, nil
}
