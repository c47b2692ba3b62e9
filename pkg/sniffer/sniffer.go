// Package sniffer infers the dialect, header and column types of a CSV file
// by driving a csvreader.BufferedReader through its sniffing modes, and
// leaves the reader positioned for parsing.
//
// Example usage:
//
//	r, _ := csvreader.NewBufferedReader(cfg, handle)
//	res, err := sniffer.New(sniffer.WithLogger(log)).Sniff(ctx, r)
//	if err != nil {
//	    return err
//	}
//	rec, err := r.Next(ctx)
package sniffer

import (
	"context"
	"fmt"

	"github.com/rizalgowandy/duckdb/pkg/config"
	"github.com/rizalgowandy/duckdb/pkg/csvreader"
	"github.com/rizalgowandy/duckdb/pkg/errors"
	"github.com/rizalgowandy/duckdb/pkg/logger"
	"github.com/rizalgowandy/duckdb/pkg/metrics"
	"github.com/rizalgowandy/duckdb/pkg/observability"
	"github.com/rizalgowandy/duckdb/pkg/types"
	"go.uber.org/zap"
)

// Result is what sniffing decided about a file.
type Result struct {
	Dialect   csvreader.Dialect `json:"dialect"`
	Names     []string          `json:"names"`
	Types     []types.Type      `json:"types"`
	HasHeader bool              `json:"has_header"`
	Formats   types.Formats     `json:"formats"`
}

func (r *Result) clone() *Result {
	out := *r
	out.Names = append([]string(nil), r.Names...)
	out.Types = append([]types.Type(nil), r.Types...)
	return &out
}

// Sniffer runs dialect, type and header detection.
type Sniffer struct {
	logger  *zap.Logger
	metrics *metrics.Collector
	cache   *Cache
}

// Option configures a Sniffer.
type Option func(*Sniffer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Sniffer) { s.logger = l }
}

// WithMetrics records sniff durations on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Sniffer) { s.metrics = m }
}

// WithCache reuses results for files with identical leading bytes and
// options.
func WithCache(c *Cache) Option {
	return func(s *Sniffer) { s.cache = c }
}

// New creates a Sniffer.
func New(opts ...Option) *Sniffer {
	s := &Sniffer{}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.OrDefault(s.logger)
	return s
}

// Sniff detects the dialect, header and column types of the stream behind
// r, which must not have left SniffingDialect mode. On success r is in
// Parsing mode, positioned after the header, with its schema set.
func (s *Sniffer) Sniff(ctx context.Context, r *csvreader.BufferedReader) (*Result, error) {
	if r.Mode() != csvreader.SniffingDialect {
		return nil, errors.Newf(errors.ErrorTypeInternal, "cannot sniff a reader in %s mode", r.Mode())
	}

	var res *Result
	err := observability.Trace(ctx, "sniff", func(ctx context.Context, span *observability.Span) error {
		span.SetAttribute("file", r.GetFileName())
		timer := metrics.NewTimer()
		defer func() { s.metrics.ObserveSniff(timer.Stop()) }()

		var key uint64
		if s.cache != nil {
			var err error
			if key, err = fingerprint(r); err != nil {
				return err
			}
			if cached, ok := s.cache.get(key); ok {
				span.SetAttribute("cache_hit", true)
				res = cached
				return s.apply(ctx, r, res)
			}
		}

		var err error
		if res, err = s.sniff(ctx, r); err != nil {
			return err
		}
		if err := s.apply(ctx, r, res); err != nil {
			return err
		}
		s.cache.put(key, res)

		span.SetAttribute("dialect", res.Dialect.String())
		span.SetAttribute("columns", len(res.Types))
		span.SetAttribute("has_header", res.HasHeader)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("sniffed csv file",
		zap.String("file", r.GetFileName()),
		zap.Stringer("dialect", res.Dialect),
		zap.Bool("header", res.HasHeader),
		zap.Strings("names", res.Names),
		zap.Stringers("types", res.Types))
	return res, nil
}

func (s *Sniffer) sniff(ctx context.Context, r *csvreader.BufferedReader) (*Result, error) {
	cfg := r.Config()
	if res, ok := declaredResult(cfg); ok {
		return res, nil
	}

	candidates, err := cfg.TypeCandidates()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid type candidates")
	}
	ranked, err := s.rankDialects(ctx, r)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, c := range ranked {
		res, err := s.sniffTypes(ctx, r, c, candidates)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.IsType(err, errors.ErrorTypeInternal) {
			return nil, err
		}
		s.logger.Debug("dialect rejected by type sniffing",
			zap.Stringer("dialect", c.dialect),
			zap.Error(err))
		lastErr = err
	}
	return nil, lastErr
}

// declaredResult returns the result implied by the configuration alone,
// when dialect, header and every column type are fixed.
func declaredResult(cfg *config.CSVConfig) (*Result, bool) {
	if !cfg.DialectSpecified() || len(cfg.Columns) == 0 || cfg.Dialect.Header == config.HeaderAuto || cfg.Dialect.Header == "" {
		return nil, false
	}
	declared := cfg.DeclaredTypes()
	for _, t := range declared {
		if t == types.Null {
			return nil, false
		}
	}
	return &Result{
		Dialect:   csvreader.DialectFromConfig(cfg),
		Types:     declared,
		HasHeader: cfg.Dialect.Header == config.HeaderPresent,
		Formats:   cfg.Formats(),
	}, true
}

// sniffTypes samples the file under candidate c and runs type and header
// detection on the samples.
func (s *Sniffer) sniffTypes(ctx context.Context, r *csvreader.BufferedReader, c candidate, candidates []types.Type) (*Result, error) {
	cfg := r.Config()
	ncols := c.columns
	if len(cfg.Columns) > 0 && len(cfg.Columns) != ncols {
		return nil, errors.Newf(errors.ErrorTypeSchemaMismatch,
			"%d columns were declared but the file has %d under %s", len(cfg.Columns), ncols, c.dialect).
			WithDetail(errors.DetailFile, r.GetFileName())
	}

	if err := r.SetMode(csvreader.SniffingDialect); err != nil {
		return nil, err
	}
	r.SetDialect(c.dialect)
	placeholder := make([]types.Type, ncols)
	for i := range placeholder {
		placeholder[i] = types.Varchar
	}
	if err := r.SetSchema(columnNames(nil, nil, ncols), placeholder); err != nil {
		return nil, err
	}
	if err := r.SetMode(csvreader.SniffingDataTypes); err != nil {
		return nil, err
	}
	if err := r.JumpToBeginning(); err != nil {
		return nil, err
	}

	det := newTypeDetector(candidates, cfg.DeclaredTypes(), ncols, cfg.Formats())
	var first *firstRow
	jumping := false

	for sample := 0; sample < cfg.Sniffing.SampleChunks; sample++ {
		if sample == 1 {
			jumping = canJump(r)
		}
		if sample > 0 {
			if jumping {
				offset := int64(sample) * r.Handle().FileSize() / int64(cfg.Sniffing.SampleChunks)
				if err := r.JumpToSample(offset); err != nil {
					return nil, err
				}
			} else {
				if r.EndOfFileReached() {
					break
				}
				r.InitParseChunk(ncols)
			}
		}
		r.BeginSample()
		r.ResetSniffCounts()

		if err := r.ParseCSV(ctx); err != nil {
			if sample > 0 && jumping && ctx.Err() == nil {
				// a jump can land inside a quoted value
				s.logger.Debug("abandoning jumped samples", zap.Int("sample", sample), zap.Error(err))
				break
			}
			return nil, err
		}

		counts := r.SniffedColumnCounts()
		if len(counts) == 0 {
			continue
		}
		if modal, _ := modalCount(counts); modal != ncols {
			return nil, errors.Newf(errors.ErrorTypeDialectAmbiguous,
				"sample %d of %q has %d columns per row where the first sample has %d", sample, r.GetFileName(), modal, ncols).
				WithDetail(errors.DetailFile, r.GetFileName())
		}

		chunk := r.ParseChunk()
		start := 0
		if sample == 0 && cfg.Dialect.Header != config.HeaderAbsent && counts[0] == ncols && chunk.Size() > 0 {
			first = &firstRow{values: make([]string, ncols), valid: make([]bool, ncols)}
			for col := 0; col < ncols; col++ {
				first.values[col], first.valid[col] = chunk.Value(col, 0)
			}
			start = 1
		}
		for col := 0; col < ncols; col++ {
			values, valid := chunk.Column(col)
			for row := start; row < chunk.Size(); row++ {
				if valid[row] {
					det.observe(col, values[row])
				}
			}
		}
	}

	hasHeader := detectHeader(cfg.Dialect.Header, first, det)
	if !hasHeader && first != nil {
		for col, value := range first.values {
			if first.valid[col] {
				det.observe(col, value)
			}
		}
	}
	detected, formats := det.result()
	return &Result{
		Dialect:   r.Dialect(),
		Types:     detected,
		HasHeader: hasHeader,
		Formats:   formats,
	}, nil
}

// canJump reports whether the remaining samples should be drawn from
// evenly spaced offsets rather than read sequentially.
func canJump(r *csvreader.BufferedReader) bool {
	cfg := r.Config()
	avg := r.BytesPerLineAvg()
	size := r.Handle().FileSize()
	if !cfg.Sniffing.JumpingSamples || !r.CanJump() || avg <= 0 || size <= 0 {
		return false
	}
	return float64(size) > avg*float64(cfg.Sniffing.SampleSize)*float64(cfg.Sniffing.SampleChunks)
}

// apply configures r with res, consumes the header row and switches r to
// Parsing mode. Column names are derived from the header here.
func (s *Sniffer) apply(ctx context.Context, r *csvreader.BufferedReader, res *Result) error {
	cfg := r.Config()
	ncols := len(res.Types)

	r.SetDialect(res.Dialect)
	if res.Formats.Date != "" {
		r.SetDateFormat(types.Date, res.Formats.Date)
	}
	if res.Formats.Timestamp != "" {
		r.SetDateFormat(types.Timestamp, res.Formats.Timestamp)
	}
	if err := r.JumpToBeginning(); err != nil {
		return err
	}

	names := columnNames(nil, cfg.Columns, ncols)
	if err := r.SetSchema(names, res.Types); err != nil {
		return err
	}
	if res.HasHeader {
		if err := r.SetMode(csvreader.ParsingHeader); err != nil {
			return err
		}
		if err := r.ParseCSV(ctx); err != nil {
			return fmt.Errorf("reading header: %w", err)
		}
		names = columnNames(r.HeaderFields(), cfg.Columns, ncols)
		if err := r.SetSchema(names, res.Types); err != nil {
			return err
		}
	}
	if err := r.SetMode(csvreader.Parsing); err != nil {
		return err
	}
	res.Names = names
	return nil
}
