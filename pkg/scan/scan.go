// Package scan reads a whole CSV file into Arrow record batches. A file is
// sniffed once; seekable files are then split into row-aligned byte ranges
// that are parsed concurrently, and batches are delivered in file order.
package scan

import (
	"context"
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"
	"github.com/rizalgowandy/duckdb/pkg/config"
	"github.com/rizalgowandy/duckdb/pkg/csvreader"
	"github.com/rizalgowandy/duckdb/pkg/errors"
	"github.com/rizalgowandy/duckdb/pkg/filehandle"
	"github.com/rizalgowandy/duckdb/pkg/logger"
	"github.com/rizalgowandy/duckdb/pkg/metrics"
	"github.com/rizalgowandy/duckdb/pkg/observability"
	"github.com/rizalgowandy/duckdb/pkg/sniffer"
	"github.com/rizalgowandy/duckdb/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Opener opens a fresh handle on the scanned file. Every byte range gets
// its own handle.
type Opener func(ctx context.Context) (filehandle.Handle, error)

// Sink receives the output of a scan. Begin is called once with the output
// schema before the first Write.
type Sink interface {
	Begin(schema *arrow.Schema) error
	Write(ctx context.Context, rec arrow.Record) error
}

// Stats summarizes a finished scan.
type Stats struct {
	ScanID   string          `json:"scan_id"`
	Rows     int64           `json:"rows"`
	Batches  int             `json:"batches"`
	Ranges   int             `json:"ranges"`
	Duration time.Duration   `json:"duration"`
	Sniff    *sniffer.Result `json:"sniff"`
}

// Scanner reads one configured file.
type Scanner struct {
	cfg     *config.CSVConfig
	logger  *zap.Logger
	metrics *metrics.Collector
	cache   *sniffer.Cache
	mem     memory.Allocator
	open    Opener
	columns []string
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

// WithMetrics sets the metrics collector shared by every reader.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Scanner) { s.metrics = m }
}

// WithSniffCache reuses sniff results across scans.
func WithSniffCache(c *sniffer.Cache) Option {
	return func(s *Scanner) { s.cache = c }
}

// WithAllocator sets the allocator for output batches.
func WithAllocator(mem memory.Allocator) Option {
	return func(s *Scanner) { s.mem = mem }
}

// WithOpener replaces how the file is opened.
func WithOpener(open Opener) Option {
	return func(s *Scanner) { s.open = open }
}

// WithColumns restricts the output to the named columns, in that order.
func WithColumns(names ...string) Option {
	return func(s *Scanner) { s.columns = names }
}

// New creates a Scanner for cfg.Path.
func New(cfg *config.CSVConfig, opts ...Option) (*Scanner, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid configuration")
	}

	s := &Scanner{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.OrDefault(s.logger)
	if s.open == nil {
		hopts, err := filehandle.OptionsFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		path := cfg.Path
		s.open = func(ctx context.Context) (filehandle.Handle, error) {
			return filehandle.Open(ctx, path, hopts)
		}
	}
	return s, nil
}

func (s *Scanner) newReader(h filehandle.Handle, opts ...csvreader.Option) (*csvreader.BufferedReader, error) {
	base := []csvreader.Option{
		csvreader.WithLogger(s.logger),
		csvreader.WithMetrics(s.metrics),
	}
	if s.mem != nil {
		base = append(base, csvreader.WithAllocator(s.mem))
	}
	r, err := csvreader.NewBufferedReader(s.cfg, h, append(base, opts...)...)
	if err != nil {
		_ = h.Close()
		return nil, err
	}
	return r, nil
}

func (s *Scanner) newSniffer() *sniffer.Sniffer {
	return sniffer.New(
		sniffer.WithLogger(s.logger),
		sniffer.WithMetrics(s.metrics),
		sniffer.WithCache(s.cache))
}

// Sniff detects the dialect, header and schema of the file without
// reading it further.
func (s *Scanner) Sniff(ctx context.Context) (*sniffer.Result, error) {
	h, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	r, err := s.newReader(h)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return s.newSniffer().Sniff(ctx, r)
}

// Scan calls fn with every batch in file order. The record is released
// when fn returns; fn must Retain it to keep it.
func (s *Scanner) Scan(ctx context.Context, fn func(rec arrow.Record) error) (*Stats, error) {
	return s.run(ctx, nil, fn)
}

// ScanTo writes every batch to sink in file order.
func (s *Scanner) ScanTo(ctx context.Context, sink Sink) (*Stats, error) {
	return s.run(ctx, sink.Begin, func(rec arrow.Record) error {
		return sink.Write(ctx, rec)
	})
}

func (s *Scanner) run(ctx context.Context, begin func(*arrow.Schema) error, fn func(arrow.Record) error) (*Stats, error) {
	timer := metrics.NewTimer()
	stats := &Stats{ScanID: uuid.NewString()}
	ctx = logger.ContextWithScan(ctx, stats.ScanID, s.cfg.Path)
	log := logger.FromContext(ctx, s.logger)

	err := observability.Trace(ctx, "scan", func(ctx context.Context, span *observability.Span) error {
		span.SetAttribute("scan_id", stats.ScanID)
		span.SetAttribute("file", s.cfg.Path)

		h, err := s.open(ctx)
		if err != nil {
			return err
		}
		r, err := s.newReader(h)
		if err != nil {
			return err
		}
		res, err := s.newSniffer().Sniff(ctx, r)
		if err != nil {
			_ = r.Close()
			return err
		}
		stats.Sniff = res

		projection, err := resolveColumns(res.Names, s.columns)
		if err != nil {
			_ = r.Close()
			return err
		}
		if projection != nil {
			if err := r.SetProjection(projection); err != nil {
				_ = r.Close()
				return err
			}
		}
		if begin != nil {
			if err := begin(r.Schema()); err != nil {
				_ = r.Close()
				return err
			}
		}

		if s.cfg.Performance.Parallel <= 1 || !r.CanJump() {
			defer r.Close()
			stats.Ranges = 1
			err = s.drain(ctx, r, fn, stats)
		} else {
			_ = r.Close()
			err = s.scanRanges(ctx, res, projection, fn, stats)
		}

		span.SetAttribute("rows", stats.Rows)
		span.SetAttribute("ranges", stats.Ranges)
		return err
	})
	stats.Duration = timer.Stop()
	if err != nil {
		log.Error("scan failed", zap.Error(err), zap.Int64("rows", stats.Rows))
		return stats, err
	}

	log.Info("scan completed",
		zap.Int64("rows", stats.Rows),
		zap.Int("batches", stats.Batches),
		zap.Int("ranges", stats.Ranges),
		zap.Duration("duration", stats.Duration))
	return stats, nil
}

// resolveColumns maps requested names to column indexes. No names means
// every column.
func resolveColumns(names, requested []string) ([]int, error) {
	if len(requested) == 0 {
		return nil, nil
	}
	index := make(map[string]int, len(names))
	for i, name := range names {
		index[name] = i
	}
	out := make([]int, len(requested))
	for i, name := range requested {
		col, ok := index[name]
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeValidation, "column %q not found; file has %v", name, names)
		}
		out[i] = col
	}
	return out, nil
}

func (s *Scanner) deliver(rec arrow.Record, fn func(arrow.Record) error, stats *Stats) error {
	defer rec.Release()
	stats.Rows += rec.NumRows()
	stats.Batches++
	return fn(rec)
}

func (s *Scanner) drain(ctx context.Context, r *csvreader.BufferedReader, fn func(arrow.Record) error, stats *Stats) error {
	for {
		rec, err := r.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.deliver(rec, fn, stats); err != nil {
			return err
		}
	}
}

// scanRanges parses every byte range on its own goroutine. Each range
// feeds a channel bounded by queue_depth; channels are consumed in range
// order so batches leave in file order.
func (s *Scanner) scanRanges(ctx context.Context, res *sniffer.Result, projection []int, fn func(arrow.Record) error, stats *Stats) error {
	h, err := s.open(ctx)
	if err != nil {
		return err
	}
	ranges, err := splitRanges(ctx, h, res.Dialect, s.cfg.Performance.Parallel)
	_ = h.Close()
	if err != nil {
		return err
	}
	stats.Ranges = len(ranges)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	chans := make([]chan arrow.Record, len(ranges))
	for i, rg := range ranges {
		ch := make(chan arrow.Record, s.cfg.Performance.QueueDepth)
		chans[i] = ch
		g.Go(func() error {
			defer close(ch)
			rctx := logger.ContextWithBufferIndex(gctx, i)
			r, err := s.openRange(rctx, rg, i, res, projection)
			if err != nil {
				return err
			}
			defer r.Close()

			for {
				rec, err := r.Next(rctx)
				if err == io.EOF {
					return nil
				}
				if err != nil {
					return err
				}
				select {
				case ch <- rec:
				case <-rctx.Done():
					rec.Release()
					return rctx.Err()
				}
			}
		})
	}

	var consumeErr error
	for _, ch := range chans {
		for rec := range ch {
			if consumeErr != nil {
				rec.Release()
				continue
			}
			if consumeErr = s.deliver(rec, fn, stats); consumeErr != nil {
				cancel()
			}
		}
	}
	if err := g.Wait(); consumeErr == nil {
		return err
	}
	return consumeErr
}

// openRange positions a reader on rg with the sniffed schema. Only the
// first range holds the header. Line numbers in errors are offset by the
// rows that precede the range.
func (s *Scanner) openRange(ctx context.Context, rg byteRange, idx int, res *sniffer.Result, projection []int) (*csvreader.BufferedReader, error) {
	h, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.Seek(rg.start); err != nil {
		_ = h.Close()
		return nil, err
	}
	linesBefore := rg.linesBefore
	r, err := s.newReader(filehandle.Limit(h, rg.end),
		csvreader.WithBufferIndex(idx),
		csvreader.WithLineError(func(line int64, _ int) int64 { return linesBefore + line }))
	if err != nil {
		return nil, err
	}

	if err := configure(ctx, r, res, idx == 0); err != nil {
		_ = r.Close()
		return nil, err
	}
	if projection != nil {
		if err := r.SetProjection(projection); err != nil {
			_ = r.Close()
			return nil, err
		}
	}
	logger.FromContext(ctx, s.logger).Debug("range reader ready",
		zap.Int64("start", rg.start),
		zap.Int64("end", rg.end),
		zap.Int64("lines_before", rg.linesBefore))
	return r, nil
}

// configure applies a sniff result to a fresh range reader, going straight
// from SniffingDialect to parsing.
func configure(ctx context.Context, r *csvreader.BufferedReader, res *sniffer.Result, first bool) error {
	r.SetDialect(res.Dialect)
	if res.Formats.Date != "" {
		r.SetDateFormat(types.Date, res.Formats.Date)
	}
	if res.Formats.Timestamp != "" {
		r.SetDateFormat(types.Timestamp, res.Formats.Timestamp)
	}
	if err := r.SetSchema(res.Names, res.Types); err != nil {
		return err
	}
	if first && res.HasHeader {
		if err := r.SetMode(csvreader.ParsingHeader); err != nil {
			return err
		}
		if err := r.ParseCSV(ctx); err != nil {
			return err
		}
	}
	return r.SetMode(csvreader.Parsing)
}
