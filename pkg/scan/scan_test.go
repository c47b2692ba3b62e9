package scan

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/klauspost/compress/gzip"
	"github.com/rizalgowandy/duckdb/pkg/config"
	"github.com/rizalgowandy/duckdb/pkg/errors"
	"github.com/rizalgowandy/duckdb/pkg/filehandle"
	"github.com/rizalgowandy/duckdb/pkg/sniffer"
	"github.com/rizalgowandy/duckdb/pkg/testutil"
	"github.com/rizalgowandy/duckdb/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ScanSuite struct {
	testutil.IntegrationTestSuite
}

func TestScanSuite(t *testing.T) {
	testutil.IntegrationTest(t)
	suite.Run(t, new(ScanSuite))
}

func (s *ScanSuite) SetupTest() {
	prev := minRangeBytes
	minRangeBytes = 256
	s.T().Cleanup(func() { minRangeBytes = prev })
}

func (s *ScanSuite) config(path string, mutate func(cfg *config.CSVConfig)) *config.CSVConfig {
	cfg := testutil.CSVConfig(path)
	cfg.Performance.BufferSize = 512
	cfg.Performance.BatchSize = 64
	if mutate != nil {
		mutate(cfg)
	}
	return cfg
}

func (s *ScanSuite) collect(cfg *config.CSVConfig, opts ...Option) ([][]any, *Stats, error) {
	opts = append([]Option{WithLogger(testutil.TestLogger(s.T()))}, opts...)
	sc, err := New(cfg, opts...)
	s.Require().NoError(err)

	var rows [][]any
	stats, err := sc.Scan(s.Context(), func(rec arrow.Record) error {
		rows = append(rows, recordRows(rec)...)
		return nil
	})
	return rows, stats, err
}

func recordRows(rec arrow.Record) [][]any {
	rows := make([][]any, rec.NumRows())
	for i := range rows {
		row := make([]any, rec.NumCols())
		for c := range row {
			row[c] = types.Value(rec.Column(c), i)
		}
		rows[i] = row
	}
	return rows
}

func (s *ScanSuite) TestSequentialScan() {
	path := s.CreateTempFile("seq.csv", testutil.GenerateCSV(50))

	rows, stats, err := s.collect(s.config(path, nil))
	s.Require().NoError(err)
	s.Len(rows, 50)
	s.Equal(1, stats.Ranges)
	s.Equal(int64(50), stats.Rows)
	s.NotEmpty(stats.ScanID)
	s.Equal([]string{"id", "name", "value", "timestamp"}, stats.Sniff.Names)
	s.Equal([]types.Type{types.BigInt, types.Varchar, types.Double, types.Timestamp}, stats.Sniff.Types)

	s.Equal(int64(3), rows[3][0])
	s.Equal("Record, \"3\"\nsecond line", rows[3][1])
	s.Equal(3.75, rows[3][2])
}

func (s *ScanSuite) TestParallelScanMatchesSequential() {
	path := s.CreateTempFile("par.csv", testutil.GenerateCSV(400))

	want, _, err := s.collect(s.config(path, nil))
	s.Require().NoError(err)

	got, stats, err := s.collect(s.config(path, func(cfg *config.CSVConfig) {
		cfg.Performance.Parallel = 4
	}))
	s.Require().NoError(err)
	s.Equal(4, stats.Ranges)
	s.Equal(want, got)
	s.Equal(int64(400), stats.Rows)
}

func (s *ScanSuite) TestParallelLineNumbers() {
	var sb strings.Builder
	sb.WriteString("n\n")
	for i := 1; i <= 300; i++ {
		if i == 250 {
			sb.WriteString("oops\n")
			continue
		}
		fmt.Fprintf(&sb, "%d\n", i)
	}
	path := s.CreateTempFile("lines.csv", []byte(sb.String()))

	_, _, err := s.collect(s.config(path, func(cfg *config.CSVConfig) {
		cfg.Performance.Parallel = 3
		cfg.Sniffing.SampleSize = 10
		cfg.Sniffing.SampleChunks = 1
	}))
	s.Require().Error(err)

	var e *errors.Error
	s.Require().True(errors.As(err, &e), err.Error())
	s.Equal(errors.ErrorTypeCastFailure, e.Type)
	s.Equal(int64(251), e.Detail(errors.DetailLine))
	s.Contains(e.Message, "on line 251:")
	s.NotEqual(0, e.Detail(errors.DetailBufferIndex))
	s.Nil(e.Detail(errors.DetailRow))
	s.NotContains(e.Message, "(row ")
}

func (s *ScanSuite) TestParallelScanWithByteOrderMark() {
	var sb strings.Builder
	sb.WriteString("\xEF\xBB\xBFid,name\n")
	for i := 0; i < 400; i++ {
		fmt.Fprintf(&sb, "%d,name_%d\n", i, i)
	}
	path := s.CreateTempFile("bom.csv", []byte(sb.String()))

	want, _, err := s.collect(s.config(path, nil))
	s.Require().NoError(err)
	s.Require().Len(want, 400)

	got, stats, err := s.collect(s.config(path, func(cfg *config.CSVConfig) {
		cfg.Performance.Parallel = 4
	}))
	s.Require().NoError(err)
	s.Equal(4, stats.Ranges)
	s.Equal([]string{"id", "name"}, stats.Sniff.Names)
	s.Equal(want, got)
	s.Equal([]any{int64(399), "name_399"}, got[399])
}

func (s *ScanSuite) TestCompressedFileIsReadSequentially() {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(testutil.GenerateCSV(100))
	s.Require().NoError(err)
	s.Require().NoError(zw.Close())
	path := s.CreateTempFile("data.csv.gz", buf.Bytes())

	rows, stats, err := s.collect(s.config(path, func(cfg *config.CSVConfig) {
		cfg.Performance.Parallel = 4
	}))
	s.Require().NoError(err)
	s.Equal(1, stats.Ranges)
	s.Len(rows, 100)
}

func (s *ScanSuite) TestColumnSelection() {
	path := s.CreateTempFile("cols.csv", []byte("a,b,c\n1,x,2.5\n2,y,3.5\n"))

	rows, _, err := s.collect(s.config(path, nil), WithColumns("c", "a"))
	s.Require().NoError(err)
	s.Equal([][]any{{2.5, int64(1)}, {3.5, int64(2)}}, rows)

	_, _, err = s.collect(s.config(path, nil), WithColumns("missing"))
	s.True(errors.IsType(err, errors.ErrorTypeValidation))
}

func (s *ScanSuite) TestConsumerErrorStopsScan() {
	path := s.CreateTempFile("stop.csv", testutil.GenerateCSV(400))
	stop := fmt.Errorf("stop")

	for _, parallel := range []int{1, 4} {
		sc, err := New(s.config(path, func(cfg *config.CSVConfig) {
			cfg.Performance.Parallel = parallel
		}), WithLogger(testutil.TestLogger(s.T())))
		s.Require().NoError(err)

		calls := 0
		stats, err := sc.Scan(s.Context(), func(arrow.Record) error {
			calls++
			return stop
		})
		s.ErrorIs(err, stop)
		s.Equal(1, calls)
		s.Equal(1, stats.Batches)
	}
}

func (s *ScanSuite) TestSniffCacheAcrossScans() {
	path := s.CreateTempFile("cached.csv", testutil.GenerateCSV(20))
	cache := sniffer.NewCache()

	for i := 0; i < 2; i++ {
		rows, _, err := s.collect(s.config(path, nil), WithSniffCache(cache))
		s.Require().NoError(err)
		s.Len(rows, 20)
	}
	s.Equal(1, cache.Hits())
}

type recordingSink struct {
	schema *arrow.Schema
	rows   int64
}

func (r *recordingSink) Begin(schema *arrow.Schema) error {
	r.schema = schema
	return nil
}

func (r *recordingSink) Write(_ context.Context, rec arrow.Record) error {
	r.rows += rec.NumRows()
	return nil
}

func TestScanTo(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	cfg := testutil.CSVConfig("mem.csv")
	sc, err := New(cfg,
		WithLogger(testutil.TestLogger(t)),
		WithAllocator(mem),
		WithOpener(func(context.Context) (filehandle.Handle, error) {
			return filehandle.FromBytes("mem.csv", []byte("k,v\na,1\nb,2\n"), filehandle.Options{})
		}))
	require.NoError(t, err)

	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	sink := &recordingSink{}
	stats, err := sc.ScanTo(ctx, sink)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sink.rows)
	assert.Equal(t, int64(2), stats.Rows)
	require.NotNil(t, sink.schema)
	assert.Equal(t, "k", sink.schema.Field(0).Name)
	assert.Equal(t, arrow.PrimitiveTypes.Int64, sink.schema.Field(1).Type)
}

func TestSniffOnly(t *testing.T) {
	path := testutil.WriteCSV(t, "only.csv", "x|y", "1|2")
	sc, err := New(testutil.CSVConfig(path), WithLogger(testutil.TestLogger(t)))
	require.NoError(t, err)

	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	res, err := sc.Sniff(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte('|'), res.Dialect.Delimiter)
	assert.Equal(t, []string{"x", "y"}, res.Names)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	cfg := config.NewCSVConfig("")
	_, err = New(cfg)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
