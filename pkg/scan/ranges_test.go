package scan

import (
	"bytes"
	"testing"

	"github.com/rizalgowandy/duckdb/pkg/csvreader"
	"github.com/rizalgowandy/duckdb/pkg/filehandle"
	"github.com/rizalgowandy/duckdb/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withMinRange(t *testing.T, n int64) {
	prev := minRangeBytes
	minRangeBytes = n
	t.Cleanup(func() { minRangeBytes = prev })
}

func TestSplitRanges(t *testing.T) {
	withMinRange(t, 8)

	tests := []struct {
		name   string
		data   string
		d      csvreader.Dialect
		starts []int64
		lines  []int64
	}{
		{
			name:   "lf",
			data:   "aaaa\nbbbb\ncccc\ndddd\n",
			d:      csvreader.Dialect{Delimiter: ',', Quote: '"', NewLine: csvreader.NewLineLF},
			starts: []int64{0, 10},
			lines:  []int64{0, 2},
		},
		{
			name:   "quoted newline is not a boundary",
			data:   "\"aa\naaaaaa\nx\"\nbb\ncc\n",
			d:      csvreader.Dialect{Delimiter: ',', Quote: '"', NewLine: csvreader.NewLineLF},
			starts: []int64{0, 14},
			lines:  []int64{0, 1},
		},
		{
			name:   "doubled quote keeps the value open",
			data:   "\"aaaaaa\"\"\nb\"\nc\n",
			d:      csvreader.Dialect{Delimiter: ',', Quote: '"', NewLine: csvreader.NewLineLF},
			starts: []int64{0, 13},
			lines:  []int64{0, 1},
		},
		{
			name:   "crlf",
			data:   "aaaaaaa\r\nbbbbbbb\r\nc\r\n",
			d:      csvreader.Dialect{Delimiter: ',', Quote: '"', NewLine: csvreader.NewLineCRLF},
			starts: []int64{0, 18},
			lines:  []int64{0, 2},
		},
		{
			name:   "lf convention treats carriage return as data",
			data:   "aaaa\rbbbb\nc\n",
			d:      csvreader.Dialect{Delimiter: ',', Quote: '"', NewLine: csvreader.NewLineLF},
			starts: []int64{0, 10},
			lines:  []int64{0, 1},
		},
		{
			name:   "crlf treats lone line feed and carriage return as data",
			data:   "aaaa\nbbb\rcc\r\nd\r\n",
			d:      csvreader.Dialect{Delimiter: ',', Quote: '"', NewLine: csvreader.NewLineCRLF},
			starts: []int64{0, 13},
			lines:  []int64{0, 1},
		},
		{
			name:   "offsets include the byte order mark",
			data:   "\xEF\xBB\xBFaaaa\nbbbb\ncccc\ndddd\n",
			d:      csvreader.Dialect{Delimiter: ',', Quote: '"', NewLine: csvreader.NewLineLF},
			starts: []int64{0, 13},
			lines:  []int64{0, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := filehandle.FromBytes("r.csv", []byte(tt.data), filehandle.Options{})
			require.NoError(t, err)
			defer h.Close()

			ctx, cancel := testutil.TestContext(t)
			defer cancel()

			ranges, err := splitRanges(ctx, h, tt.d, 2)
			require.NoError(t, err)

			var starts, lines []int64
			for i, rg := range ranges {
				starts = append(starts, rg.start)
				lines = append(lines, rg.linesBefore)
				if i > 0 {
					assert.Equal(t, ranges[i-1].end, rg.start)
				}
			}
			assert.Equal(t, tt.starts, starts)
			assert.Equal(t, tt.lines, lines)
			assert.Equal(t, int64(len(tt.data)), ranges[len(ranges)-1].end)
		})
	}
}

func TestSplitRangesSmallFile(t *testing.T) {
	h, err := filehandle.FromBytes("r.csv", bytes.Repeat([]byte("a\n"), 10), filehandle.Options{})
	require.NoError(t, err)
	defer h.Close()

	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	ranges, err := splitRanges(ctx, h, csvreader.DefaultDialect, 4)
	require.NoError(t, err)
	assert.Equal(t, []byteRange{{start: 0, end: 20}}, ranges)
}
