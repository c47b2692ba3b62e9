package sniffer

import (
	"testing"

	"github.com/rizalgowandy/duckdb/pkg/config"
	"github.com/rizalgowandy/duckdb/pkg/csvreader"
	"github.com/rizalgowandy/duckdb/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestDialectCandidates(t *testing.T) {
	cfg := config.NewCSVConfig("x.csv")
	all := dialectCandidates(cfg)
	// 4 delimiters × (2 quotes × 2 escapes + no quote)
	assert.Len(t, all, 20)
	assert.Equal(t, csvreader.DefaultDialect.Delimiter, all[0].Delimiter)

	cfg.Dialect.Delimiter = "|"
	cfg.Dialect.Quote = config.StringPtr("")
	fixed := dialectCandidates(cfg)
	assert.Equal(t, []csvreader.Dialect{{Delimiter: '|'}}, fixed)
}

func TestCandidateOrdering(t *testing.T) {
	rfc := candidate{dialect: csvreader.Dialect{Delimiter: ',', Quote: '"'}, columns: 3, consistent: 10, rows: 10, order: 0}
	escaped := candidate{dialect: csvreader.Dialect{Delimiter: ',', Quote: '"', Escape: '\\'}, columns: 3, consistent: 10, rows: 10, order: 1}
	single := candidate{dialect: csvreader.Dialect{Delimiter: '|', Quote: '"'}, columns: 1, consistent: 10, rows: 10, order: 4}
	semicolon := candidate{dialect: csvreader.Dialect{Delimiter: ';', Quote: '"'}, columns: 3, consistent: 11, rows: 11, order: 10}
	ragged := candidate{dialect: csvreader.Dialect{Delimiter: ';', Quote: '\''}, columns: 4, consistent: 9, rows: 11, order: 12}
	// A multi-line quoted field splits into extra single-column rows.
	split := candidate{dialect: csvreader.Dialect{Delimiter: '|', Quote: '"'}, columns: 1, consistent: 14, rows: 14, order: 4}

	assert.True(t, rfc.better(escaped))
	assert.True(t, rfc.better(single))
	assert.False(t, single.better(rfc))
	assert.False(t, rfc.better(rfc))
	assert.True(t, rfc.better(split))
	assert.False(t, split.better(rfc))
	assert.True(t, semicolon.better(ragged))
	assert.True(t, rfc.better(semicolon))
}

func TestModalCount(t *testing.T) {
	v, f := modalCount([]int{3, 3, 2, 3, 4})
	assert.Equal(t, 3, v)
	assert.Equal(t, 3, f)

	v, f = modalCount([]int{1, 2})
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, f)
}

func TestColumnNames(t *testing.T) {
	assert.Equal(t, []string{"column0", "column1"}, columnNames(nil, nil, 2))
	assert.Equal(t, []string{"a", "a_1", "a_1_1"}, columnNames([]string{"a", "a", "a_1"}, nil, 3))
	assert.Equal(t, []string{"x"}, columnNames([]string{"a"}, []config.ColumnConfig{{Name: "x"}}, 1))
	assert.Equal(t, []string{"b", "column1"}, columnNames([]string{" b "}, nil, 2))
}

func TestTypeDetector(t *testing.T) {
	det := newTypeDetector(types.DefaultCandidates, nil, 3, types.Formats{})
	for _, v := range []string{"true", "F"} {
		det.observe(0, v)
	}
	for _, v := range []string{"1", "2", "3.5"} {
		det.observe(1, v)
	}
	for _, v := range []string{"1", "abc"} {
		det.observe(2, v)
	}

	got, _ := det.result()
	assert.Equal(t, []types.Type{types.Boolean, types.Double, types.Varchar}, got)
	assert.True(t, det.check(1, "7"))
	assert.False(t, det.check(1, "seven"))
}

func TestDetectHeader(t *testing.T) {
	det := newTypeDetector(types.DefaultCandidates, nil, 2, types.Formats{})
	det.observe(0, "1")
	det.observe(1, "x")

	assert.True(t, detectHeader(config.HeaderAuto, &firstRow{values: []string{"id", "name"}, valid: []bool{true, true}}, det))
	assert.False(t, detectHeader(config.HeaderAuto, &firstRow{values: []string{"0", "name"}, valid: []bool{true, true}}, det))
	assert.False(t, detectHeader(config.HeaderAuto, nil, det))
	assert.True(t, detectHeader(config.HeaderPresent, nil, det))

	text := newTypeDetector(types.DefaultCandidates, nil, 2, types.Formats{})
	text.observe(0, "x")
	text.observe(1, "y")
	assert.True(t, detectHeader(config.HeaderAuto, &firstRow{values: []string{"a", "b"}, valid: []bool{true, true}}, text))
	assert.False(t, detectHeader(config.HeaderAuto, &firstRow{values: []string{"a", "a"}, valid: []bool{true, true}}, text))
	assert.False(t, detectHeader(config.HeaderAuto, &firstRow{values: []string{"a", ""}, valid: []bool{true, false}}, text))
}
