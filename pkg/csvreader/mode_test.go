package csvreader

import (
	"testing"

	"github.com/rizalgowandy/duckdb/pkg/config"
	"github.com/rizalgowandy/duckdb/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from, to ParserMode
		ok       bool
	}{
		{SniffingDialect, SniffingDialect, true},
		{SniffingDialect, SniffingDataTypes, true},
		{SniffingDialect, ParsingHeader, true},
		{SniffingDialect, Parsing, true},
		{SniffingDataTypes, SniffingDialect, true},
		{SniffingDataTypes, ParsingHeader, true},
		{SniffingDataTypes, Parsing, true},
		{ParsingHeader, Parsing, true},
		{ParsingHeader, SniffingDialect, false},
		{ParsingHeader, ParsingHeader, false},
		{Parsing, SniffingDialect, false},
		{Parsing, Parsing, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			got, err := Transition(tt.from, tt.to)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.to, got)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeInternal))
			assert.Equal(t, tt.from, got)
		})
	}
}

func TestDialectFromConfig(t *testing.T) {
	cfg := config.NewCSVConfig("x.csv")
	assert.Equal(t, DefaultDialect, DialectFromConfig(cfg))

	cfg.Dialect.Delimiter = "|"
	cfg.Dialect.Quote = config.StringPtr("")
	cfg.Dialect.Escape = config.StringPtr(`\`)
	cfg.Dialect.NewLine = "crlf"
	d := DialectFromConfig(cfg)

	assert.Equal(t, Dialect{Delimiter: '|', Quote: 0, Escape: '\\', NewLine: NewLineCRLF}, d)
	assert.True(t, d.CustomEscape())
	assert.False(t, d.DoubledQuotes())
	assert.True(t, DefaultDialect.DoubledQuotes())
	assert.Contains(t, d.String(), "quote=(none)")
}
