package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rizalgowandy/duckdb/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCSVConfigDefaults(t *testing.T) {
	cfg := NewCSVConfig("data.csv")

	require.NoError(t, cfg.Validate())
	assert.Equal(t, HeaderAuto, cfg.Dialect.Header)
	assert.Equal(t, DefaultBatchSize, cfg.Performance.BatchSize)
	assert.True(t, cfg.Errors.EmptyAsNull)
	assert.True(t, cfg.Errors.SkipBlankLines)
	assert.False(t, cfg.DialectSpecified())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *CSVConfig)
		wantErr string
	}{
		{"missing path", func(c *CSVConfig) { c.Path = "" }, "path is required"},
		{"multi byte delimiter", func(c *CSVConfig) { c.Dialect.Delimiter = "||" }, "single byte"},
		{"delimiter equals quote", func(c *CSVConfig) {
			c.Dialect.Delimiter = `"`
			c.Dialect.Quote = StringPtr(`"`)
		}, "must differ"},
		{"bad newline", func(c *CSVConfig) { c.Dialect.NewLine = "nl" }, "new_line"},
		{"bad header", func(c *CSVConfig) { c.Dialect.Header = "maybe" }, "header"},
		{"bad column type", func(c *CSVConfig) {
			c.Columns = []ColumnConfig{{Name: "a", Type: "GEOMETRY"}}
		}, "columns[0]"},
		{"bad candidate", func(c *CSVConfig) { c.Sniffing.AutoTypeCandidates = []string{"BLOB"} }, "auto_type_candidates"},
		{"zero batch", func(c *CSVConfig) { c.Performance.BatchSize = 0 }, "batch_size"},
		{"line smaller than buffer", func(c *CSVConfig) { c.Performance.MaxLineSize = 1 }, "max_line_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewCSVConfig("data.csv")
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTypeCandidates(t *testing.T) {
	cfg := NewCSVConfig("data.csv")

	got, err := cfg.TypeCandidates()
	require.NoError(t, err)
	assert.Equal(t, types.DefaultCandidates, got)

	cfg.Sniffing.AutoTypeCandidates = []string{"bigint", "date"}
	got, err = cfg.TypeCandidates()
	require.NoError(t, err)
	assert.Equal(t, []types.Type{types.BigInt, types.Date, types.Varchar}, got)
}

func TestDialectSpecified(t *testing.T) {
	cfg := NewCSVConfig("data.csv")
	cfg.Dialect.Delimiter = ","
	cfg.Dialect.Quote = StringPtr(`"`)
	assert.False(t, cfg.DialectSpecified())

	cfg.Dialect.Escape = StringPtr("")
	assert.True(t, cfg.DialectSpecified())
}

func TestLoadCSV(t *testing.T) {
	t.Setenv("CSVSCAN_TEST_DIR", "/data")

	path := filepath.Join(t.TempDir(), "reader.yaml")
	content := `
path: ${CSVSCAN_TEST_DIR}/orders.csv
dialect:
  delimiter: "|"
  quote: ""
  header: "true"
columns:
  - name: id
    type: BIGINT
  - name: note
errors:
  ignore_errors: true
  null_string: ${CSVSCAN_UNSET_VAR:-NA}
performance:
  batch_size: 100
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadCSV(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/orders.csv", cfg.Path)
	assert.Equal(t, "|", cfg.Dialect.Delimiter)
	require.NotNil(t, cfg.Dialect.Quote)
	assert.Equal(t, "", *cfg.Dialect.Quote)
	assert.Nil(t, cfg.Dialect.Escape)
	assert.Equal(t, HeaderPresent, cfg.Dialect.Header)
	assert.Equal(t, []types.Type{types.BigInt, types.Null}, cfg.DeclaredTypes())
	assert.True(t, cfg.Errors.IgnoreErrors)
	assert.Equal(t, "NA", cfg.Errors.NullString)
	assert.Equal(t, 100, cfg.Performance.BatchSize)
	// untouched sections keep their defaults
	assert.True(t, cfg.Errors.EmptyAsNull)
	assert.Equal(t, DefaultBufferSize, cfg.Performance.BufferSize)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := NewCSVConfig("in.csv")
	cfg.Dialect.Delimiter = ";"

	require.NoError(t, Save(path, cfg))

	loaded, err := LoadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
