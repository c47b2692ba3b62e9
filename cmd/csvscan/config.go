package main

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rizalgowandy/duckdb/pkg/config"
	"github.com/rizalgowandy/duckdb/pkg/errors"
	"github.com/rizalgowandy/duckdb/pkg/sink"
)

const envPrefix = "CSVSCAN"

// addReaderFlags registers the flags that override the reader configuration.
func addReaderFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "YAML or JSON reader configuration file")
	fs.String("delimiter", "", "Column delimiter (sniffed when empty)")
	fs.String("quote", "", "Quote character; empty disables quoting")
	fs.String("escape", "", "Escape character; empty means doubled quotes")
	fs.String("new-line", "", "Row terminator: lf, crlf or cr (sniffed when empty)")
	fs.String("header", "", "Header row: auto, true or false")
	fs.StringSlice("column", nil, "Declared column as name or name:type (repeatable)")
	fs.StringSlice("select", nil, "Output only these columns, in this order")
	fs.Int("sample-size", 0, "Rows per sniffing sample")
	fs.Int("sample-chunks", 0, "Number of sniffing samples")
	fs.Bool("no-jumping", false, "Sample sequentially from the start of the file")
	fs.StringSlice("types", nil, "Type candidates for sniffing, most specific first")
	fs.String("date-format", "", "Go layout for DATE values")
	fs.String("timestamp-format", "", "Go layout for TIMESTAMP values")
	fs.Bool("ignore-errors", false, "Skip rows that fail to parse or cast")
	fs.Bool("null-padding", false, "Pad short rows with NULL")
	fs.String("null-string", "", "Value read as NULL")
	fs.String("compression", "", "Input compression: auto, none, gzip, zstd, lz4, snappy, s2")
	fs.String("encoding", "", "Input text encoding")
	fs.String("s3-region", "", "Region for s3:// paths")
	fs.Bool("mmap", false, "Memory-map local input files")
	fs.Int("batch-size", 0, "Rows per output batch")
	fs.Int("buffer-size", 0, "Read buffer size in bytes")
	fs.Int("parallel", 0, "Byte ranges parsed concurrently")
	fs.Int("queue-depth", 0, "Batches buffered per range")
}

// addSinkFlags registers the output flags of the scan command.
func addSinkFlags(fs *pflag.FlagSet) {
	fs.StringP("format", "f", string(sink.FormatNDJSON), "Output format: arrow, parquet, ndjson or postgres")
	fs.StringP("output", "o", "-", "Output path, s3:// or gs:// URL, or - for stdout")
	fs.String("output-compression", "", "NDJSON stream compression or Parquet codec")
	fs.String("pg-dsn", "", "PostgreSQL connection string for postgres output")
	fs.String("table", "", "Target table for postgres output")
	fs.Bool("create-table", false, "Create the postgres table from the scanned schema")
}

// newViper binds fs and CSVSCAN_* environment variables.
func newViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to bind flags")
	}
	return v, nil
}

// readerConfig builds the configuration for path: defaults, then the
// config file, then flags and environment.
func readerConfig(v *viper.Viper, path string) (*config.CSVConfig, error) {
	cfg := config.NewCSVConfig(path)
	if file := v.GetString("config"); file != "" {
		if err := config.Load(file, cfg); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load config file").
				WithDetail(errors.DetailFile, file)
		}
		if path != "" {
			cfg.Path = path
		}
	}

	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	setInt := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	setBool := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}

	setString("delimiter", &cfg.Dialect.Delimiter)
	setString("new-line", &cfg.Dialect.NewLine)
	if v.IsSet("quote") {
		cfg.Dialect.Quote = config.StringPtr(v.GetString("quote"))
	}
	if v.IsSet("escape") {
		cfg.Dialect.Escape = config.StringPtr(v.GetString("escape"))
	}
	if v.IsSet("header") {
		cfg.Dialect.Header = config.HeaderMode(strings.ToLower(v.GetString("header")))
	}
	if v.IsSet("column") {
		cols, err := parseColumns(v.GetStringSlice("column"))
		if err != nil {
			return nil, err
		}
		cfg.Columns = cols
	}

	setInt("sample-size", &cfg.Sniffing.SampleSize)
	setInt("sample-chunks", &cfg.Sniffing.SampleChunks)
	if v.IsSet("no-jumping") {
		cfg.Sniffing.JumpingSamples = !v.GetBool("no-jumping")
	}
	if v.IsSet("types") {
		cfg.Sniffing.AutoTypeCandidates = v.GetStringSlice("types")
	}
	setString("date-format", &cfg.Sniffing.DateFormat)
	setString("timestamp-format", &cfg.Sniffing.TimestampFormat)

	setBool("ignore-errors", &cfg.Errors.IgnoreErrors)
	setBool("null-padding", &cfg.Errors.NullPadding)
	setString("null-string", &cfg.Errors.NullString)

	setString("compression", &cfg.Storage.Compression)
	setString("encoding", &cfg.Storage.Encoding)
	setString("s3-region", &cfg.Storage.S3Region)
	setBool("mmap", &cfg.Storage.MemoryMap)

	setInt("batch-size", &cfg.Performance.BatchSize)
	setInt("buffer-size", &cfg.Performance.BufferSize)
	setInt("parallel", &cfg.Performance.Parallel)
	setInt("queue-depth", &cfg.Performance.QueueDepth)

	return cfg, nil
}

// parseColumns reads name or name:type declarations.
func parseColumns(decls []string) ([]config.ColumnConfig, error) {
	cols := make([]config.ColumnConfig, 0, len(decls))
	for _, decl := range decls {
		name, typ, _ := strings.Cut(decl, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, errors.Newf(errors.ErrorTypeConfig, "invalid column declaration %q", decl)
		}
		cols = append(cols, config.ColumnConfig{Name: name, Type: strings.TrimSpace(typ)})
	}
	return cols, nil
}

func sinkOptions(v *viper.Viper, cfg *config.CSVConfig) sink.Options {
	return sink.Options{
		Format:      sink.Format(v.GetString("format")),
		Path:        v.GetString("output"),
		Compression: v.GetString("output-compression"),
		S3Region:    cfg.Storage.S3Region,
		PostgresDSN: v.GetString("pg-dsn"),
		Table:       v.GetString("table"),
		CreateTable: v.GetBool("create-table"),
	}
}
