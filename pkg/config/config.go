// Package config provides the resolved reader configuration for csvscan.
// A CSVConfig is organized into logical sections:
//   - Dialect: delimiter, quote, escape, newline convention and header presence
//   - Columns: declared names and types
//   - Sniffing: sample budget and type candidates
//   - Errors: policies for malformed rows, nulls and blank lines
//   - Storage: compression, text encoding and object store access
//   - Performance: batch, buffer and parallelism sizing
//
// Example usage:
//
//	cfg := config.NewCSVConfig("data.csv")
//	cfg.Dialect.Delimiter = "|"
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"strings"

	"github.com/rizalgowandy/duckdb/pkg/types"
)

// HeaderMode declares whether the first row holds column names.
type HeaderMode string

const (
	// HeaderAuto lets the sniffer decide
	HeaderAuto HeaderMode = "auto"
	// HeaderPresent treats the first row as column names
	HeaderPresent HeaderMode = "true"
	// HeaderAbsent treats the first row as data
	HeaderAbsent HeaderMode = "false"
)

// CSVConfig is the configuration of one reader instance. Readers copy it at
// construction; it is never mutated while reading.
type CSVConfig struct {
	// Path is a local file, s3://bucket/key or gs://bucket/object
	Path string `yaml:"path" json:"path"`

	Dialect     DialectConfig     `yaml:"dialect" json:"dialect"`
	Columns     []ColumnConfig    `yaml:"columns,omitempty" json:"columns,omitempty"`
	Sniffing    SniffingConfig    `yaml:"sniffing" json:"sniffing"`
	Errors      ErrorPolicyConfig `yaml:"errors" json:"errors"`
	Storage     StorageConfig     `yaml:"storage" json:"storage"`
	Performance PerformanceConfig `yaml:"performance" json:"performance"`
}

// DialectConfig describes how bytes are segmented into rows and fields.
// Empty delimiter and nil quote/escape mean "sniff"; an empty quote or
// escape string disables that character.
type DialectConfig struct {
	Delimiter string     `yaml:"delimiter,omitempty" json:"delimiter,omitempty"`
	Quote     *string    `yaml:"quote,omitempty" json:"quote,omitempty"`
	Escape    *string    `yaml:"escape,omitempty" json:"escape,omitempty"`
	NewLine   string     `yaml:"new_line,omitempty" json:"new_line,omitempty"` // "", lf, crlf, cr
	Header    HeaderMode `yaml:"header" json:"header"`
}

// ColumnConfig declares one column. An empty type leaves it to the sniffer.
type ColumnConfig struct {
	Name string `yaml:"name" json:"name"`
	Type string `yaml:"type,omitempty" json:"type,omitempty"`
}

// SniffingConfig bounds the sampling done before parsing.
type SniffingConfig struct {
	SampleSize         int      `yaml:"sample_size" json:"sample_size"`
	SampleChunks       int      `yaml:"sample_chunks" json:"sample_chunks"`
	JumpingSamples     bool     `yaml:"jumping_samples" json:"jumping_samples"`
	AutoTypeCandidates []string `yaml:"auto_type_candidates,omitempty" json:"auto_type_candidates,omitempty"`
	DateFormat         string   `yaml:"date_format,omitempty" json:"date_format,omitempty"`
	TimestampFormat    string   `yaml:"timestamp_format,omitempty" json:"timestamp_format,omitempty"`
}

// ErrorPolicyConfig holds the policies applied to malformed input.
type ErrorPolicyConfig struct {
	IgnoreErrors       bool   `yaml:"ignore_errors" json:"ignore_errors"`
	IgnoreExtraColumns bool   `yaml:"ignore_extra_columns" json:"ignore_extra_columns"`
	NullPadding        bool   `yaml:"null_padding" json:"null_padding"`
	SkipBlankLines     bool   `yaml:"skip_blank_lines" json:"skip_blank_lines"`
	EmptyAsNull        bool   `yaml:"empty_as_null" json:"empty_as_null"`
	NullString         string `yaml:"null_string,omitempty" json:"null_string,omitempty"`
}

// StorageConfig controls how bytes are fetched and decoded.
type StorageConfig struct {
	Compression  string `yaml:"compression" json:"compression"`
	Encoding     string `yaml:"encoding" json:"encoding"`
	S3Region     string `yaml:"s3_region,omitempty" json:"s3_region,omitempty"`
	GCSEndpoint  string `yaml:"gcs_endpoint,omitempty" json:"gcs_endpoint,omitempty"`
	GCSAnonymous bool   `yaml:"gcs_anonymous,omitempty" json:"gcs_anonymous,omitempty"`
	// MemoryMap reads local files through a memory mapping
	MemoryMap bool `yaml:"mmap,omitempty" json:"mmap,omitempty"`
}

// PerformanceConfig sizes buffers and batches.
type PerformanceConfig struct {
	BatchSize   int `yaml:"batch_size" json:"batch_size"`
	BufferSize  int `yaml:"buffer_size" json:"buffer_size"`
	MaxLineSize int `yaml:"max_line_size" json:"max_line_size"`
	Parallel    int `yaml:"parallel" json:"parallel"`
	QueueDepth  int `yaml:"queue_depth" json:"queue_depth"`
}

const (
	// DefaultBatchSize is the row capacity of a parse chunk and output batch
	DefaultBatchSize = 2048
	// DefaultBufferSize is the read buffer size
	DefaultBufferSize = 1 << 20
	// DefaultMaxLineSize bounds a single row
	DefaultMaxLineSize = 2 << 20
	// DefaultSampleSize is the number of rows in one sniffing sample
	DefaultSampleSize = 2048
	// DefaultSampleChunks is the number of sniffing samples
	DefaultSampleChunks = 10
)

// NewCSVConfig creates a configuration with sensible defaults.
// Dialect and types are left to the sniffer.
func NewCSVConfig(path string) *CSVConfig {
	return &CSVConfig{
		Path: path,
		Dialect: DialectConfig{
			Header: HeaderAuto,
		},
		Sniffing: SniffingConfig{
			SampleSize:     DefaultSampleSize,
			SampleChunks:   DefaultSampleChunks,
			JumpingSamples: true,
		},
		Errors: ErrorPolicyConfig{
			SkipBlankLines: true,
			EmptyAsNull:    true,
		},
		Storage: StorageConfig{
			Compression: "auto",
			Encoding:    "utf-8",
		},
		Performance: PerformanceConfig{
			BatchSize:   DefaultBatchSize,
			BufferSize:  DefaultBufferSize,
			MaxLineSize: DefaultMaxLineSize,
			Parallel:    1,
			QueueDepth:  4,
		},
	}
}

// Validate validates the configuration for correctness.
func (c *CSVConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("path is required")
	}
	if len(c.Dialect.Delimiter) > 1 {
		return fmt.Errorf("delimiter must be a single byte, got %q", c.Dialect.Delimiter)
	}
	if c.Dialect.Quote != nil && len(*c.Dialect.Quote) > 1 {
		return fmt.Errorf("quote must be a single byte, got %q", *c.Dialect.Quote)
	}
	if c.Dialect.Escape != nil && len(*c.Dialect.Escape) > 1 {
		return fmt.Errorf("escape must be a single byte, got %q", *c.Dialect.Escape)
	}
	if c.Dialect.Delimiter != "" && c.Dialect.Quote != nil && c.Dialect.Delimiter == *c.Dialect.Quote {
		return fmt.Errorf("delimiter and quote must differ")
	}
	switch strings.ToLower(c.Dialect.NewLine) {
	case "", "lf", "crlf", "cr":
	default:
		return fmt.Errorf("new_line must be one of lf, crlf, cr, got %q", c.Dialect.NewLine)
	}
	switch c.Dialect.Header {
	case "", HeaderAuto, HeaderPresent, HeaderAbsent:
	default:
		return fmt.Errorf("header must be auto, true or false, got %q", c.Dialect.Header)
	}
	for i, col := range c.Columns {
		if col.Type == "" {
			continue
		}
		if _, err := types.Parse(col.Type); err != nil {
			return fmt.Errorf("columns[%d]: %w", i, err)
		}
	}
	if _, err := c.TypeCandidates(); err != nil {
		return fmt.Errorf("auto_type_candidates: %w", err)
	}
	if c.Sniffing.SampleSize <= 0 {
		return fmt.Errorf("sample_size must be positive")
	}
	if c.Sniffing.SampleChunks <= 0 {
		return fmt.Errorf("sample_chunks must be positive")
	}
	if c.Performance.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if c.Performance.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be positive")
	}
	if c.Performance.MaxLineSize < c.Performance.BufferSize {
		return fmt.Errorf("max_line_size must be at least buffer_size")
	}
	if c.Performance.Parallel <= 0 {
		return fmt.Errorf("parallel must be positive")
	}
	if c.Performance.QueueDepth <= 0 {
		return fmt.Errorf("queue_depth must be positive")
	}
	return nil
}

// DialectSpecified reports whether delimiter, quote and escape are all
// configured, in which case dialect sniffing is skipped.
func (c *CSVConfig) DialectSpecified() bool {
	return c.Dialect.Delimiter != "" && c.Dialect.Quote != nil && c.Dialect.Escape != nil
}

// TypeCandidates returns the sniffing priority order. VARCHAR is appended
// when the configured list omits it.
func (c *CSVConfig) TypeCandidates() ([]types.Type, error) {
	if len(c.Sniffing.AutoTypeCandidates) == 0 {
		return types.DefaultCandidates, nil
	}
	candidates, err := types.ParseList(c.Sniffing.AutoTypeCandidates)
	if err != nil {
		return nil, err
	}
	for _, t := range candidates {
		if t == types.Varchar {
			return candidates, nil
		}
	}
	return append(candidates, types.Varchar), nil
}

// DeclaredTypes returns the declared column types; positions without a
// declared type are reported as types.Null.
func (c *CSVConfig) DeclaredTypes() []types.Type {
	out := make([]types.Type, len(c.Columns))
	for i, col := range c.Columns {
		if col.Type == "" {
			continue
		}
		t, err := types.Parse(col.Type)
		if err == nil {
			out[i] = t
		}
	}
	return out
}

// Formats returns the configured date and timestamp layouts.
func (c *CSVConfig) Formats() types.Formats {
	return types.Formats{Date: c.Sniffing.DateFormat, Timestamp: c.Sniffing.TimestampFormat}
}

// StringPtr is a helper for the optional quote and escape settings.
func StringPtr(s string) *string {
	return &s
}
