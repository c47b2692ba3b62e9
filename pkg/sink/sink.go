// Package sink writes scanned record batches to Arrow IPC files, Parquet
// files, newline-delimited JSON or a PostgreSQL table. File outputs may be
// local paths, s3:// or gs:// URLs, or "-" for standard output.
package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rizalgowandy/duckdb/pkg/compression"
	"github.com/rizalgowandy/duckdb/pkg/errors"
	"github.com/rizalgowandy/duckdb/pkg/logger"
	"go.uber.org/zap"
)

// Format names an output format.
type Format string

const (
	FormatArrow    Format = "arrow"
	FormatParquet  Format = "parquet"
	FormatNDJSON   Format = "ndjson"
	FormatPostgres Format = "postgres"
)

// Writer receives the schema once, then batches in order.
type Writer interface {
	Begin(schema *arrow.Schema) error
	Write(ctx context.Context, rec arrow.Record) error
	Close() error
}

// Options selects and configures a Writer.
type Options struct {
	Format Format `yaml:"format" json:"format"`
	// Path is the output file for file formats
	Path string `yaml:"path" json:"path"`
	// Compression applies to NDJSON output and names the Parquet codec
	Compression string `yaml:"compression" json:"compression"`
	S3Region    string `yaml:"s3_region" json:"s3_region"`

	PostgresDSN string `yaml:"postgres_dsn" json:"postgres_dsn"`
	Table       string `yaml:"table" json:"table"`
	CreateTable bool   `yaml:"create_table" json:"create_table"`

	Logger    *zap.Logger      `yaml:"-" json:"-"`
	Allocator memory.Allocator `yaml:"-" json:"-"`
}

// Open creates the Writer described by opts.
func Open(ctx context.Context, opts Options) (Writer, error) {
	opts.Logger = logger.OrDefault(opts.Logger)
	if opts.Allocator == nil {
		opts.Allocator = memory.NewGoAllocator()
	}

	switch Format(strings.ToLower(string(opts.Format))) {
	case FormatPostgres:
		return NewPostgres(ctx, opts)
	case FormatArrow, "ipc", "":
		dst, err := Destination(ctx, opts.Path, opts.S3Region)
		if err != nil {
			return nil, err
		}
		return NewArrow(dst, opts), nil
	case FormatParquet:
		dst, err := Destination(ctx, opts.Path, opts.S3Region)
		if err != nil {
			return nil, err
		}
		return NewParquet(dst, opts)
	case FormatNDJSON, "json":
		dst, err := Destination(ctx, opts.Path, opts.S3Region)
		if err != nil {
			return nil, err
		}
		return NewNDJSON(dst, opts)
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported output format %q", opts.Format)
	}
}

// onceCloser makes Close idempotent; some writers close their sink and
// callers close it again.
type onceCloser struct {
	io.Writer
	once  sync.Once
	close func() error
	err   error
}

func (c *onceCloser) Close() error {
	c.once.Do(func() { c.err = c.close() })
	return c.err
}

// Destination opens path for writing: "-" is standard output, s3:// and
// gs:// URLs stream to object storage, anything else is a local file.
func Destination(ctx context.Context, path, s3Region string) (io.WriteCloser, error) {
	switch {
	case path == "" || path == "-":
		return &onceCloser{Writer: os.Stdout, close: func() error { return nil }}, nil
	case strings.HasPrefix(path, "s3://"):
		return s3Destination(ctx, path, s3Region)
	case strings.HasPrefix(path, "gs://"):
		return gcsDestination(ctx, path)
	default:
		f, err := os.Create(path)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create output").
				WithDetail(errors.DetailFile, path)
		}
		return &onceCloser{Writer: f, close: f.Close}, nil
	}
}

func splitURL(path string) (string, string, error) {
	rest := path[strings.Index(path, "://")+3:]
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", errors.Newf(errors.ErrorTypeConfig, "invalid object URL %q", path)
	}
	return bucket, key, nil
}

// s3Destination streams writes through a pipe into a multipart upload.
func s3Destination(ctx context.Context, path, region string) (io.WriteCloser, error) {
	bucket, key, err := splitURL(path)
	if err != nil {
		return nil, err
	}
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS config")
	}
	uploader := manager.NewUploader(s3.NewFromConfig(cfg))

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		_, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Body:   pr,
		})
		_ = pr.CloseWithError(err)
		done <- err
	}()

	return &onceCloser{Writer: pw, close: func() error {
		if err := pw.Close(); err != nil {
			return err
		}
		if err := <-done; err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to upload output").
				WithDetail(errors.DetailFile, path)
		}
		return nil
	}}, nil
}

func gcsDestination(ctx context.Context, path string) (io.WriteCloser, error) {
	bucket, object, err := splitURL(path)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create GCS client")
	}
	w := client.Bucket(bucket).Object(object).NewWriter(ctx)
	return &onceCloser{Writer: w, close: func() error {
		err := w.Close()
		if cerr := client.Close(); err == nil {
			err = cerr
		}
		return err
	}}, nil
}

// compressed wraps dst with the named compression, or returns it as is.
func compressed(dst io.WriteCloser, name string) (io.WriteCloser, error) {
	algo, err := compression.ParseAlgorithm(name)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid output compression")
	}
	if algo == compression.None || algo == compression.Auto {
		return dst, nil
	}
	c, err := compression.NewCompressor(&compression.Config{Algorithm: algo, Level: compression.Default})
	if err != nil {
		return nil, err
	}
	w, err := c.NewWriter(dst)
	if err != nil {
		return nil, err
	}
	return &onceCloser{Writer: w, close: func() error {
		if err := w.Close(); err != nil {
			_ = dst.Close()
			return fmt.Errorf("flushing %s stream: %w", algo, err)
		}
		return dst.Close()
	}}, nil
}
