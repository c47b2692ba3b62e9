package filehandle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rizalgowandy/duckdb/pkg/errors"
	"github.com/rizalgowandy/duckdb/pkg/mmap"
	"google.golang.org/api/option"
)

type localSource struct {
	path string
}

func (s localSource) OpenAt(_ context.Context, offset int64) (io.ReadCloser, error) {
	f, err := os.Open(s.path) //nolint:gosec // G304: path is the file the caller asked to read
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return f, nil
}

func (s localSource) Size(context.Context) (int64, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (s localSource) OnDisk() bool { return true }

// mappedSource serves a local file from a memory mapping. Files that
// cannot be mapped fall back to plain reads.
type mappedSource struct {
	localSource
	m *mmap.File
}

func newLocalSource(path string) Source {
	m, err := mmap.Open(path)
	if err != nil {
		return localSource{path: path}
	}
	return &mappedSource{localSource: localSource{path: path}, m: m}
}

func (s *mappedSource) OpenAt(_ context.Context, offset int64) (io.ReadCloser, error) {
	r, err := s.m.NewReader(offset)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(r), nil
}

func (s *mappedSource) Size(context.Context) (int64, error) { return s.m.Size(), nil }

func (s *mappedSource) Close() error { return s.m.Close() }

type bytesSource []byte

func (s bytesSource) OpenAt(_ context.Context, offset int64) (io.ReadCloser, error) {
	if offset > int64(len(s)) {
		offset = int64(len(s))
	}
	return io.NopCloser(bytes.NewReader(s[offset:])), nil
}

func (s bytesSource) Size(context.Context) (int64, error) { return int64(len(s)), nil }

func (s bytesSource) OnDisk() bool { return false }

// S3API is the subset of the S3 client used to read objects.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type s3Source struct {
	client S3API
	bucket string
	key    string
}

func newS3Source(ctx context.Context, path string, opts Options) (Source, error) {
	bucket, key, err := splitObjectURL(path)
	if err != nil {
		return nil, err
	}
	if opts.S3Client != nil {
		return &s3Source{client: opts.S3Client, bucket: bucket, key: key}, nil
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.S3Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.S3Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS config")
	}

	client := s3.NewFromConfig(cfg)
	if opts.S3Region == "" {
		region, err := manager.GetBucketRegion(ctx, client, bucket)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to resolve bucket region").
				WithDetail(errors.DetailFile, path)
		}
		client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.Region = region
		})
	}
	return &s3Source{client: client, bucket: bucket, key: key}, nil
}

func (s *s3Source) OpenAt(ctx context.Context, offset int64) (io.ReadCloser, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	}
	if offset > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}
	out, err := s.client.GetObject(ctx, input)
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

func (s *s3Source) Size(ctx context.Context) (int64, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return 0, err
	}
	return aws.ToInt64(out.ContentLength), nil
}

func (s *s3Source) OnDisk() bool { return false }

type gcsSource struct {
	object *storage.ObjectHandle
}

func newGCSSource(ctx context.Context, path string, opts Options) (Source, error) {
	bucket, object, err := splitObjectURL(path)
	if err != nil {
		return nil, err
	}

	var clientOpts []option.ClientOption
	if opts.GCSEndpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.GCSEndpoint))
	}
	if opts.GCSAnonymous {
		clientOpts = append(clientOpts, option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create GCS client")
	}
	return &gcsSource{object: client.Bucket(bucket).Object(object)}, nil
}

func (s *gcsSource) OpenAt(ctx context.Context, offset int64) (io.ReadCloser, error) {
	return s.object.NewRangeReader(ctx, offset, -1)
}

func (s *gcsSource) Size(ctx context.Context) (int64, error) {
	attrs, err := s.object.Attrs(ctx)
	if err != nil {
		return 0, err
	}
	return attrs.Size, nil
}

func (s *gcsSource) OnDisk() bool { return false }

// splitObjectURL splits scheme://bucket/key.
func splitObjectURL(path string) (string, string, error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", "", errors.Wrap(err, errors.ErrorTypeConfig, "invalid object URL")
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", errors.Newf(errors.ErrorTypeConfig, "object URL %q must name a bucket and a key", path)
	}
	return u.Host, key, nil
}
