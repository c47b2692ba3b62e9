package filehandle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rizalgowandy/duckdb/pkg/compression"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const plain = "a,b\n1,2\n3,4\n"

func compress(t *testing.T, algo compression.Algorithm, data string) []byte {
	t.Helper()
	comp, err := compression.NewCompressor(&compression.Config{Algorithm: algo, Level: compression.Default})
	require.NoError(t, err)
	out, err := comp.Compress([]byte(data))
	require.NoError(t, err)
	return out
}

func TestFromBytesPlain(t *testing.T) {
	h, err := FromBytes("data.csv", []byte(plain), Options{})
	require.NoError(t, err)
	defer h.Close()

	got, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.Equal(t, plain, string(got))
	assert.Equal(t, int64(len(plain)), h.Tell())
	assert.True(t, h.CanSeek())
	assert.False(t, h.OnDiskFile())
	assert.Equal(t, compression.None, h.Compression())
}

func TestCompressedHandles(t *testing.T) {
	tests := []struct {
		name string
		path string
		algo compression.Algorithm
	}{
		{"gzip by extension", "data.csv.gz", compression.Gzip},
		{"zstd by magic", "data.csv", compression.Zstd},
		{"lz4 by magic", "data.bin", compression.LZ4},
		{"s2 by extension", "data.csv.s2", compression.S2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := FromBytes(tt.path, compress(t, tt.algo, plain), Options{})
			require.NoError(t, err)
			defer h.Close()

			assert.Equal(t, tt.algo, h.Compression())
			assert.False(t, h.CanSeek())

			got, err := io.ReadAll(h)
			require.NoError(t, err)
			assert.Equal(t, plain, string(got))

			assert.Error(t, h.Seek(3))
			require.NoError(t, h.Seek(0))
			again, err := io.ReadAll(h)
			require.NoError(t, err)
			assert.Equal(t, plain, string(again))
		})
	}
}

func TestBOMSkipped(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, plain...)
	h, err := FromBytes("bom.csv", data, Options{})
	require.NoError(t, err)

	got, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.Equal(t, plain, string(got))
	assert.Equal(t, int64(len(data)), h.Tell())
}

func TestTranscoding(t *testing.T) {
	latin1 := []byte("name\ncaf\xe9\n")
	h, err := FromBytes("latin.csv", latin1, Options{Encoding: "latin1"})
	require.NoError(t, err)

	got, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.Equal(t, "name\ncafé\n", string(got))
	assert.False(t, h.CanSeek())

	_, err = FromBytes("x.csv", latin1, Options{Encoding: "klingon"})
	assert.Error(t, err)
}

func TestSeekAndLimit(t *testing.T) {
	h, err := FromBytes("data.csv", []byte(plain), Options{})
	require.NoError(t, err)

	require.NoError(t, h.Seek(4))
	assert.Equal(t, int64(4), h.Tell())

	limited := Limit(h, 8)
	got, err := io.ReadAll(limited)
	require.NoError(t, err)
	assert.Equal(t, "1,2\n", string(got))
	assert.Equal(t, int64(8), limited.FileSize())

	assert.Error(t, h.Seek(int64(len(plain)+1)))
}

func TestLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.csv")
	require.NoError(t, os.WriteFile(path, []byte(plain), 0o600))

	h, err := Open(context.Background(), path, Options{})
	require.NoError(t, err)
	defer h.Close()

	assert.True(t, h.OnDiskFile())
	assert.Equal(t, int64(len(plain)), h.FileSize())
	require.NoError(t, h.Seek(8))
	got, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.Equal(t, "3,4\n", string(got))

	_, err = Open(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), Options{})
	assert.Error(t, err)
}

func TestMemoryMappedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapped.csv")
	require.NoError(t, os.WriteFile(path, []byte(plain), 0o600))

	h, err := Open(context.Background(), path, Options{MemoryMap: true})
	require.NoError(t, err)

	assert.True(t, h.OnDiskFile())
	assert.True(t, h.CanSeek())
	assert.Equal(t, int64(len(plain)), h.FileSize())

	got, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.Equal(t, plain, string(got))

	require.NoError(t, h.Seek(4))
	got, err = io.ReadAll(Limit(h, 8))
	require.NoError(t, err)
	assert.Equal(t, "1,2\n", string(got))
	require.NoError(t, h.Close())

	empty := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	h, err = Open(context.Background(), empty, Options{MemoryMap: true})
	require.NoError(t, err)
	assert.Equal(t, int64(0), h.FileSize())
	require.NoError(t, h.Close())
}

type fakeS3 struct {
	objects map[string][]byte
	ranges  []string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, fmt.Errorf("no such key")
	}
	rng := aws.ToString(in.Range)
	f.ranges = append(f.ranges, rng)
	if rng != "" {
		start, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(rng, "bytes="), "-"), 10, 64)
		if err != nil {
			return nil, err
		}
		data = data[start:]
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, fmt.Errorf("no such key")
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func TestS3Source(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{"bucket/dir/data.csv": []byte(plain)}}

	h, err := Open(context.Background(), "s3://bucket/dir/data.csv", Options{S3Client: fake})
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, int64(len(plain)), h.FileSize())
	require.NoError(t, h.Seek(4))
	got, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.Equal(t, "1,2\n3,4\n", string(got))
	assert.Equal(t, []string{"", "bytes=4-"}, fake.ranges)
}

func TestSplitObjectURL(t *testing.T) {
	bucket, key, err := splitObjectURL("gs://bucket/a/b.csv")
	require.NoError(t, err)
	assert.Equal(t, "bucket", bucket)
	assert.Equal(t, "a/b.csv", key)

	_, _, err = splitObjectURL("s3://bucket/")
	assert.Error(t, err)
}
