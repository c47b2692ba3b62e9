package mmap

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestOpen(t *testing.T) {
	if !Supported {
		t.Skip("mmap not supported")
	}
	m, err := Open(writeTemp(t, "a,b\n1,2\n"))
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, int64(8), m.Size())

	r, err := m.NewReader(4)
	require.NoError(t, err)
	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "1,2\n", string(rest))

	buf := make([]byte, 3)
	n, err := m.ReadAt(buf, 6)
	assert.Equal(t, 2, n)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, "2\n", string(buf[:n]))

	_, err = m.NewReader(9)
	assert.Error(t, err)
}

func TestOpenEmptyFile(t *testing.T) {
	if !Supported {
		t.Skip("mmap not supported")
	}
	_, err := Open(writeTemp(t, ""))
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestCloseIsIdempotent(t *testing.T) {
	if !Supported {
		t.Skip("mmap not supported")
	}
	m, err := Open(writeTemp(t, "x\n"))
	require.NoError(t, err)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err = m.NewReader(0)
	assert.ErrorIs(t, err, os.ErrClosed)
}
