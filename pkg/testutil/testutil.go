// Package testutil provides testing utilities for csvscan
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rizalgowandy/duckdb/pkg/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// TestLogger creates a test logger that writes to the test output.
// The logger is automatically cleaned up when the test completes.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// WriteFile writes data to name inside a per-test temporary directory and
// returns the full path.
func WriteFile(t *testing.T, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// WriteCSV writes rows joined by newlines, with a trailing newline, and
// returns the path.
func WriteCSV(t *testing.T, name string, rows ...string) string {
	t.Helper()
	return WriteFile(t, name, []byte(strings.Join(rows, "\n")+"\n"))
}

// CSVConfig returns a default configuration for path with small buffers so
// that refills happen inside short test inputs.
func CSVConfig(path string) *config.CSVConfig {
	cfg := config.NewCSVConfig(path)
	cfg.Performance.BufferSize = 16
	cfg.Performance.MaxLineSize = 1 << 16
	return cfg
}
