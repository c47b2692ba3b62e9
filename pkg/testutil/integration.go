package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// IntegrationTestSuite shares a scratch directory and a bounded context
// across the tests of a suite that reads real files.
type IntegrationTestSuite struct {
	suite.Suite
	ctx     context.Context
	cancel  context.CancelFunc
	dir     string
	started time.Time
}

func (s *IntegrationTestSuite) SetupSuite() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Minute)
	s.started = time.Now()

	dir, err := os.MkdirTemp("", "csvscan-test-*")
	s.Require().NoError(err)
	s.dir = dir
}

func (s *IntegrationTestSuite) TearDownSuite() {
	s.cancel()
	if s.dir != "" {
		_ = os.RemoveAll(s.dir)
	}
	s.T().Logf("suite finished in %v", time.Since(s.started))
}

// Context returns the suite context.
func (s *IntegrationTestSuite) Context() context.Context {
	return s.ctx
}

// CreateTempFile writes content to name in the suite directory.
func (s *IntegrationTestSuite) CreateTempFile(name string, content []byte) string {
	path := filepath.Join(s.dir, name)
	s.Require().NoError(os.WriteFile(path, content, 0o644))
	return path
}

// IntegrationTest skips t under -short.
func IntegrationTest(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

// GenerateCSV returns an id,name,value,timestamp file with rows
// deterministic records. Every seventh name is quoted and holds the
// delimiter, a doubled quote and a newline.
func GenerateCSV(rows int) []byte {
	var sb strings.Builder
	sb.WriteString("id,name,value,timestamp\n")

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for j := 0; j < rows; j++ {
		name := fmt.Sprintf("Record_%d", j)
		if j%7 == 3 {
			name = fmt.Sprintf("\"Record, \"\"%d\"\"\nsecond line\"", j)
		}
		ts := base.Add(time.Duration(j) * time.Minute).Format("2006-01-02 15:04:05")
		fmt.Fprintf(&sb, "%d,%s,%.2f,%s\n", j, name, float64(j)*1.25, ts)
	}
	return []byte(sb.String())
}
