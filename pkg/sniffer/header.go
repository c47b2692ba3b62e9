package sniffer

import (
	"fmt"
	"strings"

	"github.com/rizalgowandy/duckdb/pkg/config"
	"github.com/rizalgowandy/duckdb/pkg/types"
)

// firstRow is the first committed row of the file, held out of type
// detection until the header decision is made.
type firstRow struct {
	values []string
	valid  []bool
}

// detectHeader decides whether row holds column names. A row with a value
// that does not cast to its column's sniffed type is a header. When every
// column is VARCHAR the row is a header if its values are all present and
// distinct.
func detectHeader(mode config.HeaderMode, row *firstRow, det *typeDetector) bool {
	switch mode {
	case config.HeaderPresent:
		return true
	case config.HeaderAbsent:
		return false
	}
	if row == nil {
		return false
	}

	allVarchar := true
	for col, value := range row.values {
		t := det.typeOf(col)
		if t == types.Varchar {
			continue
		}
		allVarchar = false
		if row.valid[col] && !det.check(col, value) {
			return true
		}
	}
	if !allVarchar {
		return false
	}

	seen := make(map[string]struct{}, len(row.values))
	for col, value := range row.values {
		if !row.valid[col] || value == "" {
			return false
		}
		if _, dup := seen[value]; dup {
			return false
		}
		seen[value] = struct{}{}
	}
	return true
}

// columnNames builds ncols names from header fields. Missing or blank
// names become columnN and duplicates get a numeric suffix. Declared names
// take precedence position by position.
func columnNames(header []string, declared []config.ColumnConfig, ncols int) []string {
	names := make([]string, ncols)
	used := make(map[string]int, ncols)
	for col := range names {
		name := ""
		if col < len(declared) && declared[col].Name != "" {
			name = declared[col].Name
		} else if col < len(header) {
			name = strings.TrimSpace(header[col])
		}
		if name == "" {
			name = fmt.Sprintf("column%d", col)
		}

		base := name
		for n := used[base]; ; n++ {
			if n > 0 {
				name = fmt.Sprintf("%s_%d", base, n)
			}
			if _, taken := used[name]; !taken {
				used[base] = n + 1
				break
			}
		}
		used[name] = max(used[name], 1)
		names[col] = name
	}
	return names
}
