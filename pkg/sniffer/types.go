package sniffer

import (
	"github.com/rizalgowandy/duckdb/pkg/types"
)

// typeDetector walks each column up a priority-ordered candidate list. A
// column's type is the first candidate every sampled value casts to.
type typeDetector struct {
	candidates []types.Type
	fixed      []bool
	idx        []int
	values     [][]string
	seen       []bool

	// layouts still consistent with every accepted DATE or TIMESTAMP value
	layouts map[types.Type][]string
}

func newTypeDetector(candidates, declared []types.Type, ncols int, formats types.Formats) *typeDetector {
	d := &typeDetector{
		candidates: candidates,
		fixed:      make([]bool, ncols),
		idx:        make([]int, ncols),
		values:     make([][]string, ncols),
		seen:       make([]bool, ncols),
		layouts: map[types.Type][]string{
			types.Date:      types.DateLayouts,
			types.Timestamp: types.TimestampLayouts,
		},
	}
	if formats.Date != "" {
		d.layouts[types.Date] = []string{formats.Date}
	}
	if formats.Timestamp != "" {
		d.layouts[types.Timestamp] = []string{formats.Timestamp}
	}

	for col := 0; col < ncols && col < len(declared); col++ {
		if declared[col] == types.Null {
			continue
		}
		d.fixed[col] = true
		d.candidates = appendUnique(d.candidates, declared[col])
		d.idx[col] = indexOf(d.candidates, declared[col])
	}
	return d
}

func appendUnique(list []types.Type, t types.Type) []types.Type {
	if indexOf(list, t) >= 0 {
		return list
	}
	return append(append([]types.Type(nil), list...), t)
}

func indexOf(list []types.Type, t types.Type) int {
	for i, c := range list {
		if c == t {
			return i
		}
	}
	return -1
}

// observe feeds one non-null value of col. On failure the column advances
// to the next candidate that accepts every value seen so far.
func (d *typeDetector) observe(col int, value string) {
	d.seen[col] = true
	if d.fixed[col] {
		return
	}
	d.values[col] = append(d.values[col], value)

	if d.accept(d.candidates[d.idx[col]], value) {
		return
	}
	for d.idx[col]++; d.idx[col] < len(d.candidates); d.idx[col]++ {
		if d.acceptAll(d.candidates[d.idx[col]], d.values[col]) {
			return
		}
	}
	d.idx[col] = indexOf(d.candidates, types.Varchar)
}

// accept reports whether value casts to t. For DATE and TIMESTAMP the
// surviving layouts are narrowed to those parsing value.
func (d *typeDetector) accept(t types.Type, value string) bool {
	return d.acceptAll(t, []string{value})
}

func (d *typeDetector) acceptAll(t types.Type, values []string) bool {
	layouts, dated := d.layouts[t]
	if !dated {
		for _, v := range values {
			if !types.Validate(v, t, types.Formats{}) {
				return false
			}
		}
		return true
	}

	var surviving []string
	for _, layout := range layouts {
		f := types.Formats{Date: layout, Timestamp: layout}
		ok := true
		for _, v := range values {
			if !types.Validate(v, t, f) {
				ok = false
				break
			}
		}
		if ok {
			surviving = append(surviving, layout)
		}
	}
	if len(surviving) == 0 {
		return false
	}
	d.layouts[t] = surviving
	return true
}

// check reports whether value casts to the column's current type without
// changing any state.
func (d *typeDetector) check(col int, value string) bool {
	t := d.typeOf(col)
	if t == types.Varchar {
		return true
	}
	layouts, dated := d.layouts[t]
	if !dated {
		return types.Validate(value, t, types.Formats{})
	}
	for _, layout := range layouts {
		if types.Validate(value, t, types.Formats{Date: layout, Timestamp: layout}) {
			return true
		}
	}
	return false
}

func (d *typeDetector) typeOf(col int) types.Type {
	if !d.seen[col] && !d.fixed[col] {
		return types.Varchar
	}
	return d.candidates[d.idx[col]]
}

// result returns the detected types and the layouts to fix on the reader.
func (d *typeDetector) result() ([]types.Type, types.Formats) {
	out := make([]types.Type, len(d.idx))
	var f types.Formats
	for col := range out {
		out[col] = d.typeOf(col)
		switch out[col] {
		case types.Date:
			f.Date = d.layouts[types.Date][0]
		case types.Timestamp:
			f.Timestamp = d.layouts[types.Timestamp][0]
		}
	}
	return out, f
}
