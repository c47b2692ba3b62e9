package csvreader

// ParseChunk is the accumulation buffer: raw text columns holding up to
// capacity rows before they are cast into an output batch. Each committed
// row remembers the logical line it came from for diagnostics.
type ParseChunk struct {
	columns   [][]string
	valid     [][]bool
	lines     []int64
	estimated []bool
	ordinals  []int64
	size      int
	capacity  int
}

func newParseChunk(numCols, capacity int) ParseChunk {
	c := ParseChunk{
		columns:   make([][]string, numCols),
		valid:     make([][]bool, numCols),
		lines:     make([]int64, capacity),
		estimated: make([]bool, capacity),
		ordinals:  make([]int64, capacity),
		capacity:  capacity,
	}
	for i := range c.columns {
		c.columns[i] = make([]string, capacity)
		c.valid[i] = make([]bool, capacity)
	}
	return c
}

// set writes a value into the row currently being accumulated.
func (c *ParseChunk) set(col int, value string, valid bool) {
	if c.size >= c.capacity {
		return
	}
	c.columns[col][c.size] = value
	c.valid[col][c.size] = valid
}

// commit closes the row being accumulated.
func (c *ParseChunk) commit(line int64, estimated bool, ordinal int64) {
	c.lines[c.size] = line
	c.estimated[c.size] = estimated
	c.ordinals[c.size] = ordinal
	c.size++
}

// reset drops all rows, including a partially accumulated one. Values are
// cleared so the chunk holds no references to data of a discarded batch.
func (c *ParseChunk) reset() {
	n := min(c.size+1, c.capacity)
	for i := range c.columns {
		clear(c.columns[i][:n])
		clear(c.valid[i][:n])
	}
	c.size = 0
}

// Size returns the number of committed rows.
func (c *ParseChunk) Size() int { return c.size }

// Capacity returns the row capacity.
func (c *ParseChunk) Capacity() int { return c.capacity }

// Full reports whether no more rows can be committed.
func (c *ParseChunk) Full() bool { return c.size >= c.capacity }

// ColumnCount returns the number of raw columns.
func (c *ParseChunk) ColumnCount() int { return len(c.columns) }

// Value returns the raw text at (col, row) and false when it is NULL.
func (c *ParseChunk) Value(col, row int) (string, bool) {
	return c.columns[col][row], c.valid[col][row]
}

// Column returns the committed raw values and validity of col.
func (c *ParseChunk) Column(col int) ([]string, []bool) {
	return c.columns[col][:c.size], c.valid[col][:c.size]
}

// Line returns the logical line of row and whether it is estimated.
func (c *ParseChunk) Line(row int) (int64, bool) {
	return c.lines[row], c.estimated[row]
}
