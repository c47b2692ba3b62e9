package csvreader

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChunk(t *testing.T) {
	c := newParseChunk(2, 2)
	assert.Equal(t, 2, c.ColumnCount())
	assert.Equal(t, 2, c.Capacity())

	c.set(0, "a", true)
	c.set(1, "", false)
	c.commit(4, false, 1)
	c.set(0, "b", true)
	c.set(1, "c", true)
	c.commit(5, true, 2)
	assert.True(t, c.Full())

	// writes past capacity are ignored
	c.set(0, "overflow", true)

	values, valid := c.Column(1)
	assert.Equal(t, []string{"", "c"}, values)
	assert.Equal(t, []bool{false, true}, valid)
	line, estimated := c.Line(1)
	assert.Equal(t, int64(5), line)
	assert.True(t, estimated)

	c.reset()
	assert.Equal(t, 0, c.Size())
	v, ok := c.Value(0, 0)
	assert.Empty(t, v)
	assert.False(t, ok)
}

func TestUnescape(t *testing.T) {
	assert.Equal(t, "plain", unescape([]byte("plain"), nil))
	assert.Equal(t, `a"b`, unescape([]byte(`a""b`), []int{1}))
	assert.Equal(t, `"x"`, unescape([]byte(`\"x\"`), []int{0, 3}))
	assert.Equal(t, "", unescape(nil, nil))
}

func TestBatchQueue(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	schema := arrow.NewSchema([]arrow.Field{{Name: "n", Type: arrow.PrimitiveTypes.Int64}}, nil)
	newRecord := func(v int64) arrow.Record {
		b := array.NewRecordBuilder(mem, schema)
		defer b.Release()
		b.Field(0).(*array.Int64Builder).Append(v)
		return b.NewRecord()
	}

	var q batchQueue
	assert.Nil(t, q.Pop())
	q.Push(newRecord(1))
	q.Push(newRecord(2))
	assert.Equal(t, 2, q.Len())

	first := q.Pop()
	require.NotNil(t, first)
	assert.Equal(t, int64(1), first.Column(0).(*array.Int64).Value(0))
	first.Release()

	q.Push(newRecord(3))
	assert.Equal(t, 2, q.Len())
	q.Release()
	assert.Equal(t, 0, q.Len())
}
