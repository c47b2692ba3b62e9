package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type chunk struct{ rows []string }

func TestPoolReset(t *testing.T) {
	p := New(
		func() *chunk { return &chunk{rows: make([]string, 0, 8)} },
		func(c *chunk) { c.rows = c.rows[:0] },
	)

	c := p.Get()
	c.rows = append(c.rows, "a", "b")
	_, inUse, _ := p.Stats()
	assert.Equal(t, int64(1), inUse)

	p.Put(c)
	assert.Empty(t, c.rows)

	allocated, inUse, gets := p.Stats()
	assert.Equal(t, int64(1), allocated)
	assert.Equal(t, int64(0), inUse)
	assert.Equal(t, int64(1), gets)
}

func TestBufferPoolBuckets(t *testing.T) {
	p := NewBufferPool()

	tests := []struct {
		size    int
		wantCap int
	}{
		{size: 100, wantCap: 512},
		{size: 512, wantCap: 512},
		{size: 1000, wantCap: 4 << 10},
		{size: 1 << 20, wantCap: 1 << 20},
		{size: 32 << 20, wantCap: 32 << 20},
	}
	for _, tt := range tests {
		buf := p.Get(tt.size)
		assert.Len(t, buf, tt.size)
		assert.Equal(t, tt.wantCap, cap(buf))
		p.Put(buf)
	}
}

func TestBufferPoolIgnoresForeignSlices(t *testing.T) {
	p := NewBufferPool()
	p.Put(make([]byte, 100))
	_, inUse, _ := p.pools[0].Stats()
	assert.Equal(t, int64(0), inUse)
}
