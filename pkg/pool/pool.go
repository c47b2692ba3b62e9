// Package pool provides typed object pooling and a size-bucketed byte
// buffer pool for the read buffers of CSV readers.
//
// Example usage:
//
//	buf := pool.Buffers.Get(1 << 20)
//	defer pool.Buffers.Put(buf)
package pool

import (
	"sync"
	"sync/atomic"
)

// Pool is a typed wrapper around sync.Pool with an optional reset hook and
// usage counters. It is safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
	stats struct {
		allocated int64
		inUse     int64
		gets      int64
	}
}

// New creates a pool. reset, when set, runs on every object handed to Put.
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		return newFn()
	}
	return p
}

// Get takes an object from the pool, allocating one when it is empty.
func (p *Pool[T]) Get() T {
	atomic.AddInt64(&p.stats.inUse, 1)
	atomic.AddInt64(&p.stats.gets, 1)
	return p.pool.Get().(T)
}

// Put returns obj to the pool.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	atomic.AddInt64(&p.stats.inUse, -1)
	p.pool.Put(obj)
}

// Stats returns the number of objects allocated, currently checked out,
// and handed out in total.
func (p *Pool[T]) Stats() (allocated, inUse, gets int64) {
	return atomic.LoadInt64(&p.stats.allocated),
		atomic.LoadInt64(&p.stats.inUse),
		atomic.LoadInt64(&p.stats.gets)
}

// BufferPool pools byte slices in power-of-two buckets.
type BufferPool struct {
	pools []*Pool[[]byte]
	sizes []int
}

// NewBufferPool creates a pool with buckets from 512B to 16MB. Larger
// requests are allocated directly and never pooled.
func NewBufferPool() *BufferPool {
	sizes := []int{
		512,
		4 << 10,
		64 << 10,
		256 << 10,
		1 << 20,
		2 << 20,
		4 << 20,
		16 << 20,
	}

	pools := make([]*Pool[[]byte], len(sizes))
	for i, size := range sizes {
		size := size
		pools[i] = New(func() []byte { return make([]byte, size) }, nil)
	}
	return &BufferPool{pools: pools, sizes: sizes}
}

// Get returns a slice of length size from the smallest bucket that fits.
// Its contents are not zeroed.
func (p *BufferPool) Get(size int) []byte {
	for i, s := range p.sizes {
		if s >= size {
			return p.pools[i].Get()[:size]
		}
	}
	return make([]byte, size)
}

// Put returns buf to the bucket matching its capacity. Slices of any other
// capacity are left to the garbage collector.
func (p *BufferPool) Put(buf []byte) {
	size := cap(buf)
	for i, s := range p.sizes {
		if s == size {
			p.pools[i].Put(buf[:size])
			return
		}
	}
}

// Buffers is the process-wide read buffer pool.
var Buffers = NewBufferPool()
