package sniffer

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rizalgowandy/duckdb/pkg/config"
	"github.com/rizalgowandy/duckdb/pkg/csvreader"
	"github.com/zeebo/xxh3"
)

// fingerprintBytes is how much of the stream keys a cache entry.
const fingerprintBytes = 64 << 10

// Cache remembers sniff results keyed by a hash of the leading bytes of a
// file and the options that influence sniffing. It is safe for concurrent
// use; a nil *Cache never hits.
type Cache struct {
	mu      sync.RWMutex
	entries map[uint64]Result
	hits    int
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[uint64]Result)}
}

func (c *Cache) get(key uint64) (*Result, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.hits++
	return res.clone(), true
}

func (c *Cache) put(key uint64, res *Result) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries[key] = *res.clone()
	c.mu.Unlock()
}

// Len returns the number of cached results.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Hits returns how many lookups were served from the cache.
func (c *Cache) Hits() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits
}

// sniffOptions is the part of the configuration a sniff result depends on.
type sniffOptions struct {
	Dialect  config.DialectConfig     `json:"dialect"`
	Columns  []config.ColumnConfig    `json:"columns"`
	Sniffing config.SniffingConfig    `json:"sniffing"`
	Errors   config.ErrorPolicyConfig `json:"errors"`
	Storage  config.StorageConfig     `json:"storage"`
}

// fingerprint hashes the file size, the leading bytes of the stream and the
// sniffing options. The reader is rewound afterwards.
func fingerprint(r *csvreader.BufferedReader) (uint64, error) {
	if err := r.JumpToBeginning(); err != nil {
		return 0, err
	}
	cfg := r.Config()
	opts, err := json.Marshal(sniffOptions{
		Dialect:  cfg.Dialect,
		Columns:  cfg.Columns,
		Sniffing: cfg.Sniffing,
		Errors:   cfg.Errors,
		Storage:  cfg.Storage,
	})
	if err != nil {
		return 0, err
	}

	h := xxh3.New()
	_, _ = h.Write(opts)
	var size [8]byte
	binary.LittleEndian.PutUint64(size[:], uint64(r.Handle().FileSize()))
	_, _ = h.Write(size[:])
	if _, err := io.CopyN(h, r.Handle(), fingerprintBytes); err != nil && err != io.EOF {
		return 0, err
	}
	if err := r.JumpToBeginning(); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
