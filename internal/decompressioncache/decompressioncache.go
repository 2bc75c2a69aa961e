// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package decompressioncache remembers decompressed archive members.
//
// A small TinyLFU cache holds recently popular members in memory.
// An optional Pebble database holds everything on disk as LZ4 frames, so that
// a second run over the same archive does not decompress anything.
package decompressioncache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble/v2"
	"github.com/dgryski/go-tinylfu"
	"github.com/pierrec/lz4/v4"
)

const keyPrefix = "sit14/"

// Cache is safe for concurrent use by multiple goroutines.
// Keys are expected to be content digests already, so they are not rehashed.
type Cache struct {
	mu       sync.Mutex
	mem      *tinylfu.T[uint64, []byte]
	maxBytes int // larger members skip the memory tier

	db *pebble.DB

	hits, misses, evictions atomic.Int64
}

// New makes a memory-only cache of n members, each at most maxBytes long
func New(n int, maxBytes int) *Cache {
	c := &Cache{maxBytes: maxBytes}
	c.mem = tinylfu.New[uint64, []byte](max(n, 1), max(n, 1)*10, identity,
		tinylfu.OnEvict(func(uint64, []byte) { c.evictions.Add(1) }))
	return c
}

// Open is New plus a persistent tier in the directory dir
func Open(dir string, n int, maxBytes int) (*Cache, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	c := New(n, maxBytes)
	c.db = db
	return c, nil
}

func identity(k uint64) uint64 { return k }

func dbKey(key uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte(keyPrefix), key)
}

// Get returns a slice that the caller must not modify
func (c *Cache) Get(key uint64) ([]byte, bool) {
	c.mu.Lock()
	data, ok := c.mem.Get(key)
	c.mu.Unlock()
	if ok {
		c.hits.Add(1)
		return data, true
	}

	if c.db != nil {
		val, closer, err := c.db.Get(dbKey(key))
		if err == nil {
			data, err = unpack(val)
			closer.Close()
		}
		if err == nil {
			c.remember(key, data)
			c.hits.Add(1)
			return data, true
		} else if !errors.Is(err, pebble.ErrNotFound) {
			slog.Warn("decompressionCacheReadError", "err", err, "key", key)
		}
	}
	c.misses.Add(1)
	return nil, false
}

// Put takes ownership of data
func (c *Cache) Put(key uint64, data []byte) {
	c.remember(key, data)
	if c.db != nil {
		if err := c.db.Set(dbKey(key), pack(data), pebble.NoSync); err != nil {
			slog.Warn("decompressionCacheWriteError", "err", err, "key", key, "size", len(data))
		}
	}
}

func (c *Cache) remember(key uint64, data []byte) {
	if len(data) > c.maxBytes {
		return
	}
	c.mu.Lock()
	c.mem.Add(key, data)
	c.mu.Unlock()
}

// pack prefixes an LZ4 frame with the uncompressed length
func pack(data []byte) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint64(len(data)))
	zw := lz4.NewWriter(&buf)
	zw.Write(data)
	zw.Close()
	return buf.Bytes()
}

func unpack(val []byte) ([]byte, error) {
	if len(val) < 8 {
		return nil, fmt.Errorf("cache record of %d bytes", len(val))
	}
	size := binary.BigEndian.Uint64(val)
	data := make([]byte, size)
	if _, err := io.ReadFull(lz4.NewReader(bytes.NewReader(val[8:])), data); err != nil {
		return nil, fmt.Errorf("cache record: %w", err)
	}
	return data, nil
}

type Stats struct {
	Hits, Misses, Evictions int64
}

func (c *Cache) Stats() Stats {
	return Stats{c.hits.Load(), c.misses.Load(), c.evictions.Load()}
}

// Close flushes the persistent tier, if any
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	db := c.db
	c.db = nil
	if err := db.Flush(); err != nil {
		db.Close()
		return err
	}
	return db.Close()
}
