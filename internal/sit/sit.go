// Copyright (c) Elliot Nunn

// This library is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 2.1 of the License, or (at your option) any later version.

// This library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.

// Package sit reads classic StuffIt archives (the "SIT!" family, before StuffIt 5)
// and decompresses members stored plainly or with compression method 14.
package sit

import (
	"errors"
	"io"
	"log/slog"
	"slices"

	"golang.org/x/text/encoding/charmap"
)

// Signatures accepted at offset 0. The record layout is the same for all of them.
var Signatures = []string{"SIT!", "ST65", "ST50", "ST60", "STin", "STi2", "STi3", "STi4", "ST46"}

const signature2 = "rLau" // at offset 10

const (
	archiveHeaderSize = 22
	recordHeaderSize  = 112
)

// Cache holds decompressed members keyed by a digest of their compressed bytes.
// Implementations must be safe for concurrent use.
type Cache interface {
	Get(key uint64) ([]byte, bool)
	Put(key uint64, data []byte)
}

type Option func(*config)

type config struct {
	folderPaths bool
	macRoman    bool
	checksums   bool
	cache       Cache
	log         *slog.Logger
}

// WithFolderPaths names members by their full folder path, joined with "/"
func WithFolderPaths() Option { return func(c *config) { c.folderPaths = true } }

// WithMacRomanNames converts member names from Mac OS Roman to UTF-8
func WithMacRomanNames() Option { return func(c *config) { c.macRoman = true } }

// WithChecksums verifies record header CRCs in New and fork CRCs in Open
func WithChecksums() Option { return func(c *config) { c.checksums = true } }

func WithCache(cache Cache) Option { return func(c *config) { c.cache = cache } }

func WithLogger(l *slog.Logger) Option { return func(c *config) { c.log = l } }

func (c *config) name(raw []byte) string {
	if c.macRoman {
		s, err := charmap.Macintosh.NewDecoder().Bytes(raw)
		if err == nil {
			return string(s)
		}
	}
	return string(raw)
}

// New reads the archive header and every record header, without decompressing anything.
// ErrFormat means the data is some other format and the caller may try another reader.
// Any other error means a StuffIt archive that cannot be used.
func New(disk io.ReaderAt, size int64, opts ...Option) (*Archive, error) {
	cfg := config{log: slog.Default()}
	for _, o := range opts {
		o(&cfg)
	}

	buf := make([]byte, archiveHeaderSize)
	n, err := disk.ReadAt(buf, 0)
	if n < 4 || size < 4 {
		return nil, eof2formaterr(err)
	}
	if !slices.Contains(Signatures, string(buf[:4])) {
		return nil, ErrFormat
	}
	if n < archiveHeaderSize || size < archiveHeaderSize {
		return nil, &ParseError{Offset: 0, Err: errors.Join(ErrCorrupt, io.ErrUnexpectedEOF)}
	}
	if string(buf[10:14]) != signature2 {
		return nil, &ParseError{Offset: 10, Err: ErrCorrupt}
	}

	entries, err := readRecords(disk, archiveHeaderSize, size, &cfg)
	if err != nil {
		return nil, err
	}

	a := &Archive{
		disk:    disk,
		cfg:     cfg,
		entries: make(map[string]*Entry, len(entries)),
	}
	for _, e := range entries {
		if _, dup := a.entries[e.Name]; dup {
			cfg.log.Warn("StuffIt duplicate member", "name", e.Name, "offset", e.Offset)
			continue
		}
		a.entries[e.Name] = e
		a.names = append(a.names, e.Name)
	}
	return a, nil
}

func eof2formaterr(e error) error {
	if e == nil || e == io.EOF || errors.Is(e, io.ErrUnexpectedEOF) {
		return ErrFormat
	} else {
		return e
	}
}
