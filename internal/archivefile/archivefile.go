// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package archivefile opens an archive on disk as an [io.ReaderAt].
//
// Plain files are mapped into memory where the platform allows it, and read with
// pread otherwise. Archives wrapped in xz, as they often are when downloaded from
// old software collections, are decompressed into memory first.
package archivefile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/therootcompany/xz"
)

const xzMagic = "\xfd7zXZ\x00"

var errNoMap = errors.New("mmap unavailable")

type Option func(*options)

type options struct {
	noMmap  bool
	maxUnxz int64
}

// WithoutMmap reads the file with ReadAt calls instead of mapping it
func WithoutMmap() Option { return func(o *options) { o.noMmap = true } }

// WithXZLimit caps the size of an archive unwrapped from xz
func WithXZLimit(n int64) Option { return func(o *options) { o.maxUnxz = n } }

// File is safe for concurrent ReadAt calls until it is closed
type File struct {
	r      io.ReaderAt
	size   int64
	close  func() error
	mapped bool
	xz     bool
}

func Open(name string, opts ...Option) (*File, error) {
	o := options{maxUnxz: 1 << 30}
	for _, opt := range opts {
		opt(&o)
	}

	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !stat.Mode().IsRegular() {
		f.Close()
		return nil, &fs.PathError{Op: "open", Path: name, Err: errors.New("not a regular file")}
	}
	size := stat.Size()

	magic := make([]byte, len(xzMagic))
	if n, _ := f.ReadAt(magic, 0); n == len(magic) && string(magic) == xzMagic {
		defer f.Close()
		data, err := unxz(io.NewSectionReader(f, 0, size), o.maxUnxz)
		if err != nil {
			return nil, &fs.PathError{Op: "unxz", Path: name, Err: err}
		}
		slog.Debug("archiveUnwrapped", "name", name, "packed", size, "size", len(data))
		return &File{r: bytes.NewReader(data), size: int64(len(data)), close: noClose, xz: true}, nil
	}

	if !o.noMmap {
		data, err := mmap(f, size)
		if err == nil {
			f.Close()
			return &File{r: bytes.NewReader(data), size: size, close: func() error { return munmap(data) }, mapped: true}, nil
		} else if err != errNoMap {
			slog.Debug("archiveMmapFailed", "name", name, "err", err)
		}
	}
	return &File{r: f, size: size, close: f.Close}, nil
}

func unxz(r io.Reader, limit int64) ([]byte, error) {
	zr, err := xz.NewReader(r, xz.DefaultDictMax)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(zr, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("unwrapped archive exceeds %d bytes", limit)
	}
	return data, nil
}

func noClose() error { return nil }

func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if f.r == nil {
		return 0, fs.ErrClosed
	}
	return f.r.ReadAt(p, off)
}

func (f *File) Size() int64 { return f.size }

// Mapped reports whether the file is memory-mapped
func (f *File) Mapped() bool { return f.mapped }

// Unwrapped reports whether the archive came out of an xz container
func (f *File) Unwrapped() bool { return f.xz }

// Digest is an xxhash of the archive contents, after any unwrapping
func (f *File) Digest() (uint64, error) {
	h := xxhash.New()
	if _, err := io.Copy(h, io.NewSectionReader(f, 0, f.size)); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

func (f *File) Close() error {
	if f.r == nil {
		return fs.ErrClosed
	}
	f.r = nil
	return f.close()
}
