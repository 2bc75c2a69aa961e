// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package sectionreader provides bounded views of an archive for stored members
// and compressed byte ranges. Views of views collapse onto the original source,
// so a member read costs one ReadAt on the archive.
package sectionreader

import (
	"io"
	"math"
)

// Section returns the n bytes of r starting at off
func Section(r io.ReaderAt, off int64, n int64) *ReaderAt {
	for {
		var outer io.ReaderAt
		var outerOff, outerN int64
		switch t := r.(type) {
		case *ReaderAt:
			outer, outerOff, outerN = t.Outer()
		case *io.SectionReader:
			outer, outerOff, outerN = t.Outer()
		default:
			return &ReaderAt{r, off, n}
		}
		if off < 0 || n < 0 || off > outerN || n > outerN-off {
			return &ReaderAt{r, off, n}
		}
		r, off = outer, off+outerOff
	}
}

// ReaderAt is safe for concurrent use if the underlying io.ReaderAt is
type ReaderAt struct {
	r      io.ReaderAt
	off, n int64
}

func (s *ReaderAt) Outer() (io.ReaderAt, int64, int64) { return s.r, s.off, s.n }

func (s *ReaderAt) Size() int64 { return s.n }

func (s *ReaderAt) ReadAt(p []byte, off int64) (n int, err error) {
	if s.n < 0 || s.off < 0 || off < 0 || off >= s.n {
		return 0, io.EOF
	}

	end := s.off + s.n
	if end < s.off { // wrapped past MaxInt64
		end = math.MaxInt64
	}
	abs := s.off + off
	if abs < s.off {
		return 0, io.EOF
	}

	short := false
	if remain := end - abs; int64(len(p)) > remain {
		p, short = p[:remain], true
	}
	n, err = s.r.ReadAt(p, abs)
	if short && err == nil {
		err = io.EOF
	}
	return n, err
}
