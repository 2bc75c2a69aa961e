// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package resourcefork indexes the resources in a classic Mac OS resource fork,
// either bare or inside an AppleDouble file.
package resourcefork

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/elliotnunn/sitfs/internal/sectionreader"
)

var ErrFormat = errors.New("not a valid resource fork")

// Resource is one entry in the resource map
type Resource struct {
	Type [4]byte
	ID   int16
	Name []byte // Mac OS Roman, nil if unnamed
	Attr uint8
	*sectionreader.ReaderAt

	offset int64
}

// Path is the slash-separated name of a resource, like "ICN#/128"
func (r *Resource) Path() string {
	return fmt.Sprintf("%s/%d", r.Type[:], r.ID)
}

// Parse reads the resource map. The returned resources are ordered by their position in the fork.
func Parse(r io.ReaderAt) ([]Resource, error) {
	forkOffset := resourceForkOffset(r)

	var rfHeader [16]byte
	if n, err := r.ReadAt(rfHeader[:], forkOffset); n != len(rfHeader) {
		return nil, fmt.Errorf("%w: header: %w", ErrFormat, err)
	}
	dataOffset := forkOffset + int64(binary.BigEndian.Uint32(rfHeader[0:]))
	mapOffset := forkOffset + int64(binary.BigEndian.Uint32(rfHeader[4:]))
	dataSize := int64(binary.BigEndian.Uint32(rfHeader[8:]))
	mapSize := int64(binary.BigEndian.Uint32(rfHeader[12:]))
	if mapSize < 30 || mapSize > 1<<24 {
		return nil, fmt.Errorf("%w: map of %d bytes", ErrFormat, mapSize)
	}

	rmap := make([]byte, mapSize)
	if n, err := r.ReadAt(rmap, mapOffset); n != len(rmap) {
		return nil, fmt.Errorf("%w: map: %w", ErrFormat, err)
	}

	tlo := int(binary.BigEndian.Uint16(rmap[24:]))
	nlo := int(binary.BigEndian.Uint16(rmap[26:]))
	if len(rmap) < tlo+2 || len(rmap) < nlo {
		return nil, ErrFormat
	}
	typeList := rmap[tlo:]
	nameList := rmap[nlo:]

	// an empty fork has a count of 0xffff, meaning zero types
	nType := (int(binary.BigEndian.Uint16(typeList[0:])) + 1) & 0xffff
	if len(typeList) < 2+8*nType {
		return nil, ErrFormat
	}

	var ret []Resource
	for i := range nType {
		te := typeList[2+8*i:][:8]
		nRes := int(binary.BigEndian.Uint16(te[4:])) + 1
		sf := int(binary.BigEndian.Uint16(te[6:]))
		if len(typeList) < sf+12*nRes {
			return nil, ErrFormat
		}
		for j := range nRes {
			re := typeList[sf+12*j:][:12]
			res := Resource{
				Type: [4]byte(te[:4]),
				ID:   int16(binary.BigEndian.Uint16(re[0:])),
				Attr: re[4],
			}

			if nameof := int(int16(binary.BigEndian.Uint16(re[2:]))); nameof >= 0 {
				if len(nameList) < nameof+1 || len(nameList) < nameof+1+int(nameList[nameof]) {
					return nil, fmt.Errorf("%w: name of %s", ErrFormat, res.Path())
				}
				res.Name = nameList[nameof+1:][:nameList[nameof]]
			}

			rel := int64(binary.BigEndian.Uint32(re[4:]) & 0xffffff)
			if rel+4 > dataSize {
				return nil, fmt.Errorf("%w: %s is outside the data area", ErrFormat, res.Path())
			}
			var se [4]byte
			if n, err := r.ReadAt(se[:], dataOffset+rel); n != len(se) {
				return nil, fmt.Errorf("%w: %s: %w", ErrFormat, res.Path(), err)
			}
			size := int64(binary.BigEndian.Uint32(se[:]))
			if rel+4+size > dataSize {
				return nil, fmt.Errorf("%w: %s overruns the data area", ErrFormat, res.Path())
			}
			res.offset = dataOffset + rel + 4
			res.ReaderAt = sectionreader.Section(r, res.offset, size)
			ret = append(ret, res)
		}
	}

	slices.SortStableFunc(ret, func(a, b Resource) int {
		return cmp.Compare(a.Offset(), b.Offset())
	})
	return ret, nil
}

// Offset is where the resource data begins, relative to the reader passed to Parse
func (r *Resource) Offset() int64 { return r.offset }

// Find returns the resource with the given type and ID
func Find(list []Resource, t [4]byte, id int16) (Resource, bool) {
	for _, r := range list {
		if r.Type == t && r.ID == id {
			return r, true
		}
	}
	return Resource{}, false
}

// resourceForkOffset is nonzero if r is an AppleDouble file with a resource fork entry
func resourceForkOffset(r io.ReaderAt) int64 {
	var header [26]byte
	if n, _ := r.ReadAt(header[:], 0); n < len(header) || string(header[:4]) != "\x00\x05\x16\x07" {
		return 0
	}
	recList := make([]byte, 12*int(binary.BigEndian.Uint16(header[24:])))
	if n, _ := r.ReadAt(recList, 26); n != len(recList) {
		return 0
	}
	for ; len(recList) > 0; recList = recList[12:] {
		if binary.BigEndian.Uint32(recList) == 2 {
			return int64(binary.BigEndian.Uint32(recList[4:]))
		}
	}
	return 0
}
