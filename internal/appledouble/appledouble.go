// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package appledouble writes the "._name" sidecar files that carry a Macintosh
// file's resource fork and Finder metadata on filesystems without forks.
package appledouble

import (
	"encoding/binary"
	"path"
	"slices"
	"time"
)

var appleDoubleEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Entry IDs from the AppleSingle/AppleDouble v2 specification
const (
	DATA_FORK           = 1
	RESOURCE_FORK       = 2
	REAL_NAME           = 3
	COMMENT             = 4
	FILE_DATES_INFO     = 8
	FINDER_INFO         = 9  // FinderInfo (16) + FinderXInfo (16)
	MACINTOSH_FILE_INFO = 10 // 32 bits, bit 31 = locked
)

const headerSize = 26

// MakePrefix lays out every record except the resource fork, which goes last
// so that it can be streamed straight after the prefix.
func MakePrefix(records map[int][]byte, rforkSize int64) (buf []byte, rForkOffset int64) {
	var keys []int
	for k := range records {
		if k != RESOURCE_FORK {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	if rforkSize > 0 {
		keys = append(keys, RESOURCE_FORK)
	}

	buf = make([]byte, headerSize+12*len(keys))
	copy(buf, "\x00\x05\x16\x07\x00\x02\x00\x00") // magic number (modern macOS expects the 07 byte)
	binary.BigEndian.PutUint16(buf[24:], uint16(len(keys)))

	for i, key := range keys {
		desc := buf[headerSize+12*i:]
		binary.BigEndian.PutUint32(desc, uint32(key))
		if key == RESOURCE_FORK {
			rForkOffset = int64(len(buf))
			binary.BigEndian.PutUint32(desc[4:], uint32(rForkOffset))
			binary.BigEndian.PutUint32(desc[8:], uint32(rforkSize))
		} else {
			binary.BigEndian.PutUint32(desc[4:], uint32(len(buf)))
			binary.BigEndian.PutUint32(desc[8:], uint32(len(records[key])))
			buf = append(buf, records[key]...)
		}
	}
	return buf, rForkOffset
}

// Sidecar is the name of the AppleDouble file that accompanies name
func Sidecar(name string) string {
	a, b := path.Split(name)
	return a + "._" + b
}
