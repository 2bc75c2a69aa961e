// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"encoding/binary"
	"io"
	"slices"

	"github.com/elliotnunn/sitfs/internal/sectionreader"
	"github.com/elliotnunn/sitfs/internal/sit"
)

const macBinaryHeaderSize = 128

type probeResult struct {
	r      io.ReaderAt
	size   int64
	format string // if not StuffIt, what it looks like instead
}

// probe finds the StuffIt archive in a file, looking inside a MacBinary wrapper if necessary
func probe(r io.ReaderAt, size int64) probeResult {
	header := make([]byte, 1024+2)
	n, _ := r.ReadAt(header, 0)
	header = header[:n]

	matchAt := func(s string, offset int) bool {
		return len(header) >= offset+len(s) && string(header[offset:][:len(s)]) == s
	}
	stuffItAt := func(offset int) bool {
		return len(header) >= offset+14 &&
			slices.Contains(sit.Signatures, string(header[offset:][:4])) &&
			matchAt("rLau", offset+10)
	}

	switch {
	case stuffItAt(0):
		return probeResult{r: r, size: size, format: "StuffIt"}
	case isMacBinary(header) && stuffItAt(macBinaryHeaderSize):
		dlen := int64(binary.BigEndian.Uint32(header[83:]))
		dlen = min(dlen, size-macBinaryHeaderSize)
		return probeResult{r: sectionreader.Section(r, macBinaryHeaderSize, dlen), size: dlen, format: "StuffIt"}
	case matchAt("rLau", 10):
		return probeResult{format: "StuffIt with an unknown signature " + string(header[:4])}
	case matchAt("StuffIt (c)1997-", 0):
		return probeResult{format: "StuffIt 5"}
	case matchAt("\x1f\x8b", 0):
		return probeResult{format: "gzip"}
	case matchAt("BZh", 0):
		return probeResult{format: "bzip2"}
	case matchAt("PK\x03\x04", 0):
		return probeResult{format: "zip"}
	case matchAt("ustar\x00\x30\x30", 257), matchAt("ustar\x20\x20\x00", 257):
		return probeResult{format: "tar"}
	case matchAt("ER", 0):
		return probeResult{format: "Apple partition map"}
	case matchAt("BD", 1024), matchAt("H+", 1024):
		return probeResult{format: "HFS volume"}
	case isMacBinary(header):
		return probeResult{format: "MacBinary"}
	}
	return probeResult{format: "unknown"}
}

// the checks that MacBinary II readers agree on
func isMacBinary(h []byte) bool {
	return len(h) >= macBinaryHeaderSize &&
		h[0] == 0 && h[74] == 0 && h[82] == 0 &&
		h[1] >= 1 && h[1] <= 63 &&
		binary.BigEndian.Uint32(h[83:]) < 0x800000 &&
		binary.BigEndian.Uint32(h[87:]) < 0x800000
}
