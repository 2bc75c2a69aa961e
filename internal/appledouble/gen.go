// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package appledouble

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"time"
)

// AppleDouble is the metadata that a StuffIt record header can supply.
// Window positions and the rest of the Finder info do not survive archiving.
type AppleDouble struct {
	CreateTime, ModTime time.Time
	Locked              bool

	Flags   uint16
	Type    [4]byte
	Creator [4]byte
}

const (
	FlagIsOnDesk      = 0x0001
	MaskColor         = 0x000E
	FlagHasBeenInited = 0x0100 // the Finder must recompute this on a new volume
	FlagHasCustomIcon = 0x0400
	FlagIsStationery  = 0x0800
	FlagNameLocked    = 0x1000
	FlagHasBundle     = 0x2000
	FlagIsInvisible   = 0x4000
	FlagIsAlias       = 0x8000
)

func (m *AppleDouble) fileInfoRec() [32]byte {
	var d [32]byte
	copy(d[:], m.Type[:])
	copy(d[4:], m.Creator[:])
	binary.BigEndian.PutUint16(d[8:], m.Flags&^FlagHasBeenInited)
	return d
}

// create, modify, backup, access, in seconds either side of 2000
func (m *AppleDouble) datesRec() [16]byte {
	var d [16]byte
	for i, t := range []time.Time{m.CreateTime, m.ModTime, {}, {}} {
		stamp := int64(math.MinInt32) // unknown
		if !t.IsZero() {
			stamp = int64(t.Sub(appleDoubleEpoch) / time.Second)
			stamp = max(math.MinInt32+1, min(math.MaxInt32, stamp))
		}
		binary.BigEndian.PutUint32(d[4*i:], uint32(int32(stamp)))
	}
	return d
}

func (m *AppleDouble) flagsRec() [4]byte {
	if m.Locked {
		return [4]byte{0x80, 0, 0, 0}
	}
	return [4]byte{}
}

// WithResourceFork returns the whole sidecar file: the metadata records followed by the fork
func (m *AppleDouble) WithResourceFork(r io.ReaderAt, size int64) (io.ReaderAt, int64) {
	finder, dates, flags := m.fileInfoRec(), m.datesRec(), m.flagsRec()
	recs := map[int][]byte{
		FINDER_INFO:         finder[:],
		FILE_DATES_INFO:     dates[:],
		MACINTOSH_FILE_INFO: flags[:]}
	ad, rfStart := MakePrefix(recs, size)

	if size == 0 {
		return bytes.NewReader(ad), int64(len(ad))
	}
	return &readerAt{ad: ad, fork: r}, rfStart + size
}
