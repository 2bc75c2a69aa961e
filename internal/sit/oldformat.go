package sit

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"
)

// 112 bytes, big-endian
type header struct {
	RAlgo, DAlgo Method
	NameLen      uint8
	NameField    [63]byte

	Type, Creator [4]byte
	FinderFlags   uint16

	CrTime, ModTime uint32

	RUnpackLen, DUnpackLen uint32
	RPackLen, DPackLen     uint32
	RCRC, DCRC             uint16
	_                      [6]byte
	HdrCRC                 uint16
}

func (h *header) rawName() []byte { return h.NameField[:min(len(h.NameField), int(h.NameLen))] }

// Method is the per-fork compression method byte
type Method uint8

const (
	MethodNone Method = 0
	Method14   Method = 14

	methodFolderStart Method = 32
	methodFolderEnd   Method = 33
	methodCryptMask   Method = 0xf0
)

func (m Method) isFolderStart() bool { return m == methodFolderStart }
func (m Method) isFolderEnd() bool   { return m == methodFolderEnd }
func (m Method) encrypted() bool     { return m&methodCryptMask != 0 }

func (m Method) String() string {
	switch m {
	case MethodNone:
		return "stored"
	case 1:
		return "rle"
	case 2:
		return "lzc"
	case 3:
		return "huffman"
	case 5:
		return "lzah"
	case 6:
		return "fixhuf"
	case 8:
		return "mw"
	case 13:
		return "sit13"
	case Method14:
		return "sit14"
	case 15:
		return "arsenic"
	}
	if m.encrypted() {
		return fmt.Sprintf("encrypted(%d)", m&^methodCryptMask)
	}
	return fmt.Sprintf("method%d", m)
}

var macEpoch = time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC)

func macTime(t uint32) time.Time { return macEpoch.Add(time.Second * time.Duration(t)) }

// readRecords walks the fixed-size record headers that follow the archive header
func readRecords(disk io.ReaderAt, offset, size int64, cfg *config) ([]*Entry, error) {
	var (
		entries []*Entry
		folders []string
		hdrdata = make([]byte, recordHeaderSize)
	)

	for offset < size {
		if size-offset < recordHeaderSize {
			return nil, &ParseError{Offset: offset, Err: fmt.Errorf("%w: truncated record header", ErrCorrupt)}
		}
		n, err := disk.ReadAt(hdrdata, offset)
		if n < len(hdrdata) {
			if err == nil || err == io.EOF || err == fs.ErrInvalid {
				err = fmt.Errorf("%w: truncated record header", ErrCorrupt)
			}
			return nil, &ParseError{Offset: offset, Err: err}
		}
		if cfg.checksums && !checkHeaderCRC16(hdrdata, recordHeaderSize-2) {
			return nil, &ParseError{Offset: offset, Err: fmt.Errorf("%w: record header %w", ErrCorrupt, ErrChecksum)}
		}

		var hdr header
		binary.Read(bytes.NewReader(hdrdata), binary.BigEndian, &hdr)

		body := offset + recordHeaderSize
		next := body + int64(hdr.RPackLen) + int64(hdr.DPackLen)
		if next > size {
			return nil, &ParseError{Offset: offset, Err: fmt.Errorf("%w: record payload runs %d bytes past end of archive", ErrCorrupt, next-size)}
		}

		name := cfg.name(hdr.rawName())
		if cfg.folderPaths {
			name = strings.ReplaceAll(name, "/", ":") // Finder forbids ":" but allows "/"
		}
		switch {
		case hdr.DAlgo.isFolderStart():
			folders = append(folders, name)
		case hdr.DAlgo.isFolderEnd():
			if len(folders) > 0 {
				folders = folders[:len(folders)-1]
			}
		default:
			if cfg.folderPaths && len(folders) > 0 {
				name = strings.Join(folders, "/") + "/" + name
			}
			common := Entry{
				Type:        hdr.Type,
				Creator:     hdr.Creator,
				FinderFlags: hdr.FinderFlags,
				CreateTime:  macTime(hdr.CrTime),
				ModTime:     macTime(hdr.ModTime),
				Header:      offset,
			}
			if hdr.DUnpackLen != 0 {
				e := common
				e.Name, e.Fork, e.Method, e.CRC = name, DataFork, hdr.DAlgo, hdr.DCRC
				e.Offset = body + int64(hdr.RPackLen)
				e.CompressedSize, e.UncompressedSize = int64(hdr.DPackLen), int64(hdr.DUnpackLen)
				entries = append(entries, &e)
			}
			if hdr.RUnpackLen != 0 {
				e := common
				e.Name, e.Fork, e.Method, e.CRC = name+ResourceSuffix, ResourceFork, hdr.RAlgo, hdr.RCRC
				e.Offset = body
				e.CompressedSize, e.UncompressedSize = int64(hdr.RPackLen), int64(hdr.RUnpackLen)
				entries = append(entries, &e)
			}
		}
		cfg.log.Debug("StuffIt record", "name", name, "offset", offset,
			"dalgo", hdr.DAlgo, "ralgo", hdr.RAlgo, "dlen", hdr.DUnpackLen, "rlen", hdr.RUnpackLen)

		offset = next
	}
	return entries, nil
}
