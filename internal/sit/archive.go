package sit

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"slices"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/elliotnunn/sitfs/internal/sectionreader"
)

// ResourceSuffix distinguishes a resource fork member from the data fork of the same file
const ResourceSuffix = ".rsrc"

type Fork uint8

const (
	DataFork Fork = iota
	ResourceFork
)

func (f Fork) String() string {
	if f == ResourceFork {
		return "rsrc"
	}
	return "data"
}

// Entry describes one non-empty fork
type Entry struct {
	Name   string
	Fork   Fork
	Method Method

	Offset           int64 // of the first compressed byte
	CompressedSize   int64
	UncompressedSize int64
	CRC              uint16

	Type, Creator       [4]byte
	FinderFlags         uint16
	CreateTime, ModTime time.Time
	Header              int64 // offset of the record header
}

// An Archive is an index of members, immutable once New returns.
// Open may be called from multiple goroutines if the underlying io.ReaderAt allows it.
type Archive struct {
	disk    io.ReaderAt
	cfg     config
	entries map[string]*Entry
	names   []string
}

func (a *Archive) Has(name string) bool {
	_, ok := a.entries[name]
	return ok
}

// Names returns member names in archive order
func (a *Archive) Names() []string { return slices.Clone(a.names) }

func (a *Archive) Entry(name string) (Entry, bool) {
	e, ok := a.entries[name]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Close forgets the index, and closes the archive source if it is an io.Closer
func (a *Archive) Close() error {
	a.entries, a.names = nil, nil
	disk := a.disk
	a.disk = nil
	if c, ok := disk.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Member is a random-access view of one fork's uncompressed bytes
type Member struct {
	*io.SectionReader
	entry Entry
}

func (m *Member) Entry() Entry { return m.entry }
func (m *Member) Close() error { return nil }

// Open returns the uncompressed contents of a member. Errors are *MemberError.
func (a *Archive) Open(name string) (*Member, error) {
	e, ok := a.entries[name]
	if !ok {
		return nil, &MemberError{Name: name, Err: fs.ErrNotExist}
	}
	r, err := a.open(e)
	if err != nil {
		return nil, &MemberError{Name: name, Err: err}
	}
	return &Member{SectionReader: r, entry: *e}, nil
}

func (a *Archive) open(e *Entry) (*io.SectionReader, error) {
	if a.disk == nil {
		return nil, fs.ErrClosed
	}
	if e.Method.encrypted() {
		return nil, ErrPassword
	}

	switch e.Method {
	case MethodNone:
		if e.UncompressedSize > e.CompressedSize {
			return nil, fmt.Errorf("%w: stored fork of %d bytes holds only %d", ErrTruncated, e.UncompressedSize, e.CompressedSize)
		}
		data := sectionreader.Section(a.disk, e.Offset, e.UncompressedSize)
		if a.cfg.checksums {
			got, err := crcOf(io.NewSectionReader(data, 0, e.UncompressedSize))
			if err != nil {
				return nil, err
			}
			if got != e.CRC {
				return nil, fmt.Errorf("%w: got %#04x want %#04x", ErrChecksum, got, e.CRC)
			}
		}
		return io.NewSectionReader(data, 0, e.UncompressedSize), nil
	case Method14:
		buf, err := a.unpack(e)
		if err != nil {
			return nil, err
		}
		return io.NewSectionReader(bytes.NewReader(buf), 0, int64(len(buf))), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrAlgo, e.Method)
	}
}

func (a *Archive) unpack(e *Entry) ([]byte, error) {
	if e.UncompressedSize > maxExpansion(e.CompressedSize) {
		return nil, fmt.Errorf("%w: %d compressed bytes cannot expand to %d", ErrDecode, e.CompressedSize, e.UncompressedSize)
	}
	raw := sectionreader.Section(a.disk, e.Offset, e.CompressedSize)

	var (
		src io.ByteReader
		key uint64
	)
	if a.cfg.cache != nil {
		packed := make([]byte, e.CompressedSize)
		n, err := raw.ReadAt(packed, 0)
		if n < len(packed) {
			if err == io.EOF {
				err = ErrTruncated
			}
			return nil, err
		}
		key = cacheKey(e, packed)
		if buf, ok := a.cfg.cache.Get(key); ok && int64(len(buf)) == e.UncompressedSize {
			return buf, a.verify(e, buf)
		}
		src = bytes.NewReader(packed)
	} else {
		src = bufio.NewReaderSize(io.NewSectionReader(raw, 0, e.CompressedSize), 4096)
	}

	buf := make([]byte, e.UncompressedSize)
	if err := decompress14(src, buf); err != nil {
		return nil, err
	}
	if err := a.verify(e, buf); err != nil {
		return nil, err
	}
	if a.cfg.cache != nil {
		a.cfg.cache.Put(key, buf)
	}
	return buf, nil
}

func (a *Archive) verify(e *Entry, buf []byte) error {
	if !a.cfg.checksums {
		return nil
	}
	if got := calcCRC16(buf); got != e.CRC {
		return fmt.Errorf("%w: got %#04x want %#04x", ErrChecksum, got, e.CRC)
	}
	return nil
}

// cacheKey identifies decompressed output by what produced it
func cacheKey(e *Entry, packed []byte) uint64 {
	h := xxhash.New()
	var pfx [9]byte
	pfx[0] = byte(e.Method)
	binary.BigEndian.PutUint64(pfx[1:], uint64(e.UncompressedSize))
	h.Write(pfx[:])
	h.Write(packed)
	return h.Sum64()
}

func crcOf(r io.Reader) (uint16, error) {
	buf := make([]byte, 32*1024)
	var crc uint16
	for {
		n, err := r.Read(buf)
		crc = updateCRC16(crc, buf[:n])
		if err == io.EOF {
			return crc, nil
		} else if err != nil {
			return 0, err
		}
	}
}
