package sit

import (
	"io"
)

// bitReader hands out bits least-significant first within each byte.
// Running off the end is not an error: the missing bits read as zero and
// atEnd reports true, so callers can bound their loops on it.
type bitReader struct {
	r     io.ByteReader
	cur   byte
	nleft uint // unread bits remaining in cur
	eof   bool
	rerr  error
}

func newBitReader(r io.ByteReader) *bitReader {
	return &bitReader{r: r}
}

func (br *bitReader) bit() uint32 {
	if br.nleft == 0 {
		if br.eof {
			return 0
		}
		b, err := br.r.ReadByte()
		if err != nil {
			br.eof = true
			if err != io.EOF {
				br.rerr = err
			}
			return 0
		}
		br.cur, br.nleft = b, 8
	}
	v := uint32(br.cur & 1)
	br.cur >>= 1
	br.nleft--
	return v
}

func (br *bitReader) bits(n int) uint32 {
	var v uint32
	for i := range n {
		v |= br.bit() << i
	}
	return v
}

// align drops whatever is left of a partly consumed byte
func (br *bitReader) align() {
	br.cur, br.nleft = 0, 0
}

func (br *bitReader) atEnd() bool { return br.eof }

// err is the first read error other than io.EOF
func (br *bitReader) err() error { return br.rerr }
