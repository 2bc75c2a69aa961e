package sit

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/bits"
)

// bitWriter is the mirror image of bitReader, for building method 14 streams in tests
type bitWriter struct {
	buf   []byte
	nbits uint
}

func (w *bitWriter) bits(v uint32, n int) {
	for i := range n {
		if w.nbits%8 == 0 {
			w.buf = append(w.buf, 0)
		}
		if v>>i&1 != 0 {
			w.buf[len(w.buf)-1] |= 1 << (w.nbits % 8)
		}
		w.nbits++
	}
}

func (w *bitWriter) align() { w.nbits = (w.nbits + 7) &^ 7 }

type codebook struct {
	lengths []uint8
	codes   []uint32 // bit-reversed, as assignCodes leaves them
}

func newCodebook(lengths []uint8) codebook {
	n := len(lengths)
	cb := codebook{lengths: lengths, codes: make([]uint32, n)}
	assignCodes(lengths, make([]uint8, n), make([]uint16, n), cb.codes)
	return cb
}

func (w *bitWriter) symbol(cb codebook, s int) {
	if cb.lengths[s] == 0 {
		panic(fmt.Sprintf("symbol %d has no code", s))
	}
	w.bits(cb.codes[s], int(cb.lengths[s]))
}

// tree writes code lengths with 4-bit values: 14 means zero and 15 starts a run.
// When nested, the values are themselves coded by a flat 16-symbol tree.
func (w *bitWriter) tree(lengths []uint8, nested bool) {
	w.bits(1, 1) // zero marker present
	w.bits(2, 2) // 4-bit values
	w.bits(0, 3) // lengths are value+1

	var emit func(v uint32)
	if nested {
		w.bits(1, 2)
		// the inner tree: no zero marker, 2-bit values, offset 4, every value 0
		w.bits(0, 1)
		w.bits(0, 2)
		w.bits(3, 3)
		w.bits(0, 2)
		aux := make([]uint8, 16)
		for i := range aux {
			w.bits(0, 2)
			aux[i] = 4
		}
		w.align()
		cb := newCodebook(aux)
		emit = func(v uint32) { w.symbol(cb, int(v)) }
	} else {
		w.bits(0, 2)
		emit = func(v uint32) { w.bits(v, 4) }
	}

	value := func(l uint8) uint32 {
		if l == 0 {
			return 14
		}
		return uint32(l) - 1
	}
	for i := 0; i < len(lengths); {
		run := 0
		for i+1+run < len(lengths) && run < 18 && lengths[i+1+run] == lengths[i] {
			run++
		}
		emit(value(lengths[i]))
		i++
		if run >= 3 {
			emit(15)
			emit(uint32(run - 3))
			i += run
		}
	}
	w.align()
}

// op is a literal when length is zero, otherwise a back-reference
type op struct {
	lit              byte
	length, distance int
}

func lits(s string) []op {
	ops := make([]op, len(s))
	for i := range s {
		ops[i].lit = s[i]
	}
	return ops
}

func match(length, distance int) op { return op{length: length, distance: distance} }

func bucket(base []uint32, extra []int, bias uint32, v int) int {
	for i := len(base) - 1; i >= 0; i-- {
		lo := int(base[i] + bias)
		if v >= lo && v-lo < 1<<extra[i] {
			return i
		}
	}
	panic(fmt.Sprintf("%d has no bucket", v))
}

// flatLengths gives every used symbol the same length
func flatLengths(alphabet int, used map[int]bool) []uint8 {
	lengths := make([]uint8, alphabet)
	l := uint8(max(1, bits.Len(uint(len(used)-1))))
	for s := range used {
		lengths[s] = l
	}
	return lengths
}

// encode14 produces a method 14 stream with one block per element of blocks
func encode14(nested bool, blocks ...[]op) []byte {
	w := new(bitWriter)
	w.bits(uint32(len(blocks)), 16)
	for _, ops := range blocks {
		litUsed, distUsed := map[int]bool{}, map[int]bool{}
		n := 0
		for _, o := range ops {
			if o.length == 0 {
				litUsed[int(o.lit)] = true
				n++
			} else {
				litUsed[256+bucket(lengthBase[:], lengthExtra[:], 4, o.length)] = true
				distUsed[bucket(distBase[:], distExtra[:], 0, o.distance)] = true
				n += o.length
			}
		}
		litLens := flatLengths(litCodes, litUsed)
		distLens := make([]uint8, distCodes)
		if len(distUsed) > 0 {
			distLens = flatLengths(distCodes, distUsed)
		}

		w.bits(0, 16)
		w.bits(0, 16)
		w.bits(uint32(n)&0xffff, 16)
		w.bits(uint32(n)>>16, 16)
		w.tree(litLens, nested)
		w.tree(distLens, nested)
		litCB, distCB := newCodebook(litLens), newCodebook(distLens)

		for _, o := range ops {
			if o.length == 0 {
				w.symbol(litCB, int(o.lit))
				continue
			}
			li := bucket(lengthBase[:], lengthExtra[:], 4, o.length)
			w.symbol(litCB, 256+li)
			w.bits(uint32(o.length)-lengthBase[li]-4, lengthExtra[li])
			di := bucket(distBase[:], distExtra[:], 0, o.distance)
			w.symbol(distCB, di)
			w.bits(uint32(o.distance)-distBase[di], distExtra[di])
		}
		w.align()
	}
	return w.buf
}

// expand is the obvious LZ77 interpretation of ops
func expand(blocks ...[]op) []byte {
	var out []byte
	for _, ops := range blocks {
		for _, o := range ops {
			if o.length == 0 {
				out = append(out, o.lit)
				continue
			}
			src := len(out) - o.distance
			for i := range o.length {
				out = append(out, out[src+i])
			}
		}
	}
	return out
}

type fork struct {
	method Method
	packed []byte
	size   int
	crc    uint16
}

func stored(s string) fork {
	return fork{MethodNone, []byte(s), len(s), calcCRC16([]byte(s))}
}

func compressed(blocks ...[]op) fork {
	plain := expand(blocks...)
	return fork{Method14, encode14(false, blocks...), len(plain), calcCRC16(plain)}
}

type record struct {
	name        string
	rsrc, data  fork
	marker      Method // methodFolderStart or methodFolderEnd
	markerBytes int    // bogus payload claimed by a marker
	rawName     []byte
}

func buildArchive(tag string, recs ...record) []byte {
	var b bytes.Buffer
	b.WriteString(tag)
	binary.Write(&b, binary.BigEndian, uint16(len(recs)))
	binary.Write(&b, binary.BigEndian, uint32(0))
	b.WriteString(signature2)
	b.WriteByte(1)
	b.Write(make([]byte, 7))

	for _, r := range recs {
		h := header{
			RAlgo:      r.rsrc.method,
			DAlgo:      r.data.method,
			Type:       [4]byte{'T', 'E', 'X', 'T'},
			Creator:    [4]byte{'t', 't', 'x', 't'},
			ModTime:    3000000000,
			RUnpackLen: uint32(r.rsrc.size),
			DUnpackLen: uint32(r.data.size),
			RPackLen:   uint32(len(r.rsrc.packed)),
			DPackLen:   uint32(len(r.data.packed)),
			RCRC:       r.rsrc.crc,
			DCRC:       r.data.crc,
		}
		name := r.rawName
		if name == nil {
			name = []byte(r.name)
		}
		h.NameLen = uint8(len(name))
		copy(h.NameField[:], name)
		if r.marker != 0 {
			h.RAlgo, h.DAlgo = r.marker, r.marker
			h.DPackLen = uint32(r.markerBytes)
		}

		var hb bytes.Buffer
		binary.Write(&hb, binary.BigEndian, &h)
		raw := hb.Bytes()
		binary.BigEndian.PutUint16(raw[recordHeaderSize-2:], calcCRC16(raw[:recordHeaderSize-2]))
		b.Write(raw)
		b.Write(r.rsrc.packed)
		b.Write(r.data.packed)
		if r.marker != 0 {
			b.Write(make([]byte, r.markerBytes))
		}
	}

	out := b.Bytes()
	binary.BigEndian.PutUint32(out[6:], uint32(len(out)))
	return out
}
