/*
StuffIt file archiver client

XAD library system for archive handling
Copyright (C) 1998 and later by Dirk Stoecker <soft@dstoecker.de>

little based on macutils 2.0b3 macunpack by Dik T. Winter
Copyright (C) 1992 Dik T. Winter <dik@cwi.nl>

ported to Go
Copyright (C) 2025 Elliot Nunn

This library is free software; you can redistribute it and/or
modify it under the terms of the GNU Lesser General Public
License as published by the Free Software Foundation; either
version 2.1 of the License, or (at your option) any later version.

This library is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
Lesser General Public License for more details.

You should have received a copy of the GNU Lesser General Public
License along with this library; if not, write to the Free Software
Foundation, Inc., 59 Temple Place, Suite 330, Boston, MA  02111-1307  USA
*/

package sit

import (
	"fmt"
	"io"
	"math"
)

// Method 14: two Huffman tables rebuilt for every block, plus a 256 KiB history window

const (
	WindowSize = 0x40000
	windowMask = WindowSize - 1

	litCodes  = 308 // 256 literals + 52 length buckets
	distCodes = 75
	auxMax    = 32 // largest alphabet of a tree that encodes another tree
)

var (
	lengthBase  [litCodes - 256]uint32
	lengthExtra [litCodes - 256]int
	distBase    [distCodes]uint32
	distExtra   [distCodes]int
)

func init() {
	k := uint32(0)
	for i := range lengthBase {
		lengthBase[i] = k
		if i >= 4 {
			lengthExtra[i] = (i - 4) >> 2
		}
		k += 1 << lengthExtra[i]
	}
	k = 1
	for i := range distBase {
		distBase[i] = k
		if i >= 3 {
			distExtra[i] = (i - 3) >> 2
		}
		k += 1 << distExtra[i]
	}
}

// maxExpansion bounds the output of n compressed bytes, as if every bit began a longest match
func maxExpansion(n int64) int64 {
	last := len(lengthBase) - 1
	longest := int64(lengthBase[last]) + 4 + 1<<lengthExtra[last] - 1
	return n * 8 * longest
}

// All the working memory for one member. Never shared between goroutines.
type decoder14 struct {
	br *bitReader

	code     [litCodes]uint8
	codecopy [litCodes]uint8
	freq     [litCodes]uint16
	buff     [litCodes]uint32
	aux      [2 * auxMax]uint16

	lit  [2 * litCodes]uint16
	dist [2 * distCodes]uint16

	window [WindowSize]byte
}

// decompress14 fills dst exactly, or fails
func decompress14(r io.ByteReader, dst []byte) error {
	d := &decoder14{br: newBitReader(r)}
	br := d.br

	out, wpos := 0, 0
	for blocks := br.bits(16); blocks > 0 && out < len(dst) && !br.atEnd(); blocks-- {
		br.bits(16) // crunched block size, unused
		br.bits(16)
		n := br.bits(16)
		n |= br.bits(16) << 16

		if err := d.readTree(litCodes, d.lit[:]); err != nil {
			return err
		}
		if err := d.readTree(distCodes, d.dist[:]); err != nil {
			return err
		}

		for n > 0 && out < len(dst) && !br.atEnd() {
			sym, err := d.symbol(d.lit[:], litCodes)
			if err != nil {
				return err
			}
			if sym < 256 {
				dst[out] = byte(sym)
				d.window[wpos] = byte(sym)
				out++
				wpos = (wpos + 1) & windowMask
				n--
				continue
			}

			sym -= 256
			length := lengthBase[sym] + 4
			if lengthExtra[sym] != 0 {
				length += br.bits(lengthExtra[sym])
			}

			dsym, err := d.symbol(d.dist[:], distCodes)
			if err != nil {
				return err
			}
			distance := distBase[dsym]
			if distExtra[dsym] != 0 {
				distance += br.bits(distExtra[dsym])
			}
			if distance > WindowSize {
				return fmt.Errorf("%w: match distance %d", ErrDecode, distance)
			}
			if length > n && int64(length) < int64(len(dst)-out) {
				return fmt.Errorf("%w: match of %d bytes overruns block", ErrDecode, length)
			}

			// ascending order matters when distance < length
			src := (wpos + WindowSize - int(distance)) & windowMask
			for c := uint32(0); c < length && out < len(dst); c++ {
				b := d.window[src]
				dst[out] = b
				d.window[wpos] = b
				out++
				src = (src + 1) & windowMask
				wpos = (wpos + 1) & windowMask
			}
			n -= min(n, length)
		}
		br.align()
	}

	if err := br.err(); err != nil {
		return err
	}
	if out < len(dst) || br.atEnd() {
		return fmt.Errorf("%w: got %d of %d bytes", ErrTruncated, out, len(dst))
	}
	return nil
}

// symbol walks a decode table from the root, one bit per step
func (d *decoder14) symbol(table []uint16, alphabet int) (int, error) {
	leaf := uint32(2 * alphabet)
	node := uint32(0)
	for {
		node = uint32(table[node+d.br.bit()])
		if node >= leaf {
			return int(node - leaf), nil
		} else if node == 0 {
			return 0, fmt.Errorf("%w: unassigned Huffman code", ErrDecode)
		}
	}
}

// readTree decodes one table of 2*codesize cells into result.
// A tree may itself be encoded with a smaller tree, hence the recursion.
func (d *decoder14) readTree(codesize int, result []uint16) error {
	br := d.br
	k0 := br.bits(1)
	j := br.bits(2) + 2
	o := br.bits(3) + 1
	size := uint32(1) << j
	m := size - 1 // run marker
	k := uint32(math.MaxUint32)
	if k0 != 0 {
		k = m - 1 // zero-length marker
	}

	var value func() (uint32, error)
	if br.bits(2)&1 != 0 {
		aux := d.aux[:2*size]
		if err := d.readTree(int(size), aux); err != nil {
			return err
		}
		value = func() (uint32, error) {
			sym, err := d.symbol(aux, int(size))
			return uint32(sym), err
		}
	} else {
		value = func() (uint32, error) { return br.bits(int(j)), nil }
	}

	code := d.code[:codesize]
	for i := 0; i < codesize; {
		l, err := value()
		if err != nil {
			return err
		}
		switch l {
		case k:
			code[i] = 0
			i++
		case m:
			run, err := value()
			if err != nil {
				return err
			}
			if i == 0 {
				return fmt.Errorf("%w: code length run with no predecessor", ErrDecode)
			}
			for run += 3; run > 0 && i < codesize; run-- {
				code[i] = code[i-1]
				i++
			}
		default:
			code[i] = uint8(l + o)
			i++
		}
	}

	assignCodes(code, d.codecopy[:codesize], d.freq[:codesize], d.buff[:])

	limit := uint32(2 * codesize)
	clear(result[:limit])
	next := uint32(2)
	for i := range codesize {
		n := uint32(code[i])
		bits := d.buff[i]
		l := uint32(0)
		for b := uint32(0); b < n; b++ {
			l += bits & 1
			if l >= limit {
				return fmt.Errorf("%w: Huffman code collision", ErrDecode)
			}
			if b == n-1 {
				result[l] = uint16(limit + uint32(i))
			} else {
				if result[l] == 0 {
					if next >= limit {
						return fmt.Errorf("%w: oversubscribed Huffman tree", ErrDecode)
					}
					result[l] = uint16(next)
					next += 2
				}
				l = uint32(result[l])
			}
			bits >>= 1
		}
	}

	br.align()
	return nil
}

// assignCodes gives every symbol with a nonzero length a canonical code,
// stored bit-reversed in buff so that it can be consumed LSB first.
func assignCodes(code, codecopy []uint8, freq []uint16, buff []uint32) {
	n := len(code)
	for i := range n {
		codecopy[i] = code[i]
		freq[i] = uint16(i)
	}
	update14(0, n, codecopy, freq)

	i := 0
	for i < n && codecopy[i] == 0 {
		i++
	}
	for c := uint32(0); i < n; i, c = i+1, c+1 {
		if i != 0 {
			c <<= codecopy[i] - codecopy[i-1]
		}
		var rev uint32
		l := c
		for range codecopy[i] {
			rev = rev<<1 | l&1
			l >>= 1
		}
		buff[freq[i]] = rev
	}
}

// update14 sorts code ascending and carries freq along with it.
// The tie order decides which symbol gets which canonical code,
// so the partition scheme must not change.
func update14(first, last int, code []uint8, freq []uint16) {
	for last-first > 1 {
		i, j := first, last
		for {
			i++
			for i < last && code[first] > code[i] {
				i++
			}
			j--
			for j > first && code[first] < code[j] {
				j--
			}
			if j <= i {
				break
			}
			code[i], code[j] = code[j], code[i]
			freq[i], freq[j] = freq[j], freq[i]
		}

		if first == j {
			first++
			continue
		}
		code[first], code[j] = code[j], code[first]
		freq[first], freq[j] = freq[j], freq[first]

		i = j + 1
		if last-i <= j-first {
			update14(i, last, code, freq)
			last = j
		} else {
			update14(first, j, code, freq)
			first = i
		}
	}
}
