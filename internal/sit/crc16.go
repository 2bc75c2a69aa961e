package sit

import (
	"encoding/binary"
)

// CRC-16/ARC, the same polynomial StuffIt uses for fork and header checksums
var crctab [256]uint16

func init() {
	for i := range uint16(256) {
		k := i
		for range 8 {
			if k&1 != 0 {
				k = (k >> 1) ^ 0xa001
			} else {
				k >>= 1
			}
		}
		crctab[i] = k
	}
}

func updateCRC16(crc uint16, buf []byte) uint16 {
	for _, ch := range buf {
		crc = crctab[byte(crc)^ch] ^ crc>>8
	}
	return crc
}

func calcCRC16(buf []byte) uint16 { return updateCRC16(0, buf) }

// checkHeaderCRC16 compares the CRC of buf[:field] against the big-endian value stored at field
func checkHeaderCRC16(buf []byte, field int) bool {
	return calcCRC16(buf[:field]) == binary.BigEndian.Uint16(buf[field:])
}
