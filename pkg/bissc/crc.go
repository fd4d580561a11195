// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bissc

import "math/bits"

// CRC6 computes the BiSS-C CRC-6 (x^6 + x + 1, initial value 0, inverted
// result) over the low bitLength bits of words, most significant bit first.
//
// words holds the bits least significant first: words[0] carries bits 0-31,
// words[1] bits 32-63. Bits above bitLength are ignored and bitLength is
// clamped to the size of the buffer.
func CRC6(words []uint32, bitLength int) uint8 {
	if limit := len(words) * WordBits; bitLength > limit {
		bitLength = limit
	}

	var crc uint8
	for n := bitLength; n > 0; {
		rem := n & (WordBits - 1)
		var w uint32
		if rem != 0 {
			w = words[n>>5]
		} else {
			rem = WordBits
			w = words[n>>5-1]
		}
		// Reverse so the most significant remaining bit is consumed first.
		w = bits.Reverse32(w) >> uint(WordBits-rem)
		n -= rem

		for ; rem > 0; rem-- {
			b0 := (uint8(w) ^ crc>>5) & 1
			b1 := (crc ^ b0) & 1
			crc = (crc<<1)&0xFC | b1<<1 | b0
			w >>= 1
		}
	}
	return ^crc & crcMask
}

// ValidateCRC reports whether received matches the CRC-6 of the first
// bitLength bits of words. An empty bit range is always consistent.
func ValidateCRC(words []uint32, bitLength int, received uint8) bool {
	if bitLength <= 0 {
		return true
	}
	return CRC6(words, bitLength) == received&crcMask
}

// payloadCRC computes the CRC-6 of the low n bits of v.
func payloadCRC(v uint64, n int) uint8 {
	words := [2]uint32{uint32(v), uint32(v >> 32)}
	return CRC6(words[:], n)
}
