// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture stores and streams raw BiSS-C frames.
//
// A capture stream is a sequence of records. Each record is a CBOR map with
// integer keys, framed as
//
//	START | stuffed(length:2, cbor, crc16:2) | END
//
// where the CRC-16-CCITT covers the length and CBOR bytes, and START, END
// and ESC bytes inside the frame are escaped.
package capture

// Framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Record size limits
const (
	MaxPayloadSize = 512
	lengthSize     = 2
	crcSize        = 2
	MaxFrameSize   = lengthSize + MaxPayloadSize + crcSize
)

// Decoder states
const (
	stateIdle = iota
	stateLength1
	stateLength2
	statePayload
	stateCRC1
	stateCRC2
	stateEnd
)
