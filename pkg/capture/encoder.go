// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Encoder encodes records for storage or transmission.
// Handles CBOR encoding, byte stuffing, and CRC calculation.
type Encoder struct {
	mode cbor.EncMode
}

// NewEncoder creates a new record encoder.
func NewEncoder() *Encoder {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("capture: cbor encode options: %v", err))
	}
	return &Encoder{mode: mode}
}

// Encode encodes a Record to wire format, including framing and byte
// stuffing.
func (e *Encoder) Encode(r *Record) ([]byte, error) {
	payload, err := e.mode.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode CBOR record: %w", err)
	}
	return EncodeFrame(payload)
}

// EncodeFrame frames an already encoded payload.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("record too large: %d bytes (max %d)", len(payload), MaxPayloadSize)
	}

	// Length (big-endian) + payload is what gets CRC'd and byte-stuffed
	data := make([]byte, 0, lengthSize+len(payload)+crcSize)
	data = append(data, byte(len(payload)>>8), byte(len(payload)))
	data = append(data, payload...)

	crc := CalculateCRC(data)
	data = append(data, byte(crc>>8), byte(crc))

	stuffed := stuffBytes(data)

	frame := make([]byte, 0, len(stuffed)+2)
	frame = append(frame, StartByte)
	frame = append(frame, stuffed...)
	frame = append(frame, EndByte)
	return frame, nil
}

// stuffBytes escapes START, END and ESC as ESC + (byte XOR EscXor).
func stuffBytes(data []byte) []byte {
	result := make([]byte, 0, len(data)*2)
	for _, b := range data {
		switch b {
		case StartByte, EndByte, EscByte:
			result = append(result, EscByte, b^EscXor)
		default:
			result = append(result, b)
		}
	}
	return result
}
