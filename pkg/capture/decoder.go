// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ErrCRC is returned for a record whose checksum does not match.
var ErrCRC = errors.New("CRC mismatch")

// Decoder implements the capture record decoder state machine
type Decoder struct {
	state      int
	buffer     []byte
	length     int
	received   uint16
	escapeNext bool
}

// NewDecoder creates a new record decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:  stateIdle,
		buffer: make([]byte, 0, MaxFrameSize),
	}
}

// Reset resets the decoder state to idle
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.buffer = d.buffer[:0]
	d.length = 0
	d.received = 0
	d.escapeNext = false
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed record, or nil if the record is incomplete.
// Returns an error if decoding fails; the decoder then waits for the next
// START byte.
func (d *Decoder) DecodeByte(b byte) (*Record, error) {
	// Framing bytes are never escaped on the wire
	if !d.escapeNext {
		switch b {
		case StartByte:
			d.Reset()
			d.state = stateLength1
			return nil, nil
		case EndByte:
			return d.finish()
		case EscByte:
			d.escapeNext = true
			return nil, nil
		}
	} else {
		b ^= EscXor
		d.escapeNext = false
	}

	switch d.state {
	case stateIdle:
		// Waiting for START byte
		return nil, nil

	case stateLength1:
		d.length = int(b) << 8
		d.buffer = append(d.buffer, b)
		d.state = stateLength2

	case stateLength2:
		d.length |= int(b)
		d.buffer = append(d.buffer, b)
		if d.length > MaxPayloadSize {
			n := d.length
			d.Reset()
			return nil, fmt.Errorf("invalid length: %d (max %d)", n, MaxPayloadSize)
		}
		if d.length == 0 {
			d.state = stateCRC1
		} else {
			d.state = statePayload
		}

	case statePayload:
		d.buffer = append(d.buffer, b)
		if len(d.buffer) >= lengthSize+d.length {
			d.state = stateCRC1
		}

	case stateCRC1:
		d.received = uint16(b) << 8
		d.state = stateCRC2

	case stateCRC2:
		d.received |= uint16(b)
		d.state = stateEnd

	default:
		d.Reset()
		return nil, fmt.Errorf("unexpected byte 0x%02X after CRC", b)
	}
	return nil, nil
}

// finish validates a completed frame on END.
func (d *Decoder) finish() (*Record, error) {
	state := d.state
	defer d.Reset()

	if state != stateEnd {
		if state == stateIdle {
			return nil, nil
		}
		return nil, fmt.Errorf("unexpected END byte in state %d", state)
	}

	calculated := CalculateCRC(d.buffer)
	if calculated != d.received {
		return nil, fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrCRC, calculated, d.received)
	}

	var r Record
	if err := cbor.Unmarshal(d.buffer[lengthSize:], &r); err != nil {
		return nil, fmt.Errorf("failed to decode CBOR record: %w", err)
	}
	return &r, nil
}
