// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bissc

// RawFrame is one transaction's receive buffer as assembled from the
// capture registers. Words[0] holds the most recently shifted bits, so the
// last CRC bit received sits at bit 0 of the combined value.
type RawFrame struct {
	Words [MaxShifters]uint32
	Count int
}

// NewRawFrame builds a frame from assembled capture words.
func NewRawFrame(words ...uint32) RawFrame {
	var f RawFrame
	f.Count = copy(f.Words[:], words)
	return f
}

// Value returns the frame as one little-endian word.
func (f RawFrame) Value() uint64 {
	return uint64(f.Words[0]) | uint64(f.Words[1])<<32
}

// Slice returns the captured words.
func (f RawFrame) Slice() []uint32 {
	return f.Words[:f.Count]
}

// Fields are the protocol values carried by one frame.
type Fields struct {
	MultiTurn  uint32
	SingleTurn uint32
	Error      bool
	Warning    bool
}

// DecodedFrame is the result of decoding a RawFrame. MultiTurn and
// SingleTurn are always masked to their configured widths; CRCOk must be
// checked before the fields are trusted.
type DecodedFrame struct {
	Fields
	CRC         uint8 // received
	ExpectedCRC uint8 // computed over the received payload
	CRCOk       bool
}

// Decode extracts, from the least recently shifted end, the CRC, warning,
// error, single-turn and multi-turn fields and validates the CRC.
func Decode(raw RawFrame, cfg Config) DecodedFrame {
	v := raw.Value()

	var d DecodedFrame
	d.CRC = uint8(v & crcMask)
	v >>= CRCBits

	payloadBits := cfg.PayloadBits()
	payload := v & fieldMask(payloadBits)
	d.ExpectedCRC = payloadCRC(payload, payloadBits)
	d.CRCOk = d.ExpectedCRC == d.CRC

	d.Warning = v&1 != 0
	v >>= 1
	d.Error = v&1 != 0
	v >>= 1

	d.SingleTurn = uint32(v & fieldMask(cfg.SingleTurnBits))
	v >>= uint(cfg.SingleTurnBits)

	d.MultiTurn = uint32(v & fieldMask(cfg.MultiTurnBits))
	return d
}

// Position returns the multi-turn and single-turn fields combined into one
// count, multi-turn in the high bits.
func Position(cfg Config, multiTurn, singleTurn uint32) uint64 {
	mt := uint64(multiTurn) & fieldMask(cfg.MultiTurnBits)
	st := uint64(singleTurn) & fieldMask(cfg.SingleTurnBits)
	return mt<<uint(cfg.SingleTurnBits) | st
}

// signedDelta returns to-from modulo 2^width, sign-extended.
func signedDelta(from, to uint64, width int) int64 {
	shift := uint(64 - width)
	return int64(((to-from)&fieldMask(width))<<shift) >> shift
}
