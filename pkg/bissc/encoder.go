// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bissc

// Payload packs fields into the CRC-protected payload word, multi-turn in
// the most significant position and the warning bit at bit 0.
func Payload(cfg Config, f Fields) uint64 {
	v := uint64(f.MultiTurn) & fieldMask(cfg.MultiTurnBits)
	v = v<<uint(cfg.SingleTurnBits) | uint64(f.SingleTurn)&fieldMask(cfg.SingleTurnBits)
	v = v<<1 | boolBit(f.Error)
	v = v<<1 | boolBit(f.Warning)
	return v
}

// Encode builds the RawFrame an encoder sending f would produce, with a
// correct CRC appended.
func Encode(cfg Config, f Fields) RawFrame {
	payload := Payload(cfg, f)
	crc := payloadCRC(payload, cfg.PayloadBits())
	v := payload<<CRCBits | uint64(crc)

	frame := RawFrame{Count: cfg.ShifterCount()}
	frame.Words[0] = uint32(v)
	frame.Words[1] = uint32(v >> 32)
	return frame
}

// WireBits returns the line level for each clock tick of one transaction,
// in transmission order: the idle lead-in, delay ticks of idle line, the
// acknowledge period, start, CDS, payload and CRC. Feeding the first
// FrameBits(delay) ticks to a capture chain yields exactly one frame.
func WireBits(cfg Config, delay int, f Fields) []uint8 {
	out := make([]uint8, 0, cfg.FrameBits(delay))

	for i := 0; i < delayLeadIn+delay; i++ {
		out = append(out, 1)
	}
	for i := 0; i < cfg.Lead()-delayLeadIn+1; i++ {
		out = append(out, 0) // ack
	}
	out = append(out, 1, 0) // start, CDS

	payloadBits := cfg.PayloadBits()
	payload := Payload(cfg, f)
	out = appendBits(out, payload, payloadBits)
	out = appendBits(out, uint64(payloadCRC(payload, payloadBits)), CRCBits)
	return out
}

// appendBits appends the low n bits of v, most significant first.
func appendBits(out []uint8, v uint64, n int) []uint8 {
	for i := n - 1; i >= 0; i-- {
		out = append(out, uint8(v>>uint(i))&1)
	}
	return out
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
