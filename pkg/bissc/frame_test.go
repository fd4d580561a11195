// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bissc

import "testing"

// ============================================================
// Decode
// ============================================================

func TestDecode_Frame(t *testing.T) {
	cfg := testConfig()

	// mt=1 st=0x100, payload 0x40400, crc 0x3D
	raw := NewRawFrame(0x40400<<6|0x3D, 0)
	d := Decode(raw, cfg)

	if !d.CRCOk {
		t.Fatalf("CRC failed: received 0x%02X expected 0x%02X", d.CRC, d.ExpectedCRC)
	}
	if d.MultiTurn != 1 || d.SingleTurn != 0x100 {
		t.Errorf("MT=0x%X ST=0x%X, want MT=0x1 ST=0x100", d.MultiTurn, d.SingleTurn)
	}
	if d.Error || d.Warning {
		t.Errorf("flags err=%v warn=%v, want clear", d.Error, d.Warning)
	}
}

func TestDecode_SpansBothWords(t *testing.T) {
	cfg := Config{MultiTurnBits: 16, SingleTurnBits: 24, PolePairs: 1, BaudRate: testBaud}
	v := uint64(0x48d02af37a)<<6 | 0x36

	d := Decode(NewRawFrame(uint32(v), uint32(v>>32)), cfg)
	if !d.CRCOk {
		t.Fatalf("CRC failed")
	}
	if d.MultiTurn != 0x1234 || d.SingleTurn != 0x0ABCDE || !d.Error || d.Warning {
		t.Errorf("decoded %+v", d.Fields)
	}
}

func TestDecode_BadCRC(t *testing.T) {
	cfg := testConfig()
	d := Decode(NewRawFrame(0x40400<<6|0x3C, 0), cfg)
	if d.CRCOk {
		t.Fatal("expected CRC failure")
	}
	if d.CRC != 0x3C || d.ExpectedCRC != 0x3D {
		t.Errorf("CRC=0x%02X expected=0x%02X", d.CRC, d.ExpectedCRC)
	}
	// Fields are still extracted for diagnostics
	if d.MultiTurn != 1 || d.SingleTurn != 0x100 {
		t.Errorf("MT=0x%X ST=0x%X", d.MultiTurn, d.SingleTurn)
	}
}

func TestDecode_Flags(t *testing.T) {
	cfg := testConfig()
	tests := []struct {
		name      string
		err, warn bool
	}{
		{"none", false, false},
		{"error", true, false},
		{"warning", false, true},
		{"both", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Fields{MultiTurn: 0xFFF, SingleTurn: 0xFFFF, Error: tt.err, Warning: tt.warn}
			d := Decode(Encode(cfg, f), cfg)
			if !d.CRCOk || d.Fields != f {
				t.Errorf("decoded %+v ok=%v, want %+v", d.Fields, d.CRCOk, f)
			}
		})
	}
}

func TestDecode_SingleTurnOnly(t *testing.T) {
	cfg := Config{SingleTurnBits: 13, PolePairs: 1, BaudRate: testBaud}
	raw := NewRawFrame(0x7c<<6 | 0x3D)
	if raw.Count != 1 || cfg.ShifterCount() != 1 {
		t.Fatalf("expected a single shifter frame")
	}
	d := Decode(raw, cfg)
	if !d.CRCOk || d.MultiTurn != 0 || d.SingleTurn != 0x1F {
		t.Errorf("decoded %+v ok=%v", d.Fields, d.CRCOk)
	}
}

// ============================================================
// Encode / WireBits
// ============================================================

func TestEncode_MasksFields(t *testing.T) {
	cfg := testConfig()
	raw := Encode(cfg, Fields{MultiTurn: 0xFFFFF001, SingleTurn: 0xFFFF0100})
	if raw.Count != 2 {
		t.Errorf("Count = %d, want 2", raw.Count)
	}
	if got := raw.Value(); got != 0x40400<<6|0x3D {
		t.Errorf("Value() = 0x%X, want 0x%X", got, uint64(0x40400<<6|0x3D))
	}
}

func TestWireBits_Layout(t *testing.T) {
	cfg := testConfig()
	f := Fields{MultiTurn: 1, SingleTurn: 0x100}

	for delay := 0; delay < 8; delay++ {
		bits := WireBits(cfg, delay, f)
		if len(bits) != cfg.FrameBits(delay) {
			t.Fatalf("delay %d: %d ticks, want %d", delay, len(bits), cfg.FrameBits(delay))
		}

		i := 0
		for ; i < delayLeadIn+delay; i++ {
			if bits[i] != 1 {
				t.Fatalf("delay %d: tick %d = 0 during idle", delay, i)
			}
		}
		if bits[i] != 0 {
			t.Fatalf("delay %d: no acknowledge at tick %d", delay, i)
		}

		start := cfg.FrameBits(delay) - cfg.CaptureBits() - 2
		if bits[start] != 1 || bits[start+1] != 0 {
			t.Errorf("delay %d: start/CDS = %d%d, want 10", delay, bits[start], bits[start+1])
		}

		var v uint64
		for _, b := range bits[start+2:] {
			v = v<<1 | uint64(b)
		}
		if v != 0x40400<<6|0x3D {
			t.Errorf("delay %d: payload+CRC = 0x%X", delay, v)
		}
	}
}

// ============================================================
// Positions
// ============================================================

func TestPosition(t *testing.T) {
	cfg := testConfig()
	if got := Position(cfg, 0x1, 0x100); got != 0x10100 {
		t.Errorf("Position() = 0x%X, want 0x10100", got)
	}
	if got := Position(cfg, 0xF001, 0xF0100); got != 0x10100 {
		t.Errorf("Position() with wide inputs = 0x%X, want 0x10100", got)
	}
}

func TestSignedDelta(t *testing.T) {
	tests := []struct {
		from, to uint64
		width    int
		want     int64
	}{
		{0, 5, 28, 5},
		{10, 5, 28, -5},
		{0, 1<<28 - 1, 28, -1},
		{1<<28 - 1, 0, 28, 1},
		{0, 1 << 27, 28, -(1 << 27)},
		{0, 1<<27 - 1, 28, 1<<27 - 1},
		{3, 1, 2, -2},
	}
	for _, tt := range tests {
		if got := signedDelta(tt.from, tt.to, tt.width); got != tt.want {
			t.Errorf("signedDelta(%d, %d, %d) = %d, want %d", tt.from, tt.to, tt.width, got, tt.want)
		}
	}
}

func TestRawFrame_Slice(t *testing.T) {
	raw := NewRawFrame(0x1, 0x2, 0x3)
	if raw.Count != MaxShifters {
		t.Errorf("Count = %d, want %d", raw.Count, MaxShifters)
	}
	if s := raw.Slice(); len(s) != 2 || s[0] != 1 || s[1] != 2 {
		t.Errorf("Slice() = %v", s)
	}
	if raw.Value() != 0x200000001 {
		t.Errorf("Value() = 0x%X", raw.Value())
	}
}
