// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simulator

import (
	"errors"
	"testing"
	"time"

	"github.com/Thermoquad/bisscope/pkg/bissc"
	"periph.io/x/conn/v3/physic"
)

func testConfig() bissc.Config {
	return bissc.Config{
		MultiTurnBits:  12,
		SingleTurnBits: 16,
		PolePairs:      1,
		BaudRate:       physic.MegaHertz,
	}
}

// readFrame triggers one transaction and decodes it
func readFrame(t *testing.T, e *Encoder, cfg bissc.Config) bissc.DecodedFrame {
	t.Helper()
	rx := bissc.NewReceiver(e, cfg.Resources())
	raw, err := rx.ReadBlocking()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return bissc.Decode(raw, cfg)
}

// distance returns how many counts f is from the combined position want
func distance(cfg bissc.Config, f bissc.Fields, want uint64) uint64 {
	span := uint64(1) << uint(cfg.MultiTurnBits+cfg.SingleTurnBits)
	got := bissc.Position(cfg, f.MultiTurn, f.SingleTurn)
	d := (got - want) % span
	if d > span/2 {
		d = span - d
	}
	return d
}

func configured(t *testing.T, cfg bissc.Config, opts Options) *Encoder {
	t.Helper()
	e := New(cfg, opts)
	if err := e.Configure(cfg.Resources()); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := e.SetFrameLength(cfg.FrameBits(opts.Delay)); err != nil {
		t.Fatalf("SetFrameLength: %v", err)
	}
	return e
}

func TestEncoder_NotConfigured(t *testing.T) {
	e := New(testConfig(), Options{})
	if err := e.Trigger(); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
	if e.CaptureComplete() {
		t.Error("capture complete without a transaction")
	}
	if e.ReadCapture(1) != 0 {
		t.Error("capture register set without a transaction")
	}
}

func TestEncoder_ConfigureRejects(t *testing.T) {
	cfg := testConfig()
	res := cfg.Resources()

	bad := res
	bad.Shifters = 3
	if err := New(cfg, Options{}).Configure(bad); err == nil {
		t.Error("accepted three shifters")
	}
	bad = res
	bad.BaudRate = 0
	if err := New(cfg, Options{}).Configure(bad); err == nil {
		t.Error("accepted zero baud rate")
	}
}

func TestEncoder_FrameLength(t *testing.T) {
	e := configured(t, testConfig(), Options{Delay: 2})
	for _, ticks := range []int{0, 128} {
		if err := e.SetFrameLength(ticks); err == nil {
			t.Errorf("accepted %d ticks", ticks)
		}
	}
	if err := e.SetFrameLength(46); err != nil {
		t.Fatal(err)
	}
	if e.FrameLength() != 46 || e.TimerCompare() != 0x5B3B {
		t.Errorf("frame length %d compare 0x%04X", e.FrameLength(), e.TimerCompare())
	}
}

func TestEncoder_SendsPosition(t *testing.T) {
	cfg := testConfig()
	e := configured(t, cfg, Options{Delay: 3, StartMultiTurn: 0x12, StartSingleTurn: 0x3456})

	d := readFrame(t, e, cfg)
	if !d.CRCOk || d.MultiTurn != 0x12 || d.SingleTurn != 0x3456 {
		t.Errorf("decoded %+v ok=%v", d.Fields, d.CRCOk)
	}
	if e.LastFields() != d.Fields || e.Fields() != d.Fields {
		t.Errorf("LastFields %+v Fields %+v", e.LastFields(), e.Fields())
	}
	if e.Transactions() != 1 {
		t.Errorf("Transactions() = %d", e.Transactions())
	}
}

func TestEncoder_Rotates(t *testing.T) {
	cfg := testConfig()
	// 60 RPM at 1 ms: 65.536 counts per transaction
	opts := Options{Delay: 1, SpeedRPM: 60, SamplePeriod: time.Millisecond}
	e := configured(t, cfg, opts)

	for i := 0; i < 1000; i++ {
		readFrame(t, e, cfg)
	}
	// One full revolution
	if d := distance(cfg, e.LastFields(), 1<<16); d > 1 {
		t.Errorf("after one revolution: %+v", e.LastFields())
	}

	e.SetSpeed(-120)
	for i := 0; i < 1000; i++ {
		readFrame(t, e, cfg)
	}
	// Two revolutions back, across zero
	if d := distance(cfg, e.LastFields(), 0xFFF<<16); d > 1 {
		t.Errorf("after reversing: %+v", e.LastFields())
	}
}

func TestEncoder_Noise(t *testing.T) {
	cfg := testConfig()
	e := configured(t, cfg, Options{Delay: 0, StartSingleTurn: 1000, NoiseCounts: 4, Seed: 7})

	for i := 0; i < 200; i++ {
		d := readFrame(t, e, cfg)
		if !d.CRCOk {
			t.Fatal("noise corrupted the CRC")
		}
		if d.SingleTurn < 996 || d.SingleTurn > 1004 {
			t.Fatalf("single turn %d outside noise band", d.SingleTurn)
		}
	}
}

func TestEncoder_StatusAndCRCErrors(t *testing.T) {
	cfg := testConfig()
	e := configured(t, cfg, Options{Delay: 2, ErrorBit: true, CRCErrorRate: 1})
	d := readFrame(t, e, cfg)
	if d.CRCOk {
		t.Error("CRC error rate 1 produced a valid frame")
	}
	if !d.Error || d.Warning {
		t.Errorf("flags err=%v warn=%v", d.Error, d.Warning)
	}
}

func TestEncoder_Unpowered(t *testing.T) {
	cfg := testConfig()
	e := configured(t, cfg, Options{Delay: 2})
	e.SetPowered(false)

	rx := bissc.NewReceiver(e, cfg.Resources())
	raw, err := rx.ReadBlocking()
	if err != nil {
		t.Fatal(err)
	}
	// Idle line reads as all ones
	if want := uint64(1)<<uint(cfg.FrameBits(2)) - 1; raw.Value() != want {
		t.Errorf("unpowered capture 0x%X, want 0x%X", raw.Value(), want)
	}

	if err := e.PowerCycle(); err != nil {
		t.Fatal(err)
	}
	if d := readFrame(t, e, cfg); !d.CRCOk {
		t.Error("no valid frame after power cycle")
	}
}

func TestEncoder_Interrupt(t *testing.T) {
	cfg := testConfig()
	e := configured(t, cfg, Options{Delay: 2})
	calls := 0
	e.EnableCaptureInterrupt(func() {
		if !e.CaptureComplete() {
			t.Error("interrupt before capture complete")
		}
		calls++
	})
	for i := 0; i < 3; i++ {
		if err := e.Trigger(); err != nil {
			t.Fatal(err)
		}
	}
	e.EnableCaptureInterrupt(nil)
	if err := e.Trigger(); err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("interrupt ran %d times, want 3", calls)
	}
}
