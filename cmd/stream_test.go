// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/Thermoquad/bisscope/internal/config"
	"github.com/Thermoquad/bisscope/pkg/bissc"
	"github.com/Thermoquad/bisscope/pkg/capture"
	"periph.io/x/conn/v3/physic"
)

// ============================================================
// Helpers
// ============================================================

func testStreamConfig(t *testing.T) (*config.Config, bissc.Config) {
	t.Helper()
	cfg := config.Default()
	enc, _, err := cfg.Session()
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	return cfg, enc
}

// encodeRecords frames records into one capture stream
func encodeRecords(t *testing.T, records ...*capture.Record) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := capture.NewWriter(&buf)
	for _, r := range records {
		if err := w.Write(r); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	return buf.Bytes()
}

func collectRecords(t *testing.T, data []byte) ([]*capture.Record, []error) {
	t.Helper()
	var records []*capture.Record
	var errs []error
	err := readRecords(bytes.NewReader(data), func(rec *capture.Record, err error) bool {
		if err != nil {
			errs = append(errs, err)
			return true
		}
		records = append(records, rec)
		return true
	})
	if err != nil {
		t.Fatalf("readRecords: %v", err)
	}
	return records, errs
}

// ============================================================
// readRecords
// ============================================================

func TestReadRecords_SkipsGarbageBeforeSync(t *testing.T) {
	_, enc := testStreamConfig(t)
	now := time.Now()
	stream := encodeRecords(t,
		capture.FrameRecord(1, bissc.Encode(enc, bissc.Fields{SingleTurn: 1}), now),
		capture.FrameRecord(2, bissc.Encode(enc, bissc.Fields{SingleTurn: 2}), now),
	)

	// Truncated record and noise before the first complete one
	data := append([]byte{0x01, capture.StartByte, 0x00, capture.EndByte, 0x55}, stream...)
	records, errs := collectRecords(t, data)

	if len(errs) != 0 {
		t.Errorf("got %d errors before sync, want 0: %v", len(errs), errs)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[1].Sequence != 2 {
		t.Errorf("second record sequence = %d, want 2", records[1].Sequence)
	}
}

func TestReadRecords_ReportsErrorsAfterSync(t *testing.T) {
	_, enc := testStreamConfig(t)
	now := time.Now()
	first := encodeRecords(t, capture.FrameRecord(1, bissc.Encode(enc, bissc.Fields{}), now))

	// Empty CBOR map with a zero checksum
	bad := []byte{capture.StartByte, 0x00, 0x01, 0xA0, 0x00, 0x00, capture.EndByte}

	data := append(append(append([]byte(nil), first...), bad...), first...)
	records, errs := collectRecords(t, data)
	if len(records) != 2 {
		t.Errorf("got %d records, want 2", len(records))
	}
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(errs))
	}
	if !errors.Is(errs[0], capture.ErrCRC) {
		t.Errorf("error = %v, want ErrCRC", errs[0])
	}
}

func TestReadRecords_Stop(t *testing.T) {
	_, enc := testStreamConfig(t)
	now := time.Now()
	data := encodeRecords(t,
		capture.FrameRecord(1, bissc.Encode(enc, bissc.Fields{}), now),
		capture.FrameRecord(2, bissc.Encode(enc, bissc.Fields{}), now),
	)

	n := 0
	err := readRecords(bytes.NewReader(data), func(rec *capture.Record, err error) bool {
		n++
		return false
	})
	if err != nil {
		t.Fatalf("readRecords: %v", err)
	}
	if n != 1 {
		t.Errorf("callback ran %d times, want 1", n)
	}
}

// ============================================================
// streamSession
// ============================================================

func TestStreamSession_Frames(t *testing.T) {
	cfg, enc := testStreamConfig(t)
	ss, err := newStreamSession(cfg, nil)
	if err != nil {
		t.Fatalf("newStreamSession: %v", err)
	}

	ts := time.Unix(1700000000, 0)
	rec := capture.FrameRecord(1, bissc.Encode(enc, bissc.Fields{MultiTurn: 3, SingleTurn: 0x1234}), ts)
	res, err := ss.Handle(rec)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res == nil {
		t.Fatal("Handle returned no result for a frame record")
	}
	if res.Frame.MultiTurn != 3 || res.Frame.SingleTurn != 0x1234 {
		t.Errorf("decoded MT=%d ST=0x%X, want MT=3 ST=0x1234", res.Frame.MultiTurn, res.Frame.SingleTurn)
	}
	if !res.Time.Equal(ts) {
		t.Errorf("result time = %v, want record time %v", res.Time, ts)
	}

	raw := bissc.Encode(enc, bissc.Fields{MultiTurn: 3, SingleTurn: 0x1235})
	raw.Words[0] ^= 0x01
	res, err = ss.Handle(capture.FrameRecord(2, raw, ts))
	if !errors.Is(err, bissc.ErrCRCMismatch) {
		t.Errorf("corrupted frame error = %v, want ErrCRCMismatch", err)
	}
	if res == nil || res.Frame.CRCOk {
		t.Error("corrupted frame should return a result with CRCOk=false")
	}
	if got := ss.Session().Stats().CRCErrors; got != 1 {
		t.Errorf("CRCErrors = %d, want 1", got)
	}
}

func TestStreamSession_SessionRecordResets(t *testing.T) {
	cfg, enc := testStreamConfig(t)
	ss, err := newStreamSession(cfg, nil)
	if err != nil {
		t.Fatalf("newStreamSession: %v", err)
	}
	if _, err := ss.Handle(capture.FrameRecord(1, bissc.Encode(enc, bissc.Fields{}), time.Now())); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	other := bissc.Config{
		MultiTurnBits:  8,
		SingleTurnBits: 20,
		PolePairs:      2,
		BaudRate:       2 * physic.MegaHertz,
	}
	calib := bissc.Calibration{Delay: 3, FrameBits: other.FrameBits(3)}
	res, err := ss.Handle(capture.SessionRecord("spindle", other, calib, time.Now()))
	if err != nil || res != nil {
		t.Fatalf("session record: res=%v err=%v, want nil, nil", res, err)
	}

	s := ss.Session()
	if s.Name() != "spindle" {
		t.Errorf("Name = %q, want spindle", s.Name())
	}
	if s.Config().SingleTurnBits != 20 || s.Config().MultiTurnBits != 8 {
		t.Errorf("config MT%d/ST%d, want MT8/ST20", s.Config().MultiTurnBits, s.Config().SingleTurnBits)
	}
	if s.Stats().TotalFrames != 0 {
		t.Errorf("TotalFrames = %d after reset, want 0", s.Stats().TotalFrames)
	}
	if ss.calib.Delay != 3 {
		t.Errorf("calibration delay = %d, want 3", ss.calib.Delay)
	}

	res, err = ss.Handle(capture.FrameRecord(2, bissc.Encode(other, bissc.Fields{SingleTurn: 0xABCDE}), time.Now()))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Frame.SingleTurn != 0xABCDE {
		t.Errorf("ST = 0x%X, want 0xABCDE", res.Frame.SingleTurn)
	}
}

func TestStreamSession_RejectsInvalidSession(t *testing.T) {
	cfg, _ := testStreamConfig(t)
	ss, err := newStreamSession(cfg, nil)
	if err != nil {
		t.Fatalf("newStreamSession: %v", err)
	}

	bad := bissc.Config{SingleTurnBits: 0, BaudRate: physic.MegaHertz}
	if _, err := ss.Handle(capture.SessionRecord("bad", bad, bissc.Calibration{}, time.Now())); err == nil {
		t.Error("expected error for a session record with no single-turn bits")
	}
	if ss.Session().Name() != cfg.Encoder.Name {
		t.Errorf("failed session record replaced the session")
	}
}

func TestFormatRecord(t *testing.T) {
	_, enc := testStreamConfig(t)

	other := enc
	other.SingleTurnBits = 20
	out := formatRecord(capture.SessionRecord("spindle", other, bissc.Calibration{Delay: 2}, time.Now()), &enc)
	if !bytes.Contains([]byte(out), []byte("SESSION spindle")) {
		t.Errorf("session output %q missing name", out)
	}
	if enc.SingleTurnBits != 20 {
		t.Errorf("session record did not replace the configuration")
	}

	out = formatRecord(capture.FrameRecord(7, bissc.Encode(enc, bissc.Fields{}), time.Now()), &enc)
	if !bytes.HasPrefix([]byte(out), []byte("#7 ")) {
		t.Errorf("frame output %q missing sequence", out)
	}
}
