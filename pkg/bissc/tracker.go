// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bissc

import (
	"errors"
	"fmt"
)

// ErrCRCMismatch is returned when a frame fails its CRC check. The frame
// contributes nothing to the position estimate.
var ErrCRCMismatch = errors.New("CRC mismatch")

// Mode is the zero reference state of a Tracker.
type Mode int

const (
	// Uncalibrated: absolute position is relative to an arbitrary zero.
	Uncalibrated Mode = iota
	// Calibrated: an offset has been latched.
	Calibrated
)

func (m Mode) String() string {
	switch m {
	case Uncalibrated:
		return "UNCALIBRATED"
	case Calibrated:
		return "CALIBRATED"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Offsets is the latched zero reference.
type Offsets struct {
	MultiTurn  uint32
	SingleTurn uint32
}

// Estimate is the tracker output for one valid frame.
type Estimate struct {
	MultiTurn  uint32 // offset-corrected
	SingleTurn uint32 // offset-corrected

	MechanicalAngle int32 // measured
	FilteredAngle   int32
	ElectricalAngle int32
	Speed           float64 // mechanical rad/s

	Counts      int64 // absolute position in single-turn counts
	Revolutions float64

	Mode Mode
}

// RPM returns the mechanical speed in revolutions per minute.
func (e Estimate) RPM() float64 {
	return RPM(e.Speed)
}

// Tracker converts decoded frames into a continuous mechanical angle,
// absolute position, speed and electrical angle.
type Tracker struct {
	cfg      Config
	observer *TrackingObserver
	offsets  Offsets
	mode     Mode

	phaseErr int32 // fed to the next observer step
	last     Estimate
	valid    bool
}

// NewTracker creates an uncalibrated tracker.
func NewTracker(cfg Config, obs ObserverConfig) (*Tracker, error) {
	o, err := NewTrackingObserver(obs)
	if err != nil {
		return nil, err
	}
	return &Tracker{
		cfg:      cfg,
		observer: o,
	}, nil
}

// Mode returns the current zero reference state.
func (t *Tracker) Mode() Mode {
	return t.mode
}

// Offsets returns the latched zero reference.
func (t *Tracker) Offsets() Offsets {
	return t.offsets
}

// Last returns the most recent estimate.
func (t *Tracker) Last() (Estimate, bool) {
	return t.last, t.valid
}

// Update runs one tracker step. A frame that failed its CRC check returns
// ErrCRCMismatch and leaves all state untouched.
func (t *Tracker) Update(d DecodedFrame) (Estimate, error) {
	if !d.CRCOk {
		return Estimate{}, fmt.Errorf("%w: received 0x%02X, expected 0x%02X", ErrCRCMismatch, d.CRC, d.ExpectedCRC)
	}

	st := uint32(uint64(d.SingleTurn-t.offsets.SingleTurn) & fieldMask(t.cfg.SingleTurnBits))
	mt := uint32(uint64(d.MultiTurn-t.offsets.MultiTurn) & fieldMask(t.cfg.MultiTurnBits))
	raw := t.singleTurnAngle(st)

	// The observer consumes the previous tick's phase error.
	filtered := t.observer.Step(t.phaseErr)
	t.phaseErr = raw - filtered

	counts := t.counts(d)
	t.last = Estimate{
		MultiTurn:       mt,
		SingleTurn:      st,
		MechanicalAngle: raw,
		FilteredAngle:   filtered,
		ElectricalAngle: int32(uint32(filtered) * uint32(t.cfg.PolePairs)),
		Speed:           t.observer.Speed(),
		Counts:          counts,
		Revolutions:     float64(counts) / float64(t.cfg.SingleTurnCounts()),
		Mode:            t.mode,
	}
	t.valid = true
	return t.last, nil
}

// LatchOffset takes the fields of d as the new zero reference. The
// observer estimate is shifted with the reference so tracking continues
// without a step.
func (t *Tracker) LatchOffset(d DecodedFrame) error {
	if !d.CRCOk {
		return fmt.Errorf("latch offset: %w", ErrCRCMismatch)
	}
	prev := t.singleTurnAngle(t.offsets.SingleTurn)
	next := t.singleTurnAngle(d.SingleTurn)
	t.observer.Rebase(next - prev)

	t.offsets = Offsets{MultiTurn: d.MultiTurn, SingleTurn: d.SingleTurn}
	t.mode = Calibrated
	return nil
}

// Clear drops the offsets and observer state. Only used when the whole
// session is reinitialised.
func (t *Tracker) Clear() {
	t.observer.Reset()
	t.offsets = Offsets{}
	t.mode = Uncalibrated
	t.phaseErr = 0
	t.last = Estimate{}
	t.valid = false
}

// singleTurnAngle scales a single-turn count to a wrapping angle.
func (t *Tracker) singleTurnAngle(st uint32) int32 {
	return int32(st << uint(WordBits-t.cfg.SingleTurnBits))
}

// counts subtracts the combined offset from the combined position modulo
// the combined width and sign-extends the result.
func (t *Tracker) counts(d DecodedFrame) int64 {
	pos := Position(t.cfg, d.MultiTurn, d.SingleTurn)
	off := Position(t.cfg, t.offsets.MultiTurn, t.offsets.SingleTurn)
	return signedDelta(off, pos, t.cfg.MultiTurnBits+t.cfg.SingleTurnBits)
}
