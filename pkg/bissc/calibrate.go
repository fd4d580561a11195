// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bissc

import (
	"errors"
	"fmt"
	"math/bits"
)

// ErrNoStartPattern is returned when the trial reads show no acknowledge
// within the scan window. The encoder must be reset before the session can
// be calibrated again.
var ErrNoStartPattern = errors.New("no start pattern found")

// Calibration is the discovered response delay and the frame length
// programmed for it.
type Calibration struct {
	Delay     int // clock ticks
	FrameBits int
	Shifters  int
}

// Calibrate discovers the encoder's response delay. It programs a DelayMax
// tick frame, issues two trial reads and counts the idle-high ticks after
// the lead-in of the last one. On success the frame length timer is
// reprogrammed for the full frame. The peripheral is responsible for the
// encoder timeout between the trial reads.
func Calibrate(p Peripheral, rx *Receiver, cfg Config) (Calibration, error) {
	if err := p.SetFrameLength(DelayMax); err != nil {
		return Calibration{}, fmt.Errorf("set trial frame length: %w", err)
	}

	var raw RawFrame
	for i := 0; i < calibrationReads; i++ {
		var err error
		raw, err = rx.ReadBlocking()
		if err != nil {
			return Calibration{}, fmt.Errorf("trial read %d: %w", i+1, err)
		}
	}

	delay, ok := scanDelay(raw.Words[0])
	if !ok {
		return Calibration{}, fmt.Errorf("%w within %d ticks", ErrNoStartPattern, DelayMax)
	}

	c := Calibration{
		Delay:     delay,
		FrameBits: cfg.FrameBits(delay),
		Shifters:  rx.Shifters(),
	}
	if err := p.SetFrameLength(c.FrameBits); err != nil {
		return Calibration{}, fmt.Errorf("set frame length: %w", err)
	}
	return c, nil
}

// scanDelay counts the leading set bits of a DelayMax tick trial capture
// after discarding the lead-in. The oldest tick is at bit DelayMax-1.
func scanDelay(word uint32) (int, bool) {
	data := word << (WordBits - DelayMax + delayLeadIn)
	delay := bits.LeadingZeros32(^data)
	if delay >= delayScanWindow {
		return 0, false
	}
	return delay, true
}
