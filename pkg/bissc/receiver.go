// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bissc

import (
	"errors"
	"fmt"
	"time"
)

// ErrCaptureTimeout is returned by a bounded wait that never observed
// capture complete.
var ErrCaptureTimeout = errors.New("capture did not complete")

// Waiter suspends until ready reports true. It returns an error if it gives
// up first.
type Waiter func(ready func() bool) error

// Spin busy-waits on ready without a bound.
func Spin(ready func() bool) error {
	for !ready() {
	}
	return nil
}

// WaitTimeout returns a Waiter that polls ready until d has elapsed.
func WaitTimeout(d time.Duration) Waiter {
	return func(ready func() bool) error {
		deadline := time.Now().Add(d)
		for !ready() {
			if time.Now().After(deadline) {
				return fmt.Errorf("%w after %s", ErrCaptureTimeout, d)
			}
		}
		return nil
	}
}

// Receiver triggers transactions on a Peripheral and assembles the capture
// registers into RawFrames.
type Receiver struct {
	periph   Peripheral
	res      Resources
	callback func(RawFrame)
	irq      bool
}

// NewReceiver creates a receiver for the given peripheral assignment.
func NewReceiver(p Peripheral, res Resources) *Receiver {
	return &Receiver{periph: p, res: res}
}

// Shifters returns the number of receive shifters assembled per frame.
func (r *Receiver) Shifters() int {
	return r.res.Shifters
}

// ReadBlocking triggers one transaction and spins until it completes.
func (r *Receiver) ReadBlocking() (RawFrame, error) {
	return r.ReadWith(Spin)
}

// ReadWith triggers one transaction and suspends with wait until it
// completes. Registers are only read after capture complete is observed.
func (r *Receiver) ReadWith(wait Waiter) (RawFrame, error) {
	if r.irq {
		r.periph.EnableCaptureInterrupt(nil)
		r.irq = false
	}
	if err := r.periph.Trigger(); err != nil {
		return RawFrame{}, fmt.Errorf("trigger: %w", err)
	}
	if err := wait(r.periph.CaptureComplete); err != nil {
		return RawFrame{}, err
	}
	return r.assemble(), nil
}

// OnFrame registers the callback invoked from the capture interrupt with
// each completed frame.
func (r *Receiver) OnFrame(fn func(RawFrame)) {
	r.callback = fn
}

// ReadNonBlocking triggers one transaction and returns immediately. The
// frame is delivered to the OnFrame callback from the capture interrupt.
func (r *Receiver) ReadNonBlocking() error {
	if !r.irq && r.callback != nil {
		r.periph.EnableCaptureInterrupt(r.handleCapture)
		r.irq = true
	}
	if err := r.periph.Trigger(); err != nil {
		return fmt.Errorf("trigger: %w", err)
	}
	return nil
}

func (r *Receiver) handleCapture() {
	frame := r.assemble()
	if r.callback != nil {
		r.callback(frame)
	}
}

// assemble reads each receive shifter once. Words[0] is the pin shifter.
func (r *Receiver) assemble() RawFrame {
	base := r.res.ReceiveBase()
	n := r.res.Shifters
	if n > MaxShifters {
		n = MaxShifters
	}

	frame := RawFrame{Count: n}
	for i := 0; i < n; i++ {
		index := base + i
		if r.res.Order == OrderDescending {
			index = base + n - 1 - i
		}
		frame.Words[i] = r.periph.ReadCapture(index)
	}
	return frame
}
