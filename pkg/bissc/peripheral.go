// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bissc

import "periph.io/x/conn/v3/physic"

// Resources is the pin, shifter and timer assignment handed to a
// Peripheral. The trigger shifter is at ShifterStart and the receive
// shifters follow it.
type Resources struct {
	DataPin      int
	ClockPin     int
	ShifterStart int
	Shifters     int
	Timer        int
	Order        ShifterOrder
	BaudRate     physic.Frequency
}

// ReceiveBase is the index of the first receive shifter.
func (r Resources) ReceiveBase() int {
	return r.ShifterStart + ReceiveShifter
}

// Peripheral is the programmable bit-timing peripheral that clocks the
// encoder and captures its response.
type Peripheral interface {
	// Configure assigns pins, shifters and the timer and sets the baud rate.
	Configure(res Resources) error

	// SetFrameLength programs the number of clock ticks per transaction.
	SetFrameLength(ticks int) error

	// Trigger starts one transaction.
	Trigger() error

	// CaptureComplete reports whether the last triggered transaction has
	// finished. Capture registers are undefined until it returns true.
	CaptureComplete() bool

	// ReadCapture returns the bit-swapped contents of the shifter at the
	// given absolute index.
	ReadCapture(index int) uint32

	// EnableCaptureInterrupt registers fn to run when a capture completes.
	// A nil fn disables the interrupt.
	EnableCaptureInterrupt(fn func())
}

// PowerCycler is implemented by peripherals that can switch the encoder
// supply.
type PowerCycler interface {
	PowerCycle() error
}
