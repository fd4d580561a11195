// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bissc

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/physic"
)

// ErrInvalidConfig is returned for field widths or resources that cannot be
// captured by the peripheral.
var ErrInvalidConfig = errors.New("invalid encoder configuration")

// ShifterOrder selects how capture registers are assembled into a frame.
type ShifterOrder int

const (
	// OrderDescending reads the highest receive shifter first. The pin
	// shifter sits at the highest index and feeds the shifters below it.
	OrderDescending ShifterOrder = iota
	// OrderAscending reads the lowest receive shifter first, for peripherals
	// chained the other way round.
	OrderAscending
)

func (o ShifterOrder) String() string {
	switch o {
	case OrderDescending:
		return "descending"
	case OrderAscending:
		return "ascending"
	default:
		return fmt.Sprintf("ShifterOrder(%d)", int(o))
	}
}

// ParseShifterOrder parses "descending" or "ascending". An empty string
// selects the default descending order.
func ParseShifterOrder(s string) (ShifterOrder, error) {
	switch s {
	case "", "descending":
		return OrderDescending, nil
	case "ascending":
		return OrderAscending, nil
	default:
		return 0, fmt.Errorf("%w: unknown shifter order %q", ErrInvalidConfig, s)
	}
}

// Config is the immutable per-session encoder configuration.
type Config struct {
	MultiTurnBits  int
	SingleTurnBits int
	PolePairs      int
	BaudRate       physic.Frequency

	// Peripheral resources
	DataPin      int
	ClockPin     int
	ShifterStart int
	Timer        int
	Order        ShifterOrder

	// LeadClocks is the number of clock ticks between the end of the
	// measured delay and the start bit, covering the discarded lead-in and
	// the acknowledge period. Zero selects DefaultLeadClocks.
	LeadClocks int
}

// Validate checks that the field widths fit the capture chain.
func (c Config) Validate() error {
	if c.SingleTurnBits < 1 || c.SingleTurnBits > MaxFieldBits {
		return fmt.Errorf("%w: single-turn width %d (1-%d)", ErrInvalidConfig, c.SingleTurnBits, MaxFieldBits)
	}
	if c.MultiTurnBits < 0 || c.MultiTurnBits > MaxFieldBits {
		return fmt.Errorf("%w: multi-turn width %d (0-%d)", ErrInvalidConfig, c.MultiTurnBits, MaxFieldBits)
	}
	if c.PayloadBits() > MaxDataBits {
		return fmt.Errorf("%w: %d data bits exceed capture limit of %d", ErrInvalidConfig, c.PayloadBits(), MaxDataBits)
	}
	if c.PolePairs < 1 {
		return fmt.Errorf("%w: pole pairs %d", ErrInvalidConfig, c.PolePairs)
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("%w: baud rate %s", ErrInvalidConfig, c.BaudRate)
	}
	if c.LeadClocks != 0 && (c.LeadClocks < delayLeadIn || c.LeadClocks > maxLeadClocks) {
		return fmt.Errorf("%w: lead clocks %d (%d-%d)", ErrInvalidConfig, c.LeadClocks, delayLeadIn, maxLeadClocks)
	}
	if c.ShifterStart < 0 || c.DataPin < 0 || c.ClockPin < 0 || c.Timer < 0 {
		return fmt.Errorf("%w: negative resource index", ErrInvalidConfig)
	}
	if c.Order != OrderDescending && c.Order != OrderAscending {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, c.Order)
	}
	return nil
}

// PayloadBits is the number of CRC-protected bits: multi-turn, single-turn,
// error and warning.
func (c Config) PayloadBits() int {
	return c.MultiTurnBits + c.SingleTurnBits + statusBits
}

// CaptureBits is the number of frame bits the decoder needs from the
// capture registers.
func (c Config) CaptureBits() int {
	return c.PayloadBits() + CRCBits
}

// ShifterCount is the number of chained receive shifters needed to hold
// CaptureBits.
func (c Config) ShifterCount() int {
	if c.CaptureBits() < WordBits {
		return 1
	}
	return MaxShifters
}

// Lead returns the configured lead clock count, applying the default.
func (c Config) Lead() int {
	if c.LeadClocks == 0 {
		return DefaultLeadClocks
	}
	return c.LeadClocks
}

// FrameBits is the total transaction length in clock ticks for the given
// response delay.
func (c Config) FrameBits(delay int) int {
	return delay + c.Lead() + headerBits + c.CaptureBits()
}

// Resources returns the peripheral assignment for this configuration.
func (c Config) Resources() Resources {
	return Resources{
		DataPin:      c.DataPin,
		ClockPin:     c.ClockPin,
		ShifterStart: c.ShifterStart,
		Shifters:     c.ShifterCount(),
		Timer:        c.Timer,
		Order:        c.Order,
		BaudRate:     c.BaudRate,
	}
}

// SingleTurnCounts is the number of positions per revolution.
func (c Config) SingleTurnCounts() uint64 {
	return 1 << uint(c.SingleTurnBits)
}

func fieldMask(width int) uint64 {
	return 1<<uint(width) - 1
}

// TimerCompare returns the dual 8-bit baud/bit timer compare value for a
// frame of frameBits ticks: the upper byte counts clock edges, the lower
// byte divides the source clock down to the baud rate.
func TimerCompare(frameBits int, source, baud physic.Frequency) uint16 {
	div := int64(0)
	if baud > 0 {
		div = int64(source/baud)/2 - 1
	}
	if div < 0 {
		div = 0
	}
	edges := frameBits*2 - 1
	if edges < 0 {
		edges = 0
	}
	return uint16(edges&0xFF)<<8 | uint16(div&0xFF)
}
