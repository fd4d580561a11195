// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package spicapture clocks a BiSS-C encoder from a Linux SPI controller.
//
// SCLK drives the encoder clock (idle high, SPI mode 2) and MISO samples
// the encoder data line. One full-duplex transfer is one transaction; the
// received bits are fed through a capture shift chain so that frames are
// assembled exactly as from a bit-timing peripheral.
package spicapture

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/bisscope/pkg/bissc"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// ErrAlreadyConfigured is returned when Configure is called twice; an SPI
// port can only be connected once.
var ErrAlreadyConfigured = errors.New("spicapture: already configured")

// Options select the SPI port and optional encoder power switch.
type Options struct {
	Port     string // spireg name, empty for the first port
	PowerPin string // gpioreg name, empty if the supply is not switched
	PowerOff time.Duration
	Timeout  time.Duration // idle time between transfers, DefaultTimeout if zero
}

// DefaultTimeout covers the encoder's post-frame timeout before it accepts
// the next start condition.
const DefaultTimeout = 30 * time.Microsecond

// Capture is a bissc.Peripheral backed by an SPI port.
type Capture struct {
	opts  Options
	port  spi.PortCloser
	conn  spi.Conn
	power gpio.PinIO

	res      bissc.Resources
	chain    *bissc.ShiftChain
	frameLen int
	tx, rx   []byte
	complete bool
	lastDone time.Time
	irq      func()
}

// Open initialises the host drivers and opens the SPI port.
func Open(opts Options) (*Capture, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("spicapture: %w", err)
	}

	p, err := spireg.Open(opts.Port)
	if err != nil {
		return nil, fmt.Errorf("spicapture: %w", err)
	}

	c := &Capture{opts: opts, port: p}
	if opts.PowerPin != "" {
		c.power = gpioreg.ByName(opts.PowerPin)
		if c.power == nil {
			p.Close()
			return nil, fmt.Errorf("spicapture: unknown power pin %q", opts.PowerPin)
		}
		if err := c.power.Out(gpio.High); err != nil {
			p.Close()
			return nil, fmt.Errorf("spicapture: %w", err)
		}
	}
	return c, nil
}

// Close releases the SPI port.
func (c *Capture) Close() error {
	return c.port.Close()
}

// Configure implements bissc.Peripheral. Pin and timer indices are fixed by
// the SPI controller; the baud rate sets the SPI clock.
func (c *Capture) Configure(res bissc.Resources) error {
	if c.conn != nil {
		return ErrAlreadyConfigured
	}
	if res.Shifters < 1 || res.Shifters > bissc.MaxShifters {
		return fmt.Errorf("spicapture: %d receive shifters", res.Shifters)
	}

	sc, err := c.port.Connect(res.BaudRate, spi.Mode2, 8)
	if err != nil {
		return fmt.Errorf("spicapture: %w", err)
	}
	c.conn = sc
	c.res = res
	c.chain = bissc.NewShiftChain(res.Shifters, res.Order)
	return nil
}

// SetFrameLength implements bissc.Peripheral. The transfer is rounded up
// to whole bytes; clocks beyond the frame are ignored.
func (c *Capture) SetFrameLength(ticks int) error {
	if ticks < 1 {
		return fmt.Errorf("spicapture: frame length %d ticks", ticks)
	}
	n := (ticks + 7) / 8
	if lim, ok := c.conn.(conn.Limits); ok && n > lim.MaxTxSize() {
		return fmt.Errorf("spicapture: %d byte transfer exceeds controller limit %d", n, lim.MaxTxSize())
	}
	c.frameLen = ticks
	c.tx = make([]byte, n)
	c.rx = make([]byte, n)
	return nil
}

// Trigger implements bissc.Peripheral. The transfer is synchronous; the
// capture interrupt callback, if enabled, runs before Trigger returns.
func (c *Capture) Trigger() error {
	if c.conn == nil || c.frameLen == 0 {
		return errors.New("spicapture: not configured")
	}
	c.complete = false

	if wait := idleWait(c.lastDone, time.Now(), c.opts.Timeout); wait > 0 {
		time.Sleep(wait)
	}
	err := c.conn.Tx(c.tx, c.rx)
	c.lastDone = time.Now()
	if err != nil {
		return fmt.Errorf("spicapture: %w", err)
	}

	shiftIn(c.chain, c.rx, c.frameLen)

	c.complete = true
	if c.irq != nil {
		c.irq()
	}
	return nil
}

// CaptureComplete implements bissc.Peripheral.
func (c *Capture) CaptureComplete() bool {
	return c.complete
}

// ReadCapture implements bissc.Peripheral.
func (c *Capture) ReadCapture(index int) uint32 {
	if c.chain == nil {
		return 0
	}
	return c.chain.Register(index - c.res.ReceiveBase())
}

// EnableCaptureInterrupt implements bissc.Peripheral.
func (c *Capture) EnableCaptureInterrupt(fn func()) {
	c.irq = fn
}

// PowerCycle implements bissc.PowerCycler. It does nothing when the
// supply is not switched.
func (c *Capture) PowerCycle() error {
	if c.power == nil {
		return nil
	}
	off := c.opts.PowerOff
	if off <= 0 {
		off = 100 * time.Millisecond
	}
	if err := c.power.Out(gpio.Low); err != nil {
		return fmt.Errorf("spicapture: %w", err)
	}
	time.Sleep(off)
	if err := c.power.Out(gpio.High); err != nil {
		return fmt.Errorf("spicapture: %w", err)
	}
	// Encoder start-up time
	time.Sleep(off)
	return nil
}

// idleWait returns how long to hold the clock idle before the next transfer
// so that at least timeout has passed since done.
func idleWait(done, now time.Time, timeout time.Duration) time.Duration {
	if done.IsZero() {
		return 0
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return timeout - now.Sub(done)
}

// shiftIn feeds the first ticks bits of rx, most significant bit of each
// byte first, into a freshly reset chain.
func shiftIn(chain *bissc.ShiftChain, rx []byte, ticks int) {
	chain.Reset()
	for i := 0; i < ticks && i/8 < len(rx); i++ {
		chain.Shift(rx[i/8] >> uint(7-i%8) & 1)
	}
}
