// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package simulator provides a software BiSS-C encoder behind the
// bissc.Peripheral interface. Each transaction renders the encoder's line
// levels tick by tick into a capture shift chain, so calibration, frame
// assembly and decoding run exactly as they would against hardware.
package simulator

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/Thermoquad/bisscope/pkg/bissc"
	"periph.io/x/conn/v3/physic"
)

// ErrNotConfigured is returned when a transaction is triggered before
// Configure.
var ErrNotConfigured = errors.New("simulator: peripheral not configured")

// SourceClock is the simulated peripheral clock used for timer compare
// values.
const SourceClock = 120 * physic.MegaHertz

// Options describe the simulated encoder.
type Options struct {
	Delay        int     // response delay in clock ticks
	SpeedRPM     float64 // shaft speed
	SamplePeriod time.Duration

	StartMultiTurn  uint32
	StartSingleTurn uint32

	NoiseCounts  int     // uniform single-turn noise amplitude
	CRCErrorRate float64 // probability of a corrupted CRC per frame
	ErrorBit     bool
	WarningBit   bool

	Seed int64
}

// Encoder is a simulated encoder and capture peripheral.
type Encoder struct {
	cfg  bissc.Config
	opts Options
	rng  *rand.Rand

	res        bissc.Resources
	chain      *bissc.ShiftChain
	configured bool
	frameLen   int
	compare    uint16
	complete   bool
	irq        func()
	powered    bool

	position     float64 // combined position in single-turn counts
	transactions uint64
	last         bissc.Fields
}

// New creates a powered encoder for cfg.
func New(cfg bissc.Config, opts Options) *Encoder {
	if opts.SamplePeriod <= 0 {
		opts.SamplePeriod = 100 * time.Microsecond
	}
	e := &Encoder{
		cfg:     cfg,
		opts:    opts,
		rng:     rand.New(rand.NewSource(opts.Seed)),
		powered: true,
	}
	e.position = float64(bissc.Position(cfg, opts.StartMultiTurn, opts.StartSingleTurn))
	return e
}

// Configure implements bissc.Peripheral.
func (e *Encoder) Configure(res bissc.Resources) error {
	if res.Shifters < 1 || res.Shifters > bissc.MaxShifters {
		return fmt.Errorf("simulator: %d receive shifters", res.Shifters)
	}
	if res.BaudRate <= 0 {
		return fmt.Errorf("simulator: baud rate %s", res.BaudRate)
	}
	e.res = res
	e.chain = bissc.NewShiftChain(res.Shifters, res.Order)
	e.configured = true
	return nil
}

// SetFrameLength implements bissc.Peripheral.
func (e *Encoder) SetFrameLength(ticks int) error {
	if ticks < 1 || ticks > 127 {
		return fmt.Errorf("simulator: frame length %d ticks", ticks)
	}
	e.frameLen = ticks
	e.compare = bissc.TimerCompare(ticks, SourceClock, e.res.BaudRate)
	return nil
}

// Trigger implements bissc.Peripheral. The transaction completes before
// Trigger returns and the capture interrupt, if enabled, runs synchronously.
func (e *Encoder) Trigger() error {
	if !e.configured {
		return ErrNotConfigured
	}
	e.complete = false
	e.transactions++

	bits := e.wire()
	e.chain.Reset()
	for i := 0; i < e.frameLen; i++ {
		bit := uint8(1)
		if i < len(bits) {
			bit = bits[i]
		}
		e.chain.Shift(bit)
	}

	e.complete = true
	if e.irq != nil {
		e.irq()
	}
	return nil
}

// CaptureComplete implements bissc.Peripheral.
func (e *Encoder) CaptureComplete() bool {
	return e.complete
}

// ReadCapture implements bissc.Peripheral.
func (e *Encoder) ReadCapture(index int) uint32 {
	if e.chain == nil {
		return 0
	}
	return e.chain.Register(index - e.res.ReceiveBase())
}

// EnableCaptureInterrupt implements bissc.Peripheral.
func (e *Encoder) EnableCaptureInterrupt(fn func()) {
	e.irq = fn
}

// PowerCycle implements bissc.PowerCycler.
func (e *Encoder) PowerCycle() error {
	e.powered = true
	return nil
}

// SetPowered switches the encoder supply. An unpowered encoder leaves the
// data line idle high.
func (e *Encoder) SetPowered(on bool) {
	e.powered = on
}

// SetDelay changes the response delay, as a cable change would.
func (e *Encoder) SetDelay(ticks int) {
	e.opts.Delay = ticks
}

// SetSpeed changes the shaft speed.
func (e *Encoder) SetSpeed(rpm float64) {
	e.opts.SpeedRPM = rpm
}

// FrameLength returns the programmed transaction length in ticks.
func (e *Encoder) FrameLength() int {
	return e.frameLen
}

// TimerCompare returns the timer compare value for the programmed frame.
func (e *Encoder) TimerCompare() uint16 {
	return e.compare
}

// Transactions returns the number of triggered transactions.
func (e *Encoder) Transactions() uint64 {
	return e.transactions
}

// LastFields returns the fields sent in the most recent transaction.
func (e *Encoder) LastFields() bissc.Fields {
	return e.last
}

// Fields returns the fields the encoder would send for the current shaft
// position, without noise.
func (e *Encoder) Fields() bissc.Fields {
	return e.fieldsAt(e.position, 0)
}

// wire advances the shaft and renders one transaction's line levels.
func (e *Encoder) wire() []uint8 {
	if !e.powered {
		return nil
	}

	e.advance()
	noise := 0
	if e.opts.NoiseCounts > 0 {
		noise = e.rng.Intn(2*e.opts.NoiseCounts+1) - e.opts.NoiseCounts
	}
	e.last = e.fieldsAt(e.position, noise)

	bits := bissc.WireBits(e.cfg, e.opts.Delay, e.last)
	if e.opts.CRCErrorRate > 0 && e.rng.Float64() < e.opts.CRCErrorRate {
		bits[len(bits)-1] ^= 1
	}
	return bits
}

func (e *Encoder) advance() {
	counts := float64(e.cfg.SingleTurnCounts())
	e.position += e.opts.SpeedRPM / 60 * counts * e.opts.SamplePeriod.Seconds()

	span := counts * math.Exp2(float64(e.cfg.MultiTurnBits))
	e.position = math.Mod(e.position, span)
	if e.position < 0 {
		e.position += span
	}
}

func (e *Encoder) fieldsAt(position float64, noise int) bissc.Fields {
	counts := e.cfg.SingleTurnCounts()
	span := counts << uint(e.cfg.MultiTurnBits)

	p := (uint64(math.Floor(position)) + uint64(int64(noise))) % span
	return bissc.Fields{
		MultiTurn:  uint32(p / counts),
		SingleTurn: uint32(p % counts),
		Error:      e.opts.ErrorBit,
		Warning:    e.opts.WarningBit,
	}
}
