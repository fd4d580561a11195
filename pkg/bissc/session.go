// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bissc

import (
	"errors"
	"fmt"
	"log"
	"time"
)

// ErrNotCalibrated is returned when a frame is requested before delay
// calibration succeeded.
var ErrNotCalibrated = errors.New("session not calibrated")

// Sink receives the estimate for every frame that passed its CRC check.
// Nothing is published for a failed frame; the consumer keeps its last
// value.
type Sink interface {
	Publish(e Estimate)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(e Estimate)

// Publish calls f(e).
func (f SinkFunc) Publish(e Estimate) {
	f(e)
}

// Result describes one processed frame.
type Result struct {
	Time      time.Time
	Raw       RawFrame
	Frame     DecodedFrame
	Estimate  Estimate
	Anomalies []ValidationError
	Published bool
}

// Session owns the configuration, calibration, offsets and tracker state of
// one encoder. It is not safe for concurrent use; callers serialise access
// between interrupt callbacks and foreground code.
type Session struct {
	name    string
	cfg     Config
	periph  Peripheral
	rx      *Receiver
	tracker *Tracker
	stats   *Statistics
	limits  Limits
	sink    Sink

	calib      Calibration
	calibrated bool

	prev     DecodedFrame
	hasPrev  bool
	onResult func(Result, error)
}

// NewSession validates cfg and obs, configures the peripheral and programs a
// conservative frame length until Calibrate runs.
func NewSession(name string, cfg Config, obs ObserverConfig, p Peripheral, sink Sink) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tracker, err := NewTracker(cfg, obs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	res := cfg.Resources()
	if p != nil {
		if err := p.Configure(res); err != nil {
			return nil, fmt.Errorf("%s: configure peripheral: %w", name, err)
		}
		if err := p.SetFrameLength(cfg.FrameBits(DelayMax)); err != nil {
			return nil, fmt.Errorf("%s: set frame length: %w", name, err)
		}
	}

	s := &Session{
		name:    name,
		cfg:     cfg,
		periph:  p,
		rx:      NewReceiver(p, res),
		tracker: tracker,
		stats:   NewStatistics(),
		sink:    sink,
	}
	s.rx.OnFrame(s.handleFrame)
	return s, nil
}

// Name returns the session name used in log messages.
func (s *Session) Name() string {
	return s.name
}

// Config returns the session configuration.
func (s *Session) Config() Config {
	return s.cfg
}

// SetLimits sets the validator bounds.
func (s *Session) SetLimits(l Limits) {
	s.limits = l
}

// OnResult registers a callback for frames completed through Trigger.
func (s *Session) OnResult(fn func(Result, error)) {
	s.onResult = fn
}

// Calibrate runs delay calibration. A failure leaves the session
// uncalibrated; it is not retried.
func (s *Session) Calibrate() (Calibration, error) {
	if s.periph == nil {
		return Calibration{}, fmt.Errorf("%s: no peripheral", s.name)
	}
	s.calibrated = false

	c, err := Calibrate(s.periph, s.rx, s.cfg)
	if err != nil {
		log.Printf("%s: calibration failed: %v", s.name, err)
		return Calibration{}, fmt.Errorf("%s: %w", s.name, err)
	}

	s.calib = c
	s.calibrated = true
	log.Printf("%s: calibrated, %s", s.name, FormatCalibration(c))
	return c, nil
}

// Calibration returns the current calibration, if any.
func (s *Session) Calibration() (Calibration, bool) {
	return s.calib, s.calibrated
}

// Invalidate discards the calibration after the encoder was power-cycled or
// disconnected.
func (s *Session) Invalidate() {
	if s.calibrated {
		log.Printf("%s: calibration invalidated", s.name)
	}
	s.calibrated = false
	s.hasPrev = false
}

// Reinit power-cycles the encoder when the peripheral supports it, drops
// the offsets and tracker state and calibrates again. The current run of
// CRC errors is cleared so a later fault is detected afresh.
func (s *Session) Reinit() (Calibration, error) {
	s.Invalidate()
	s.stats.ClearRun()
	if pc, ok := s.periph.(PowerCycler); ok {
		if err := pc.PowerCycle(); err != nil {
			return Calibration{}, fmt.Errorf("%s: power cycle: %w", s.name, err)
		}
	}
	s.tracker.Clear()
	return s.Calibrate()
}

// Tick reads one frame with a blocking spin and processes it.
func (s *Session) Tick() (Result, error) {
	return s.TickWith(Spin)
}

// TickWith reads one frame, suspending with wait, and processes it.
func (s *Session) TickWith(wait Waiter) (Result, error) {
	if !s.calibrated {
		return Result{}, ErrNotCalibrated
	}
	raw, err := s.rx.ReadWith(wait)
	if err != nil {
		s.stats.RecordMissed()
		return Result{}, fmt.Errorf("%s: read: %w", s.name, err)
	}
	return s.Process(raw)
}

// Trigger starts a non-blocking read. The frame is processed from the
// capture interrupt and reported through OnResult.
func (s *Session) Trigger() error {
	if !s.calibrated {
		return ErrNotCalibrated
	}
	if err := s.rx.ReadNonBlocking(); err != nil {
		s.stats.RecordMissed()
		return fmt.Errorf("%s: %w", s.name, err)
	}
	return nil
}

func (s *Session) handleFrame(raw RawFrame) {
	res, err := s.Process(raw)
	if s.onResult != nil {
		s.onResult(res, err)
	}
}

// Process decodes, validates and tracks one raw frame. Frames that fail
// their CRC check return ErrCRCMismatch and publish nothing.
func (s *Session) Process(raw RawFrame) (Result, error) {
	d := Decode(raw, s.cfg)

	var prev *DecodedFrame
	if s.hasPrev {
		prev = &s.prev
	}
	res := Result{
		Time:      time.Now(),
		Raw:       raw,
		Frame:     d,
		Anomalies: ValidateFrame(d, prev, s.cfg, s.limits),
	}
	s.stats.Update(d, res.Anomalies)

	est, err := s.tracker.Update(d)
	if err != nil {
		return res, err
	}
	s.prev = d
	s.hasPrev = true

	overspeed := ValidateEstimate(est, s.limits)
	s.stats.RecordAnomalies(overspeed)
	res.Anomalies = append(res.Anomalies, overspeed...)

	res.Estimate = est
	if s.sink != nil {
		s.sink.Publish(est)
		res.Published = true
	}
	return res, nil
}

// LatchOffset takes the last valid frame as the zero reference.
func (s *Session) LatchOffset() error {
	if !s.hasPrev {
		return fmt.Errorf("%s: latch offset: no valid frame", s.name)
	}
	if err := s.tracker.LatchOffset(s.prev); err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	log.Printf("%s: offset latched at MT=0x%X ST=0x%X", s.name, s.prev.MultiTurn, s.prev.SingleTurn)
	return nil
}

// Mode returns the tracker's zero reference state.
func (s *Session) Mode() Mode {
	return s.tracker.Mode()
}

// Offsets returns the latched zero reference.
func (s *Session) Offsets() Offsets {
	return s.tracker.Offsets()
}

// Last returns the most recent estimate.
func (s *Session) Last() (Estimate, bool) {
	return s.tracker.Last()
}

// Stats returns the running statistics.
func (s *Session) Stats() *Statistics {
	return s.stats
}
