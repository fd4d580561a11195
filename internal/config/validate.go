// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"
	"time"

	"github.com/Thermoquad/bisscope/pkg/bissc"
	"periph.io/x/conn/v3/physic"
)

// maxSimulatedDelay is the largest delay calibration can resolve.
const maxSimulatedDelay = bissc.DelayMax - 3

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
// Zero values that Normalize replaces with defaults are accepted.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	// ------------------------------------------------------------
	// ENCODER
	// ------------------------------------------------------------

	e := cfg.Encoder
	if e.SingleTurnBits < 0 || e.SingleTurnBits > bissc.MaxFieldBits {
		return fmt.Errorf("encoder: single_turn_bits=%d out of range 1-%d", e.SingleTurnBits, bissc.MaxFieldBits)
	}
	if e.MultiTurnBits < 0 || e.MultiTurnBits > bissc.MaxFieldBits {
		return fmt.Errorf("encoder: multi_turn_bits=%d out of range 0-%d", e.MultiTurnBits, bissc.MaxFieldBits)
	}
	if e.SingleTurnBits == 0 && e.MultiTurnBits != 0 {
		return fmt.Errorf("encoder: single_turn_bits is required when multi_turn_bits is set")
	}
	if data := e.MultiTurnBits + e.SingleTurnBits + 2; data > bissc.MaxDataBits {
		return fmt.Errorf("encoder: %d data bits exceed the capture limit of %d", data, bissc.MaxDataBits)
	}
	if e.PolePairs < 0 {
		return fmt.Errorf("encoder: pole_pairs=%d must not be negative", e.PolePairs)
	}
	if e.Baud != "" {
		if _, err := parseBaud(e.Baud); err != nil {
			return fmt.Errorf("encoder: %w", err)
		}
	}
	if e.LeadClocks != 0 && (e.LeadClocks < 2 || e.LeadClocks > 16) {
		return fmt.Errorf("encoder: lead_clocks=%d out of range 2-16", e.LeadClocks)
	}
	if e.DataPin < 0 || e.ClockPin < 0 || e.ShifterStart < 0 || e.Timer < 0 {
		return fmt.Errorf("encoder: resource indices must not be negative")
	}
	if _, err := bissc.ParseShifterOrder(e.ShifterOrder); err != nil {
		return fmt.Errorf("encoder: %w", err)
	}

	// ------------------------------------------------------------
	// OBSERVER
	// ------------------------------------------------------------

	o := cfg.Observer
	if o.SamplePeriodUs < 0 {
		return fmt.Errorf("observer: sample_period_us=%d must not be negative", o.SamplePeriodUs)
	}
	if o.BandwidthHz < 0 || o.Damping < 0 {
		return fmt.Errorf("observer: bandwidth_hz and damping must not be negative")
	}
	// Check the loop with the values Normalize will fill in
	obs := bissc.ObserverConfig{
		SamplePeriod: time.Duration(orDefault(o.SamplePeriodUs, DefaultSamplePeriodUs)) * time.Microsecond,
		BandwidthHz:  orDefaultFloat(o.BandwidthHz, DefaultBandwidthHz),
		Damping:      orDefaultFloat(o.Damping, DefaultDamping),
	}
	if err := obs.Validate(); err != nil {
		return fmt.Errorf("observer: %w", err)
	}

	// ------------------------------------------------------------
	// HARDWARE / FAULT
	// ------------------------------------------------------------

	if cfg.Hardware.PowerOffMs < 0 {
		return fmt.Errorf("hardware: power_off_ms=%d must not be negative", cfg.Hardware.PowerOffMs)
	}
	f := cfg.Fault
	if f.CRCThreshold < 0 || f.MaxSpeedRPM < 0 || f.MaxJumpCounts < 0 {
		return fmt.Errorf("fault: limits must not be negative")
	}

	// ------------------------------------------------------------
	// SIMULATOR
	// ------------------------------------------------------------

	s := cfg.Simulator
	if s.Delay < 0 || s.Delay > maxSimulatedDelay {
		return fmt.Errorf("simulator: delay=%d out of range 0-%d", s.Delay, maxSimulatedDelay)
	}
	if s.NoiseCounts < 0 {
		return fmt.Errorf("simulator: noise_counts=%d must not be negative", s.NoiseCounts)
	}
	if s.CRCErrorRate < 0 || s.CRCErrorRate > 1 {
		return fmt.Errorf("simulator: crc_error_rate=%g out of range 0-1", s.CRCErrorRate)
	}

	return nil
}

func parseBaud(s string) (physic.Frequency, error) {
	var f physic.Frequency
	if err := f.Set(s); err != nil {
		return 0, fmt.Errorf("baud %q: %w", s, err)
	}
	if f <= 0 {
		return 0, fmt.Errorf("baud %q must be positive", s)
	}
	return f, nil
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
