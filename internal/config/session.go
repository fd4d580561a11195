// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"time"

	"github.com/Thermoquad/bisscope/pkg/bissc"
	"github.com/Thermoquad/bisscope/pkg/simulator"
	"github.com/Thermoquad/bisscope/pkg/spicapture"
)

// Session converts a normalized configuration into the immutable encoder
// and observer configuration.
func (c *Config) Session() (bissc.Config, bissc.ObserverConfig, error) {
	baud, err := parseBaud(c.Encoder.Baud)
	if err != nil {
		return bissc.Config{}, bissc.ObserverConfig{}, err
	}
	order, err := bissc.ParseShifterOrder(c.Encoder.ShifterOrder)
	if err != nil {
		return bissc.Config{}, bissc.ObserverConfig{}, err
	}

	enc := bissc.Config{
		MultiTurnBits:  c.Encoder.MultiTurnBits,
		SingleTurnBits: c.Encoder.SingleTurnBits,
		PolePairs:      c.Encoder.PolePairs,
		BaudRate:       baud,
		DataPin:        c.Encoder.DataPin,
		ClockPin:       c.Encoder.ClockPin,
		ShifterStart:   c.Encoder.ShifterStart,
		Timer:          c.Encoder.Timer,
		Order:          order,
		LeadClocks:     c.Encoder.LeadClocks,
	}
	if err := enc.Validate(); err != nil {
		return bissc.Config{}, bissc.ObserverConfig{}, err
	}

	obs := bissc.ObserverConfig{
		SamplePeriod: c.SamplePeriod(),
		BandwidthHz:  c.Observer.BandwidthHz,
		Damping:      c.Observer.Damping,
	}
	if err := obs.Validate(); err != nil {
		return bissc.Config{}, bissc.ObserverConfig{}, err
	}
	return enc, obs, nil
}

// SamplePeriod returns the control tick period.
func (c *Config) SamplePeriod() time.Duration {
	return time.Duration(c.Observer.SamplePeriodUs) * time.Microsecond
}

// Limits returns the validator bounds.
func (c *Config) Limits() bissc.Limits {
	return bissc.Limits{
		MaxJumpCounts: c.Fault.MaxJumpCounts,
		MaxSpeedRPM:   c.Fault.MaxSpeedRPM,
	}
}

// SimulatorOptions returns the simulated encoder options.
func (c *Config) SimulatorOptions() simulator.Options {
	return simulator.Options{
		Delay:        c.Simulator.Delay,
		SpeedRPM:     c.Simulator.SpeedRPM,
		SamplePeriod: c.SamplePeriod(),
		NoiseCounts:  c.Simulator.NoiseCounts,
		CRCErrorRate: c.Simulator.CRCErrorRate,
		ErrorBit:     c.Simulator.ErrorBit,
		WarningBit:   c.Simulator.WarningBit,
		Seed:         c.Simulator.Seed,
	}
}

// SPIOptions returns the SPI capture options.
func (c *Config) SPIOptions() spicapture.Options {
	return spicapture.Options{
		Port:     c.Hardware.SPIPort,
		PowerPin: c.Hardware.PowerPin,
		PowerOff: time.Duration(c.Hardware.PowerOffMs) * time.Millisecond,
	}
}
