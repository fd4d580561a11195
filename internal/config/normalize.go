// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

// Defaults
const (
	DefaultName           = "encoder"
	DefaultMultiTurnBits  = 12
	DefaultSingleTurnBits = 16
	DefaultPolePairs      = 1
	DefaultBaud           = "1MHz"
	DefaultSamplePeriodUs = 100
	DefaultBandwidthHz    = 50
	DefaultDamping        = 1
	DefaultPowerOffMs     = 100
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	e := &cfg.Encoder
	if e.Name == "" {
		e.Name = DefaultName
	}
	// A missing geometry selects the common 12-bit multi-turn, 16-bit
	// single-turn layout
	if e.SingleTurnBits == 0 && e.MultiTurnBits == 0 {
		e.MultiTurnBits = DefaultMultiTurnBits
		e.SingleTurnBits = DefaultSingleTurnBits
	}
	if e.PolePairs == 0 {
		e.PolePairs = DefaultPolePairs
	}
	if e.Baud == "" {
		e.Baud = DefaultBaud
	}
	if e.ShifterOrder == "" {
		e.ShifterOrder = "descending"
	}

	o := &cfg.Observer
	if o.SamplePeriodUs == 0 {
		o.SamplePeriodUs = DefaultSamplePeriodUs
	}
	if o.BandwidthHz == 0 {
		o.BandwidthHz = DefaultBandwidthHz
	}
	if o.Damping == 0 {
		o.Damping = DefaultDamping
	}

	if cfg.Hardware.PowerOffMs == 0 {
		cfg.Hardware.PowerOffMs = DefaultPowerOffMs
	}
}

// Default returns a validated, normalized configuration with every default
// applied.
func Default() *Config {
	cfg := &Config{}
	Normalize(cfg)
	return cfg
}
