// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the bisscope YAML session configuration.
//
// Loading follows three stages: Load parses, Validate checks without
// mutating, Normalize fills defaults. Session converts the result into the
// immutable encoder and observer configuration.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Encoder   EncoderConfig   `yaml:"encoder"`
	Observer  ObserverConfig  `yaml:"observer"`
	Hardware  HardwareConfig  `yaml:"hardware"`
	Fault     FaultConfig     `yaml:"fault"`
	Simulator SimulatorConfig `yaml:"simulator"`
}

// ---- ENCODER ----

type EncoderConfig struct {
	Name           string `yaml:"name"`
	MultiTurnBits  int    `yaml:"multi_turn_bits"`
	SingleTurnBits int    `yaml:"single_turn_bits"`
	PolePairs      int    `yaml:"pole_pairs"`
	Baud           string `yaml:"baud"` // e.g. "1MHz", "2.5MHz"
	LeadClocks     int    `yaml:"lead_clocks"`

	// Peripheral resources
	DataPin      int    `yaml:"data_pin"`
	ClockPin     int    `yaml:"clock_pin"`
	ShifterStart int    `yaml:"shifter_start"`
	Timer        int    `yaml:"timer"`
	ShifterOrder string `yaml:"shifter_order"` // descending | ascending
}

// ---- OBSERVER ----

type ObserverConfig struct {
	SamplePeriodUs int     `yaml:"sample_period_us"`
	BandwidthHz    float64 `yaml:"bandwidth_hz"`
	Damping        float64 `yaml:"damping"`
}

// ---- HARDWARE ----

type HardwareConfig struct {
	SPIPort    string `yaml:"spi_port"`
	PowerPin   string `yaml:"power_pin"`
	PowerOffMs int    `yaml:"power_off_ms"`
}

// ---- FAULT POLICY ----

type FaultConfig struct {
	CRCThreshold  int     `yaml:"crc_threshold"` // consecutive CRC errors before fault
	MaxSpeedRPM   float64 `yaml:"max_speed_rpm"`
	MaxJumpCounts int64   `yaml:"max_jump_counts"`
}

// ---- SIMULATOR ----

type SimulatorConfig struct {
	Delay        int     `yaml:"delay"`
	SpeedRPM     float64 `yaml:"speed_rpm"`
	NoiseCounts  int     `yaml:"noise_counts"`
	CRCErrorRate float64 `yaml:"crc_error_rate"`
	ErrorBit     bool    `yaml:"error_bit"`
	WarningBit   bool    `yaml:"warning_bit"`
	Seed         int64   `yaml:"seed"`
}

// Load reads a YAML configuration file. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML configuration. An empty document yields a zero
// Config.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
