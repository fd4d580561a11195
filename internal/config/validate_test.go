// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/bisscope/pkg/bissc"
	"periph.io/x/conn/v3/physic"
)

const sampleYAML = `
encoder:
  name: spindle
  multi_turn_bits: 16
  single_turn_bits: 24
  pole_pairs: 7
  baud: 2.5MHz
  lead_clocks: 3
  shifter_order: ascending
observer:
  sample_period_us: 50
  bandwidth_hz: 80
fault:
  crc_threshold: 5
  max_speed_rpm: 6000
simulator:
  delay: 3
  speed_rpm: 120
  seed: 42
`

// ---- load ----

func TestParse_Sample(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	Normalize(cfg)

	enc, obs, err := cfg.Session()
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if enc.MultiTurnBits != 16 || enc.SingleTurnBits != 24 || enc.PolePairs != 7 {
		t.Errorf("geometry = %d/%d/%d, want 16/24/7", enc.MultiTurnBits, enc.SingleTurnBits, enc.PolePairs)
	}
	if enc.BaudRate != 2500*physic.KiloHertz {
		t.Errorf("BaudRate = %s, want 2.5MHz", enc.BaudRate)
	}
	if enc.Order != bissc.OrderAscending {
		t.Errorf("Order = %s, want ascending", enc.Order)
	}
	if enc.LeadClocks != 3 {
		t.Errorf("LeadClocks = %d, want 3", enc.LeadClocks)
	}
	if obs.SamplePeriod != 50*time.Microsecond || obs.BandwidthHz != 80 || obs.Damping != DefaultDamping {
		t.Errorf("observer = %+v", obs)
	}

	lim := cfg.Limits()
	if lim.MaxSpeedRPM != 6000 || lim.MaxJumpCounts != 0 {
		t.Errorf("limits = %+v", lim)
	}

	sim := cfg.SimulatorOptions()
	if sim.Delay != 3 || sim.SpeedRPM != 120 || sim.Seed != 42 || sim.SamplePeriod != 50*time.Microsecond {
		t.Errorf("simulator options = %+v", sim)
	}
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse([]byte("  \n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *cfg != (Config{}) {
		t.Errorf("expected zero config, got %+v", cfg)
	}
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("encoder:\n  single_turn: 16\n"))
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bisscope.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Encoder.Name != "spindle" {
		t.Errorf("Name = %q", cfg.Encoder.Name)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

// ---- defaults ----

func TestDefault_Session(t *testing.T) {
	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	enc, obs, err := cfg.Session()
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if enc.MultiTurnBits != DefaultMultiTurnBits || enc.SingleTurnBits != DefaultSingleTurnBits {
		t.Errorf("geometry = %d/%d", enc.MultiTurnBits, enc.SingleTurnBits)
	}
	if enc.BaudRate != physic.MegaHertz {
		t.Errorf("BaudRate = %s, want 1MHz", enc.BaudRate)
	}
	if enc.Order != bissc.OrderDescending {
		t.Errorf("Order = %s", enc.Order)
	}
	want := bissc.DefaultObserverConfig()
	if obs != want {
		t.Errorf("observer = %+v, want %+v", obs, want)
	}
	if cfg.SPIOptions().PowerOff != DefaultPowerOffMs*time.Millisecond {
		t.Errorf("PowerOff = %s", cfg.SPIOptions().PowerOff)
	}
}

func TestNormalize_KeepsSingleTurnOnly(t *testing.T) {
	cfg := &Config{Encoder: EncoderConfig{SingleTurnBits: 13}}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Normalize(cfg)
	if cfg.Encoder.MultiTurnBits != 0 || cfg.Encoder.SingleTurnBits != 13 {
		t.Errorf("geometry = %d/%d, want 0/13", cfg.Encoder.MultiTurnBits, cfg.Encoder.SingleTurnBits)
	}
}

func TestValidate_DoesNotMutate(t *testing.T) {
	cfg := &Config{}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *cfg != (Config{}) {
		t.Errorf("Validate mutated config: %+v", cfg)
	}
}

// ---- rejection ----

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"single turn too wide", func(c *Config) { c.Encoder.SingleTurnBits = 33 }, "single_turn_bits"},
		{"multi turn negative", func(c *Config) { c.Encoder.MultiTurnBits = -1 }, "multi_turn_bits"},
		{"multi turn without single turn", func(c *Config) { c.Encoder.MultiTurnBits = 12 }, "single_turn_bits"},
		{"too many data bits", func(c *Config) { c.Encoder.MultiTurnBits = 32; c.Encoder.SingleTurnBits = 32 }, "capture limit"},
		{"negative pole pairs", func(c *Config) { c.Encoder.PolePairs = -2 }, "pole_pairs"},
		{"bad baud", func(c *Config) { c.Encoder.Baud = "fast" }, "baud"},
		{"lead clocks", func(c *Config) { c.Encoder.LeadClocks = 1 }, "lead_clocks"},
		{"negative pin", func(c *Config) { c.Encoder.DataPin = -1 }, "resource"},
		{"shifter order", func(c *Config) { c.Encoder.ShifterOrder = "sideways" }, "shifter order"},
		{"negative sample period", func(c *Config) { c.Observer.SamplePeriodUs = -1 }, "sample_period_us"},
		{"bandwidth too high", func(c *Config) { c.Observer.SamplePeriodUs = 100; c.Observer.BandwidthHz = 3000 }, "unstable"},
		{"default bandwidth at slow period", func(c *Config) { c.Observer.SamplePeriodUs = 10000 }, "unstable"},
		{"bandwidth above default period", func(c *Config) { c.Observer.BandwidthHz = 2500 }, "unstable"},
		{"negative power off", func(c *Config) { c.Hardware.PowerOffMs = -5 }, "power_off_ms"},
		{"negative threshold", func(c *Config) { c.Fault.CRCThreshold = -1 }, "fault"},
		{"simulator delay", func(c *Config) { c.Simulator.Delay = 8 }, "delay"},
		{"simulator crc rate", func(c *Config) { c.Simulator.CRCErrorRate = 1.5 }, "crc_error_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_Nil(t *testing.T) {
	if err := Validate(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestSession_InvalidBaud(t *testing.T) {
	cfg := Default()
	cfg.Encoder.Baud = "0Hz"
	if _, _, err := cfg.Session(); err == nil {
		t.Fatal("expected error for zero baud")
	}
}

func TestSession_ReportsInvalidConfig(t *testing.T) {
	cfg := Default()
	cfg.Encoder.PolePairs = -1
	_, _, err := cfg.Session()
	if !errors.Is(err, bissc.ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
}
