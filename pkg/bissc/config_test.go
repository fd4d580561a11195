// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bissc

import (
	"errors"
	"testing"

	"periph.io/x/conn/v3/physic"
)

const testBaud = physic.MegaHertz

// testConfig is the common 12-bit multi-turn, 16-bit single-turn encoder
func testConfig() Config {
	return Config{
		MultiTurnBits:  12,
		SingleTurnBits: 16,
		PolePairs:      4,
		BaudRate:       testBaud,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"single turn only", func(c *Config) { c.MultiTurnBits = 0 }, false},
		{"widest single turn", func(c *Config) { c.MultiTurnBits = 24; c.SingleTurnBits = 32 }, false},
		{"no single turn", func(c *Config) { c.SingleTurnBits = 0 }, true},
		{"single turn too wide", func(c *Config) { c.SingleTurnBits = 33 }, true},
		{"negative multi turn", func(c *Config) { c.MultiTurnBits = -1 }, true},
		{"too many data bits", func(c *Config) { c.MultiTurnBits = 25; c.SingleTurnBits = 32 }, true},
		{"no pole pairs", func(c *Config) { c.PolePairs = 0 }, true},
		{"no baud", func(c *Config) { c.BaudRate = 0 }, true},
		{"lead clocks too short", func(c *Config) { c.LeadClocks = 1 }, true},
		{"lead clocks too long", func(c *Config) { c.LeadClocks = 17 }, true},
		{"lead clocks minimum", func(c *Config) { c.LeadClocks = 2 }, false},
		{"negative shifter", func(c *Config) { c.ShifterStart = -1 }, true},
		{"unknown order", func(c *Config) { c.Order = ShifterOrder(7) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
				}
			} else if err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestConfig_ShifterCount(t *testing.T) {
	tests := []struct {
		mt, st int
		want   int
	}{
		{0, 13, 1}, // 21 capture bits
		{0, 23, 1}, // 31
		{0, 24, 2}, // 32
		{12, 16, 2},
		{24, 32, 2},
	}
	for _, tt := range tests {
		cfg := Config{MultiTurnBits: tt.mt, SingleTurnBits: tt.st}
		if got := cfg.ShifterCount(); got != tt.want {
			t.Errorf("MT%d/ST%d: ShifterCount() = %d, want %d", tt.mt, tt.st, got, tt.want)
		}
	}
}

func TestConfig_FrameBits(t *testing.T) {
	cfg := testConfig()
	if got := cfg.PayloadBits(); got != 30 {
		t.Errorf("PayloadBits() = %d, want 30", got)
	}
	if got := cfg.CaptureBits(); got != 36 {
		t.Errorf("CaptureBits() = %d, want 36", got)
	}
	for delay := 0; delay < 8; delay++ {
		if got, want := cfg.FrameBits(delay), delay+DefaultLeadClocks+3+36; got != want {
			t.Errorf("FrameBits(%d) = %d, want %d", delay, got, want)
		}
	}

	cfg.LeadClocks = 6
	if got := cfg.FrameBits(2); got != 2+6+3+36 {
		t.Errorf("FrameBits(2) with 6 lead clocks = %d", got)
	}
}

func TestConfig_Resources(t *testing.T) {
	cfg := testConfig()
	cfg.DataPin, cfg.ClockPin, cfg.ShifterStart, cfg.Timer = 3, 4, 1, 2
	cfg.Order = OrderAscending

	res := cfg.Resources()
	if res.Shifters != 2 || res.ReceiveBase() != 2 || res.Order != OrderAscending || res.BaudRate != testBaud {
		t.Errorf("Resources() = %+v", res)
	}
}

func TestParseShifterOrder(t *testing.T) {
	for _, s := range []string{"", "descending"} {
		if o, err := ParseShifterOrder(s); err != nil || o != OrderDescending {
			t.Errorf("ParseShifterOrder(%q) = %v, %v", s, o, err)
		}
	}
	if o, err := ParseShifterOrder("ascending"); err != nil || o != OrderAscending {
		t.Errorf("ParseShifterOrder(ascending) = %v, %v", o, err)
	}
	if _, err := ParseShifterOrder("up"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("ParseShifterOrder(up) = %v, want ErrInvalidConfig", err)
	}
}

func TestTimerCompare(t *testing.T) {
	tests := []struct {
		name   string
		frame  int
		source physic.Frequency
		baud   physic.Frequency
		want   uint16
	}{
		{"46 ticks at 1MHz", 46, 120 * physic.MegaHertz, physic.MegaHertz, 0x5B3B},
		{"trial frame at 1MHz", DelayMax, 120 * physic.MegaHertz, physic.MegaHertz, 0x133B},
		{"10MHz", 46, 120 * physic.MegaHertz, 10 * physic.MegaHertz, 0x5B05},
		{"baud above source", 46, physic.MegaHertz, 10 * physic.MegaHertz, 0x5B00},
		{"no baud", 1, physic.MegaHertz, 0, 0x0100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TimerCompare(tt.frame, tt.source, tt.baud); got != tt.want {
				t.Errorf("TimerCompare() = 0x%04X, want 0x%04X", got, tt.want)
			}
		})
	}
}
