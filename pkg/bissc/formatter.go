// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bissc

import (
	"fmt"
	"strings"
	"time"
)

// FormatFrame formats a decoded frame into a human-readable string
func FormatFrame(ts time.Time, raw RawFrame, d DecodedFrame, cfg Config) string {
	timestamp := ts.Format("15:04:05.000")

	crc := "OK"
	if !d.CRCOk {
		crc = fmt.Sprintf("BAD (expected 0x%02X)", d.ExpectedCRC)
	}

	result := fmt.Sprintf("[%s] FRAME raw=%s crc=0x%02X %s\n", timestamp, FormatWords(raw), d.CRC, crc)
	result += fmt.Sprintf("  Multi-turn: 0x%0*X  Single-turn: 0x%0*X (%.3f°)\n",
		hexDigits(cfg.MultiTurnBits), d.MultiTurn,
		hexDigits(cfg.SingleTurnBits), d.SingleTurn,
		SingleTurnDegrees(d.SingleTurn, cfg))
	result += fmt.Sprintf("  Error: %s  Warning: %s\n", formatFlag(d.Error), formatFlag(d.Warning))
	return result
}

// FormatEstimate formats a tracker estimate into a human-readable string
func FormatEstimate(e Estimate) string {
	result := fmt.Sprintf("  Position: %d counts (%.4f rev) [%s]\n", e.Counts, e.Revolutions, e.Mode)
	result += fmt.Sprintf("  Angle: measured %.3f° filtered %.3f° electrical %.3f°\n",
		AngleDegrees(e.MechanicalAngle), AngleDegrees(e.FilteredAngle), AngleDegrees(e.ElectricalAngle))
	result += fmt.Sprintf("  Speed: %.3f rad/s (%.1f RPM)\n", e.Speed, e.RPM())
	return result
}

// FormatCalibration formats a calibration result
func FormatCalibration(c Calibration) string {
	return fmt.Sprintf("delay=%d ticks frame=%d ticks shifters=%d", c.Delay, c.FrameBits, c.Shifters)
}

// FormatConfig formats an encoder configuration
func FormatConfig(cfg Config) string {
	return fmt.Sprintf("MT%d/ST%d pp=%d baud=%s order=%s lead=%d",
		cfg.MultiTurnBits, cfg.SingleTurnBits, cfg.PolePairs, cfg.BaudRate, cfg.Order, cfg.Lead())
}

// FormatWords formats captured words, first word first
func FormatWords(raw RawFrame) string {
	parts := make([]string, 0, raw.Count)
	for _, w := range raw.Slice() {
		parts = append(parts, fmt.Sprintf("%08X", w))
	}
	return strings.Join(parts, ":")
}

// SingleTurnDegrees converts a single-turn count to degrees in [0, 360)
func SingleTurnDegrees(st uint32, cfg Config) float64 {
	return float64(uint64(st)&fieldMask(cfg.SingleTurnBits)) * 360 / float64(cfg.SingleTurnCounts())
}

func formatFlag(b bool) string {
	if b {
		return "SET"
	}
	return "clear"
}

func hexDigits(bits int) int {
	if bits <= 0 {
		return 1
	}
	return (bits + 3) / 4
}
