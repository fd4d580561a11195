// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bissc

import (
	"fmt"
	"math"
)

// AnomalyType represents different types of frame anomalies
type AnomalyType int

const (
	AnomalyCRCError AnomalyType = iota
	AnomalyErrorBit
	AnomalyWarningBit
	AnomalyPositionJump
	AnomalyOverspeed
)

func (a AnomalyType) String() string {
	switch a {
	case AnomalyCRCError:
		return "CRC_ERROR"
	case AnomalyErrorBit:
		return "ERROR_BIT"
	case AnomalyWarningBit:
		return "WARNING_BIT"
	case AnomalyPositionJump:
		return "POSITION_JUMP"
	case AnomalyOverspeed:
		return "OVERSPEED"
	default:
		return "UNKNOWN"
	}
}

// ValidationError represents a frame validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// Limits are the plausibility bounds applied by the validator. A zero
// value disables the check.
type Limits struct {
	MaxJumpCounts int64   // between consecutive valid frames
	MaxSpeedRPM   float64 // filtered speed
}

// ValidateFrame checks a decoded frame against the previous valid frame.
// prev may be nil. Returns a slice of validation errors (empty if the frame
// is valid).
func ValidateFrame(d DecodedFrame, prev *DecodedFrame, cfg Config, limits Limits) []ValidationError {
	errors := []ValidationError{}

	if !d.CRCOk {
		return append(errors, ValidationError{
			Type:    AnomalyCRCError,
			Message: fmt.Sprintf("CRC mismatch: received 0x%02X, expected 0x%02X", d.CRC, d.ExpectedCRC),
			Details: map[string]interface{}{"received": d.CRC, "expected": d.ExpectedCRC},
		})
	}

	if d.Error {
		errors = append(errors, ValidationError{
			Type:    AnomalyErrorBit,
			Message: "Encoder error bit set",
			Details: map[string]interface{}{"single_turn": d.SingleTurn, "multi_turn": d.MultiTurn},
		})
	}

	if d.Warning {
		errors = append(errors, ValidationError{
			Type:    AnomalyWarningBit,
			Message: "Encoder warning bit set",
			Details: map[string]interface{}{"single_turn": d.SingleTurn, "multi_turn": d.MultiTurn},
		})
	}

	if prev != nil && prev.CRCOk && limits.MaxJumpCounts > 0 {
		jump := PositionDelta(*prev, d, cfg)
		if jump > limits.MaxJumpCounts || -jump > limits.MaxJumpCounts {
			errors = append(errors, ValidationError{
				Type:    AnomalyPositionJump,
				Message: fmt.Sprintf("Position jump of %d counts (max %d)", jump, limits.MaxJumpCounts),
				Details: map[string]interface{}{"jump": jump, "max": limits.MaxJumpCounts},
			})
		}
	}

	return errors
}

// ValidateEstimate checks the tracker output against the speed limit.
func ValidateEstimate(e Estimate, limits Limits) []ValidationError {
	if limits.MaxSpeedRPM <= 0 {
		return nil
	}
	rpm := e.RPM()
	if math.Abs(rpm) <= limits.MaxSpeedRPM {
		return nil
	}
	return []ValidationError{{
		Type:    AnomalyOverspeed,
		Message: fmt.Sprintf("Speed %.0f RPM exceeds %.0f RPM", rpm, limits.MaxSpeedRPM),
		Details: map[string]interface{}{"rpm": rpm, "max": limits.MaxSpeedRPM},
	}}
}

// PositionDelta returns the signed shortest distance in single-turn counts
// from a to b over the combined multi-turn and single-turn word.
func PositionDelta(a, b DecodedFrame, cfg Config) int64 {
	pa := Position(cfg, a.MultiTurn, a.SingleTurn)
	pb := Position(cfg, b.MultiTurn, b.SingleTurn)
	return signedDelta(pa, pb, cfg.MultiTurnBits+cfg.SingleTurnBits)
}
