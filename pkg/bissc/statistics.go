// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bissc

import (
	"fmt"
	"time"
)

// Statistics tracks frame statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames   uint64
	ValidFrames   uint64
	CRCErrors     uint64
	MissedFrames  uint64 // read errors and timeouts
	ErrorBits     uint64
	WarningBits   uint64
	PositionJumps uint64
	Overspeed     uint64

	// CRC error runs
	ConsecutiveCRCErrors    uint64
	MaxConsecutiveCRCErrors uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update updates statistics based on a decoded frame and its anomalies
func (s *Statistics) Update(d DecodedFrame, anomalies []ValidationError) {
	s.TotalFrames++
	s.LastUpdateTime = time.Now()

	if !d.CRCOk {
		s.CRCErrors++
		s.ConsecutiveCRCErrors++
		if s.ConsecutiveCRCErrors > s.MaxConsecutiveCRCErrors {
			s.MaxConsecutiveCRCErrors = s.ConsecutiveCRCErrors
		}
		return
	}
	s.ConsecutiveCRCErrors = 0

	clean := true
	for _, a := range anomalies {
		switch a.Type {
		case AnomalyErrorBit:
			s.ErrorBits++
			clean = false
		case AnomalyWarningBit:
			s.WarningBits++
			clean = false
		case AnomalyPositionJump:
			s.PositionJumps++
			clean = false
		}
	}
	if clean {
		s.ValidFrames++
	}
}

// RecordAnomalies counts anomalies raised after tracking, such as overspeed
func (s *Statistics) RecordAnomalies(anomalies []ValidationError) {
	for _, a := range anomalies {
		if a.Type == AnomalyOverspeed {
			s.Overspeed++
		}
	}
}

// RecordMissed counts a transaction that produced no frame
func (s *Statistics) RecordMissed() {
	s.MissedFrames++
	s.LastUpdateTime = time.Now()
}

// Faulted reports whether the current run of CRC errors has reached
// threshold. A threshold of zero never faults.
func (s *Statistics) Faulted(threshold int) bool {
	return threshold > 0 && s.ConsecutiveCRCErrors >= uint64(threshold)
}

// ClearRun ends the current run of CRC errors without touching the totals.
func (s *Statistics) ClearRun() {
	s.ConsecutiveCRCErrors = 0
}

// Errors returns the total number of error events
func (s *Statistics) Errors() uint64 {
	return s.CRCErrors + s.MissedFrames + s.ErrorBits + s.PositionJumps
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent, crcErrorPercent float64
	if s.TotalFrames > 0 {
		validPercent = float64(s.ValidFrames) * 100.0 / float64(s.TotalFrames)
		crcErrorPercent = float64(s.CRCErrors) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, validPercent)

	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d (%.1f%%)\n", s.CRCErrors, crcErrorPercent)
		result += fmt.Sprintf("  Longest Run:      %5d\n", s.MaxConsecutiveCRCErrors)
	}
	if s.MissedFrames > 0 {
		result += fmt.Sprintf("Missed Frames:   %8d\n", s.MissedFrames)
	}
	if s.ErrorBits > 0 {
		result += fmt.Sprintf("Error Bits:      %8d\n", s.ErrorBits)
	}
	if s.WarningBits > 0 {
		result += fmt.Sprintf("Warning Bits:    %8d\n", s.WarningBits)
	}
	if s.PositionJumps > 0 {
		result += fmt.Sprintf("Position Jumps:  %8d\n", s.PositionJumps)
	}
	if s.Overspeed > 0 {
		result += fmt.Sprintf("Overspeed:       %8d\n", s.Overspeed)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Merge adds the counters of o. Rates are recalculated from the
// receiver's start time.
func (s *Statistics) Merge(o *Statistics) {
	s.TotalFrames += o.TotalFrames
	s.ValidFrames += o.ValidFrames
	s.CRCErrors += o.CRCErrors
	s.MissedFrames += o.MissedFrames
	s.ErrorBits += o.ErrorBits
	s.WarningBits += o.WarningBits
	s.PositionJumps += o.PositionJumps
	s.Overspeed += o.Overspeed
	if o.MaxConsecutiveCRCErrors > s.MaxConsecutiveCRCErrors {
		s.MaxConsecutiveCRCErrors = o.MaxConsecutiveCRCErrors
	}
	if o.LastUpdateTime.After(s.LastUpdateTime) {
		s.LastUpdateTime = o.LastUpdateTime
	}
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
