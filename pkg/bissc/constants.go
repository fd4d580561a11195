// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bissc decodes BiSS-C absolute encoder frames captured by a
// programmable bit-timing peripheral and turns them into filtered position
// and speed estimates.
//
// A frame on the wire, most significant bit first, is
//
//	[delay][ack][start][CDS][multi-turn:N][single-turn:M][error][warning][crc:6]
//
// The package covers delay calibration, frame capture and assembly, CRC-6
// validation, field extraction and position tracking. The peripheral itself
// is reached through the Peripheral interface.
package bissc

// Frame layout
const (
	CRCBits    = 6 // x^6 + x + 1
	headerBits = 3 // ack, start, CDS
	statusBits = 2 // error, warning
	WordBits   = 32
)

// Capture limits
const (
	MaxShifters       = 2
	MaxCaptureBits    = MaxShifters * WordBits
	MaxDataBits       = MaxCaptureBits - CRCBits // multi-turn + single-turn + status bits
	MaxFieldBits      = 32
	DefaultLeadClocks = 4
	maxLeadClocks     = 16
)

// Shifter roles relative to Config.ShifterStart
const (
	TriggerShifter = 0
	ReceiveShifter = 1
)

// Delay calibration
const (
	DelayMax         = 10 // frame length used for trial reads, in clock ticks
	delayLeadIn      = 2  // ticks discarded before the delay scan
	delayScanWindow  = DelayMax - delayLeadIn
	calibrationReads = 2
)

// CRC-6 configuration
const (
	crcMask = 0x3F
)
