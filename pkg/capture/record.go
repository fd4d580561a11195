// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"fmt"
	"time"

	"github.com/Thermoquad/bisscope/pkg/bissc"
	"periph.io/x/conn/v3/physic"
)

// Kind identifies the record type.
type Kind uint8

const (
	// KindSession carries the encoder configuration and calibration. It
	// precedes the frames it describes.
	KindSession Kind = 1
	// KindFrame carries one raw frame.
	KindFrame Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindSession:
		return "SESSION"
	case KindFrame:
		return "FRAME"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Record is one entry of a capture stream.
type Record struct {
	Kind      Kind     `cbor:"1,keyasint"`
	Timestamp int64    `cbor:"2,keyasint"` // unix nanoseconds
	Sequence  uint64   `cbor:"3,keyasint,omitempty"`
	Words     []uint32 `cbor:"4,keyasint,omitempty"`

	// Session fields
	Name           string `cbor:"5,keyasint,omitempty"`
	MultiTurnBits  int    `cbor:"6,keyasint,omitempty"`
	SingleTurnBits int    `cbor:"7,keyasint,omitempty"`
	PolePairs      int    `cbor:"8,keyasint,omitempty"`
	BaudHz         uint64 `cbor:"9,keyasint,omitempty"`
	LeadClocks     int    `cbor:"10,keyasint,omitempty"`
	Order          int    `cbor:"11,keyasint,omitempty"`
	Delay          int    `cbor:"12,keyasint,omitempty"`
	FrameBits      int    `cbor:"13,keyasint,omitempty"`
}

// SessionRecord describes an encoder session.
func SessionRecord(name string, cfg bissc.Config, c bissc.Calibration, ts time.Time) *Record {
	return &Record{
		Kind:           KindSession,
		Timestamp:      ts.UnixNano(),
		Name:           name,
		MultiTurnBits:  cfg.MultiTurnBits,
		SingleTurnBits: cfg.SingleTurnBits,
		PolePairs:      cfg.PolePairs,
		BaudHz:         uint64(cfg.BaudRate / physic.Hertz),
		LeadClocks:     cfg.LeadClocks,
		Order:          int(cfg.Order),
		Delay:          c.Delay,
		FrameBits:      c.FrameBits,
	}
}

// FrameRecord stores one raw frame.
func FrameRecord(seq uint64, raw bissc.RawFrame, ts time.Time) *Record {
	return &Record{
		Kind:      KindFrame,
		Timestamp: ts.UnixNano(),
		Sequence:  seq,
		Words:     append([]uint32(nil), raw.Slice()...),
	}
}

// Time returns the record timestamp.
func (r *Record) Time() time.Time {
	return time.Unix(0, r.Timestamp)
}

// Config returns the encoder configuration of a session record.
func (r *Record) Config() bissc.Config {
	return bissc.Config{
		MultiTurnBits:  r.MultiTurnBits,
		SingleTurnBits: r.SingleTurnBits,
		PolePairs:      r.PolePairs,
		BaudRate:       physic.Frequency(r.BaudHz) * physic.Hertz,
		LeadClocks:     r.LeadClocks,
		Order:          bissc.ShifterOrder(r.Order),
	}
}

// Calibration returns the calibration of a session record.
func (r *Record) Calibration() bissc.Calibration {
	cfg := r.Config()
	return bissc.Calibration{
		Delay:     r.Delay,
		FrameBits: r.FrameBits,
		Shifters:  cfg.ShifterCount(),
	}
}

// RawFrame returns the raw frame of a frame record.
func (r *Record) RawFrame() bissc.RawFrame {
	return bissc.NewRawFrame(r.Words...)
}
