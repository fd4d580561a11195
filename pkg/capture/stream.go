// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"bufio"
	"io"
	"time"

	"github.com/Thermoquad/bisscope/pkg/bissc"
)

// Writer writes records to a capture stream.
type Writer struct {
	w   io.Writer
	enc *Encoder
	seq uint64
}

// NewWriter creates a writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, enc: NewEncoder()}
}

// Write encodes and writes one record.
func (w *Writer) Write(r *Record) error {
	data, err := w.enc.Encode(r)
	if err != nil {
		return err
	}
	_, err = w.w.Write(data)
	return err
}

// WriteSession writes a session record.
func (w *Writer) WriteSession(name string, cfg bissc.Config, c bissc.Calibration) error {
	return w.Write(SessionRecord(name, cfg, c, time.Now()))
}

// WriteFrame writes a frame record with the next sequence number.
func (w *Writer) WriteFrame(raw bissc.RawFrame, ts time.Time) error {
	w.seq++
	return w.Write(FrameRecord(w.seq, raw, ts))
}

// Reader reads records from a capture stream.
type Reader struct {
	r   *bufio.Reader
	dec *Decoder
}

// NewReader creates a reader on r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r), dec: NewDecoder()}
}

// Next returns the next record. Corrupted records are reported as errors
// and reading may continue with the following record. Returns io.EOF at
// the end of the stream.
func (r *Reader) Next() (*Record, error) {
	for {
		b, err := r.r.ReadByte()
		if err != nil {
			return nil, err
		}
		rec, err := r.dec.DecodeByte(b)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return rec, nil
		}
	}
}
