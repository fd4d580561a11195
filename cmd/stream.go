// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/Thermoquad/bisscope/internal/config"
	"github.com/Thermoquad/bisscope/pkg/bissc"
	"github.com/Thermoquad/bisscope/pkg/capture"
)

// streamSession rebuilds a session from the records of a capture stream.
// Frames before the first session record are decoded with the local
// configuration.
type streamSession struct {
	obs     bissc.ObserverConfig
	limits  bissc.Limits
	sink    bissc.Sink
	session *bissc.Session
	calib   bissc.Calibration
}

func newStreamSession(cfg *config.Config, sink bissc.Sink) (*streamSession, error) {
	enc, obs, err := cfg.Session()
	if err != nil {
		return nil, err
	}
	s := &streamSession{obs: obs, limits: cfg.Limits(), sink: sink}
	if err := s.reset(cfg.Encoder.Name, enc); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *streamSession) reset(name string, enc bissc.Config) error {
	session, err := bissc.NewSession(name, enc, s.obs, nil, s.sink)
	if err != nil {
		return err
	}
	session.SetLimits(s.limits)
	s.session = session
	return nil
}

// Session returns the current session
func (s *streamSession) Session() *bissc.Session {
	return s.session
}

// Handle processes one record. Session records replace the session and
// return a nil result.
func (s *streamSession) Handle(rec *capture.Record) (*bissc.Result, error) {
	switch rec.Kind {
	case capture.KindSession:
		if err := s.reset(rec.Name, rec.Config()); err != nil {
			return nil, fmt.Errorf("session record: %w", err)
		}
		s.calib = rec.Calibration()
		return nil, nil

	case capture.KindFrame:
		res, err := s.session.Process(rec.RawFrame())
		res.Time = rec.Time()
		return &res, err

	default:
		return nil, fmt.Errorf("unknown record kind %s", rec.Kind)
	}
}

// readRecords decodes capture records from conn until it closes or fn
// returns false. Decode errors before the first valid record are counted,
// not reported.
func readRecords(conn io.Reader, fn func(rec *capture.Record, err error) bool) error {
	decoder := capture.NewDecoder()
	buf := make([]byte, 256)
	synchronized := false
	invalidBytes := 0

	for {
		n, err := conn.Read(buf)
		if err != nil {
			if err == io.EOF || errors.Is(err, ErrConnectionClosed) {
				return nil
			}
			return err
		}

		for i := 0; i < n; i++ {
			rec, decodeErr := decoder.DecodeByte(buf[i])
			if decodeErr != nil {
				if !synchronized {
					invalidBytes++
					continue
				}
				if !fn(nil, decodeErr) {
					return nil
				}
				continue
			}
			if rec == nil {
				continue
			}
			if !synchronized {
				synchronized = true
				if invalidBytes > 0 {
					log.Printf("Synchronized after skipping %d invalid bytes", invalidBytes)
				}
			}
			if !fn(rec, nil) {
				return nil
			}
		}
	}
}
