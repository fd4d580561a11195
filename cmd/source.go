// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/Thermoquad/bisscope/internal/config"
	"github.com/Thermoquad/bisscope/pkg/bissc"
	"github.com/Thermoquad/bisscope/pkg/simulator"
	"github.com/Thermoquad/bisscope/pkg/spicapture"
)

// loadConfig loads the --config file, or the defaults when none is given
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}
	config.Normalize(cfg)
	return cfg, nil
}

// encoderSource is a local peripheral clocking an encoder
type encoderSource struct {
	cfg    *config.Config
	enc    bissc.Config
	obs    bissc.ObserverConfig
	periph bissc.Peripheral
	info   string
	close  func() error
}

// localRequested reports whether a local peripheral was selected
func localRequested(cfg *config.Config) bool {
	return simulate || spiPort != "" || cfg.Hardware.SPIPort != ""
}

// openSource opens the simulator or the SPI peripheral
func openSource(cfg *config.Config) (*encoderSource, error) {
	enc, obs, err := cfg.Session()
	if err != nil {
		return nil, err
	}
	src := &encoderSource{cfg: cfg, enc: enc, obs: obs, close: func() error { return nil }}

	switch {
	case simulate:
		opts := cfg.SimulatorOptions()
		src.periph = simulator.New(enc, opts)
		src.info = fmt.Sprintf("Simulator: delay %d ticks, %.1f RPM", opts.Delay, opts.SpeedRPM)

	case spiPort != "" || cfg.Hardware.SPIPort != "":
		opts := cfg.SPIOptions()
		if spiPort != "" {
			opts.Port = spiPort
		}
		c, err := spicapture.Open(opts)
		if err != nil {
			return nil, err
		}
		src.periph = c
		src.close = c.Close
		src.info = fmt.Sprintf("SPI: %s @ %s", opts.Port, enc.BaudRate)

	default:
		return nil, fmt.Errorf("either --simulate or --spi must be specified")
	}
	return src, nil
}

// Close releases the peripheral
func (s *encoderSource) Close() error {
	return s.close()
}

// NewSession creates the session for this source
func (s *encoderSource) NewSession(sink bissc.Sink) (*bissc.Session, error) {
	session, err := bissc.NewSession(s.cfg.Encoder.Name, s.enc, s.obs, s.periph, sink)
	if err != nil {
		return nil, err
	}
	session.SetLimits(s.cfg.Limits())
	return session, nil
}

// openCalibrated opens the local source and calibrates a session on it
func openCalibrated(cfg *config.Config, sink bissc.Sink) (*encoderSource, *bissc.Session, error) {
	src, err := openSource(cfg)
	if err != nil {
		return nil, nil, err
	}
	session, err := src.NewSession(sink)
	if err != nil {
		src.Close()
		return nil, nil, err
	}
	if _, err := session.Calibrate(); err != nil {
		src.Close()
		return nil, nil, err
	}
	return src, session, nil
}

// recoverFault reinitialises s once its run of CRC errors reaches threshold
// and reports whether it did. A failed reinit leaves s uncalibrated.
func recoverFault(s *bissc.Session, threshold int) (bool, error) {
	if !s.Stats().Faulted(threshold) {
		return false, nil
	}
	if _, err := s.Reinit(); err != nil {
		return true, fmt.Errorf("reinit after %d consecutive CRC errors: %w", threshold, err)
	}
	return true, nil
}

// tickLoop reads one frame per sample period until ctx is done or fn
// returns false. Read errors are passed to fn with an empty result.
func tickLoop(ctx context.Context, s *bissc.Session, period time.Duration, fn func(bissc.Result, error) bool) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	wait := bissc.WaitTimeout(10 * period)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := s.TickWith(wait)
			if !fn(res, err) {
				return
			}
		}
	}
}
