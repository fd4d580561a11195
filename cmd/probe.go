// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Thermoquad/bisscope/pkg/bissc"
	"github.com/Thermoquad/bisscope/pkg/capture"
	"github.com/spf13/cobra"
)

var (
	probeTimeout int
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test the encoder or stream by waiting for a valid frame",
	Long: `Wait for a frame with a valid CRC until timeout.

With a local encoder (--simulate, --spi) the encoder is calibrated and read
until a frame passes its CRC check. With a capture stream (--port, --url)
invalid bytes are skipped until a complete frame record decodes with a
valid CRC.

Exit codes:
  0 - Valid frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection or calibration error`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

// probeResult is the first valid frame
type probeResult struct {
	raw   bissc.RawFrame
	frame bissc.DecodedFrame
	cfg   bissc.Config
	info  string
}

// firstValidFrame reads records until a frame passes its CRC check. Session
// records replace the encoder configuration after validation.
func firstValidFrame(conn io.Reader, enc bissc.Config) (probeResult, error) {
	var (
		result probeResult
		found  bool
		bad    error
	)
	err := readRecords(conn, func(rec *capture.Record, err error) bool {
		if err != nil {
			return true
		}
		if rec.Kind == capture.KindSession {
			next := rec.Config()
			if err := next.Validate(); err != nil {
				bad = fmt.Errorf("session record %q: %w", rec.Name, err)
				return false
			}
			enc = next
			return true
		}
		raw := rec.RawFrame()
		d := bissc.Decode(raw, enc)
		if !d.CRCOk {
			return true
		}
		result = probeResult{raw: raw, frame: d, cfg: enc}
		found = true
		return false
	})
	switch {
	case bad != nil:
		return probeResult{}, bad
	case found:
		return result, nil
	case err != nil:
		return probeResult{}, err
	}
	return probeResult{}, ErrConnectionClosed
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Bisscope - Probe\n")
	fmt.Printf("Timeout: %d seconds\n", probeTimeout)
	fmt.Printf("Waiting for valid frame...\n\n")

	resultChan := make(chan probeResult, 1)
	errChan := make(chan error, 1)
	deadline := time.Now().Add(time.Duration(probeTimeout) * time.Second)

	if localRequested(cfg) {
		src, session, err := openCalibrated(cfg, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Calibration error: %v\n", err)
			os.Exit(2)
		}
		defer src.Close()
		c, _ := session.Calibration()
		info := fmt.Sprintf("%s, %s", src.info, bissc.FormatCalibration(c))

		// Reader goroutine
		go func() {
			wait := bissc.WaitTimeout(10 * cfg.SamplePeriod())
			for time.Now().Before(deadline) {
				res, err := session.TickWith(wait)
				if err == nil {
					resultChan <- probeResult{raw: res.Raw, frame: res.Frame, cfg: session.Config(), info: info}
					return
				}
				time.Sleep(cfg.SamplePeriod())
			}
		}()
	} else {
		// Open connection (serial or WebSocket)
		conn, connInfo, err := OpenConnection()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
			os.Exit(2)
		}
		defer conn.Close()
		enc, _, err := cfg.Session()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
			os.Exit(2)
		}

		// Reader goroutine
		go func() {
			r, err := firstValidFrame(conn, enc)
			if err != nil {
				errChan <- err
				return
			}
			r.info = connInfo
			resultChan <- r
		}()
	}

	// Wait for frame or timeout
	select {
	case r := <-resultChan:
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Source: %s\n", r.info)
		fmt.Printf("  Encoder: %s\n", bissc.FormatConfig(r.cfg))
		fmt.Printf("  Raw: %s\n", bissc.FormatWords(r.raw))
		fmt.Printf("  Multi-turn: %d  Single-turn: 0x%X\n", r.frame.MultiTurn, r.frame.SingleTurn)
		fmt.Printf("  CRC: 0x%02X\n", r.frame.CRC)
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Until(deadline)):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", probeTimeout)
		os.Exit(1)
	}

	return nil
}
