// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/Thermoquad/bisscope/pkg/bissc"
	"github.com/Thermoquad/bisscope/pkg/capture"
	"github.com/spf13/cobra"
)

var (
	recordOutput string
	recordCount  int
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record raw frames from the local encoder to a capture file",
	Long: `Calibrate the local encoder (--simulate or --spi) and write a capture file:
one session record with the encoder configuration and calibration, followed
by a frame record for every read, including frames that fail their CRC
check. Use "-" as the output to write to stdout.

Recordings can be decoded later with replay.`,
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().StringVarP(&recordOutput, "output", "o", "capture.bin", "Capture file (- for stdout)")
	recordCmd.Flags().IntVarP(&recordCount, "count", "n", 1000, "Number of frames to record (0 for unlimited)")
}

func runRecord(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	status := os.Stderr
	if recordOutput != "-" {
		f, err := os.Create(recordOutput)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	bw := bufio.NewWriter(out)
	defer bw.Flush()
	w := capture.NewWriter(bw)

	src, session, err := openCalibrated(cfg, nil)
	if err != nil {
		return err
	}
	defer src.Close()

	c, _ := session.Calibration()
	if err := w.WriteSession(session.Name(), session.Config(), c); err != nil {
		return err
	}
	fmt.Fprintf(status, "Recording %s to %s (%s)\n", src.info, recordOutput, bissc.FormatCalibration(c))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	n := 0
	var writeErr error
	tickLoop(ctx, session, cfg.SamplePeriod(), func(res bissc.Result, err error) bool {
		if err != nil && !errors.Is(err, bissc.ErrCRCMismatch) {
			fmt.Fprintf(status, "[ERROR] %v\n", err)
			return true
		}
		if writeErr = w.WriteFrame(res.Raw, res.Time); writeErr != nil {
			return false
		}
		n++
		return recordCount == 0 || n < recordCount
	})
	if writeErr != nil {
		return fmt.Errorf("write capture: %w", writeErr)
	}

	fmt.Fprintf(status, "Recorded %d frames (%d CRC errors)\n", n, session.Stats().CRCErrors)
	return nil
}
