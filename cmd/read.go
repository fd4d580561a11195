// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/Thermoquad/bisscope/pkg/bissc"
	"github.com/spf13/cobra"
)

var (
	readCount int
	readLatch bool
)

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Calibrate the local encoder and print decoded frames",
	Long: `Calibrate the local encoder (--simulate or --spi) and read frames at the
observer sample rate, printing each decoded frame with its position estimate.

With --latch the first valid frame is taken as the zero reference.`,
	RunE: runRead,
}

func init() {
	rootCmd.AddCommand(readCmd)
	readCmd.Flags().IntVarP(&readCount, "count", "n", 10, "Number of frames to read (0 for unlimited)")
	readCmd.Flags().BoolVar(&readLatch, "latch", false, "Latch the zero offset on the first valid frame")
}

func runRead(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	src, session, err := openCalibrated(cfg, nil)
	if err != nil {
		return err
	}
	defer src.Close()

	c, _ := session.Calibration()
	fmt.Printf("Bisscope - Read\n")
	fmt.Printf("Source: %s\n", src.info)
	fmt.Printf("Encoder: %s\n", bissc.FormatConfig(session.Config()))
	fmt.Printf("Calibration: %s\n\n", bissc.FormatCalibration(c))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	n := 0
	latched := !readLatch
	tickLoop(ctx, session, cfg.SamplePeriod(), func(res bissc.Result, err error) bool {
		if err != nil && !errors.Is(err, bissc.ErrCRCMismatch) {
			fmt.Printf("[ERROR] %v\n", err)
			return true
		}
		n++

		fmt.Print(bissc.FormatFrame(res.Time, res.Raw, res.Frame, session.Config()))
		for _, a := range res.Anomalies {
			fmt.Printf("  %s: %s\n", a.Type, a.Message)
		}
		if err == nil {
			if !latched {
				if err := session.LatchOffset(); err != nil {
					fmt.Printf("[ERROR] %v\n", err)
				} else {
					latched = true
					fmt.Printf("  Offset latched\n")
				}
			}
			fmt.Print(bissc.FormatEstimate(res.Estimate))
		}
		return readCount == 0 || n < readCount
	})

	fmt.Println()
	session.Stats().CalculateRates()
	fmt.Print(session.Stats().String())
	return nil
}
