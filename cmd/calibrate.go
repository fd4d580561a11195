// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/bisscope/pkg/bissc"
	"github.com/spf13/cobra"
)

var calibrateRepeat int

// timerReporter is implemented by peripherals that expose the programmed
// frame timer
type timerReporter interface {
	TimerCompare() uint16
}

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Measure the encoder line delay",
	Long: `Program a trial frame, count the ones before the start bit and program
the calibrated frame length. Calibration is repeated --repeat times and the
results are compared; a changing delay points to a marginal clock rate or
cable.`,
	RunE: runCalibrate,
}

func init() {
	rootCmd.AddCommand(calibrateCmd)
	calibrateCmd.Flags().IntVar(&calibrateRepeat, "repeat", 2, "Number of calibrations to compare")
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	src, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	session, err := src.NewSession(nil)
	if err != nil {
		return err
	}

	enc := session.Config()
	res := enc.Resources()
	fmt.Printf("Bisscope - Calibrate\n")
	fmt.Printf("Source: %s\n", src.info)
	fmt.Printf("Encoder: %s\n", bissc.FormatConfig(enc))
	fmt.Printf("Resources: data pin %d, clock pin %d, timer %d, shifters %d-%d (%s)\n\n",
		res.DataPin, res.ClockPin, res.Timer, res.ShifterStart, res.ShifterStart+res.Shifters-1, res.Order)

	if calibrateRepeat < 1 {
		calibrateRepeat = 1
	}

	var first bissc.Calibration
	for i := 0; i < calibrateRepeat; i++ {
		c, err := session.Calibrate()
		if err != nil {
			return err
		}
		fmt.Printf("Run %d: %s\n", i+1, bissc.FormatCalibration(c))
		if i == 0 {
			first = c
			continue
		}
		if c != first {
			return fmt.Errorf("calibration is unstable: run 1 %s, run %d %s",
				bissc.FormatCalibration(first), i+1, bissc.FormatCalibration(c))
		}
	}

	fmt.Printf("\nDelay: %d ticks (%s per tick)\n", first.Delay, enc.BaudRate.Period())
	fmt.Printf("Frame: %d ticks in %d receive shifters\n", first.FrameBits, first.Shifters)
	if t, ok := src.periph.(timerReporter); ok {
		fmt.Printf("Timer compare: 0x%04X\n", t.TimerCompare())
	}
	return nil
}
