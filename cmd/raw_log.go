// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"log"

	"github.com/Thermoquad/bisscope/pkg/bissc"
	"github.com/Thermoquad/bisscope/pkg/capture"
	"github.com/spf13/cobra"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw capture records in human-readable format",
	Long: `Continuously decode and display capture records as they arrive.

Session records print the encoder configuration and calibration. Frame
records print the captured words and decoded fields using the most recent
session configuration (or --config before the first session record).

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	enc, _, err := cfg.Session()
	if err != nil {
		return err
	}

	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Bisscope - Raw Capture Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	err = readRecords(conn, func(rec *capture.Record, err error) bool {
		if err != nil {
			fmt.Printf("[ERROR] %v\n", err)
			return true
		}
		fmt.Print(formatRecord(rec, &enc))
		return true
	})
	if err == nil {
		log.Printf("Connection closed")
	}
	return err
}

// formatRecord formats one record. A session record replaces enc.
func formatRecord(rec *capture.Record, enc *bissc.Config) string {
	switch rec.Kind {
	case capture.KindSession:
		*enc = rec.Config()
		return fmt.Sprintf("[%s] SESSION %s %s %s\n",
			rec.Time().Format("15:04:05.000"), rec.Name,
			bissc.FormatConfig(*enc), bissc.FormatCalibration(rec.Calibration()))
	case capture.KindFrame:
		raw := rec.RawFrame()
		return fmt.Sprintf("#%d ", rec.Sequence) + bissc.FormatFrame(rec.Time(), raw, bissc.Decode(raw, *enc), *enc)
	default:
		return fmt.Sprintf("[%s] %s\n", rec.Time().Format("15:04:05.000"), rec.Kind)
	}
}
