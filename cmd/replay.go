// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/Thermoquad/bisscope/pkg/bissc"
	"github.com/Thermoquad/bisscope/pkg/capture"
	"github.com/spf13/cobra"
)

var replayQuiet bool

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Decode a capture file and report statistics",
	Long: `Run the frames of a capture file through the decoder, validator and
tracker exactly as they were received, then print the statistics.

Each session record in the file restarts decoding with its configuration.
Corrupted records are reported and skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVarP(&replayQuiet, "quiet", "q", false, "Only print anomalies and statistics")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	ss, err := newStreamSession(cfg, nil)
	if err != nil {
		return err
	}

	// Statistics accumulate across sessions in the file
	total := bissc.NewStatistics()
	r := capture.NewReader(f)
	corrupted := 0
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			corrupted++
			fmt.Printf("[ERROR] %v\n", err)
			continue
		}

		if rec.Kind == capture.KindSession {
			total.Merge(ss.Session().Stats())
		}
		res, err := ss.Handle(rec)
		if res == nil {
			if err != nil {
				return err
			}
			fmt.Printf("Session %s: %s, %s\n", rec.Name, bissc.FormatConfig(rec.Config()), bissc.FormatCalibration(ss.calib))
			continue
		}

		if !replayQuiet || err != nil || len(res.Anomalies) > 0 {
			fmt.Printf("#%d ", rec.Sequence)
			fmt.Print(bissc.FormatFrame(res.Time, res.Raw, res.Frame, ss.Session().Config()))
		}
		for _, a := range res.Anomalies {
			fmt.Printf("  %s: %s\n", a.Type, a.Message)
		}
		if err == nil && !replayQuiet {
			fmt.Print(bissc.FormatEstimate(res.Estimate))
		}
	}
	total.Merge(ss.Session().Stats())

	fmt.Println()
	if corrupted > 0 {
		fmt.Printf("Corrupted records: %d\n", corrupted)
	}
	fmt.Print(total.String())
	return nil
}
