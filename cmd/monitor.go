// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/Thermoquad/bisscope/internal/config"
	"github.com/Thermoquad/bisscope/pkg/bissc"
	"github.com/Thermoquad/bisscope/pkg/capture"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
	displayRate   int
)

// maxBatchEvents caps the events forwarded per display interval
const maxBatchEvents = 20

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Track position and detect frame errors with statistics",
	Long: `Decode, validate and track every frame with live statistics.

Frames come from the local encoder (--simulate, --spi) or from a capture
stream (--port, --url). Each frame is checked for:
  - CRC errors
  - Error and warning bits set by the encoder
  - Position jumps between consecutive valid frames (fault.max_jump_counts)
  - Overspeed of the filtered estimate (fault.max_speed_rpm)

After fault.crc_threshold consecutive CRC errors a local encoder is power
cycled and recalibrated.

By default, only errors are displayed. Use --show-all to display valid frames too.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	monitorCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	monitorCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
	monitorCmd.Flags().IntVar(&displayRate, "display-rate", 20, "Display updates per second")
}

// ============================================================
// Batching
// ============================================================

// monitorEvent is one log line
type monitorEvent struct {
	timestamp time.Time
	message   string
	isError   bool
}

// monitorBatch is what the display receives once per display interval
type monitorBatch struct {
	last    *bissc.Result
	stats   bissc.Statistics
	mode    bissc.Mode
	events  []monitorEvent
	dropped int
}

// monitorCommand is a request from the display to the frame loop
type monitorCommand int

const (
	commandLatch monitorCommand = iota
	commandReinit
	commandResetStats
)

// batcher collects results between display updates
type batcher struct {
	interval time.Duration
	showAll  bool
	next     time.Time
	batch    monitorBatch
	out      func(monitorBatch)
}

func newBatcher(rate int, showAll bool, out func(monitorBatch)) *batcher {
	if rate <= 0 {
		rate = 20
	}
	return &batcher{
		interval: time.Second / time.Duration(rate),
		showAll:  showAll,
		out:      out,
	}
}

// event adds a log line, dropping it once the batch is full
func (b *batcher) event(message string, isError bool) {
	if len(b.batch.events) >= maxBatchEvents {
		b.batch.dropped++
		return
	}
	b.batch.events = append(b.batch.events, monitorEvent{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
}

// add records one processed frame and flushes when the interval elapsed
func (b *batcher) add(res *bissc.Result, err error, s *bissc.Session) {
	switch {
	case err != nil:
		b.event(err.Error(), true)
	case res != nil && len(res.Anomalies) == 0 && b.showAll:
		b.event(fmt.Sprintf("MT=0x%X ST=0x%X (valid)", res.Frame.MultiTurn, res.Frame.SingleTurn), false)
	}
	if res != nil {
		for _, a := range res.Anomalies {
			// CRC failures are already reported through err
			if a.Type == bissc.AnomalyCRCError {
				continue
			}
			b.event(fmt.Sprintf("%s: %s", a.Type, a.Message), a.Type != bissc.AnomalyWarningBit)
		}
		if err == nil {
			r := *res
			b.batch.last = &r
		}
	}

	now := time.Now()
	if now.Before(b.next) {
		return
	}
	b.next = now.Add(b.interval)
	b.batch.stats = *s.Stats()
	b.batch.stats.CalculateRates()
	b.batch.mode = s.Mode()
	b.out(b.batch)
	b.batch = monitorBatch{}
}

// apply runs a display command against the session. It returns an error
// only when a reinit left the session uncalibrated.
func (b *batcher) apply(c monitorCommand, s *bissc.Session) error {
	switch c {
	case commandLatch:
		if err := s.LatchOffset(); err != nil {
			b.event(err.Error(), true)
			return nil
		}
		b.event("Offset latched", false)
	case commandReinit:
		if _, err := s.Reinit(); err != nil {
			b.event(err.Error(), true)
			return err
		}
		b.event("Encoder reinitialised", false)
	case commandResetStats:
		s.Stats().Reset()
		b.event("Statistics reset", false)
	}
	return nil
}

// ============================================================
// Frame Sources
// ============================================================

// localMonitor feeds a local session's ticks to the batcher
type localMonitor struct {
	session   *bissc.Session
	b         *batcher
	commands  <-chan monitorCommand
	threshold int
	err       error
}

// tick handles one tick and reports whether to continue. It stops once
// the session cannot be recalibrated.
func (m *localMonitor) tick(res bissc.Result, err error) bool {
	select {
	case c := <-m.commands:
		if err := m.b.apply(c, m.session); err != nil {
			m.err = err
			return false
		}
	default:
	}

	if errors.Is(err, bissc.ErrNotCalibrated) {
		m.b.event(err.Error(), true)
		m.err = err
		return false
	}
	if err != nil && !errors.Is(err, bissc.ErrCRCMismatch) {
		m.b.add(nil, err, m.session)
		return true
	}
	m.b.add(&res, err, m.session)

	reinit, err := recoverFault(m.session, m.threshold)
	if err != nil {
		m.b.event(err.Error(), true)
		m.err = err
		return false
	}
	if reinit {
		c, _ := m.session.Calibration()
		m.b.event(fmt.Sprintf("CRC fault after %d consecutive errors, reinitialised: %s", m.threshold, bissc.FormatCalibration(c)), true)
	}
	return true
}

// monitorLocal drives a local encoder until ctx is done
func monitorLocal(ctx context.Context, cfg *config.Config, b *batcher, commands <-chan monitorCommand) error {
	src, session, err := openCalibrated(cfg, nil)
	if err != nil {
		return err
	}
	defer src.Close()
	c, _ := session.Calibration()
	b.event(fmt.Sprintf("%s calibrated: %s", src.info, bissc.FormatCalibration(c)), false)

	m := &localMonitor{
		session:   session,
		b:         b,
		commands:  commands,
		threshold: cfg.Fault.CRCThreshold,
	}
	tickLoop(ctx, session, cfg.SamplePeriod(), m.tick)
	return m.err
}

// monitorStream decodes a remote capture stream until it closes
func monitorStream(ctx context.Context, cfg *config.Config, b *batcher, commands <-chan monitorCommand) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	ss, err := newStreamSession(cfg, nil)
	if err != nil {
		return err
	}
	b.event("Connected to "+connInfo, false)

	return readRecords(conn, func(rec *capture.Record, err error) bool {
		select {
		case c := <-commands:
			if c == commandReinit {
				b.event("Reinit is only available on a local encoder", true)
			} else {
				b.apply(c, ss.Session())
			}
		default:
		}

		if err != nil {
			b.event(err.Error(), true)
			return ctx.Err() == nil
		}
		res, err := ss.Handle(rec)
		if res == nil && err == nil {
			b.event(fmt.Sprintf("Session %s: %s, %s", rec.Name, bissc.FormatConfig(rec.Config()), bissc.FormatCalibration(ss.calib)), false)
			return true
		}
		b.add(res, err, ss.Session())
		return ctx.Err() == nil
	})
}

// ============================================================
// Command
// ============================================================

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	local := localRequested(cfg)
	if !local && !streamRequested() {
		return fmt.Errorf("an encoder (--simulate, --spi) or a capture stream (--port, --url) must be specified")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	run := func(b *batcher, commands <-chan monitorCommand) error {
		if local {
			return monitorLocal(ctx, cfg, b, commands)
		}
		return monitorStream(ctx, cfg, b, commands)
	}

	if useTUI {
		return runTUIMode(stop, cfg, run)
	}
	return runTextMode(ctx, cfg, run)
}

// runTextMode prints events as they arrive and statistics periodically
func runTextMode(ctx context.Context, cfg *config.Config, run func(*batcher, <-chan monitorCommand) error) error {
	fmt.Printf("Bisscope - Monitor\n")
	fmt.Printf("Encoder: %s %s\n", cfg.Encoder.Name, cfg.Encoder.Baud)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	batches := make(chan monitorBatch, 16)
	done := make(chan error, 1)
	go func() {
		b := newBatcher(displayRate, showAll, func(mb monitorBatch) { batches <- mb })
		done <- run(b, nil)
	}()

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	var stats bissc.Statistics
	var last *bissc.Result
	for {
		select {
		case mb := <-batches:
			for _, e := range mb.events {
				label := "\033[1;32mINFO:\033[0m"
				if e.isError {
					label = "\033[1;31mERROR:\033[0m"
				}
				fmt.Printf("[%s] %s %s\n", e.timestamp.Format("15:04:05.000"), label, e.message)
			}
			if mb.dropped > 0 {
				fmt.Printf("  (%d more events)\n", mb.dropped)
			}
			stats = mb.stats
			if mb.last != nil {
				last = mb.last
			}

		case <-statsTicker.C:
			fmt.Println()
			if last != nil {
				fmt.Print(bissc.FormatEstimate(last.Estimate))
			}
			fmt.Print(stats.String())
			fmt.Println()

		case err := <-done:
			fmt.Println()
			fmt.Print(stats.String())
			return err

		case <-ctx.Done():
			return nil
		}
	}
}

// runTUIMode runs the monitor in TUI mode
func runTUIMode(stop context.CancelFunc, cfg *config.Config, run func(*batcher, <-chan monitorCommand) error) error {
	// The TUI owns the terminal; session diagnostics are shown as events
	log.SetOutput(io.Discard)
	defer log.SetOutput(os.Stderr)

	commands := make(chan monitorCommand, 4)
	m := initialModel(cfg, showAll, commands)
	p := tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		b := newBatcher(displayRate, showAll, func(mb monitorBatch) { p.Send(batchMsg(mb)) })
		err := run(b, commands)
		p.Send(sourceDoneMsg{err: err})
	}()

	_, err := p.Run()
	stop()
	if err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}
