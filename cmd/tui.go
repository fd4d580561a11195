// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/bisscope/internal/config"
	"github.com/Thermoquad/bisscope/pkg/bissc"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUI model
type model struct {
	encoderName   string
	baud          string
	showAll       bool
	commands      chan<- monitorCommand
	stats         bissc.Statistics
	mode          bissc.Mode
	last          *bissc.Result
	eventLog      []monitorEvent
	maxLogEntries int
	gauge         progress.Model
	width         int
	height        int
	done          bool
	doneErr       error
	quitting      bool
}

// Messages
type tickMsg time.Time
type batchMsg monitorBatch
type sourceDoneMsg struct {
	err error
}

// formatElapsed formats a duration as a human-friendly string
func formatElapsed(d time.Duration) string {
	seconds := int64(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n int64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialModel(cfg *config.Config, showAll bool, commands chan<- monitorCommand) model {
	return model{
		encoderName:   cfg.Encoder.Name,
		baud:          cfg.Encoder.Baud,
		showAll:       showAll,
		commands:      commands,
		stats:         *bissc.NewStatistics(),
		eventLog:      make([]monitorEvent, 0),
		maxLogEntries: 100,
		gauge:         progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "z":
			m.send(commandLatch)
		case "r":
			m.send(commandReinit)
		case "c":
			m.send(commandResetStats)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.gauge.Width = msg.Width - 30
		if m.gauge.Width < 10 {
			m.gauge.Width = 10
		}

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case batchMsg:
		m.stats = msg.stats
		m.stats.CalculateRates()
		m.mode = msg.mode
		if msg.last != nil {
			m.last = msg.last
		}
		for _, e := range msg.events {
			m.addLogEntry(e)
		}
		if msg.dropped > 0 {
			m.addLogEntry(monitorEvent{
				timestamp: time.Now(),
				message:   fmt.Sprintf("%d more events not shown", msg.dropped),
				isError:   true,
			})
		}

	case sourceDoneMsg:
		m.done = true
		m.doneErr = msg.err
		message := "Source closed"
		if msg.err != nil {
			message = fmt.Sprintf("Source failed: %v", msg.err)
		}
		m.addLogEntry(monitorEvent{timestamp: time.Now(), message: message, isError: msg.err != nil})
	}

	return m, nil
}

// send forwards a command without blocking the UI
func (m *model) send(c monitorCommand) {
	if m.done {
		return
	}
	select {
	case m.commands <- c:
	default:
	}
}

func (m *model) addLogEntry(entry monitorEvent) {
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("BISSCOPE - MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Encoder: %s @ %s | Mode: %s | z: zero  r: reinit  c: clear  q: quit",
		m.encoderName, m.baud, func() string {
			if m.showAll {
				return "All frames"
			}
			return "Errors only"
		}())))
	s.WriteString("\n\n")

	// Statistics
	var validPercent, errorPercent float64
	errors := m.stats.Errors()
	if m.stats.TotalFrames > 0 {
		validPercent = float64(m.stats.ValidFrames) * 100.0 / float64(m.stats.TotalFrames)
		errorPercent = float64(errors) * 100.0 / float64(m.stats.TotalFrames)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.TotalFrames)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", m.stats.ValidFrames, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", errors, errorPercent)),
	))

	if m.stats.CRCErrors > 0 || m.stats.MissedFrames > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s (max run %d)   %s %s\n",
			statsLabelStyle.Render("CRC Errors:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.CRCErrors)),
			m.stats.MaxConsecutiveCRCErrors,
			statsLabelStyle.Render("Missed:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.MissedFrames)),
		))
	}

	if m.stats.ErrorBits > 0 || m.stats.WarningBits > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("Error Bits:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.ErrorBits)),
			statsLabelStyle.Render("Warning Bits:"), warningStyle.Render(fmt.Sprintf("%d", m.stats.WarningBits)),
		))
	}

	if m.stats.PositionJumps > 0 || m.stats.Overspeed > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("Jumps:"), warningStyle.Render(fmt.Sprintf("%d", m.stats.PositionJumps)),
			statsLabelStyle.Render("Overspeed:"), warningStyle.Render(fmt.Sprintf("%d", m.stats.Overspeed)),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", m.stats.FrameRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if m.stats.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
		}(),
		statsLabelStyle.Render("Running:"), statsValueStyle.Render(formatElapsed(time.Since(m.stats.StartTime))),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Position section (only shown once a valid frame arrived)
	if m.last != nil {
		e := m.last.Estimate
		s.WriteString(statsLabelStyle.Render("Position:"))
		s.WriteString("\n")

		posContent := strings.Builder{}
		posContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("MT:"), statsValueStyle.Render(fmt.Sprintf("%d", e.MultiTurn)),
			statsLabelStyle.Render("ST:"), statsValueStyle.Render(fmt.Sprintf("0x%X", e.SingleTurn)),
			statsLabelStyle.Render("Zero:"), statsValueStyle.Render(m.mode.String()),
		))

		mech := bissc.AngleDegrees(e.MechanicalAngle)
		if mech < 0 {
			mech += 360
		}
		posContent.WriteString(fmt.Sprintf("%s %s %s\n",
			statsLabelStyle.Render("Angle:"),
			m.gauge.ViewAs(mech/360),
			statsValueStyle.Render(fmt.Sprintf("%7.2f°", mech)),
		))

		posContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
			statsLabelStyle.Render("Filtered:"), statsValueStyle.Render(fmt.Sprintf("%.2f°", bissc.AngleDegrees(e.FilteredAngle))),
			statsLabelStyle.Render("Speed:"), statsValueStyle.Render(fmt.Sprintf("%.1f RPM", e.RPM())),
			statsLabelStyle.Render("Revolutions:"), statsValueStyle.Render(fmt.Sprintf("%.3f", e.Revolutions)),
		))

		s.WriteString(boxStyle.Render(posContent.String()))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 19 // Reserve space for header, stats and position
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
