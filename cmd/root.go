// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Session configuration
	configPath string

	// Local peripheral flags
	simulate bool
	spiPort  string

	// Serial capture stream flags
	portName string
	baudRate int

	// WebSocket capture stream flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool
)

var rootCmd = &cobra.Command{
	Use:   "bisscope",
	Short: "BiSS-C Absolute Encoder Analyzer",
	Long: `Bisscope - A CLI tool for calibrating, reading and analyzing BiSS-C absolute encoders.

Runs delay calibration, decodes and validates frames, tracks position and speed,
and records or streams raw captures for later analysis.

Encoder sources:
  Simulator:  --simulate
  SPI:        --spi SPI0.0 (or hardware.spi_port in the config file)

Capture streams (from a probe MCU or a remote "bisscope serve"):
  Serial:     --port /dev/ttyUSB0 [--baud 115200]
  WebSocket:  --url ws://host/stream [--username user]

For WebSocket authentication, the password is read from the BISSCOPE_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:      "1.0.0",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Session configuration file (YAML)")

	// Local peripheral flags
	rootCmd.PersistentFlags().BoolVar(&simulate, "simulate", false, "Use the simulated encoder")
	rootCmd.PersistentFlags().StringVar(&spiPort, "spi", "", "SPI port clocking the encoder")

	// Serial capture stream flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket capture stream flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
