// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Bisscope - BiSS-C Absolute Encoder Analyzer
//
// A CLI tool for calibrating, reading, recording and monitoring BiSS-C
// absolute encoders.

package main

import (
	"os"

	"github.com/Thermoquad/bisscope/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
