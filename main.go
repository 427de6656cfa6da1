// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Cardiostat - BMD101 ECG Stream Analyzer
//
// A CLI tool for monitoring, recording and forwarding the serial output
// of BMD101 ECG sensor modules.

package main

import (
	"os"

	"github.com/Thermoquad/cardiostat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
