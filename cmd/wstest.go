// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/cardiostat/pkg/bmd101"
)

var wsTestCmd = &cobra.Command{
	Use:   "ws_test",
	Short: "Test raw connection stability",
	Long: `Test the connection to the sensor bridge without interpreting frames.

This command connects and just listens, logging every chunk of data
received and any error encountered. The bytes are also run through a
decoder so the summary tells whether they look like a BMD101 stream.
Useful for debugging connection stability issues.

Exit codes:
  0 - Test completed normally
  1 - Test failed
  2 - Connection error`,
	RunE: runWsTest,
}

var (
	wsTestDuration int
	wsTestQuiet    bool
)

func init() {
	rootCmd.AddCommand(wsTestCmd)
	wsTestCmd.Flags().IntVar(&wsTestDuration, "duration", 30, "Test duration in seconds")
	wsTestCmd.Flags().BoolVar(&wsTestQuiet, "quiet", false, "Do not dump received bytes")
}

// linkReport summarizes a stability test
type linkReport struct {
	chunks  int
	bytes   int
	decoder *bmd101.Decoder
}

func newLinkReport() *linkReport {
	return &linkReport{decoder: bmd101.NewDecoder(nil)}
}

func (r *linkReport) add(data []byte) {
	r.chunks++
	r.bytes += len(data)
	for _, b := range data {
		r.decoder.Feed(b)
	}
}

func (r *linkReport) print(elapsed time.Duration, result string) {
	stats := r.decoder.Stats()
	fmt.Printf("\n--- Test Results ---\n")
	fmt.Printf("Duration: %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Chunks received: %d\n", r.chunks)
	fmt.Printf("Bytes received: %d\n", r.bytes)
	fmt.Printf("BMD101 frames: %d (%d checksum errors, %d bytes skipped)\n",
		stats.FramesAccepted, stats.ChecksumErrors, stats.SkippedBytes)
	fmt.Printf("Result: %s\n", result)
}

func runWsTest(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection(appConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(exitConnection)
	}
	defer conn.Close()

	fmt.Printf("Connection Stability Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Duration: %d seconds\n\n", wsTestDuration)

	// Start a goroutine to read from the connection
	readChan := make(chan []byte, 100)
	errChan := make(chan error, 1)

	go func() {
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				readChan <- data
			}
		}
	}()

	start := time.Now()
	endTime := start.Add(time.Duration(wsTestDuration) * time.Second)
	report := newLinkReport()
	heartbeat := time.NewTicker(time.Second)
	defer heartbeat.Stop()

	fmt.Printf("Listening for data...\n\n")

	for time.Now().Before(endTime) {
		select {
		case data := <-readChan:
			report.add(data)
			if !wsTestQuiet {
				fmt.Printf("[%s] Received %d bytes: %x\n",
					time.Now().Format("15:04:05.000"), len(data), data)
			}

		case err := <-errChan:
			fmt.Printf("\n[%s] Connection error: %v\n",
				time.Now().Format("15:04:05.000"), err)
			report.print(time.Since(start), "FAILED (connection error)")
			conn.Close()
			os.Exit(exitTimeout)

		case <-heartbeat.C:
			// Just a heartbeat to show the test is running
			remaining := time.Until(endTime).Seconds()
			fmt.Printf("[%s] Still connected... (%.0fs remaining, %d bytes)\n",
				time.Now().Format("15:04:05.000"), remaining, report.bytes)
		}
	}

	report.print(time.Since(start), "PASSED (connection stable)")
	return nil
}
