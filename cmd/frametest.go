// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/cardiostat/internal/stream"
	"github.com/Thermoquad/cardiostat/pkg/bmd101"
)

var (
	frameTestTimeout int
)

// Exit codes of frame_test
const (
	exitFrameReceived = 0
	exitTimeout       = 1
	exitConnection    = 2
)

// errFrameReceived stops the pump after the first good frame
var errFrameReceived = errors.New("frame received")

var frameTestCmd = &cobra.Command{
	Use:   "frame_test",
	Short: "Test connection by waiting for a valid BMD101 frame",
	Long: `Wait for a valid BMD101 frame on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any
frame that passes the checksum. Bytes before the first sync pair and
frames failing the checksum are ignored.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for checking the sensor wiring and baud rate.`,
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
	frameTestCmd.Flags().IntVar(&frameTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection(appConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(exitConnection)
	}
	defer conn.Close()

	fmt.Printf("Cardiostat - Frame Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", frameTestTimeout)
	fmt.Printf("Waiting for valid BMD101 frame...\n\n")

	code := waitForFrame(conn, time.Duration(frameTestTimeout)*time.Second)
	conn.Close()
	os.Exit(code)
	return nil
}

// waitForFrame reads src until the first accepted frame and returns the
// frame_test exit code
func waitForFrame(src Connection, timeout time.Duration) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var frame *bmd101.Frame
	pump := stream.New(src)
	err := pump.Run(ctx, func(_ context.Context, f *bmd101.Frame) error {
		frame = f
		return errFrameReceived
	})

	switch {
	case frame != nil:
		if stats, done := pump.Stats(); done && stats.SkippedBytes > 0 {
			fmt.Printf("(skipped %d bytes before sync)\n", stats.SkippedBytes)
		}
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Payload: %d bytes\n", frame.PayloadSize())
		fmt.Printf("  Rows: %d\n", len(frame.Rows()))
		fmt.Printf("  Checksum: 0x%02X\n", frame.Checksum())
		for _, r := range frame.Rows() {
			fmt.Print(bmd101.FormatRow(r))
		}
		return exitFrameReceived

	case errors.Is(err, context.DeadlineExceeded):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %s\n", timeout)
		return exitTimeout

	case err != nil:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		return exitConnection

	default:
		// Source ended without a frame
		fmt.Fprintf(os.Stderr, "TIMEOUT: Connection ended without a valid frame\n")
		return exitTimeout
	}
}
