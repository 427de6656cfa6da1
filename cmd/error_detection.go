// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/cardiostat/internal/stream"
	"github.com/Thermoquad/cardiostat/pkg/bmd101"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
	reconnect     bool
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze corrupted frames and anomalous values",
	Long: `Track frame errors, corrupted data, and anomalous values with statistics.

This command validates each frame and detects:
  - Checksum failures and unknown row codes (frame discarded)
  - Lost sync (a lone 0xAA followed by something else)
  - Row length mismatches
  - Anomalous values (signal quality > 200, heart rate > 250, sensor off)

By default, only errors are displayed. Use --show-all to display valid frames too.

Frames are validated in real-time, with errors highlighted immediately and
periodic statistics summaries displayed at configurable intervals.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	errorDetectionCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
	errorDetectionCmd.Flags().BoolVar(&reconnect, "reconnect", true, "Reconnect when the connection is lost")
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	var err error
	if useTUI {
		err = runTUIMode(ctx)
	} else {
		err = runTextMode(ctx)
	}
	if isCancel(err) {
		return nil
	}
	return err
}

// printFault prints a decoder fault in highlighted format
func printFault(ev bmd101.Event) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %s\n", timestamp, ev)
	fmt.Printf("  >>> FRAME DISCARDED <<<\n\n")
}

// printValidationErrors prints validation errors for a frame
func printValidationErrors(f *bmd101.Frame, errors []bmd101.ValidationError) {
	timestamp := f.Timestamp().Format("15:04:05.000")

	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m frame #%d (%d rows)\n", timestamp, f.Seq(), len(f.Rows()))
	fmt.Printf("  Checksum: \033[1;32mOK\033[0m\n")

	for i, err := range errors {
		switch err.Type {
		case bmd101.AnomalyLengthMismatch:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
			if length, ok := err.Details["length"].(int); ok {
				if expected, ok := err.Details["expected"].(int); ok {
					fmt.Printf("    Row %d: length=%d, expected=%d\n", err.RowIndex, length, expected)
				}
			}

		case bmd101.AnomalySignalQuality, bmd101.AnomalyHeartRate:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
			if value, ok := err.Details["value"].(uint8); ok {
				fmt.Printf("    Row %d: value=%d\n", err.RowIndex, value)
			}

		case bmd101.AnomalySensorOff:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)

		default:
			fmt.Printf("  Issue %d: %s\n", i+1, err.Message)
		}
	}

	fmt.Printf("  >>> FRAME FLAGGED <<<\n\n")
}

// runTextMode runs error detection in text mode
func runTextMode(ctx context.Context) error {
	fmt.Printf("Cardiostat - Error Detection Mode\n")
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	obs := newStreamObserver()

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	sess := newSession(appConfig, reconnect)
	sess.onConnected = func(connInfo string) {
		fmt.Printf("Connection: %s\n\n", connInfo)
		obs.resync()
	}
	sess.onLost = func(err error) {
		fmt.Printf("\033[1;31mConnection lost:\033[0m %v - reconnecting...\n\n", err)
	}

	err := sess.run(ctx, func(ctx context.Context, conn Connection, _ string) error {
		opts := append(obs.options(), stream.WithFaultHook(func(ev bmd101.Event) {
			synced := obs.synchronized
			obs.fault(ev)
			if synced {
				printFault(ev)
			}
		}))

		pump := stream.New(conn, opts...)
		return pump.Run(ctx, func(_ context.Context, f *bmd101.Frame) error {
			errs, first := obs.frame(f)
			if first {
				if obs.presync > 0 {
					fmt.Printf("[SYNC] Synchronized after discarding %d faults\n\n", obs.presync)
				} else {
					fmt.Printf("[SYNC] Synchronized\n\n")
				}
			}

			// Summaries go between frames so output never interleaves
			select {
			case <-statsTicker.C:
				fmt.Println()
				fmt.Print(obs.stats.String())
				fmt.Println()
			default:
			}

			if len(errs) > 0 {
				printValidationErrors(f, errs)
			} else if showAll {
				fmt.Print(bmd101.FormatFrame(f))
			}
			return nil
		})
	})

	fmt.Println()
	fmt.Print(obs.stats.String())
	return err
}
