// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/cardiostat/internal/stream"
	"github.com/Thermoquad/cardiostat/pkg/bmd101"
)

var rawLogFaults bool

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display decoded frames in human-readable format",
	Long: `Continuously decode and display BMD101 frames as they arrive.

Each accepted frame is shown with timestamp, sequence number, payload size,
checksum and its decoded rows (signal quality, heart rate, raw samples).
Frames failing the checksum are never shown; use --faults to print a line
for every decoder fault instead.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogFaults, "faults", false, "Print decoder faults")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection(appConfig)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Cardiostat - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, cancel := signalContext()
	defer cancel()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	obs := newStreamObserver()
	opts := obs.options()
	if rawLogFaults {
		opts = append(opts, stream.WithFaultHook(func(ev bmd101.Event) {
			obs.fault(ev)
			fmt.Printf("[ERROR] %s\n", ev)
		}))
	}

	pump := stream.New(conn, opts...)
	err = pump.Run(ctx, func(_ context.Context, f *bmd101.Frame) error {
		obs.frame(f)
		fmt.Print(bmd101.FormatFrame(f))
		return nil
	})
	if err == nil || isCancel(err) || ctx.Err() != nil || errors.Is(err, ErrConnectionClosed) {
		fmt.Printf("\n%s", obs.stats.String())
		return nil
	}
	return err
}
