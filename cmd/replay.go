// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/cardiostat/pkg/bmd101"
)

var (
	replayRaw      bool
	replayPlot     bool
	replayRealtime bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Play back a recording or a raw capture",
	Long: `Play back a file written by the record command.

By default the file holds CBOR frame records and every frame is printed
like raw_log does. With --raw the file is a raw byte capture and is run
through the decoder again, faults included, followed by a statistics
summary.

With --plot samples are printed in the plot command's "sample,x" format
instead. With --realtime frames are paced by their recorded timestamps.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayRaw, "raw", false, "File is a raw byte capture")
	replayCmd.Flags().BoolVar(&replayPlot, "plot", false, "Print samples in plot format")
	replayCmd.Flags().BoolVar(&replayRealtime, "realtime", false, "Pace frames by their recorded timestamps")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer f.Close()

	ctx, cancel := signalContext()
	defer cancel()

	out := frameOutput(os.Stdout)
	if replayRaw {
		err = replayCapture(ctx, f, out, os.Stdout)
	} else {
		err = replayRecording(ctx, f, out)
	}
	if isCancel(err) {
		return nil
	}
	return err
}

// frameOutput returns the per-frame printer selected by the flags
func frameOutput(w io.Writer) func(*bmd101.Frame) error {
	if replayPlot {
		p := newPlotter(w, io.Discard)
		return p.frame
	}
	return func(f *bmd101.Frame) error {
		_, err := fmt.Fprint(w, bmd101.FormatFrame(f))
		return err
	}
}

// replayRecording prints every frame of a CBOR recording
func replayRecording(ctx context.Context, r io.Reader, out func(*bmd101.Frame) error) error {
	reader := bmd101.NewFrameReader(r)
	var last time.Time

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		f, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if replayRealtime && !last.IsZero() {
			if gap := f.Timestamp().Sub(last); gap > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(gap):
				}
			}
		}
		last = f.Timestamp()

		if err := out(f); err != nil {
			return err
		}
	}
}

// replayCapture decodes a raw capture and prints frames, faults and a
// statistics summary to w. The decoder is fed on this goroutine so every
// frame is taken before the next one can replace it.
func replayCapture(ctx context.Context, r io.Reader, out func(*bmd101.Frame) error, w io.Writer) error {
	obs := newStreamObserver()
	store := bmd101.NewStore()
	decoder := bmd101.NewDecoder(store)
	br := bufio.NewReader(r)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		b, err := br.ReadByte()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read error: %w", err)
		}

		ev := decoder.Feed(b)
		if ev.IsFault() {
			obs.fault(ev)
			if !replayPlot {
				fmt.Fprintf(w, "[ERROR] %s\n", ev)
			}
			continue
		}
		if ev != bmd101.EventFrameAccepted || !store.ResponseReady() {
			continue
		}
		f, ok := store.TakeFrame()
		if !ok {
			continue
		}
		obs.frame(f)
		if err := out(f); err != nil {
			return err
		}
	}

	if !replayPlot {
		stats := decoder.Stats()
		fmt.Fprintf(w, "\n%d bytes, %d skipped, %d frames accepted\n", stats.Bytes, stats.SkippedBytes, stats.FramesAccepted)
		if decoder.InFrame() {
			fmt.Fprintf(w, "capture ends inside a frame\n")
		}
		fmt.Fprint(w, obs.stats.String())
	}
	return nil
}
