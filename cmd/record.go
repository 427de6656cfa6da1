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
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/cardiostat/internal/stream"
	"github.com/Thermoquad/cardiostat/pkg/bmd101"
)

var (
	recordOutput   string
	recordCapture  string
	recordDuration time.Duration
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record decoded frames to a CBOR file",
	Long: `Record every accepted frame to a file of consecutive CBOR records.

The file is written to --output, or to a new file named
cardiostat-<time>-<id>.cbor in the record directory (--record-dir or
record.dir in the config file). Recordings can be played back with the
replay command.

With --capture the raw bytes received from the sensor are also written to
a file, including the bytes of corrupted frames. A capture can be decoded
again later with "replay --raw".

Recording stops after --duration, or on Ctrl+C. A lost connection is
reopened until then.`,
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().StringVarP(&recordOutput, "output", "o", "", "Recording file (default: generated in the record directory)")
	recordCmd.Flags().StringVar(&recordCapture, "capture", "", "Also write the raw byte stream to this file")
	recordCmd.Flags().DurationVar(&recordDuration, "duration", 0, "Stop after this long (0 records until interrupted)")
	recordCmd.Flags().String("record-dir", ".", "Directory for generated recording files")
}

// recordingName returns a new recording file name in dir
func recordingName(dir string, now time.Time) string {
	id := uuid.NewString()[:8]
	return filepath.Join(dir, fmt.Sprintf("cardiostat-%s-%s.cbor", now.Format("20060102-150405"), id))
}

// recorder appends frames to a recording
type recorder struct {
	w      *bufio.Writer
	fw     *bmd101.FrameWriter
	frames uint64
}

func newRecorder(w io.Writer) *recorder {
	bw := bufio.NewWriter(w)
	return &recorder{w: bw, fw: bmd101.NewFrameWriter(bw)}
}

func (r *recorder) frame(f *bmd101.Frame) error {
	if err := r.fw.Write(f); err != nil {
		return err
	}
	r.frames++
	return nil
}

func (r *recorder) flush() error {
	return r.w.Flush()
}

func runRecord(cmd *cobra.Command, args []string) error {
	path := recordOutput
	if path == "" {
		if err := os.MkdirAll(appConfig.Record.Dir, 0o755); err != nil {
			return fmt.Errorf("failed to create record directory: %w", err)
		}
		path = recordingName(appConfig.Record.Dir, time.Now())
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create recording: %w", err)
	}
	defer out.Close()
	rec := newRecorder(out)

	var capture *bufio.Writer
	if recordCapture != "" {
		cf, err := os.Create(recordCapture)
		if err != nil {
			return fmt.Errorf("failed to create capture: %w", err)
		}
		defer cf.Close()
		capture = bufio.NewWriter(cf)
	}

	ctx, cancel := signalContext()
	defer cancel()
	if recordDuration > 0 {
		ctx, cancel = context.WithTimeout(ctx, recordDuration)
		defer cancel()
	}

	fmt.Printf("Cardiostat - Recording\n")
	fmt.Printf("Output: %s\n", path)
	if capture != nil {
		fmt.Printf("Capture: %s\n", recordCapture)
	}
	fmt.Printf("Press Ctrl+C to stop\n\n")

	obs := newStreamObserver()
	sess := newSession(appConfig, true)
	err = sess.run(ctx, func(ctx context.Context, conn Connection, connInfo string) error {
		fmt.Printf("Connection: %s\n", connInfo)
		obs.resync()

		var src io.Reader = conn
		if capture != nil {
			src = io.TeeReader(conn, capture)
		}

		pump := stream.New(src, obs.options()...)
		return pump.Run(ctx, func(_ context.Context, f *bmd101.Frame) error {
			obs.frame(f)
			return rec.frame(f)
		})
	})

	if ferr := rec.flush(); ferr != nil {
		return fmt.Errorf("failed to write recording: %w", ferr)
	}
	if capture != nil {
		if ferr := capture.Flush(); ferr != nil {
			return fmt.Errorf("failed to write capture: %w", ferr)
		}
	}

	logger.Info("recording finished",
		zap.String("file", path),
		zap.Uint64("frames", rec.frames),
	)
	fmt.Printf("\nRecorded %d frames to %s\n", rec.frames, path)
	fmt.Print(obs.stats.String())

	if isCancel(err) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
