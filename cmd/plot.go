// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/cardiostat/internal/stream"
	"github.com/Thermoquad/cardiostat/pkg/bmd101"
)

var (
	plotThreshold int
	plotBeep      bool
	plotVitals    bool
)

var plotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Stream raw ECG samples in serial plotter format",
	Long: `Print every raw sample as a "sample,x" line, where x counts samples
since start. The output can be piped into a serial plotter or saved as CSV.

With --beep a terminal bell is written to stderr whenever a sample rises
above --threshold, which gives an audible tick on every R peak.

With --vitals heart rate and signal quality rows are printed as
"# hr=72 quality=200" comment lines.`,
	RunE: runPlot,
}

func init() {
	rootCmd.AddCommand(plotCmd)
	plotCmd.Flags().IntVar(&plotThreshold, "threshold", 4000, "Sample value that triggers a beep")
	plotCmd.Flags().BoolVar(&plotBeep, "beep", false, "Ring the terminal bell on samples above the threshold")
	plotCmd.Flags().BoolVar(&plotVitals, "vitals", false, "Print heart rate and signal quality as comment lines")
}

// plotter writes raw samples as "sample,x" lines
type plotter struct {
	out       *bufio.Writer
	bell      io.Writer
	x         uint32
	threshold int
	beep      bool
	vitals    bool
	armed     bool
}

func newPlotter(out, bell io.Writer) *plotter {
	return &plotter{
		out:       bufio.NewWriter(out),
		bell:      bell,
		threshold: plotThreshold,
		beep:      plotBeep,
		vitals:    plotVitals,
		armed:     true,
	}
}

// frame writes all samples of a frame and flushes
func (p *plotter) frame(f *bmd101.Frame) error {
	for _, r := range f.Rows() {
		switch {
		case r.IsRawSample():
			if s, ok := r.RawSample(); ok {
				p.sample(s)
			}
		case p.vitals && r.IsHeartRate():
			if v, ok := r.Value(); ok {
				fmt.Fprintf(p.out, "# hr=%d\n", v)
			}
		case p.vitals && r.IsSignalQuality():
			if v, ok := r.Value(); ok {
				fmt.Fprintf(p.out, "# quality=%d\n", v)
			}
		}
	}
	return p.out.Flush()
}

func (p *plotter) sample(s int16) {
	fmt.Fprintf(p.out, "%d,%d\n", s, p.x)

	// x wraps instead of overflowing
	if p.x == math.MaxUint32 {
		p.x = 0
	} else {
		p.x++
	}

	if !p.beep {
		return
	}
	// One bell per excursion above the threshold
	if int(s) > p.threshold {
		if p.armed {
			p.bell.Write([]byte("\a"))
			p.armed = false
		}
	} else {
		p.armed = true
	}
}

func runPlot(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	p := newPlotter(os.Stdout, os.Stderr)
	obs := newStreamObserver()

	sess := newSession(appConfig, false)
	err := sess.run(ctx, func(ctx context.Context, conn Connection, connInfo string) error {
		fmt.Fprintf(os.Stderr, "Plotting from %s\n", connInfo)
		pump := stream.New(conn, obs.options()...)
		return pump.Run(ctx, func(_ context.Context, f *bmd101.Frame) error {
			obs.frame(f)
			return p.frame(f)
		})
	})
	if isCancel(err) {
		return nil
	}
	return err
}
