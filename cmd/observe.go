// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"go.uber.org/zap"

	"github.com/Thermoquad/cardiostat/internal/logging"
	"github.com/Thermoquad/cardiostat/internal/metrics"
	"github.com/Thermoquad/cardiostat/internal/stream"
	"github.com/Thermoquad/cardiostat/pkg/bmd101"
)

// streamObserver keeps statistics, metrics and the fault log for a stream
type streamObserver struct {
	stats    *bmd101.Statistics
	metrics  *metrics.DecoderMetrics
	throttle *logging.Throttle
	logger   *zap.Logger

	// synchronized is set by the first accepted frame
	synchronized bool
	// presync counts faults seen while hunting for the first frame
	presync int
}

func newStreamObserver() *streamObserver {
	perSecond := 5.0
	if appConfig != nil {
		perSecond = appConfig.Logging.FaultsPerSecond
	}
	return &streamObserver{
		stats:    bmd101.NewStatistics(),
		metrics:  decoderMetrics,
		throttle: logging.NewThrottle(perSecond, 10),
		logger:   logger,
	}
}

// options returns the pump options wiring the observer in
func (o *streamObserver) options() []stream.Option {
	opts := []stream.Option{
		stream.WithLogger(o.logger),
		stream.WithFaultHook(o.fault),
	}
	if o.metrics != nil {
		opts = append(opts, stream.WithByteHook(func(n int) { o.metrics.Bytes.Add(float64(n)) }))
	}
	return opts
}

// fault records a decoder fault. Faults before the first good frame are
// just the decoder finding its way into the stream and are not logged.
func (o *streamObserver) fault(ev bmd101.Event) {
	o.stats.RecordEvent(ev)
	if o.metrics != nil {
		o.metrics.ObserveEvent(ev)
	}
	if !o.synchronized {
		o.presync++
		return
	}
	if ok, suppressed := o.throttle.Allow(); ok {
		fields := []zap.Field{zap.Stringer("event", ev)}
		if suppressed > 0 {
			fields = append(fields, zap.Int("suppressed", suppressed))
		}
		o.logger.Warn("decoder fault", fields...)
	}
}

// frame validates an accepted frame and records it. first is true for
// the frame that synchronized the stream.
func (o *streamObserver) frame(f *bmd101.Frame) (errs []bmd101.ValidationError, first bool) {
	errs = bmd101.ValidateFrame(f)
	first = !o.synchronized
	o.synchronized = true
	o.stats.RecordFrame(f, errs)
	if o.metrics != nil {
		o.metrics.ObserveEvent(bmd101.EventFrameAccepted)
		o.metrics.ObserveFrame(f, errs)
	}
	return errs, first
}

// resync forgets the synchronization state after a reconnect
func (o *streamObserver) resync() {
	o.synchronized = false
	o.presync = 0
}
