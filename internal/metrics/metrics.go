// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Thermoquad/cardiostat/pkg/bmd101"
)

// NewRegistry creates a registry with the Go and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the HTTP handler exposing reg
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// DecoderMetrics are the stream metrics
type DecoderMetrics struct {
	Bytes         prometheus.Counter
	Frames        *prometheus.CounterVec // labels: result
	SyncLosses    prometheus.Counter
	Rows          *prometheus.CounterVec // labels: code
	Anomalies     *prometheus.CounterVec // labels: type
	HeartRate     prometheus.Gauge
	SignalQuality prometheus.Gauge
	Published     *prometheus.CounterVec // labels: sink, result
}

// NewDecoderMetrics registers and returns the stream metrics
func NewDecoderMetrics(reg prometheus.Registerer) *DecoderMetrics {
	m := &DecoderMetrics{
		Bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cardiostat_bytes_total",
			Help: "Total bytes fed to the decoder.",
		}),
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardiostat_frames_total",
			Help: "Frames seen by the decoder by result.",
		}, []string{"result"}),
		SyncLosses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cardiostat_sync_losses_total",
			Help: "Sync pairs broken after the first byte.",
		}),
		Rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardiostat_rows_total",
			Help: "Rows of accepted frames by code.",
		}, []string{"code"}),
		Anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardiostat_anomalies_total",
			Help: "Implausible row values by type.",
		}, []string{"type"}),
		HeartRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cardiostat_heart_rate_bpm",
			Help: "Last reported heart rate.",
		}),
		SignalQuality: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cardiostat_signal_quality",
			Help: "Last reported signal quality (0 sensor off, 200 sensor on).",
		}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardiostat_published_frames_total",
			Help: "Frames handed to publishers by sink and result.",
		}, []string{"sink", "result"}),
	}
	reg.MustRegister(m.Bytes, m.Frames, m.SyncLosses, m.Rows, m.Anomalies, m.HeartRate, m.SignalQuality, m.Published)
	return m
}

// ObserveEvent counts a decoder event
func (m *DecoderMetrics) ObserveEvent(ev bmd101.Event) {
	switch ev {
	case bmd101.EventFrameAccepted, bmd101.EventChecksumMismatch, bmd101.EventUnknownCode, bmd101.EventStoreOverflow:
		m.Frames.WithLabelValues(ev.String()).Inc()
	case bmd101.EventSyncLost:
		m.SyncLosses.Inc()
	}
}

// ObserveFrame records the rows, vitals and anomalies of an accepted frame
func (m *DecoderMetrics) ObserveFrame(f *bmd101.Frame, errs []bmd101.ValidationError) {
	for _, r := range f.Rows() {
		m.Rows.WithLabelValues(codeLabel(r.Code())).Inc()
	}
	if hr, ok := f.HeartRate(); ok {
		m.HeartRate.Set(float64(hr))
	}
	if q, ok := f.SignalQuality(); ok {
		m.SignalQuality.Set(float64(q))
	}
	for _, e := range errs {
		m.Anomalies.WithLabelValues(anomalyLabel(e.Type)).Inc()
	}
}

// ObservePublish counts a publish attempt
func (m *DecoderMetrics) ObservePublish(sink string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Published.WithLabelValues(sink, result).Inc()
}

func codeLabel(code uint8) string {
	switch code {
	case bmd101.CodeSignalQuality:
		return "signal_quality"
	case bmd101.CodeHeartRate:
		return "heart_rate"
	case bmd101.CodeRawData:
		return "raw_data"
	}
	return "unknown"
}

func anomalyLabel(t bmd101.AnomalyType) string {
	switch t {
	case bmd101.AnomalyLengthMismatch:
		return "length_mismatch"
	case bmd101.AnomalySignalQuality:
		return "signal_quality"
	case bmd101.AnomalyHeartRate:
		return "heart_rate"
	case bmd101.AnomalySensorOff:
		return "sensor_off"
	}
	return "unknown"
}

// Serve exposes reg on addr until ctx is cancelled
func Serve(ctx context.Context, addr, path string, reg *prometheus.Registry, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(path, Handler(reg))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", zap.String("addr", addr), zap.String("path", path))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics shutdown: %w", err)
		}
		return nil
	}
}
