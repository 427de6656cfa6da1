// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bmd101

import (
	"strings"
	"testing"
)

func TestStatistics_RecordEvent(t *testing.T) {
	s := NewStatistics()
	for _, ev := range []Event{EventNone, EventRow, EventFrameAccepted} {
		s.RecordEvent(ev)
	}
	if s.TotalFrames != 0 {
		t.Errorf("Non-fault events should not be counted, got %d frames", s.TotalFrames)
	}

	s.RecordEvent(EventChecksumMismatch)
	s.RecordEvent(EventUnknownCode)
	s.RecordEvent(EventStoreOverflow)
	s.RecordEvent(EventSyncLost)

	if s.TotalFrames != 3 {
		t.Errorf("TotalFrames = %d, want 3", s.TotalFrames)
	}
	if s.ChecksumErrors != 1 || s.UnknownCodes != 1 || s.Overflows != 1 || s.SyncLosses != 1 {
		t.Errorf("Unexpected counters: %+v", s)
	}
	if s.ErrorCount() != 3 {
		t.Errorf("ErrorCount() = %d, want 3", s.ErrorCount())
	}
}

func TestStatistics_RecordFrame(t *testing.T) {
	s := NewStatistics()

	good := NewFrame(1, []Row{NewRawSampleRow(10), NewRawSampleRow(20), NewHeartRateRow(66)})
	s.RecordFrame(good, ValidateFrame(good))

	off := NewFrame(2, []Row{NewSignalQualityRow(0)})
	s.RecordFrame(off, ValidateFrame(off))

	if s.TotalFrames != 2 || s.ValidFrames != 1 {
		t.Errorf("TotalFrames = %d ValidFrames = %d, want 2 and 1", s.TotalFrames, s.ValidFrames)
	}
	if s.Rows != 4 || s.RawSamples != 2 {
		t.Errorf("Rows = %d RawSamples = %d, want 4 and 2", s.Rows, s.RawSamples)
	}
	if !s.HasHeartRate || s.HeartRate != 66 {
		t.Errorf("HeartRate = %d (%v), want 66", s.HeartRate, s.HasHeartRate)
	}
	if !s.HasSignalQuality || s.SignalQuality != 0 {
		t.Errorf("SignalQuality = %d (%v), want 0", s.SignalQuality, s.HasSignalQuality)
	}
	if s.SensorOff != 1 {
		t.Errorf("SensorOff = %d, want 1", s.SensorOff)
	}
}

func TestStatistics_String(t *testing.T) {
	s := NewStatistics()
	f := NewFrame(1, []Row{NewHeartRateRow(70)})
	s.RecordFrame(f, nil)
	s.RecordEvent(EventChecksumMismatch)

	out := s.String()
	for _, want := range []string{"Total Frames:", "Checksum Errors:", "Heart Rate:", "70 BPM"} {
		if !strings.Contains(out, want) {
			t.Errorf("Summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Unknown Codes:") {
		t.Errorf("Summary should omit zero counters:\n%s", out)
	}
}

func TestStatistics_Reset(t *testing.T) {
	s := NewStatistics()
	s.RecordEvent(EventChecksumMismatch)
	s.Reset()
	if s.TotalFrames != 0 || s.ChecksumErrors != 0 {
		t.Errorf("Reset did not clear counters: %+v", s)
	}
	if s.StartTime.IsZero() {
		t.Error("Reset should restart the clock")
	}
}
