// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bmd101

import (
	"fmt"
	"time"
)

// Statistics tracks frame statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames      uint64 // accepted + rejected
	ValidFrames      uint64 // accepted without anomalies
	ChecksumErrors   uint64
	UnknownCodes     uint64
	SyncLosses       uint64
	Overflows        uint64
	Rows             uint64
	RawSamples       uint64
	LengthMismatches uint64
	AnomalousValues  uint64
	SensorOff        uint64

	// Latest vitals
	HeartRate        uint8
	SignalQuality    uint8
	HasHeartRate     bool
	HasSignalQuality bool

	// Rates (calculated)
	FrameRate  float64 // frames/sec
	SampleRate float64 // raw samples/sec
	ErrorRate  float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// RecordEvent counts a decoder fault. Non-fault events are ignored;
// accepted frames are counted by RecordFrame.
func (s *Statistics) RecordEvent(ev Event) {
	switch ev {
	case EventChecksumMismatch:
		s.TotalFrames++
		s.ChecksumErrors++
	case EventUnknownCode:
		s.TotalFrames++
		s.UnknownCodes++
	case EventStoreOverflow:
		s.TotalFrames++
		s.Overflows++
	case EventSyncLost:
		s.SyncLosses++
	default:
		return
	}
	s.LastUpdateTime = time.Now()
}

// RecordFrame counts an accepted frame and its validation errors
func (s *Statistics) RecordFrame(f *Frame, validationErrors []ValidationError) {
	s.TotalFrames++
	s.Rows += uint64(len(f.rows))

	for _, r := range f.rows {
		switch r.code {
		case CodeRawData:
			if _, ok := r.RawSample(); ok {
				s.RawSamples++
			}
		case CodeHeartRate:
			if v, ok := r.Value(); ok {
				s.HeartRate, s.HasHeartRate = v, true
			}
		case CodeSignalQuality:
			if v, ok := r.Value(); ok {
				s.SignalQuality, s.HasSignalQuality = v, true
			}
		}
	}

	if len(validationErrors) > 0 {
		for _, err := range validationErrors {
			switch err.Type {
			case AnomalyLengthMismatch:
				s.LengthMismatches++
			case AnomalySensorOff:
				s.SensorOff++
			case AnomalySignalQuality, AnomalyHeartRate:
				s.AnomalousValues++
			}
		}
	} else {
		s.ValidFrames++
	}

	s.LastUpdateTime = time.Now()
}

// ErrorCount returns the number of discarded or anomalous frames
func (s *Statistics) ErrorCount() uint64 {
	return s.ChecksumErrors + s.UnknownCodes + s.Overflows + s.LengthMismatches + s.AnomalousValues
}

// CalculateRates calculates frame, sample and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.SampleRate = float64(s.RawSamples) / elapsed
		s.ErrorRate = float64(s.ErrorCount()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent, checksumPercent, unknownPercent float64
	if s.TotalFrames > 0 {
		validPercent = float64(s.ValidFrames) * 100.0 / float64(s.TotalFrames)
		checksumPercent = float64(s.ChecksumErrors) * 100.0 / float64(s.TotalFrames)
		unknownPercent = float64(s.UnknownCodes) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, validPercent)
	result += fmt.Sprintf("Rows:            %8d (%d raw samples)\n", s.Rows, s.RawSamples)

	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d (%.1f%%)\n", s.ChecksumErrors, checksumPercent)
	}
	if s.UnknownCodes > 0 {
		result += fmt.Sprintf("Unknown Codes:   %8d (%.1f%%)\n", s.UnknownCodes, unknownPercent)
	}
	if s.SyncLosses > 0 {
		result += fmt.Sprintf("Sync Losses:     %8d\n", s.SyncLosses)
	}
	if s.Overflows > 0 {
		result += fmt.Sprintf("Store Overflows: %8d\n", s.Overflows)
	}
	if s.LengthMismatches > 0 {
		result += fmt.Sprintf("Length Mismatch: %8d\n", s.LengthMismatches)
	}
	if s.AnomalousValues > 0 {
		result += fmt.Sprintf("Anomalous Values:%8d\n", s.AnomalousValues)
	}
	if s.SensorOff > 0 {
		result += fmt.Sprintf("Sensor Off:      %8d\n", s.SensorOff)
	}
	if s.HasHeartRate {
		result += fmt.Sprintf("Heart Rate:      %8d BPM\n", s.HeartRate)
	}
	if s.HasSignalQuality {
		result += fmt.Sprintf("Signal Quality:  %8d (%s)\n", s.SignalQuality, FormatSignalQuality(s.SignalQuality))
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Sample Rate:     %8.1f samples/sec\n", s.SampleRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
