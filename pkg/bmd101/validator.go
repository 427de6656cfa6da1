// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bmd101

import "fmt"

// AnomalyType represents different types of row anomalies
type AnomalyType int

const (
	AnomalyLengthMismatch AnomalyType = iota
	AnomalySignalQuality
	AnomalyHeartRate
	AnomalySensorOff
)

// ValidationError represents a row validation failure
type ValidationError struct {
	Type     AnomalyType
	RowIndex int
	Message  string
	Details  map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateFrame validates every row of a frame
func ValidateFrame(f *Frame) []ValidationError {
	errors := []ValidationError{}
	for _, r := range f.rows {
		errors = append(errors, ValidateRow(r)...)
	}
	return errors
}

// ValidateRow checks a decoded row for values the sensor should not send
// Returns a slice of validation errors (empty if the row is plausible)
func ValidateRow(r Row) []ValidationError {
	switch r.code {
	case CodeSignalQuality:
		return validateSignalQuality(r)
	case CodeHeartRate:
		return validateHeartRate(r)
	case CodeRawData:
		return validateRawData(r)
	}
	return []ValidationError{}
}

func lengthMismatch(r Row, expected int) []ValidationError {
	return []ValidationError{{
		Type:     AnomalyLengthMismatch,
		RowIndex: r.index,
		Message:  fmt.Sprintf("%s row length mismatch (expected %d bytes, got %d)", FormatCodeName(r.code), expected, len(r.payload)),
		Details:  map[string]interface{}{"length": len(r.payload), "expected": expected},
	}}
}

func validateSignalQuality(r Row) []ValidationError {
	quality, ok := r.Value()
	if !ok {
		return lengthMismatch(r, ValueRowSize)
	}

	if quality > SignalQualitySensorOn {
		return []ValidationError{{
			Type:     AnomalySignalQuality,
			RowIndex: r.index,
			Message:  fmt.Sprintf("Signal quality out of range (%d, valid 0-%d)", quality, SignalQualitySensorOn),
			Details:  map[string]interface{}{"value": quality, "max": SignalQualitySensorOn},
		}}
	}
	if quality == SignalQualitySensorOff {
		return []ValidationError{{
			Type:     AnomalySensorOff,
			RowIndex: r.index,
			Message:  "Sensor off (signal quality 0)",
			Details:  map[string]interface{}{"value": quality},
		}}
	}
	return []ValidationError{}
}

func validateHeartRate(r Row) []ValidationError {
	bpm, ok := r.Value()
	if !ok {
		return lengthMismatch(r, ValueRowSize)
	}

	if bpm > MaxHeartRate {
		return []ValidationError{{
			Type:     AnomalyHeartRate,
			RowIndex: r.index,
			Message:  fmt.Sprintf("Heart rate out of range (%d BPM, max %d)", bpm, MaxHeartRate),
			Details:  map[string]interface{}{"value": bpm, "max": MaxHeartRate},
		}}
	}
	return []ValidationError{}
}

func validateRawData(r Row) []ValidationError {
	if len(r.payload) != RawSampleSize {
		return lengthMismatch(r, RawSampleSize)
	}
	return []ValidationError{}
}
