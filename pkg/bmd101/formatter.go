// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bmd101

import (
	"fmt"
	"strings"
)

// FormatCodeName returns the human-readable name for a row code
func FormatCodeName(code uint8) string {
	switch code {
	case CodeSignalQuality:
		return "SIGNAL_QUALITY"
	case CodeHeartRate:
		return "HEART_RATE"
	case CodeRawData:
		return "RAW_DATA"
	default:
		return "UNKNOWN"
	}
}

// FormatSignalQuality describes a signal quality value
func FormatSignalQuality(quality uint8) string {
	switch {
	case quality == SignalQualitySensorOff:
		return "sensor off"
	case quality >= SignalQualitySensorOn:
		return "sensor on"
	default:
		return "poor contact"
	}
}

// FormatFrame formats an accepted frame into a human-readable string
func FormatFrame(f *Frame) string {
	timestamp := f.timestamp.Format("15:04:05.000")

	var s strings.Builder
	s.WriteString(fmt.Sprintf("[%s] FRAME #%d len=%d rows=%d checksum=0x%02X\n",
		timestamp, f.seq, f.payloadSize, len(f.rows), f.checksum))
	for _, r := range f.rows {
		s.WriteString(FormatRow(r))
	}
	return s.String()
}

// FormatRow formats a single row, indented for use below a frame header
func FormatRow(r Row) string {
	prefix := fmt.Sprintf("  #%d %s (0x%02X)", r.index, FormatCodeName(r.code), r.code)
	if r.level > 0 {
		prefix += fmt.Sprintf(" excode=%d", r.level)
	}

	switch r.code {
	case CodeSignalQuality:
		if v, ok := r.Value(); ok {
			return fmt.Sprintf("%s: %d (%s)\n", prefix, v, FormatSignalQuality(v))
		}
	case CodeHeartRate:
		if v, ok := r.Value(); ok {
			return fmt.Sprintf("%s: %d BPM\n", prefix, v)
		}
	case CodeRawData:
		if v, ok := r.RawSample(); ok {
			return fmt.Sprintf("%s: %d\n", prefix, v)
		}
	}

	// Default: hex dump
	return fmt.Sprintf("%s: %s\n", prefix, formatHex(r.payload))
}

func formatHex(data []byte) string {
	if len(data) == 0 {
		return "(empty)"
	}
	var s strings.Builder
	for i, b := range data {
		if i > 0 {
			if i%16 == 0 {
				s.WriteString("\n      ")
			} else {
				s.WriteByte(' ')
			}
		}
		s.WriteString(fmt.Sprintf("%02X", b))
	}
	return s.String()
}
