// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bmd101

import (
	"strings"
	"testing"
)

func TestFormatCodeName(t *testing.T) {
	tests := []struct {
		code uint8
		want string
	}{
		{CodeSignalQuality, "SIGNAL_QUALITY"},
		{CodeHeartRate, "HEART_RATE"},
		{CodeRawData, "RAW_DATA"},
		{0x07, "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := FormatCodeName(tt.code); got != tt.want {
			t.Errorf("FormatCodeName(0x%02X) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestFormatSignalQuality(t *testing.T) {
	tests := []struct {
		quality uint8
		want    string
	}{
		{0, "sensor off"},
		{1, "poor contact"},
		{199, "poor contact"},
		{200, "sensor on"},
	}
	for _, tt := range tests {
		if got := FormatSignalQuality(tt.quality); got != tt.want {
			t.Errorf("FormatSignalQuality(%d) = %q, want %q", tt.quality, got, tt.want)
		}
	}
}

func TestFormatRow(t *testing.T) {
	tests := []struct {
		name string
		row  Row
		want string
	}{
		{"heart rate", NewHeartRateRow(72), "  #0 HEART_RATE (0x03): 72 BPM\n"},
		{"signal quality", NewSignalQualityRow(200), "  #0 SIGNAL_QUALITY (0x02): 200 (sensor on)\n"},
		{"raw sample", NewRawSampleRow(-42), "  #0 RAW_DATA (0x80): -42\n"},
		{"escaped", NewHeartRateRow(60).WithLevel(2), "  #0 HEART_RATE (0x03) excode=2: 60 BPM\n"},
		{"odd raw size", NewRow(CodeRawData, []byte{1, 2, 3}), "  #0 RAW_DATA (0x80): 01 02 03\n"},
		{"empty raw", NewRow(CodeRawData, nil), "  #0 RAW_DATA (0x80): (empty)\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatRow(tt.row); got != tt.want {
				t.Errorf("FormatRow() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatFrame(t *testing.T) {
	f := NewFrame(7, []Row{NewHeartRateRow(72), NewRawSampleRow(100)})
	out := FormatFrame(f)

	if !strings.Contains(out, "FRAME #7") {
		t.Errorf("Missing frame header: %q", out)
	}
	if !strings.Contains(out, "rows=2") {
		t.Errorf("Missing row count: %q", out)
	}
	if !strings.Contains(out, "  #1 RAW_DATA (0x80): 100\n") {
		t.Errorf("Missing second row: %q", out)
	}
}

func TestFormatHex_Wraps(t *testing.T) {
	data := make([]byte, 17)
	out := formatHex(data)
	if !strings.Contains(out, "\n      00") {
		t.Errorf("Expected a line break after 16 bytes: %q", out)
	}
}
