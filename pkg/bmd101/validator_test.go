// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bmd101

import "testing"

func TestValidateRow(t *testing.T) {
	tests := []struct {
		name    string
		row     Row
		anomaly AnomalyType
		wantErr bool
	}{
		{"good heart rate", NewHeartRateRow(72), 0, false},
		{"heart rate limit", NewHeartRateRow(MaxHeartRate), 0, false},
		{"heart rate too high", NewHeartRateRow(MaxHeartRate + 1), AnomalyHeartRate, true},
		{"sensor on", NewSignalQualityRow(200), 0, false},
		{"poor contact", NewSignalQualityRow(100), 0, false},
		{"sensor off", NewSignalQualityRow(0), AnomalySensorOff, true},
		{"quality out of range", NewSignalQualityRow(201), AnomalySignalQuality, true},
		{"raw sample", NewRawSampleRow(-1000), 0, false},
		{"short raw row", NewRow(CodeRawData, []byte{1}), AnomalyLengthMismatch, true},
		{"empty raw row", NewRow(CodeRawData, nil), AnomalyLengthMismatch, true},
		{"empty heart rate", NewRow(CodeHeartRate, nil), AnomalyLengthMismatch, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateRow(tt.row)
			if !tt.wantErr {
				if len(errs) != 0 {
					t.Errorf("Expected no errors, got %v", errs)
				}
				return
			}
			if len(errs) != 1 {
				t.Fatalf("Expected 1 error, got %d", len(errs))
			}
			if errs[0].Type != tt.anomaly {
				t.Errorf("Anomaly = %d, want %d", errs[0].Type, tt.anomaly)
			}
			if errs[0].Error() == "" {
				t.Error("Error message should not be empty")
			}
		})
	}
}

func TestValidateFrame_RowIndex(t *testing.T) {
	f := NewFrame(1, []Row{
		NewRawSampleRow(1),
		NewHeartRateRow(255),
		NewSignalQualityRow(0),
	})

	errs := ValidateFrame(f)
	if len(errs) != 2 {
		t.Fatalf("Expected 2 errors, got %d", len(errs))
	}
	if errs[0].RowIndex != 1 || errs[0].Type != AnomalyHeartRate {
		t.Errorf("First error = %+v", errs[0])
	}
	if errs[1].RowIndex != 2 || errs[1].Type != AnomalySensorOff {
		t.Errorf("Second error = %+v", errs[1])
	}
}
