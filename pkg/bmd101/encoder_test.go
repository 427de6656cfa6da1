// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bmd101

import (
	"bytes"
	"testing"
)

func TestFrameBuilder_Layout(t *testing.T) {
	data := mustEncode(t, NewFrameBuilder().HeartRate(72).Escape().SignalQuality(150))
	want := []byte{0xAA, 0xAA, 0x05, 0x03, 0x48, 0x55, 0x02, 0x96, 0xC7}
	if !bytes.Equal(data, want) {
		t.Errorf("Frame = % X, want % X", data, want)
	}
}

func TestFrameBuilder_RawSampleBigEndian(t *testing.T) {
	b := NewFrameBuilder().RawSample(-2)
	want := []byte{0x80, 0x02, 0xFF, 0xFE}
	if !bytes.Equal(b.Payload(), want) {
		t.Errorf("Payload = % X, want % X", b.Payload(), want)
	}
}

func TestFrameBuilder_Empty(t *testing.T) {
	data := mustEncode(t, NewFrameBuilder())
	if !bytes.Equal(data, []byte{0xAA, 0xAA, 0x00, 0xFF}) {
		t.Errorf("Empty frame = % X", data)
	}
}

func TestFrameBuilder_RowLevel(t *testing.T) {
	b := NewFrameBuilder().Row(NewHeartRateRow(80).WithLevel(3))
	want := []byte{0x55, 0x55, 0x55, 0x03, 0x50}
	if !bytes.Equal(b.Payload(), want) {
		t.Errorf("Payload = % X, want % X", b.Payload(), want)
	}
}

func TestFrameBuilder_Errors(t *testing.T) {
	tests := []struct {
		name string
		b    *FrameBuilder
	}{
		{"unknown code", NewFrameBuilder().Row(NewRow(0x07, []byte{1}))},
		{"short value row", NewFrameBuilder().Row(NewRow(CodeHeartRate, nil))},
		{"long value row", NewFrameBuilder().Row(NewRow(CodeSignalQuality, []byte{1, 2}))},
		{"raw row too large", NewFrameBuilder().Row(NewRow(CodeRawData, make([]byte, 256)))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.b.Bytes(); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

func TestFrameBuilder_ErrorIsSticky(t *testing.T) {
	b := NewFrameBuilder().Row(NewRow(0x99, nil)).Row(NewHeartRateRow(60))
	if len(b.Payload()) != 0 {
		t.Errorf("Rows after an error should be ignored, payload = % X", b.Payload())
	}
	if _, err := b.Bytes(); err == nil {
		t.Error("Expected an error")
	}
}

func TestFrameBuilder_PayloadTooLarge(t *testing.T) {
	b := NewFrameBuilder()
	for i := 0; i < 64; i++ {
		b.RawSample(int16(i))
	}
	if _, err := b.Bytes(); err == nil {
		t.Error("Expected an error for a 256 byte payload")
	}
}

func TestFrameBuilder_SyncSizedPayload(t *testing.T) {
	// 85 rows of two bytes each: payload size 0xAA
	b := NewFrameBuilder()
	for i := 0; i < 85; i++ {
		b.HeartRate(uint8(i))
	}
	if len(b.Payload()) != SyncByte {
		t.Fatalf("Payload size = %d", len(b.Payload()))
	}
	if _, err := b.Bytes(); err == nil {
		t.Error("Expected an error for a payload size equal to the sync byte")
	}

	// One byte less is fine
	b = NewFrameBuilder()
	for i := 0; i < 84; i++ {
		b.HeartRate(uint8(i))
	}
	b.Escape()
	data, err := b.Bytes()
	if err != nil {
		t.Fatalf("Bytes error: %v", err)
	}
	if data[2] != 169 {
		t.Errorf("Payload size = %d, want 169", data[2])
	}
}

func TestFrameBuilder_LargestRawRow(t *testing.T) {
	payload := make([]byte, MaxPayloadSize-2)
	for i := range payload {
		payload[i] = byte(i)
	}
	data, err := EncodeFrame([]Row{NewRow(CodeRawData, payload)})
	if err != nil {
		t.Fatalf("EncodeFrame error: %v", err)
	}
	if data[2] != MaxPayloadSize {
		t.Fatalf("Payload size = %d, want %d", data[2], MaxPayloadSize)
	}

	rec := &rowRecorder{}
	d := NewDecoder(rec)
	events := feedAll(d, data)
	if events[len(events)-1] != EventFrameAccepted {
		t.Fatalf("Expected frame accepted, got %v", events[len(events)-1])
	}
	if len(rec.rows) != 1 || !bytes.Equal(rec.rows[0].Payload(), payload) {
		t.Error("Largest raw row did not survive the round trip")
	}
}
