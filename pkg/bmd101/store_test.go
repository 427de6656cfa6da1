// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bmd101

import (
	"sync"
	"testing"
)

func TestStore_ResponseReadySingleShot(t *testing.T) {
	store := NewStore()
	d := NewDecoder(store)
	feedAll(d, mustEncode(t, NewFrameBuilder().HeartRate(72)))

	if !store.ResponseReady() {
		t.Fatal("First call should report ready")
	}
	if store.ResponseReady() {
		t.Error("Second call without a new frame should report not ready")
	}
}

func TestStore_DrainConsumes(t *testing.T) {
	store := NewStore()
	d := NewDecoder(store)
	feedAll(d, mustEncode(t, NewFrameBuilder().HeartRate(72).SignalQuality(200)))

	if rows := drainRows(store); len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if rows := drainRows(store); len(rows) != 0 {
		t.Errorf("Second drain should yield nothing, got %d rows", len(rows))
	}
}

func TestStore_DrainEarlyBreak(t *testing.T) {
	store := NewStore()
	d := NewDecoder(store)
	feedAll(d, mustEncode(t, NewFrameBuilder().RawSample(1).RawSample(2).RawSample(3)))

	n := 0
	for range store.Drain() {
		n++
		if n == 1 {
			break
		}
	}
	if n != 1 {
		t.Errorf("Expected to stop after 1 row, got %d", n)
	}
	// The frame was taken when iteration started
	if _, ok := store.TakeFrame(); ok {
		t.Error("Frame should already be drained")
	}
}

func TestStore_TakeFrame(t *testing.T) {
	store := NewStore()
	d := NewDecoder(store)
	data := mustEncode(t, NewFrameBuilder().HeartRate(64).RawSample(-1))
	feedAll(d, data)

	f, ok := store.TakeFrame()
	if !ok {
		t.Fatal("Expected a frame")
	}
	if f.Seq() != 1 {
		t.Errorf("Expected seq 1, got %d", f.Seq())
	}
	if f.PayloadSize() != data[2] {
		t.Errorf("Expected payload size %d, got %d", data[2], f.PayloadSize())
	}
	if f.Checksum() != data[len(data)-1] {
		t.Errorf("Expected checksum 0x%02X, got 0x%02X", data[len(data)-1], f.Checksum())
	}
	if hr, ok := f.HeartRate(); !ok || hr != 64 {
		t.Errorf("HeartRate() = %d, %v; want 64, true", hr, ok)
	}
	if samples := f.RawSamples(); len(samples) != 1 || samples[0] != -1 {
		t.Errorf("RawSamples() = %v; want [-1]", samples)
	}
	if f.Timestamp().IsZero() {
		t.Error("Timestamp should be set")
	}
	if store.ResponseReady() {
		t.Error("TakeFrame should clear the ready flag")
	}
}

func TestStore_SnapshotIsIndependent(t *testing.T) {
	store := NewStore()
	d := NewDecoder(store)
	feedAll(d, mustEncode(t, NewFrameBuilder().RawSample(1000)))

	f, _ := store.TakeFrame()

	// Two more frames reuse both internal buffers
	feedAll(d, mustEncode(t, NewFrameBuilder().RawSample(2000)))
	feedAll(d, mustEncode(t, NewFrameBuilder().RawSample(3000)))

	if v, _ := f.Rows()[0].RawSample(); v != 1000 {
		t.Errorf("Snapshot changed under the consumer: got %d", v)
	}
}

func TestStore_Overruns(t *testing.T) {
	store := NewStore()
	d := NewDecoder(store)
	feedAll(d, mustEncode(t, NewFrameBuilder().HeartRate(60)))
	feedAll(d, mustEncode(t, NewFrameBuilder().HeartRate(61)))

	if store.Overruns() != 1 {
		t.Errorf("Expected 1 overrun, got %d", store.Overruns())
	}
	rows := drainRows(store)
	if len(rows) != 1 || rows[0].Payload()[0] != 61 {
		t.Errorf("Expected the newest frame, got %v", rows)
	}
	f, ok := store.TakeFrame()
	if ok {
		t.Errorf("Expected no pending frame, got seq %d", f.Seq())
	}
}

func TestStore_CapacityOverflow(t *testing.T) {
	// Room for two payload bytes only
	store := NewStoreWithCapacity(2, MaxRows)
	d := NewDecoder(store)

	events := feedAll(d, mustEncode(t, NewFrameBuilder().RawSample(1).RawSample(2)))
	if events[len(events)-1] != EventStoreOverflow {
		t.Fatalf("Expected store overflow, got %v", events[len(events)-1])
	}
	if store.ResponseReady() {
		t.Error("Overflowed frame must not become visible")
	}
	if store.Dropped() != 1 {
		t.Errorf("Expected 1 dropped frame, got %d", store.Dropped())
	}

	// A frame that fits is still accepted afterwards
	events = feedAll(d, mustEncode(t, NewFrameBuilder().RawSample(3)))
	if events[len(events)-1] != EventFrameAccepted {
		t.Fatalf("Expected accepted frame, got %v", events[len(events)-1])
	}
	rows := drainRows(store)
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rows))
	}
}

func TestStore_RowCapacityOverflow(t *testing.T) {
	store := NewStoreWithCapacity(MaxPayloadSize, 1)
	d := NewDecoder(store)

	events := feedAll(d, mustEncode(t, NewFrameBuilder().HeartRate(60).SignalQuality(200)))
	if events[len(events)-1] != EventStoreOverflow {
		t.Fatalf("Expected store overflow, got %v", events[len(events)-1])
	}
	if d.Stats().Overflows != 1 {
		t.Errorf("Expected 1 overflow, got %d", d.Stats().Overflows)
	}
}

func TestStore_ConcurrentFeederAndConsumer(t *testing.T) {
	const frames = 500

	var stream []byte
	for i := 0; i < frames; i++ {
		stream = append(stream, mustEncode(t, NewFrameBuilder().RawSample(int16(i)).RawSample(int16(-i)))...)
	}

	store := NewStore()
	d := NewDecoder(store)
	done := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for _, b := range stream {
			d.Feed(b)
		}
	}()

	check := func() {
		f, ok := store.TakeFrame()
		if !ok {
			return
		}
		rows := f.Rows()
		if len(rows) != 2 {
			t.Errorf("Frame %d has %d rows", f.Seq(), len(rows))
			return
		}
		a, _ := rows[0].RawSample()
		b, _ := rows[1].RawSample()
		if a != -b {
			t.Errorf("Frame %d mixes two frames: %d, %d", f.Seq(), a, b)
		}
	}

	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		check()
	}
	wg.Wait()
	check()

	if d.Stats().FramesAccepted != frames {
		t.Errorf("Expected %d accepted frames, got %d", frames, d.Stats().FramesAccepted)
	}
}
