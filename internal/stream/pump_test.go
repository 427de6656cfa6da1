// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/cardiostat/pkg/bmd101"
)

func encode(t *testing.T, b *bmd101.FrameBuilder) []byte {
	t.Helper()
	data, err := b.Bytes()
	require.NoError(t, err)
	return data
}

// chunkReader returns one frame per Read and waits for the consumer
// between frames
type chunkReader struct {
	chunks [][]byte
	next   chan struct{}
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	<-r.next
	n := copy(p, r.chunks[0])
	r.chunks = r.chunks[1:]
	return n, nil
}

func TestPump_DeliversFrames(t *testing.T) {
	src := &chunkReader{next: make(chan struct{}, 1)}
	for i := 0; i < 10; i++ {
		src.chunks = append(src.chunks, encode(t, bmd101.NewFrameBuilder().RawSample(int16(i*10))))
	}
	src.next <- struct{}{}

	var samples []int16
	p := New(src)
	err := p.Run(context.Background(), func(_ context.Context, f *bmd101.Frame) error {
		samples = append(samples, f.RawSamples()...)
		src.next <- struct{}{}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int16{0, 10, 20, 30, 40, 50, 60, 70, 80, 90}, samples)

	stats, done := p.Stats()
	require.True(t, done)
	require.EqualValues(t, 10, stats.FramesAccepted)
}

func TestPump_EveryFrameHandledOrOverrun(t *testing.T) {
	var data []byte
	for i := 0; i < 200; i++ {
		data = append(data, encode(t, bmd101.NewFrameBuilder().HeartRate(uint8(i%200)))...)
	}

	handled := 0
	p := New(bytes.NewReader(data))
	err := p.Run(context.Background(), func(context.Context, *bmd101.Frame) error {
		handled++
		return nil
	})
	require.NoError(t, err)
	require.EqualValues(t, 200, uint64(handled)+p.Store().Overruns())
}

func TestPump_Faults(t *testing.T) {
	bad := encode(t, bmd101.NewFrameBuilder().HeartRate(60))
	bad[len(bad)-1] ^= 0x01
	data := append([]byte{0xAA, 0x00}, bad...)
	data = append(data, encode(t, bmd101.NewFrameBuilder().HeartRate(61))...)

	var faults []bmd101.Event
	var frames []*bmd101.Frame
	p := New(bytes.NewReader(data), WithFaultHook(func(ev bmd101.Event) {
		faults = append(faults, ev)
	}))
	err := p.Run(context.Background(), func(_ context.Context, f *bmd101.Frame) error {
		frames = append(frames, f)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []bmd101.Event{bmd101.EventSyncLost, bmd101.EventChecksumMismatch}, faults)
	require.Len(t, frames, 1)
	hr, ok := frames[0].HeartRate()
	require.True(t, ok)
	require.EqualValues(t, 61, hr)
}

func TestPump_ByteHook(t *testing.T) {
	data := encode(t, bmd101.NewFrameBuilder().SignalQuality(200))
	total := 0
	p := New(bytes.NewReader(data), WithByteHook(func(n int) { total += n }))
	require.NoError(t, p.Run(context.Background(), func(context.Context, *bmd101.Frame) error { return nil }))
	require.Equal(t, len(data), total)
}

func TestPump_HandlerError(t *testing.T) {
	data := encode(t, bmd101.NewFrameBuilder().HeartRate(70))
	boom := errors.New("boom")
	p := New(bytes.NewReader(data))
	err := p.Run(context.Background(), func(context.Context, *bmd101.Frame) error { return boom })
	require.ErrorIs(t, err, boom)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("device unplugged")
}

func TestPump_ReadError(t *testing.T) {
	p := New(failingReader{})
	err := p.Run(context.Background(), func(context.Context, *bmd101.Frame) error { return nil })
	require.ErrorContains(t, err, "device unplugged")
}

type blockingReader struct {
	release chan struct{}
}

func (r blockingReader) Read([]byte) (int, error) {
	<-r.release
	return 0, io.EOF
}

func TestPump_Cancel(t *testing.T) {
	src := blockingReader{release: make(chan struct{})}
	defer close(src.release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	p := New(src)
	err := p.Run(ctx, func(context.Context, *bmd101.Frame) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
