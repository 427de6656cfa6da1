// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package simulate produces a synthetic BMD101 byte stream.
//
// A Generator models one ECG lead as a sum of Gaussian P, Q, R, S and T
// waves repeating at the configured heart rate. A Streamer encodes each
// sample as a one-row raw frame, adds a signal quality and heart rate
// frame once per second, and writes the result at the sensor's pace.
package simulate

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"time"

	"github.com/Thermoquad/cardiostat/pkg/bmd101"
)

const (
	DefaultSampleRate = 512
	DefaultHeartRate  = 72
	DefaultAmplitude  = 5000
	DefaultQuality    = bmd101.SignalQualitySensorOn

	// Samples written per pacing tick
	samplesPerTick = 8
)

// Config describes the simulated signal
type Config struct {
	SampleRate int     // samples per second
	HeartRate  float64 // beats per minute
	Amplitude  float64 // R peak height in raw counts
	Noise      float64 // standard deviation of additive noise, raw counts
	Quality    uint8   // reported signal quality
}

// DefaultConfig returns a resting heart at full signal quality
func DefaultConfig() Config {
	return Config{
		SampleRate: DefaultSampleRate,
		HeartRate:  DefaultHeartRate,
		Amplitude:  DefaultAmplitude,
		Quality:    DefaultQuality,
	}
}

func (c Config) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	if c.HeartRate <= 0 || c.HeartRate > bmd101.MaxHeartRate {
		return fmt.Errorf("heart rate must be in (0, %d], got %.1f", bmd101.MaxHeartRate, c.HeartRate)
	}
	if c.Amplitude <= 0 || c.Amplitude > math.MaxInt16 {
		return fmt.Errorf("amplitude must be in (0, %d], got %.1f", math.MaxInt16, c.Amplitude)
	}
	return nil
}

// wave is one Gaussian component of a beat, positioned relative to the
// R peak in seconds
type wave struct {
	height float64 // fraction of the R peak
	center float64
	width  float64
}

var pqrst = []wave{
	{height: 0.12, center: -0.20, width: 0.025}, // P
	{height: -0.15, center: -0.03, width: 0.008}, // Q
	{height: 1.00, center: 0, width: 0.010},      // R
	{height: -0.25, center: 0.03, width: 0.008},  // S
	{height: 0.30, center: 0.25, width: 0.040},   // T
}

// Generator produces ECG samples
type Generator struct {
	cfg Config
	rng *rand.Rand
	n   uint64 // samples produced
}

// NewGenerator creates a generator. The seed drives the noise only.
func NewGenerator(cfg Config, seed int64) (*Generator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(seed))}, nil
}

// Period returns the time between two R peaks
func (g *Generator) Period() time.Duration {
	return time.Duration(60 / g.cfg.HeartRate * float64(time.Second))
}

// Samples returns the number of samples produced so far
func (g *Generator) Samples() uint64 {
	return g.n
}

// Next returns the next sample
func (g *Generator) Next() int16 {
	t := float64(g.n) / float64(g.cfg.SampleRate)
	g.n++

	period := 60 / g.cfg.HeartRate
	// R peak sits 40% into each beat so the P wave never wraps
	phase := math.Mod(t, period) - 0.4*period

	var v float64
	for _, w := range pqrst {
		d := (phase - w.center) / w.width
		v += w.height * math.Exp(-0.5*d*d)
	}
	v *= g.cfg.Amplitude
	if g.cfg.Noise > 0 {
		v += g.rng.NormFloat64() * g.cfg.Noise
	}

	return int16(max(math.MinInt16, min(math.MaxInt16, math.Round(v))))
}

// Frame returns the rows of the next frame. The first frame of every
// second carries signal quality and heart rate; all others carry one raw
// sample.
func (g *Generator) Frame() []bmd101.Row {
	if g.n%uint64(g.cfg.SampleRate) == 0 && g.n > 0 {
		g.n++ // the status frame takes the place of a sample
		return []bmd101.Row{
			bmd101.NewSignalQualityRow(g.cfg.Quality),
			bmd101.NewHeartRateRow(uint8(math.Round(g.cfg.HeartRate))),
		}
	}
	return []bmd101.Row{bmd101.NewRawSampleRow(g.Next())}
}

// Streamer writes generated frames to a byte sink
type Streamer struct {
	gen     *Generator
	w       io.Writer
	rng     *rand.Rand
	corrupt float64
	fast    bool

	frames    uint64
	corrupted uint64
}

// StreamerOption configures a Streamer
type StreamerOption func(*Streamer)

// WithCorruption flips one byte in each frame with probability p
func WithCorruption(p float64) StreamerOption {
	return func(s *Streamer) { s.corrupt = p }
}

// WithoutPacing writes as fast as the sink accepts
func WithoutPacing() StreamerOption {
	return func(s *Streamer) { s.fast = true }
}

// NewStreamer creates a streamer writing gen's frames to w
func NewStreamer(gen *Generator, w io.Writer, seed int64, opts ...StreamerOption) *Streamer {
	s := &Streamer{gen: gen, w: w, rng: rand.New(rand.NewSource(seed))}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Frames returns the number of frames written
func (s *Streamer) Frames() uint64 {
	return s.frames
}

// Corrupted returns the number of frames written with a flipped byte
func (s *Streamer) Corrupted() uint64 {
	return s.corrupted
}

// Run writes frames until ctx is done, the sink fails or limit frames
// were written. A limit of 0 means no limit.
func (s *Streamer) Run(ctx context.Context, limit uint64) error {
	var ticker *time.Ticker
	if !s.fast {
		interval := time.Duration(samplesPerTick) * time.Second / time.Duration(s.gen.cfg.SampleRate)
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
	}

	buf := make([]byte, 0, samplesPerTick*8)
	for {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		buf = buf[:0]
		n := 0
		for ; n < samplesPerTick; n++ {
			if limit > 0 && s.frames+uint64(n) >= limit {
				break
			}
			data, err := bmd101.EncodeFrame(s.gen.Frame())
			if err != nil {
				return err
			}
			buf = append(buf, s.maybeCorrupt(data)...)
		}

		if len(buf) > 0 {
			if _, err := s.w.Write(buf); err != nil {
				return fmt.Errorf("write failed: %w", err)
			}
			s.frames += uint64(n)
		}
		if limit > 0 && s.frames >= limit {
			return nil
		}
	}
}

// maybeCorrupt flips one bit of a random byte with the configured
// probability. The byte is never turned into a sync byte so the damage
// stays inside the frame.
func (s *Streamer) maybeCorrupt(data []byte) []byte {
	if s.corrupt <= 0 || s.rng.Float64() >= s.corrupt {
		return data
	}
	s.corrupted++

	i := s.rng.Intn(len(data))
	for {
		b := data[i] ^ byte(1<<s.rng.Intn(8))
		if b != bmd101.SyncByte {
			data[i] = b
			return data
		}
	}
}
