// Package playback streams decoded speech to the output device.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"go.aimuz.me/holdtalk/audio"
)

var (
	// ErrStopped is returned by PlayBlocking when Stop ended playback early.
	ErrStopped = errors.New("playback stopped")

	// ErrBusy is returned when PlayBlocking is called while already playing.
	ErrBusy = errors.New("playback already active")

	errClosed = errors.New("playback engine closed")
)

const defaultFramesPerBuffer = 1024

// queueDepth bounds how far the feeder runs ahead of the device callback.
const queueDepth = 8

// Engine plays one sample buffer at a time.
type Engine struct {
	device          audio.Device
	framesPerBuffer int

	mu     sync.Mutex
	active *run
	closed bool
	wg     sync.WaitGroup
}

// run is the state of a single PlayBlocking call.
type run struct {
	done     chan struct{}
	doneOnce sync.Once
	stop     chan struct{}
	stopOnce sync.Once
}

func newRun() *run {
	return &run{done: make(chan struct{}), stop: make(chan struct{})}
}

// finish is the one-shot completion signal. The device calls it once the
// sample channel is drained.
func (r *run) finish() { r.doneOnce.Do(func() { close(r.done) }) }

func (r *run) halt() { r.stopOnce.Do(func() { close(r.stop) }) }

// New creates a playback engine on the given device.
func New(device audio.Device, framesPerBuffer int) *Engine {
	if framesPerBuffer <= 0 {
		framesPerBuffer = defaultFramesPerBuffer
	}
	return &Engine{device: device, framesPerBuffer: framesPerBuffer}
}

// PlayBlocking plays interleaved samples and returns when they have all
// been consumed by the device, when Stop is called, or when ctx is done.
// An empty buffer returns nil without touching the device.
func (e *Engine) PlayBlocking(ctx context.Context, samples []float32, sampleRate, channels int) error {
	if len(samples) == 0 {
		return nil
	}
	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("play audio: invalid format %d Hz x%d", sampleRate, channels)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errClosed
	}
	if e.active != nil {
		e.mu.Unlock()
		return ErrBusy
	}

	f := audio.Format{SampleRate: sampleRate, Channels: channels, FramesPerBuffer: e.framesPerBuffer}
	chunks := make(chan []float32, queueDepth)
	r := newRun()

	stream, err := e.device.OpenPlayback(f, chunks, r.finish)
	if err != nil {
		e.mu.Unlock()
		return deviceError("open playback", err)
	}
	if err := stream.Start(); err != nil {
		if cerr := stream.Close(); cerr != nil {
			slog.Warn("close playback stream after failed start", "error", cerr)
		}
		e.mu.Unlock()
		return deviceError("start playback", err)
	}
	e.active = r
	e.wg.Add(1)
	e.mu.Unlock()
	defer e.wg.Done()

	fed := make(chan struct{})
	go feed(samples, f.FramesPerBuffer*channels, chunks, r.stop, fed)

	slog.Debug("playback started", "samples", len(samples), "sample_rate", sampleRate, "channels", channels)

	var result error
	select {
	case <-r.done:
	case <-r.stop:
		result = ErrStopped
	case <-ctx.Done():
		result = ctx.Err()
	}

	r.halt()
	if err := stream.Stop(); err != nil {
		slog.Warn("stop playback stream", "error", err)
	}
	if err := stream.Close(); err != nil {
		slog.Warn("close playback stream", "error", err)
	}
	<-fed

	e.mu.Lock()
	e.active = nil
	e.mu.Unlock()

	slog.Debug("playback finished", "error", result)
	return result
}

// PlayClip plays a decoded clip.
func (e *Engine) PlayClip(ctx context.Context, c audio.Clip) error {
	return e.PlayBlocking(ctx, c.Samples, c.SampleRate, c.Channels)
}

// Stop forces the current playback, if any, to complete early.
func (e *Engine) Stop() {
	e.mu.Lock()
	r := e.active
	e.mu.Unlock()
	if r != nil {
		r.halt()
	}
}

// Playing reports whether a PlayBlocking call is in progress.
func (e *Engine) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active != nil
}

// Close stops playback, waits for the stream to be released and rejects
// further calls. The device itself is not closed.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	r := e.active
	e.mu.Unlock()

	if r != nil {
		r.halt()
	}
	e.wg.Wait()
	return nil
}

// feed splits samples into chunks of size n and sends them until done or
// stopped, then closes chunks.
func feed(samples []float32, n int, chunks chan<- []float32, stop <-chan struct{}, fed chan<- struct{}) {
	defer close(fed)
	defer close(chunks)

	for off := 0; off < len(samples); off += n {
		end := min(off+n, len(samples))
		select {
		case chunks <- samples[off:end]:
		case <-stop:
			return
		}
	}
}

func deviceError(op string, err error) error {
	if errors.Is(err, audio.ErrDeviceUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, audio.ErrDeviceUnavailable, err)
}

var bars = []rune("▁▂▃▄▅▆▇█")

// Waveform renders a coarse amplitude outline of samples in n columns.
func Waveform(samples []float32, n int) string {
	if len(samples) == 0 || n <= 0 {
		return ""
	}
	n = min(n, len(samples))

	peaks := make([]float64, n)
	var top float64
	for i := range n {
		start := i * len(samples) / n
		end := (i + 1) * len(samples) / n
		for _, s := range samples[start:end] {
			peaks[i] = math.Max(peaks[i], math.Abs(float64(s)))
		}
		top = math.Max(top, peaks[i])
	}

	var sb strings.Builder
	for _, p := range peaks {
		idx := 0
		if top > 0 {
			idx = int(p / top * float64(len(bars)-1))
		}
		sb.WriteRune(bars[idx])
	}
	return sb.String()
}
