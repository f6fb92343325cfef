// Package audiocapture records microphone audio into memory between a
// Start and a Stop.
package audiocapture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.aimuz.me/holdtalk/audio"
)

// ErrAlreadyCapturing is returned when Start is called on a running buffer.
var ErrAlreadyCapturing = errors.New("already capturing audio")

// Config holds configuration for audio capture.
type Config struct {
	Format     audio.Format
	QueueDepth int // Chunks the device may queue ahead of the consumer
}

// DefaultConfig returns the default capture configuration.
func DefaultConfig() Config {
	return Config{
		Format:     audio.CaptureFormat,
		QueueDepth: 64,
	}
}

// Buffer accumulates the chunks a capture stream delivers.
//
// The device callback only sends on a bounded channel; a single consumer
// goroutine appends to the chunk list. Stop closes the stream first, so no
// callback can race the hand-off.
type Buffer struct {
	device audio.Device
	cfg    Config

	mu        sync.Mutex
	stream    audio.Stream
	stop      chan struct{}
	drained   chan struct{}
	startTime time.Time

	dataMu sync.Mutex
	chunks [][]byte
	size   int
}

// New creates a capture buffer on the given device.
func New(device audio.Device, cfg Config) *Buffer {
	def := DefaultConfig()
	if cfg.Format.SampleRate == 0 {
		cfg.Format = def.Format
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = def.QueueDepth
	}
	return &Buffer{device: device, cfg: cfg}
}

// Start clears the buffer and opens the input stream. On failure nothing
// is left open and the error wraps audio.ErrDeviceUnavailable.
func (b *Buffer) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stream != nil {
		return ErrAlreadyCapturing
	}

	b.dataMu.Lock()
	b.chunks = nil
	b.size = 0
	b.dataMu.Unlock()

	queue := make(chan []byte, b.cfg.QueueDepth)
	stream, err := b.device.OpenCapture(b.cfg.Format, queue)
	if err != nil {
		return deviceError("open capture", err)
	}
	if err := stream.Start(); err != nil {
		if cerr := stream.Close(); cerr != nil {
			slog.Warn("close capture stream after failed start", "error", cerr)
		}
		return deviceError("start capture", err)
	}

	stop, drained := make(chan struct{}), make(chan struct{})
	go b.consume(queue, stop, drained)

	b.stream = stream
	b.stop = stop
	b.drained = drained
	b.startTime = time.Now()
	slog.Debug("capture started", "sample_rate", b.cfg.Format.SampleRate, "channels", b.cfg.Format.Channels)
	return nil
}

// Stop closes the stream and returns everything captured, in arrival
// order. It reports false if capture was never started or nothing arrived.
func (b *Buffer) Stop() ([]byte, bool) {
	elapsed, ok := b.shutdown()
	if !ok {
		return nil, false
	}

	b.dataMu.Lock()
	defer b.dataMu.Unlock()

	if b.size == 0 {
		b.chunks = nil
		return nil, false
	}
	data := make([]byte, 0, b.size)
	for _, c := range b.chunks {
		data = append(data, c...)
	}
	slog.Debug("capture stopped", "chunks", len(b.chunks), "bytes", b.size,
		"seconds", b.cfg.Format.Duration(b.size), "elapsed", elapsed)
	b.chunks = nil
	b.size = 0
	return data, true
}

// Abort stops capture and discards anything recorded.
func (b *Buffer) Abort() {
	if _, ok := b.shutdown(); !ok {
		return
	}
	b.dataMu.Lock()
	b.chunks = nil
	b.size = 0
	b.dataMu.Unlock()
	slog.Debug("capture aborted")
}

// Active reports whether a stream is open.
func (b *Buffer) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stream != nil
}

// Format returns the capture format.
func (b *Buffer) Format() audio.Format {
	return b.cfg.Format
}

// Close releases the stream if one is open. Captured data is discarded.
func (b *Buffer) Close() error {
	b.Abort()
	return nil
}

// shutdown stops and closes the stream and waits for the consumer to
// drain. It returns how long the stream ran, or false if there was none.
func (b *Buffer) shutdown() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stream == nil {
		return 0, false
	}
	if err := b.stream.Stop(); err != nil {
		slog.Warn("stop capture stream", "error", err)
	}
	if err := b.stream.Close(); err != nil {
		slog.Warn("close capture stream", "error", err)
	}
	// The queue stays open: if Stop failed, a late callback may still
	// send, and its non-blocking send must not hit a closed channel.
	close(b.stop)
	<-b.drained

	b.stream = nil
	b.stop = nil
	b.drained = nil
	return time.Since(b.startTime), true
}

// consume appends chunks until stop is closed, then takes whatever is
// already queued and returns.
func (b *Buffer) consume(queue <-chan []byte, stop <-chan struct{}, drained chan<- struct{}) {
	defer close(drained)
	for {
		select {
		case chunk := <-queue:
			b.add(chunk)
		case <-stop:
			for {
				select {
				case chunk := <-queue:
					b.add(chunk)
				default:
					return
				}
			}
		}
	}
}

func (b *Buffer) add(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	b.dataMu.Lock()
	b.chunks = append(b.chunks, chunk)
	b.size += len(chunk)
	b.dataMu.Unlock()
}

func deviceError(op string, err error) error {
	if errors.Is(err, audio.ErrDeviceUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, audio.ErrDeviceUnavailable, err)
}
