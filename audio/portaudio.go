package audio

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudio is a Device backed by the default PortAudio host API.
// It owns the library context: Initialize on open, Terminate on Close.
type PortAudio struct {
	mu     sync.Mutex
	closed bool
}

// OpenPortAudio initializes PortAudio.
func OpenPortAudio() (*PortAudio, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	return &PortAudio{}, nil
}

// OpenCapture opens the default input device.
func (p *PortAudio) OpenCapture(f Format, chunks chan<- []byte) (Stream, error) {
	if err := p.check(); err != nil {
		return nil, err
	}

	cs := &captureStream{captureCallback: captureCallback{chunks: chunks}}
	s, err := portaudio.OpenDefaultStream(f.Channels, 0, float64(f.SampleRate), f.FramesPerBuffer, cs.process)
	if err != nil {
		return nil, fmt.Errorf("%w: open input stream: %w", ErrDeviceUnavailable, err)
	}
	cs.stream = s
	return cs, nil
}

// OpenPlayback opens the default output device.
func (p *PortAudio) OpenPlayback(f Format, chunks <-chan []float32, drained func()) (Stream, error) {
	if err := p.check(); err != nil {
		return nil, err
	}

	ps := &playbackStream{playbackCallback: playbackCallback{chunks: chunks, drained: drained}}
	s, err := portaudio.OpenDefaultStream(0, f.Channels, float64(f.SampleRate), f.FramesPerBuffer, ps.process)
	if err != nil {
		return nil, fmt.Errorf("%w: open output stream: %w", ErrDeviceUnavailable, err)
	}
	ps.stream = s
	return ps, nil
}

// Close terminates PortAudio. It is safe to call more than once.
func (p *PortAudio) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("terminate portaudio: %w", err)
	}
	return nil
}

func (p *PortAudio) check() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("%w: device context closed", ErrDeviceUnavailable)
	}
	return nil
}

// captureStream is an input stream driving a captureCallback.
type captureStream struct {
	captureCallback
	stream *portaudio.Stream
}

func (c *captureStream) Start() error {
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("%w: start input stream: %w", ErrDeviceUnavailable, err)
	}
	return nil
}

func (c *captureStream) Stop() error {
	if c.aborted.Load() {
		slog.Warn("capture aborted early", "dropped_chunks", c.dropped.Load())
	}
	return c.stream.Stop()
}

func (c *captureStream) Close() error {
	return c.stream.Close()
}

// playbackStream is an output stream driving a playbackCallback.
type playbackStream struct {
	playbackCallback
	stream *portaudio.Stream
}

func (p *playbackStream) Start() error {
	if err := p.stream.Start(); err != nil {
		return fmt.Errorf("%w: start output stream: %w", ErrDeviceUnavailable, err)
	}
	return nil
}

func (p *playbackStream) Stop() error {
	return p.stream.Stop()
}

func (p *playbackStream) Close() error {
	return p.stream.Close()
}
