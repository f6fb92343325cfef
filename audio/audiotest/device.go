// Package audiotest provides an in-memory audio.Device for tests.
package audiotest

import (
	"errors"
	"sync"

	"go.aimuz.me/holdtalk/audio"
)

// Device is a fake audio.Device. Capture chunks are injected with Push;
// playback chunks are consumed by a goroutine started with the stream.
type Device struct {
	// CaptureErr and PlaybackErr make the next Open calls fail.
	CaptureErr  error
	PlaybackErr error

	// StartErr makes Start fail on every stream opened afterwards.
	StartErr error

	// WedgedErr makes capture Stop and Close fail while the stream keeps
	// accepting pushes, like a driver that will not stop.
	WedgedErr error

	// Hold, if set, delays playback consumption until it is closed.
	Hold chan struct{}

	mu            sync.Mutex
	capture       *captureStream
	captureOpens  int
	playbackOpens int
	open          int
	played        [][]float32
	callbacks     int
	closed        int
}

var _ audio.Device = (*Device)(nil)

// New returns a fake device.
func New() *Device {
	return &Device{}
}

func (d *Device) OpenCapture(_ audio.Format, chunks chan<- []byte) (audio.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.CaptureErr != nil {
		return nil, d.CaptureErr
	}
	d.captureOpens++
	d.open++
	s := &captureStream{dev: d, chunks: chunks}
	d.capture = s
	return s, nil
}

func (d *Device) OpenPlayback(_ audio.Format, chunks <-chan []float32, drained func()) (audio.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.PlaybackErr != nil {
		return nil, d.PlaybackErr
	}
	d.playbackOpens++
	d.open++
	return &playbackStream{dev: d, chunks: chunks, drained: drained, stop: make(chan struct{})}, nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

// Push delivers a capture chunk as the device callback would. It reports
// false if no capture stream is running or the consumer is full.
func (d *Device) Push(chunk []byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.capture
	if s == nil || !s.started || s.stopped {
		return false
	}
	select {
	case s.chunks <- chunk:
		return true
	default:
		return false
	}
}

// CaptureOpens returns how many capture streams were opened.
func (d *Device) CaptureOpens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.captureOpens
}

// PlaybackOpens returns how many playback streams were opened.
func (d *Device) PlaybackOpens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playbackOpens
}

// OpenStreams returns the number of streams opened and not yet closed.
func (d *Device) OpenStreams() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// Played returns the chunks consumed by playback streams.
func (d *Device) Played() [][]float32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]float32(nil), d.played...)
}

// Callbacks returns the number of simulated playback callbacks.
func (d *Device) Callbacks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.callbacks
}

// Closed returns how many times Close was called.
func (d *Device) Closed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type captureStream struct {
	dev     *Device
	chunks  chan<- []byte
	started bool
	stopped bool
	closed  bool
}

func (s *captureStream) Start() error {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	if s.dev.StartErr != nil {
		return s.dev.StartErr
	}
	s.started = true
	return nil
}

func (s *captureStream) Stop() error {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	if s.dev.WedgedErr != nil {
		return s.dev.WedgedErr
	}
	s.stopped = true
	return nil
}

func (s *captureStream) Close() error {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	if s.closed {
		return errors.New("audiotest: capture stream closed twice")
	}
	if s.dev.WedgedErr != nil {
		return s.dev.WedgedErr
	}
	s.closed = true
	s.stopped = true
	s.dev.open--
	if s.dev.capture == s {
		s.dev.capture = nil
	}
	return nil
}

type playbackStream struct {
	dev     *Device
	chunks  <-chan []float32
	drained func()
	stop    chan struct{}
	once    sync.Once
	closed  bool
}

func (s *playbackStream) Start() error {
	s.dev.mu.Lock()
	err := s.dev.StartErr
	hold := s.dev.Hold
	s.dev.mu.Unlock()
	if err != nil {
		return err
	}

	go func() {
		if hold != nil {
			select {
			case <-hold:
			case <-s.stop:
				return
			}
		}
		for {
			select {
			case <-s.stop:
				return
			case chunk, ok := <-s.chunks:
				if !ok {
					s.drained()
					return
				}
				s.dev.mu.Lock()
				s.dev.played = append(s.dev.played, chunk)
				s.dev.callbacks++
				s.dev.mu.Unlock()
			}
		}
	}()
	return nil
}

func (s *playbackStream) Stop() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

func (s *playbackStream) Close() error {
	s.once.Do(func() { close(s.stop) })
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	if s.closed {
		return errors.New("audiotest: playback stream closed twice")
	}
	s.closed = true
	s.dev.open--
	return nil
}
