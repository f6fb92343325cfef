// Package audio defines the device abstraction shared by capture and playback.
//
// Real-time audio callbacks are modelled as bounded channels: a capture
// stream sends each delivered chunk on a channel owned by the consumer, and a
// playback stream receives frame-sized chunks from a channel owned by the
// producer. Implementations must never block inside a callback.
package audio

import "errors"

// ErrDeviceUnavailable is returned when an input or output device cannot be
// opened or started.
var ErrDeviceUnavailable = errors.New("audio device unavailable")

// Format describes a PCM stream.
type Format struct {
	SampleRate      int
	Channels        int
	FramesPerBuffer int
}

// CaptureFormat is the fixed format recordings are made in:
// 16 kHz mono 16-bit PCM, which is what Whisper expects.
var CaptureFormat = Format{
	SampleRate:      16000,
	Channels:        1,
	FramesPerBuffer: 1024,
}

// BytesPerSample is the size of one captured sample (signed 16-bit LE).
const BytesPerSample = 2

// Duration returns the length in seconds of n bytes of captured PCM.
func (f Format) Duration(n int) float64 {
	if f.SampleRate == 0 || f.Channels == 0 {
		return 0
	}
	return float64(n) / float64(BytesPerSample*f.Channels*f.SampleRate)
}

// Stream is an opened device stream.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// Device opens capture and playback streams.
type Device interface {
	// OpenCapture opens an input stream. Each chunk the device delivers is
	// sent on chunks as little-endian int16 PCM. If chunks is full the
	// stream stops forwarding for the rest of its life.
	OpenCapture(f Format, chunks chan<- []byte) (Stream, error)

	// OpenPlayback opens an output stream that pulls interleaved float32
	// samples from chunks. When chunks is closed and fully consumed the
	// stream calls drained exactly once.
	OpenPlayback(f Format, chunks <-chan []float32, drained func()) (Stream, error)

	// Close releases the device context.
	Close() error
}
