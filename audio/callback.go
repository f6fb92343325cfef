package audio

import (
	"encoding/binary"
	"sync/atomic"
)

// captureCallback forwards input buffers to a channel. It never blocks:
// once the consumer falls behind, the rest of the capture is dropped.
type captureCallback struct {
	chunks  chan<- []byte
	aborted atomic.Bool
	dropped atomic.Int64
}

// process runs on the device callback thread.
func (c *captureCallback) process(in []int16) {
	if c.aborted.Load() {
		c.dropped.Add(1)
		return
	}

	b := make([]byte, len(in)*BytesPerSample)
	for i, v := range in {
		binary.LittleEndian.PutUint16(b[i*BytesPerSample:], uint16(v))
	}

	select {
	case c.chunks <- b:
	default:
		c.aborted.Store(true)
		c.dropped.Add(1)
	}
}

// playbackCallback fills output buffers from a channel of sample chunks.
// drained is called once, when the channel is closed and empty.
type playbackCallback struct {
	chunks  <-chan []float32
	drained func()
	pending []float32
	done    bool
}

// process runs on the device callback thread.
func (p *playbackCallback) process(out []float32) {
	n := 0
	for n < len(out) {
		if len(p.pending) == 0 {
			if p.done {
				clear(out[n:])
				return
			}
			select {
			case chunk, ok := <-p.chunks:
				if !ok {
					p.done = true
					clear(out[n:])
					p.drained()
					return
				}
				p.pending = chunk
			default:
				// Underrun: silence now, try again next callback.
				clear(out[n:])
				return
			}
		}
		k := copy(out[n:], p.pending)
		p.pending = p.pending[k:]
		n += k
	}
}
