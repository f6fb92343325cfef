package audio

import (
	"bytes"
	"slices"
	"testing"
)

func TestCaptureCallbackForwards(t *testing.T) {
	chunks := make(chan []byte, 2)
	c := &captureCallback{chunks: chunks}

	c.process([]int16{1, -1})
	got := <-chunks
	if want := []byte{1, 0, 0xff, 0xff}; !bytes.Equal(got, want) {
		t.Fatalf("chunk = %v, want %v", got, want)
	}
	if c.aborted.Load() || c.dropped.Load() != 0 {
		t.Errorf("aborted = %v, dropped = %d", c.aborted.Load(), c.dropped.Load())
	}
}

func TestCaptureCallbackAbortsWhenFull(t *testing.T) {
	chunks := make(chan []byte, 1)
	c := &captureCallback{chunks: chunks}

	c.process([]int16{1}) // queued
	c.process([]int16{2}) // queue full: abort
	<-chunks              // consumer catches up
	c.process([]int16{3}) // still dropped

	if !c.aborted.Load() {
		t.Fatal("not aborted after a full queue")
	}
	if got := c.dropped.Load(); got != 2 {
		t.Errorf("dropped = %d, want 2", got)
	}
	if len(chunks) != 0 {
		t.Errorf("%d chunks forwarded after abort", len(chunks))
	}
}

func TestPlaybackCallback(t *testing.T) {
	tests := []struct {
		name    string
		chunks  [][]float32
		close   bool
		bufs    int
		want    [][]float32
		drained int
	}{
		{
			name:   "spans_chunks",
			chunks: [][]float32{{1, 2, 3}, {4, 5}},
			bufs:   2,
			want:   [][]float32{{1, 2, 3, 4}, {5, 0, 0, 0}},
		},
		{
			name:   "underrun_fills_silence",
			chunks: [][]float32{{1}},
			bufs:   2,
			want:   [][]float32{{1, 0, 0, 0}, {0, 0, 0, 0}},
		},
		{
			name:    "partial_tail_then_drained",
			chunks:  [][]float32{{1, 2}},
			close:   true,
			bufs:    1,
			want:    [][]float32{{1, 2, 0, 0}},
			drained: 1,
		},
		{
			name:    "drained_once",
			chunks:  [][]float32{{7}},
			close:   true,
			bufs:    4,
			want:    [][]float32{{7, 0, 0, 0}, {0, 0, 0, 0}, {0, 0, 0, 0}, {0, 0, 0, 0}},
			drained: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := make(chan []float32, len(tt.chunks))
			for _, c := range tt.chunks {
				ch <- c
			}
			if tt.close {
				close(ch)
			}
			drained := 0
			p := &playbackCallback{chunks: ch, drained: func() { drained++ }}

			for i := range tt.bufs {
				out := []float32{9, 9, 9, 9} // stale data must be overwritten
				p.process(out)
				if !slices.Equal(out, tt.want[i]) {
					t.Errorf("buffer %d = %v, want %v", i, out, tt.want[i])
				}
			}
			if drained != tt.drained {
				t.Errorf("drained called %d times, want %d", drained, tt.drained)
			}
		})
	}
}
