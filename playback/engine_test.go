package playback

import (
	"context"
	"errors"
	"testing"
	"time"
	"unicode/utf8"

	"go.aimuz.me/holdtalk/audio"
	"go.aimuz.me/holdtalk/audio/audiotest"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func ramp(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(i) / float32(n)
	}
	return s
}

func TestPlayBlockingEmpty(t *testing.T) {
	dev := audiotest.New()
	e := New(dev, 4)

	if err := e.PlayBlocking(context.Background(), nil, 24000, 1); err != nil {
		t.Fatalf("PlayBlocking(nil) = %v", err)
	}
	if n := dev.PlaybackOpens(); n != 0 {
		t.Fatalf("playback opens = %d, want 0", n)
	}
	if n := dev.Callbacks(); n != 0 {
		t.Fatalf("callbacks = %d, want 0", n)
	}
}

func TestPlayBlockingToCompletion(t *testing.T) {
	dev := audiotest.New()
	e := New(dev, 4)
	samples := ramp(22)

	if err := e.PlayBlocking(context.Background(), samples, 24000, 2); err != nil {
		t.Fatalf("PlayBlocking: %v", err)
	}

	var got []float32
	for _, c := range dev.Played() {
		if len(c) > 8 {
			t.Errorf("chunk of %d samples exceeds frames*channels", len(c))
		}
		got = append(got, c...)
	}
	if len(got) != len(samples) {
		t.Fatalf("played %d samples, want %d", len(got), len(samples))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Fatalf("sample %d = %v, want %v", i, got[i], samples[i])
		}
	}
	if e.Playing() {
		t.Fatal("still playing after completion")
	}
	if n := dev.OpenStreams(); n != 0 {
		t.Fatalf("open streams = %d, want 0", n)
	}
}

func TestStopInterruptsPlayback(t *testing.T) {
	dev := audiotest.New()
	dev.Hold = make(chan struct{})
	e := New(dev, 4)

	errc := make(chan error, 1)
	go func() {
		errc <- e.PlayBlocking(context.Background(), ramp(4096), 24000, 1)
	}()

	waitFor(t, e.Playing)
	e.Stop()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrStopped) {
			t.Fatalf("PlayBlocking = %v, want ErrStopped", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("PlayBlocking did not return after Stop")
	}
	if n := dev.OpenStreams(); n != 0 {
		t.Fatalf("open streams = %d, want 0", n)
	}
	if e.Playing() {
		t.Fatal("still playing after Stop")
	}
}

func TestContextCancelInterruptsPlayback(t *testing.T) {
	dev := audiotest.New()
	dev.Hold = make(chan struct{})
	e := New(dev, 4)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- e.PlayBlocking(ctx, ramp(4096), 24000, 1)
	}()

	waitFor(t, e.Playing)
	cancel()

	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("PlayBlocking = %v, want context.Canceled", err)
	}
	if n := dev.OpenStreams(); n != 0 {
		t.Fatalf("open streams = %d, want 0", n)
	}
}

func TestPlayBlockingDeviceUnavailable(t *testing.T) {
	tests := []struct {
		name string
		dev  *audiotest.Device
	}{
		{"open_fails", &audiotest.Device{PlaybackErr: errors.New("no output device")}},
		{"start_fails", &audiotest.Device{StartErr: errors.New("device busy")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(tt.dev, 4)
			err := e.PlayBlocking(context.Background(), ramp(16), 24000, 1)
			if !errors.Is(err, audio.ErrDeviceUnavailable) {
				t.Fatalf("PlayBlocking = %v, want ErrDeviceUnavailable", err)
			}
			if n := tt.dev.OpenStreams(); n != 0 {
				t.Fatalf("open streams = %d, want 0", n)
			}
			if e.Playing() {
				t.Fatal("playing after failed open")
			}
		})
	}
}

func TestCloseStopsAndRejects(t *testing.T) {
	dev := audiotest.New()
	dev.Hold = make(chan struct{})
	e := New(dev, 4)

	errc := make(chan error, 1)
	go func() {
		errc <- e.PlayBlocking(context.Background(), ramp(4096), 24000, 1)
	}()
	waitFor(t, e.Playing)

	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := <-errc; !errors.Is(err, ErrStopped) {
		t.Fatalf("PlayBlocking = %v, want ErrStopped", err)
	}
	if n := dev.OpenStreams(); n != 0 {
		t.Fatalf("open streams = %d, want 0", n)
	}
	if err := e.PlayBlocking(context.Background(), ramp(4), 24000, 1); err == nil {
		t.Fatal("PlayBlocking after Close succeeded")
	}
}

func TestWaveform(t *testing.T) {
	tests := []struct {
		name    string
		samples []float32
		n       int
		want    string
	}{
		{"empty", nil, 10, ""},
		{"zero_columns", []float32{1}, 0, ""},
		{"silence", []float32{0, 0, 0, 0}, 2, "▁▁"},
		{"rising", []float32{0, 0.5, -1, 1}, 4, "▁▄██"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Waveform(tt.samples, tt.n); got != tt.want {
				t.Fatalf("Waveform = %q, want %q", got, tt.want)
			}
		})
	}

	if got := Waveform(ramp(1000), 40); utf8.RuneCountInString(got) != 40 {
		t.Fatalf("Waveform width = %d, want 40", utf8.RuneCountInString(got))
	}
}
