// Package session turns hotkey edges into strictly ordered
// recording → processing → playback sessions.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"go.aimuz.me/holdtalk/audio"
	"go.aimuz.me/holdtalk/hotkey"
	"go.aimuz.me/holdtalk/internal/pipeline"
	"go.aimuz.me/holdtalk/internal/types"
	"go.aimuz.me/holdtalk/playback"
)

// ErrRunning is returned by Run when the machine is already running or
// has already shut down.
var ErrRunning = errors.New("session machine already started")

const (
	defaultQueueSize     = 32
	defaultShutdownGrace = 5 * time.Second
)

// Capture records audio between Start and Stop.
type Capture interface {
	Start() error
	Stop() ([]byte, bool)
	Abort()
}

// Player plays a decoded clip until it ends, Stop is called or ctx is done.
type Player interface {
	PlayClip(ctx context.Context, c audio.Clip) error
	Stop()
}

// Pipeline processes a finished recording.
type Pipeline interface {
	Run(ctx context.Context, audio []byte, report func(types.Stage)) (pipeline.Result, error)
}

// Change describes a state transition.
type Change struct {
	Session string
	From    types.State
	To      types.State
	Reason  types.Reason
	Stage   types.Stage // set for ReasonStageStarted
	Err     error
}

// Observer is told about state changes and finished sessions. Calls are
// made from the machine's loop goroutine and should return quickly.
type Observer interface {
	StateChanged(c Change)
	SessionFinished(r types.SessionRecord)
}

// Deps are the collaborators of a Machine. Observer and LoadClip are
// optional; LoadClip defaults to audio.ReadWAV.
type Deps struct {
	Capture  Capture
	Player   Player
	Pipeline Pipeline
	Observer Observer
	LoadClip func(path string) (audio.Clip, error)
}

// Options tune a Machine.
type Options struct {
	QueueSize     int           // Pending hotkey edges before drops
	ShutdownGrace time.Duration // How long Quit waits for the playback worker
}

// Stats counts what the machine has driven so far.
type Stats struct {
	CaptureStarts int64
	CaptureStops  int64
	PipelineRuns  int64
	Playbacks     int64
	DroppedEdges  int64
}

// Session is the one in-flight session. It is owned by the loop goroutine.
type Session struct {
	ID        string
	StartedAt time.Time

	cancel context.CancelFunc
	worker chan struct{} // closed when the worker goroutine exits
	record types.SessionRecord
}

// event is anything the loop handles. Worker events carry the session ID
// so that late reports from an earlier session are discarded.
type event interface{ session() string }

type edgeEvent struct {
	edge hotkey.Edge
}

type stageEvent struct {
	id    string
	stage types.Stage
}

type pipelineDone struct {
	id  string
	res pipeline.Result
	err error
}

type playbackDone struct {
	id  string
	err error
}

func (e edgeEvent) session() string    { return "" }
func (e stageEvent) session() string   { return e.id }
func (e pipelineDone) session() string { return e.id }
func (e playbackDone) session() string { return e.id }

// Machine is the session state machine. Hotkey edges and worker reports
// share one queue and are handled one at a time, in arrival order, by Run.
type Machine struct {
	deps Deps
	opts Options

	events   chan event
	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}
	started  atomic.Bool

	state atomic.Value // types.State

	captureStarts atomic.Int64
	captureStops  atomic.Int64
	pipelineRuns  atomic.Int64
	playbacks     atomic.Int64
	dropped       atomic.Int64

	// loop-only
	current *Session
}

// New creates a machine in the Idle state.
func New(deps Deps, opts Options) *Machine {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = defaultShutdownGrace
	}
	if deps.LoadClip == nil {
		deps.LoadClip = audio.ReadWAV
	}
	m := &Machine{
		deps:   deps,
		opts:   opts,
		events: make(chan event, opts.QueueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	m.state.Store(types.StateIdle)
	return m
}

// HandleEdge queues a hotkey edge. It never blocks, so it is safe to call
// from an OS event callback. Down(Quit) starts shutdown and is never
// dropped; Up(Quit) is ignored.
func (m *Machine) HandleEdge(e hotkey.Edge) {
	if e.Action == hotkey.ActionQuit {
		if e.Direction == hotkey.Down {
			m.Shutdown()
		}
		return
	}
	select {
	case m.events <- edgeEvent{edge: e}:
	default:
		m.dropped.Add(1)
		slog.Warn("hotkey queue full, dropping edge", "edge", e)
	}
}

// Shutdown asks the machine to shut down, as a Down(Quit) would.
func (m *Machine) Shutdown() {
	m.quitOnce.Do(func() { close(m.quit) })
}

// State returns the current state.
func (m *Machine) State() types.State {
	return m.state.Load().(types.State)
}

// Recording reports whether audio is being captured.
func (m *Machine) Recording() bool {
	return m.State() == types.StateRecording
}

// Done is closed once Run has returned.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// Stats returns a snapshot of the counters.
func (m *Machine) Stats() Stats {
	return Stats{
		CaptureStarts: m.captureStarts.Load(),
		CaptureStops:  m.captureStops.Load(),
		PipelineRuns:  m.pipelineRuns.Load(),
		Playbacks:     m.playbacks.Load(),
		DroppedEdges:  m.dropped.Load(),
	}
}

// Run processes events until Shutdown, a Down(Quit) edge, or ctx is done.
// It returns after the in-flight session has been torn down.
func (m *Machine) Run(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer close(m.done)

	m.notify(Change{To: types.StateIdle, From: types.StateIdle, Reason: types.ReasonReady})

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return nil
		case <-m.quit:
			m.shutdown()
			return nil
		case ev := <-m.events:
			if e, ok := ev.(edgeEvent); ok {
				m.handleEdge(ctx, e.edge)
			} else {
				m.handleInternal(ctx, ev)
			}
		}
	}
}

// ─── Transitions ────────────────────────────────────────────────────────────

func (m *Machine) handleEdge(ctx context.Context, e hotkey.Edge) {
	if e.Action != hotkey.ActionToggleRecording {
		return
	}
	state := m.State()
	switch {
	case state == types.StateIdle && e.Direction == hotkey.Down:
		m.startRecording()
	case state == types.StateIdle && e.Direction == hotkey.Up:
		slog.Info("record key released, nothing to stop")
	case state == types.StateRecording && e.Direction == hotkey.Up:
		m.stopRecording(ctx)
	default:
		slog.Debug("ignoring hotkey edge", "edge", e, "state", state)
	}
}

func (m *Machine) startRecording() {
	s := &Session{ID: uuid.NewString(), StartedAt: time.Now()}
	s.record = types.SessionRecord{ID: s.ID, StartedAt: s.StartedAt}

	if err := m.deps.Capture.Start(); err != nil {
		slog.Error("start recording", "session", s.ID, "error", err)
		m.notify(Change{Session: s.ID, From: types.StateIdle, To: types.StateIdle,
			Reason: types.ReasonDeviceUnavailable, Err: err})
		m.finish(s, types.OutcomeDeviceFailure, err)
		return
	}
	m.captureStarts.Add(1)
	m.current = s
	m.transition(types.StateRecording, types.ReasonRecordingStarted, 0, nil)
}

func (m *Machine) stopRecording(ctx context.Context) {
	s := m.current
	pcm, ok := m.deps.Capture.Stop()
	m.captureStops.Add(1)
	s.record.RecordedTime = time.Since(s.StartedAt)

	if !ok {
		m.transition(types.StateIdle, types.ReasonNoAudio, 0, nil)
		m.finishCurrent(types.OutcomeNoAudio, nil)
		return
	}

	m.transition(types.StateTranscribing, types.ReasonRecordingStopped, 0, nil)
	m.pipelineRuns.Add(1)

	sctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.worker = make(chan struct{})
	go func() {
		defer close(s.worker)
		res, err := m.deps.Pipeline.Run(sctx, pcm, func(stage types.Stage) {
			m.post(stageEvent{id: s.ID, stage: stage})
		})
		m.post(pipelineDone{id: s.ID, res: res, err: err})
	}()
}

func (m *Machine) handleInternal(ctx context.Context, ev event) {
	s := m.current
	if s == nil || s.ID != ev.session() {
		slog.Debug("discarding stale session event", "session", ev.session())
		return
	}

	switch ev := ev.(type) {
	case stageEvent:
		if to := ev.stage.State(); to != m.State() {
			m.transition(to, types.ReasonStageStarted, ev.stage, nil)
		}

	case pipelineDone:
		m.applyResult(s, ev.res)
		switch ev.res.Outcome {
		case types.OutcomeCompleted:
			m.startPlayback(ctx, s, ev.res.Artifact)
		case types.OutcomeEmpty:
			m.transition(types.StateIdle, types.ReasonEmptyResult, ev.res.Stage, nil)
			m.finishCurrent(types.OutcomeEmpty, nil)
		default:
			slog.Error("pipeline failed", "session", s.ID, "stage", ev.res.Stage, "error", ev.err)
			m.transition(types.StateIdle, types.ReasonPipelineFailed, ev.res.Stage, ev.err)
			m.finishCurrent(ev.res.Outcome, ev.err)
		}

	case playbackDone:
		switch {
		case ev.err == nil || errors.Is(ev.err, playback.ErrStopped):
			m.transition(types.StateIdle, types.ReasonPlaybackFinished, 0, nil)
			m.finishCurrent(types.OutcomeCompleted, nil)
		case errors.Is(ev.err, audio.ErrDeviceUnavailable):
			slog.Error("play reply", "session", s.ID, "error", ev.err)
			m.transition(types.StateIdle, types.ReasonDeviceUnavailable, 0, ev.err)
			m.finishCurrent(types.OutcomeDeviceFailure, ev.err)
		default:
			slog.Error("play reply", "session", s.ID, "error", ev.err)
			m.transition(types.StateIdle, types.ReasonPlaybackFailed, 0, ev.err)
			m.finishCurrent(types.OutcomePlaybackFailed, ev.err)
		}
	}
}

func (m *Machine) startPlayback(ctx context.Context, s *Session, artifact string) {
	// Wait for the pipeline goroutine so the session has one worker at a time.
	<-s.worker

	m.transition(types.StatePlaying, types.ReasonPlaybackStarted, 0, nil)
	m.playbacks.Add(1)

	sctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.worker = make(chan struct{})
	go func() {
		defer close(s.worker)
		clip, err := m.deps.LoadClip(artifact)
		if err == nil {
			slog.Debug("playing reply", "session", s.ID, "frames", clip.Frames(),
				"waveform", playback.Waveform(clip.Samples, 48))
			err = m.deps.Player.PlayClip(sctx, clip)
		}
		m.post(playbackDone{id: s.ID, err: err})
	}()
}

// shutdown moves to ShuttingDown and tears down whatever the current
// session owns.
func (m *Machine) shutdown() {
	from := m.State()
	m.transition(types.StateShuttingDown, types.ReasonQuit, 0, nil)

	s := m.current
	if s == nil {
		return
	}
	switch {
	case from == types.StateRecording:
		m.deps.Capture.Abort()
	case from == types.StatePlaying:
		// The playback worker owns the output stream.
		s.cancel()
		m.deps.Player.Stop()
		m.awaitWorker(s)
	case from.Processing():
		// The pipeline worker holds no device. Its late report is
		// dropped by post once the loop has exited.
		s.cancel()
	}
	m.finishCurrent(types.OutcomeAbandoned, nil)
}

// awaitWorker waits for the session worker to exit, discarding its
// reports and any queued edges, for at most the shutdown grace period.
func (m *Machine) awaitWorker(s *Session) {
	if s.worker == nil {
		return
	}
	timer := time.NewTimer(m.opts.ShutdownGrace)
	defer timer.Stop()
	for {
		select {
		case <-s.worker:
			return
		case <-m.events:
		case <-timer.C:
			slog.Warn("session worker did not exit in time", "session", s.ID)
			return
		}
	}
}

// post delivers a worker report to the loop. Reports sent after the loop
// has exited are dropped.
func (m *Machine) post(ev event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

// ─── Bookkeeping ────────────────────────────────────────────────────────────

func (m *Machine) transition(to types.State, reason types.Reason, stage types.Stage, err error) {
	from := m.State()
	m.state.Store(to)
	id := ""
	if m.current != nil {
		id = m.current.ID
	}
	slog.Info("session state changed", "session", id, "from", from, "to", to, "reason", reason)
	m.notify(Change{Session: id, From: from, To: to, Reason: reason, Stage: stage, Err: err})
}

func (m *Machine) notify(c Change) {
	if m.deps.Observer != nil {
		m.deps.Observer.StateChanged(c)
	}
}

func (m *Machine) applyResult(s *Session, res pipeline.Result) {
	r := &s.record
	r.Stage = res.Stage.String()
	r.Transcript = res.Transcript
	r.Language = res.Language
	r.Reply = res.Reply
	r.Screenshot = res.Screenshot
	r.Recording = res.Recording
	r.Artifact = res.Artifact
	r.Usage = res.Usage
}

func (m *Machine) finishCurrent(outcome types.Outcome, err error) {
	s := m.current
	m.current = nil
	if s.cancel != nil {
		s.cancel()
	}
	m.finish(s, outcome, err)
}

func (m *Machine) finish(s *Session, outcome types.Outcome, err error) {
	s.record.FinishedAt = time.Now()
	s.record.Outcome = outcome
	if err != nil {
		s.record.Error = err.Error()
	}
	if m.deps.Observer != nil {
		m.deps.Observer.SessionFinished(s.record)
	}
}
