// Package types provides shared type definitions for the application.
package types

import (
	"errors"
	"time"
)

// ErrInitialization marks a failure to construct a required subsystem.
// It is the only process-fatal error kind.
var ErrInitialization = errors.New("initialization failed")

// State is the lifecycle state of a session.
type State string

const (
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
	StateGenerating   State = "generating"
	StateSynthesizing State = "synthesizing"
	StatePlaying      State = "playing"
	StateShuttingDown State = "shutting_down"
)

// Processing reports whether the state is one of the pipeline stages.
func (s State) Processing() bool {
	return s == StateTranscribing || s == StateGenerating || s == StateSynthesizing
}

// Stage identifies one step of the processing pipeline.
type Stage int

const (
	StageTranscribe Stage = iota + 1
	StageContextualize
	StageGenerate
	StageSynthesize
)

func (s Stage) String() string {
	switch s {
	case StageTranscribe:
		return "transcribe"
	case StageContextualize:
		return "contextualize"
	case StageGenerate:
		return "generate"
	case StageSynthesize:
		return "synthesize"
	default:
		return "unknown"
	}
}

// State returns the session state that corresponds to a running stage.
// Contextualize is part of generation from the operator's point of view.
func (s Stage) State() State {
	switch s {
	case StageTranscribe:
		return StateTranscribing
	case StageContextualize, StageGenerate:
		return StateGenerating
	case StageSynthesize:
		return StateSynthesizing
	default:
		return StateIdle
	}
}

// Outcome is how a session ended.
type Outcome string

const (
	OutcomeCompleted      Outcome = "completed"
	OutcomeNoAudio        Outcome = "no_audio"
	OutcomeEmpty          Outcome = "empty"
	OutcomeFailed         Outcome = "failed"
	OutcomeAbandoned      Outcome = "abandoned"
	OutcomeDeviceFailure  Outcome = "device_unavailable"
	OutcomePlaybackFailed Outcome = "playback_failed"
)

// Reason explains a state change to the operator.
type Reason string

const (
	ReasonReady             Reason = "ready"
	ReasonRecordingStarted  Reason = "recording_started"
	ReasonRecordingStopped  Reason = "recording_stopped"
	ReasonNoAudio           Reason = "no_audio"
	ReasonStageStarted      Reason = "stage_started"
	ReasonEmptyResult       Reason = "empty_result"
	ReasonPipelineFailed    Reason = "pipeline_failed"
	ReasonPlaybackStarted   Reason = "playback_started"
	ReasonPlaybackFinished  Reason = "playback_finished"
	ReasonPlaybackFailed    Reason = "playback_failed"
	ReasonDeviceUnavailable Reason = "device_unavailable"
	ReasonQuit              Reason = "quit"
)

// Usage represents token usage statistics from LLM API calls.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// SessionRecord is the persisted summary of one finished session.
type SessionRecord struct {
	ID           string        `json:"id"`
	StartedAt    time.Time     `json:"startedAt"`
	FinishedAt   time.Time     `json:"finishedAt"`
	Outcome      Outcome       `json:"outcome"`
	Stage        string        `json:"stage,omitempty"`
	Transcript   string        `json:"transcript,omitempty"`
	Language     string        `json:"language,omitempty"`
	Reply        string        `json:"reply,omitempty"`
	Screenshot   string        `json:"screenshot,omitempty"`
	Recording    string        `json:"recording,omitempty"`
	Artifact     string        `json:"artifact,omitempty"`
	Error        string        `json:"error,omitempty"`
	Usage        Usage         `json:"usage"`
	RecordedTime time.Duration `json:"recordedTime"`
}
