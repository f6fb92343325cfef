// Package pipeline runs one recording through transcription, context
// gathering, reply generation and speech synthesis.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.aimuz.me/holdtalk/internal/types"
	"go.aimuz.me/holdtalk/llm"
)

// Transcript is the output of the transcribe stage.
type Transcript struct {
	Text      string
	Language  string // as reported by the recognizer, may be empty
	Recording string // path of the saved recording, may be empty
}

// Request is the multimodal request built by the contextualize stage.
type Request struct {
	Messages   []llm.Message
	Screenshot string
	Language   string
}

// Transcriber converts captured PCM to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (Transcript, error)
}

// ScreenCapturer saves a screenshot and returns its path.
type ScreenCapturer interface {
	Capture(ctx context.Context) (string, error)
}

// Contextualizer combines the transcript and an optional screenshot into
// a generation request. screenshot is empty when none is available.
type Contextualizer interface {
	Contextualize(ctx context.Context, text, screenshot string) (Request, error)
}

// Generator produces the reply text.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, types.Usage, error)
}

// Synthesizer speaks the reply into an audio file and returns its path.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// Deps are the collaborators of an Orchestrator. Screens may be nil.
type Deps struct {
	Transcriber    Transcriber
	Screens        ScreenCapturer
	Contextualizer Contextualizer
	Generator      Generator
	Synthesizer    Synthesizer
}

// Result describes how a run ended.
type Result struct {
	Outcome types.Outcome
	Stage   types.Stage // last stage entered

	Transcript string
	Language   string
	Recording  string
	Screenshot string
	Reply      string
	Artifact   string
	Usage      types.Usage
}

// Orchestrator sequences the four stages. It keeps no state between runs.
type Orchestrator struct {
	deps Deps
}

// New creates an orchestrator.
func New(deps Deps) (*Orchestrator, error) {
	var missing []string
	if deps.Transcriber == nil {
		missing = append(missing, "transcriber")
	}
	if deps.Contextualizer == nil {
		missing = append(missing, "contextualizer")
	}
	if deps.Generator == nil {
		missing = append(missing, "generator")
	}
	if deps.Synthesizer == nil {
		missing = append(missing, "synthesizer")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("new pipeline: missing %s", strings.Join(missing, ", "))
	}
	return &Orchestrator{deps: deps}, nil
}

// Run processes audio. report, if not nil, is called as each stage starts.
//
// An empty result at any stage ends the run with OutcomeEmpty and a nil
// error. A collaborator error ends it with OutcomeFailed and that error.
// Cancellation of ctx is observed between stages and ends the run with
// OutcomeAbandoned.
func (o *Orchestrator) Run(ctx context.Context, audio []byte, report func(types.Stage)) (Result, error) {
	var res Result

	enter := func(s types.Stage) error {
		res.Stage = s
		if err := ctx.Err(); err != nil {
			res.Outcome = types.OutcomeAbandoned
			return err
		}
		if report != nil {
			report(s)
		}
		return nil
	}
	fail := func(err error) (Result, error) {
		if ctx.Err() != nil {
			res.Outcome = types.OutcomeAbandoned
			return res, errors.Join(ctx.Err(), err)
		}
		res.Outcome = types.OutcomeFailed
		return res, fmt.Errorf("%s: %w", res.Stage, err)
	}
	empty := func() (Result, error) {
		slog.Info("pipeline stage returned nothing", "stage", res.Stage)
		res.Outcome = types.OutcomeEmpty
		return res, nil
	}

	if len(audio) == 0 {
		res.Stage = types.StageTranscribe
		return empty()
	}

	// transcribe
	if err := enter(types.StageTranscribe); err != nil {
		return res, err
	}
	tr, err := o.deps.Transcriber.Transcribe(ctx, audio)
	res.Recording = tr.Recording
	if err != nil {
		return fail(err)
	}
	res.Transcript = strings.TrimSpace(tr.Text)
	res.Language = tr.Language
	if res.Transcript == "" {
		return empty()
	}
	slog.Info("transcribed", "text", res.Transcript, "language", res.Language)

	// contextualize
	if err := enter(types.StageContextualize); err != nil {
		return res, err
	}
	if o.deps.Screens != nil {
		path, err := o.deps.Screens.Capture(ctx)
		if err != nil {
			slog.Warn("capture screenshot, continuing without", "error", err)
		} else {
			res.Screenshot = path
		}
	}
	req, err := o.deps.Contextualizer.Contextualize(ctx, res.Transcript, res.Screenshot)
	if err != nil {
		return fail(err)
	}
	if len(req.Messages) == 0 {
		return empty()
	}
	if req.Language != "" {
		res.Language = req.Language
	}

	// generate
	if err := enter(types.StageGenerate); err != nil {
		return res, err
	}
	reply, usage, err := o.deps.Generator.Generate(ctx, req)
	res.Usage = usage
	if err != nil {
		return fail(err)
	}
	res.Reply = strings.TrimSpace(reply)
	if res.Reply == "" {
		return empty()
	}
	slog.Info("generated reply", "chars", len(res.Reply), "tokens", usage.TotalTokens)

	// synthesize
	if err := enter(types.StageSynthesize); err != nil {
		return res, err
	}
	artifact, err := o.deps.Synthesizer.Synthesize(ctx, res.Reply)
	if err != nil {
		return fail(err)
	}
	if artifact == "" {
		return empty()
	}
	res.Artifact = artifact

	if err := ctx.Err(); err != nil {
		res.Outcome = types.OutcomeAbandoned
		return res, err
	}
	res.Outcome = types.OutcomeCompleted
	return res, nil
}
