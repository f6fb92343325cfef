package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"go.aimuz.me/holdtalk/audio"
	"go.aimuz.me/holdtalk/internal/types"
	"go.aimuz.me/holdtalk/llm"
	"go.aimuz.me/holdtalk/stt"
)

// ─── Fakes ──────────────────────────────────────────────────────────────────

type fakeTranscriber struct {
	calls int
	text  string
	err   error
	hook  func()
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ []byte) (Transcript, error) {
	f.calls++
	if f.hook != nil {
		f.hook()
	}
	return Transcript{Text: f.text, Language: "en", Recording: "rec.wav"}, f.err
}

type fakeScreens struct {
	calls int
	path  string
	err   error
}

func (f *fakeScreens) Capture(context.Context) (string, error) {
	f.calls++
	return f.path, f.err
}

type fakeContextualizer struct {
	calls      int
	screenshot string
	empty      bool
	err        error
}

func (f *fakeContextualizer) Contextualize(_ context.Context, text, screenshot string) (Request, error) {
	f.calls++
	f.screenshot = screenshot
	if f.empty {
		return Request{}, f.err
	}
	return Request{Messages: []llm.Message{{Role: "user", Content: text}}}, f.err
}

type fakeGenerator struct {
	calls int
	reply string
	err   error
	hook  func()
}

func (f *fakeGenerator) Generate(context.Context, Request) (string, types.Usage, error) {
	f.calls++
	if f.hook != nil {
		f.hook()
	}
	return f.reply, types.Usage{TotalTokens: 42}, f.err
}

type fakeSynthesizer struct {
	calls int
	path  string
	err   error
}

func (f *fakeSynthesizer) Synthesize(context.Context, string) (string, error) {
	f.calls++
	return f.path, f.err
}

type fakes struct {
	tr  *fakeTranscriber
	sc  *fakeScreens
	cx  *fakeContextualizer
	gen *fakeGenerator
	syn *fakeSynthesizer
}

func newFakes() *fakes {
	return &fakes{
		tr:  &fakeTranscriber{text: "what is this error"},
		sc:  &fakeScreens{path: "screen.png"},
		cx:  &fakeContextualizer{},
		gen: &fakeGenerator{reply: "It is a nil pointer."},
		syn: &fakeSynthesizer{path: "response.wav"},
	}
}

func (f *fakes) orchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	o, err := New(Deps{
		Transcriber:    f.tr,
		Screens:        f.sc,
		Contextualizer: f.cx,
		Generator:      f.gen,
		Synthesizer:    f.syn,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func (f *fakes) counts() [4]int {
	return [4]int{f.tr.calls, f.cx.calls, f.gen.calls, f.syn.calls}
}

var pcm = []byte{1, 0, 2, 0}

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestRunCompleted(t *testing.T) {
	f := newFakes()
	var stages []types.Stage

	res, err := f.orchestrator(t).Run(context.Background(), pcm, func(s types.Stage) {
		stages = append(stages, s)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != types.OutcomeCompleted {
		t.Fatalf("Outcome = %s", res.Outcome)
	}
	if res.Artifact != "response.wav" || res.Screenshot != "screen.png" || res.Recording != "rec.wav" {
		t.Errorf("result = %+v", res)
	}
	if res.Usage.TotalTokens != 42 {
		t.Errorf("usage = %+v", res.Usage)
	}
	want := []types.Stage{types.StageTranscribe, types.StageContextualize, types.StageGenerate, types.StageSynthesize}
	if !slices.Equal(stages, want) {
		t.Errorf("stages = %v, want %v", stages, want)
	}
	if got := f.counts(); got != [4]int{1, 1, 1, 1} {
		t.Errorf("calls = %v", got)
	}
	if f.cx.screenshot != "screen.png" {
		t.Errorf("contextualize got screenshot %q", f.cx.screenshot)
	}
}

func TestRunShortCircuit(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(*fakes)
		audio     []byte
		wantOut   types.Outcome
		wantStage types.Stage
		wantCalls [4]int
		wantErr   bool
	}{
		{
			name:      "no_audio",
			setup:     func(*fakes) {},
			audio:     nil,
			wantOut:   types.OutcomeEmpty,
			wantStage: types.StageTranscribe,
			wantCalls: [4]int{0, 0, 0, 0},
		},
		{
			name:      "empty_transcript",
			setup:     func(f *fakes) { f.tr.text = "  " },
			audio:     pcm,
			wantOut:   types.OutcomeEmpty,
			wantStage: types.StageTranscribe,
			wantCalls: [4]int{1, 0, 0, 0},
		},
		{
			name:      "empty_request",
			setup:     func(f *fakes) { f.cx.empty = true },
			audio:     pcm,
			wantOut:   types.OutcomeEmpty,
			wantStage: types.StageContextualize,
			wantCalls: [4]int{1, 1, 0, 0},
		},
		{
			name:      "empty_reply",
			setup:     func(f *fakes) { f.gen.reply = "" },
			audio:     pcm,
			wantOut:   types.OutcomeEmpty,
			wantStage: types.StageGenerate,
			wantCalls: [4]int{1, 1, 1, 0},
		},
		{
			name:      "empty_artifact",
			setup:     func(f *fakes) { f.syn.path = "" },
			audio:     pcm,
			wantOut:   types.OutcomeEmpty,
			wantStage: types.StageSynthesize,
			wantCalls: [4]int{1, 1, 1, 1},
		},
		{
			name:      "transcribe_error",
			setup:     func(f *fakes) { f.tr.err = errors.New("401") },
			audio:     pcm,
			wantOut:   types.OutcomeFailed,
			wantStage: types.StageTranscribe,
			wantCalls: [4]int{1, 0, 0, 0},
			wantErr:   true,
		},
		{
			name:      "generate_error",
			setup:     func(f *fakes) { f.gen.err = errors.New("overloaded") },
			audio:     pcm,
			wantOut:   types.OutcomeFailed,
			wantStage: types.StageGenerate,
			wantCalls: [4]int{1, 1, 1, 0},
			wantErr:   true,
		},
		{
			name:      "synthesize_error",
			setup:     func(f *fakes) { f.syn.err = errors.New("quota") },
			audio:     pcm,
			wantOut:   types.OutcomeFailed,
			wantStage: types.StageSynthesize,
			wantCalls: [4]int{1, 1, 1, 1},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakes()
			tt.setup(f)

			res, err := f.orchestrator(t).Run(context.Background(), tt.audio, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if res.Outcome != tt.wantOut || res.Stage != tt.wantStage {
				t.Errorf("got %s at %s, want %s at %s", res.Outcome, res.Stage, tt.wantOut, tt.wantStage)
			}
			if got := f.counts(); got != tt.wantCalls {
				t.Errorf("calls = %v, want %v", got, tt.wantCalls)
			}
		})
	}
}

func TestRunScreenshotFailureProceeds(t *testing.T) {
	f := newFakes()
	f.sc.err = errors.New("screen recording permission denied")

	res, err := f.orchestrator(t).Run(context.Background(), pcm, nil)
	if err != nil || res.Outcome != types.OutcomeCompleted {
		t.Fatalf("Run = %s, %v", res.Outcome, err)
	}
	if f.cx.screenshot != "" || res.Screenshot != "" {
		t.Errorf("screenshot = %q / %q, want none", f.cx.screenshot, res.Screenshot)
	}
}

func TestRunWithoutScreens(t *testing.T) {
	f := newFakes()
	o, err := New(Deps{Transcriber: f.tr, Contextualizer: f.cx, Generator: f.gen, Synthesizer: f.syn})
	if err != nil {
		t.Fatal(err)
	}
	res, err := o.Run(context.Background(), pcm, nil)
	if err != nil || res.Outcome != types.OutcomeCompleted {
		t.Fatalf("Run = %s, %v", res.Outcome, err)
	}
}

func TestRunAbandoned(t *testing.T) {
	tests := []struct {
		name      string
		cancelIn  func(f *fakes, cancel context.CancelFunc)
		wantStage types.Stage
		wantCalls [4]int
	}{
		{
			name:      "during_transcribe",
			cancelIn:  func(f *fakes, cancel context.CancelFunc) { f.tr.hook = cancel },
			wantStage: types.StageContextualize,
			wantCalls: [4]int{1, 0, 0, 0},
		},
		{
			name:      "during_generate",
			cancelIn:  func(f *fakes, cancel context.CancelFunc) { f.gen.hook = cancel },
			wantStage: types.StageSynthesize,
			wantCalls: [4]int{1, 1, 1, 0},
		},
		{
			name: "failing_call_after_cancel",
			cancelIn: func(f *fakes, cancel context.CancelFunc) {
				f.gen.hook = cancel
				f.gen.err = context.Canceled
			},
			wantStage: types.StageGenerate,
			wantCalls: [4]int{1, 1, 1, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakes()
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			tt.cancelIn(f, cancel)

			res, err := f.orchestrator(t).Run(ctx, pcm, nil)
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("err = %v, want context.Canceled", err)
			}
			if res.Outcome != types.OutcomeAbandoned || res.Stage != tt.wantStage {
				t.Errorf("got %s at %s", res.Outcome, res.Stage)
			}
			if got := f.counts(); got != tt.wantCalls {
				t.Errorf("calls = %v, want %v", got, tt.wantCalls)
			}
		})
	}
}

func TestRunStateless(t *testing.T) {
	f := newFakes()
	o := f.orchestrator(t)
	f.tr.text = ""
	if res, _ := o.Run(context.Background(), pcm, nil); res.Outcome != types.OutcomeEmpty {
		t.Fatalf("first run = %s", res.Outcome)
	}
	f.tr.text = "again"
	res, err := o.Run(context.Background(), pcm, nil)
	if err != nil || res.Outcome != types.OutcomeCompleted || res.Transcript != "again" {
		t.Fatalf("second run = %+v, %v", res, err)
	}
}

func TestNewMissingDeps(t *testing.T) {
	_, err := New(Deps{Transcriber: &fakeTranscriber{}})
	if err == nil || !strings.Contains(err.Error(), "contextualizer, generator, synthesizer") {
		t.Fatalf("err = %v", err)
	}
}

// ─── PromptBuilder ──────────────────────────────────────────────────────────

type fixedDetector string

func (d fixedDetector) Detect(string) (string, bool) { return string(d), d != "" }

func TestPromptBuilder(t *testing.T) {
	shot := filepath.Join(t.TempDir(), "screen.png")
	if err := os.WriteFile(shot, []byte("\x89PNG"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		screenshot string
		detector   LanguageDetector
		wantImages int
		wantText   string
		wantSystem string
		wantLang   string
	}{
		{"with_screenshot", shot, nil, 1, "taking into account the screenshot", "Be brief.", ""},
		{"no_screenshot", "", nil, 0, "Here is my question/request: hi", "Be brief.", ""},
		{"missing_file", filepath.Join(t.TempDir(), "gone.png"), nil, 0, "Here is my question/request: hi", "Be brief.", ""},
		{"language_hint", "", fixedDetector("fr"), 0, "hi", "Reply in French.", "fr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &PromptBuilder{SystemPrompt: "Be brief.", Detector: tt.detector}
			req, err := b.Contextualize(context.Background(), "hi", tt.screenshot)
			if err != nil {
				t.Fatalf("Contextualize: %v", err)
			}
			if len(req.Messages) != 2 {
				t.Fatalf("messages = %+v", req.Messages)
			}
			sys, user := req.Messages[0], req.Messages[1]
			if sys.Role != "system" || !strings.Contains(sys.Content, tt.wantSystem) {
				t.Errorf("system = %+v", sys)
			}
			if len(user.Images) != tt.wantImages || !strings.Contains(user.Content, tt.wantText) {
				t.Errorf("user = %q with %d images", user.Content, len(user.Images))
			}
			if req.Language != tt.wantLang {
				t.Errorf("language = %q", req.Language)
			}
		})
	}

	req, _ := (&PromptBuilder{}).Contextualize(context.Background(), "", "")
	if len(req.Messages) != 0 {
		t.Errorf("empty text built %d messages", len(req.Messages))
	}
}

// ─── Adapters ───────────────────────────────────────────────────────────────

type fakeProvider struct {
	ready bool
	path  string
	lang  string
}

func (p *fakeProvider) Name() string                           { return "fake" }
func (p *fakeProvider) DisplayName() string                    { return "Fake" }
func (p *fakeProvider) IsLocal() bool                          { return true }
func (p *fakeProvider) IsReady() bool                          { return p.ready }
func (p *fakeProvider) SetupProgress() int                     { return 100 }
func (p *fakeProvider) Setup(context.Context, func(int)) error { return nil }
func (p *fakeProvider) Close() error                           { return nil }
func (p *fakeProvider) Transcribe(_ context.Context, path, lang string) (*stt.Result, error) {
	p.path, p.lang = path, lang
	return &stt.Result{Text: "hello", Language: "en"}, nil
}

func TestRecordingTranscriber(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "recordings")
	p := &fakeProvider{ready: true}
	tr := &RecordingTranscriber{Provider: p, Dir: dir, Format: audio.CaptureFormat, Language: "auto"}

	got, err := tr.Transcribe(context.Background(), pcm)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "hello" || got.Recording != p.path || p.lang != "auto" {
		t.Fatalf("got %+v, provider saw %q %q", got, p.path, p.lang)
	}
	if !strings.HasPrefix(filepath.Base(got.Recording), "rec_") || filepath.Dir(got.Recording) != dir {
		t.Errorf("recording path = %q", got.Recording)
	}
	clip, err := audio.ReadWAV(got.Recording)
	if err != nil || len(clip.Samples) != 2 {
		t.Errorf("saved recording = %+v, %v", clip, err)
	}

	p.ready = false
	if _, err := tr.Transcribe(context.Background(), pcm); !errors.Is(err, stt.ErrNotReady) {
		t.Errorf("not ready err = %v", err)
	}
}
