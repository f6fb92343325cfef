// Package app wires the hotkey source, audio device, pipeline and session
// machine into a running assistant.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.aimuz.me/holdtalk/audio"
	"go.aimuz.me/holdtalk/audiocapture"
	"go.aimuz.me/holdtalk/clipboard"
	"go.aimuz.me/holdtalk/config"
	"go.aimuz.me/holdtalk/history"
	"go.aimuz.me/holdtalk/hotkey"
	"go.aimuz.me/holdtalk/internal/pipeline"
	"go.aimuz.me/holdtalk/internal/session"
	"go.aimuz.me/holdtalk/internal/types"
	"go.aimuz.me/holdtalk/langdetect"
	"go.aimuz.me/holdtalk/llm"
	"go.aimuz.me/holdtalk/notify"
	"go.aimuz.me/holdtalk/playback"
	"go.aimuz.me/holdtalk/screenshot"
	"go.aimuz.me/holdtalk/stt"
	"go.aimuz.me/holdtalk/tts"
)

// EventSource is a hotkey source that must be started to deliver events.
type EventSource interface {
	hotkey.Source
	Start() error
}

// Deps are the platform pieces the service cannot build itself.
type Deps struct {
	Device  audio.Device
	Source  EventSource
	Resolve func(key string, modifiers []string) (hotkey.Combo, error)

	Console  io.Writer        // Defaults to os.Stdout
	Pipeline session.Pipeline // Overrides the pipeline built from config
}

// Service owns every long-lived resource of a running assistant.
type Service struct {
	cfg     *config.Config
	deps    Deps
	console *Console

	capture   *audiocapture.Buffer
	player    *playback.Engine
	history   *history.Store
	monitors  *hotkey.Monitors
	machine   *session.Machine
	lifecycle *Lifecycle

	mu       sync.Mutex
	registry *stt.Registry // set when the pipeline is built
}

// New builds the service. Any failure is wrapped in
// types.ErrInitialization, after whatever was already acquired has been
// released.
func New(cfg *config.Config, deps Deps) (*Service, error) {
	if deps.Console == nil {
		deps.Console = os.Stdout
	}
	s := &Service{cfg: cfg, deps: deps, console: NewConsole(deps.Console)}
	s.lifecycle = NewLifecycle(
		Step{Name: "stop capture", Run: s.stopCapture},
		Step{Name: "remove monitors", Run: s.removeMonitors},
		Step{Name: "close capture", Run: s.closeCapture},
		Step{Name: "close playback", Run: s.closePlayback},
		Step{Name: "release services", Run: s.releaseServices},
	)

	if err := s.init(); err != nil {
		if cerr := s.lifecycle.Cleanup(); cerr != nil {
			slog.Warn("cleanup after failed init", "error", cerr)
		}
		return nil, fmt.Errorf("%w: %w", types.ErrInitialization, err)
	}
	return s, nil
}

// Run starts the hotkey source and processes sessions until quit or ctx
// is done. Resources are released before it returns.
func (s *Service) Run(ctx context.Context) error {
	defer s.Cleanup()

	if err := s.deps.Source.Start(); err != nil {
		return fmt.Errorf("%w: start hotkey source: %w", types.ErrInitialization, err)
	}
	s.console.Banner(s.cfg.Hotkeys.Record.String(), s.cfg.Hotkeys.Quit.String())
	return s.machine.Run(ctx)
}

// Shutdown asks a running service to quit.
func (s *Service) Shutdown() {
	s.machine.Shutdown()
}

// Cleanup releases every resource. It is safe to call more than once and
// from any goroutine.
func (s *Service) Cleanup() error {
	return s.lifecycle.Cleanup()
}

// Machine returns the session machine.
func (s *Service) Machine() *session.Machine {
	return s.machine
}

// Lifecycle returns the teardown sequence.
func (s *Service) Lifecycle() *Lifecycle {
	return s.lifecycle
}

// ─── Initialization ─────────────────────────────────────────────────────────

func (s *Service) init() error {
	cfg := s.cfg
	if s.deps.Device == nil || s.deps.Source == nil || s.deps.Resolve == nil {
		return errors.New("missing device, hotkey source or key resolver")
	}

	if err := ensureDirs(cfg.Paths.Recordings, cfg.Paths.Screenshots, cfg.Paths.Responses); err != nil {
		return err
	}

	bindings, err := s.bindings()
	if err != nil {
		return err
	}

	if cfg.History.Enabled {
		if err := s.openHistory(); err != nil {
			return err
		}
	}

	s.capture = audiocapture.New(s.deps.Device, audiocapture.Config{
		Format: audio.Format{
			SampleRate:      cfg.Audio.SampleRate,
			Channels:        cfg.Audio.Channels,
			FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		},
		QueueDepth: cfg.Audio.QueueDepth,
	})
	s.player = playback.New(s.deps.Device, cfg.Audio.FramesPerBuffer)

	p := s.deps.Pipeline
	switch {
	case p != nil:
	case cfg.Lazy:
		slog.Info("pipeline will be built on first use")
		p = &lazyPipeline{build: s.buildPipeline}
	default:
		if p, err = s.buildPipeline(); err != nil {
			return err
		}
	}

	rep := &reporter{
		console: s.console,
		notify:  notify.New("holdtalk", cfg.Notifications).Notify,
	}
	if s.history != nil {
		rep.store = s.history
	}
	if cfg.Clipboard {
		rep.copy = clipboard.Copy
	}

	s.machine = session.New(session.Deps{
		Capture:  s.capture,
		Player:   s.player,
		Pipeline: p,
		Observer: rep,
	}, session.Options{})

	router := hotkey.NewRouter(bindings)
	s.monitors, err = hotkey.Install(s.deps.Source, router.Handler(s.machine.HandleEdge))
	if err != nil {
		return err
	}
	return nil
}

func (s *Service) bindings() (*hotkey.Bindings, error) {
	record, err := s.deps.Resolve(s.cfg.Hotkeys.Record.Key, s.cfg.Hotkeys.Record.Modifiers)
	if err != nil {
		return nil, fmt.Errorf("record hotkey %s: %w", s.cfg.Hotkeys.Record, err)
	}
	quit, err := s.deps.Resolve(s.cfg.Hotkeys.Quit.Key, s.cfg.Hotkeys.Quit.Modifiers)
	if err != nil {
		return nil, fmt.Errorf("quit hotkey %s: %w", s.cfg.Hotkeys.Quit, err)
	}
	return hotkey.NewBindings(
		hotkey.Binding{Combo: record, Action: hotkey.ActionToggleRecording},
		hotkey.Binding{Combo: quit, Action: hotkey.ActionQuit},
	)
}

func (s *Service) openHistory() error {
	store, err := history.Open(s.cfg.Paths.History)
	if err != nil {
		return err
	}
	s.history = store

	if days := s.cfg.History.RetainDays; days > 0 {
		cutoff := time.Now().AddDate(0, 0, -days)
		n, err := store.Prune(cutoff)
		if err != nil {
			slog.Warn("prune history", "error", err)
		} else if n > 0 {
			slog.Info("pruned history", "removed", n, "before", cutoff.Format(time.DateOnly))
		}
	}
	return nil
}

// buildPipeline constructs the provider clients. It is called at startup,
// or on first use when lazy initialization is enabled.
func (s *Service) buildPipeline() (session.Pipeline, error) {
	cfg := s.cfg
	if err := cfg.CheckCredentials(); err != nil {
		return nil, fmt.Errorf("check credentials: %w", err)
	}

	registry := stt.NewRegistry()
	registry.Register(stt.NewWhisperAPI(stt.WhisperAPIConfig{
		APIKey:  cfg.STT.APIKey,
		BaseURL: cfg.STT.BaseURL,
		Model:   cfg.STT.Model,
	}))
	if local, err := stt.NewWhisperLocal(stt.WhisperLocalConfig{
		ModelSize: cfg.STT.ModelSize,
		ModelDir:  cfg.STT.ModelDir,
		BinPath:   cfg.STT.BinPath,
	}); err != nil {
		slog.Warn("whisper-local unavailable", "error", err)
	} else {
		registry.Register(local)
	}
	s.mu.Lock()
	prev := s.registry
	s.registry = registry
	s.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}

	provider, err := registry.Select(cfg.STT.Provider)
	if err != nil {
		return nil, err
	}
	if !provider.IsReady() {
		slog.Info("setting up speech recognition", "provider", provider.DisplayName())
		err := provider.Setup(context.Background(), func(percent int) {
			slog.Info("speech recognition setup", "provider", provider.Name(), "percent", percent)
		})
		if err != nil {
			return nil, fmt.Errorf("set up %s: %w", provider.Name(), err)
		}
	}

	builder := &pipeline.PromptBuilder{SystemPrompt: cfg.LLM.SystemPrompt}
	if cfg.Context.DetectLanguage {
		d, err := langdetect.New()
		if err != nil {
			return nil, fmt.Errorf("build language detector: %w", err)
		}
		builder.Detector = d
	}

	deps := pipeline.Deps{
		Transcriber: &pipeline.RecordingTranscriber{
			Provider: provider,
			Dir:      cfg.Paths.Recordings,
			Format:   s.capture.Format(),
			Language: cfg.STT.Language,
		},
		Contextualizer: builder,
		Generator: &pipeline.CompleterGenerator{
			Completer: llm.NewCompleter(cfg.LLM.Provider, cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model, llm.Options{
				MaxTokens:       cfg.LLM.MaxTokens,
				Temperature:     cfg.LLM.Temperature,
				DisableThinking: cfg.LLM.DisableThinking,
			}),
		},
		Synthesizer: tts.New(tts.Config{
			APIKey:       cfg.TTS.APIKey,
			BaseURL:      cfg.TTS.BaseURL,
			Model:        cfg.TTS.Model,
			Voice:        cfg.TTS.Voice,
			Instructions: cfg.TTS.Instructions,
			Dir:          cfg.Paths.Responses,
		}),
	}
	if cfg.Context.Screenshot {
		deps.Screens = screenshot.New(cfg.Paths.Screenshots)
	}

	orch, err := pipeline.New(deps)
	if err != nil {
		return nil, err
	}
	slog.Info("pipeline ready", "stt", provider.Name(), "llm", cfg.LLM.Provider, "model", cfg.LLM.Model)
	return orch, nil
}

func ensureDirs(dirs ...string) error {
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}

// ─── Teardown ───────────────────────────────────────────────────────────────

func (s *Service) stopCapture() error {
	if s.capture != nil && s.capture.Active() {
		slog.Info("discarding in-progress recording")
		s.capture.Abort()
	}
	return nil
}

func (s *Service) removeMonitors() error {
	var errs []error
	if s.monitors != nil {
		if err := s.monitors.RemoveAll(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.deps.Source != nil {
		if err := s.deps.Source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close hotkey source: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) closeCapture() error {
	if s.capture == nil {
		return nil
	}
	return s.capture.Close()
}

func (s *Service) closePlayback() error {
	if s.player == nil {
		return nil
	}
	s.player.Stop()
	return s.player.Close()
}

func (s *Service) releaseServices() error {
	var errs []error
	s.mu.Lock()
	registry := s.registry
	s.registry = nil
	s.mu.Unlock()
	if registry != nil {
		if err := registry.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history: %w", err))
		}
	}
	if s.deps.Device != nil {
		if err := s.deps.Device.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close audio device: %w", err))
		}
	}
	return errors.Join(errs...)
}
