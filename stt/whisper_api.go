package stt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// WhisperAPI implements the Provider interface using OpenAI's transcription API.
type WhisperAPI struct {
	client *openai.Client
	model  string

	mu    sync.RWMutex
	ready bool
}

// WhisperAPIConfig holds configuration for WhisperAPI.
type WhisperAPIConfig struct {
	APIKey  string
	BaseURL string // Optional, defaults to OpenAI's API
	Model   string // Optional, defaults to "whisper-1"
}

// NewWhisperAPI creates a new WhisperAPI provider.
func NewWhisperAPI(cfg WhisperAPIConfig) *WhisperAPI {
	model := cfg.Model
	if model == "" {
		model = string(openai.AudioModelWhisper1)
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	return &WhisperAPI{
		client: &client,
		model:  model,
		ready:  cfg.APIKey != "",
	}
}

func (w *WhisperAPI) Name() string        { return "whisper-api" }
func (w *WhisperAPI) DisplayName() string { return "OpenAI Whisper API" }
func (w *WhisperAPI) IsLocal() bool       { return false }
func (w *WhisperAPI) SetupProgress() int  { return 100 }

func (w *WhisperAPI) IsReady() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ready
}

func (w *WhisperAPI) Setup(_ context.Context, _ func(percent int)) error {
	if !w.IsReady() {
		return fmt.Errorf("setup whisper api: %w: API key is required", ErrNotReady)
	}
	return nil
}

// Transcribe uploads the recording to the transcription endpoint.
func (w *WhisperAPI) Transcribe(ctx context.Context, wavPath, language string) (*Result, error) {
	if !w.IsReady() {
		return nil, fmt.Errorf("transcribe: %w: API key required", ErrNotReady)
	}

	f, err := os.Open(wavPath)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(f, filepath.Base(wavPath), "audio/wav"),
		Model: openai.AudioModel(w.model),
	}
	// The API rejects "auto"; omitting the field means auto-detect.
	if !autoLanguage(language) {
		params.Language = openai.String(language)
	}

	resp, err := w.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create transcription: %w", err)
	}

	result := &Result{Text: strings.TrimSpace(resp.Text)}
	if !autoLanguage(language) {
		result.Language = language
	}
	return result, nil
}

func (w *WhisperAPI) Close() error {
	return nil
}
