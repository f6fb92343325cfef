// Package tts synthesizes speech with OpenAI's speech endpoint.
package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	DefaultModel = "tts-1"
	DefaultVoice = "nova"
)

// Config holds configuration for the synthesizer.
type Config struct {
	APIKey       string
	BaseURL      string // Optional, defaults to OpenAI's API
	Model        string
	Voice        string
	Instructions string // Optional voice direction, gpt-4o-mini-tts only
	Dir          string // Where response files are written
}

// Synthesizer turns reply text into WAV files.
type Synthesizer struct {
	client *openai.Client
	cfg    Config
	now    func() time.Time
}

// New creates a synthesizer.
func New(cfg Config) *Synthesizer {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}
	if cfg.Dir == "" {
		cfg.Dir = "responses"
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	return &Synthesizer{client: &client, cfg: cfg, now: time.Now}
}

// speechRequest is the body of POST /audio/speech.
type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	Instructions   string `json:"instructions,omitempty"`
	ResponseFormat string `json:"response_format"`
}

// Synthesize writes the spoken text to
// <dir>/response_<timestamp>_<id>.wav and returns the path.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("synthesize: empty text")
	}

	var resp *http.Response
	err := s.client.Post(ctx, "audio/speech", speechRequest{
		Model:          s.cfg.Model,
		Input:          text,
		Voice:          s.cfg.Voice,
		Instructions:   s.cfg.Instructions,
		ResponseFormat: "wav",
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("create speech: %w", err)
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create responses dir: %w", err)
	}
	name := fmt.Sprintf("response_%s_%s.wav", s.now().Format("20060102_150405"), uuid.NewString()[:8])
	path := filepath.Join(s.cfg.Dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create response file: %w", err)
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n == 0 {
		err = errors.New("empty audio")
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write response audio: %w", err)
	}
	return path, nil
}
