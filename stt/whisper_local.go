package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// WhisperLocal implements the Provider interface using local whisper.cpp.
// It uses the whisper-cpp CLI tool for transcription.
type WhisperLocal struct {
	modelPath string
	modelSize string // "tiny", "base", "small", "medium", "large"
	modelURL  string
	binPath   string // Path to whisper-cpp binary
	http      *http.Client

	mu            sync.RWMutex
	ready         bool
	setupProgress int
}

// WhisperLocalConfig holds configuration for WhisperLocal.
type WhisperLocalConfig struct {
	ModelSize string // "tiny", "base", "small", "medium", "large"
	ModelDir  string // Directory to store models
	BinPath   string // Path to whisper-cpp binary (optional, searched if not set)
	ModelURL  string // Optional override of the download URL
}

// Model sizes and their approximate download sizes.
var modelSizes = map[string]struct {
	URL  string
	Size int64 // Approximate size in bytes
}{
	"tiny":   {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-tiny.bin", 75 * 1024 * 1024},
	"base":   {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base.bin", 150 * 1024 * 1024},
	"small":  {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-small.bin", 500 * 1024 * 1024},
	"medium": {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-medium.bin", 1500 * 1024 * 1024},
	"large":  {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-large-v3.bin", 3000 * 1024 * 1024},
}

// NewWhisperLocal creates a new WhisperLocal provider.
func NewWhisperLocal(cfg WhisperLocalConfig) (*WhisperLocal, error) {
	if cfg.ModelSize == "" {
		cfg.ModelSize = "base"
	}

	info, ok := modelSizes[cfg.ModelSize]
	if !ok {
		return nil, fmt.Errorf("invalid model size: %s", cfg.ModelSize)
	}
	if cfg.ModelURL == "" {
		cfg.ModelURL = info.URL
	}

	if cfg.ModelDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		cfg.ModelDir = filepath.Join(homeDir, ".holdtalk", "models")
	}

	w := &WhisperLocal{
		modelSize:     cfg.ModelSize,
		modelPath:     filepath.Join(cfg.ModelDir, fmt.Sprintf("ggml-%s.bin", cfg.ModelSize)),
		modelURL:      cfg.ModelURL,
		binPath:       cfg.BinPath,
		http:          &http.Client{},
		setupProgress: -1,
	}
	if w.binPath == "" {
		w.binPath = findWhisperBinary()
	}

	if _, err := os.Stat(w.modelPath); err == nil && w.binPath != "" {
		w.ready = true
		w.setupProgress = 100
	}

	return w, nil
}

func (w *WhisperLocal) Name() string { return "whisper-local" }
func (w *WhisperLocal) DisplayName() string {
	if w.binPath == "" {
		return fmt.Sprintf("Whisper Local (%s) [whisper.cpp not installed]", w.modelSize)
	}
	return fmt.Sprintf("Whisper Local (%s)", w.modelSize)
}
func (w *WhisperLocal) IsLocal() bool { return true }

// HasBinary returns true if whisper-cpp binary is available.
func (w *WhisperLocal) HasBinary() bool {
	return w.binPath != ""
}

func (w *WhisperLocal) IsReady() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ready
}

func (w *WhisperLocal) SetupProgress() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.setupProgress
}

// Setup downloads the whisper model if needed.
func (w *WhisperLocal) Setup(ctx context.Context, progress func(percent int)) error {
	if w.binPath == "" {
		return fmt.Errorf("setup whisper local: %w: whisper-cpp binary not found", ErrNotReady)
	}

	w.mu.Lock()
	if w.ready {
		w.mu.Unlock()
		return nil
	}
	w.setupProgress = 0
	w.mu.Unlock()

	if _, err := os.Stat(w.modelPath); err != nil {
		if err := os.MkdirAll(filepath.Dir(w.modelPath), 0o755); err != nil {
			return fmt.Errorf("create model dir: %w", err)
		}
		if err := w.downloadModel(ctx, modelSizes[w.modelSize].Size, progress); err != nil {
			return fmt.Errorf("download model: %w", err)
		}
	}

	w.mu.Lock()
	w.ready = true
	w.setupProgress = 100
	w.mu.Unlock()

	if progress != nil {
		progress(100)
	}

	return nil
}

// progressWriter reports download progress as bytes pass through.
type progressWriter struct {
	w        *WhisperLocal
	expected int64
	written  int64
	last     int
	report   func(percent int)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if p.expected > 0 && p.report != nil {
		pct := min(int(p.written*100/p.expected), 99)
		if pct > p.last {
			p.last = pct
			p.w.mu.Lock()
			p.w.setupProgress = pct
			p.w.mu.Unlock()
			p.report(pct)
		}
	}
	return len(b), nil
}

func (w *WhisperLocal) downloadModel(ctx context.Context, expectedSize int64, progress func(percent int)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.modelURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http status: %d", resp.StatusCode)
	}
	if resp.ContentLength > 0 {
		expectedSize = resp.ContentLength
	}

	tmpPath := w.modelPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath) // Clean up on failure
	}()

	pw := &progressWriter{w: w, expected: expectedSize, report: progress}
	if _, err := io.Copy(io.MultiWriter(f, pw), resp.Body); err != nil {
		return fmt.Errorf("write model: %w", err)
	}

	// Close file before rename
	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}

	if err := os.Rename(tmpPath, w.modelPath); err != nil {
		return fmt.Errorf("rename file: %w", err)
	}

	return nil
}

// Transcribe runs whisper.cpp on the recording.
func (w *WhisperLocal) Transcribe(ctx context.Context, wavPath, language string) (*Result, error) {
	if !w.IsReady() {
		return nil, fmt.Errorf("transcribe: %w: model not downloaded", ErrNotReady)
	}

	args := []string{
		"-m", w.modelPath,
		"-f", wavPath,
		"-oj", // Output JSON
		"-of", strings.TrimSuffix(wavPath, filepath.Ext(wavPath)),
		"--no-prints",
	}
	if !autoLanguage(language) {
		args = append(args, "-l", language)
	}

	cmd := exec.CommandContext(ctx, w.binPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("whisper-cpp failed: %w, stderr: %s", err, stderr.String())
	}

	// whisper.cpp writes the JSON next to the input; older builds print it.
	jsonPath := strings.TrimSuffix(wavPath, filepath.Ext(wavPath)) + ".json"
	out, err := os.ReadFile(jsonPath)
	if err == nil {
		defer os.Remove(jsonPath)
	} else {
		out = stdout.Bytes()
	}

	var whisperOutput whisperCppOutput
	if err := json.Unmarshal(out, &whisperOutput); err != nil {
		return &Result{Text: strings.TrimSpace(stdout.String()), Language: language}, nil
	}

	var text strings.Builder
	for _, seg := range whisperOutput.Transcription {
		text.WriteString(seg.Text)
	}
	return &Result{
		Text:     strings.TrimSpace(text.String()),
		Language: whisperOutput.Result.Language,
	}, nil
}

func findWhisperBinary() string {
	// Common binary names - whisper-cli is the Homebrew name
	names := []string{"whisper-cli", "whisper-cpp", "whisper"}

	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	homeDir, _ := os.UserHomeDir()
	locations := []string{
		"/opt/homebrew/bin",
		"/usr/local/bin",
		filepath.Join(homeDir, ".local", "bin"),
		filepath.Join(homeDir, "whisper.cpp"),
	}

	for _, loc := range locations {
		for _, name := range names {
			path := filepath.Join(loc, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	return ""
}

func (w *WhisperLocal) Close() error {
	return nil
}

// whisperCppOutput represents the JSON output from whisper.cpp.
type whisperCppOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Text string `json:"text"`
	} `json:"transcription"`
}
