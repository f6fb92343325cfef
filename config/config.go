// Package config handles application configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	appName        = "holdtalk"
	configFileName = "config.json"
)

// DefaultSystemPrompt asks for short answers that read well aloud.
const DefaultSystemPrompt = "You are a voice assistant. The user speaks a question or request and " +
	"shares a screenshot of what they are working on. Answer in a few short spoken sentences: " +
	"no markdown, no lists, no code blocks."

// Config represents the application configuration.
type Config struct {
	Hotkeys       Hotkeys `json:"hotkeys"`
	Audio         Audio   `json:"audio"`
	STT           STT     `json:"stt"`
	LLM           LLM     `json:"llm"`
	TTS           TTS     `json:"tts"`
	Context       Context `json:"context"`
	Paths         Paths   `json:"paths"`
	History       History `json:"history"`
	Lazy          bool    `json:"lazy"`          // Build the pipeline on first use
	Notifications bool    `json:"notifications"` // Desktop notifications on state changes
	Clipboard     bool    `json:"clipboard"`     // Copy each reply to the clipboard
	SentryDSN     string  `json:"sentry_dsn,omitempty"`
	LogLevel      string  `json:"log_level" validate:"oneof=debug info warn error"`

	path string
}

// Combo is a key name plus modifier names, e.g. {"a", ["cmd", "shift"]}.
type Combo struct {
	Key       string   `json:"key" validate:"required"`
	Modifiers []string `json:"modifiers" validate:"dive,oneof=cmd command meta super win ctrl control alt option opt shift"`
}

func (c Combo) String() string {
	return strings.Join(append(append([]string(nil), c.Modifiers...), c.Key), "+")
}

// Hotkeys holds the two bound combos.
type Hotkeys struct {
	Record Combo `json:"record"`
	Quit   Combo `json:"quit"`
}

// Audio configures the capture and playback streams.
type Audio struct {
	SampleRate      int `json:"sample_rate" validate:"min=8000,max=48000"`
	Channels        int `json:"channels" validate:"min=1,max=2"`
	FramesPerBuffer int `json:"frames_per_buffer" validate:"min=64,max=8192"`
	QueueDepth      int `json:"queue_depth" validate:"min=1,max=1024"`
}

// STT configures speech-to-text.
type STT struct {
	Provider  string `json:"provider" validate:"oneof=whisper-api whisper-local"`
	APIKey    string `json:"api_key,omitempty"`
	BaseURL   string `json:"base_url,omitempty" validate:"omitempty,url"`
	Model     string `json:"model,omitempty"`
	ModelSize string `json:"model_size,omitempty" validate:"omitempty,oneof=tiny base small medium large"`
	ModelDir  string `json:"model_dir,omitempty"`
	BinPath   string `json:"bin_path,omitempty"`
	Language  string `json:"language,omitempty"` // empty or "auto" to detect
}

// LLM configures reply generation.
type LLM struct {
	Provider        string  `json:"provider" validate:"oneof=openai claude gemini"`
	APIKey          string  `json:"api_key,omitempty"`
	BaseURL         string  `json:"base_url,omitempty" validate:"omitempty,url"`
	Model           string  `json:"model" validate:"required"`
	SystemPrompt    string  `json:"system_prompt"`
	MaxTokens       int     `json:"max_tokens" validate:"min=1,max=64000"`
	Temperature     float64 `json:"temperature" validate:"min=0,max=2"`
	DisableThinking bool    `json:"disable_thinking,omitempty"`
}

// TTS configures speech synthesis.
type TTS struct {
	APIKey       string `json:"api_key,omitempty"`
	BaseURL      string `json:"base_url,omitempty" validate:"omitempty,url"`
	Model        string `json:"model" validate:"required"`
	Voice        string `json:"voice" validate:"required"`
	Instructions string `json:"instructions,omitempty"`
}

// Context configures what accompanies the transcript.
type Context struct {
	Screenshot     bool `json:"screenshot"`
	DetectLanguage bool `json:"detect_language"` // Ask for a reply in the speaker's language
}

// Paths are where artifacts are written.
type Paths struct {
	Recordings  string `json:"recordings" validate:"required"`
	Screenshots string `json:"screenshots" validate:"required"`
	Responses   string `json:"responses" validate:"required"`
	History     string `json:"history" validate:"required"`
	Logs        string `json:"logs" validate:"required"`
}

// History configures the session store.
type History struct {
	Enabled    bool `json:"enabled"`
	RetainDays int  `json:"retain_days" validate:"min=0"` // 0 keeps everything
}

// Load loads configuration from path, or from the default location if
// path is empty. Returns default config if the file doesn't exist.
// Environment overrides are applied and the result is validated.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := configPath()
		if err != nil {
			return nil, fmt.Errorf("get config path: %w", err)
		}
		path = p
	}

	cfg := defaultConfig(filepath.Dir(path))
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	cfg.path = path

	cfg.applyDefaults()
	cfg.applyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotenv loads .env from the working directory and the config
// directory. Variables already set in the environment win. Missing files
// are ignored.
func LoadDotenv() error {
	files := []string{".env"}
	if p, err := configPath(); err == nil {
		files = append(files, filepath.Join(filepath.Dir(p), ".env"))
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string {
	return c.path
}

// Save persists the configuration to disk.
func (c *Config) Save() error {
	if c.path == "" {
		p, err := configPath()
		if err != nil {
			return fmt.Errorf("get config path: %w", err)
		}
		c.path = p
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// API keys may be stored here.
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// CheckCredentials reports missing API keys for the configured providers.
func (c *Config) CheckCredentials() error {
	var errs []error
	if c.STT.Provider == "whisper-api" && c.STT.APIKey == "" {
		errs = append(errs, errors.New("stt.api_key not set (or OPENAI_API_KEY)"))
	}
	if c.LLM.APIKey == "" {
		errs = append(errs, fmt.Errorf("llm.api_key not set (or %s)", llmKeyEnv[c.LLM.Provider]))
	}
	if c.TTS.APIKey == "" {
		errs = append(errs, errors.New("tts.api_key not set (or OPENAI_API_KEY)"))
	}
	return errors.Join(errs...)
}

// Helper functions

var llmKeyEnv = map[string]string{
	"openai": "OPENAI_API_KEY",
	"claude": "ANTHROPIC_API_KEY",
	"gemini": "GEMINI_API_KEY",
}

var defaultModels = map[string]string{
	"openai": "gpt-4o",
	"claude": "claude-sonnet-4-5",
	"gemini": "gemini-2.5-flash",
}

func (c *Config) applyDefaults() {
	if c.LLM.Model == "" {
		c.LLM.Model = defaultModels[c.LLM.Provider]
	}
	if c.LLM.SystemPrompt == "" {
		c.LLM.SystemPrompt = DefaultSystemPrompt
	}
	if c.STT.Provider == "whisper-local" && c.STT.ModelSize == "" {
		c.STT.ModelSize = "base"
	}
}

// applyEnv fills credentials from the environment and applies HOLDTALK_*
// overrides.
func (c *Config) applyEnv(getenv func(string) string) {
	openaiKey := getenv("OPENAI_API_KEY")
	if c.STT.APIKey == "" {
		c.STT.APIKey = openaiKey
	}
	if c.TTS.APIKey == "" {
		c.TTS.APIKey = openaiKey
	}

	if v := getenv("HOLDTALK_LLM_PROVIDER"); v != "" && v != c.LLM.Provider {
		c.LLM.Provider = v
		c.LLM.Model = defaultModels[v]
	}
	if v := getenv("HOLDTALK_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = getenv(llmKeyEnv[c.LLM.Provider])
	}

	if v := getenv("HOLDTALK_STT_PROVIDER"); v != "" {
		c.STT.Provider = v
		c.applyDefaults()
	}
	if v := getenv("HOLDTALK_LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := getenv("HOLDTALK_LAZY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Lazy = b
		}
	}
	if v := getenv("SENTRY_DSN"); v != "" && c.SentryDSN == "" {
		c.SentryDSN = v
	}
}

func configPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}

func defaultConfig(dir string) *Config {
	return &Config{
		Hotkeys: Hotkeys{
			Record: Combo{Key: "a", Modifiers: []string{"cmd", "shift"}},
			Quit:   Combo{Key: "q", Modifiers: []string{"cmd", "shift"}},
		},
		Audio: Audio{
			SampleRate:      16000,
			Channels:        1,
			FramesPerBuffer: 1024,
			QueueDepth:      64,
		},
		STT: STT{
			Provider: "whisper-api",
			Model:    "whisper-1",
		},
		LLM: LLM{
			Provider:     "claude",
			Model:        defaultModels["claude"],
			SystemPrompt: DefaultSystemPrompt,
			MaxTokens:    1024,
			Temperature:  0.7,
		},
		TTS: TTS{
			Model: "tts-1",
			Voice: "nova",
		},
		Context: Context{Screenshot: true, DetectLanguage: true},
		Paths: Paths{
			Recordings:  filepath.Join(dir, "recordings"),
			Screenshots: filepath.Join(dir, "screenshots"),
			Responses:   filepath.Join(dir, "responses"),
			History:     filepath.Join(dir, "history"),
			Logs:        filepath.Join(dir, "logs"),
		},
		History:       History{Enabled: true, RetainDays: 30},
		Notifications: true,
		LogLevel:      "info",
	}
}
