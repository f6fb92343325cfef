package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Path() != path {
		t.Errorf("Path = %q, want %q", cfg.Path(), path)
	}
	if cfg.Hotkeys.Record.String() != "cmd+shift+a" || cfg.Hotkeys.Quit.String() != "cmd+shift+q" {
		t.Errorf("hotkeys = %s / %s", cfg.Hotkeys.Record, cfg.Hotkeys.Quit)
	}
	if cfg.Paths.Recordings != filepath.Join(dir, "recordings") {
		t.Errorf("recordings = %q", cfg.Paths.Recordings)
	}
	if cfg.Lazy {
		t.Error("lazy init should default to off")
	}
	if err := cfg.CheckCredentials(); err == nil {
		t.Error("CheckCredentials passed without keys")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.LLM.Provider = "gemini"
	cfg.LLM.Model = "gemini-test"
	cfg.Lazy = true
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if fi, err := os.Stat(path); err != nil || fi.Mode().Perm() != 0o600 {
		t.Fatalf("saved file: %v, %v", fi, err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.LLM.Provider != "gemini" || got.LLM.Model != "gemini-test" || !got.Lazy {
		t.Fatalf("reloaded = %+v", got.LLM)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("HOLDTALK_LOG_LEVEL", "DEBUG")
	t.Setenv("HOLDTALK_LAZY", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.STT.APIKey != "sk-openai" || cfg.TTS.APIKey != "sk-openai" {
		t.Errorf("openai keys = %q / %q", cfg.STT.APIKey, cfg.TTS.APIKey)
	}
	if cfg.LLM.APIKey != "sk-ant" {
		t.Errorf("claude key = %q", cfg.LLM.APIKey)
	}
	if cfg.LogLevel != "debug" || !cfg.Lazy {
		t.Errorf("log level %q lazy %v", cfg.LogLevel, cfg.Lazy)
	}
	if err := cfg.CheckCredentials(); err != nil {
		t.Errorf("CheckCredentials: %v", err)
	}
}

func TestLoadEnvSwitchesProvider(t *testing.T) {
	t.Setenv("HOLDTALK_LLM_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "g-key")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != "gemini" || cfg.LLM.Model != defaultModels["gemini"] || cfg.LLM.APIKey != "g-key" {
		t.Fatalf("llm = %+v", cfg.LLM)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad_json", `{`, "unmarshal config"},
		{"unknown_provider", `{"llm":{"provider":"mystery","model":"m"}}`, "LLM.Provider"},
		{"bad_log_level", `{"log_level":"loud"}`, "LogLevel"},
		{"bad_modifier", `{"hotkeys":{"record":{"key":"a","modifiers":["hyper"]},"quit":{"key":"q"}}}`, "Modifiers"},
		{"missing_key", `{"hotkeys":{"record":{"key":""},"quit":{"key":"q"}}}`, "Record.Key"},
		{"channels", `{"audio":{"sample_rate":16000,"channels":6,"frames_per_buffer":1024,"queue_depth":64}}`, "Channels"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Load error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
