package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"voice-todo/config"
	"voice-todo/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("loading defaults: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("server.addr: got %q", cfg.Server.Addr)
	}
	if cfg.Transcription.Provider != "soniox" || cfg.Analysis.Provider != "newapi" {
		t.Errorf("providers: got %q / %q", cfg.Transcription.Provider, cfg.Analysis.Provider)
	}
	if cfg.Soniox.PollInitial.Duration != 600*time.Millisecond || cfg.Soniox.PollMax.Duration != 2*time.Second {
		t.Errorf("poll backoff: got %v..%v", cfg.Soniox.PollInitial, cfg.Soniox.PollMax)
	}
	if cfg.Soniox.Timeout.Duration != 180*time.Second {
		t.Errorf("soniox.timeout: got %v", cfg.Soniox.Timeout)
	}
	if cfg.NewAPI.Model != "gpt-4.1" || cfg.NewAPI.MaxAttempts != 3 {
		t.Errorf("newapi: got model %q attempts %d", cfg.NewAPI.Model, cfg.NewAPI.MaxAttempts)
	}
	if cfg.NewAPI.BackoffStep.Duration != 500*time.Millisecond {
		t.Errorf("newapi.backoff_step: got %v", cfg.NewAPI.BackoffStep)
	}
	if cfg.Audio.Source != "none" {
		t.Errorf("audio.source: got %q", cfg.Audio.Source)
	}
}

func TestLoad_FileWithEnvExpansion(t *testing.T) {
	t.Setenv("TEST_SONIOX_KEY", "sk-from-env")

	path := writeConfig(t, `
server:
  addr: "127.0.0.1:9000"
  auth_token: secret
soniox:
  api_key: ${TEST_SONIOX_KEY}
  poll_initial: 250ms
  timeout: 2m
  language_hints: [en, es]
newapi:
  base_url: https://gateway.example.com/v1
  fallback_models: [gpt-4o, qwen-max]
audio:
  source: dir
  watch_dir: /tmp/notes
  settle: 5s
log:
  level: debug
  format: json
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}

	if cfg.Soniox.APIKey != "sk-from-env" {
		t.Errorf("soniox.api_key: got %q", cfg.Soniox.APIKey)
	}
	if cfg.Soniox.PollInitial.Duration != 250*time.Millisecond {
		t.Errorf("soniox.poll_initial: got %v", cfg.Soniox.PollInitial)
	}
	if cfg.Soniox.Timeout.Duration != 2*time.Minute {
		t.Errorf("soniox.timeout: got %v", cfg.Soniox.Timeout)
	}
	if len(cfg.Soniox.LanguageHints) != 2 {
		t.Errorf("soniox.language_hints: got %v", cfg.Soniox.LanguageHints)
	}
	if len(cfg.NewAPI.FallbackModels) != 2 || cfg.NewAPI.FallbackModels[0] != "gpt-4o" {
		t.Errorf("newapi.fallback_models: got %v", cfg.NewAPI.FallbackModels)
	}
	if cfg.Audio.Settle.Duration != 5*time.Second || cfg.Audio.WatchDir != "/tmp/notes" {
		t.Errorf("audio: got %+v", cfg.Audio)
	}
	if cfg.Server.AuthToken != "secret" {
		t.Errorf("server.auth_token: got %q", cfg.Server.AuthToken)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("SONIOX_API_KEY", "sk-env")
	t.Setenv("SONIOX_MODEL", "stt-async-v2")
	t.Setenv("NEWAPI_BASE_URL", "https://env-gateway.example.com/v1")
	t.Setenv("NEWAPI_API_KEY", "na-env")
	t.Setenv("NEWAPI_MODEL", "qwen-max")

	path := writeConfig(t, `
soniox:
  api_key: sk-file
newapi:
  api_key: na-file
  model: gpt-4o
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"soniox key", cfg.Soniox.APIKey, "sk-env"},
		{"soniox model", cfg.Soniox.Model, "stt-async-v2"},
		{"newapi url", cfg.NewAPI.BaseURL, "https://env-gateway.example.com/v1"},
		{"newapi key", cfg.NewAPI.APIKey, "na-env"},
		{"newapi model", cfg.NewAPI.Model, "qwen-max"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown transcription provider", "transcription:\n  provider: dictaphone\n"},
		{"unknown analysis provider", "analysis:\n  provider: eliza\n"},
		{"unknown audio source", "audio:\n  source: tape\n"},
		{"log format", "log:\n  format: xml\n"},
		{"multiplier below one", "soniox:\n  poll_multiplier: 0.5\n"},
		{"poll max below initial", "soniox:\n  poll_initial: 5s\n  poll_max: 1s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.content))
			if !errors.Is(err, domain.ErrConfigInvalid) {
				t.Errorf("error: got %v, want ErrConfigInvalid", err)
			}
		})
	}
}

func TestLoad_BadDuration(t *testing.T) {
	_, err := config.Load(writeConfig(t, "soniox:\n  timeout: forever\n"))
	if err == nil {
		t.Fatal("expected an error for an unparseable duration")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
