package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"voice-todo/internal/domain"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Soniox        SonioxConfig        `yaml:"soniox"`
	Whisper       WhisperConfig       `yaml:"whisper"`
	Analysis      AnalysisConfig      `yaml:"analysis"`
	NewAPI        NewAPIConfig        `yaml:"newapi"`
	Anthropic     AnthropicConfig     `yaml:"anthropic"`
	Gemini        GeminiConfig        `yaml:"gemini"`
	Audio         AudioConfig         `yaml:"audio"`
	Pushover      PushoverConfig      `yaml:"pushover"`
	Log           LogConfig           `yaml:"log"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	AuthToken   string `yaml:"auth_token"`
	EventBuffer int    `yaml:"event_buffer"`
}

// TranscriptionConfig picks the speech-to-text vendor: soniox or whisper.
type TranscriptionConfig struct {
	Provider string `yaml:"provider"`
}

type SonioxConfig struct {
	APIKey        string   `yaml:"api_key"`
	Model         string   `yaml:"model"`
	BaseURL       string   `yaml:"base_url"`
	LanguageHints []string `yaml:"language_hints"`

	PollInitial    Duration `yaml:"poll_initial"`
	PollMax        Duration `yaml:"poll_max"`
	PollMultiplier float64  `yaml:"poll_multiplier"`
	Timeout        Duration `yaml:"timeout"`

	TranscriptAttempts   int      `yaml:"transcript_attempts"`
	TranscriptInitial    Duration `yaml:"transcript_initial"`
	TranscriptMax        Duration `yaml:"transcript_max"`
	TranscriptMultiplier float64  `yaml:"transcript_multiplier"`
}

type WhisperConfig struct {
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
	BaseURL  string `yaml:"base_url"`
}

// AnalysisConfig picks the LLM vendor: newapi, anthropic or gemini.
type AnalysisConfig struct {
	Provider string `yaml:"provider"`
}

// NewAPIConfig is an OpenAI-compatible chat gateway.
type NewAPIConfig struct {
	BaseURL        string   `yaml:"base_url"`
	APIKey         string   `yaml:"api_key"`
	Model          string   `yaml:"model"`
	FallbackModels []string `yaml:"fallback_models"`
	MaxAttempts    int      `yaml:"max_attempts"`
	BackoffStep    Duration `yaml:"backoff_step"`
	AllowInsecure  bool     `yaml:"allow_insecure"`
}

type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// AudioConfig selects an optional intake loop next to the HTTP API:
// none, dir or microphone.
type AudioConfig struct {
	Source     string   `yaml:"source"`
	WatchDir   string   `yaml:"watch_dir"`
	Settle     Duration `yaml:"settle"`
	SampleRate int      `yaml:"sample_rate"`
	Silence    Duration `yaml:"silence"`
}

type PushoverConfig struct {
	Token   string `yaml:"token"`
	UserKey string `yaml:"user_key"`
	Enabled bool   `yaml:"enabled"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Duration reads Go duration strings such as "600ms" or "3m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("decoding duration: %w", err)
	}
	if s == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Load reads the YAML file at path, expanding ${VAR} references. An empty
// path yields the defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		expanded := os.ExpandEnv(string(data))

		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv lets the deployment environment override the file.
func (c *Config) applyEnv() {
	overrides := []struct {
		env    string
		target *string
	}{
		{"SONIOX_API_KEY", &c.Soniox.APIKey},
		{"SONIOX_MODEL", &c.Soniox.Model},
		{"NEWAPI_BASE_URL", &c.NewAPI.BaseURL},
		{"NEWAPI_API_KEY", &c.NewAPI.APIKey},
		{"NEWAPI_MODEL", &c.NewAPI.Model},
		{"OPENAI_API_KEY", &c.Whisper.APIKey},
		{"ANTHROPIC_API_KEY", &c.Anthropic.APIKey},
		{"GEMINI_API_KEY", &c.Gemini.APIKey},
		{"VOICE_TODO_AUTH_TOKEN", &c.Server.AuthToken},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
}

func (c *Config) setDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.EventBuffer == 0 {
		c.Server.EventBuffer = 256
	}

	if c.Transcription.Provider == "" {
		c.Transcription.Provider = "soniox"
	}
	if c.Soniox.Model == "" {
		c.Soniox.Model = "stt-async-preview"
	}
	if c.Soniox.BaseURL == "" {
		c.Soniox.BaseURL = "https://api.soniox.com/v1"
	}
	if c.Soniox.PollInitial.Duration == 0 {
		c.Soniox.PollInitial.Duration = 600 * time.Millisecond
	}
	if c.Soniox.PollMax.Duration == 0 {
		c.Soniox.PollMax.Duration = 2 * time.Second
	}
	if c.Soniox.PollMultiplier == 0 {
		c.Soniox.PollMultiplier = 1.5
	}
	if c.Soniox.Timeout.Duration == 0 {
		c.Soniox.Timeout.Duration = 180 * time.Second
	}
	if c.Soniox.TranscriptAttempts == 0 {
		c.Soniox.TranscriptAttempts = 8
	}
	if c.Soniox.TranscriptInitial.Duration == 0 {
		c.Soniox.TranscriptInitial.Duration = 300 * time.Millisecond
	}
	if c.Soniox.TranscriptMax.Duration == 0 {
		c.Soniox.TranscriptMax.Duration = 2 * time.Second
	}
	if c.Soniox.TranscriptMultiplier == 0 {
		c.Soniox.TranscriptMultiplier = 1.6
	}

	if c.Whisper.Model == "" {
		c.Whisper.Model = "whisper-1"
	}
	if c.Whisper.BaseURL == "" {
		c.Whisper.BaseURL = "https://api.openai.com/v1"
	}

	if c.Analysis.Provider == "" {
		c.Analysis.Provider = "newapi"
	}
	if c.NewAPI.Model == "" {
		c.NewAPI.Model = "gpt-4.1"
	}
	if c.NewAPI.MaxAttempts == 0 {
		c.NewAPI.MaxAttempts = 3
	}
	if c.NewAPI.BackoffStep.Duration == 0 {
		c.NewAPI.BackoffStep.Duration = 500 * time.Millisecond
	}
	if c.Anthropic.Model == "" {
		c.Anthropic.Model = "claude-sonnet-4-20250514"
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = "gemini-2.0-flash"
	}

	if c.Audio.Source == "" {
		c.Audio.Source = "none"
	}
	if c.Audio.WatchDir == "" {
		c.Audio.WatchDir = "./inbox"
	}
	if c.Audio.Settle.Duration == 0 {
		c.Audio.Settle.Duration = 2 * time.Second
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.Silence.Duration == 0 {
		c.Audio.Silence.Duration = 1500 * time.Millisecond
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 20
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 28
	}
}

// Validate checks the shape of the configuration. Credentials are checked
// where they are used so the proxy can report them per route.
func (c *Config) Validate() error {
	var errs []error

	oneOf := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: %q is not one of %v", field, value, allowed))
	}

	oneOf("transcription.provider", c.Transcription.Provider, "soniox", "whisper")
	oneOf("analysis.provider", c.Analysis.Provider, "newapi", "anthropic", "gemini")
	oneOf("audio.source", c.Audio.Source, "none", "dir", "microphone")
	oneOf("log.level", c.Log.Level, "debug", "info", "warn", "error")
	oneOf("log.format", c.Log.Format, "text", "json")

	if c.Soniox.PollMultiplier < 1 {
		errs = append(errs, fmt.Errorf("soniox.poll_multiplier: must be at least 1"))
	}
	if c.Soniox.TranscriptMultiplier < 1 {
		errs = append(errs, fmt.Errorf("soniox.transcript_multiplier: must be at least 1"))
	}
	if c.Soniox.PollMax.Duration < c.Soniox.PollInitial.Duration {
		errs = append(errs, fmt.Errorf("soniox.poll_max: shorter than poll_initial"))
	}
	if c.NewAPI.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("newapi.max_attempts: must be at least 1"))
	}
	if c.Soniox.Timeout.Duration < 0 || c.NewAPI.BackoffStep.Duration < 0 || c.Audio.Settle.Duration < 0 {
		errs = append(errs, fmt.Errorf("durations must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrConfigInvalid, errors.Join(errs...))
	}
	return nil
}
