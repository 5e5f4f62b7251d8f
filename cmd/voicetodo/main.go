package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"voice-todo/config"
	"voice-todo/internal/application"
	"voice-todo/internal/httpapi"
	"voice-todo/internal/infra/anthropic"
	"voice-todo/internal/infra/audio"
	"voice-todo/internal/infra/gemini"
	"voice-todo/internal/infra/openai"
	"voice-todo/internal/infra/pushover"
	"voice-todo/internal/infra/soniox"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file (empty for defaults and environment only)")
	filePath := flag.String("file", "", "process one audio file, print the result and exit")
	check := flag.Bool("check", false, "check configuration and vendor credentials, then exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	// One-shot modes keep stdout for their own output.
	var logOut io.Writer = os.Stdout
	if *check || *filePath != "" {
		logOut = os.Stderr
	}
	logger := setupLogger(cfg.Log, logOut)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	sonioxClient := soniox.NewClientWithURL(cfg.Soniox.APIKey, cfg.Soniox.Model, cfg.Soniox.BaseURL, soniox.Options{
		PollInitial:          cfg.Soniox.PollInitial.Duration,
		PollMax:              cfg.Soniox.PollMax.Duration,
		PollMultiplier:       cfg.Soniox.PollMultiplier,
		Timeout:              cfg.Soniox.Timeout.Duration,
		TranscriptAttempts:   cfg.Soniox.TranscriptAttempts,
		TranscriptInitial:    cfg.Soniox.TranscriptInitial.Duration,
		TranscriptMax:        cfg.Soniox.TranscriptMax.Duration,
		TranscriptMultiplier: cfg.Soniox.TranscriptMultiplier,
		LanguageHints:        cfg.Soniox.LanguageHints,
		Logger:               logger,
	})
	chatClient := openai.NewChatClient(cfg.NewAPI.BaseURL, cfg.NewAPI.APIKey, cfg.NewAPI.Model, openai.ChatOptions{
		FallbackModels: cfg.NewAPI.FallbackModels,
		MaxAttempts:    cfg.NewAPI.MaxAttempts,
		BackoffStep:    cfg.NewAPI.BackoffStep.Duration,
		AllowInsecure:  cfg.NewAPI.AllowInsecure,
		Logger:         logger,
	})

	transcriber := createTranscriber(cfg, sonioxClient, logger)
	analyzer := createAnalyzer(cfg, chatClient)

	var notifier application.Notifier
	if cfg.Pushover.Enabled {
		notifier = pushover.NewClient(cfg.Pushover.Token, cfg.Pushover.UserKey)
	} else {
		notifier = &application.NoopNotifier{}
	}

	events := application.NewEventBus(cfg.Server.EventBuffer)
	sequencer := application.NewSequencer(transcriber, analyzer, notifier, events, logger)

	if *check {
		os.Exit(runCheck(ctx, cfg, sonioxClient, chatClient, os.Stdout))
	}
	if *filePath != "" {
		os.Exit(runOnce(ctx, sequencer, *filePath, os.Stdout, os.Stderr))
	}

	server := httpapi.New(httpapi.Options{
		Addr:        cfg.Server.Addr,
		AuthToken:   cfg.Server.AuthToken,
		Soniox:      sonioxClient,
		LLM:         chatClient,
		Transcriber: transcriber,
		Analyzer:    analyzer,
		Sequencer:   sequencer,
		Logger:      logger,
	})
	if err := server.Start(ctx); err != nil {
		logger.Error("starting server", "error", err)
		os.Exit(1)
	}
	defer server.Stop()

	logger.Info("starting voice todo",
		"addr", server.Addr(),
		"transcription", cfg.Transcription.Provider,
		"analysis", cfg.Analysis.Provider,
		"audio_source", cfg.Audio.Source,
	)

	if source := createAudioSource(cfg.Audio, logger); source != nil {
		runner := application.NewRunner(source, sequencer, logger)
		go func() {
			if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("audio runner stopped", "error", err)
			}
		}()
	}

	<-ctx.Done()
}

func createTranscriber(cfg *config.Config, sonioxClient *soniox.Client, logger *slog.Logger) application.Transcriber {
	switch cfg.Transcription.Provider {
	case "whisper":
		return openai.NewWhisperClientWithURL(cfg.Whisper.APIKey, cfg.Whisper.Model, cfg.Whisper.Language, cfg.Whisper.BaseURL).
			WithLogger(logger)
	default:
		return sonioxClient
	}
}

func createAnalyzer(cfg *config.Config, chatClient *openai.ChatClient) application.Analyzer {
	switch cfg.Analysis.Provider {
	case "anthropic":
		return anthropic.NewClaudeClient(cfg.Anthropic.APIKey, cfg.Anthropic.Model)
	case "gemini":
		return gemini.NewClient(cfg.Gemini.APIKey, cfg.Gemini.Model)
	default:
		return chatClient
	}
}

func createAudioSource(cfg config.AudioConfig, logger *slog.Logger) application.AudioSource {
	switch cfg.Source {
	case "dir":
		return audio.NewDirSource(cfg.WatchDir, cfg.Settle.Duration, logger)
	case "microphone":
		return audio.NewMicrophoneSource(cfg.SampleRate, cfg.Silence.Duration, logger)
	default:
		return nil
	}
}

func setupLogger(cfg config.LogConfig, console io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	out := console
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(console, rotator)
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler)
}
