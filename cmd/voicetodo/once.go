package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"voice-todo/config"
	"voice-todo/internal/application"
	"voice-todo/internal/domain"
	"voice-todo/internal/infra/audio"
	"voice-todo/internal/infra/openai"
	"voice-todo/internal/infra/soniox"
	"voice-todo/internal/render"
)

// runOnce sends one file through the pipeline and prints the report.
func runOnce(ctx context.Context, seq *application.Sequencer, path string, stdout, stderr io.Writer) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "reading %s: %v\n", path, err)
		return 1
	}

	clip, err := domain.NewAudioInput(filepath.Base(path), mime.TypeByExtension(filepath.Ext(path)), data)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", path, err)
		return 1
	}
	if seconds, err := audio.WAVDuration(data); err == nil {
		fmt.Fprintf(stderr, "%s: %ss of audio\n", clip.Name, seconds.StringFixed(2))
	}

	snap, err := seq.Run(ctx, clip)
	if err != nil {
		code := domain.ErrorCode(err)
		if snap.Failure != nil {
			code = snap.Failure.Code
		}
		fmt.Fprintf(stderr, "pipeline failed (%s): %v\n", code, err)
		return 1
	}

	result := domain.EmptyAnalysis()
	if snap.Result != nil {
		result = *snap.Result
	}
	fmt.Fprint(stdout, render.Report(snap.Transcript, result))
	return 0
}

// runCheck verifies the configured credentials against the vendors.
func runCheck(ctx context.Context, cfg *config.Config, sonioxClient *soniox.Client, chatClient *openai.ChatClient, out io.Writer) int {
	failed := false

	report := func(name string, err error) {
		if err != nil {
			failed = true
			fmt.Fprintf(out, "%-8s FAIL %s: %v\n", name, domain.ErrorCode(err), err)
			return
		}
		fmt.Fprintf(out, "%-8s ok\n", name)
	}

	if cfg.Transcription.Provider == "soniox" {
		models, err := sonioxClient.ListModels(ctx)
		var files []soniox.FileInfo
		if err == nil {
			files, err = sonioxClient.ListFiles(ctx)
		}
		report("soniox", err)
		if err == nil {
			fmt.Fprintf(out, "         %d models, using %s; %d stored files\n", len(models), sonioxClient.Model(), len(files))
		}
	}

	if cfg.Analysis.Provider == "newapi" {
		err := chatClient.CheckConfig()
		var models []string
		if err == nil {
			models, err = chatClient.ListModels(ctx)
		}
		report("newapi", err)
		if err == nil {
			fmt.Fprintf(out, "         %d models, using %s\n", len(models), chatClient.Model())
		}
	}

	if failed {
		return 1
	}
	return 0
}
