package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"voice-todo/internal/domain"
)

// Runner feeds clips from an AudioSource through the Sequencer until the
// source is exhausted or ctx is canceled.
type Runner struct {
	audio  AudioSource
	seq    *Sequencer
	logger *slog.Logger
}

func NewRunner(audio AudioSource, seq *Sequencer, logger *slog.Logger) *Runner {
	return &Runner{
		audio:  audio,
		seq:    seq,
		logger: logger,
	}
}

func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("starting audio source", "source", r.audio.Name())
	if err := r.audio.Start(ctx); err != nil {
		return fmt.Errorf("starting audio: %w", err)
	}
	defer r.audio.Stop()

	r.logger.Info("runner ready, waiting for voice notes")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := r.processOneClip(ctx); err != nil {
				if errors.Is(err, io.EOF) {
					r.logger.Info("audio source exhausted", "source", r.audio.Name())
					return nil
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.logger.Error("processing voice note", "error", err)
			}
		}
	}
}

func (r *Runner) processOneClip(ctx context.Context) error {
	clip, err := r.audio.NextClip(ctx)
	if err != nil {
		return fmt.Errorf("getting audio: %w", err)
	}

	if clip.Size() == 0 {
		return nil
	}

	r.logger.Info("received voice note", "name", clip.Name, "bytes", clip.Size())

	// A clip arriving while an HTTP submission is in flight waits for it.
	for {
		snap, err := r.seq.Run(ctx, clip)
		if errors.Is(err, domain.ErrBusy) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.seq.Done():
			}
			continue
		}
		if err != nil {
			return err
		}
		r.logger.Info("voice note processed", "run_id", snap.RunID, "todos", snap.Result.Count())
		return nil
	}
}
