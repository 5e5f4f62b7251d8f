package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"voice-todo/internal/domain"
)

// Failure is what the user sees when a run ends in the error stage.
type Failure struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// Snapshot is a copy of the sequencer state.
type Snapshot struct {
	Stage      domain.Stage           `json:"stage"`
	Busy       bool                   `json:"busy"`
	RunID      string                 `json:"run_id,omitempty"`
	AudioName  string                 `json:"audio_name,omitempty"`
	JobID      string                 `json:"job_id,omitempty"`
	Transcript string                 `json:"transcript"`
	Result     *domain.AnalysisResult `json:"result,omitempty"`
	Failure    *Failure               `json:"failure,omitempty"`
	StartedAt  *time.Time             `json:"started_at,omitempty"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
}

// Sequencer drives one voice note at a time through upload, transcribe and
// analyze. A second submission while a run is in flight is refused with
// domain.ErrBusy.
type Sequencer struct {
	stt      Transcriber
	analyzer Analyzer
	notifier Notifier
	events   *EventBus
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	state Snapshot
	done  chan struct{}
}

func NewSequencer(stt Transcriber, analyzer Analyzer, notifier Notifier, events *EventBus, logger *slog.Logger) *Sequencer {
	if notifier == nil {
		notifier = &NoopNotifier{}
	}
	if events == nil {
		events = NewEventBus(0)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	done := make(chan struct{})
	close(done)

	return &Sequencer{
		stt:      stt,
		analyzer: analyzer,
		notifier: notifier,
		events:   events,
		logger:   logger,
		now:      time.Now,
		state:    Snapshot{Stage: domain.StageIdle},
		done:     done,
	}
}

func (s *Sequencer) Events() *EventBus {
	return s.events
}

// Run executes the whole pipeline and returns the final state. The error is
// the one recorded in the snapshot's Failure.
func (s *Sequencer) Run(ctx context.Context, audio domain.AudioInput) (Snapshot, error) {
	runID, done, err := s.begin(audio)
	if err != nil {
		return s.Snapshot(), err
	}
	return s.execute(ctx, runID, done, audio)
}

// Start runs the pipeline in the background and returns its run id. ctx
// bounds the run itself, so callers pass a long-lived context rather than a
// request's.
func (s *Sequencer) Start(ctx context.Context, audio domain.AudioInput) (string, error) {
	runID, done, err := s.begin(audio)
	if err != nil {
		return "", err
	}
	go s.execute(ctx, runID, done, audio)
	return runID, nil
}

// Done is closed when the current run, if any, has finished.
func (s *Sequencer) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Reset returns a finished sequencer to idle and clears the previous run.
func (s *Sequencer) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Stage.Busy() {
		return fmt.Errorf("%w: cannot reset during %s", domain.ErrBusy, s.state.Stage)
	}
	s.resetLocked()
	return nil
}

func (s *Sequencer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.state
	snap.Busy = snap.Stage.Busy()
	return snap
}

func (s *Sequencer) resetLocked() {
	if s.state.Stage == domain.StageIdle {
		return
	}
	previous := s.state.RunID
	s.state = Snapshot{Stage: domain.StageIdle}
	s.events.Publish(Event{RunID: previous, Type: EventStage, Stage: domain.StageIdle})
}

// begin claims the sequencer for a new run. Submitting after a finished run
// implies a reset.
func (s *Sequencer) begin(audio domain.AudioInput) (string, chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Stage.Busy() {
		return "", nil, fmt.Errorf("%w: run %s is in %s", domain.ErrBusy, s.state.RunID, s.state.Stage)
	}
	s.resetLocked()

	runID := uuid.NewString()
	started := s.now()
	s.state = Snapshot{
		Stage:     domain.StageUpload,
		RunID:     runID,
		AudioName: audio.Name,
		StartedAt: &started,
	}
	s.done = make(chan struct{})
	s.events.Publish(Event{RunID: runID, Type: EventStage, Stage: domain.StageUpload, Message: audio.Name})

	s.logger.Info("pipeline started", "run_id", runID, "audio", audio.Name, "bytes", audio.Size(), "fingerprint", audio.Fingerprint)
	return runID, s.done, nil
}

func (s *Sequencer) execute(ctx context.Context, runID string, done chan struct{}, audio domain.AudioInput) (Snapshot, error) {
	defer close(done)

	transcription, err := s.transcribe(ctx, runID, audio)
	if err != nil {
		return s.fail(ctx, runID, audio, err)
	}

	s.update(func(st *Snapshot) {
		st.JobID = transcription.JobID
		st.Transcript = transcription.Text
	})
	s.logger.Info("transcription complete", "run_id", runID, "job_id", transcription.JobID, "chars", len(transcription.Text))

	if err := s.transition(runID, domain.StageAnalyze); err != nil {
		return s.fail(ctx, runID, audio, err)
	}

	result := domain.EmptyAnalysis()
	if strings.TrimSpace(transcription.Text) != "" {
		result, err = s.analyzer.Analyze(ctx, transcription.Text)
		if err != nil {
			return s.fail(ctx, runID, audio, fmt.Errorf("analyzing transcript: %w", err))
		}
	}

	finished := s.now()
	s.update(func(st *Snapshot) {
		st.Result = &result
		st.FinishedAt = &finished
	})
	if err := s.transition(runID, domain.StageComplete); err != nil {
		return s.fail(ctx, runID, audio, err)
	}
	s.events.Publish(Event{RunID: runID, Type: EventResult, Stage: domain.StageComplete,
		Message: fmt.Sprintf("%d to-dos", result.Count())})

	s.logger.Info("pipeline complete", "run_id", runID, "todos", result.Count())
	s.notify(ctx, completionMessage(audio.Name, result))

	return s.Snapshot(), nil
}

func (s *Sequencer) transcribe(ctx context.Context, runID string, audio domain.AudioInput) (domain.Transcription, error) {
	uploader, staged := s.stt.(Uploader)
	if !staged {
		if err := s.transition(runID, domain.StageTranscribe); err != nil {
			return domain.Transcription{}, err
		}
		t, err := s.stt.Transcribe(ctx, audio)
		if err != nil {
			return domain.Transcription{}, fmt.Errorf("transcribing audio: %w", err)
		}
		return t, nil
	}

	fileID, err := uploader.UploadFile(ctx, audio)
	if err != nil {
		return domain.Transcription{}, fmt.Errorf("uploading audio: %w", err)
	}
	if err := s.transition(runID, domain.StageTranscribe); err != nil {
		return domain.Transcription{}, err
	}
	t, err := uploader.TranscribeUploaded(ctx, fileID, runID)
	if err != nil {
		return domain.Transcription{}, fmt.Errorf("transcribing audio: %w", err)
	}
	return t, nil
}

func (s *Sequencer) transition(runID string, to domain.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.RunID != runID {
		return fmt.Errorf("run %s was superseded", runID)
	}
	if !domain.CanTransition(s.state.Stage, to) {
		return fmt.Errorf("invalid transition: %s -> %s", s.state.Stage, to)
	}
	s.state.Stage = to
	s.events.Publish(Event{RunID: runID, Type: EventStage, Stage: to})
	return nil
}

func (s *Sequencer) update(fn func(st *Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
}

func (s *Sequencer) fail(ctx context.Context, runID string, audio domain.AudioInput, err error) (Snapshot, error) {
	failure := Failure{
		Message: err.Error(),
		Code:    domain.ErrorCode(err),
		Details: domain.ErrorDetails(err),
	}
	if errors.Is(err, context.Canceled) {
		failure.Message = "canceled"
	}

	s.mu.Lock()
	if s.state.RunID == runID && s.state.Stage.Busy() {
		finished := s.now()
		s.state.Stage = domain.StageError
		s.state.Failure = &failure
		s.state.FinishedAt = &finished
		s.events.Publish(Event{RunID: runID, Type: EventError, Stage: domain.StageError, Message: failure.Message, Code: failure.Code})
	}
	s.mu.Unlock()

	s.logger.Error("pipeline failed", "run_id", runID, "code", failure.Code, "error", err)
	s.notify(context.WithoutCancel(ctx), failureMessage(audio.Name, failure))

	return s.Snapshot(), err
}

func (s *Sequencer) notify(ctx context.Context, message string) {
	if err := s.notifier.Notify(ctx, message); err != nil {
		s.logger.Error("sending notification", "error", err)
	}
}
