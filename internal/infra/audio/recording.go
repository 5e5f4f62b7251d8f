package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"voice-todo/internal/application"
	"voice-todo/internal/domain"
)

type RecordingState string

const (
	RecordingIdle      RecordingState = "idle"
	RecordingActive    RecordingState = "recording"
	RecordingPaused    RecordingState = "paused"
	RecordingStopped   RecordingState = "stopped"
	RecordingDiscarded RecordingState = "discarded"
)

var ErrRecordingState = errors.New("invalid recording state")

// Recording buffers PCM capture in memory. Capture beyond the limit is
// dropped and Append reports the recording as full.
type Recording struct {
	format     application.AudioFormat
	maxSamples int

	mu      sync.Mutex
	state   RecordingState
	samples []int16
}

func NewRecording(format application.AudioFormat, limit time.Duration) *Recording {
	if limit <= 0 || limit > domain.MaxRecording {
		limit = domain.MaxRecording
	}
	return &Recording{
		format:     format,
		maxSamples: int(limit.Seconds() * float64(format.SampleRate*format.Channels)),
		state:      RecordingIdle,
	}
}

func (r *Recording) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != RecordingIdle {
		return fmt.Errorf("%w: start while %s", ErrRecordingState, r.state)
	}
	r.samples = make([]int16, 0, r.format.SampleRate*r.format.Channels)
	r.state = RecordingActive
	return nil
}

// Append adds captured samples. Samples arriving while paused are ignored.
// full is true once the limit is reached.
func (r *Recording) Append(samples []int16) (full bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case RecordingActive:
	case RecordingPaused:
		return false, nil
	default:
		return false, fmt.Errorf("%w: append while %s", ErrRecordingState, r.state)
	}

	room := r.maxSamples - len(r.samples)
	if len(samples) > room {
		samples = samples[:room]
	}
	r.samples = append(r.samples, samples...)
	return len(r.samples) >= r.maxSamples, nil
}

func (r *Recording) Pause() error {
	return r.move(RecordingActive, RecordingPaused)
}

func (r *Recording) Resume() error {
	return r.move(RecordingPaused, RecordingActive)
}

func (r *Recording) move(from, to RecordingState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != from {
		return fmt.Errorf("%w: %s while %s", ErrRecordingState, to, r.state)
	}
	r.state = to
	return nil
}

// Stop ends capture and returns the clip as a WAV file. The sample buffer is
// released.
func (r *Recording) Stop(name string) (domain.AudioInput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != RecordingActive && r.state != RecordingPaused {
		return domain.AudioInput{}, fmt.Errorf("%w: stop while %s", ErrRecordingState, r.state)
	}
	r.state = RecordingStopped

	samples := r.samples
	r.samples = nil
	if len(samples) == 0 {
		return domain.AudioInput{}, fmt.Errorf("%w: nothing was recorded", domain.ErrBadRequest)
	}

	return domain.NewAudioInput(name, "audio/wav", EncodeWAV(samples, r.format))
}

// Discard drops everything captured so far.
func (r *Recording) Discard() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.samples = nil
	r.state = RecordingDiscarded
}

func (r *Recording) State() RecordingState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Elapsed is the captured length, not wall time.
func (r *Recording) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	perSecond := r.format.SampleRate * r.format.Channels
	if perSecond == 0 {
		return 0
	}
	return time.Duration(len(r.samples)) * time.Second / time.Duration(perSecond)
}

// Silent reports whether every sample stays within ±threshold.
func Silent(samples []int16, threshold int16) bool {
	for _, s := range samples {
		if s > threshold || s < -threshold {
			return false
		}
	}
	return true
}
