//go:build portaudio
// +build portaudio

package audio

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gordonklaus/portaudio"

	"voice-todo/internal/application"
	"voice-todo/internal/domain"
)

const framesPerBuffer = 1024

// MicrophoneSource records one voice note per clip: capture starts at the
// first loud frame and ends after a pause or at the recording limit.
type MicrophoneSource struct {
	stream    *portaudio.Stream
	buffer    []int16
	format    application.AudioFormat
	silence   time.Duration
	threshold int16
	logger    *slog.Logger
}

func NewMicrophoneSource(sampleRate int, silence time.Duration, logger *slog.Logger) *MicrophoneSource {
	format := application.DefaultAudioFormat()
	if sampleRate > 0 {
		format.SampleRate = sampleRate
	}
	if silence <= 0 {
		silence = 2 * time.Second
	}
	return &MicrophoneSource{
		format:    format,
		silence:   silence,
		threshold: 500,
		logger:    logger,
		buffer:    make([]int16, framesPerBuffer),
	}
}

func (m *MicrophoneSource) Name() string {
	return "microphone"
}

func (m *MicrophoneSource) Start(_ context.Context) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}

	stream, err := portaudio.OpenDefaultStream(
		m.format.Channels,
		0,
		float64(m.format.SampleRate),
		framesPerBuffer,
		m.buffer,
	)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("opening stream: %w", err)
	}

	m.stream = stream

	if err := m.stream.Start(); err != nil {
		return fmt.Errorf("starting stream: %w", err)
	}

	m.logger.Info("microphone started", "sampleRate", m.format.SampleRate)
	return nil
}

func (m *MicrophoneSource) Stop() error {
	if m.stream != nil {
		m.stream.Stop()
		m.stream.Close()
	}
	portaudio.Terminate()
	return nil
}

func (m *MicrophoneSource) NextClip(ctx context.Context) (domain.AudioInput, error) {
	m.logger.Info("waiting for speech")

	rec := NewRecording(m.format, domain.MaxRecording)
	maxQuiet := int(m.silence.Seconds() * float64(m.format.SampleRate))
	quiet := 0
	started := false

	for {
		select {
		case <-ctx.Done():
			rec.Discard()
			return domain.AudioInput{}, ctx.Err()
		default:
		}

		// Read fills m.buffer, the slice the stream was opened with.
		if err := m.stream.Read(); err != nil {
			rec.Discard()
			return domain.AudioInput{}, fmt.Errorf("reading from stream: %w", err)
		}

		silent := Silent(m.buffer, m.threshold)
		if !started {
			if silent {
				continue
			}
			if err := rec.Start(); err != nil {
				return domain.AudioInput{}, err
			}
			started = true
		}

		full, err := rec.Append(m.buffer)
		if err != nil {
			return domain.AudioInput{}, err
		}

		if silent {
			quiet += len(m.buffer)
		} else {
			quiet = 0
		}

		if full || quiet > maxQuiet {
			break
		}
	}

	m.logger.Info("voice note captured", "duration", rec.Elapsed())
	return rec.Stop(fmt.Sprintf("mic-%s.wav", time.Now().Format("20060102-150405")))
}
