package application

import (
	"context"

	"voice-todo/internal/domain"
)

type Transcriber interface {
	Transcribe(ctx context.Context, audio domain.AudioInput) (domain.Transcription, error)
}

// Uploader is implemented by job-based vendors that store the audio before a
// transcription is started, so the two steps can be reported separately.
type Uploader interface {
	UploadFile(ctx context.Context, audio domain.AudioInput) (string, error)
	TranscribeUploaded(ctx context.Context, fileID, reference string) (domain.Transcription, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (domain.AnalysisResult, error)
}
