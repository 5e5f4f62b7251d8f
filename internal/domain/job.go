package domain

import "strings"

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCanceled   JobStatus = "canceled"
)

// Terminal reports whether the vendor will never move the job again.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCanceled
}

type Job struct {
	ID           string
	Status       JobStatus
	ErrorMessage string
}

type Token struct {
	Text       string  `json:"text"`
	StartMs    int64   `json:"start_ms,omitempty"`
	EndMs      int64   `json:"end_ms,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Transcription is the outcome of one speech-to-text run.
type Transcription struct {
	Text   string
	JobID  string
	Tokens []Token
}

func JoinTokens(tokens []Token) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteString(t.Text)
	}
	return b.String()
}
