package domain

import (
	"encoding/hex"
	"fmt"
	"time"

	"lukechampine.com/blake3"
)

const (
	MaxUploadBytes = 50 << 20
	MaxRecording   = 180 * time.Second
)

// AudioInput is a single clip handed to the pipeline. It is never written to disk.
type AudioInput struct {
	Name        string
	MIMEType    string
	Data        []byte
	Fingerprint string
}

func NewAudioInput(name, mimeType string, data []byte) (AudioInput, error) {
	if len(data) == 0 {
		return AudioInput{}, fmt.Errorf("%w: empty audio", ErrBadRequest)
	}
	if len(data) > MaxUploadBytes {
		return AudioInput{}, fmt.Errorf("%w: audio is %.1fMB, limit is 50MB", ErrBadRequest, float64(len(data))/(1<<20))
	}
	if name == "" {
		name = "audio"
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return AudioInput{
		Name:        name,
		MIMEType:    mimeType,
		Data:        data,
		Fingerprint: Fingerprint(data),
	}, nil
}

func (a AudioInput) Size() int {
	return len(a.Data)
}

// Fingerprint returns the hex BLAKE3-256 digest of data.
func Fingerprint(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
