package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"voice-todo/internal/application"
	"voice-todo/internal/domain"
)

type audioForm struct {
	audio  *domain.AudioInput
	fileID string
}

// readAudioForm parses a multipart upload with an optional "file" part and
// an optional "file_id" field. The clip stays in memory.
func readAudioForm(w http.ResponseWriter, r *http.Request) (audioForm, error) {
	const overhead = 1 << 20

	r.Body = http.MaxBytesReader(w, r.Body, domain.MaxUploadBytes+overhead)
	if err := r.ParseMultipartForm(domain.MaxUploadBytes + overhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return audioForm{}, badRequest("upload exceeds the 50MB limit")
		}
		return audioForm{}, badRequest("expected multipart/form-data: %v", err)
	}
	defer r.MultipartForm.RemoveAll()

	form := audioForm{fileID: strings.TrimSpace(r.FormValue("file_id"))}

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return form, nil
	}
	if err != nil {
		return audioForm{}, badRequest("reading file part: %v", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return audioForm{}, badRequest("reading file part: %v", err)
	}
	audio, err := domain.NewAudioInput(header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		return audioForm{}, err
	}
	form.audio = &audio
	return form, nil
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	text, ok := req["text"].(string)
	if !ok || text == "" {
		s.writeError(w, r, badRequest("missing text"))
		return
	}
	if s.analyzer == nil {
		s.writeError(w, r, fmt.Errorf("%w: no analysis provider configured", domain.ErrConfigMissing))
		return
	}

	result, err := s.analyzer.Analyze(r.Context(), text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type transcribeResponse struct {
	Transcript      string `json:"transcript"`
	TranscriptionID string `json:"transcription_id,omitempty"`
}

// handleTranscribe runs upload, job and fetch in one request. A file_id
// skips the upload.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	form, err := readAudioForm(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if form.audio == nil && form.fileID == "" {
		s.writeError(w, r, badRequest("submit multipart field \"file\" (audio) or \"file_id\""))
		return
	}
	if s.transcriber == nil {
		s.writeError(w, r, fmt.Errorf("%w: no transcription provider configured", domain.ErrConfigMissing))
		return
	}

	uploader, staged := s.transcriber.(application.Uploader)
	var t domain.Transcription
	switch {
	case form.fileID != "" && !staged:
		s.writeError(w, r, badRequest("file_id needs a job-based transcription provider"))
		return
	case form.fileID != "":
		t, err = uploader.TranscribeUploaded(r.Context(), form.fileID, requestIDFrom(r.Context()))
	default:
		t, err = s.transcriber.Transcribe(r.Context(), *form.audio)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, transcribeResponse{Transcript: t.Text, TranscriptionID: t.JobID})
}
