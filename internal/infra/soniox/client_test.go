package soniox_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"voice-todo/internal/domain"
	"voice-todo/internal/infra"
	"voice-todo/internal/infra/soniox"
)

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func newTestClient(url string, sleeper *sleepRecorder) *soniox.Client {
	return soniox.NewClientWithURL("test-key", "", url, soniox.Options{Sleep: sleeper.Sleep})
}

func testAudio(t *testing.T) domain.AudioInput {
	t.Helper()
	audio, err := domain.NewAudioInput("memo.webm", "audio/webm", []byte("fake audio"))
	if err != nil {
		t.Fatalf("NewAudioInput: %v", err)
	}
	return audio
}

func TestClient_TranscribeFile(t *testing.T) {
	statuses := []string{"queued", "processing", "completed"}
	var polls atomic.Int32
	var created map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("POST /files", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization: got %q, want Bearer test-key", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if string(data) != "fake audio" || header.Filename != "memo.webm" {
			t.Errorf("upload: got %q (%s)", data, header.Filename)
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "file-1"})
	})
	mux.HandleFunc("POST /transcriptions", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&created)
		json.NewEncoder(w).Encode(map[string]any{"id": "job-1", "status": "queued"})
	})
	mux.HandleFunc("GET /transcriptions/{id}", func(w http.ResponseWriter, r *http.Request) {
		n := polls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"id": r.PathValue("id"), "status": statuses[n-1]})
	})
	mux.HandleFunc("GET /transcriptions/{id}/transcript", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":     r.PathValue("id"),
			"tokens": []map[string]any{{"text": "Buy"}, {"text": " milk"}},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	sleeper := &sleepRecorder{}
	client := newTestClient(server.URL, sleeper)

	result, err := client.TranscribeFile(context.Background(), testAudio(t), "")
	if err != nil {
		t.Fatalf("TranscribeFile error: %v", err)
	}

	if result.Text != "Buy milk" {
		t.Errorf("Text: got %q, want %q", result.Text, "Buy milk")
	}
	if result.JobID != "job-1" {
		t.Errorf("JobID: got %s, want job-1", result.JobID)
	}
	if created["file_id"] != "file-1" {
		t.Errorf("file_id: got %v, want file-1", created["file_id"])
	}
	if _, ok := created["audio_url"]; ok {
		t.Error("audio_url must not be sent with file_id")
	}
	if created["model"] != soniox.DefaultModel {
		t.Errorf("model: got %v, want %s", created["model"], soniox.DefaultModel)
	}
	if polls.Load() != 3 {
		t.Errorf("polls: got %d, want 3", polls.Load())
	}
}

func TestClient_WaitForCompletionBackoff(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := polls.Add(1)
		status := "processing"
		if n == 6 {
			status = "completed"
		}
		json.NewEncoder(w).Encode(map[string]any{"status": status})
	}))
	defer server.Close()

	sleeper := &sleepRecorder{}
	client := newTestClient(server.URL, sleeper)

	if err := client.WaitForCompletion(context.Background(), "job-1"); err != nil {
		t.Fatalf("WaitForCompletion error: %v", err)
	}

	want := []time.Duration{
		600 * time.Millisecond,
		900 * time.Millisecond,
		1350 * time.Millisecond,
		2000 * time.Millisecond,
		2000 * time.Millisecond,
	}
	if len(sleeper.delays) != len(want) {
		t.Fatalf("sleeps: got %v, want %v", sleeper.delays, want)
	}
	for i := range want {
		if sleeper.delays[i] != want[i] {
			t.Errorf("sleep %d: got %s, want %s", i, sleeper.delays[i], want[i])
		}
	}
}

func TestClient_WaitForCompletionFailed(t *testing.T) {
	for _, status := range []string{"failed", "canceled"} {
		t.Run(status, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{"status": status, "error_message": "bad audio"})
			}))
			defer server.Close()

			client := newTestClient(server.URL, &sleepRecorder{})
			err := client.WaitForCompletion(context.Background(), "job-1")
			if !errors.Is(err, domain.ErrJobFailed) {
				t.Fatalf("error: got %v, want ErrJobFailed", err)
			}
		})
	}
}

func TestClient_WaitForCompletionTimeout(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		polls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"status": "processing"})
	}))
	defer server.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	client := soniox.NewClientWithURL("test-key", "", server.URL, soniox.Options{
		Timeout: 5 * time.Second,
		Now:     func() time.Time { return now },
		Sleep: func(_ context.Context, d time.Duration) error {
			now = now.Add(d)
			return nil
		},
	})

	err := client.WaitForCompletion(context.Background(), "job-1")
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("error: got %v, want ErrTimeout", err)
	}
	// 0, 0.6, 1.5, 2.85, 4.85 are inside the budget; 6.85 is not.
	if polls.Load() != 5 {
		t.Errorf("polls: got %d, want 5", polls.Load())
	}
}

func TestClient_WaitForCompletionRetriesThrottledPoll(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"status": "completed"})
	}))
	defer server.Close()

	client := newTestClient(server.URL, &sleepRecorder{})
	if err := client.WaitForCompletion(context.Background(), "job-1"); err != nil {
		t.Fatalf("WaitForCompletion error: %v", err)
	}
	if polls.Load() != 2 {
		t.Errorf("polls: got %d, want 2", polls.Load())
	}
}

func TestClient_GetTranscriptRetriesInvalidState(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 3 {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]any{
				"error_type": "transcription_invalid_state",
				"message":    "transcription is not completed",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"tokens": []map[string]any{{"text": "Hi"}, {"text": " there"}},
		})
	}))
	defer server.Close()

	sleeper := &sleepRecorder{}
	client := newTestClient(server.URL, sleeper)

	result, err := client.GetTranscript(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetTranscript error: %v", err)
	}
	if result.Text != "Hi there" {
		t.Errorf("Text: got %q, want %q", result.Text, "Hi there")
	}
	if len(sleeper.delays) != 3 {
		t.Fatalf("sleeps: got %d, want 3", len(sleeper.delays))
	}
	if sleeper.delays[0] != 300*time.Millisecond {
		t.Errorf("first backoff: got %s, want 300ms", sleeper.delays[0])
	}
	if sleeper.delays[1] <= sleeper.delays[0] {
		t.Errorf("backoff did not grow: %v", sleeper.delays)
	}
}

func TestClient_GetTranscriptNotReadyStatuses(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusNotFound)
		case 2:
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte("{}"))
		default:
			json.NewEncoder(w).Encode(map[string]any{"tokens": []map[string]any{{"text": "ok"}}})
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL, &sleepRecorder{})
	result, err := client.GetTranscript(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetTranscript error: %v", err)
	}
	if result.Text != "ok" {
		t.Errorf("Text: got %q, want ok", result.Text)
	}
}

func TestClient_GetTranscriptFatalStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error_type":"unauthenticated"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, &sleepRecorder{})
	_, err := client.GetTranscript(context.Background(), "job-1")
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("error: got %v, want ErrUpstream", err)
	}

	var apiErr *infra.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error is not an APIError: %v", err)
	}
	if apiErr.Status != http.StatusUnauthorized {
		t.Errorf("Status: got %d, want 401", apiErr.Status)
	}
	if apiErr.Body.StringAt("error_type") != "unauthenticated" {
		t.Errorf("Body: got %s", apiErr.Body)
	}
	if calls.Load() != 1 {
		t.Errorf("calls: got %d, want 1", calls.Load())
	}
}

func TestClient_GetTranscriptRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error_type":"transcription_invalid_state"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, &sleepRecorder{})
	_, err := client.GetTranscript(context.Background(), "job-1")
	if !errors.Is(err, domain.ErrRetriesExhausted) {
		t.Fatalf("error: got %v, want ErrRetriesExhausted", err)
	}
	if calls.Load() != 8 {
		t.Errorf("calls: got %d, want 8", calls.Load())
	}
}

func TestClient_GetTranscriptEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tokens":[]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, &sleepRecorder{})
	result, err := client.GetTranscript(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetTranscript error: %v", err)
	}
	if result.Text != "" {
		t.Errorf("Text: got %q, want empty", result.Text)
	}
}

func TestClient_CreateTranscriptionMutualExclusion(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	client := newTestClient(server.URL, &sleepRecorder{})

	tests := []struct {
		name string
		req  soniox.JobRequest
	}{
		{name: "both", req: soniox.JobRequest{FileID: "file-1", AudioURL: "https://example.com/a.mp3"}},
		{name: "neither", req: soniox.JobRequest{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.CreateTranscription(context.Background(), tt.req)
			if !errors.Is(err, domain.ErrBadRequest) {
				t.Errorf("error: got %v, want ErrBadRequest", err)
			}
		})
	}

	if calls.Load() != 0 {
		t.Errorf("network calls: got %d, want 0", calls.Load())
	}
}

func TestClient_UploadErrorKeepsRawBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		w.Write([]byte("file too large"))
	}))
	defer server.Close()

	client := newTestClient(server.URL, &sleepRecorder{})
	_, err := client.UploadFile(context.Background(), testAudio(t))
	if !errors.Is(err, domain.ErrUpload) {
		t.Fatalf("error: got %v, want ErrUpload", err)
	}

	var apiErr *infra.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error is not an APIError: %v", err)
	}
	if got := string(apiErr.Body.Bytes()); got != `{"raw":"file too large"}` {
		t.Errorf("Body: got %s", got)
	}
}

func TestClient_MissingKey(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	client := soniox.NewClientWithURL("", "", server.URL, soniox.Options{})
	_, err := client.Transcribe(context.Background(), testAudio(t))
	if !errors.Is(err, domain.ErrConfigMissing) {
		t.Fatalf("error: got %v, want ErrConfigMissing", err)
	}
	if calls.Load() != 0 {
		t.Errorf("network calls: got %d, want 0", calls.Load())
	}
}

func TestClient_ListFilesAndModels(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /files", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"files":[{"id":"f1","filename":"a.webm","size":120},{"id":"f2","filename":"b.wav","size":64}]}`))
	})
	mux.HandleFunc("GET /models", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[{"id":"stt-async-preview","name":"Async preview"}]}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(server.URL, &sleepRecorder{})

	files, err := client.ListFiles(context.Background())
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 2 || files[0].ID != "f1" || files[1].Filename != "b.wav" || files[1].Size != 64 {
		t.Errorf("files: got %+v", files)
	}

	models, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 1 || models[0].ID != "stt-async-preview" {
		t.Errorf("models: got %+v", models)
	}
}

func TestClient_ListFilesError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error_type":"forbidden","message":"bad key"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, &sleepRecorder{})
	_, err := client.ListFiles(context.Background())
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("error: got %v, want ErrUpstream", err)
	}

	var apiErr *infra.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error is not an APIError: %v", err)
	}
	if apiErr.Status != http.StatusForbidden || apiErr.Op != "list files" {
		t.Errorf("APIError: got status %d op %q", apiErr.Status, apiErr.Op)
	}
	if apiErr.Body.StringAt("message") != "bad key" {
		t.Errorf("Body: got %s", apiErr.Body)
	}
}
