package soniox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"voice-todo/internal/domain"
	"voice-todo/internal/infra"
)

const (
	DefaultBaseURL = "https://api.soniox.com/v1"
	DefaultModel   = "stt-async-preview"

	errTypeInvalidState = "transcription_invalid_state"
)

// Options are the polling knobs. The defaults were picked empirically and are
// not part of any vendor contract.
type Options struct {
	PollInitial    time.Duration
	PollMax        time.Duration
	PollMultiplier float64
	Timeout        time.Duration

	TranscriptAttempts   int
	TranscriptInitial    time.Duration
	TranscriptMax        time.Duration
	TranscriptMultiplier float64

	LanguageHints []string

	Logger *slog.Logger
	Sleep  infra.SleepFunc
	Now    func() time.Time
}

func DefaultOptions() Options {
	return Options{
		PollInitial:          600 * time.Millisecond,
		PollMax:              2 * time.Second,
		PollMultiplier:       1.5,
		Timeout:              180 * time.Second,
		TranscriptAttempts:   8,
		TranscriptInitial:    300 * time.Millisecond,
		TranscriptMax:        2 * time.Second,
		TranscriptMultiplier: 1.6,
	}
}

type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	opts       Options
	logger     *slog.Logger
	sleep      infra.SleepFunc
	now        func() time.Time
}

func NewClient(apiKey, model string, opts Options) *Client {
	return NewClientWithURL(apiKey, model, DefaultBaseURL, opts)
}

func NewClientWithURL(apiKey, model, baseURL string, opts Options) *Client {
	if model == "" {
		model = DefaultModel
	}
	def := DefaultOptions()
	if opts.PollInitial <= 0 {
		opts.PollInitial = def.PollInitial
	}
	if opts.PollMax <= 0 {
		opts.PollMax = def.PollMax
	}
	if opts.PollMultiplier < 1 {
		opts.PollMultiplier = def.PollMultiplier
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.TranscriptAttempts <= 0 {
		opts.TranscriptAttempts = def.TranscriptAttempts
	}
	if opts.TranscriptInitial <= 0 {
		opts.TranscriptInitial = def.TranscriptInitial
	}
	if opts.TranscriptMax <= 0 {
		opts.TranscriptMax = def.TranscriptMax
	}
	if opts.TranscriptMultiplier < 1 {
		opts.TranscriptMultiplier = def.TranscriptMultiplier
	}

	c := &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
		opts:       opts,
		logger:     opts.Logger,
		sleep:      opts.Sleep,
		now:        opts.Now,
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.sleep == nil {
		c.sleep = infra.Sleep
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

func (c *Client) Model() string {
	return c.model
}

// JobRequest is the body of POST /transcriptions. Exactly one of FileID and
// AudioURL must be set.
type JobRequest struct {
	Model             string   `json:"model"`
	FileID            string   `json:"file_id,omitempty"`
	AudioURL          string   `json:"audio_url,omitempty"`
	LanguageHints     []string `json:"language_hints,omitempty"`
	ClientReferenceID string   `json:"client_reference_id,omitempty"`
}

func (r JobRequest) Validate() error {
	switch {
	case r.FileID != "" && r.AudioURL != "":
		return fmt.Errorf("%w: expected file_id or audio_url but not both", domain.ErrBadRequest)
	case r.FileID == "" && r.AudioURL == "":
		return fmt.Errorf("%w: file_id or audio_url is required", domain.ErrBadRequest)
	}
	return nil
}

type FileInfo struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	CreatedAt string `json:"created_at"`
}

type Model struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type transcriptionResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

type transcriptResponse struct {
	ID     string         `json:"id"`
	Tokens []domain.Token `json:"tokens"`
}

// Transcribe runs the whole upload, create, wait and fetch sequence with the
// configured model.
func (c *Client) Transcribe(ctx context.Context, audio domain.AudioInput) (domain.Transcription, error) {
	return c.TranscribeFile(ctx, audio, "")
}

func (c *Client) TranscribeFile(ctx context.Context, audio domain.AudioInput, model string) (domain.Transcription, error) {
	fileID, err := c.UploadFile(ctx, audio)
	if err != nil {
		return domain.Transcription{}, fmt.Errorf("uploading audio: %w", err)
	}
	return c.transcribeUploaded(ctx, fileID, model, audio.Fingerprint)
}

// TranscribeUploaded runs create, wait and fetch for a file that is already
// stored with the vendor. reference is echoed back as client_reference_id.
func (c *Client) TranscribeUploaded(ctx context.Context, fileID, reference string) (domain.Transcription, error) {
	return c.transcribeUploaded(ctx, fileID, "", reference)
}

func (c *Client) transcribeUploaded(ctx context.Context, fileID, model, reference string) (domain.Transcription, error) {
	job, err := c.CreateTranscription(ctx, JobRequest{
		Model:             model,
		FileID:            fileID,
		LanguageHints:     c.opts.LanguageHints,
		ClientReferenceID: reference,
	})
	if err != nil {
		return domain.Transcription{}, fmt.Errorf("creating transcription: %w", err)
	}

	c.logger.Info("transcription job created", "job_id", job.ID, "file_id", fileID, "status", job.Status)

	if err := c.WaitForCompletion(ctx, job.ID); err != nil {
		return domain.Transcription{}, err
	}

	return c.GetTranscript(ctx, job.ID)
}

func (c *Client) UploadFile(ctx context.Context, audio domain.AudioInput) (string, error) {
	body, contentType, err := infra.AudioForm(audio)
	if err != nil {
		return "", err
	}

	status, payload, err := c.do(ctx, http.MethodPost, "/files", body, contentType)
	if err != nil {
		return "", err
	}
	if !isSuccess(status) {
		return "", &infra.APIError{Kind: domain.ErrUpload, Vendor: "soniox", Op: "upload file", Status: status, Body: payload}
	}

	var file FileInfo
	if err := payload.Decode(&file); err != nil || file.ID == "" {
		return "", fmt.Errorf("%w: soniox upload returned no file id: %s", domain.ErrUpstream, payload)
	}
	return file.ID, nil
}

func (c *Client) ListFiles(ctx context.Context) ([]FileInfo, error) {
	status, payload, err := c.do(ctx, http.MethodGet, "/files", nil, "")
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, &infra.APIError{Kind: domain.ErrUpstream, Vendor: "soniox", Op: "list files", Status: status, Body: payload}
	}

	var list struct {
		Files []FileInfo `json:"files"`
	}
	if err := payload.Decode(&list); err != nil {
		return nil, fmt.Errorf("%w: decoding file list: %v", domain.ErrParse, err)
	}
	return list.Files, nil
}

func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	status, payload, err := c.do(ctx, http.MethodGet, "/models", nil, "")
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, &infra.APIError{Kind: domain.ErrUpstream, Vendor: "soniox", Op: "list models", Status: status, Body: payload}
	}

	var list struct {
		Models []Model `json:"models"`
	}
	if err := payload.Decode(&list); err != nil {
		return nil, fmt.Errorf("%w: decoding model list: %v", domain.ErrParse, err)
	}
	return list.Models, nil
}

// CreateTranscription validates req before anything goes on the wire.
func (c *Client) CreateTranscription(ctx context.Context, req JobRequest) (domain.Job, error) {
	if err := req.Validate(); err != nil {
		return domain.Job{}, err
	}
	if req.Model == "" {
		req.Model = c.model
	}

	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return domain.Job{}, fmt.Errorf("marshaling request: %w", err)
	}

	status, payload, err := c.do(ctx, http.MethodPost, "/transcriptions", bytes.NewReader(bodyBytes), "application/json")
	if err != nil {
		return domain.Job{}, err
	}
	if !isSuccess(status) {
		return domain.Job{}, &infra.APIError{Kind: domain.ErrUpstream, Vendor: "soniox", Op: "create transcription", Status: status, Body: payload}
	}

	job, err := decodeJob(payload)
	if err != nil {
		return domain.Job{}, err
	}
	if job.ID == "" {
		return domain.Job{}, fmt.Errorf("%w: soniox returned no transcription id: %s", domain.ErrUpstream, payload)
	}
	return job, nil
}

// GetTranscription fetches the job status once.
func (c *Client) GetTranscription(ctx context.Context, id string) (domain.Job, error) {
	status, payload, err := c.do(ctx, http.MethodGet, "/transcriptions/"+url.PathEscape(id), nil, "")
	if err != nil {
		return domain.Job{}, err
	}
	if !isSuccess(status) {
		return domain.Job{}, &infra.APIError{Kind: domain.ErrUpstream, Vendor: "soniox", Op: "get transcription", Status: status, Body: payload}
	}
	return decodeJob(payload)
}

// WaitForCompletion polls until the job completes, fails, or the configured
// timeout elapses. Throttled or 5xx polls count as "not yet".
func (c *Client) WaitForCompletion(ctx context.Context, id string) error {
	start := c.now()
	backoff := infra.NewBackoff(c.opts.PollInitial, c.opts.PollMax, c.opts.PollMultiplier)

	for {
		if c.now().Sub(start) > c.opts.Timeout {
			return fmt.Errorf("%w: transcription %s not completed after %s", domain.ErrTimeout, id, c.opts.Timeout)
		}

		job, err := c.GetTranscription(ctx, id)
		if err != nil {
			var apiErr *infra.APIError
			if !errors.As(err, &apiErr) || !infra.IsRetryableHTTPStatus(apiErr.Status) {
				return fmt.Errorf("polling transcription: %w", err)
			}
			c.logger.Warn("transcription poll failed, retrying", "job_id", id, "status", apiErr.Status)
		} else {
			switch job.Status {
			case domain.JobCompleted:
				return nil
			case domain.JobFailed, domain.JobCanceled:
				return fmt.Errorf("%w: transcription %s %s: %s", domain.ErrJobFailed, id, job.Status, job.ErrorMessage)
			}
		}

		if err := c.sleep(ctx, backoff.Next()); err != nil {
			return err
		}
	}
}

// GetTranscript fetches the token artifact. A job reported as completed may
// still answer 409 transcription_invalid_state, 404 or 202 for a short while;
// those are retried within a small bounded loop.
func (c *Client) GetTranscript(ctx context.Context, id string) (domain.Transcription, error) {
	path := "/transcriptions/" + url.PathEscape(id) + "/transcript"
	backoff := infra.NewBackoff(c.opts.TranscriptInitial, c.opts.TranscriptMax, c.opts.TranscriptMultiplier)

	var last error
	for attempt := 1; attempt <= c.opts.TranscriptAttempts; attempt++ {
		status, payload, err := c.do(ctx, http.MethodGet, path, nil, "")
		if err != nil {
			return domain.Transcription{}, err
		}

		switch {
		case notReady(status, payload):
			last = &infra.APIError{Kind: domain.ErrUpstream, Vendor: "soniox", Op: "get transcript", Status: status, Body: payload}
			c.logger.Debug("transcript not ready", "job_id", id, "status", status, "attempt", attempt)
		case isSuccess(status):
			var tr transcriptResponse
			if err := payload.Decode(&tr); err != nil {
				return domain.Transcription{}, fmt.Errorf("%w: decoding transcript: %v", domain.ErrParse, err)
			}
			return domain.Transcription{
				Text:   domain.JoinTokens(tr.Tokens),
				JobID:  id,
				Tokens: tr.Tokens,
			}, nil
		default:
			return domain.Transcription{}, &infra.APIError{Kind: domain.ErrUpstream, Vendor: "soniox", Op: "get transcript", Status: status, Body: payload}
		}

		if attempt < c.opts.TranscriptAttempts {
			if err := c.sleep(ctx, backoff.Next()); err != nil {
				return domain.Transcription{}, err
			}
		}
	}

	return domain.Transcription{}, fmt.Errorf("%w: transcript for %s not ready after %d attempts: %w",
		domain.ErrRetriesExhausted, id, c.opts.TranscriptAttempts, last)
}

// Relay forwards a request with the server-side credential and returns the
// vendor's answer untouched.
func (c *Client) Relay(ctx context.Context, method, path string, body io.Reader, contentType string) (int, infra.Payload, error) {
	return c.do(ctx, method, path, body, contentType)
}

// CheckConfig reports a missing API key without touching the network.
func (c *Client) CheckConfig() error {
	if c.apiKey == "" {
		return fmt.Errorf("%w: soniox api key is not set", domain.ErrConfigMissing)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (int, infra.Payload, error) {
	if err := c.CheckConfig(); err != nil {
		return 0, infra.Payload{}, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, infra.Payload{}, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, infra.Payload{}, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := infra.ReadPayload(resp)
	if err != nil {
		return 0, infra.Payload{}, err
	}
	if id := infra.RequestID(resp, payload); id != "" {
		c.logger.Debug("soniox response", "method", method, "path", path, "status", resp.StatusCode, "request_id", id)
	}
	return resp.StatusCode, payload, nil
}

func decodeJob(payload infra.Payload) (domain.Job, error) {
	var tr transcriptionResponse
	if err := payload.Decode(&tr); err != nil {
		return domain.Job{}, fmt.Errorf("%w: decoding transcription: %v", domain.ErrParse, err)
	}
	return domain.Job{
		ID:           tr.ID,
		Status:       domain.JobStatus(tr.Status),
		ErrorMessage: tr.ErrorMessage,
	}, nil
}

func notReady(status int, payload infra.Payload) bool {
	switch status {
	case http.StatusAccepted, http.StatusNotFound:
		return true
	case http.StatusConflict:
		return payload.StringAt("error_type") == errTypeInvalidState
	default:
		return false
	}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

