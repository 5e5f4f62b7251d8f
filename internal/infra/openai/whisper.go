package openai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"voice-todo/internal/domain"
	"voice-todo/internal/infra"
)

const (
	DefaultWhisperURL   = "https://api.openai.com/v1"
	DefaultWhisperModel = "whisper-1"
)

// WhisperClient is the synchronous alternative to the job-based transcription
// vendor. Any OpenAI-compatible /audio/transcriptions endpoint works.
type WhisperClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	model      string
	language   string
	retry      infra.RetryConfig
	logger     *slog.Logger
}

func NewWhisperClient(apiKey, model, language string) *WhisperClient {
	return NewWhisperClientWithURL(apiKey, model, language, DefaultWhisperURL)
}

func NewWhisperClientWithURL(apiKey, model, language, baseURL string) *WhisperClient {
	if model == "" {
		model = DefaultWhisperModel
	}
	return &WhisperClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		language:   language,
		retry:      infra.DefaultRetryConfig(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithRetry replaces the retry policy, mostly so tests can skip the waiting.
func (c *WhisperClient) WithRetry(cfg infra.RetryConfig) *WhisperClient {
	c.retry = cfg
	return c
}

func (c *WhisperClient) WithLogger(logger *slog.Logger) *WhisperClient {
	c.logger = logger
	return c
}

type segment struct {
	Start decimal.Decimal `json:"start"`
	End   decimal.Decimal `json:"end"`
	Text  string          `json:"text"`
}

type transcriptionResponse struct {
	Text     string    `json:"text"`
	Segments []segment `json:"segments"`
}

var thousand = decimal.NewFromInt(1000)

func (c *WhisperClient) Transcribe(ctx context.Context, audio domain.AudioInput) (domain.Transcription, error) {
	if c.apiKey == "" {
		return domain.Transcription{}, fmt.Errorf("%w: whisper api key is not set", domain.ErrConfigMissing)
	}

	var result transcriptionResponse

	retryErr := infra.WithRetry(ctx, c.retry, func() error {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)

		part, err := writer.CreateFormFile("file", audio.Name)
		if err != nil {
			return infra.Permanent(fmt.Errorf("creating form file: %w", err))
		}

		if _, err = part.Write(audio.Data); err != nil {
			return infra.Permanent(fmt.Errorf("writing audio: %w", err))
		}

		if err = writer.WriteField("model", c.model); err != nil {
			return infra.Permanent(fmt.Errorf("writing model field: %w", err))
		}

		if err = writer.WriteField("response_format", "verbose_json"); err != nil {
			return infra.Permanent(fmt.Errorf("writing format field: %w", err))
		}

		if c.language != "" {
			if err = writer.WriteField("language", c.language); err != nil {
				return infra.Permanent(fmt.Errorf("writing language field: %w", err))
			}
		}

		if err = writer.Close(); err != nil {
			return infra.Permanent(fmt.Errorf("closing writer: %w", err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", body)
		if err != nil {
			return infra.Permanent(fmt.Errorf("creating request: %w", err))
		}

		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", writer.FormDataContentType())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		payload, err := infra.ReadPayload(resp)
		if err != nil {
			return err
		}

		if resp.StatusCode != http.StatusOK {
			apiErr := &infra.APIError{Kind: domain.ErrUpstream, Vendor: "whisper", Op: "transcribe", Status: resp.StatusCode, Body: payload}
			if infra.IsRetryableHTTPStatus(resp.StatusCode) {
				return apiErr
			}
			return infra.Permanent(apiErr)
		}

		if err = payload.Decode(&result); err != nil {
			return infra.Permanent(fmt.Errorf("%w: decoding whisper response: %v", domain.ErrParse, err))
		}

		return nil
	})

	if retryErr != nil {
		return domain.Transcription{}, retryErr
	}

	tokens := make([]domain.Token, 0, len(result.Segments))
	for _, s := range result.Segments {
		tokens = append(tokens, domain.Token{
			Text:    s.Text,
			StartMs: s.Start.Mul(thousand).Round(0).IntPart(),
			EndMs:   s.End.Mul(thousand).Round(0).IntPart(),
		})
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		text = strings.TrimSpace(domain.JoinTokens(tokens))
	}

	c.logger.Info("whisper transcription complete", "segments", len(tokens), "fingerprint", audio.Fingerprint)
	return domain.Transcription{Text: text, Tokens: tokens}, nil
}
