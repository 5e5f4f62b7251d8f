package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"voice-todo/internal/analysis"
	"voice-todo/internal/domain"
	"voice-todo/internal/infra"
)

const DefaultChatModel = "gpt-4.1"

type ChatOptions struct {
	// FallbackModels follow the configured model in preference order.
	FallbackModels []string
	MaxAttempts    int
	BackoffStep    time.Duration
	// AllowInsecure accepts a plain http base URL, for local gateways.
	AllowInsecure bool

	Logger *slog.Logger
	Sleep  infra.SleepFunc
}

// ChatClient talks to an OpenAI-compatible chat completions gateway.
type ChatClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	opts       ChatOptions
	logger     *slog.Logger
	sleep      infra.SleepFunc
}

// ModelHint is attached to a model-unavailable failure so the operator can pick
// a model the gateway actually serves.
type ModelHint struct {
	Message string   `json:"message"`
	Models  []string `json:"models"`
}

func NewChatClient(baseURL, apiKey, model string, opts ChatOptions) *ChatClient {
	if model == "" {
		model = DefaultChatModel
	}
	if opts.FallbackModels == nil {
		opts.FallbackModels = analysis.DefaultFallbackModels
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BackoffStep <= 0 {
		opts.BackoffStep = 500 * time.Millisecond
	}

	c := &ChatClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 90 * time.Second},
		opts:       opts,
		logger:     opts.Logger,
		sleep:      opts.Sleep,
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.sleep == nil {
		c.sleep = infra.Sleep
	}
	return c
}

func (c *ChatClient) Model() string {
	return c.model
}

// CheckConfig reports missing credentials or an unusable base URL.
func (c *ChatClient) CheckConfig() error {
	if c.apiKey == "" {
		return fmt.Errorf("%w: NEWAPI_API_KEY is not set", domain.ErrConfigMissing)
	}
	if c.baseURL == "" {
		return fmt.Errorf("%w: NEWAPI_BASE_URL is not set", domain.ErrConfigMissing)
	}

	u, err := url.Parse(c.baseURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: NEWAPI_BASE_URL %q is not an absolute URL", domain.ErrConfigInvalid, c.baseURL)
	}
	if u.Scheme != "https" && !(c.opts.AllowInsecure && u.Scheme == "http") {
		return fmt.Errorf("%w: NEWAPI_BASE_URL must use https", domain.ErrConfigInvalid)
	}
	return nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Analyze asks the gateway for highlights and a to-do tree. When the model is
// unavailable it switches to another listed model without spending an
// attempt; throttling, 5xx and transport failures are retried with a linear
// backoff.
func (c *ChatClient) Analyze(ctx context.Context, transcript string) (domain.AnalysisResult, error) {
	if strings.TrimSpace(transcript) == "" {
		return domain.EmptyAnalysis(), nil
	}
	if err := c.CheckConfig(); err != nil {
		return domain.AnalysisResult{}, err
	}

	prompt := analysis.BuildPrompt(transcript)
	model := c.model
	tried := map[string]bool{model: true}

	var lastErr error
	for attempt := 0; attempt < c.opts.MaxAttempts; {
		status, payload, err := c.complete(ctx, model, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return domain.AnalysisResult{}, err
			}
			lastErr = err
		} else {
			if status >= 200 && status < 300 {
				return c.parse(model, payload)
			}

			code := payload.StringAt("error", "code")
			apiErr := &infra.APIError{Kind: domain.ErrUpstream, Vendor: "newapi", Op: "chat completion", Status: status, Body: payload}
			if analysis.ModelUnavailable(status, code) {
				models, _ := c.ListModels(ctx)
				if next := analysis.PickFallbackModel(models, c.preferred(model), tried); next != "" {
					c.logger.Warn("model unavailable, switching", "model", model, "fallback", next, "status", status)
					tried[next] = true
					model = next
					continue
				}
				apiErr.Hint = ModelHint{
					Message: fmt.Sprintf("model %s is not available on this service; set NEWAPI_MODEL to an available model or enable it with the provider", model),
					Models:  models,
				}
				if code == analysis.CodeModelNotFound {
					apiErr.Kind = domain.ErrModelUnavailable
				}
			}

			if !infra.IsRetryableHTTPStatus(status) {
				return domain.AnalysisResult{}, apiErr
			}
			lastErr = apiErr
		}

		attempt++
		c.logger.Warn("chat completion failed", "model", model, "attempt", attempt, "error", lastErr)
		if attempt < c.opts.MaxAttempts {
			if err := c.sleep(ctx, time.Duration(attempt)*c.opts.BackoffStep); err != nil {
				return domain.AnalysisResult{}, err
			}
		}
	}

	return domain.AnalysisResult{}, fmt.Errorf("%w: chat completion failed %d times: %w",
		domain.ErrRetriesExhausted, c.opts.MaxAttempts, lastErr)
}

func (c *ChatClient) parse(model string, payload infra.Payload) (domain.AnalysisResult, error) {
	var resp chatResponse
	if err := payload.Decode(&resp); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("%w: decoding chat response: %v", domain.ErrParse, err)
	}
	if len(resp.Choices) == 0 {
		return domain.AnalysisResult{}, fmt.Errorf("%w: chat response has no choices", domain.ErrParse)
	}

	result, err := analysis.ParseResult(resp.Choices[0].Message.Content)
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	c.logger.Info("analysis complete", "model", model, "todos", result.Count())
	return result, nil
}

func (c *ChatClient) preferred(current string) []string {
	return append([]string{current}, c.opts.FallbackModels...)
}

func (c *ChatClient) complete(ctx context.Context, model, prompt string) (int, infra.Payload, error) {
	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: analysis.Temperature,
	})
	if err != nil {
		return 0, infra.Payload{}, fmt.Errorf("marshaling request: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/chat/completions", bytes.NewReader(body), "application/json")
}

// ListModels returns the model ids the gateway advertises.
func (c *ChatClient) ListModels(ctx context.Context) ([]string, error) {
	if err := c.CheckConfig(); err != nil {
		return nil, err
	}

	status, payload, err := c.do(ctx, http.MethodGet, "/models", nil, "")
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &infra.APIError{Kind: domain.ErrUpstream, Vendor: "newapi", Op: "list models", Status: status, Body: payload}
	}

	var list struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := payload.Decode(&list); err != nil {
		return nil, fmt.Errorf("%w: decoding model list: %v", domain.ErrParse, err)
	}

	ids := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

// Relay forwards a request to the gateway with the server-side credential and
// returns the answer untouched.
func (c *ChatClient) Relay(ctx context.Context, method, path string, body io.Reader, contentType string) (int, infra.Payload, error) {
	if err := c.CheckConfig(); err != nil {
		return 0, infra.Payload{}, err
	}
	return c.do(ctx, method, path, body, contentType)
}

func (c *ChatClient) do(ctx context.Context, method, path string, body io.Reader, contentType string) (int, infra.Payload, error) {
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
		c.logger.Debug("newapi response", "method", method, "path", path, "status", resp.StatusCode, "request_id", id)
	}
	return resp.StatusCode, payload, nil
}
