package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"voice-todo/internal/analysis"
	"voice-todo/internal/domain"
	"voice-todo/internal/infra"
)

type ClaudeClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	model      string
	retry      infra.RetryConfig
}

func NewClaudeClient(apiKey, model string) *ClaudeClient {
	return NewClaudeClientWithURL(apiKey, model, "https://api.anthropic.com/v1")
}

func NewClaudeClientWithURL(apiKey, model, baseURL string) *ClaudeClient {
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	return &ClaudeClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		retry:      infra.DefaultRetryConfig(),
	}
}

func (c *ClaudeClient) WithRetry(cfg infra.RetryConfig) *ClaudeClient {
	c.retry = cfg
	return c
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	System      string    `json:"system"`
	Messages    []message `json:"messages"`
}

type response struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *ClaudeClient) Analyze(ctx context.Context, transcript string) (domain.AnalysisResult, error) {
	if strings.TrimSpace(transcript) == "" {
		return domain.EmptyAnalysis(), nil
	}
	if c.apiKey == "" {
		return domain.AnalysisResult{}, fmt.Errorf("%w: anthropic api key is not set", domain.ErrConfigMissing)
	}

	reqBody := request{
		Model:       c.model,
		MaxTokens:   4096,
		Temperature: analysis.Temperature,
		System:      analysis.Instructions,
		Messages: []message{
			{Role: "user", Content: "Transcript:\n\n" + transcript},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("marshaling request: %w", err)
	}

	var result response
	retryErr := infra.WithRetry(ctx, c.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(bodyBytes))
		if err != nil {
			return infra.Permanent(fmt.Errorf("creating request: %w", err))
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")

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
			apiErr := &infra.APIError{Kind: domain.ErrUpstream, Vendor: "anthropic", Op: "messages", Status: resp.StatusCode, Body: payload}
			if infra.IsRetryableHTTPStatus(resp.StatusCode) {
				return apiErr
			}
			return infra.Permanent(apiErr)
		}

		if err = payload.Decode(&result); err != nil {
			return infra.Permanent(fmt.Errorf("%w: decoding claude response: %v", domain.ErrParse, err))
		}

		return nil
	})

	if retryErr != nil {
		return domain.AnalysisResult{}, retryErr
	}

	var text strings.Builder
	for _, block := range result.Content {
		if block.Type == "" || block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return domain.AnalysisResult{}, fmt.Errorf("%w: empty response from claude", domain.ErrParse)
	}

	return analysis.ParseResult(text.String())
}
