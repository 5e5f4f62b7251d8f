package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"voice-todo/internal/analysis"
	"voice-todo/internal/domain"
	"voice-todo/internal/infra"
)

type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	model      string
	retry      infra.RetryConfig
}

func NewClient(apiKey, model string) *Client {
	return NewClientWithURL(apiKey, model, "https://generativelanguage.googleapis.com/v1beta")
}

func NewClientWithURL(apiKey, model, baseURL string) *Client {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		retry:      infra.DefaultRetryConfig(),
	}
}

func (c *Client) WithRetry(cfg infra.RetryConfig) *Client {
	c.retry = cfg
	return c
}

type content struct {
	Parts []part `json:"parts"`
	Role  string `json:"role,omitempty"`
}

type part struct {
	Text string `json:"text"`
}

type request struct {
	Contents         []content        `json:"contents"`
	SystemInstruct   *content         `json:"systemInstruction,omitempty"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type response struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

func (c *Client) Analyze(ctx context.Context, transcript string) (domain.AnalysisResult, error) {
	if strings.TrimSpace(transcript) == "" {
		return domain.EmptyAnalysis(), nil
	}
	if c.apiKey == "" {
		return domain.AnalysisResult{}, fmt.Errorf("%w: gemini api key is not set", domain.ErrConfigMissing)
	}

	reqBody := request{
		SystemInstruct: &content{
			Parts: []part{{Text: analysis.Instructions}},
		},
		Contents: []content{
			{
				Role:  "user",
				Parts: []part{{Text: "Transcript:\n\n" + transcript}},
			},
		},
		GenerationConfig: generationConfig{
			MaxOutputTokens:  4096,
			Temperature:      analysis.Temperature,
			ResponseMimeType: "application/json",
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("marshaling request: %w", err)
	}

	var result response
	retryErr := infra.WithRetry(ctx, c.retry, func() error {
		endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, url.PathEscape(c.model), url.QueryEscape(c.apiKey))
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
		if err != nil {
			return infra.Permanent(fmt.Errorf("creating request: %w", err))
		}

		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// the url carries the key
			return fmt.Errorf("sending request to gemini: %w", unwrapURLError(err))
		}
		defer resp.Body.Close()

		payload, err := infra.ReadPayload(resp)
		if err != nil {
			return err
		}

		if resp.StatusCode != http.StatusOK {
			apiErr := &infra.APIError{Kind: domain.ErrUpstream, Vendor: "gemini", Op: "generate content", Status: resp.StatusCode, Body: payload}
			if infra.IsRetryableHTTPStatus(resp.StatusCode) {
				return apiErr
			}
			return infra.Permanent(apiErr)
		}

		if err = payload.Decode(&result); err != nil {
			return infra.Permanent(fmt.Errorf("%w: decoding gemini response: %v", domain.ErrParse, err))
		}

		return nil
	})

	if retryErr != nil {
		return domain.AnalysisResult{}, retryErr
	}

	if result.Error != nil {
		return domain.AnalysisResult{}, fmt.Errorf("%w: gemini error: %s", domain.ErrUpstream, result.Error.Message)
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return domain.AnalysisResult{}, fmt.Errorf("%w: empty response from gemini", domain.ErrParse)
	}

	var text strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	return analysis.ParseResult(text.String())
}

func unwrapURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}
