package gemini_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voice-todo/internal/domain"
	"voice-todo/internal/infra"
	"voice-todo/internal/infra/gemini"
)

func noWait() infra.RetryConfig {
	cfg := infra.DefaultRetryConfig()
	cfg.Sleep = func(context.Context, time.Duration) error { return nil }
	return cfg
}

func TestClient_Analyze(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-test:generateContent") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("key") != "test-key" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]string{
						{"text": `{"highlights":"Garden work","todos":[`},
						{"text": `{"title":"Water plants","children":[{"title":"Tomatoes"}]}]}`},
					},
				},
			}},
		})
	}))
	defer server.Close()

	client := gemini.NewClientWithURL("test-key", "gemini-test", server.URL).WithRetry(noWait())

	result, err := client.Analyze(context.Background(), "water the plants, especially the tomatoes")
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}

	if result.Highlights != "Garden work" {
		t.Errorf("Highlights: got %q", result.Highlights)
	}
	if result.Count() != 2 {
		t.Errorf("Count: got %d, want 2", result.Count())
	}
	if result.Todos[0].Children[0].ID != "1-1" {
		t.Errorf("child id: got %q, want 1-1", result.Todos[0].Children[0].ID)
	}
}

func TestClient_AnalyzeForbidden(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"API key not valid"}}`))
	}))
	defer server.Close()

	client := gemini.NewClientWithURL("bad-key", "gemini-test", server.URL).WithRetry(noWait())

	_, err := client.Analyze(context.Background(), "something")
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("error: got %v, want ErrUpstream", err)
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
}

func TestClient_MissingKey(t *testing.T) {
	client := gemini.NewClientWithURL("", "", "http://unused.invalid")

	_, err := client.Analyze(context.Background(), "something")
	if !errors.Is(err, domain.ErrConfigMissing) {
		t.Errorf("error: got %v, want ErrConfigMissing", err)
	}
}
