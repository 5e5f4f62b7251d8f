// Package httpapi serves the credential-holding proxy routes and the pipeline
// API used by browser and CLI clients.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"voice-todo/internal/application"
	"voice-todo/internal/infra"
)

// Upstream is a vendor API reachable through the proxy routes.
type Upstream interface {
	Model() string
	CheckConfig() error
	Relay(ctx context.Context, method, path string, body io.Reader, contentType string) (int, infra.Payload, error)
}

type Options struct {
	Addr      string
	AuthToken string

	Soniox      Upstream
	LLM         Upstream
	Transcriber application.Transcriber
	Analyzer    application.Analyzer
	Sequencer   *application.Sequencer

	Logger *slog.Logger
}

type Server struct {
	addr        string
	authToken   string
	soniox      Upstream
	llm         Upstream
	transcriber application.Transcriber
	analyzer    application.Analyzer
	seq         *application.Sequencer
	logger      *slog.Logger
	mux         *http.ServeMux
	handler     http.Handler

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	running  bool
	runCtx   context.Context
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Server{
		addr:        opts.Addr,
		authToken:   opts.AuthToken,
		soniox:      opts.Soniox,
		llm:         opts.LLM,
		transcriber: opts.Transcriber,
		analyzer:    opts.Analyzer,
		seq:         opts.Sequencer,
		logger:      logger,
		mux:         http.NewServeMux(),
		runCtx:      context.Background(),
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /api/soniox/v1/files", s.handleSonioxUpload)
	s.mux.HandleFunc("GET /api/soniox/v1/files", s.relayGet(s.soniox, "soniox", "/files"))
	s.mux.HandleFunc("GET /api/soniox/v1/models", s.relayGet(s.soniox, "soniox", "/models"))
	s.mux.HandleFunc("POST /api/soniox/v1/transcriptions", s.handleCreateTranscription)
	s.mux.HandleFunc("GET /api/soniox/v1/transcriptions/{id}", s.handleGetTranscription)
	s.mux.HandleFunc("GET /api/soniox/v1/transcriptions/{id}/transcript", s.handleGetTranscript)

	s.mux.HandleFunc("POST /api/llm/v1/chat/completions", s.handleChatCompletions)
	s.mux.HandleFunc("GET /api/llm/v1/models", s.relayGet(s.llm, "llm", "/models"))

	s.mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	s.mux.HandleFunc("POST /api/transcribe", s.handleTranscribe)

	s.mux.HandleFunc("POST /api/pipeline", s.handleSubmit)
	s.mux.HandleFunc("GET /api/pipeline", s.handleSnapshot)
	s.mux.HandleFunc("DELETE /api/pipeline", s.handleReset)
	s.mux.HandleFunc("GET /api/pipeline/result", s.handleResult)
	s.mux.HandleFunc("GET /api/pipeline/events", s.handleEvents)

	s.handler = s.withRequestID(s.withAccessLog(s.withAuth(s.mux)))
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves in the background.
// Pipeline runs started through the API live as long as ctx.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}

	s.runCtx = ctx
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		s.logger.Info("HTTP server starting", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	s.running = true
	return nil
}

// Addr is the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("graceful shutdown failed, forcing close", "error", err)
		if err := s.server.Close(); err != nil {
			return fmt.Errorf("closing server: %w", err)
		}
	}

	s.running = false
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	body := map[string]any{"status": "ok", "running": running}
	if s.seq != nil {
		snap := s.seq.Snapshot()
		body["stage"] = snap.Stage
		body["busy"] = snap.Busy
	}
	writeJSON(w, http.StatusOK, body)
}
