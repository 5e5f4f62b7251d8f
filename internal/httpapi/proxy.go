package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"voice-todo/internal/domain"
	"voice-todo/internal/infra"
)

const maxJSONBody = 1 << 20

// relay forwards one request upstream and writes the vendor's status and body
// back unchanged. Bodies that are not JSON come back as {"raw": text}.
func (s *Server) relay(w http.ResponseWriter, r *http.Request, up Upstream, vendor, method, path string, body io.Reader, contentType string) {
	if up == nil {
		s.writeError(w, r, checkUpstream(up, vendor))
		return
	}

	status, payload, err := up.Relay(r.Context(), method, path, body, contentType)
	if err != nil {
		s.writeError(w, r, upstreamFailure(vendor, err))
		return
	}
	if status == 0 {
		status = http.StatusBadGateway
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload.Bytes())
}

// checkUpstream reports missing credentials before a request body is read.
func checkUpstream(up Upstream, vendor string) error {
	if up == nil {
		return fmt.Errorf("%w: %s is not configured", domain.ErrConfigMissing, vendor)
	}
	return up.CheckConfig()
}

func (s *Server) relayGet(up Upstream, vendor, path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := path
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		s.relay(w, r, up, vendor, http.MethodGet, target, nil, "")
	}
}

func (s *Server) handleSonioxUpload(w http.ResponseWriter, r *http.Request) {
	form, err := readAudioForm(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if form.audio == nil {
		s.writeError(w, r, badRequest("submit the audio as multipart field \"file\""))
		return
	}

	body, contentType, err := infra.AudioForm(*form.audio)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.relay(w, r, s.soniox, "soniox", http.MethodPost, "/files", body, contentType)
}

// handleCreateTranscription accepts the job either at the top level or
// wrapped in "payload". Wrapped fields win.
func (s *Server) handleCreateTranscription(w http.ResponseWriter, r *http.Request) {
	if err := checkUpstream(s.soniox, "soniox"); err != nil {
		s.writeError(w, r, err)
		return
	}

	var incoming map[string]any
	if err := decodeJSONBody(w, r, &incoming); err != nil {
		s.writeError(w, r, err)
		return
	}

	job := make(map[string]any, len(incoming))
	for k, v := range incoming {
		if k != "payload" {
			job[k] = v
		}
	}
	if wrapped, ok := incoming["payload"].(map[string]any); ok {
		for k, v := range wrapped {
			job[k] = v
		}
	}

	if model, _ := job["model"].(string); model == "" {
		job["model"] = s.soniox.Model()
	}
	if present(job["file_id"]) && present(job["audio_url"]) {
		s.writeError(w, r, badRequest("expected file_id or audio_url but not both"))
		return
	}

	body, err := json.Marshal(job)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("encoding job: %w", err))
		return
	}
	s.relay(w, r, s.soniox, "soniox", http.MethodPost, "/transcriptions", bytes.NewReader(body), "application/json")
}

func (s *Server) handleGetTranscription(w http.ResponseWriter, r *http.Request) {
	path := "/transcriptions/" + url.PathEscape(r.PathValue("id"))
	s.relay(w, r, s.soniox, "soniox", http.MethodGet, path, nil, "")
}

func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	path := "/transcriptions/" + url.PathEscape(r.PathValue("id")) + "/transcript"
	s.relay(w, r, s.soniox, "soniox", http.MethodGet, path, nil, "")
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if err := checkUpstream(s.llm, "llm"); err != nil {
		s.writeError(w, r, err)
		return
	}

	var req map[string]any
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if model, _ := req["model"].(string); model == "" {
		req["model"] = s.llm.Model()
	}

	body, err := json.Marshal(req)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("encoding request: %w", err))
		return
	}
	s.relay(w, r, s.llm, "llm", http.MethodPost, "/chat/completions", bytes.NewReader(body), "application/json")
}

// decodeJSONBody reads a JSON object. An empty body decodes to an empty object.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v *map[string]any) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return badRequest("body exceeds %d bytes", tooLarge.Limit)
		}
		return badRequest("reading body: %v", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		*v = map[string]any{}
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return badRequest("body is not a JSON object: %v", err)
	}
	if *v == nil {
		*v = map[string]any{}
	}
	return nil
}

func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	default:
		return true
	}
}
