package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"voice-todo/internal/application"
	"voice-todo/internal/domain"
	"voice-todo/internal/render"
)

const keepAliveInterval = 15 * time.Second

func (s *Server) sequencer() (*application.Sequencer, error) {
	if s.seq == nil {
		return nil, fmt.Errorf("%w: pipeline is not configured", domain.ErrConfigMissing)
	}
	return s.seq, nil
}

// handleSubmit starts a run in the background and answers 202 with its id.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	seq, err := s.sequencer()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// Refuse before reading a large body.
	if seq.Snapshot().Busy {
		s.writeError(w, r, fmt.Errorf("%w: a voice note is already being processed", domain.ErrBusy))
		return
	}

	form, err := readAudioForm(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if form.audio == nil {
		s.writeError(w, r, badRequest("submit the audio as multipart field \"file\""))
		return
	}

	s.mu.Lock()
	runCtx := s.runCtx
	s.mu.Unlock()

	runID, err := seq.Start(runCtx, *form.audio)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	seq, err := s.sequencer()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, seq.Snapshot())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	seq, err := s.sequencer()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := seq.Reset(); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, seq.Snapshot())
}

// handleResult serves the copy formats of the last run.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	seq, err := s.sequencer()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	snap := seq.Snapshot()

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	if format == "transcript" {
		writeText(w, "text/plain; charset=utf-8", snap.Transcript)
		return
	}

	if snap.Result == nil {
		writeJSON(w, http.StatusNotFound, errorBody{
			Error: fmt.Sprintf("no result in stage %s", snap.Stage),
			Code:  "NOT_FOUND",
		})
		return
	}
	result := *snap.Result

	switch format {
	case "json":
		out, err := render.TodosJSON(result.Todos)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeText(w, "application/json", out)
	case "markdown":
		writeText(w, "text/markdown; charset=utf-8", render.TodosMarkdown(result.Todos))
	case "highlights":
		writeText(w, "text/plain; charset=utf-8", result.Highlights)
	case "groups":
		writeJSON(w, http.StatusOK, render.GroupByCategory(result.Todos))
	case "report":
		writeText(w, "text/markdown; charset=utf-8", render.Report(snap.Transcript, result))
	default:
		s.writeError(w, r, badRequest("unknown format %q", format))
	}
}

func writeText(w http.ResponseWriter, contentType, body string) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// handleEvents streams pipeline events as Server-Sent Events. With ?since=N
// it instead returns the buffered events after N as one JSON document.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	seq, err := s.sequencer()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	bus := seq.Events()

	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || since < 0 {
			s.writeError(w, r, badRequest("since must be a non-negative integer"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": bus.Since(since)})
		return
	}

	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch := bus.Subscribe(32)
	defer bus.Unsubscribe(ch)

	var last int64
	if id, err := strconv.ParseInt(r.Header.Get("Last-Event-ID"), 10, 64); err == nil {
		last = id
		for _, ev := range bus.Since(id) {
			if writeEvent(w, ev) != nil {
				return
			}
			last = ev.Seq
		}
	} else {
		fmt.Fprint(w, ": connected\n\n")
	}
	if rc.Flush() != nil {
		return
	}

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Seq <= last {
				continue
			}
			if writeEvent(w, ev) != nil {
				return
			}
			last = ev.Seq
			if rc.Flush() != nil {
				return
			}
		case <-keepAlive.C:
			fmt.Fprint(w, ": ping\n\n")
			if rc.Flush() != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, ev application.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Type, data)
	return err
}
