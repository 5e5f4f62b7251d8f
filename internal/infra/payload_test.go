package infra_test

import (
	"net/http"
	"testing"

	"voice-todo/internal/infra"
)

func TestDecodePayload(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantJSON  bool
		wantBytes string
	}{
		{name: "object", body: `{"id":"x"}`, wantJSON: true, wantBytes: `{"id":"x"}`},
		{name: "padded", body: " [1,2] \n", wantJSON: true, wantBytes: `[1,2]`},
		{name: "text", body: "Bad Gateway", wantBytes: `{"raw":"Bad Gateway"}`},
		{name: "empty", body: "", wantBytes: `{"raw":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := infra.DecodePayload([]byte(tt.body))
			if p.Parsed() != tt.wantJSON {
				t.Errorf("Parsed: got %v, want %v", p.Parsed(), tt.wantJSON)
			}
			if got := string(p.Bytes()); got != tt.wantBytes {
				t.Errorf("Bytes: got %s, want %s", got, tt.wantBytes)
			}
		})
	}
}

func TestPayload_StringAt(t *testing.T) {
	p := infra.DecodePayload([]byte(`{"error":{"code":"model_not_found","n":3}}`))

	if got := p.StringAt("error", "code"); got != "model_not_found" {
		t.Errorf("error.code: got %q", got)
	}
	if got := p.StringAt("error", "n"); got != "" {
		t.Errorf("non-string leaf: got %q, want empty", got)
	}
	if got := p.StringAt("missing", "code"); got != "" {
		t.Errorf("missing path: got %q, want empty", got)
	}
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		header http.Header
		want   string
	}{
		{name: "body snake", body: `{"request_id":"a"}`, want: "a"},
		{name: "body camel", body: `{"requestId":"b"}`, want: "b"},
		{name: "header", body: `{}`, header: http.Header{"X-Request-Id": {"c"}}, want: "c"},
		{name: "alt header", body: "oops", header: http.Header{"X-Requestid": {"d"}}, want: "d"},
		{name: "body wins", body: `{"request_id":"e"}`, header: http.Header{"X-Request-Id": {"f"}}, want: "e"},
		{name: "none", body: `{}`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{Header: tt.header}
			if resp.Header == nil {
				resp.Header = http.Header{}
			}
			if got := infra.RequestID(resp, infra.DecodePayload([]byte(tt.body))); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
