package infra

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const maxResponseBytes = 16 << 20

// Payload is a vendor response body: the JSON document when the body parsed,
// the raw text otherwise. It marshals back to the JSON or to {"raw": text}.
type Payload struct {
	JSON json.RawMessage
	Text string
}

func DecodePayload(body []byte) Payload {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && json.Valid(trimmed) {
		return Payload{JSON: json.RawMessage(append([]byte(nil), trimmed...))}
	}
	return Payload{Text: string(body)}
}

// ReadPayload drains and decodes a response body.
func ReadPayload(resp *http.Response) (Payload, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Payload{}, fmt.Errorf("reading response: %w", err)
	}
	return DecodePayload(body), nil
}

func (p Payload) Parsed() bool {
	return p.JSON != nil
}

func (p Payload) MarshalJSON() ([]byte, error) {
	if p.Parsed() {
		return p.JSON, nil
	}
	return json.Marshal(map[string]string{"raw": p.Text})
}

// Bytes returns the body as the proxy relays it.
func (p Payload) Bytes() []byte {
	b, _ := p.MarshalJSON()
	return b
}

func (p Payload) String() string {
	if p.Parsed() {
		return string(p.JSON)
	}
	return p.Text
}

// Decode unmarshals the JSON document into v.
func (p Payload) Decode(v any) error {
	if !p.Parsed() {
		return errors.New("response is not JSON")
	}
	return json.Unmarshal(p.JSON, v)
}

// StringAt follows object keys and returns the string found there, or "".
func (p Payload) StringAt(keys ...string) string {
	if !p.Parsed() {
		return ""
	}
	var cur any
	if err := json.Unmarshal(p.JSON, &cur); err != nil {
		return ""
	}
	for _, k := range keys {
		obj, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = obj[k]
	}
	s, _ := cur.(string)
	return s
}

// RequestID picks the vendor's request id from the body or the headers.
func RequestID(resp *http.Response, p Payload) string {
	if id := p.StringAt("request_id"); id != "" {
		return id
	}
	if id := p.StringAt("requestId"); id != "" {
		return id
	}
	if id := resp.Header.Get("X-Request-Id"); id != "" {
		return id
	}
	return resp.Header.Get("X-Requestid")
}
