package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"voice-todo/internal/domain"
	"voice-todo/internal/infra"
)

type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
	Hint    any    `json:"hint,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// errorCode extends domain.ErrorCode with context failures.
func errorCode(err error) string {
	code := domain.ErrorCode(err)
	if code == domain.CodeServer && errors.Is(err, context.DeadlineExceeded) {
		return domain.CodeTimeout
	}
	return code
}

// statusFor maps an error to the HTTP status it is reported with. Upstream
// failures keep the vendor's own status when it has one.
func statusFor(err error) int {
	switch errorCode(err) {
	case domain.CodeBadRequest:
		return http.StatusBadRequest
	case domain.CodeBusy:
		return http.StatusConflict
	case domain.CodeTimeout:
		return http.StatusGatewayTimeout
	case domain.CodeParse, domain.CodeRetryExhausted:
		return http.StatusBadGateway
	case domain.CodeUpstream:
		var apiErr *infra.APIError
		if errors.As(err, &apiErr) && apiErr.Status >= 400 {
			return apiErr.Status
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{
		Error:   err.Error(),
		Code:    errorCode(err),
		Details: domain.ErrorDetails(err),
	}
	attrs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"code", body.Code,
		"request_id", requestIDFrom(r.Context()),
	}

	// Vendor bodies stay out of the log.
	var apiErr *infra.APIError
	if errors.As(err, &apiErr) {
		body.Hint = apiErr.Hint
		attrs = append(attrs, "vendor", apiErr.Vendor, "op", apiErr.Op, "upstream_status", apiErr.Status)
	} else {
		attrs = append(attrs, "error", err)
	}

	s.logger.Log(r.Context(), levelFor(status), "request failed", attrs...)
	writeJSON(w, status, body)
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrBadRequest, fmt.Sprintf(format, args...))
}

// upstreamFailure marks transport errors from a relay as upstream failures.
func upstreamFailure(vendor string, err error) error {
	if domain.ErrorCode(err) != domain.CodeServer {
		return err
	}
	return fmt.Errorf("%w: %s unreachable: %v", domain.ErrUpstream, vendor, err)
}
