package domain

import "errors"

// Error kinds shared by every client and route. Callers match them with errors.Is.
var (
	ErrConfigMissing    = errors.New("configuration missing")
	ErrConfigInvalid    = errors.New("configuration invalid")
	ErrBadRequest       = errors.New("bad request")
	ErrUpload           = errors.New("upload failed")
	ErrJobFailed        = errors.New("transcription job failed")
	ErrTimeout          = errors.New("timed out")
	ErrModelUnavailable = errors.New("model unavailable")
	ErrUpstream         = errors.New("upstream error")
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrParse            = errors.New("unparseable response")
	ErrBusy             = errors.New("pipeline busy")
)

const (
	CodeBadRequest     = "BAD_REQUEST"
	CodeBusy           = "BUSY"
	CodeConfigMissing  = "CONFIG_MISSING"
	CodeConfigInvalid  = "CONFIG_INVALID"
	CodeUpstream       = "UPSTREAM_ERROR"
	CodeParse          = "PARSE_ERROR"
	CodeRetryExhausted = "RETRY_EXHAUSTED"
	CodeTimeout        = "TIMEOUT"
	CodeServer         = "SERVER_ERROR"
)

// ErrorCode is the client-facing code for err. Order matters: an exhausted
// retry also wraps the last upstream failure.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRetriesExhausted):
		return CodeRetryExhausted
	case errors.Is(err, ErrConfigMissing):
		return CodeConfigMissing
	case errors.Is(err, ErrConfigInvalid):
		return CodeConfigInvalid
	case errors.Is(err, ErrBadRequest):
		return CodeBadRequest
	case errors.Is(err, ErrBusy):
		return CodeBusy
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrParse):
		return CodeParse
	case errors.Is(err, ErrUpload), errors.Is(err, ErrJobFailed),
		errors.Is(err, ErrModelUnavailable), errors.Is(err, ErrUpstream):
		return CodeUpstream
	default:
		return CodeServer
	}
}

// Detailer is implemented by errors that carry a vendor payload worth showing.
type Detailer interface {
	ErrorDetails() any
}

// ErrorDetails returns the payload of the first Detailer in err's chain.
func ErrorDetails(err error) any {
	var d Detailer
	if errors.As(err, &d) {
		return d.ErrorDetails()
	}
	return nil
}
