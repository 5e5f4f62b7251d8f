package infra

import "fmt"

// APIError is a non-2xx answer from a vendor. It unwraps to its Kind, one of
// the domain error sentinels.
type APIError struct {
	Kind   error
	Vendor string
	Op     string
	Status int
	Body   Payload
	Hint   any
}

func (e *APIError) Error() string {
	body := e.Body.String()
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("%s %s: %v (status %d): %s", e.Vendor, e.Op, e.Kind, e.Status, body)
}

func (e *APIError) Unwrap() error {
	return e.Kind
}

// ErrorDetails is the decoded vendor body.
func (e *APIError) ErrorDetails() any {
	return e.Body
}
