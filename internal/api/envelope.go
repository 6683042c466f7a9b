package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Envelope is the wrapper the Clue server puts around every reply. The
// error message is empty whenever the status is in the success range.
type Envelope struct {
	Response      json.RawMessage `json:"api_response"`
	ErrorMessage  string          `json:"api_error_message"`
	ServerVersion string          `json:"api_server_version"`
	StatusCode    int             `json:"api_status_code"`
}

// Succeeded reports whether the envelope carries a usable payload: a 2xx or
// 304 status.
func (e Envelope) Succeeded() bool {
	return Accepted(e.StatusCode)
}

// Decode unmarshals the payload into v. A missing payload leaves v untouched.
func (e Envelope) Decode(v any) error {
	if len(e.Response) == 0 {
		return nil
	}

	if err := json.Unmarshal(e.Response, v); err != nil {
		return fmt.Errorf("could not decode api_response: %w", err)
	}

	return nil
}

// Err returns nil for a successful envelope, and a *StatusError describing
// the failure otherwise.
func (e Envelope) Err() error {
	if e.Succeeded() {
		return nil
	}

	return &StatusError{
		Code:    e.StatusCode,
		Message: e.ErrorMessage,
	}
}

// Accepted reports whether a status is treated as non-exceptional: anything in
// [200, 300) and exactly 304.
func Accepted(status int) bool {
	return (status >= 200 && status < 300) || status == http.StatusNotModified
}

// StatusError is a failed envelope expressed as an error, for callers that
// prefer error handling to envelope inspection.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("clue api error (status %d): %s", e.Code, e.Message)
}

// Status provides the HTTP status and message of the failure.
func (e *StatusError) Status() (int, string) {
	return e.Code, e.Message
}
