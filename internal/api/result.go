package api

import (
	"context"
	"fmt"
	"net/http"
)

// Result is the outcome of a typed request. Data is decoded from the envelope
// only when the request succeeded; a failed request leaves Data at its zero
// value and the failure in Envelope.
type Result[T any] struct {
	Envelope Envelope
	Status   int
	Header   http.Header
	Data     T
}

// Failed reports whether the server answered with a non-accepted status.
func (r Result[T]) Failed() bool {
	return !Accepted(r.Status)
}

// Err converts a failed result into a *StatusError.
func (r Result[T]) Err() error {
	if !r.Failed() {
		return nil
	}
	return &StatusError{Code: r.Status, Message: r.Envelope.ErrorMessage}
}

// Get issues a GET with no body and no query beyond what opts supply.
func Get[T any](ctx context.Context, r Requester, path string, opts ...Option) (Result[T], error) {
	return Do[T](ctx, r, path, opts...)
}

// Post issues a POST carrying body.
func Post[T any](ctx context.Context, r Requester, path string, body any, opts ...Option) (Result[T], error) {
	// caller options come last so that a transport override wins
	opts = append([]Option{WithMethod(http.MethodPost), WithBody(body)}, opts...)
	return Do[T](ctx, r, path, opts...)
}

// Do fetches path and decodes the payload of a successful reply into T. The
// returned error is reserved for transport failures and undecodable payloads.
func Do[T any](ctx context.Context, r Requester, path string, opts ...Option) (Result[T], error) {
	envelope, status, header, err := r.Fetch(ctx, path, opts...)
	if err != nil {
		return Result[T]{}, err
	}

	result := Result[T]{
		Envelope: envelope,
		Status:   status,
		Header:   header,
	}

	if result.Failed() {
		return result, nil
	}

	if err := envelope.Decode(&result.Data); err != nil {
		return result, fmt.Errorf("%s: %w", path, err)
	}

	return result, nil
}
