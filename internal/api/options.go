package api

import (
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"
)

var methods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
}

// Option adjusts a single Fetch call.
type Option func(*options)

type options struct {
	method  string
	body    any
	query   url.Values
	header  http.Header
	timeout time.Duration
}

func newOptions(opts []Option) *options {
	o := &options{
		method: http.MethodGet,
		header: http.Header{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) resolveMethod() (string, error) {
	method := strings.ToUpper(o.method)
	if !slices.Contains(methods, method) {
		return "", fmt.Errorf("unsupported method %q", o.method)
	}
	return method, nil
}

// WithMethod selects the HTTP method: get, post, put, patch or delete. The
// default is get.
func WithMethod(method string) Option {
	return func(o *options) {
		o.method = method
	}
}

// WithBody sets the value serialized as the JSON request body.
func WithBody(body any) Option {
	return func(o *options) {
		o.body = body
	}
}

// WithQuery sets query parameters. A nil or empty value adds nothing to the
// URL.
func WithQuery(query url.Values) Option {
	return func(o *options) {
		o.query = query
	}
}

// WithHeader adds a request header.
func WithHeader(key, value string) Option {
	return func(o *options) {
		o.header.Add(key, value)
	}
}

// WithIfMatch sends the conditional header used to resolve a 304 from the
// ETag cache.
func WithIfMatch(etag string) Option {
	return WithHeader("If-Match", etag)
}

// WithTimeout bounds the whole call, retries included.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.timeout = timeout
	}
}
