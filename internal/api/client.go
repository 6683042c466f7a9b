package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/cccs/clue-client/internal/audit"
	"github.com/cccs/clue-client/internal/cache"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"
)

// maxResponseBytes bounds how much of a response body is read. A larger body
// fails the call rather than being truncated.
var maxResponseBytes int64 = 32 << 20 // 32 MB

// ETagCache stores the last successful envelope observed for an ETag.
type ETagCache interface {
	Get(ctx context.Context, etag string) (Envelope, bool, error)
	Set(ctx context.Context, etag string, envelope Envelope) error
}

// contextTokenSource is satisfied by token sources that can honour the
// request's context, such as credentials.Source.
type contextTokenSource interface {
	TokenContext(ctx context.Context) (*oauth2.Token, error)
}

// Requester is the operation the resource packages depend on. *Client
// implements it.
type Requester interface {
	Fetch(ctx context.Context, path string, opts ...Option) (Envelope, int, http.Header, error)
}

// Client performs requests against the Clue API and normalizes every outcome
// into an envelope, a status code and the response headers. It is safe for
// concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      RetryPolicy
	do         RequestFunc
	etags      ETagCache
	tokens     oauth2.TokenSource
}

type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The client is copied:
// when it has no cookie jar, the copy gets one so credentials flow with every
// request, leaving the caller's client untouched.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		hc := *httpClient
		c.httpClient = &hc
	}
}

// WithETagCache sets the store used to resolve 304 responses.
func WithETagCache(cache ETagCache) ClientOption {
	return func(c *Client) {
		c.etags = cache
	}
}

// WithTokenSource supplies the bearer token attached to each request. A
// source that fails or returns an empty token results in an unauthenticated
// request.
func WithTokenSource(source oauth2.TokenSource) ClientOption {
	return func(c *Client) {
		c.tokens = source
	}
}

// WithRetryPolicy replaces DefaultRetryPolicy.
func WithRetryPolicy(policy RetryPolicy) ClientOption {
	return func(c *Client) {
		c.retry = policy
	}
}

// NewClient creates a client for the Clue server at baseURL (the origin, e.g.
// https://clue.example.com).
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("could not parse Clue API URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("Clue API URL %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		retry:   DefaultRetryPolicy(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Transport: http.DefaultTransport}
	}

	if c.httpClient.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("could not create cookie jar: %w", err)
		}
		c.httpClient.Jar = jar
	}

	if c.etags == nil {
		memory, err := cache.NewMemory[Envelope](0, 0)
		if err != nil {
			return nil, fmt.Errorf("could not create etag cache: %w", err)
		}
		c.etags = memory
	}

	c.do = WithRetry(c.httpClient.Do, c.retry)

	return c, nil
}

// Fetch performs one request and normalizes the result. Statuses in the 2xx
// range and 304 are accepted. Any other status is returned as an envelope
// whose error message is populated and whose status code matches the
// response: it is not an error. An error is returned only when no response
// could be obtained once retries are exhausted.
func (c *Client) Fetch(ctx context.Context, path string, opts ...Option) (Envelope, int, http.Header, error) {
	o := newOptions(opts)

	method, err := o.resolveMethod()
	if err != nil {
		return Envelope{}, 0, nil, err
	}

	// the body is always sent, even when absent, as JSON null
	body, err := json.Marshal(o.body)
	if err != nil {
		return Envelope{}, 0, nil, fmt.Errorf("could not serialize request body: %w", err)
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	target := c.baseURL + JoinQuery(path, o.query)

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return Envelope{}, 0, nil, fmt.Errorf("could not create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	for key, values := range o.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	c.authorize(ctx, req)

	start := time.Now()
	resp, err := c.do(req)
	if err != nil {
		if contextDone(ctx, err) {
			return Envelope{}, 0, nil, fmt.Errorf("request to %s cancelled: %w", path, err)
		}
		return Envelope{}, 0, nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return Envelope{}, 0, nil, fmt.Errorf("could not read response from %s: %w", path, err)
	}
	if int64(len(raw)) > maxResponseBytes {
		return Envelope{}, 0, nil, fmt.Errorf("response from %s exceeds %d bytes", path, maxResponseBytes)
	}

	status := resp.StatusCode
	envelope, cached := c.normalize(ctx, req, resp, raw)
	elapsed := time.Since(start)

	log.Ctx(ctx).Debug().
		Str("method", method).
		Str("path", path).
		Int("status", status).
		Dur("duration", elapsed).
		Msg("clue api request")

	audit.Log(ctx).Record(audit.Call{
		Method:   method,
		Path:     path,
		Status:   status,
		ETag:     req.Header.Get("If-Match"),
		Cached:   cached,
		Duration: elapsed,
	})

	return envelope, status, resp.Header, nil
}

// normalize shapes the response into an envelope, reporting whether a 304 was
// resolved from the ETag cache.
func (c *Client) normalize(ctx context.Context, req *http.Request, resp *http.Response, raw []byte) (Envelope, bool) {
	status := resp.StatusCode

	switch {
	case status == http.StatusNotModified:
		envelope, _ := decodeEnvelope(raw)
		if envelope.StatusCode == 0 {
			envelope.StatusCode = status
		}

		etag := req.Header.Get("If-Match")
		if etag == "" {
			return envelope, false
		}

		cached, found, err := c.etags.Get(ctx, etag)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("etag", etag).Msg("etag cache lookup failed")
			return envelope, false
		}
		if !found {
			return envelope, false
		}

		return cached, true

	case Accepted(status):
		envelope, ok := decodeEnvelope(raw)
		if !ok {
			// not an envelope: surface the raw body as the payload
			payload, _ := json.Marshal(string(raw))
			envelope = Envelope{Response: payload}
		}
		if envelope.StatusCode == 0 {
			envelope.StatusCode = status
		}

		if etag := resp.Header.Get("ETag"); etag != "" {
			if err := c.etags.Set(ctx, etag, envelope); err != nil {
				log.Ctx(ctx).Warn().Err(err).Str("etag", etag).Msg("etag cache store failed")
			}
		}

		return envelope, false

	default:
		envelope, _ := decodeEnvelope(raw)
		envelope.StatusCode = status

		if envelope.ErrorMessage == "" {
			envelope.ErrorMessage = errorMessage(status, raw)
		}

		return envelope, false
	}
}

// authorize attaches the bearer token when one is available.
func (c *Client) authorize(ctx context.Context, req *http.Request) {
	if c.tokens == nil {
		return
	}

	var (
		token *oauth2.Token
		err   error
	)
	if source, ok := c.tokens.(contextTokenSource); ok {
		token, err = source.TokenContext(ctx)
	} else {
		token, err = c.tokens.Token()
	}
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Msg("no credential available, sending unauthenticated request")
		return
	}
	if token == nil || token.AccessToken == "" {
		return
	}

	token.SetAuthHeader(req)
	audit.Log(ctx).Authorized()
}

func decodeEnvelope(raw []byte) (Envelope, bool) {
	var envelope Envelope

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return envelope, false
	}

	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return Envelope{}, false
	}

	return envelope, true
}

func errorMessage(status int, raw []byte) string {
	if text := strings.TrimSpace(string(raw)); text != "" && !strings.HasPrefix(text, "{") {
		// keep error pages from flooding the message
		if len(text) > 512 {
			text = text[:512]
		}
		return text
	}

	if text := http.StatusText(status); text != "" {
		return text
	}

	return fmt.Sprintf("unexpected response status %d", status)
}
