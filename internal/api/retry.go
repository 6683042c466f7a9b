package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cccs/clue-client/internal/audit"
	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

// RequestFunc performs a single HTTP exchange. (*http.Client).Do satisfies it.
type RequestFunc func(*http.Request) (*http.Response, error)

// RetryPolicy controls WithRetry.
type RetryPolicy struct {
	// MaxRetries is the number of attempts made after the first one. Negative
	// values are treated as zero.
	MaxRetries int

	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultRetryPolicy retries three times, doubling from 100ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2,
	}
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	return b
}

// maxTries counts the first attempt. It is never zero, which backoff would
// treat as unlimited.
func (p RetryPolicy) maxTries() uint {
	return uint(max(p.MaxRetries, 0)) + 1
}

// RetryableStatus reports whether a response status warrants another attempt:
// 429, and anything 500 or above except 502. The upstream behind a 502 is
// expected to have retried already.
func RetryableStatus(status int) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500 && status != http.StatusBadGateway
}

// retryableStatusError marks an attempt that produced a response worth
// retrying.
type retryableStatusError struct {
	status int
}

func (e *retryableStatusError) Error() string {
	return fmt.Sprintf("retryable response status %d", e.status)
}

// WithRetry decorates next so that network failures and retryable statuses
// are attempted again with exponential backoff. When the attempts run out on
// a retryable status, the final response is returned as a value; when they run
// out on a network failure, the failure is returned.
func WithRetry(next RequestFunc, policy RetryPolicy) RequestFunc {
	return func(req *http.Request) (*http.Response, error) {
		ctx := req.Context()

		attempt := 0
		var last *http.Response

		operation := func() (*http.Response, error) {
			if last != nil {
				discard(last)
				last = nil
			}

			r, err := attemptRequest(req, attempt)
			if err != nil {
				return nil, backoff.Permanent(err)
			}
			attempt++

			resp, err := next(r)
			if err != nil {
				if ctx.Err() != nil {
					return nil, backoff.Permanent(err)
				}
				return nil, err
			}

			if RetryableStatus(resp.StatusCode) {
				last = resp
				return nil, &retryableStatusError{status: resp.StatusCode}
			}

			return resp, nil
		}

		resp, err := backoff.Retry(ctx, operation,
			backoff.WithBackOff(policy.backOff()),
			backoff.WithMaxTries(policy.maxTries()),
			backoff.WithNotify(func(err error, delay time.Duration) {
				audit.Log(ctx).Retried()
				log.Ctx(ctx).Debug().
					Err(err).
					Str("method", req.Method).
					Str("url", req.URL.Redacted()).
					Int("attempt", attempt).
					Dur("delay", delay).
					Msg("request failed, retrying")
			}),
		)
		if err != nil {
			var statusErr *retryableStatusError
			if errors.As(err, &statusErr) && last != nil {
				return last, nil
			}
			if last != nil {
				discard(last)
			}
			return nil, err
		}

		return resp, nil
	}
}

// attemptRequest returns the request to send for the given attempt. Retries
// need a fresh body, so the request is cloned and its body rewound.
func attemptRequest(req *http.Request, attempt int) (*http.Request, error) {
	if attempt == 0 {
		return req, nil
	}

	r := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("could not rewind request body: %w", err)
		}
		r.Body = body
	}

	return r, nil
}

func discard(resp *http.Response) {
	// bounded so a misbehaving server can't stall the retry loop
	_, _ = io.CopyN(io.Discard, resp.Body, 64<<10)
	_ = resp.Body.Close()
}

// contextDone is used by callers that want to distinguish cancellation from
// transport failure.
func contextDone(ctx context.Context, err error) bool {
	return ctx.Err() != nil && errors.Is(err, ctx.Err())
}
