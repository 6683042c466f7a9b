package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cccs/clue-client/internal/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func fastRetry() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      1.5,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...ClientOption) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append([]ClientOption{WithRetryPolicy(fastRetry())}, opts...)
	client, err := NewClient(server.URL, opts...)
	require.NoError(t, err)

	return client, server
}

func writeEnvelope(w http.ResponseWriter, status int, response any, message string) {
	payload, _ := json.Marshal(response)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{
		Response:      payload,
		ErrorMessage:  message,
		ServerVersion: "1.0.0",
		StatusCode:    status,
	})
}

func TestNewClient_RequiresAbsoluteURL(t *testing.T) {
	_, err := NewClient("/relative")
	assert.ErrorContains(t, err, "must be absolute")

	_, err = NewClient("://bad")
	assert.ErrorContains(t, err, "could not parse")
}

func TestFetch_Success(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/lookup/types", r.URL.Path)
		assert.Empty(t, r.URL.RawQuery)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		writeEnvelope(w, http.StatusOK, map[string]string{"ip": "whois"}, "")
	})

	envelope, status, _, err := client.Fetch(context.Background(), "/api/v1/lookup/types")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, http.StatusOK, envelope.StatusCode)
	assert.Empty(t, envelope.ErrorMessage)
	assert.JSONEq(t, `{"ip": "whois"}`, string(envelope.Response))
}

func TestFetch_BodyIsNullWhenAbsent(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "null", string(body))
		writeEnvelope(w, http.StatusOK, nil, "")
	})

	_, _, _, err := client.Fetch(context.Background(), "/api/v1/actions")
	require.NoError(t, err)
}

func TestFetch_MethodQueryAndBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "true", r.URL.Query().Get("no_cache"))
		assert.Equal(t, "custom", r.Header.Get("X-Test"))

		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"p": 1}`, string(body))

		writeEnvelope(w, http.StatusCreated, "ok", "")
	})

	_, status, _, err := client.Fetch(context.Background(), "/api/v1/lookup/enrich",
		WithMethod("post"),
		WithBody(map[string]int{"p": 1}),
		WithQuery(url.Values{"no_cache": {"true"}}),
		WithHeader("X-Test", "custom"),
	)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, status)
}

func TestFetch_UnsupportedMethod(t *testing.T) {
	client, err := NewClient("http://localhost:1")
	require.NoError(t, err)

	_, _, _, err = client.Fetch(context.Background(), "/", WithMethod("trace"))
	assert.ErrorContains(t, err, `unsupported method "trace"`)
}

func TestFetch_BearerToken(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer abc.def.ghi", r.Header.Get("Authorization"))
		writeEnvelope(w, http.StatusOK, nil, "")
	}, WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "abc.def.ghi"})))

	_, _, _, err := client.Fetch(context.Background(), "/")
	require.NoError(t, err)
}

func TestFetch_NoTokenSendsUnauthenticated(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		writeEnvelope(w, http.StatusOK, nil, "")
	}, WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{})))

	_, _, _, err := client.Fetch(context.Background(), "/")
	require.NoError(t, err)
}

func TestFetch_FailureStatuses(t *testing.T) {
	tests := []struct {
		name            string
		status          int
		handler         http.HandlerFunc
		expectedMessage string
	}{
		{
			name:   "envelope with message",
			status: http.StatusForbidden,
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeEnvelope(w, http.StatusForbidden, nil, "not allowed")
			},
			expectedMessage: "not allowed",
		},
		{
			name:   "plain text body",
			status: http.StatusNotFound,
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte("no such plugin"))
			},
			expectedMessage: "no such plugin",
		},
		{
			name:   "empty body",
			status: http.StatusUnauthorized,
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
			expectedMessage: "Unauthorized",
		},
		{
			name:   "bad gateway is not retried",
			status: http.StatusBadGateway,
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			expectedMessage: "Bad Gateway",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				tt.handler(w, r)
			})

			envelope, status, _, err := client.Fetch(context.Background(), "/")
			require.NoError(t, err)

			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.status, envelope.StatusCode)
			assert.Equal(t, tt.expectedMessage, envelope.ErrorMessage)
			assert.EqualValues(t, 1, calls.Load())
		})
	}
}

func TestFetch_NonEnvelopeSuccessBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# Markdown doc"))
	})

	envelope, status, _, err := client.Fetch(context.Background(), "/api/v1/static/docs/intro.md")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	var doc string
	require.NoError(t, envelope.Decode(&doc))
	assert.Equal(t, "# Markdown doc", doc)
}

func TestFetch_RetriesRetryableStatuses(t *testing.T) {
	for _, retryable := range []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable} {
		t.Run(http.StatusText(retryable), func(t *testing.T) {
			var calls atomic.Int32
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) < 3 {
					w.WriteHeader(retryable)
					return
				}
				writeEnvelope(w, http.StatusOK, "done", "")
			})

			envelope, status, _, err := client.Fetch(context.Background(), "/")
			require.NoError(t, err)

			assert.Equal(t, http.StatusOK, status)
			assert.JSONEq(t, `"done"`, string(envelope.Response))
			assert.EqualValues(t, 3, calls.Load())
		})
	}
}

func TestFetch_RetriesResendBody(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"p": 1}`, string(body))

		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeEnvelope(w, http.StatusOK, nil, "")
	})

	_, status, _, err := client.Fetch(context.Background(), "/", WithMethod("post"), WithBody(map[string]int{"p": 1}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, calls.Load())
}

func TestFetch_RetryExhaustionReturnsLastResponse(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeEnvelope(w, http.StatusServiceUnavailable, nil, "busy")
	})

	envelope, status, _, err := client.Fetch(context.Background(), "/")
	require.NoError(t, err)

	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "busy", envelope.ErrorMessage)
	assert.EqualValues(t, 4, calls.Load())
}

func TestFetch_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	client, err := NewClient(baseURL, WithRetryPolicy(fastRetry()))
	require.NoError(t, err)

	_, _, _, err = client.Fetch(context.Background(), "/api/v1/actions")
	assert.ErrorContains(t, err, "request to /api/v1/actions failed")
}

func TestFetch_Timeout(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	_, _, _, err := client.Fetch(context.Background(), "/slow", WithTimeout(20*time.Millisecond))
	assert.ErrorContains(t, err, "request to /slow cancelled")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetch_ETagRoundTrip(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("ETag", `"X"`)
			writeEnvelope(w, http.StatusOK, map[string]int{"count": 7}, "")
			return
		}

		assert.Equal(t, `"X"`, r.Header.Get("If-Match"))
		w.WriteHeader(http.StatusNotModified)
	})

	ctx := context.Background()

	first, status, header, err := client.Fetch(ctx, "/api/v1/actions")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	second, status, _, err := client.Fetch(ctx, "/api/v1/actions", WithIfMatch(header.Get("ETag")))
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotModified, status)
	assert.Equal(t, first, second)
	assert.Empty(t, second.ErrorMessage)
}

func TestFetch_NotModifiedWithoutCachedEntry(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	})

	envelope, status, _, err := client.Fetch(context.Background(), "/", WithIfMatch(`"unknown"`))
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotModified, status)
	assert.Equal(t, http.StatusNotModified, envelope.StatusCode)
	assert.Empty(t, envelope.Response)
	assert.NoError(t, envelope.Err())
}

type recordingCache struct {
	entries map[string]Envelope
}

func (c *recordingCache) Get(ctx context.Context, etag string) (Envelope, bool, error) {
	e, ok := c.entries[etag]
	return e, ok, nil
}

func (c *recordingCache) Set(ctx context.Context, etag string, envelope Envelope) error {
	c.entries[etag] = envelope
	return nil
}

func TestFetch_FailuresAreNotCached(t *testing.T) {
	etags := &recordingCache{entries: map[string]Envelope{}}
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"E"`)
		writeEnvelope(w, http.StatusBadRequest, nil, "bad selector")
	}, WithETagCache(etags))

	_, status, _, err := client.Fetch(context.Background(), "/")
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Empty(t, etags.entries)
}

func TestFetch_RecordsAuditCalls(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.Header().Set("ETag", `"X"`)
			writeEnvelope(w, http.StatusOK, nil, "")
		default:
			w.WriteHeader(http.StatusNotModified)
		}
	}, WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "abc.def.ghi"})))

	ctx, entry := audit.Context(context.Background())

	_, _, _, err := client.Fetch(ctx, "/api/v1/actions")
	require.NoError(t, err)
	_, _, _, err = client.Fetch(ctx, "/api/v1/actions", WithIfMatch(`"X"`))
	require.NoError(t, err)

	require.Len(t, entry.Calls, 2)
	assert.Equal(t, 1, entry.Retries)
	assert.True(t, entry.Authenticated)

	assert.Equal(t, http.MethodGet, entry.Calls[0].Method)
	assert.Equal(t, "/api/v1/actions", entry.Calls[0].Path)
	assert.Equal(t, http.StatusOK, entry.Calls[0].Status)
	assert.False(t, entry.Calls[0].Cached)

	assert.Equal(t, http.StatusNotModified, entry.Calls[1].Status)
	assert.Equal(t, `"X"`, entry.Calls[1].ETag)
	assert.True(t, entry.Calls[1].Cached)
}

func TestFetch_OversizedResponseFails(t *testing.T) {
	limit := maxResponseBytes
	maxResponseBytes = 64
	t.Cleanup(func() { maxResponseBytes = limit })

	etags := &recordingCache{entries: map[string]Envelope{}}
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"E"`)
		writeEnvelope(w, http.StatusOK, strings.Repeat("x", 128), "")
	}, WithETagCache(etags))

	_, _, _, err := client.Fetch(context.Background(), "/api/v1/static/docs/big.md")
	require.ErrorContains(t, err, "exceeds 64 bytes")

	assert.Empty(t, etags.entries)
}

func TestFetch_ResponseAtLimitSucceeds(t *testing.T) {
	body := `{"api_response": "ok", "api_status_code": 200}`

	limit := maxResponseBytes
	maxResponseBytes = int64(len(body))
	t.Cleanup(func() { maxResponseBytes = limit })

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, body)
	})

	envelope, status, _, err := client.Fetch(context.Background(), "/")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `"ok"`, string(envelope.Response))
}

func TestNewClient_LeavesSuppliedHTTPClientUnchanged(t *testing.T) {
	supplied := &http.Client{Timeout: 5 * time.Second}

	client, err := NewClient("http://clue.test", WithHTTPClient(supplied))
	require.NoError(t, err)

	assert.Nil(t, supplied.Jar)
	assert.NotNil(t, client.httpClient.Jar)
	assert.Equal(t, 5*time.Second, client.httpClient.Timeout)
}

type contextSource struct {
	seen context.Context
}

func (s *contextSource) Token() (*oauth2.Token, error) {
	return s.TokenContext(context.Background())
}

func (s *contextSource) TokenContext(ctx context.Context) (*oauth2.Token, error) {
	s.seen = ctx
	return &oauth2.Token{AccessToken: "ctx.token"}, nil
}

type ctxKey struct{}

func TestFetch_TokenSourceReceivesRequestContext(t *testing.T) {
	source := &contextSource{}
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ctx.token", r.Header.Get("Authorization"))
		writeEnvelope(w, http.StatusOK, nil, "")
	}, WithTokenSource(source))

	ctx := context.WithValue(context.Background(), ctxKey{}, "marker")

	_, _, _, err := client.Fetch(ctx, "/")
	require.NoError(t, err)

	require.NotNil(t, source.seen)
	assert.Equal(t, "marker", source.seen.Value(ctxKey{}))
}
