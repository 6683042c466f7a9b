package testhelpers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/justinas/alice"
)

// RecordedRequest is a request received by MockClueServer.
type RecordedRequest struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

// JSONBody unmarshals the recorded body into a generic value.
func (r RecordedRequest) JSONBody(t *testing.T) any {
	t.Helper()

	var body any
	if err := json.Unmarshal(r.Body, &body); err != nil {
		t.Fatalf("request body is not JSON: %v (%q)", err, r.Body)
	}
	return body
}

// MockClueServer provides a configurable mock Clue API server for testing.
// Every request is recorded before it is routed.
type MockClueServer struct {
	Server *httptest.Server

	mux *http.ServeMux

	mu       sync.Mutex
	requests []RecordedRequest
}

// SetupMockClueServer starts a mock Clue server. Routes are added with Handle
// or Respond; unrouted requests receive a 404. The server is closed when the
// test ends.
func SetupMockClueServer(t *testing.T) *MockClueServer {
	t.Helper()

	mock := &MockClueServer{
		mux: http.NewServeMux(),
	}

	// matches the limit the Clue server applies to request bodies
	requestLimiter := maxRequestSize(1 << 20)

	mock.Server = httptest.NewServer(alice.New(requestLimiter, mock.record).Then(mock.mux))
	t.Cleanup(mock.Server.Close)

	return mock
}

// URL is the origin of the server.
func (m *MockClueServer) URL() string {
	return m.Server.URL
}

// Handle registers handler for pattern, using http.ServeMux pattern syntax.
func (m *MockClueServer) Handle(pattern string, handler http.HandlerFunc) {
	m.mux.HandleFunc(pattern, handler)
}

// Respond registers a route that always answers with an envelope carrying
// response. Statuses outside the success range carry a generic error message.
func (m *MockClueServer) Respond(pattern string, status int, response any) {
	m.Handle(pattern, func(w http.ResponseWriter, r *http.Request) {
		message := ""
		if status >= 400 {
			message = http.StatusText(status)
		}
		WriteEnvelope(w, status, response, message)
	})
}

// Requests returns a copy of every request received so far.
func (m *MockClueServer) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	requests := make([]RecordedRequest, len(m.requests))
	copy(requests, m.requests)
	return requests
}

// LastRequest returns the most recent request, failing the test if there is
// none.
func (m *MockClueServer) LastRequest(t *testing.T) RecordedRequest {
	t.Helper()

	requests := m.Requests()
	if len(requests) == 0 {
		t.Fatal("mock Clue server received no requests")
	}
	return requests[len(requests)-1]
}

func (m *MockClueServer) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "could not read body", http.StatusRequestEntityTooLarge)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		m.mu.Lock()
		m.requests = append(m.requests, RecordedRequest{
			Method:   r.Method,
			Path:     r.URL.Path,
			RawQuery: r.URL.RawQuery,
			Header:   r.Header.Clone(),
			Body:     body,
		})
		m.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func maxRequestSize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

// envelope mirrors the wire shape of a Clue response.
type envelope struct {
	Response      any    `json:"api_response"`
	ErrorMessage  string `json:"api_error_message"`
	ServerVersion string `json:"api_server_version"`
	StatusCode    int    `json:"api_status_code"`
}

// WriteEnvelope writes a Clue response envelope with the given status.
func WriteEnvelope(w http.ResponseWriter, status int, response any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	data, err := json.Marshal(envelope{
		Response:      response,
		ErrorMessage:  message,
		ServerVersion: "test",
		StatusCode:    status,
	})
	if err != nil {
		// In test context, this should never happen with valid test data
		_, _ = fmt.Fprintf(w, "failed to marshal JSON: %v", err)
		return
	}
	_, _ = w.Write(data)
}

// WriteJSON is a helper function that writes a JSON response.
// It sets the Content-Type header and marshals the payload to JSON.
func WriteJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(payload)
	if err != nil {
		// In test context, this should never happen with valid test data
		http.Error(w, fmt.Sprintf("failed to marshal JSON: %v", err), http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(data)
}
