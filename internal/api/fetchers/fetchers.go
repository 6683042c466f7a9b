// Package fetchers binds the /fetchers resource. A fetcher retrieves a single
// rendered artifact (an image, a graph, a report) for one selector.
package fetchers

import (
	"context"
	"encoding/json"

	"github.com/cccs/clue-client/internal/api"
)

// URI is the base path of the resource.
func URI() string {
	return api.Join(api.URI(), "fetchers")
}

// FetcherURI is the path of the fetcher with the given id.
func FetcherURI(id string) string {
	return api.Join(URI(), api.IDPath(id))
}

// Definition describes a fetcher a plugin exposes.
type Definition struct {
	ID             string            `json:"id"`
	Classification string            `json:"classification"`
	Description    string            `json:"description"`
	Format         string            `json:"format"`
	SupportedTypes map[string]string `json:"supported_types"`
}

// Result is the outcome of running a fetcher.
type Result struct {
	Outcome string          `json:"outcome"`
	Format  string          `json:"format"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Link    string          `json:"link,omitempty"`
}

// Succeeded reports whether the fetcher produced data.
func (r Result) Succeeded() bool {
	return r.Outcome == "success"
}

// Get lists the available fetchers, keyed by fetcher id.
func Get(ctx context.Context, r api.Requester, opts ...api.Option) (api.Result[map[string]Definition], error) {
	return api.Get[map[string]Definition](ctx, r, URI(), opts...)
}

// Post runs fetcher id against selector.
func Post(ctx context.Context, r api.Requester, id string, selector api.Selector, opts ...api.Option) (api.Result[Result], error) {
	return api.Post[Result](ctx, r, FetcherURI(id), selector, opts...)
}
