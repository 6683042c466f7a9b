// Package lookup binds the /lookup resource: selector type discovery and
// enrichment.
package lookup

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/cccs/clue-client/internal/api"
)

// URI is the base path of the resource.
func URI() string {
	return api.Join(api.URI(), "lookup")
}

func TypesURI() string {
	return api.Join(URI(), "types")
}

func TypesDetectionURI() string {
	return api.Join(URI(), "types_detection")
}

func EnrichURI() string {
	return api.Join(URI(), "enrich")
}

// EnrichSelectorURI addresses the enrichment of a single selector. The value
// is escaped as a single path segment.
func EnrichSelectorURI(selector api.Selector) string {
	return api.Join(EnrichURI(), url.PathEscape(selector.Type), url.PathEscape(selector.Value))
}

// EnrichOptions are the optional query parameters of an enrichment. Zero
// values are left out of the query.
type EnrichOptions struct {
	// Sources restricts enrichment to the named plugins.
	Sources []string

	// Classification is the maximum classification of returned results.
	Classification string

	// Timeout is the maximum time, in seconds, the server waits on each
	// plugin.
	Timeout float64

	IncludeRaw bool
	NoCache    bool
}

// Query encodes the options that are set.
func (o EnrichOptions) Query() url.Values {
	query := url.Values{}

	if len(o.Sources) > 0 {
		query.Set("sources", strings.Join(o.Sources, "|"))
	}
	if o.Classification != "" {
		query.Set("classification", o.Classification)
	}
	if o.Timeout > 0 {
		query.Set("max_timeout", strconv.FormatFloat(o.Timeout, 'f', -1, 64))
	}
	if o.IncludeRaw {
		query.Set("include_raw", "true")
	}
	if o.NoCache {
		query.Set("no_cache", "true")
	}

	return query
}

// Entry is a single finding a plugin returned for a selector.
type Entry struct {
	Classification string          `json:"classification"`
	Count          int             `json:"count"`
	Link           string          `json:"link,omitempty"`
	Annotations    json.RawMessage `json:"annotations,omitempty"`
	RawData        json.RawMessage `json:"raw_data,omitempty"`
}

// QueryResult is the answer of one plugin for one selector.
type QueryResult struct {
	Type              string  `json:"type"`
	Value             string  `json:"value"`
	Source            string  `json:"source"`
	Error             string  `json:"error,omitempty"`
	Items             []Entry `json:"items"`
	Maintainer        string  `json:"maintainer,omitempty"`
	DatahubLink       string  `json:"datahub_link,omitempty"`
	DocumentationLink string  `json:"documentation_link,omitempty"`
	Latency           float64 `json:"latency"`
}

// Failed reports whether the plugin answered with an error.
func (q QueryResult) Failed() bool {
	return q.Error != ""
}

// SourceResults maps plugin name to its result for a selector.
type SourceResults map[string]QueryResult

// BulkEnrichResponse maps selector type, then value, to the per-source
// results.
type BulkEnrichResponse map[string]map[string]SourceResults

// Types returns, per plugin, the selector types it supports and their
// classification.
func Types(ctx context.Context, r api.Requester, opts ...api.Option) (api.Result[map[string]map[string]string], error) {
	return api.Get[map[string]map[string]string](ctx, r, TypesURI(), opts...)
}

// TypesDetection returns the detection pattern of each selector type.
func TypesDetection(ctx context.Context, r api.Requester, opts ...api.Option) (api.Result[map[string]string], error) {
	return api.Get[map[string]string](ctx, r, TypesDetectionURI(), opts...)
}

// Enrich submits selectors to every matching plugin. Duplicate selectors are
// sent as given.
func Enrich(ctx context.Context, r api.Requester, selectors []api.Selector, options EnrichOptions, opts ...api.Option) (api.Result[BulkEnrichResponse], error) {
	if selectors == nil {
		selectors = []api.Selector{}
	}

	opts = append([]api.Option{api.WithQuery(options.Query())}, opts...)
	return api.Post[BulkEnrichResponse](ctx, r, EnrichURI(), selectors, opts...)
}

// EnrichSelector enriches a single selector. Only the source, classification,
// timeout, raw and cache options apply.
func EnrichSelector(ctx context.Context, r api.Requester, selector api.Selector, options EnrichOptions, opts ...api.Option) (api.Result[SourceResults], error) {
	if options.Classification == "" {
		options.Classification = selector.Classification
	}

	opts = append([]api.Option{api.WithQuery(options.Query())}, opts...)
	return api.Get[SourceResults](ctx, r, EnrichSelectorURI(selector), opts...)
}
