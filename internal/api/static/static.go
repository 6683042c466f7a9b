// Package static binds the /static resource, which serves the documentation
// shipped with a Clue server.
package static

import (
	"context"
	"net/url"

	"github.com/cccs/clue-client/internal/api"
)

func URI() string {
	return api.Join(api.URI(), "static")
}

func DocsURI() string {
	return api.Join(URI(), "docs")
}

func DocURI(file string) string {
	return api.Join(DocsURI(), file)
}

// Docs lists the available documentation files, optionally narrowed by
// filter.
func Docs(ctx context.Context, r api.Requester, filter string, opts ...api.Option) (api.Result[[]string], error) {
	var query url.Values
	if filter != "" {
		query = url.Values{"filter": {filter}}
	}

	opts = append([]api.Option{api.WithQuery(query)}, opts...)
	return api.Get[[]string](ctx, r, DocsURI(), opts...)
}

// Doc returns the markdown content of one documentation file.
func Doc(ctx context.Context, r api.Requester, file string, opts ...api.Option) (api.Result[string], error) {
	return api.Get[string](ctx, r, DocURI(file), opts...)
}
