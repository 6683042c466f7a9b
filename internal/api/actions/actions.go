// Package actions binds the /actions resource: listing the actions a Clue
// server offers and executing one against selectors.
package actions

import (
	"context"
	"net/url"
	"strconv"

	"github.com/cccs/clue-client/internal/api"
)

// URI is the base path of the resource.
func URI() string {
	return api.Join(api.URI(), "actions")
}

// ExecuteURI is the path that executes the action with the given id.
func ExecuteURI(id string) string {
	return api.Join(URI(), "execute", api.IDPath(id))
}

// ExecuteOptions are the optional query parameters of an execution.
type ExecuteOptions struct {
	// Timeout is the maximum time, in seconds, the server may spend on the
	// action. Zero leaves the server default.
	Timeout float64
}

func (o ExecuteOptions) query() url.Values {
	if o.Timeout <= 0 {
		return nil
	}
	return url.Values{"max_timeout": {strconv.FormatFloat(o.Timeout, 'f', -1, 64)}}
}

// Get lists the available actions, keyed by action id.
func Get(ctx context.Context, r api.Requester, opts ...api.Option) (api.Result[map[string]Definition], error) {
	return api.Get[map[string]Definition](ctx, r, URI(), opts...)
}

// Post executes action id over selectors. The params are the action's own
// parameters and are sent alongside the selectors.
//
// Exactly one selector is sent as "selector" with an empty "selectors" list,
// whether or not the caller passed it in a slice. Any other count is sent as
// "selectors" alone.
func Post(
	ctx context.Context,
	r api.Requester,
	id string,
	selectors []api.Selector,
	params map[string]any,
	options ExecuteOptions,
	opts ...api.Option,
) (api.Result[Result], error) {
	opts = append([]api.Option{api.WithQuery(options.query())}, opts...)
	return api.Post[Result](ctx, r, ExecuteURI(id), Body(selectors, params), opts...)
}

// Body builds the execution payload from params and selectors.
func Body(selectors []api.Selector, params map[string]any) map[string]any {
	body := make(map[string]any, len(params)+2)
	for k, v := range params {
		body[k] = v
	}

	if len(selectors) == 1 {
		body["selector"] = selectors[0]
		body["selectors"] = []api.Selector{}
		return body
	}

	if selectors == nil {
		selectors = []api.Selector{}
	}
	body["selectors"] = selectors

	return body
}
