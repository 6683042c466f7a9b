package fetchers_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/cccs/clue-client/internal/api"
	"github.com/cccs/clue-client/internal/api/fetchers"
	"github.com/cccs/clue-client/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURI(t *testing.T) {
	assert.Equal(t, "/api/v1/fetchers", fetchers.URI())
	assert.Equal(t, "/api/v1/fetchers/plugin/graph", fetchers.FetcherURI("plugin.graph"))
}

func TestGetAndPost(t *testing.T) {
	mock := testhelpers.SetupMockClueServer(t)
	mock.Respond("GET /api/v1/fetchers", http.StatusOK, map[string]any{
		"plugin.graph": map[string]any{"id": "graph", "format": "graph", "description": "Graph of relations"},
	})
	mock.Respond("POST /api/v1/fetchers/plugin/graph", http.StatusOK, map[string]any{
		"outcome": "success",
		"format":  "graph",
		"data":    map[string]any{"nodes": []any{}},
	})

	client, err := api.NewClient(mock.URL())
	require.NoError(t, err)
	ctx := context.Background()

	list, err := fetchers.Get(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, "graph", list.Data["plugin.graph"].Format)

	selector := api.Selector{Type: "ip", Value: "10.0.0.1"}
	result, err := fetchers.Post(ctx, client, "plugin.graph", selector)
	require.NoError(t, err)

	assert.True(t, result.Data.Succeeded())
	assert.JSONEq(t, `{"nodes": []}`, string(result.Data.Data))

	request := mock.LastRequest(t)
	assert.Equal(t, http.MethodPost, request.Method)
	assert.Empty(t, request.RawQuery)
	assert.JSONEq(t, `{"type": "ip", "value": "10.0.0.1"}`, string(request.Body))
}

func TestPost_FetcherError(t *testing.T) {
	mock := testhelpers.SetupMockClueServer(t)
	mock.Respond("POST /api/v1/fetchers/plugin/graph", http.StatusOK, map[string]any{
		"outcome": "failure",
		"format":  "error",
		"error":   "upstream unavailable",
	})

	client, err := api.NewClient(mock.URL())
	require.NoError(t, err)

	result, err := fetchers.Post(context.Background(), client, "plugin.graph", api.Selector{Type: "ip", Value: "10.0.0.1"})
	require.NoError(t, err)

	assert.False(t, result.Failed())
	assert.False(t, result.Data.Succeeded())
	assert.Equal(t, "upstream unavailable", result.Data.Error)
}
