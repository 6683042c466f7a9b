package storage

// Durable keys, relative to Prefix.
const (
	KeyAppToken     = "app_token"
	KeyRefreshToken = "refresh_token"
	KeyProvider     = "provider"

	KeyCompactJSONView = "compact_json_view"
	KeyFlattenJSONView = "flatten_json_view"
	KeyPageCount       = "page_count"
	KeyShowRaw         = "show_raw"
	KeyMaxTimeout      = "max_timeout"
)

// Session scopes, relative to Prefix.
const (
	ScopeCache = "cache."
	ScopeETag  = ScopeCache + "etag."
)
