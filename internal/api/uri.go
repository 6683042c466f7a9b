package api

import (
	"net/url"
	"strings"
)

// apiVersion is the version segment of every API path. Override at build time
// with:
//
//	-ldflags "-X github.com/cccs/clue-client/internal/api.apiVersion=v2"
var apiVersion = "v1"

// URI is the root of the versioned API, e.g. /api/v1.
func URI() string {
	return Join("/api", apiVersion)
}

// Join composes path segments with a single slash between each. Empty
// segments are skipped.
func Join(parts ...string) string {
	var b strings.Builder

	for _, part := range parts {
		if part == "" {
			continue
		}

		if b.Len() == 0 {
			b.WriteString(strings.TrimRight(part, "/"))
			continue
		}

		b.WriteString("/")
		b.WriteString(strings.Trim(part, "/"))
	}

	return b.String()
}

// JoinQuery appends an encoded query to the path. A nil or empty query leaves
// the path untouched so that no dangling "?" appears.
func JoinQuery(path string, query url.Values) string {
	if len(query) == 0 {
		return path
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	return path + sep + query.Encode()
}

// IDPath maps a dotted plugin identifier onto nested path segments. Only the
// first separator is replaced: "a.b.c" becomes "a/b.c".
func IDPath(id string) string {
	return strings.Replace(id, ".", "/", 1)
}
