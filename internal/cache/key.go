package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

type KeyOptions struct {
	// Ignore lists query parameters that never change the response,
	// e.g. cache busters and request ids.
	Ignore []string

	// Discriminator separates principal-specific responses. Leave empty for
	// responses that are identical for every caller.
	Discriminator string
}

// BuildKey derives a canonical cache key from a route name and its query.
// Parameter order does not matter: ?b=2&a=1 and ?a=1&b=2 share a key.
func BuildKey(name string, query url.Values, opts KeyOptions) string {
	filtered := make(url.Values, len(query))
	for k, vs := range query {
		if ignored(k, opts.Ignore) {
			continue
		}
		filtered[k] = vs
	}

	var b strings.Builder
	b.WriteString(name)
	if enc := filtered.Encode(); enc != "" {
		b.WriteByte('?')
		b.WriteString(enc)
	}
	if opts.Discriminator != "" {
		b.WriteByte('#')
		b.WriteString(opts.Discriminator)
	}
	return b.String()
}

// Discriminator hashes a credential so it can be part of a key without
// being stored.
func Discriminator(authorization string) string {
	authorization = strings.TrimSpace(authorization)
	if authorization == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(authorization))
	return hex.EncodeToString(sum[:8])
}

func ignored(param string, ignore []string) bool {
	for _, p := range ignore {
		if p == param {
			return true
		}
	}
	return false
}
