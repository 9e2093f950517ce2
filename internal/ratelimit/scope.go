package ratelimit

import (
	"fmt"
	"net"
	"strings"
)

// Scope is the dimension a limit is applied along.
type Scope int

const (
	ScopeIP Scope = iota
	ScopeUser
	ScopeEndpoint
)

func (s Scope) String() string {
	switch s {
	case ScopeIP:
		return "ip"
	case ScopeUser:
		return "user"
	case ScopeEndpoint:
		return "endpoint"
	default:
		return "unknown"
	}
}

func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ip":
		return ScopeIP, nil
	case "user":
		return ScopeUser, nil
	case "endpoint":
		return ScopeEndpoint, nil
	default:
		return 0, fmt.Errorf("unknown rate limit scope %q", s)
	}
}

// Request is the request identity the dispatcher hands to the limiter.
type Request struct {
	ForwardedFor string // raw X-Forwarded-For header
	RemoteAddr   string // direct peer, host:port
	Principal    string // authenticated user id, empty when anonymous
	Method       string
	Route        string // route template, e.g. /api/v1/jobs/:id
}

// Identity extracts the identity for this scope. An empty result means the
// caller cannot be identified and the request is not limited.
func (s Scope) Identity(r Request) string {
	switch s {
	case ScopeIP:
		return clientIP(r)
	case ScopeUser:
		return strings.TrimSpace(r.Principal)
	case ScopeEndpoint:
		if r.Method == "" || r.Route == "" {
			return ""
		}
		return strings.ToUpper(r.Method) + ":" + r.Route
	default:
		return ""
	}
}

// Key derives the counter key for (scope, identity).
func Key(scope Scope, identity string) string {
	return scope.String() + ":" + identity
}

func clientIP(r Request) string {
	if r.ForwardedFor != "" {
		first, _, _ := strings.Cut(r.ForwardedFor, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
