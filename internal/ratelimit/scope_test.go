package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScope(t *testing.T) {
	for _, s := range []Scope{ScopeIP, ScopeUser, ScopeEndpoint} {
		got, err := ParseScope(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	got, err := ParseScope(" USER ")
	require.NoError(t, err)
	assert.Equal(t, ScopeUser, got)

	_, err = ParseScope("tenant")
	assert.Error(t, err)
}

func TestScopeIdentity(t *testing.T) {
	tests := []struct {
		name  string
		scope Scope
		req   Request
		want  string
	}{
		{"ip from forwarded-for", ScopeIP, Request{ForwardedFor: "203.0.113.9, 10.0.0.1", RemoteAddr: "10.0.0.1:443"}, "203.0.113.9"},
		{"ip from peer", ScopeIP, Request{RemoteAddr: "10.0.0.7:51000"}, "10.0.0.7"},
		{"ip from bare peer", ScopeIP, Request{RemoteAddr: "10.0.0.7"}, "10.0.0.7"},
		{"ipv6 peer", ScopeIP, Request{RemoteAddr: "[2001:db8::1]:8080"}, "2001:db8::1"},
		{"unknown ip", ScopeIP, Request{}, ""},
		{"user", ScopeUser, Request{Principal: "u-42"}, "u-42"},
		{"anonymous user", ScopeUser, Request{RemoteAddr: "10.0.0.7:1"}, ""},
		{"endpoint", ScopeEndpoint, Request{Method: "post", Route: "/api/v1/jobs"}, "POST:/api/v1/jobs"},
		{"unmatched route", ScopeEndpoint, Request{Method: "GET"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.scope.Identity(tt.req))
		})
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "ip:10.0.0.1", Key(ScopeIP, "10.0.0.1"))
	assert.NotEqual(t, Key(ScopeIP, "x"), Key(ScopeUser, "x"))
}
