package cache

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildKey(t *testing.T) {
	ignore := []string{"request_id", "_"}

	tests := []struct {
		name  string
		query string
		opts  KeyOptions
		want  string
	}{
		{"no query", "", KeyOptions{}, "job-list:g0"},
		{"sorted params", "status=open&location=berlin", KeyOptions{}, "job-list:g0?location=berlin&status=open"},
		{"noise dropped", "_=171234&status=open&request_id=abc", KeyOptions{Ignore: ignore}, "job-list:g0?status=open"},
		{"only noise", "_=1", KeyOptions{Ignore: ignore}, "job-list:g0"},
		{"discriminator", "status=open", KeyOptions{Discriminator: "ab12"}, "job-list:g0?status=open#ab12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, BuildKey("job-list:g0", q, tt.opts))
		})
	}
}

func TestBuildKey_OrderInsensitive(t *testing.T) {
	a, _ := url.ParseQuery("page=2&status=open&company=acme")
	b, _ := url.ParseQuery("company=acme&page=2&status=open")
	assert.Equal(t, BuildKey("jobs", a, KeyOptions{}), BuildKey("jobs", b, KeyOptions{}))
}

func TestDiscriminator(t *testing.T) {
	assert.Empty(t, Discriminator(""))
	assert.Empty(t, Discriminator("   "))

	d := Discriminator("Bearer token-a")
	assert.Len(t, d, 16)
	assert.Equal(t, d, Discriminator("Bearer token-a"))
	assert.NotEqual(t, d, Discriminator("Bearer token-b"))
	assert.NotContains(t, d, "token")
}
