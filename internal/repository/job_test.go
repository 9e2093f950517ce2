package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderClause(t *testing.T) {
	tests := map[string]string{
		"":                       "created_at DESC",
		"created_at":             "created_at ASC",
		"-created_at":            "created_at DESC",
		"title":                  "title ASC",
		"-updated_at":            "updated_at DESC",
		"salary":                 "created_at DESC",
		"title; DROP TABLE jobs": "created_at DESC",
	}

	for in, want := range tests {
		assert.Equal(t, want, OrderClause(in), "sort=%q", in)
	}
}

func TestPage(t *testing.T) {
	limit, offset := Page(0, -5)
	assert.Equal(t, defaultPageSize, limit)
	assert.Equal(t, 0, offset)

	limit, offset = Page(500, 40)
	assert.Equal(t, maxPageSize, limit)
	assert.Equal(t, 40, offset)

	limit, _ = Page(10, 0)
	assert.Equal(t, 10, limit)
}
