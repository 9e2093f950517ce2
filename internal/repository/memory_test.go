package repository

import (
	"context"
	"testing"
	"time"

	"github.com/aman-churiwal/edge-gateway/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryJobRepository_CRUD(t *testing.T) {
	repo := NewMemoryJobRepository()
	ctx := context.Background()

	job := &models.Job{TenantID: "acme", Title: "Backend Engineer", Status: models.JobStatusOpen}
	require.NoError(t, repo.Create(ctx, job))
	require.NotEmpty(t, job.ID)

	got, err := repo.FindByID(ctx, job.ID.String())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Backend Engineer", got.Title)

	require.NoError(t, repo.Update(ctx, job.ID.String(), map[string]interface{}{"title": "Staff Engineer"}))
	got, _ = repo.FindByID(ctx, job.ID.String())
	assert.Equal(t, "Staff Engineer", got.Title)

	require.NoError(t, repo.Delete(ctx, job.ID.String()))
	got, err = repo.FindByID(ctx, job.ID.String())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryJobRepository_ListFiltersSortsAndPages(t *testing.T) {
	repo := NewMemoryJobRepository()
	base := time.Unix(1_700_000_000, 0).UTC()
	tick := 0
	repo.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	ctx := context.Background()

	for _, j := range []models.Job{
		{TenantID: "acme", Title: "C", Status: "open", Location: "berlin"},
		{TenantID: "acme", Title: "A", Status: "closed", Location: "berlin"},
		{TenantID: "acme", Title: "B", Status: "open", Location: "remote"},
		{TenantID: "globex", Title: "D", Status: "open"},
	} {
		require.NoError(t, repo.Create(ctx, &j))
	}

	jobs, err := repo.List(ctx, JobFilter{TenantID: "acme"})
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, []string{"B", "A", "C"}, titles(jobs), "newest first by default")

	jobs, _ = repo.List(ctx, JobFilter{TenantID: "acme", Sort: "title"})
	assert.Equal(t, []string{"A", "B", "C"}, titles(jobs))

	jobs, _ = repo.List(ctx, JobFilter{TenantID: "acme", Status: "open", Location: "berlin"})
	assert.Equal(t, []string{"C"}, titles(jobs))

	jobs, _ = repo.List(ctx, JobFilter{Sort: "title", Limit: 2, Offset: 1})
	assert.Equal(t, []string{"B", "C"}, titles(jobs))

	jobs, _ = repo.List(ctx, JobFilter{Offset: 10})
	assert.Empty(t, jobs)
}

func titles(jobs []models.Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.Title
	}
	return out
}
