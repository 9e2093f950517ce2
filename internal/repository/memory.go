package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aman-churiwal/edge-gateway/internal/models"
	"github.com/google/uuid"
)

// MemoryJobRepository keeps jobs in process. It backs the gateway when no
// database is configured and is handy in tests.
type MemoryJobRepository struct {
	mu   sync.RWMutex
	jobs map[string]models.Job
	now  func() time.Time
}

func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{
		jobs: make(map[string]models.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryJobRepository) Create(_ context.Context, job *models.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	now := r.now()
	job.CreatedAt = now
	job.UpdatedAt = now
	r.jobs[job.ID.String()] = *job
	return nil
}

func (r *MemoryJobRepository) FindByID(_ context.Context, id string) (*models.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, nil
	}
	return &job, nil
}

func (r *MemoryJobRepository) List(_ context.Context, filter JobFilter) ([]models.Job, error) {
	r.mu.RLock()
	jobs := make([]models.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		if matches(job, filter) {
			jobs = append(jobs, job)
		}
	}
	r.mu.RUnlock()

	column, desc := strings.CutSuffix(OrderClause(filter.Sort), " DESC")
	column = strings.TrimSuffix(column, " ASC")
	sort.SliceStable(jobs, func(i, j int) bool {
		if desc {
			return lessBy(column, jobs[j], jobs[i])
		}
		return lessBy(column, jobs[i], jobs[j])
	})

	limit, offset := Page(filter.Limit, filter.Offset)
	if offset >= len(jobs) {
		return []models.Job{}, nil
	}
	jobs = jobs[offset:]
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (r *MemoryJobRepository) Update(_ context.Context, id string, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil
	}

	for field, value := range updates {
		v, _ := value.(string)
		switch field {
		case "title":
			job.Title = v
		case "company":
			job.Company = v
		case "location":
			job.Location = v
		case "status":
			job.Status = v
		}
	}
	job.UpdatedAt = r.now()
	r.jobs[id] = job
	return nil
}

func (r *MemoryJobRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.jobs, id)
	return nil
}

func matches(job models.Job, f JobFilter) bool {
	return (f.TenantID == "" || job.TenantID == f.TenantID) &&
		(f.Status == "" || job.Status == f.Status) &&
		(f.Location == "" || job.Location == f.Location) &&
		(f.Company == "" || job.Company == f.Company)
}

func lessBy(column string, a, b models.Job) bool {
	switch column {
	case "title":
		return a.Title < b.Title
	case "updated_at":
		return a.UpdatedAt.Before(b.UpdatedAt)
	default:
		return a.CreatedAt.Before(b.CreatedAt)
	}
}
