package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aman-churiwal/edge-gateway/internal/models"
	"github.com/aman-churiwal/edge-gateway/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobListNamespace is the cache namespace every job listing is keyed under.
const JobListNamespace = "job-list"

var (
	ErrJobNotFound = errors.New("job not found")
	ErrInvalidJob  = errors.New("invalid job")
)

// JobDetailKey is the cache key of a single job response.
func JobDetailKey(id string) string {
	return "job-detail:" + id
}

// JobRepository is the persistence the job service needs.
type JobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	FindByID(ctx context.Context, id string) (*models.Job, error)
	List(ctx context.Context, filter repository.JobFilter) ([]models.Job, error)
	Update(ctx context.Context, id string, updates map[string]interface{}) error
	Delete(ctx context.Context, id string) error
}

// Invalidator drops cached responses after a write.
type Invalidator interface {
	Invalidate(ctx context.Context, keys ...string) error
	InvalidateNamespace(ctx context.Context, name string) error
}

// InvalidationError reports a write that succeeded while its cache
// invalidation did not. Cached reads may be stale until their ttl elapses.
type InvalidationError struct {
	JobID string
	Err   error
}

func (e *InvalidationError) Error() string {
	return fmt.Sprintf("job %s saved but cache invalidation failed: %v", e.JobID, e.Err)
}

func (e *InvalidationError) Unwrap() error {
	return e.Err
}

// JobUpdate carries the fields a caller may change. Nil fields are left alone.
type JobUpdate struct {
	Title    *string
	Company  *string
	Location *string
	Status   *string
}

type JobService struct {
	repo   JobRepository
	cache  Invalidator
	logger *zap.Logger
}

func NewJobService(repo JobRepository, cache Invalidator, logger *zap.Logger) *JobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobService{
		repo:   repo,
		cache:  cache,
		logger: logger,
	}
}

func (s *JobService) Create(ctx context.Context, job *models.Job) (*models.Job, error) {
	job.Title = strings.TrimSpace(job.Title)
	if job.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidJob)
	}
	if job.TenantID == "" {
		return nil, fmt.Errorf("%w: tenant_id is required", ErrInvalidJob)
	}
	if job.Status == "" {
		job.Status = models.JobStatusOpen
	}
	if err := validateStatus(job.Status); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	// A new job only changes listings.
	return job, s.invalidate(ctx, job.ID.String(), false)
}

func (s *JobService) Get(ctx context.Context, id string) (*models.Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrJobNotFound
	}

	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	if job == nil {
		return nil, ErrJobNotFound
	}

	return job, nil
}

func (s *JobService) List(ctx context.Context, filter repository.JobFilter) ([]models.Job, error) {
	if filter.Status != "" {
		if err := validateStatus(filter.Status); err != nil {
			return nil, err
		}
	}

	jobs, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	if jobs == nil {
		jobs = []models.Job{}
	}

	return jobs, nil
}

// Update applies u and invalidates the job's cached detail and all listings
// before returning. A non-nil job with an *InvalidationError means the write
// itself succeeded.
func (s *JobService) Update(ctx context.Context, id string, u JobUpdate) (*models.Job, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if u.Title != nil {
		title := strings.TrimSpace(*u.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title must not be empty", ErrInvalidJob)
		}
		updates["title"] = title
	}
	if u.Company != nil {
		updates["company"] = *u.Company
	}
	if u.Location != nil {
		updates["location"] = *u.Location
	}
	if u.Status != nil {
		if err := validateStatus(*u.Status); err != nil {
			return nil, err
		}
		updates["status"] = *u.Status
	}

	if len(updates) == 0 {
		return nil, fmt.Errorf("%w: no fields to update", ErrInvalidJob)
	}

	if err := s.repo.Update(ctx, id, updates); err != nil {
		return nil, fmt.Errorf("failed to update job %s: %w", id, err)
	}

	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	return job, s.invalidate(ctx, id, true)
}

func (s *JobService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete job %s: %w", id, err)
	}

	return s.invalidate(ctx, id, true)
}

func (s *JobService) invalidate(ctx context.Context, id string, detail bool) error {
	var errs []error

	if detail {
		if err := s.cache.Invalidate(ctx, JobDetailKey(id)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.cache.InvalidateNamespace(ctx, JobListNamespace); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return nil
	}

	err := &InvalidationError{JobID: id, Err: errors.Join(errs...)}
	s.logger.Warn("job cache invalidation failed", zap.String("job_id", id), zap.Error(err.Err))
	return err
}

func validateStatus(status string) error {
	switch status {
	case models.JobStatusOpen, models.JobStatusClosed:
		return nil
	default:
		return fmt.Errorf("%w: status must be %q or %q", ErrInvalidJob, models.JobStatusOpen, models.JobStatusClosed)
	}
}
