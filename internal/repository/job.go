package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/aman-churiwal/edge-gateway/internal/models"
	"github.com/aman-churiwal/edge-gateway/internal/storage"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// JobFilter narrows a listing. Empty fields match everything.
type JobFilter struct {
	TenantID string
	Status   string
	Location string
	Company  string
	Sort     string // created_at, -created_at, title, -title
	Limit    int
	Offset   int
}

type JobRepository struct {
	db *storage.Postgres
}

func NewJobRepository(db *storage.Postgres) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	return r.db.DB.WithContext(ctx).Create(job).Error
}

// FindByID returns nil, nil when the job does not exist.
func (r *JobRepository) FindByID(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	err := r.db.DB.WithContext(ctx).
		Where("id = ?", id).
		First(&job).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	return &job, err
}

func (r *JobRepository) List(ctx context.Context, filter JobFilter) ([]models.Job, error) {
	query := r.db.DB.WithContext(ctx).Model(&models.Job{})

	if filter.TenantID != "" {
		query = query.Where("tenant_id = ?", filter.TenantID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Location != "" {
		query = query.Where("location = ?", filter.Location)
	}
	if filter.Company != "" {
		query = query.Where("company = ?", filter.Company)
	}

	limit, offset := Page(filter.Limit, filter.Offset)

	var jobs []models.Job
	err := query.
		Order(OrderClause(filter.Sort)).
		Limit(limit).
		Offset(offset).
		Find(&jobs).Error

	return jobs, err
}

func (r *JobRepository) Update(ctx context.Context, id string, updates map[string]interface{}) error {
	return r.db.DB.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *JobRepository) Delete(ctx context.Context, id string) error {
	return r.db.DB.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.Job{}).Error
}

// OrderClause maps a sort parameter onto a whitelisted ORDER BY clause.
func OrderClause(sort string) string {
	desc := strings.HasPrefix(sort, "-")
	column := strings.TrimPrefix(sort, "-")

	switch column {
	case "created_at", "title", "updated_at":
	default:
		return "created_at DESC"
	}

	if desc {
		return column + " DESC"
	}
	return column + " ASC"
}

// Page clamps limit and offset to sane values.
func Page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
