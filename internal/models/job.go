package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	JobStatusOpen   = "open"
	JobStatusClosed = "closed"
)

// Job is a tenant-owned listing served through the cached read endpoints.
type Job struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	TenantID  string    `gorm:"index;not null" json:"tenant_id"`
	Title     string    `gorm:"not null" json:"title"`
	Company   string    `json:"company"`
	Location  string    `gorm:"index" json:"location"`
	Status    string    `gorm:"index;default:'open'" json:"status"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

func (Job) TableName() string {
	return "jobs"
}
