package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RunPending   = "pending"
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// GenerationRun is the durable record of one curriculum generation.
type GenerationRun struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Status       string         `gorm:"column:status;not null;index" json:"status"`
	Stage        string         `gorm:"column:stage" json:"stage,omitempty"`
	Model        string         `gorm:"column:model;not null;index" json:"model"`
	FallbackUsed bool           `gorm:"column:fallback_used;not null;default:false" json:"fallback_used"`
	Strategy     string         `gorm:"column:strategy;not null" json:"strategy"`
	Grade        int            `gorm:"column:grade;not null" json:"grade"`
	Subject      string         `gorm:"column:subject;not null;index" json:"subject"`
	Request      datatypes.JSON `gorm:"column:request" json:"request"`
	Result       datatypes.JSON `gorm:"column:result" json:"result,omitempty"`
	Document     string         `gorm:"column:document" json:"document,omitempty"`
	Warnings     datatypes.JSON `gorm:"column:warnings" json:"warnings,omitempty"`
	Error        string         `gorm:"column:error" json:"error,omitempty"`
	DurationMS   int64          `gorm:"column:duration_ms" json:"duration_ms,omitempty"`
	StartedAt    *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt   *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (GenerationRun) TableName() string { return "generation_run" }

// Terminal reports whether the run has finished either way.
func (r *GenerationRun) Terminal() bool {
	return r.Status == RunSucceeded || r.Status == RunFailed
}
