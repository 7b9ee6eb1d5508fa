package models

import (
	"time"

	"gorm.io/datatypes"
)

// Run lifecycle states. A run receives exactly one terminal status.
const (
	RunStatusCreated   = "created"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// CollectorRun is the execution record of one collector invocation.
// Counters and the bounded error list are the only outcome an external
// caller ever observes.
type CollectorRun struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	RunID  string `json:"run_id" gorm:"uniqueIndex;size:64;not null"`
	Source string `json:"source" gorm:"index;not null"`
	Status string `json:"status" gorm:"index;default:'created'"`

	CreatedCount int `json:"created_count"`
	SkippedCount int `json:"skipped_count"`
	ErroredCount int `json:"errored_count"`

	StartedAt      time.Time  `json:"started_at"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`

	// Bounded list of error messages (JSON array of strings).
	ErrorMessages datatypes.JSON `json:"error_messages,omitempty"`

	Success bool `json:"success"`
}

func (CollectorRun) TableName() string {
	return "collector_runs"
}
