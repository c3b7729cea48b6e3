package models

import (
	"time"

	"gorm.io/datatypes"
)

type TaskStatus string

const (
	// TaskBlocked waits for the previous task of its chain to finish.
	TaskBlocked TaskStatus = "blocked"
	TaskPending TaskStatus = "pending"
	TaskRunning TaskStatus = "running"
	TaskDone    TaskStatus = "done"
	// TaskDead exhausted its attempts.
	TaskDead TaskStatus = "dead"
)

// Task is a queued unit of deferred work.
type Task struct {
	UUIDModel
	Kind          string         `gorm:"type:varchar(64);not null;index" json:"kind"`
	Payload       datatypes.JSON `json:"payload"`
	Status        TaskStatus     `gorm:"type:varchar(16);not null;index:idx_task_ready" json:"status"`
	Attempts      int            `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts   int            `gorm:"not null;default:8" json:"max_attempts"`
	AvailableAt   time.Time      `gorm:"not null;index:idx_task_ready" json:"available_at"`
	LockedUntil   *time.Time     `json:"locked_until,omitempty"`
	LastError     string         `gorm:"type:text" json:"last_error,omitempty"`
	ChainID       string         `gorm:"type:uuid;index:idx_task_chain" json:"chain_id,omitempty"`
	ChainPosition int            `gorm:"not null;default:0;index:idx_task_chain" json:"chain_position"`

	Timestamps
}
