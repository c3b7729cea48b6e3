package models

import "time"

type NotificationKind string

const (
	NotificationTransaction NotificationKind = "transaction"
	NotificationExperience  NotificationKind = "experience"
	NotificationLevelUp     NotificationKind = "level_up"
	NotificationTitle       NotificationKind = "title"
)

// Notification is a user-facing record; delivery (push, email) happens elsewhere.
type Notification struct {
	UUIDModel
	UserID     string           `gorm:"type:uuid;not null;index:idx_notification_user_created" json:"user_id"`
	Kind       NotificationKind `gorm:"type:varchar(16);not null" json:"kind"`
	Icon       string           `gorm:"type:varchar(64)" json:"icon"`
	Title      string           `gorm:"not null" json:"title"`
	ActionPath string           `json:"action_path"`
	ReadAt     *time.Time       `json:"read_at,omitempty"`
	CreatedAt  time.Time        `gorm:"autoCreateTime;index:idx_notification_user_created" json:"created_at"`
}
