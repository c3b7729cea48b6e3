package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// UUIDModel gives a string UUID primary key filled in before insert.
type UUIDModel struct {
	ID string `gorm:"primaryKey;type:uuid" json:"id"`
}

func (m *UUIDModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// All lists every table the service owns, in migration order.
func All() []any {
	return []any{
		&User{},
		&Wallet{},
		&Transaction{},
		&Level{},
		&Title{},
		&UserTitle{},
		&Mission{},
		&MissionRequirement{},
		&Reward{},
		&UserMission{},
		&UserMissionProgress{},
		&Notification{},
		&Friendship{},
		&Task{},
	}
}
