package models

import (
	"time"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// Title: cosmetic unlock shown next to a username
type Title struct {
	UUIDModel
	Name        string `gorm:"not null" json:"name"`
	Slug        string `gorm:"uniqueIndex;not null" json:"slug"`
	Description string `json:"description"`
	Icon        string `gorm:"type:text" json:"icon"`
	Rarity      string `gorm:"type:varchar(16);default:'common'" json:"rarity"` // common, rare, epic, legendary

	Timestamps
}

func (t *Title) BeforeSave(tx *gorm.DB) error {
	if t.Slug == "" && t.Name != "" {
		t.Slug = slug.Make(t.Name)
	}
	return nil
}

// UserTitle: awarded instance, one per (user, title)
type UserTitle struct {
	UUIDModel
	UserID    string    `gorm:"type:uuid;not null;uniqueIndex:idx_user_title" json:"user_id"`
	TitleID   string    `gorm:"type:uuid;not null;uniqueIndex:idx_user_title" json:"title_id"`
	Title     *Title    `gorm:"foreignKey:TitleID" json:"title,omitempty"`
	AwardedAt time.Time `gorm:"autoCreateTime" json:"awarded_at"`
}
