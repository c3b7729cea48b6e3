package models

import (
	"time"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

type MissionFrequency string

const (
	FrequencyOnce   MissionFrequency = "once"
	FrequencyDaily  MissionFrequency = "daily"
	FrequencyWeekly MissionFrequency = "weekly"
)

type MissionStatus string

const (
	MissionAvailable   MissionStatus = "available"
	MissionUnavailable MissionStatus = "unavailable"
)

func (f MissionFrequency) Valid() bool {
	switch f {
	case FrequencyOnce, FrequencyDaily, FrequencyWeekly:
		return true
	}
	return false
}

func (s MissionStatus) Valid() bool {
	return s == MissionAvailable || s == MissionUnavailable
}

// Mission is catalog data managed by admin tooling; the mission engine only reads it.
type Mission struct {
	UUIDModel
	Title       string           `gorm:"not null" json:"title"`
	Slug        string           `gorm:"index" json:"slug"`
	Description string           `gorm:"type:text" json:"description"`
	Coins       int64            `gorm:"not null;default:0" json:"coins"`
	Experience  int64            `gorm:"not null;default:0" json:"experience"`
	Frequency   MissionFrequency `gorm:"type:varchar(16);not null;default:'once'" json:"frequency"`
	ForAll      bool             `gorm:"not null" json:"for_all"`
	Status      MissionStatus    `gorm:"type:varchar(16);not null;default:'available'" json:"status"`

	// Only consulted when ForAll is false.
	TargetUsers  []User               `gorm:"many2many:mission_user_targets" json:"-"`
	Requirements []MissionRequirement `gorm:"foreignKey:MissionID" json:"requirements,omitempty"`
	Rewards      []Reward             `gorm:"polymorphic:Sourceable;polymorphicValue:mission" json:"rewards,omitempty"`

	Timestamps
}

func (m *Mission) BeforeSave(tx *gorm.DB) error {
	if m.Slug == "" && m.Title != "" {
		m.Slug = slug.Make(m.Title)
	}
	return nil
}

func (m *Mission) Repeatable() bool {
	return m.Frequency != FrequencyOnce
}

func (m *Mission) Available() bool {
	return m.Status == MissionAvailable
}

// MissionRequirement is one measurable condition. StrategyKey picks the counting
// algorithm, Goal the count that must be reached.
type MissionRequirement struct {
	UUIDModel
	MissionID   string `gorm:"type:uuid;not null;index" json:"mission_id"`
	StrategyKey string `gorm:"type:varchar(64);not null;index" json:"strategy_key"`
	Goal        int64  `gorm:"not null" json:"goal"`
	Description string `json:"description"`
	Position    int    `gorm:"not null;default:0" json:"position"`
}

// UserMission records a user's completion of a mission. Cycle counts completions;
// the two *RewardedCycle markers let each reward task tell whether it already ran
// for the current cycle.
type UserMission struct {
	UUIDModel
	UserID             string     `gorm:"type:uuid;not null;uniqueIndex:idx_user_mission" json:"user_id"`
	MissionID          string     `gorm:"type:uuid;not null;uniqueIndex:idx_user_mission" json:"mission_id"`
	Completed          bool       `gorm:"not null;default:false" json:"completed"`
	LastCompletedAt    *time.Time `json:"last_completed_at,omitempty"`
	Cycle              int        `gorm:"not null;default:0" json:"cycle"`
	CoinsRewardedCycle int        `gorm:"not null;default:0" json:"-"`
	LinksRewardedCycle int        `gorm:"not null;default:0" json:"-"`
	RewardedAt         *time.Time `json:"rewarded_at,omitempty"`

	Timestamps
}

// Rewarded reports whether every reward step ran for the current cycle.
func (um *UserMission) Rewarded() bool {
	return um.Cycle > 0 && um.CoinsRewardedCycle >= um.Cycle && um.LinksRewardedCycle >= um.Cycle
}

// UserMissionProgress is the last computed progress of a user on one requirement.
// Always overwritten with a fresh count, never incremented.
type UserMissionProgress struct {
	UUIDModel
	UserID        string `gorm:"type:uuid;not null;uniqueIndex:idx_user_requirement" json:"user_id"`
	RequirementID string `gorm:"type:uuid;not null;uniqueIndex:idx_user_requirement" json:"requirement_id"`
	Progress      int64  `gorm:"not null;default:0" json:"progress"`
	Completed     bool   `gorm:"not null;default:false" json:"completed"`

	Timestamps
}
