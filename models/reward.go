package models

// Rewardable kinds a reward link can point at. The value is stored in
// Reward.RewardableType and resolved through a registry at grant time.
const (
	RewardableTitle = "title"
)

// SourceMission is the sourceable type of links owned by a mission.
const SourceMission = "mission"

// Reward is a polymorphic link from a source (a mission) to something grantable.
type Reward struct {
	UUIDModel
	SourceableType string `gorm:"type:varchar(32);not null;index:idx_reward_source" json:"sourceable_type"`
	SourceableID   string `gorm:"type:uuid;not null;index:idx_reward_source" json:"sourceable_id"`
	RewardableType string `gorm:"type:varchar(32);not null" json:"rewardable_type"`
	RewardableID   string `gorm:"type:uuid;not null" json:"rewardable_id"`
	Position       int    `gorm:"not null;default:0" json:"position"`

	Timestamps
}
