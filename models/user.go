package models

// User is the local view of an authenticated account. Identity itself lives in the
// auth service; this row carries what missions and progression need.
type User struct {
	UUIDModel
	Username   string `gorm:"index;not null" json:"username"`
	Experience int64  `gorm:"not null;default:0" json:"experience"`
	// Level is the highest level whose bonus has been paid out, not a cache of
	// the level derived from Experience.
	Level int `gorm:"not null;default:1" json:"level"`

	Wallet *Wallet `gorm:"foreignKey:UserID" json:"wallet,omitempty"`

	Timestamps
}

const (
	FriendshipPending  = "pending"
	FriendshipAccepted = "accepted"
)

// Friendship is owned by the social service; missions only count accepted rows.
type Friendship struct {
	UUIDModel
	RequesterID string `gorm:"type:uuid;not null;uniqueIndex:idx_friendship_pair" json:"requester_id"`
	AddresseeID string `gorm:"type:uuid;not null;uniqueIndex:idx_friendship_pair;index" json:"addressee_id"`
	Status      string `gorm:"type:varchar(16);not null;default:'pending'" json:"status"`

	Timestamps
}
