package models

// Level is one row of the threshold table: reaching Experience unlocks the level
// and pays Coins once.
type Level struct {
	Level      int   `gorm:"primaryKey;autoIncrement:false" json:"level"`
	Experience int64 `gorm:"not null;uniqueIndex" json:"experience"`
	Coins      int64 `gorm:"not null;default:0" json:"coins"`
}
