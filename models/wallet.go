// models/wallet.go
package models

import (
	"time"
)

// Wallet holds a user's coin balance. One per user; never negative.
// Only the wallet ledger service writes to it.
type Wallet struct {
	UUIDModel
	UserID  string `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	Balance int64  `gorm:"not null;default:0;check:balance >= 0" json:"balance"`

	Timestamps
}

type TransactionType string

const (
	TransactionAddition    TransactionType = "addition"
	TransactionSubtraction TransactionType = "subtraction"
)

// Transaction is one append-only ledger row. Amount is signed: additions are
// positive, subtractions negative, so SUM(amount) always equals the balance.
type Transaction struct {
	UUIDModel
	UserID      string          `gorm:"type:uuid;not null;index" json:"user_id"`
	Amount      int64           `gorm:"not null" json:"amount"`
	Type        TransactionType `gorm:"type:varchar(16);not null" json:"type"`
	Description string          `gorm:"type:text" json:"description"`
	CreatedAt   time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}
