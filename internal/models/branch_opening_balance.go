package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BranchOpeningBalance holds the base cash figure of a branch. OpeningBalance
// is a cached fold of History and only moves through history appends.
type BranchOpeningBalance struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	Branch         string          `gorm:"size:100;not null" json:"branch"`
	BranchKey      string          `gorm:"size:100;not null;uniqueIndex" json:"-"`
	OpeningBalance decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"opening_balance"`
	// optimistic lock for appends
	Version   int64     `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	History []BalanceHistoryEntry `gorm:"foreignKey:BalanceID;constraint:OnDelete:CASCADE" json:"balance_history"`
}

type BalanceHistoryEntry struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	BalanceID uint            `gorm:"index;not null" json:"-"`
	Date      time.Time       `gorm:"not null" json:"date"`
	Amount    decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"amount"`
	Note      *string         `gorm:"size:255" json:"note,omitempty"`
	AddedBy   *string         `gorm:"size:100" json:"added_by,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
