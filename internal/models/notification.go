package models

import (
	"time"

	"gorm.io/datatypes"
)

// NotificationScenario names the ledger transition a fan-out is run for.
type NotificationScenario string

const (
	ScenarioPending      NotificationScenario = "pending"
	ScenarioAutoApproved NotificationScenario = "autoApproved"
	ScenarioApproved     NotificationScenario = "approved"
	ScenarioRejected     NotificationScenario = "rejected"
)

func (s NotificationScenario) Valid() bool {
	switch s {
	case ScenarioPending, ScenarioAutoApproved, ScenarioApproved, ScenarioRejected:
		return true
	}
	return false
}

const (
	NotificationTypeCashbookPending      = "cashbook_entry_pending"
	NotificationTypeCashbookAutoApproved = "cashbook_entry_auto_approved"
	NotificationTypeCashbookApproved     = "cashbook_entry_approved"
	NotificationTypeCashbookRejected     = "cashbook_entry_rejected"
)

const ReferenceTableCashTransactions = "cash_transactions"

type Notification struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	UserID         uint              `gorm:"index;not null" json:"user_id"`
	Type           string            `gorm:"size:50;index;not null" json:"type"`
	Title          string            `gorm:"size:200;not null" json:"title"`
	Message        string            `gorm:"size:1000;not null" json:"message"`
	ReferenceID    string            `gorm:"size:36;index" json:"reference_id"`
	ReferenceTable string            `gorm:"size:50" json:"reference_table"`
	IsViewed       bool              `gorm:"not null;default:false" json:"is_viewed"`
	ViewedAt       *time.Time        `json:"viewed_at"`
	Metadata       datatypes.JSONMap `json:"metadata"`
	CreatedAt      time.Time         `json:"created_at"`
}
