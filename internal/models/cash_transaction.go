package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type VerificationStatus string

const (
	VerificationPending      VerificationStatus = "pending"
	VerificationApproved     VerificationStatus = "approved"
	VerificationRejected     VerificationStatus = "rejected"
	VerificationAutoApproved VerificationStatus = "auto_approved"
)

type BillStatus string

const (
	BillPaid      BillStatus = "Paid"
	BillPending   BillStatus = "Pending"
	BillCancelled BillStatus = "Cancelled"
	BillYetToPay  BillStatus = "Yet to pay"
	BillRefund    BillStatus = "Refund"
)

func (b BillStatus) Valid() bool {
	switch b {
	case BillPaid, BillPending, BillCancelled, BillYetToPay, BillRefund:
		return true
	}
	return false
}

// CashTransaction is one cash movement in a branch cashbook.
type CashTransaction struct {
	ID        string `gorm:"type:varchar(36);primaryKey" json:"id"`
	VoucherNo string `gorm:"size:32;not null;uniqueIndex:idx_cash_tx_voucher,priority:3" json:"voucher_no"`
	// calendar year the voucher sequence belongs to
	VoucherYear int    `gorm:"not null;uniqueIndex:idx_cash_tx_voucher,priority:2" json:"voucher_year"`
	Branch      string `gorm:"size:100;not null" json:"branch"`
	BranchKey   string `gorm:"size:100;not null;index;uniqueIndex:idx_cash_tx_voucher,priority:1" json:"-"`
	StaffID     uint   `gorm:"index;not null" json:"staff_id"`

	TransactionDate time.Time       `gorm:"index;not null" json:"transaction_date"`
	CashIn          decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"cash_in"`
	CashOut         decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"cash_out"`
	Description     string          `gorm:"size:255" json:"description"`
	BillStatus      BillStatus      `gorm:"size:20;not null" json:"bill_status"`

	VerificationStatus VerificationStatus           `gorm:"size:20;index;not null" json:"verification_status"`
	AttachmentURLs     datatypes.JSONSlice[string] `json:"attachment_urls"`

	VerifiedBy        *uint      `json:"verified_by"`
	VerifiedAt        *time.Time `json:"verified_at"`
	VerificationNotes *string    `gorm:"size:500" json:"verification_notes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *CashTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.BranchKey = BranchKey(t.Branch)
	return nil
}

// Status treats an empty legacy status as auto-approved.
func (t CashTransaction) Status() VerificationStatus {
	if t.VerificationStatus == "" {
		return VerificationAutoApproved
	}
	return t.VerificationStatus
}

// Net is cashIn - cashOut.
func (t CashTransaction) Net() decimal.Decimal {
	return t.CashIn.Sub(t.CashOut)
}

func (t CashTransaction) IsIncome() bool {
	return t.CashIn.IsPositive()
}

// Amount is whichever side of the pair is set.
func (t CashTransaction) Amount() decimal.Decimal {
	if t.IsIncome() {
		return t.CashIn
	}
	return t.CashOut
}

func (t CashTransaction) KindLabel() string {
	if t.IsIncome() {
		return "Income"
	}
	return "Expense"
}

func (t CashTransaction) HasProof() bool {
	return len(t.AttachmentURLs) > 0
}

// BranchKey normalizes a branch name for case-insensitive matching.
func BranchKey(branch string) string {
	return strings.ToLower(strings.TrimSpace(branch))
}
