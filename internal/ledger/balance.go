package ledger

import (
	"sort"
	"strings"
	"time"

	"github.com/Myenum2412/app.client.proultima-sub003/internal/models"

	"github.com/shopspring/decimal"
)

// Mode decides which verification states count toward a running balance.
// Rejected rows never count.
type Mode string

const (
	// approved and auto-approved rows only
	ModeConfirmed Mode = "confirmed"
	// confirmed rows plus those still pending
	ModeProvisional Mode = "provisional"
)

func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "confirmed", "approved":
		return ModeConfirmed, true
	case "provisional", "pending":
		return ModeProvisional, true
	}
	return "", false
}

func (m Mode) includes(status models.VerificationStatus) bool {
	switch status {
	case models.VerificationApproved, models.VerificationAutoApproved:
		return true
	case models.VerificationPending:
		return m == ModeProvisional
	}
	return false
}

type Line struct {
	TransactionID   string                    `json:"transaction_id"`
	VoucherNo       string                    `json:"voucher_no"`
	TransactionDate time.Time                 `json:"transaction_date"`
	Description     string                    `json:"description"`
	CashIn          decimal.Decimal           `json:"cash_in"`
	CashOut         decimal.Decimal           `json:"cash_out"`
	Status          models.VerificationStatus `json:"verification_status"`
	Balance         decimal.Decimal           `json:"balance"`
}

type RunningBalance struct {
	Branch         string          `json:"branch"`
	Mode           Mode            `json:"mode"`
	AsOf           *time.Time      `json:"as_of,omitempty"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Balance        decimal.Decimal `json:"balance"`
	Lines          []Line          `json:"lines"`
}

// Fold applies +cashIn-cashOut cumulatively to opening, in
// (transaction_date, created_at, id) order. The input slice is not
// modified and its order does not matter. A non-nil asOf drops rows dated
// after that day.
func Fold(opening decimal.Decimal, txs []models.CashTransaction, mode Mode, asOf *time.Time) (decimal.Decimal, []Line) {
	sorted := make([]models.CashTransaction, 0, len(txs))
	for _, tx := range txs {
		if !mode.includes(tx.Status()) {
			continue
		}
		if asOf != nil && models.DateOf(tx.TransactionDate).After(models.DateOf(*asOf)) {
			continue
		}
		sorted = append(sorted, tx)
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.TransactionDate.Equal(b.TransactionDate) {
			return a.TransactionDate.Before(b.TransactionDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	balance := opening
	lines := make([]Line, 0, len(sorted))
	for _, tx := range sorted {
		balance = balance.Add(tx.Net())
		lines = append(lines, Line{
			TransactionID:   tx.ID,
			VoucherNo:       tx.VoucherNo,
			TransactionDate: tx.TransactionDate,
			Description:     tx.Description,
			CashIn:          tx.CashIn,
			CashOut:         tx.CashOut,
			Status:          tx.Status(),
			Balance:         balance,
		})
	}
	return balance, lines
}
