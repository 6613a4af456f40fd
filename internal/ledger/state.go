package ledger

import (
	"time"

	"github.com/Myenum2412/app.client.proultima-sub003/internal/apperr"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/models"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/voucher"

	"github.com/shopspring/decimal"
)

// ErrNotPending is matched with errors.Is on approve/reject failures.
var ErrNotPending = apperr.ErrNotPending

// Draft is a validated submission that has no voucher yet.
type Draft struct {
	Branch      string
	StaffID     uint
	Date        time.Time
	CashIn      decimal.Decimal
	CashOut     decimal.Decimal
	Description string
	BillStatus  models.BillStatus
	Attachments []string
}

func (d Draft) Kind() voucher.Kind {
	if d.CashIn.IsPositive() {
		return voucher.KindInflow
	}
	return voucher.KindOutflow
}

func (d Draft) Amount() decimal.Decimal {
	if d.CashIn.IsPositive() {
		return d.CashIn
	}
	return d.CashOut
}

// Submit turns the draft into a new row, either awaiting verification or
// already settled by policy.
func (d Draft) Submit(v voucher.Voucher, autoApprove bool) models.CashTransaction {
	status := models.VerificationPending
	if autoApprove {
		status = models.VerificationAutoApproved
	}

	attachments := d.Attachments
	if attachments == nil {
		attachments = []string{}
	}

	return models.CashTransaction{
		VoucherNo:          v.No,
		VoucherYear:        v.Year,
		Branch:             d.Branch,
		StaffID:            d.StaffID,
		TransactionDate:    d.Date,
		CashIn:             d.CashIn,
		CashOut:            d.CashOut,
		Description:        d.Description,
		BillStatus:         d.BillStatus,
		VerificationStatus: status,
		AttachmentURLs:     attachments,
	}
}

// Verdict is what a verifier records when settling a pending row.
type Verdict struct {
	VerifierID uint
	At         time.Time
	Notes      *string
}

// Pending is a transaction known to be awaiting verification. Approve and
// Reject are only reachable through it.
type Pending struct {
	tx models.CashTransaction
}

func AsPending(tx models.CashTransaction) (Pending, error) {
	if tx.Status() != models.VerificationPending {
		return Pending{}, apperr.Conflict(ErrNotPending, "transaction %s is %s, not pending", tx.VoucherNo, tx.Status())
	}
	return Pending{tx: tx}, nil
}

func (p Pending) Approve(v Verdict) models.CashTransaction {
	return p.settle(models.VerificationApproved, v)
}

func (p Pending) Reject(v Verdict) models.CashTransaction {
	return p.settle(models.VerificationRejected, v)
}

func (p Pending) settle(status models.VerificationStatus, v Verdict) models.CashTransaction {
	tx := p.tx
	at := v.At
	verifier := v.VerifierID
	tx.VerificationStatus = status
	tx.VerifiedBy = &verifier
	tx.VerifiedAt = &at
	tx.VerificationNotes = v.Notes
	return tx
}
