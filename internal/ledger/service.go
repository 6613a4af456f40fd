package ledger

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/Myenum2412/app.client.proultima-sub003/internal/apperr"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/audit"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/events"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/keylock"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/models"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/voucher"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const entityType = "cash_transaction"

// Policy decides when a submission skips verification.
type Policy struct {
	// zero disables the amount rule
	Limit        decimal.Decimal
	TrustedRoles []string
}

func (p Policy) AutoApprove(amount decimal.Decimal, role models.UserRole) bool {
	if p.Limit.IsPositive() && amount.LessThanOrEqual(p.Limit) {
		return true
	}
	for _, r := range p.TrustedRoles {
		if role.Is(models.UserRole(r)) {
			return true
		}
	}
	return false
}

// OpeningBalances supplies the base figure a running balance starts from.
type OpeningBalances interface {
	Get(ctx context.Context, branch string) (models.BranchOpeningBalance, error)
}

type Service struct {
	db       *gorm.DB
	vouchers *voucher.Allocator
	balances OpeningBalances
	events   events.Publisher
	audit    *audit.Writer
	policy   Policy
	log      *zap.Logger

	locks    *keylock.Locker
	validate *validator.Validate
	now      func() time.Time
}

type Options struct {
	DB       *gorm.DB
	Vouchers *voucher.Allocator
	Balances OpeningBalances
	Events   events.Publisher
	Audit    *audit.Writer
	Policy   Policy
	Log      *zap.Logger
}

func NewService(opts Options) *Service {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Service{
		db:       opts.DB,
		vouchers: opts.Vouchers,
		balances: opts.Balances,
		events:   opts.Events,
		audit:    opts.Audit,
		policy:   opts.Policy,
		log:      opts.Log,
		locks:    keylock.New(),
		validate: v,
		now:      time.Now,
	}
}

type SubmitInput struct {
	Branch          string           `json:"branch" validate:"required,max=100"`
	StaffID         uint             `json:"staff_id" validate:"required"`
	TransactionDate string           `json:"transaction_date" validate:"required"`
	CashIn          *decimal.Decimal `json:"cash_in"`
	CashOut         *decimal.Decimal `json:"cash_out"`
	Description     string           `json:"description" validate:"max=255"`
	BillStatus      string           `json:"bill_status"`
	AttachmentURLs  []string         `json:"attachment_urls" validate:"omitempty,dive,required,max=1024"`
}

func (s *Service) draft(in SubmitInput) (Draft, error) {
	in.Branch = strings.TrimSpace(in.Branch)
	if err := s.validate.Struct(in); err != nil {
		return Draft{}, validationError(err)
	}

	date, err := models.ParseDate(in.TransactionDate)
	if err != nil {
		return Draft{}, apperr.Validation("transaction_date: %v", err)
	}

	cashIn, cashOut := decimal.Zero, decimal.Zero
	if in.CashIn != nil {
		cashIn = *in.CashIn
	}
	if in.CashOut != nil {
		cashOut = *in.CashOut
	}
	switch {
	case cashIn.IsNegative() || cashOut.IsNegative():
		return Draft{}, apperr.Validation("cash_in and cash_out must not be negative")
	case cashIn.IsZero() && cashOut.IsZero():
		return Draft{}, apperr.Validation("one of cash_in or cash_out is required")
	case !cashIn.IsZero() && !cashOut.IsZero():
		return Draft{}, apperr.Validation("only one of cash_in or cash_out may be set")
	}

	bill := models.BillStatus(strings.TrimSpace(in.BillStatus))
	if bill == "" {
		bill = models.BillPaid
	}
	if !bill.Valid() {
		return Draft{}, apperr.Validation("bill_status %q is not recognised", in.BillStatus)
	}

	return Draft{
		Branch:      in.Branch,
		StaffID:     in.StaffID,
		Date:        date,
		CashIn:      cashIn.Round(2),
		CashOut:     cashOut.Round(2),
		Description: strings.TrimSpace(in.Description),
		BillStatus:  bill,
		Attachments: in.AttachmentURLs,
	}, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Validation("%v", err)
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return apperr.Validation("%s is required", fe.Field())
	case "max":
		return apperr.Validation("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return apperr.Validation("%s is invalid", fe.Field())
	}
}

// Submit records a new cash transaction with a freshly allocated voucher.
// A voucher lost to a concurrent writer is re-allocated; if that keeps
// failing nothing is persisted.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (models.CashTransaction, error) {
	d, err := s.draft(in)
	if err != nil {
		return models.CashTransaction{}, err
	}

	var staff models.User
	if err := s.db.WithContext(ctx).First(&staff, d.StaffID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.CashTransaction{}, apperr.NotFound("staff %d not found", d.StaffID)
		}
		return models.CashTransaction{}, apperr.Dependency(err, "load staff %d", d.StaffID)
	}

	autoApprove := s.policy.AutoApprove(d.Amount(), staff.Role)

	unlock := s.locks.Lock(models.BranchKey(d.Branch) + "|" + d.Kind().Prefix())
	tx, err := s.persist(ctx, d, autoApprove)
	unlock()
	if err != nil {
		return models.CashTransaction{}, err
	}

	s.log.Info("cash transaction recorded",
		zap.String("transaction_id", tx.ID),
		zap.String("branch", tx.Branch),
		zap.String("voucher", tx.VoucherNo),
		zap.String("status", string(tx.VerificationStatus)))

	s.audit.Write(ctx, audit.LogOptions{
		Branch:      tx.Branch,
		UserID:      tx.StaffID,
		UserName:    staff.Name,
		EntityType:  entityType,
		EntityID:    tx.ID,
		Action:      models.AuditActionCreate,
		Description: fmt.Sprintf("%s %s %s", tx.VoucherNo, strings.ToLower(tx.KindLabel()), tx.Amount().StringFixed(2)),
		After:       tx,
	})

	scenario := models.ScenarioPending
	if autoApprove {
		scenario = models.ScenarioAutoApproved
	}
	s.publish(ctx, scenario, tx)

	return tx, nil
}

func (s *Service) persist(ctx context.Context, d Draft, autoApprove bool) (models.CashTransaction, error) {
	for attempt := 1; attempt <= voucher.MaxAttempts; attempt++ {
		v, err := s.vouchers.Allocate(ctx, d.Branch, d.Kind())
		if err != nil {
			return models.CashTransaction{}, err
		}

		tx := d.Submit(v, autoApprove)
		err = s.db.WithContext(ctx).Create(&tx).Error
		if err == nil {
			return tx, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			s.log.Error("cash transaction insert failed",
				zap.String("branch", d.Branch), zap.String("voucher", v.No), zap.Error(err))
			return models.CashTransaction{}, apperr.Dependency(err, "save cash transaction")
		}

		s.log.Warn("voucher taken by a concurrent writer, reallocating",
			zap.String("branch", d.Branch), zap.String("voucher", v.No), zap.Int("attempt", attempt))
	}
	return models.CashTransaction{}, apperr.Conflict(voucher.ErrExhausted,
		"could not allocate unique voucher for %s after %d attempts", d.Branch, voucher.MaxAttempts)
}

func (s *Service) Approve(ctx context.Context, id string, verifierID uint, notes *string) (models.CashTransaction, error) {
	return s.verify(ctx, id, verifierID, notes, models.ScenarioApproved)
}

func (s *Service) Reject(ctx context.Context, id string, verifierID uint, note *string) (models.CashTransaction, error) {
	return s.verify(ctx, id, verifierID, note, models.ScenarioRejected)
}

func (s *Service) verify(ctx context.Context, id string, verifierID uint, notes *string, scenario models.NotificationScenario) (models.CashTransaction, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.CashTransaction{}, apperr.Validation("id is required")
	}
	if verifierID == 0 {
		return models.CashTransaction{}, apperr.Validation("verifier_id is required")
	}

	var verifier models.User
	if err := s.db.WithContext(ctx).First(&verifier, verifierID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.CashTransaction{}, apperr.NotFound("verifier %d not found", verifierID)
		}
		return models.CashTransaction{}, apperr.Dependency(err, "load verifier %d", verifierID)
	}
	if !verifier.Role.CanVerify() {
		return models.CashTransaction{}, apperr.Validation("user %d (%s) cannot verify transactions", verifierID, verifier.Role)
	}

	before, err := s.Get(ctx, id)
	if err != nil {
		return models.CashTransaction{}, err
	}

	pending, err := AsPending(before)
	if err != nil {
		return models.CashTransaction{}, err
	}

	verdict := Verdict{VerifierID: verifierID, At: s.now(), Notes: notes}
	action := models.AuditActionApprove
	after := pending.Approve(verdict)
	if scenario == models.ScenarioRejected {
		action = models.AuditActionReject
		after = pending.Reject(verdict)
	}

	// the status guard in the WHERE clause settles races between verifiers
	res := s.db.WithContext(ctx).Model(&models.CashTransaction{}).
		Where("id = ? AND verification_status = ?", id, models.VerificationPending).
		Updates(map[string]any{
			"verification_status": after.VerificationStatus,
			"verified_by":         after.VerifiedBy,
			"verified_at":         after.VerifiedAt,
			"verification_notes":  after.VerificationNotes,
		})
	if res.Error != nil {
		s.log.Error("verification update failed",
			zap.String("transaction_id", id), zap.String("branch", before.Branch), zap.Error(res.Error))
		return models.CashTransaction{}, apperr.Dependency(res.Error, "update transaction %s", id)
	}
	if res.RowsAffected == 0 {
		return models.CashTransaction{}, apperr.Conflict(ErrNotPending, "transaction %s was settled by another verifier", before.VoucherNo)
	}

	updated, err := s.Get(ctx, id)
	if err != nil {
		return models.CashTransaction{}, err
	}

	s.audit.Write(ctx, audit.LogOptions{
		Branch:      updated.Branch,
		UserID:      verifierID,
		UserName:    verifier.Name,
		EntityType:  entityType,
		EntityID:    updated.ID,
		Action:      action,
		Description: fmt.Sprintf("%s %s", updated.VoucherNo, updated.VerificationStatus),
		Before:      before,
		After:       updated,
	})

	s.publish(ctx, scenario, updated)
	return updated, nil
}

func (s *Service) publish(ctx context.Context, scenario models.NotificationScenario, tx models.CashTransaction) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, events.TransactionChanged{
		Scenario:    scenario,
		Transaction: tx,
		OccurredAt:  s.now(),
	})
}

func (s *Service) Get(ctx context.Context, id string) (models.CashTransaction, error) {
	var tx models.CashTransaction
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.CashTransaction{}, apperr.NotFound("transaction %s not found", id)
	}
	if err != nil {
		return models.CashTransaction{}, apperr.Dependency(err, "load transaction %s", id)
	}
	return tx, nil
}

type Filter struct {
	Branch string
	From   *time.Time
	To     *time.Time
	Status models.VerificationStatus
	Limit  int
}

// List returns transactions in running-balance order.
func (s *Service) List(ctx context.Context, f Filter) ([]models.CashTransaction, error) {
	q := s.db.WithContext(ctx).Model(&models.CashTransaction{})
	if key := models.BranchKey(f.Branch); key != "" {
		q = q.Where("branch_key = ?", key)
	}
	if f.From != nil {
		q = q.Where("transaction_date >= ?", models.DateOf(*f.From))
	}
	if f.To != nil {
		q = q.Where("transaction_date < ?", models.DateOf(*f.To).AddDate(0, 0, 1))
	}
	switch f.Status {
	case "":
	case models.VerificationAutoApproved:
		q = q.Where("verification_status IN ?", []string{string(models.VerificationAutoApproved), ""})
	default:
		q = q.Where("verification_status = ?", f.Status)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var txs []models.CashTransaction
	if err := q.Order("transaction_date asc, created_at asc, id asc").Find(&txs).Error; err != nil {
		return nil, apperr.Dependency(err, "list transactions")
	}
	return txs, nil
}

// ComputeRunningBalance folds the branch's opening balance with its
// transactions. A branch without an opening-balance row starts from zero.
func (s *Service) ComputeRunningBalance(ctx context.Context, branch string, mode Mode, asOf *time.Time) (RunningBalance, error) {
	key := models.BranchKey(branch)
	if key == "" {
		return RunningBalance{}, apperr.Validation("branch is required")
	}

	opening := decimal.Zero
	if s.balances != nil {
		row, err := s.balances.Get(ctx, branch)
		switch {
		case err == nil:
			opening = row.OpeningBalance
		case apperr.KindOf(err) == apperr.KindNotFound:
		default:
			return RunningBalance{}, err
		}
	}

	q := s.db.WithContext(ctx).
		Where("branch_key = ?", key).
		Where("verification_status <> ?", models.VerificationRejected)
	if asOf != nil {
		q = q.Where("transaction_date < ?", models.DateOf(*asOf).AddDate(0, 0, 1))
	}
	var txs []models.CashTransaction
	if err := q.Find(&txs).Error; err != nil {
		return RunningBalance{}, apperr.Dependency(err, "load transactions for %s", branch)
	}

	balance, lines := Fold(opening, txs, mode, asOf)
	return RunningBalance{
		Branch:         branch,
		Mode:           mode,
		AsOf:           asOf,
		OpeningBalance: opening,
		Balance:        balance,
		Lines:          lines,
	}, nil
}
