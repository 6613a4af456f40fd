package balance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Myenum2412/app.client.proultima-sub003/internal/apperr"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/audit"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/keylock"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxAppendAttempts = 5

var (
	ErrBranchExists    = errors.New("opening balance already exists for branch")
	errVersionConflict = errors.New("opening balance changed concurrently")
)

type Service struct {
	db    *gorm.DB
	audit *audit.Writer
	log   *zap.Logger
	locks *keylock.Locker
	now   func() time.Time
}

func NewService(db *gorm.DB, auditWriter *audit.Writer, log *zap.Logger) *Service {
	return &Service{
		db:    db,
		audit: auditWriter,
		log:   log,
		locks: keylock.New(),
		now:   time.Now,
	}
}

type CreateInput struct {
	Branch  string
	Initial decimal.Decimal
	Date    time.Time
	AddedBy *string
	UserID  uint
}

// Create registers a branch. A non-zero initial amount is recorded as the
// first history entry so the cached balance stays a fold of the history.
func (s *Service) Create(ctx context.Context, in CreateInput) (models.BranchOpeningBalance, error) {
	key := models.BranchKey(in.Branch)
	if key == "" {
		return models.BranchOpeningBalance{}, apperr.Validation("branch is required")
	}
	if in.Date.IsZero() {
		in.Date = models.DateOf(s.now())
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	row := models.BranchOpeningBalance{
		Branch:         in.Branch,
		BranchKey:      key,
		OpeningBalance: in.Initial,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.BranchOpeningBalance{}).Where("branch_key = ?", key).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrBranchExists
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if in.Initial.IsZero() {
			return nil
		}
		note := "initial opening balance"
		entry := models.BalanceHistoryEntry{
			BalanceID: row.ID,
			Date:      models.DateOf(in.Date),
			Amount:    in.Initial,
			Note:      &note,
			AddedBy:   in.AddedBy,
		}
		return tx.Create(&entry).Error
	})
	if errors.Is(err, ErrBranchExists) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return models.BranchOpeningBalance{}, apperr.Conflict(ErrBranchExists, "opening balance for %s already exists", in.Branch)
	}
	if err != nil {
		return models.BranchOpeningBalance{}, apperr.Dependency(err, "create opening balance for %s", in.Branch)
	}

	created, err := s.Get(ctx, in.Branch)
	if err != nil {
		return models.BranchOpeningBalance{}, err
	}

	s.audit.Write(ctx, audit.LogOptions{
		Branch:      in.Branch,
		UserID:      in.UserID,
		EntityType:  "branch_opening_balance",
		EntityID:    fmt.Sprint(created.ID),
		Action:      models.AuditActionCreate,
		Description: fmt.Sprintf("opening balance created for %s: %s", in.Branch, in.Initial.StringFixed(2)),
		After:       created,
	})
	return created, nil
}

func (s *Service) Get(ctx context.Context, branch string) (models.BranchOpeningBalance, error) {
	key := models.BranchKey(branch)
	if key == "" {
		return models.BranchOpeningBalance{}, apperr.Validation("branch is required")
	}

	var row models.BranchOpeningBalance
	err := s.db.WithContext(ctx).
		Preload("History", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Where("branch_key = ?", key).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.BranchOpeningBalance{}, apperr.NotFound("branch %s not found", branch)
	}
	if err != nil {
		return models.BranchOpeningBalance{}, apperr.Dependency(err, "load opening balance for %s", branch)
	}
	return row, nil
}

func (s *Service) List(ctx context.Context) ([]models.BranchOpeningBalance, error) {
	var rows []models.BranchOpeningBalance
	if err := s.db.WithContext(ctx).Order("branch_key asc").Find(&rows).Error; err != nil {
		return nil, apperr.Dependency(err, "list opening balances")
	}
	return rows, nil
}

type AppendInput struct {
	Branch  string
	Amount  *decimal.Decimal
	Date    string
	Note    *string
	AddedBy *string
	UserID  uint
}

// Append adds one history entry and moves the cached balance by the same
// amount. Appends to one branch are serialized in-process and guarded by
// the version column against other processes.
func (s *Service) Append(ctx context.Context, in AppendInput) (models.BranchOpeningBalance, error) {
	key := models.BranchKey(in.Branch)
	if key == "" {
		return models.BranchOpeningBalance{}, apperr.Validation("branch is required")
	}
	if in.Amount == nil {
		return models.BranchOpeningBalance{}, apperr.Validation("amount is required")
	}
	if in.Date == "" {
		return models.BranchOpeningBalance{}, apperr.Validation("date is required")
	}
	date, err := models.ParseDate(in.Date)
	if err != nil {
		return models.BranchOpeningBalance{}, apperr.Validation("%v", err)
	}

	if in.AddedBy == nil && in.UserID != 0 {
		var user models.User
		if err := s.db.WithContext(ctx).Select("name").First(&user, in.UserID).Error; err == nil {
			in.AddedBy = &user.Name
		}
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	var before models.BranchOpeningBalance
	for attempt := 1; ; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("branch_key = ?", key).First(&before).Error; err != nil {
				return err
			}

			res := tx.Model(&models.BranchOpeningBalance{}).
				Where("id = ? AND version = ?", before.ID, before.Version).
				Updates(map[string]any{
					"opening_balance": before.OpeningBalance.Add(*in.Amount),
					"version":         before.Version + 1,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errVersionConflict
			}

			entry := models.BalanceHistoryEntry{
				BalanceID: before.ID,
				Date:      date,
				Amount:    *in.Amount,
				Note:      in.Note,
				AddedBy:   in.AddedBy,
			}
			return tx.Create(&entry).Error
		})
		if !errors.Is(err, errVersionConflict) || attempt == maxAppendAttempts {
			break
		}
		s.log.Warn("opening balance version conflict, retrying",
			zap.String("branch", in.Branch), zap.Int("attempt", attempt))
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return models.BranchOpeningBalance{}, apperr.NotFound("branch %s not found", in.Branch)
	case errors.Is(err, errVersionConflict):
		return models.BranchOpeningBalance{}, apperr.Conflict(errVersionConflict, "opening balance for %s is busy, try again", in.Branch)
	case err != nil:
		s.log.Error("append opening balance entry failed", zap.String("branch", in.Branch), zap.Error(err))
		return models.BranchOpeningBalance{}, apperr.Dependency(err, "append opening balance entry for %s", in.Branch)
	}

	updated, err := s.Get(ctx, in.Branch)
	if err != nil {
		return models.BranchOpeningBalance{}, err
	}

	s.audit.Write(ctx, audit.LogOptions{
		Branch:      in.Branch,
		UserID:      in.UserID,
		EntityType:  "branch_opening_balance",
		EntityID:    fmt.Sprint(updated.ID),
		Action:      models.AuditActionAppend,
		Description: fmt.Sprintf("opening balance entry %s for %s", in.Amount.StringFixed(2), in.Branch),
		Before:      map[string]any{"opening_balance": before.OpeningBalance},
		After:       map[string]any{"opening_balance": updated.OpeningBalance},
	})

	return updated, nil
}

// Reconcile recomputes the cached balance from the history. It is the only
// path that overwrites opening_balance directly.
func (s *Service) Reconcile(ctx context.Context, branch string, userID uint) (models.BranchOpeningBalance, error) {
	key := models.BranchKey(branch)
	if key == "" {
		return models.BranchOpeningBalance{}, apperr.Validation("branch is required")
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	row, err := s.Get(ctx, branch)
	if err != nil {
		return models.BranchOpeningBalance{}, err
	}

	sum := SumHistory(row.History)
	if sum.Equal(row.OpeningBalance) {
		return row, nil
	}

	err = s.db.WithContext(ctx).Model(&models.BranchOpeningBalance{}).
		Where("id = ?", row.ID).
		Updates(map[string]any{
			"opening_balance": sum,
			"version":         gorm.Expr("version + 1"),
		}).Error
	if err != nil {
		return models.BranchOpeningBalance{}, apperr.Dependency(err, "reconcile opening balance for %s", branch)
	}

	s.log.Warn("opening balance drifted from history, reconciled",
		zap.String("branch", branch),
		zap.String("cached", row.OpeningBalance.String()),
		zap.String("history_sum", sum.String()))

	s.audit.Write(ctx, audit.LogOptions{
		Branch:      branch,
		UserID:      userID,
		EntityType:  "branch_opening_balance",
		EntityID:    fmt.Sprint(row.ID),
		Action:      models.AuditActionReconcile,
		Description: fmt.Sprintf("opening balance for %s reconciled to %s", branch, sum.StringFixed(2)),
		Before:      map[string]any{"opening_balance": row.OpeningBalance},
		After:       map[string]any{"opening_balance": sum},
	})

	return s.Get(ctx, branch)
}

func SumHistory(entries []models.BalanceHistoryEntry) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Amount)
	}
	return sum
}
