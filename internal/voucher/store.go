package voucher

import (
	"context"

	"github.com/Myenum2412/app.client.proultima-sub003/internal/models"

	"gorm.io/gorm"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) ExistingVouchers(ctx context.Context, branchKey string, year int, prefix string) ([]string, error) {
	var vouchers []string
	// year is the allocation year, not the year of transaction_date
	err := s.db.WithContext(ctx).
		Model(&models.CashTransaction{}).
		Where("branch_key = ? AND voucher_year = ? AND voucher_no LIKE ?", branchKey, year, prefix+"%").
		Pluck("voucher_no", &vouchers).Error
	return vouchers, err
}

func (s *GormStore) VoucherExists(ctx context.Context, branchKey string, year int, voucherNo string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.CashTransaction{}).
		Where("branch_key = ? AND voucher_year = ? AND voucher_no = ?", branchKey, year, voucherNo).
		Count(&count).Error
	return count > 0, err
}
