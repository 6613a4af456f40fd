package voucher

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Myenum2412/app.client.proultima-sub003/internal/apperr"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/models"

	"go.uber.org/zap"
)

// MaxAttempts bounds the allocate-and-check cycle.
const MaxAttempts = 3

var ErrExhausted = errors.New("could not allocate unique voucher")

var conflicts = expvar.NewInt("voucher_conflicts_total")

type Kind string

const (
	KindInflow  Kind = "cash_in"
	KindOutflow Kind = "cash_out"
)

func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cash_in", "inflow", "in":
		return KindInflow, true
	case "cash_out", "outflow", "out":
		return KindOutflow, true
	}
	return "", false
}

func (k Kind) Prefix() string {
	if k == KindInflow {
		return "CI"
	}
	return "CO"
}

// Store reads the voucher numbers already issued.
type Store interface {
	ExistingVouchers(ctx context.Context, branchKey string, year int, prefix string) ([]string, error)
	VoucherExists(ctx context.Context, branchKey string, year int, voucherNo string) (bool, error)
}

type Voucher struct {
	No   string `json:"voucher_no"`
	Kind Kind   `json:"kind"`
	Year int    `json:"year"`
}

type Allocator struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

func NewAllocator(store Store, log *zap.Logger) *Allocator {
	return &Allocator{store: store, log: log, now: time.Now}
}

// WithClock replaces the clock used to pick the voucher year.
func (a *Allocator) WithClock(now func() time.Time) *Allocator {
	a.now = now
	return a
}

// Year is the calendar year vouchers are currently issued for.
func (a *Allocator) Year() int {
	return a.now().Year()
}

// Allocate proposes the next voucher number for branch and kind. Nothing is
// reserved: the caller persists the voucher and must treat a unique
// violation as a lost race.
func (a *Allocator) Allocate(ctx context.Context, branch string, kind Kind) (Voucher, error) {
	branchKey := models.BranchKey(branch)
	if branchKey == "" {
		return Voucher{}, apperr.Validation("branch is required")
	}
	if kind != KindInflow && kind != KindOutflow {
		return Voucher{}, apperr.Validation("kind must be cash_in or cash_out")
	}

	// sequences restart each calendar year of allocation; a backdated
	// transaction still takes the current year's sequence
	year := a.Year()
	prefix := kind.Prefix()

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		existing, err := a.store.ExistingVouchers(ctx, branchKey, year, prefix)
		if err != nil {
			return Voucher{}, apperr.Dependency(err, "read existing vouchers")
		}

		candidate := Next(prefix, existing)

		taken, err := a.store.VoucherExists(ctx, branchKey, year, candidate)
		if err != nil {
			return Voucher{}, apperr.Dependency(err, "check voucher %s", candidate)
		}
		if !taken {
			return Voucher{No: candidate, Kind: kind, Year: year}, nil
		}

		conflicts.Add(1)
		a.log.Warn("voucher candidate already taken, retrying",
			zap.String("branch", branch),
			zap.String("voucher", candidate),
			zap.Int("attempt", attempt))
	}

	return Voucher{}, apperr.Conflict(ErrExhausted, "could not allocate unique voucher for %s after %d attempts", branch, MaxAttempts)
}

var trailingDigits = regexp.MustCompile(`\d+$`)

// Suffix returns the trailing run of digits in s as a number, or 0.
func Suffix(s string) int {
	digits := trailingDigits.FindString(s)
	if digits == "" {
		return 0
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}

// Next returns prefix followed by max(suffix)+1, zero padded to at least
// three digits.
func Next(prefix string, existing []string) string {
	highest := 0
	for _, v := range existing {
		if !strings.HasPrefix(v, prefix) {
			continue
		}
		if n := Suffix(v); n > highest {
			highest = n
		}
	}
	return Format(prefix, highest+1)
}

func Format(prefix string, n int) string {
	return fmt.Sprintf("%s%03d", prefix, n)
}
