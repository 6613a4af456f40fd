package voucher

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/Myenum2412/app.client.proultima-sub003/internal/apperr"

	"go.uber.org/zap/zaptest"
)

// memStore is a Store whose existence check can be forced to report a
// collision, simulating a concurrent allocator winning the race.
type memStore struct {
	mu         sync.Mutex
	vouchers   map[string][]string
	forceTaken int
	checks     int
}

func newMemStore() *memStore {
	return &memStore{vouchers: map[string][]string{}}
}

func (m *memStore) key(branchKey string, year int) string {
	return fmt.Sprintf("%s|%d", branchKey, year)
}

func (m *memStore) ExistingVouchers(_ context.Context, branchKey string, year int, _ string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.vouchers[m.key(branchKey, year)]...), nil
}

func (m *memStore) VoucherExists(_ context.Context, branchKey string, year int, voucherNo string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks++
	if m.forceTaken > 0 {
		m.forceTaken--
		return true, nil
	}
	for _, v := range m.vouchers[m.key(branchKey, year)] {
		if v == voucherNo {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) add(branchKey string, year int, v string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(branchKey, year)
	m.vouchers[k] = append(m.vouchers[k], v)
}

func fixedClock() time.Time {
	return time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
}

func TestSuffix(t *testing.T) {
	cases := map[string]int{
		"CO007":   7,
		"CI1000":  1000,
		"CI":      0,
		"CI12a":   0,
		"X-2024-": 0,
		"":        0,
	}
	for in, want := range cases {
		if got := Suffix(in); got != want {
			t.Errorf("Suffix(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestNext(t *testing.T) {
	if got := Next("CO", nil); got != "CO001" {
		t.Errorf("Next with no vouchers = %q, want CO001", got)
	}
	if got := Next("CO", []string{"CO001", "CO006", "CO002"}); got != "CO007" {
		t.Errorf("Next = %q, want CO007", got)
	}
	// other prefixes never influence the sequence
	if got := Next("CI", []string{"CO050", "CI003"}); got != "CI004" {
		t.Errorf("Next = %q, want CI004", got)
	}
	// padding widens instead of wrapping
	if got := Next("CI", []string{"CI999"}); got != "CI1000" {
		t.Errorf("Next past 999 = %q, want CI1000", got)
	}
}

func TestAllocateFirstVoucherOfYear(t *testing.T) {
	store := newMemStore()
	a := NewAllocator(store, zaptest.NewLogger(t)).WithClock(fixedClock)

	v, err := a.Allocate(context.Background(), "Thrissur", KindOutflow)
	if err != nil {
		t.Fatalf("Allocate error = %v", err)
	}
	if v.No != "CO001" || v.Year != 2026 || v.Kind != KindOutflow {
		t.Fatalf("Allocate = %+v, want CO001/2026/cash_out", v)
	}
}

func TestAllocateRetriesOnCollision(t *testing.T) {
	store := newMemStore()
	store.forceTaken = 2
	a := NewAllocator(store, zaptest.NewLogger(t)).WithClock(fixedClock)

	v, err := a.Allocate(context.Background(), "Kochi", KindInflow)
	if err != nil {
		t.Fatalf("Allocate error = %v", err)
	}
	if v.No != "CI001" {
		t.Errorf("voucher = %q, want CI001", v.No)
	}
	if store.checks != 3 {
		t.Errorf("existence checks = %d, want 3", store.checks)
	}
}

func TestAllocateExhausted(t *testing.T) {
	store := newMemStore()
	store.forceTaken = MaxAttempts
	a := NewAllocator(store, zaptest.NewLogger(t)).WithClock(fixedClock)

	_, err := a.Allocate(context.Background(), "Kochi", KindInflow)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("Allocate error = %v, want ErrExhausted", err)
	}
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("kind = %v, want conflict", apperr.KindOf(err))
	}
	if store.checks != MaxAttempts {
		t.Errorf("existence checks = %d, want %d", store.checks, MaxAttempts)
	}
}

func TestAllocateIgnoresOtherYears(t *testing.T) {
	store := newMemStore()
	store.add("kochi", 2025, "CI041")
	a := NewAllocator(store, zaptest.NewLogger(t)).WithClock(fixedClock)

	v, err := a.Allocate(context.Background(), "Kochi", KindInflow)
	if err != nil {
		t.Fatalf("Allocate error = %v", err)
	}
	if v.No != "CI001" {
		t.Errorf("voucher = %q, want CI001", v.No)
	}
}

func TestAllocateValidation(t *testing.T) {
	a := NewAllocator(newMemStore(), zaptest.NewLogger(t))

	if _, err := a.Allocate(context.Background(), "  ", KindInflow); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("blank branch error = %v, want validation", err)
	}
	if _, err := a.Allocate(context.Background(), "Kochi", Kind("refund")); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("bad kind error = %v, want validation", err)
	}
}

func TestAllocateSequentialIncreasing(t *testing.T) {
	store := newMemStore()
	a := NewAllocator(store, zaptest.NewLogger(t)).WithClock(fixedClock)
	pattern := regexp.MustCompile(`^(CI|CO)\d{3,}$`)

	prev := 0
	for i := 0; i < 12; i++ {
		v, err := a.Allocate(context.Background(), "Kochi", KindOutflow)
		if err != nil {
			t.Fatalf("Allocate #%d error = %v", i, err)
		}
		if !pattern.MatchString(v.No) {
			t.Fatalf("voucher %q does not match %s", v.No, pattern)
		}
		n := Suffix(v.No)
		if n <= prev {
			t.Fatalf("voucher %q not increasing after %d", v.No, prev)
		}
		prev = n
		store.add("kochi", 2026, v.No)
	}
}

func TestParseKind(t *testing.T) {
	if k, ok := ParseKind("cash_in"); !ok || k != KindInflow {
		t.Errorf("ParseKind(cash_in) = %q, %v", k, ok)
	}
	if k, ok := ParseKind("OUTFLOW"); !ok || k != KindOutflow {
		t.Errorf("ParseKind(OUTFLOW) = %q, %v", k, ok)
	}
	if _, ok := ParseKind("transfer"); ok {
		t.Error("ParseKind(transfer) ok = true, want false")
	}
}
