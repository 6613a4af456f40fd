package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Myenum2412/app.client.proultima-sub003/internal/apperr"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/audit"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/events"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/ledger"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/mail"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/models"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/testutil"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/voucher"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

func newTestService(t *testing.T, mailer mail.Sender) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	return NewService(db, mailer, zaptest.NewLogger(t)), db
}

func storedTx(t *testing.T, db *gorm.DB, staffID uint, status models.VerificationStatus) models.CashTransaction {
	t.Helper()
	note := "duplicate"
	tx := models.CashTransaction{
		VoucherNo:          "CO001",
		VoucherYear:        2026,
		Branch:             "Kochi",
		StaffID:            staffID,
		TransactionDate:    time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		CashOut:            decimal.NewFromInt(200),
		BillStatus:         models.BillPaid,
		VerificationStatus: status,
		AttachmentURLs:     []string{},
	}
	if status == models.VerificationRejected {
		tx.VerificationNotes = &note
	}
	if err := db.Create(&tx).Error; err != nil {
		t.Fatal(err)
	}
	return tx
}

func notificationsFor(t *testing.T, db *gorm.DB, userID uint) []models.Notification {
	t.Helper()
	var rows []models.Notification
	if err := db.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestRejectedReachesSubmitterAndAdmins(t *testing.T) {
	mailer := &fakeMailer{}
	svc, db := newTestService(t, mailer)

	staff := testutil.CreateUser(t, db, "Meera", "meera@example.com", models.RoleStaff, true)
	admin1 := testutil.CreateUser(t, db, "Ravi", "ravi@example.com", models.RoleAdmin, true)
	admin2 := testutil.CreateUser(t, db, "Anu", "anu@example.com", "ADMIN", false)
	accountant := testutil.CreateUser(t, db, "Joseph", "joseph@example.com", models.RoleAccountant, true)

	tx := storedTx(t, db, staff.ID, models.VerificationRejected)

	out, err := svc.Notify(context.Background(), models.ScenarioRejected, tx)
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if !out.Success || out.Count != 3 {
		t.Fatalf("outcome = %+v, want 3 recipients", out)
	}

	for _, u := range []models.User{staff, admin1, admin2} {
		rows := notificationsFor(t, db, u.ID)
		if len(rows) != 1 {
			t.Fatalf("%s got %d notifications, want 1", u.Name, len(rows))
		}
		n := rows[0]
		if n.Type != models.NotificationTypeCashbookRejected || n.ReferenceID != tx.ID || n.ReferenceTable != "cash_transactions" {
			t.Errorf("%s notification = %+v", u.Name, n)
		}
		if n.Metadata["reason"] != "duplicate" || n.Metadata["transaction_type"] != "expense" {
			t.Errorf("metadata = %v", n.Metadata)
		}
	}
	if rows := notificationsFor(t, db, accountant.ID); len(rows) != 0 {
		t.Errorf("accountant got %d notifications on reject", len(rows))
	}

	if len(mailer.sent) != 1 || len(mailer.sent[0].To) != 1 || mailer.sent[0].To[0] != staff.Email {
		t.Errorf("rejection emails = %+v, want one to the submitter", mailer.sent)
	}
}

func TestPendingRecipients(t *testing.T) {
	mailer := &fakeMailer{}
	svc, db := newTestService(t, mailer)

	staff := testutil.CreateUser(t, db, "Meera", "meera@example.com", models.RoleStaff, true)
	acc := testutil.CreateUser(t, db, "Joseph", "joseph@example.com", "Accountant", true)
	testutil.CreateUser(t, db, "Old", "old@example.com", models.RoleAccountant, false)
	admin := testutil.CreateUser(t, db, "Ravi", "ravi@example.com", models.RoleAdmin, true)

	tx := storedTx(t, db, staff.ID, models.VerificationPending)

	out, err := svc.Notify(context.Background(), models.ScenarioPending, tx)
	if err != nil {
		t.Fatal(err)
	}
	if out.Count != 2 {
		t.Fatalf("pending recipients = %d, want active accountant + admin", out.Count)
	}
	for _, u := range []models.User{acc, admin} {
		rows := notificationsFor(t, db, u.ID)
		if len(rows) != 1 || rows[0].Type != models.NotificationTypeCashbookPending || rows[0].Metadata["requires_approval"] != true {
			t.Errorf("%s notifications = %+v", u.Name, rows)
		}
	}
	if len(notificationsFor(t, db, staff.ID)) != 0 {
		t.Error("submitter should not be notified of their own pending entry")
	}

	if len(mailer.sent) != 1 || len(mailer.sent[0].To) != 2 {
		t.Errorf("pending emails = %+v, want one message to both recipients", mailer.sent)
	}
}

func TestAutoApprovedGoesToAdminsOnly(t *testing.T) {
	mailer := &fakeMailer{}
	svc, db := newTestService(t, mailer)

	testutil.CreateUser(t, db, "Joseph", "joseph@example.com", models.RoleAccountant, true)
	admin := testutil.CreateUser(t, db, "Ravi", "ravi@example.com", models.RoleAdmin, true)

	// the submitter is also an admin, so only one row for them
	tx := storedTx(t, db, admin.ID, models.VerificationApproved)
	out, err := svc.Notify(context.Background(), models.ScenarioApproved, tx)
	if err != nil || out.Count != 1 {
		t.Fatalf("approved outcome = %+v, %v; want 1 recipient", out, err)
	}

	out, err = svc.Notify(context.Background(), models.ScenarioAutoApproved, tx)
	if err != nil || out.Count != 1 {
		t.Fatalf("auto-approved outcome = %+v, %v; want 1 recipient", out, err)
	}
	if len(mailer.sent) != 0 {
		t.Errorf("approved/auto-approved sent %d emails, want none", len(mailer.sent))
	}
}

func TestZeroRecipientsIsAWarning(t *testing.T) {
	svc, db := newTestService(t, &fakeMailer{})
	staff := testutil.CreateUser(t, db, "Meera", "meera@example.com", models.RoleStaff, true)
	tx := storedTx(t, db, staff.ID, models.VerificationPending)

	before := unnotified.Value()
	out, err := svc.Notify(context.Background(), models.ScenarioPending, tx)
	if err != nil {
		t.Fatalf("Notify err = %v, want nil", err)
	}
	if out.Success || out.Message == "" {
		t.Errorf("outcome = %+v, want success=false with a message", out)
	}

	if err := svc.HandleEvent(context.Background(), events.TransactionChanged{Scenario: models.ScenarioPending, Transaction: tx}); err != nil {
		t.Errorf("HandleEvent err = %v", err)
	}
	if unnotified.Value() != before+1 {
		t.Errorf("unnotified counter = %d, want %d", unnotified.Value(), before+1)
	}
}

func TestEmailFailureIsSwallowed(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("smtp: connection refused")}
	svc, db := newTestService(t, mailer)
	staff := testutil.CreateUser(t, db, "Meera", "meera@example.com", models.RoleStaff, true)
	testutil.CreateUser(t, db, "Ravi", "ravi@example.com", models.RoleAdmin, true)
	tx := storedTx(t, db, staff.ID, models.VerificationPending)

	before := emailFailures.Value()
	out, err := svc.Notify(context.Background(), models.ScenarioPending, tx)
	if err != nil || !out.Success || out.Count != 1 {
		t.Fatalf("Notify = %+v, %v; want success despite mail failure", out, err)
	}
	if emailFailures.Value() != before+1 {
		t.Errorf("email failure counter = %d, want %d", emailFailures.Value(), before+1)
	}
}

func TestNotifyValidation(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	if _, err := svc.Notify(ctx, "", models.CashTransaction{ID: "x"}); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("missing scenario err = %v", err)
	}
	if _, err := svc.Notify(ctx, "archived", models.CashTransaction{ID: "x"}); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("unknown scenario err = %v", err)
	}
	if _, err := svc.Notify(ctx, models.ScenarioPending, models.CashTransaction{}); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("missing id err = %v", err)
	}
}

// A submission with nobody to notify still succeeds end to end.
func TestSubmitSucceedsWithoutRecipients(t *testing.T) {
	db := testutil.NewDB(t)
	log := zaptest.NewLogger(t)
	bus := events.NewBus(log)
	defer bus.Close()

	notifier := NewService(db, &fakeMailer{}, log)
	bus.Subscribe("notify", notifier.HandleEvent)

	svc := ledger.NewService(ledger.Options{
		DB:       db,
		Vouchers: voucher.NewAllocator(voucher.NewGormStore(db), log),
		Events:   bus,
		Audit:    audit.NewWriter(db, log),
		Log:      log,
	})
	staff := testutil.CreateUser(t, db, "Meera", "meera@example.com", models.RoleStaff, true)

	amount := decimal.NewFromInt(80)
	before := unnotified.Value()
	tx, err := svc.Submit(context.Background(), ledger.SubmitInput{
		Branch: "Kochi", StaffID: staff.ID, TransactionDate: "2026-06-02", CashOut: &amount,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if tx.VerificationStatus != models.VerificationPending {
		t.Errorf("status = %s, want pending", tx.VerificationStatus)
	}
	if unnotified.Value() != before+1 {
		t.Errorf("unnotified counter = %d, want %d", unnotified.Value(), before+1)
	}

	var count int64
	db.Model(&models.CashTransaction{}).Count(&count)
	if count != 1 {
		t.Errorf("transactions = %d, want 1", count)
	}
}

func TestMarkViewed(t *testing.T) {
	svc, db := newTestService(t, nil)
	staff := testutil.CreateUser(t, db, "Meera", "meera@example.com", models.RoleStaff, true)
	admin := testutil.CreateUser(t, db, "Ravi", "ravi@example.com", models.RoleAdmin, true)
	tx := storedTx(t, db, staff.ID, models.VerificationApproved)

	if _, err := svc.Notify(context.Background(), models.ScenarioApproved, tx); err != nil {
		t.Fatal(err)
	}
	rows, err := svc.ForUser(context.Background(), staff.ID, true, 0)
	if err != nil || len(rows) != 1 {
		t.Fatalf("ForUser = %v, %v", rows, err)
	}

	if _, err := svc.MarkViewed(context.Background(), admin.ID, rows[0].ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("marking someone else's notification err = %v, want not found", err)
	}

	n, err := svc.MarkViewed(context.Background(), staff.ID, rows[0].ID)
	if err != nil || !n.IsViewed || n.ViewedAt == nil {
		t.Fatalf("MarkViewed = %+v, %v", n, err)
	}
	rows, _ = svc.ForUser(context.Background(), staff.ID, true, 0)
	if len(rows) != 0 {
		t.Errorf("unviewed after mark = %d, want 0", len(rows))
	}
}

func mustDec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
