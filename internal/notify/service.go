// Package notify fans ledger state changes out to in-app notifications and
// best-effort email.
package notify

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"strings"
	"time"

	"github.com/Myenum2412/app.client.proultima-sub003/internal/apperr"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/events"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/mail"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrNoRecipients = errors.New("no notification recipients")

var (
	unnotified    = expvar.NewInt("ledger_unnotified_total")
	emailFailures = expvar.NewInt("notify_email_failures_total")
)

const batchSize = 100

// Outcome is a fan-out result. Success=false with a message is a warning,
// not an error: the ledger change it reports on has already committed.
type Outcome struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Message string `json:"message,omitempty"`
}

type Service struct {
	db     *gorm.DB
	mailer mail.Sender
	log    *zap.Logger
	now    func() time.Time
}

func NewService(db *gorm.DB, mailer mail.Sender, log *zap.Logger) *Service {
	return &Service{db: db, mailer: mailer, log: log, now: time.Now}
}

// Notify writes one notification per recipient of scenario and sends the
// scenario's email, if any.
func (s *Service) Notify(ctx context.Context, scenario models.NotificationScenario, tx models.CashTransaction) (Outcome, error) {
	if scenario == "" {
		return Outcome{}, apperr.Validation("scenario is required")
	}
	if !scenario.Valid() {
		return Outcome{}, apperr.Validation("unknown scenario %q", scenario)
	}
	if strings.TrimSpace(tx.ID) == "" {
		return Outcome{}, apperr.Validation("transaction id is required")
	}

	recipients, err := s.recipients(ctx, scenario, tx)
	if err != nil {
		s.log.Error("notification recipients could not be resolved",
			zap.String("scenario", string(scenario)),
			zap.String("transaction_id", tx.ID),
			zap.String("branch", tx.Branch),
			zap.Error(err))
		return Outcome{}, apperr.Dependency(err, "resolve recipients")
	}

	if len(recipients) == 0 {
		s.log.Warn("no recipients for notification",
			zap.String("scenario", string(scenario)),
			zap.String("transaction_id", tx.ID),
			zap.String("branch", tx.Branch))
		return Outcome{Success: false, Message: fmt.Sprintf("no recipients found for %s notification", scenario)}, nil
	}

	submitter := s.submitter(ctx, tx)
	msg := compose(scenario, tx, submitter.Name)

	rows := make([]models.Notification, 0, len(recipients))
	for _, u := range recipients {
		rows = append(rows, models.Notification{
			UserID:         u.ID,
			Type:           msg.Type,
			Title:          msg.Title,
			Message:        msg.Message,
			ReferenceID:    tx.ID,
			ReferenceTable: models.ReferenceTableCashTransactions,
			Metadata:       msg.Metadata,
		})
	}

	if err := s.db.WithContext(ctx).CreateInBatches(&rows, batchSize).Error; err != nil {
		s.log.Error("notifications could not be stored",
			zap.String("scenario", string(scenario)),
			zap.String("transaction_id", tx.ID),
			zap.String("branch", tx.Branch),
			zap.Error(err))
		return Outcome{}, apperr.Dependency(err, "store notifications")
	}

	s.email(ctx, scenario, tx, msg, recipients, submitter)

	return Outcome{Success: true, Count: len(rows)}, nil
}

// HandleEvent is the events.Bus subscriber. Any fan-out shortfall is
// counted as an unnotified ledger change.
func (s *Service) HandleEvent(ctx context.Context, e events.TransactionChanged) error {
	out, err := s.Notify(ctx, e.Scenario, e.Transaction)
	if err != nil {
		unnotified.Add(1)
		return err
	}
	if !out.Success {
		unnotified.Add(1)
	}
	return nil
}

func (s *Service) recipients(ctx context.Context, scenario models.NotificationScenario, tx models.CashTransaction) ([]models.User, error) {
	db := s.db.WithContext(ctx)
	var out []models.User

	switch scenario {
	case models.ScenarioPending:
		var accountants []models.User
		if err := db.Where("LOWER(role) = ? AND is_active = ?", string(models.RoleAccountant), true).
			Order("id").Find(&accountants).Error; err != nil {
			return nil, err
		}
		out = append(out, accountants...)
	case models.ScenarioApproved, models.ScenarioRejected:
		var submitter models.User
		err := db.First(&submitter, tx.StaffID).Error
		switch {
		case err == nil:
			out = append(out, submitter)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, err
		}
	}

	var admins []models.User
	if err := db.Where("LOWER(role) = ?", string(models.RoleAdmin)).Order("id").Find(&admins).Error; err != nil {
		return nil, err
	}
	out = append(out, admins...)

	return dedupe(out), nil
}

func dedupe(users []models.User) []models.User {
	seen := make(map[uint]bool, len(users))
	out := users[:0]
	for _, u := range users {
		if seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		out = append(out, u)
	}
	return out
}

func (s *Service) submitter(ctx context.Context, tx models.CashTransaction) models.User {
	var u models.User
	if tx.StaffID == 0 {
		return u
	}
	if err := s.db.WithContext(ctx).First(&u, tx.StaffID).Error; err != nil {
		s.log.Warn("submitter not found for notification",
			zap.String("transaction_id", tx.ID), zap.Uint("staff_id", tx.StaffID), zap.Error(err))
	}
	return u
}

func (s *Service) email(ctx context.Context, scenario models.NotificationScenario, tx models.CashTransaction, c content, recipients []models.User, submitter models.User) {
	if s.mailer == nil {
		return
	}

	var to []string
	switch scenario {
	case models.ScenarioPending:
		for _, u := range recipients {
			to = append(to, u.Email)
		}
	case models.ScenarioRejected:
		if submitter.Email == "" {
			s.log.Warn("rejection email skipped, submitter email unknown",
				zap.String("transaction_id", tx.ID), zap.Uint("staff_id", tx.StaffID))
			return
		}
		to = []string{submitter.Email}
	default:
		return
	}

	err := s.mailer.Send(ctx, mail.Message{To: to, Subject: c.Title, Body: c.Message})
	if err != nil {
		emailFailures.Add(1)
		s.log.Error("notification email failed",
			zap.String("scenario", string(scenario)),
			zap.String("transaction_id", tx.ID),
			zap.String("branch", tx.Branch),
			zap.Error(err))
	}
}

// ForUser lists a user's notifications, newest first.
func (s *Service) ForUser(ctx context.Context, userID uint, unviewedOnly bool, limit int) ([]models.Notification, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if unviewedOnly {
		q = q.Where("is_viewed = ?", false)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var rows []models.Notification
	if err := q.Order("created_at desc, id desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, apperr.Dependency(err, "list notifications")
	}
	return rows, nil
}

// MarkViewed flags one of the user's notifications as seen. Marking twice
// keeps the first viewed_at.
func (s *Service) MarkViewed(ctx context.Context, userID, id uint) (models.Notification, error) {
	var n models.Notification
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Notification{}, apperr.NotFound("notification %d not found", id)
	}
	if err != nil {
		return models.Notification{}, apperr.Dependency(err, "load notification %d", id)
	}
	if n.IsViewed {
		return n, nil
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(&n).Updates(map[string]any{"is_viewed": true, "viewed_at": now}).Error; err != nil {
		return models.Notification{}, apperr.Dependency(err, "update notification %d", id)
	}
	n.IsViewed = true
	n.ViewedAt = &now
	return n, nil
}
