package notify

import (
	"errors"
	"strings"

	"github.com/Myenum2412/app.client.proultima-sub003/internal/apperr"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/auth"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TransactionPayload struct {
	ID                string           `json:"id"`
	Branch            string           `json:"branch"`
	StaffID           uint             `json:"staffId"`
	VoucherNo         string           `json:"voucherNo"`
	CashIn            *decimal.Decimal `json:"cashIn"`
	CashOut           *decimal.Decimal `json:"cashOut"`
	AttachmentURLs    []string         `json:"attachmentUrls"`
	VerificationNotes *string          `json:"verificationNotes"`
}

type NotifyRequest struct {
	Scenario    models.NotificationScenario `json:"scenario"`
	Transaction TransactionPayload          `json:"transaction"`
}

func (p TransactionPayload) toModel() models.CashTransaction {
	tx := models.CashTransaction{
		ID:                p.ID,
		Branch:            p.Branch,
		StaffID:           p.StaffID,
		VoucherNo:         p.VoucherNo,
		AttachmentURLs:    datatypes.JSONSlice[string](p.AttachmentURLs),
		VerificationNotes: p.VerificationNotes,
	}
	if p.CashIn != nil {
		tx.CashIn = *p.CashIn
	}
	if p.CashOut != nil {
		tx.CashOut = *p.CashOut
	}
	return tx
}

// -------------------------------------------------
// POST /api/notifications/notify
// -------------------------------------------------
// Replays a fan-out by hand. A stored transaction wins over the payload.
func NotifyHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body NotifyRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if body.Scenario == "" || strings.TrimSpace(body.Transaction.ID) == "" {
			return fiber.NewError(fiber.StatusBadRequest, "scenario and transaction.id are required")
		}

		tx := body.Transaction.toModel()
		var stored models.CashTransaction
		err := svc.db.WithContext(c.UserContext()).Where("id = ?", tx.ID).First(&stored).Error
		switch {
		case err == nil:
			tx = stored
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return apperr.Dependency(err, "load transaction %s", tx.ID)
		}

		out, err := svc.Notify(c.UserContext(), body.Scenario, tx)
		if err != nil {
			return err
		}
		return c.JSON(out)
	}
}

// -------------------------------------------------
// GET /api/notifications?unviewed=true&limit=
// -------------------------------------------------
func ListHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}

		rows, err := svc.ForUser(c.UserContext(), userID, c.QueryBool("unviewed", false), c.QueryInt("limit", 50))
		if err != nil {
			return err
		}
		return c.JSON(rows)
	}
}

// -------------------------------------------------
// POST /api/notifications/:id/view
// -------------------------------------------------
func MarkViewedHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid notification id")
		}

		n, err := svc.MarkViewed(c.UserContext(), userID, uint(id))
		if err != nil {
			return err
		}
		return c.JSON(n)
	}
}
