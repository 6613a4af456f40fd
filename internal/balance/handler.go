package balance

import (
	"strings"
	"time"

	"github.com/Myenum2412/app.client.proultima-sub003/internal/auth"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type AppendEntryRequest struct {
	Branch  string           `json:"branch"`
	Amount  *decimal.Decimal `json:"amount"`
	Date    string           `json:"date"`
	Note    *string          `json:"note"`
	AddedBy *string          `json:"addedBy"`
}

type CreateBalanceRequest struct {
	Branch         string           `json:"branch"`
	OpeningBalance *decimal.Decimal `json:"opening_balance"`
	Date           string           `json:"date"`
}

// -------------------------------------------------
// POST /api/opening-balances/entries
// -------------------------------------------------
func AppendEntryHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body AppendEntryRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		if strings.TrimSpace(body.Branch) == "" || body.Amount == nil || strings.TrimSpace(body.Date) == "" {
			return fiber.NewError(fiber.StatusBadRequest, "branch, amount and date are required")
		}

		userID, _ := auth.UserID(c)

		row, err := svc.Append(c.UserContext(), AppendInput{
			Branch:  body.Branch,
			Amount:  body.Amount,
			Date:    body.Date,
			Note:    body.Note,
			AddedBy: body.AddedBy,
			UserID:  userID,
		})
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{"success": true, "data": row})
	}
}

// -------------------------------------------------
// POST /api/admin/opening-balances
// -------------------------------------------------
func CreateBalanceHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateBalanceRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if strings.TrimSpace(body.Branch) == "" {
			return fiber.NewError(fiber.StatusBadRequest, "branch is required")
		}

		initial := decimal.Zero
		if body.OpeningBalance != nil {
			initial = *body.OpeningBalance
		}

		var date time.Time
		if body.Date != "" {
			d, err := models.ParseDate(body.Date)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			date = d
		}

		userID, _ := auth.UserID(c)

		row, err := svc.Create(c.UserContext(), CreateInput{
			Branch:  strings.TrimSpace(body.Branch),
			Initial: initial,
			Date:    date,
			UserID:  userID,
		})
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": row})
	}
}

// -------------------------------------------------
// GET /api/opening-balances
// -------------------------------------------------
func ListBalancesHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rows, err := svc.List(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(rows)
	}
}

// -------------------------------------------------
// GET /api/opening-balances/:branch
// -------------------------------------------------
func GetBalanceHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		row, err := svc.Get(c.UserContext(), c.Params("branch"))
		if err != nil {
			return err
		}
		return c.JSON(row)
	}
}

// -------------------------------------------------
// POST /api/admin/opening-balances/:branch/reconcile
// -------------------------------------------------
func ReconcileHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := auth.UserID(c)

		row, err := svc.Reconcile(c.UserContext(), c.Params("branch"), userID)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "data": row})
	}
}
