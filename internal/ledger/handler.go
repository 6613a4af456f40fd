package ledger

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Myenum2412/app.client.proultima-sub003/internal/auth"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/models"

	"github.com/gofiber/fiber/v2"
)

type VerifyRequest struct {
	ID         string  `json:"id"`
	VerifierID uint    `json:"verifier_id"`
	Note       *string `json:"note"`
}

// -------------------------------------------------
// POST /api/cash-transactions
// -------------------------------------------------
func SubmitHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body SubmitInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		// staff may only submit for themselves
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		if body.StaffID == 0 || auth.Role(c).Is(models.RoleStaff) {
			body.StaffID = userID
		}

		tx, err := svc.Submit(c.UserContext(), body)
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": tx})
	}
}

// -------------------------------------------------
// POST /api/cash-transactions/approve
// -------------------------------------------------
func ApproveHandler(svc *Service) fiber.Handler {
	return verifyHandler(svc.Approve)
}

// -------------------------------------------------
// POST /api/cash-transactions/reject
// -------------------------------------------------
func RejectHandler(svc *Service) fiber.Handler {
	return verifyHandler(svc.Reject)
}

func verifyHandler(verify func(ctx context.Context, id string, verifierID uint, note *string) (models.CashTransaction, error)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body VerifyRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if strings.TrimSpace(body.ID) == "" {
			return fiber.NewError(fiber.StatusBadRequest, "id is required")
		}
		if body.VerifierID == 0 {
			userID, err := auth.UserID(c)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "verifier_id is required")
			}
			body.VerifierID = userID
		}

		tx, err := verify(c.UserContext(), body.ID, body.VerifierID, body.Note)
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{"success": true, "data": tx})
	}
}

// -------------------------------------------------
// GET /api/cash-transactions/:id
// -------------------------------------------------
func GetHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tx, err := svc.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(tx)
	}
}

// -------------------------------------------------
// GET /api/cash-transactions?branch=&from=&to=&status=
// -------------------------------------------------
func ListHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f := Filter{
			Branch: c.Query("branch"),
			Status: models.VerificationStatus(strings.ToLower(c.Query("status"))),
			Limit:  c.QueryInt("limit", 0),
		}

		switch f.Status {
		case "", models.VerificationPending, models.VerificationApproved,
			models.VerificationRejected, models.VerificationAutoApproved:
		default:
			return fiber.NewError(fiber.StatusBadRequest, "status must be pending, approved, rejected or auto_approved")
		}

		var err error
		if f.From, err = queryDate(c, "from"); err != nil {
			return err
		}
		if f.To, err = queryDate(c, "to"); err != nil {
			return err
		}

		txs, err := svc.List(c.UserContext(), f)
		if err != nil {
			return err
		}
		return c.JSON(txs)
	}
}

// -------------------------------------------------
// GET /api/branches/:branch/running-balance?mode=&as_of=
// -------------------------------------------------
func RunningBalanceHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rb, err := runningBalance(c, svc, c.Params("branch"))
		if err != nil {
			return err
		}
		return c.JSON(rb)
	}
}

// -------------------------------------------------
// GET /api/cash-transactions/export?branch=&mode=&as_of=
// -------------------------------------------------
func ExportHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		branch := c.Query("branch")
		if strings.TrimSpace(branch) == "" {
			return fiber.NewError(fiber.StatusBadRequest, "branch is required")
		}

		rb, err := runningBalance(c, svc, branch)
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		if err := WriteCashbook(&buf, rb); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not build cashbook export")
		}

		filename := fmt.Sprintf("cashbook_%s_%s.xlsx", models.BranchKey(branch), time.Now().Format("20060102"))
		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
		return c.Send(buf.Bytes())
	}
}

func runningBalance(c *fiber.Ctx, svc *Service, branch string) (RunningBalance, error) {
	mode, ok := ParseMode(c.Query("mode"))
	if !ok {
		return RunningBalance{}, fiber.NewError(fiber.StatusBadRequest, "mode must be confirmed or provisional")
	}
	asOf, err := queryDate(c, "as_of")
	if err != nil {
		return RunningBalance{}, err
	}
	return svc.ComputeRunningBalance(c.UserContext(), branch, mode, asOf)
}

func queryDate(c *fiber.Ctx, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, key+": "+err.Error())
	}
	return &d, nil
}
