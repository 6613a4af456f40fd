package voucher

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

type AllocateRequest struct {
	Branch string `json:"branch"`
	Kind   string `json:"kind"` // cash_in | cash_out
}

type AllocateResponse struct {
	VoucherNo string `json:"voucherNo"`
	Kind      Kind   `json:"kind"`
}

// -------------------------------------------------
// POST /api/vouchers/allocate
// -------------------------------------------------
func AllocateHandler(a *Allocator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body AllocateRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		if strings.TrimSpace(body.Branch) == "" {
			return fiber.NewError(fiber.StatusBadRequest, "branch is required")
		}
		kind, ok := ParseKind(body.Kind)
		if !ok {
			return fiber.NewError(fiber.StatusBadRequest, "kind must be cash_in or cash_out")
		}

		v, err := a.Allocate(c.UserContext(), body.Branch, kind)
		if err != nil {
			return err
		}

		return c.JSON(AllocateResponse{VoucherNo: v.No, Kind: v.Kind})
	}
}
