package storage

import (
	"time"

	"github.com/Myenum2412/app.client.proultima-sub003/internal/apperr"

	"github.com/gofiber/fiber/v2"
)

type SignRequest struct {
	Bucket    string   `json:"bucket"`
	Paths     []string `json:"paths"`
	ExpiresIn int      `json:"expiresIn"` // seconds
}

// -------------------------------------------------
// POST /api/storage/sign
// -------------------------------------------------
func SignHandler(s *Signer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body SignRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if body.Bucket == "" || len(body.Paths) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "bucket and paths are required")
		}

		urls, err := s.SignPaths(body.Bucket, body.Paths, time.Duration(body.ExpiresIn)*time.Second)
		if apperr.KindOf(err) == apperr.KindValidation {
			return fiber.NewError(fiber.StatusBadRequest, apperr.Message(err))
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not sign storage paths")
		}
		return c.JSON(fiber.Map{"urls": urls})
	}
}
