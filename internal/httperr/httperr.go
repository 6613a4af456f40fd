// Package httperr turns service errors into JSON error responses.
package httperr

import (
	"errors"

	"github.com/Myenum2412/app.client.proultima-sub003/internal/apperr"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Status picks the response code for err.
func Status(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}

	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return fiber.StatusBadRequest
	case apperr.KindNotFound:
		return fiber.StatusNotFound
	case apperr.KindConflict:
		// verifier actions on settled rows are reported as bad requests
		if errors.Is(err, apperr.ErrNotPending) {
			return fiber.StatusBadRequest
		}
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// Handler is the fiber ErrorHandler for the API. Dependency and unknown
// failures are logged with the request path; their cause is not echoed.
func Handler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := Status(err)

		msg := apperr.Message(err)
		var fe *fiber.Error
		if errors.As(err, &fe) {
			msg = fe.Message
		}

		if code >= fiber.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("status", code),
				zap.Error(err))
			if apperr.KindOf(err) == apperr.KindUnknown && fe == nil {
				msg = "internal server error"
			}
		}

		return c.Status(code).JSON(fiber.Map{"error": msg})
	}
}
