package transport

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/studentpen/pen-batch-engine/internal/domain"
	"github.com/studentpen/pen-batch-engine/internal/observability"
	"go.uber.org/zap"
)

// ErrorHandler maps errors to status codes and logs them with the request's
// correlation id.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError

		var fiberErr *fiber.Error
		switch {
		case errors.As(err, &fiberErr):
			code = fiberErr.Code
		case errors.Is(err, domain.ErrNotFound):
			code = fiber.StatusNotFound
		case errors.Is(err, domain.ErrValidation):
			code = fiber.StatusBadRequest
		case errors.Is(err, domain.ErrConflict):
			code = fiber.StatusConflict
		}

		correlationID, _ := observability.CorrelationIDFromContext(c.UserContext())
		logger.Error("request error",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.String("correlationId", correlationID),
			zap.Error(err),
		)

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}
