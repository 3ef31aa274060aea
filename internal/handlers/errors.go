package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"cybersync/internal/extract"
	"cybersync/internal/services"
	"cybersync/internal/store"
	"cybersync/internal/validation"
)

// fail maps service errors onto HTTP responses so every handler reports
// failures the same way.
func fail(c *fiber.Ctx, err error) error {
	var rule *validation.RuleError
	switch {
	case errors.As(err, &rule):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": rule.Message,
			"field": rule.Field,
		})
	case errors.Is(err, store.ErrInvalidReference):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "resource not found"})
	case errors.Is(err, extract.ErrUnsupported):
		return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{"error": "unsupported file format"})
	case errors.Is(err, services.ErrEncoderDown):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "embedding service unavailable, try again later"})
	default:
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
}
