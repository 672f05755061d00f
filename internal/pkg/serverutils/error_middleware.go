package serverutils

import (
	"errors"

	"github.com/Dembrane/echo-sub002/pkg/assistant"
	"github.com/Dembrane/echo-sub002/pkg/turn"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware translates domain errors bubbling out of handlers
// into consistent HTTP responses.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		code, message := mapError(err)
		return ctx.Status(code).JSON(ErrorResponse(code, message))
	}
}

func mapError(err error) (int, string) {
	var transportErr *assistant.TransportError
	if errors.As(err, &transportErr) {
		return fiber.StatusBadGateway, "assistant upstream unavailable"
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code, fiberErr.Message
	}

	switch {
	case errors.Is(err, turn.ErrSessionNotFound),
		errors.Is(err, turn.ErrNoActiveStream):
		return fiber.StatusNotFound, err.Error()
	case errors.Is(err, turn.ErrModeUnset),
		errors.Is(err, turn.ErrModeAlreadySet),
		errors.Is(err, turn.ErrContextLocked),
		errors.Is(err, turn.ErrLockConflict):
		return fiber.StatusConflict, err.Error()
	default:
		return fiber.StatusInternalServerError, err.Error()
	}
}
