package serverutils

import (
	"errors"
	"math"
	"strconv"

	"devmemory-be/internal/apperr"
	"devmemory-be/internal/pkg/logger"
	"devmemory-be/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
)

// StatusFor maps an error from the taxonomy onto an HTTP status.
func StatusFor(err error) int {
	var fiberErr *fiber.Error
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, apperr.ErrConfirmationRequired):
		return fiber.StatusConflict
	case errors.Is(err, apperr.ErrSchemaViolation):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrTimeoutRace):
		return fiber.StatusConflict
	case errors.Is(err, apperr.ErrProvider):
		return fiber.StatusBadGateway
	case errors.Is(err, apperr.ErrNoDefaultProject):
		return fiber.StatusPreconditionFailed
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorBody builds the envelope for err.
func ErrorBody(err error) BaseResponse[any] {
	status := StatusFor(err)
	body := ErrorResponse(status, err.Error())
	body.ErrorCode = apperr.Code(err)

	var validationErr *apperr.ValidationError
	var confirmErr *apperr.ConfirmationRequiredError
	switch {
	case errors.As(err, &validationErr):
		body.Errors = validationErr.Fields
	case errors.As(err, &confirmErr):
		body.Message = confirmErr.Warning
		body.Data = fiber.Map{"action": confirmErr.Action, "details": confirmErr.Details}
	case status == fiber.StatusInternalServerError:
		body.Message = "Internal server error"
	}
	return body
}

func ErrorHandlerMiddleware(log logger.ILogger) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		body := ErrorBody(err)
		if body.Code >= fiber.StatusInternalServerError && body.Code != fiber.StatusBadGateway {
			log.Error("HTTP", "Request failed", map[string]interface{}{
				"method": ctx.Method(),
				"path":   ctx.Path(),
				"error":  err.Error(),
			})
		}

		var providerErr *apperr.ProviderError
		if errors.As(err, &providerErr) && providerErr.RetryAfter > 0 {
			seconds := int(math.Ceil(providerErr.RetryAfter.Seconds()))
			ctx.Set(fiber.HeaderRetryAfter, strconv.Itoa(seconds))
		}
		return ctx.Status(body.Code).JSON(body)
	}
}

// ValidateRequest runs the struct validator and returns a taxonomy error.
func ValidateRequest(req interface{}) error {
	return validation.Struct(req)
}
