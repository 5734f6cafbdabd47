package serverutils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"devmemory-be/internal/apperr"
	"devmemory-be/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: apperr.Validation("bad"), want: fiber.StatusBadRequest},
		{name: "not found", err: apperr.NotFound("session", "S0001"), want: fiber.StatusNotFound},
		{name: "confirmation", err: &apperr.ConfirmationRequiredError{Action: "x"}, want: fiber.StatusConflict},
		{name: "schema", err: apperr.SchemaViolation("dimension"), want: fiber.StatusUnprocessableEntity},
		{name: "race", err: apperr.TimeoutRace("ended"), want: fiber.StatusConflict},
		{name: "provider", err: apperr.Provider("ollama", errors.New("down")), want: fiber.StatusBadGateway},
		{name: "no project", err: apperr.NoDefaultProject(), want: fiber.StatusPreconditionFailed},
		{name: "wrapped", err: fmt.Errorf("store: %w", apperr.NotFound("task", 1)), want: fiber.StatusNotFound},
		{name: "fiber error", err: fiber.NewError(fiber.StatusMethodNotAllowed, "nope"), want: fiber.StatusMethodNotAllowed},
		{name: "unknown", err: errors.New("boom"), want: fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestErrorBody(t *testing.T) {
	body := ErrorBody(apperr.ValidationField("limit", "must be at most 500"))
	assert.False(t, body.Success)
	assert.Equal(t, "VALIDATION_ERROR", body.ErrorCode)
	assert.Equal(t, map[string]string{"limit": "must be at most 500"}, body.Errors)

	body = ErrorBody(&apperr.ConfirmationRequiredError{
		Action:  "session.reassignProject",
		Warning: "moves 3 artifacts",
		Details: map[string]interface{}{"contexts": 3},
	})
	assert.Equal(t, fiber.StatusConflict, body.Code)
	assert.Equal(t, "moves 3 artifacts", body.Message)
	assert.Equal(t, "session.reassignProject", body.Data.(fiber.Map)["action"])

	body = ErrorBody(errors.New("pq: connection refused"))
	assert.Equal(t, "Internal server error", body.Message, "internal details are not leaked")
	assert.Equal(t, "INTERNAL_ERROR", body.ErrorCode)
}

func TestErrorHandlerMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(ErrorHandlerMiddleware(logger.NewNopLogger()))
	app.Get("/provider", func(ctx *fiber.Ctx) error {
		return &apperr.ProviderError{Provider: "openai", Cause: errors.New("429"), RetryAfter: 1500 * time.Millisecond}
	})
	app.Get("/ok", func(ctx *fiber.Ctx) error {
		return ctx.JSON(SuccessResponse("fine", 1))
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/provider", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "2", resp.Header.Get(fiber.HeaderRetryAfter))

	var body BaseResponse[any]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "PROVIDER_ERROR", body.ErrorCode)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/ok", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get(fiber.HeaderRetryAfter))
}
