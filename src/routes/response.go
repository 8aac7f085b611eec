package routes

import (
	"time"

	"github.com/gofiber/fiber/v3"
)

// apiResponse is the JSON envelope every endpoint answers with.
type apiResponse struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func ok(c fiber.Ctx, data any) error {
	return c.JSON(apiResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}

func fail(c fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(apiResponse{
		Success:   false,
		Error:     err.Error(),
		Timestamp: time.Now().UnixMilli(),
	})
}
