package httpapi

import (
	"errors"
	"time"

	"taskquest/internal/application"

	"github.com/gofiber/fiber/v2"
)

type apiResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     *apiError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func sendSuccess(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusOK).JSON(apiResponse{Success: true, Data: data, Timestamp: time.Now()})
}

func sendCreated(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(apiResponse{Success: true, Data: data, Timestamp: time.Now()})
}

func sendMessage(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusOK).JSON(apiResponse{Success: true, Message: message, Timestamp: time.Now()})
}

func sendError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(apiResponse{
		Error:     &apiError{Code: code, Message: message},
		Timestamp: time.Now(),
	})
}

func sendBadRequest(c *fiber.Ctx, message string) error {
	return sendError(c, fiber.StatusBadRequest, "BAD_REQUEST", message)
}

func statusCode(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusForbidden:
		return "FORBIDDEN"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusConflict:
		return "CONFLICT"
	case fiber.StatusServiceUnavailable:
		return "UNAVAILABLE"
	}
	return "INTERNAL_SERVER_ERROR"
}

// httpStatus maps application errors onto response codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, application.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, application.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, application.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, application.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, application.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, application.ErrUnavailable):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

func (s *Server) sendServiceError(c *fiber.Ctx, err error) error {
	status := httpStatus(err)
	if status == fiber.StatusInternalServerError {
		s.log.Error("%s %s: %v", c.Method(), c.Path(), err)
		return sendError(c, status, statusCode(status), "Internal Server Error")
	}
	return sendError(c, status, statusCode(status), err.Error())
}
