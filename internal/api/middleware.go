package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/meditime/internal/errors"
)

// requestMiddleware logs and counts every request. Errors from the chain
// are rendered here so the recorded status is the one sent.
func (s *Server) requestMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := c.Next(); err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		route := c.Route().Path
		if s.metrics != nil {
			s.metrics.RecordRequest(route, status)
		}
		if status >= fiber.StatusInternalServerError {
			s.logger.Error("Request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("status", status),
			)
		} else {
			s.logger.Debug("Request",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("status", status),
			)
		}
		return nil
	}
}

// errorResponse is the JSON body of every failed request
type errorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// statusFor maps an error code to its HTTP status
func statusFor(code string) int {
	switch code {
	case apperrors.ErrValidation.Code:
		return fiber.StatusUnprocessableEntity
	case apperrors.ErrDuplicateUser.Code, apperrors.ErrNoActiveUser.Code:
		return fiber.StatusConflict
	case apperrors.ErrUserNotFound.Code, apperrors.ErrScheduleNotFound.Code, apperrors.ErrNotFound.Code:
		return fiber.StatusNotFound
	case apperrors.ErrStorageUnavailable.Code:
		return fiber.StatusServiceUnavailable
	case apperrors.ErrBadRequest.Code:
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(errorResponse{Error: fe.Message})
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return c.Status(statusFor(appErr.Code)).JSON(errorResponse{
			Error:  appErr.Message,
			Code:   appErr.Code,
			Fields: appErr.Fields,
		})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: "internal error"})
}

func badRequest(msg string) error {
	return apperrors.New(apperrors.ErrBadRequest.Code, msg)
}
