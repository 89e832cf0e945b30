package proxy

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/azrelay/pkg/llm"
)

// Caller-facing error messages.
const (
	msgUnauthorized     = "You are not authorized to visit this webpage."
	msgFiltered         = "You have probably hit a filter"
	msgNotFound         = "The requested URL was not found on the server."
	msgMethodNotAllowed = "The method is not allowed for the requested URL."
	msgInternal         = "The server encountered an internal error."
	msgInvalidJSON      = "The request body is not valid JSON."
)

// handleError is the gateway's error boundary. Every error returned by a
// handler, panics included, is answered with a JSON body.
func (p *Proxy) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}

	var msg string
	switch code {
	case fiber.StatusNotFound:
		msg = msgNotFound
		p.logger.Warn("404 error", zap.String("path", c.Path()))
	case fiber.StatusMethodNotAllowed:
		msg = msgMethodNotAllowed
		p.logger.Warn("405 error", zap.String("method", c.Method()), zap.String("path", c.Path()))
	default:
		code = fiber.StatusInternalServerError
		msg = msgInternal
		p.logger.Error("500 error",
			zap.String("request_id", requestID(c)),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}

	return c.Status(code).JSON(llm.ErrorResponse{Error: msg})
}
