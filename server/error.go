package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/cardtable/tricksync/match"
)

type ErrorResponse struct {
	Error Error `json:"error"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusAndCode maps the error taxonomy onto transport statuses. State and
// concurrency errors share 409 but keep distinct codes: a client treats
// REVISION_MISMATCH as "resync then retry" and STATE as "resync, re-decide".
func statusAndCode(err error) (int, string) {
	switch match.Kind(err) {
	case match.KindValidation:
		return fiber.StatusBadRequest, "VALIDATION"
	case match.KindState:
		return fiber.StatusConflict, "STATE"
	case match.KindConcurrency:
		return fiber.StatusConflict, "REVISION_MISMATCH"
	case match.KindNotFound:
		return fiber.StatusNotFound, "NOT_FOUND"
	}
	return fiber.StatusInternalServerError, "INTERNAL"
}

var errorHandler = func(c *fiber.Ctx, err error) error {
	code := "INTERNAL"
	status := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		status = fiberErr.Code
		code = "HTTP"
	} else {
		status, code = statusAndCode(err)
	}

	c.Set(fiber.HeaderContentType, "application/json")
	return c.Status(status).JSON(ErrorResponse{Error: Error{Code: code, Message: err.Error()}})
}
