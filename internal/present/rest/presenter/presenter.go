package presenter

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/contextly/contextly-ledger/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

// OK wraps a successful response.
func OK(c echo.Context, payload any) error {
	return c.JSON(http.StatusOK, payload)
}

func BadRequest(c echo.Context, err error) error {
	fmt.Println("Bad request:", err)
	return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
}

func BadRequestMessage(c echo.Context, msg string) error {
	fmt.Println("Bad request:", msg)
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

func Unauthorized(c echo.Context, err error) error {
	return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
}

func NotFound(c echo.Context, msg string) error {
	fmt.Println("Not found:", msg)
	return c.JSON(http.StatusNotFound, errorResponse{Error: msg})
}

func InternalError(c echo.Context, err error) error {
	fmt.Println("Internal error:", err)
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

// Error maps domain errors onto the HTTP taxonomy: credential and
// session failures are 401, malformed input and ledger rejections are
// 400, missing resources are 404, everything else is 500.
func Error(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrMalformedMessage):
		return BadRequest(c, err)
	case errors.Is(err, domain.ErrInvalidSignature),
		errors.Is(err, domain.ErrExpiredChallenge),
		errors.Is(err, domain.ErrUnauthenticated),
		errors.Is(err, domain.ErrSessionRevoked):
		return Unauthorized(c, err)
	case errors.Is(err, domain.ErrInvalidSessionForEntry),
		errors.Is(err, domain.ErrScoreOutOfRange):
		return BadRequest(c, err)
	case errors.Is(err, domain.ErrNotFound):
		return NotFound(c, err.Error())
	default:
		return InternalError(c, err)
	}
}
