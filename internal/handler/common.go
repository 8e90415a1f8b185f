package handler // handler defines http handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sp1d5r/ticket-exchange/internal/repository"
)

// reqTimeout bounds every database-touching handler.
const reqTimeout = 5 * time.Second

func reqContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), reqTimeout)
}

// getAccountID extracts the JWT subject stored in the context by the auth
// middleware and converts it to uint64.
func getAccountID(c echo.Context) (uint64, error) {
	v := c.Get("account_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid account_id in context")
}

// pathUint parses a numeric path parameter.
func pathUint(c echo.Context, name string) (uint64, bool) {
	n, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return n, true
}

// repoStatus maps the repository sentinel errors onto HTTP status codes.
// Identity failures are 403 (the caller is authenticated but not allowed),
// missing entities 404, state conflicts 409, stale tickets 410, malformed
// intents 400 and insufficient funds or allowance 402.
func repoStatus(err error) int {
	switch {
	case errors.Is(err, repository.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, repository.ErrTicketNotFound),
		errors.Is(err, repository.ErrCollectionNotFound),
		errors.Is(err, repository.ErrAccountNotFound),
		errors.Is(err, repository.ErrNotListed):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrOwnershipMismatch),
		errors.Is(err, repository.ErrAlreadyListed),
		errors.Is(err, repository.ErrAlreadyUsed),
		errors.Is(err, repository.ErrCapacityExceeded),
		errors.Is(err, repository.ErrEmailExists):
		return http.StatusConflict
	case errors.Is(err, repository.ErrExpired):
		return http.StatusGone
	case errors.Is(err, repository.ErrBidTooLow),
		errors.Is(err, repository.ErrSelfBid),
		errors.Is(err, repository.ErrInvalidRecipient):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrAllowanceTooLow),
		errors.Is(err, repository.ErrTransferFailed):
		return http.StatusPaymentRequired
	}
	return http.StatusInternalServerError
}

// jsonRepoErr writes a sentinel error as a JSON response. Unknown errors
// are masked as a generic 500.
func jsonRepoErr(c echo.Context, err error) error {
	status := repoStatus(err)
	if status == http.StatusInternalServerError {
		return c.JSON(status, echo.Map{"error": "internal error"})
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}
