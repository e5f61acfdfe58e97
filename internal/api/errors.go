package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/kjannette/trahn-swap/internal/ethereum"
	"github.com/kjannette/trahn-swap/internal/models"
	"github.com/kjannette/trahn-swap/internal/repository"
	"github.com/kjannette/trahn-swap/internal/risk"
	"github.com/kjannette/trahn-swap/internal/service"
	"github.com/kjannette/trahn-swap/internal/swap"
	"github.com/kjannette/trahn-swap/internal/tokens"
	"github.com/kjannette/trahn-swap/internal/wallet"
)

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, swap.ErrInvalidRequest),
		errors.Is(err, swap.ErrUnknownVenue),
		errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrTooPrecise),
		errors.Is(err, tokens.ErrUnknownToken),
		errors.Is(err, wallet.ErrUnknownChain):
		return http.StatusBadRequest
	case errors.Is(err, wallet.ErrUserRejected),
		errors.Is(err, swap.ErrApprovalRejected):
		return http.StatusForbidden
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, wallet.ErrUnconnected),
		errors.Is(err, swap.ErrWrongNetwork),
		errors.Is(err, swap.ErrSwapInProgress):
		return http.StatusConflict
	case errors.Is(err, swap.ErrInsufficientLiquidity),
		errors.Is(err, ethereum.ErrTransactionReverted),
		errors.Is(err, risk.ErrBlocked):
		return http.StatusUnprocessableEntity
	case errors.Is(err, wallet.ErrNoProviderFound),
		errors.Is(err, service.ErrNoHistory):
		return http.StatusServiceUnavailable
	case errors.Is(err, ethereum.ErrTimedOut):
		return http.StatusGatewayTimeout
	case errors.Is(err, ethereum.ErrRPC),
		errors.Is(err, ethereum.ErrContractCall):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeFailure logs unexpected errors and writes the mapped status.
func writeFailure(w http.ResponseWriter, what string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		fmt.Printf("[API] %s: %v\n", what, err)
	}
	writeError(w, status, err.Error())
}
