package swap

import (
	"errors"

	"github.com/kjannette/trahn-swap/internal/risk"
)

var (
	// ErrInsufficientLiquidity is returned when the router cannot price the
	// path (a quote reverts or yields zero).
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// ErrApprovalRejected wraps a declined approve prompt; it also matches
	// wallet.ErrUserRejected.
	ErrApprovalRejected = errors.New("approval rejected")

	// ErrWrongNetwork is shared with the risk guardian.
	ErrWrongNetwork   = risk.ErrWrongNetwork
	ErrSwapInProgress = errors.New("a swap is already in progress")
	ErrInvalidRequest = errors.New("invalid swap request")
	ErrUnknownVenue   = errors.New("unknown venue")
)
