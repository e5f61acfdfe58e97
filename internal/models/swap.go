package models

import (
	"math/big"
	"time"
)

// Attempt states, in flow order.
const (
	StateIdle      = "idle"
	StateQuoting   = "quoting"
	StateApproving = "approving"
	StateExecuting = "executing"
	StateConfirmed = "confirmed"
	StateFailed    = "failed"
)

// SwapAttempt is one persisted execution of the swap flow.
type SwapAttempt struct {
	ID                int64     `json:"id"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
	Wallet            string    `json:"wallet"`
	ChainID           int64     `json:"chainId"`
	Venue             string    `json:"venue"`
	Kind              string    `json:"kind"`
	Path              []string  `json:"path"`
	AmountIn          *big.Int  `json:"amountIn"`
	AmountOutEstimate *big.Int  `json:"amountOutEstimate"`
	AmountOutMin      *big.Int  `json:"amountOutMin"`
	Deadline          time.Time `json:"deadline"`
	State             string    `json:"state"`
	ApprovalTxHash    *string   `json:"approvalTxHash,omitempty"`
	TxHash            *string   `json:"txHash,omitempty"`
	Error             *string   `json:"error,omitempty"`
	DryRun            bool      `json:"dryRun"`
}

// Terminal reports whether the attempt has reached confirmed or failed.
func (a *SwapAttempt) Terminal() bool {
	return a.State == StateConfirmed || a.State == StateFailed
}

// SwapEvent is published on every terminal attempt.
type SwapEvent struct {
	AttemptID      int64     `json:"attemptId"`
	Timestamp      time.Time `json:"timestamp"`
	Wallet         string    `json:"wallet"`
	ChainID        int64     `json:"chainId"`
	Venue          string    `json:"venue"`
	State          string    `json:"state"`
	AmountIn       string    `json:"amountIn"`
	AmountOut      string    `json:"amountOut"`
	TxHash         string    `json:"txHash,omitempty"`
	ApprovalTxHash string    `json:"approvalTxHash,omitempty"`
	Error          string    `json:"error,omitempty"`
	DryRun         bool      `json:"dryRun"`
}

type SwapStats struct {
	Total     int64      `json:"total"`
	Confirmed int64      `json:"confirmed"`
	Failed    int64      `json:"failed"`
	DryRuns   int64      `json:"dryRuns"`
	First     *time.Time `json:"first"`
	Last      *time.Time `json:"last"`
}
