package risk

import (
	"context"
	"errors"
	"fmt"
)

// ErrBlocked marks an attempt refused by a limit.
var ErrBlocked = errors.New("swap blocked")

// ErrWrongNetwork is returned when the wallet is not on the configured chain.
var ErrWrongNetwork = errors.New("wrong network")

// DailySwapCounter abstracts the swap-counting dependency so Guardian
// can be tested without a real database.
type DailySwapCounter interface {
	CountToday(ctx context.Context) (int, error)
}

// Limits holds the risk thresholds from config.
// A zero value for any field means that check is disabled.
type Limits struct {
	ChainID            int64
	MaxDailySwaps      int
	MaxSlippagePercent float64
}

type Guardian struct {
	limits  Limits
	counter DailySwapCounter
}

func NewGuardian(limits Limits, counter DailySwapCounter) *Guardian {
	return &Guardian{limits: limits, counter: counter}
}

func (g *Guardian) Limits() Limits { return g.limits }

// PreSwapCheck validates per-attempt constraints before anything is quoted.
// Returns nil if the swap is allowed, a descriptive error if blocked.
func (g *Guardian) PreSwapCheck(ctx context.Context, chainID int64, slippageBps int64) error {
	if g.limits.ChainID > 0 && chainID != g.limits.ChainID {
		return fmt.Errorf("%w: wallet on chain %d, expected %d", ErrWrongNetwork, chainID, g.limits.ChainID)
	}

	if g.limits.MaxSlippagePercent > 0 {
		maxBps := int64(g.limits.MaxSlippagePercent*100 + 0.5)
		if slippageBps > maxBps {
			return fmt.Errorf("%w: slippage %.2f%% exceeds max %.2f%%",
				ErrBlocked, float64(slippageBps)/100, g.limits.MaxSlippagePercent)
		}
	}

	if g.limits.MaxDailySwaps > 0 && g.counter != nil {
		count, err := g.counter.CountToday(ctx)
		if err != nil {
			return fmt.Errorf("%w: unable to verify daily swap count: %w", ErrBlocked, err)
		}
		if count >= g.limits.MaxDailySwaps {
			return fmt.Errorf("%w: daily limit of %d swaps reached (%d executed today)",
				ErrBlocked, g.limits.MaxDailySwaps, count)
		}
	}

	return nil
}
