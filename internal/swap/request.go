package swap

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kjannette/trahn-swap/internal/ethereum"
)

const bpsDenominator = 10000

// DefaultDeadline is the router deadline window.
const DefaultDeadline = 1200 * time.Second

// Request is a fully specified swap, built once per execution and submitted
// at most once.
type Request struct {
	Kind         ethereum.SwapKind
	AmountIn     *big.Int
	AmountOutMin *big.Int
	Path         []common.Address
	From         common.Address
	Recipient    common.Address
	Deadline     time.Time
}

// MinAmountOut applies a slippage tolerance in basis points:
// floor(estimate * (10000 - bps) / 10000).
func MinAmountOut(estimate *big.Int, slippageBps int64) (*big.Int, error) {
	if err := ValidateSlippage(slippageBps); err != nil {
		return nil, err
	}
	if estimate == nil || estimate.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative estimate", ErrInvalidRequest)
	}
	out := new(big.Int).Mul(estimate, big.NewInt(bpsDenominator-slippageBps))
	return out.Div(out, big.NewInt(bpsDenominator)), nil
}

// ValidateSlippage requires 0 < bps < 10000.
func ValidateSlippage(bps int64) error {
	if bps <= 0 || bps >= bpsDenominator {
		return fmt.Errorf("%w: slippage %d bps outside (0, %d)", ErrInvalidRequest, bps, bpsDenominator)
	}
	return nil
}

// DeadlineAt returns now + window truncated to whole seconds.
func DeadlineAt(now time.Time, window time.Duration) time.Time {
	return time.Unix(now.Unix()+int64(window/time.Second), 0)
}

// KindFor picks the router entry point from which end is native.
func KindFor(nativeIn, nativeOut bool) (ethereum.SwapKind, error) {
	switch {
	case nativeIn && nativeOut:
		return "", fmt.Errorf("%w: native to native", ErrInvalidRequest)
	case nativeIn:
		return ethereum.ETHForTokens, nil
	case nativeOut:
		return ethereum.TokensForETH, nil
	default:
		return ethereum.TokensForTokens, nil
	}
}

func validatePath(amountIn *big.Int, path []common.Address) error {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if len(path) < 2 {
		return fmt.Errorf("%w: path needs at least 2 tokens, got %d", ErrInvalidRequest, len(path))
	}
	for i := 1; i < len(path); i++ {
		if path[i] == path[i-1] {
			return fmt.Errorf("%w: repeated hop %s", ErrInvalidRequest, path[i].Hex())
		}
	}
	return nil
}

func (r Request) call() ethereum.SwapCall {
	return ethereum.SwapCall{
		Kind:         r.Kind,
		AmountIn:     r.AmountIn,
		AmountOutMin: r.AmountOutMin,
		Path:         r.Path,
		To:           r.Recipient,
		Deadline:     big.NewInt(r.Deadline.Unix()),
	}
}
