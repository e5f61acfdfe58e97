package ethtest

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/kjannette/trahn-swap/internal/ethereum"
)

var (
	erc20ABI  = ethereum.MustERC20ABI()
	routerABI = ethereum.MustRouterABI()
)

type allowanceKey struct{ owner, spender common.Address }

// Token is a fake ERC20.
type Token struct {
	mu         sync.Mutex
	Decimals   uint8
	Symbol     string
	balances   map[common.Address]*big.Int
	allowances map[allowanceKey]*big.Int

	// Approvals counts committed approve calls.
	Approvals int
	// RevertApprove makes approve revert on commit.
	RevertApprove bool
}

func NewToken(symbol string, decimals uint8) *Token {
	return &Token{
		Symbol:     symbol,
		Decimals:   decimals,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
	}
}

func (t *Token) SetBalance(owner common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[owner] = new(big.Int).Set(amount)
}

func (t *Token) SetAllowance(owner, spender common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allowances[allowanceKey{owner, spender}] = new(big.Int).Set(amount)
}

func (t *Token) AllowanceOf(owner, spender common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a, ok := t.allowances[allowanceKey{owner, spender}]; ok {
		return new(big.Int).Set(a)
	}
	return big.NewInt(0)
}

func (t *Token) Handle(from common.Address, _ *big.Int, data []byte, commit bool) ([]byte, error) {
	method, args, err := decode(erc20ABI, data)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch method.Name {
	case "balanceOf":
		bal := t.balances[args[0].(common.Address)]
		if bal == nil {
			bal = big.NewInt(0)
		}
		return method.Outputs.Pack(bal)
	case "allowance":
		a := t.allowances[allowanceKey{args[0].(common.Address), args[1].(common.Address)}]
		if a == nil {
			a = big.NewInt(0)
		}
		return method.Outputs.Pack(a)
	case "decimals":
		return method.Outputs.Pack(t.Decimals)
	case "symbol":
		return method.Outputs.Pack(t.Symbol)
	case "approve":
		if t.RevertApprove {
			return nil, &RevertError{Reason: "approve disabled"}
		}
		if commit {
			t.allowances[allowanceKey{from, args[0].(common.Address)}] = new(big.Int).Set(args[1].(*big.Int))
			t.Approvals++
		}
		return method.Outputs.Pack(true)
	}
	return nil, &RevertError{Reason: "unsupported method " + method.Name}
}

// SwapRecord captures a committed router swap.
type SwapRecord struct {
	Method       string
	AmountIn     *big.Int
	AmountOutMin *big.Int
	Path         []common.Address
	To           common.Address
	Deadline     *big.Int
	Value        *big.Int
}

// Router is a fake Uniswap V2 Router02. Amounts computes getAmountsOut; a nil
// Amounts reverts every quote as if no pool existed.
type Router struct {
	mu      sync.Mutex
	Address common.Address
	Amounts func(amountIn *big.Int, path []common.Address) ([]*big.Int, error)
	Now     func() time.Time
	// Tokens, when set, enforces allowances for token-in swaps.
	Tokens map[common.Address]*Token

	Swaps []SwapRecord
}

// FixedAmounts returns an Amounts func that always answers amounts.
func FixedAmounts(amounts ...int64) func(*big.Int, []common.Address) ([]*big.Int, error) {
	return func(_ *big.Int, path []common.Address) ([]*big.Int, error) {
		if len(path) != len(amounts) {
			return nil, &RevertError{Reason: "UniswapV2Library: INVALID_PATH"}
		}
		out := make([]*big.Int, len(amounts))
		for i, a := range amounts {
			out[i] = big.NewInt(a)
		}
		return out, nil
	}
}

func (r *Router) SwapCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Swaps)
}

func (r *Router) LastSwap() SwapRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Swaps[len(r.Swaps)-1]
}

func (r *Router) Handle(from common.Address, value *big.Int, data []byte, commit bool) ([]byte, error) {
	method, args, err := decode(routerABI, data)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if method.Name == "getAmountsOut" {
		amounts, err := r.quote(args[0].(*big.Int), args[1].([]common.Address))
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(amounts)
	}

	rec := SwapRecord{Method: method.Name, Value: value}
	switch method.Name {
	case "swapExactTokensForETH", "swapExactTokensForTokens":
		rec.AmountIn = args[0].(*big.Int)
		rec.AmountOutMin = args[1].(*big.Int)
		rec.Path = args[2].([]common.Address)
		rec.To = args[3].(common.Address)
		rec.Deadline = args[4].(*big.Int)
	case "swapExactETHForTokens":
		rec.AmountIn = value
		rec.AmountOutMin = args[0].(*big.Int)
		rec.Path = args[1].([]common.Address)
		rec.To = args[2].(common.Address)
		rec.Deadline = args[3].(*big.Int)
	default:
		return nil, &RevertError{Reason: "unsupported method " + method.Name}
	}

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	if rec.Deadline.Int64() < now().Unix() {
		return nil, &RevertError{Reason: "UniswapV2Router: EXPIRED"}
	}
	if tok, ok := r.Tokens[rec.Path[0]]; ok && method.Name != "swapExactETHForTokens" {
		if tok.AllowanceOf(from, r.Address).Cmp(rec.AmountIn) < 0 {
			return nil, &RevertError{Reason: "TransferHelper: TRANSFER_FROM_FAILED"}
		}
	}
	amounts, err := r.quote(rec.AmountIn, rec.Path)
	if err != nil {
		return nil, err
	}
	if amounts[len(amounts)-1].Cmp(rec.AmountOutMin) < 0 {
		return nil, &RevertError{Reason: "UniswapV2Router: INSUFFICIENT_OUTPUT_AMOUNT"}
	}
	if commit {
		r.Swaps = append(r.Swaps, rec)
	}
	return method.Outputs.Pack(amounts)
}

func (r *Router) quote(amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	if r.Amounts == nil {
		return nil, &RevertError{Reason: "UniswapV2Library: INSUFFICIENT_LIQUIDITY"}
	}
	return r.Amounts(amountIn, path)
}

func decode(parsed abi.ABI, data []byte) (*abi.Method, []any, error) {
	if len(data) < 4 {
		return nil, nil, errors.New("calldata too short")
	}
	method, err := parsed.MethodById(data[:4])
	if err != nil {
		return nil, nil, &RevertError{Reason: fmt.Sprintf("unknown selector %x", data[:4])}
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", method.Name, err)
	}
	return method, args, nil
}
